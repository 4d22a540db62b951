package transcribe

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/pion/opus/pkg/oggreader"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GoogleConfig configures Google Cloud Speech-to-Text. With no APIKey the
// client falls back to application default credentials.
type GoogleConfig struct {
	APIKey       string
	LanguageCode string // BCP-47, e.g. "en-US"
}

// recognizer is the subset of *speech.Client used here.
type recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
	Close() error
}

// GoogleProvider calls the synchronous Recognize RPC.
// Implements the Provider interface.
type GoogleProvider struct {
	client   recognizer
	language string
	decode   func(ctx context.Context, path string) ([]float32, error)
}

// NewGoogleProvider dials the Speech API once at startup.
func NewGoogleProvider(ctx context.Context, cfg GoogleConfig) (*GoogleProvider, error) {
	var opts []option.ClientOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google speech client: %w", err)
	}
	return newGoogleProvider(client, cfg.LanguageCode), nil
}

func newGoogleProvider(client recognizer, language string) *GoogleProvider {
	if language == "" {
		language = "en-US"
	}
	return &GoogleProvider{client: client, language: language, decode: DecodePCM}
}

// Name returns the provider name.
func (g *GoogleProvider) Name() string { return "google" }

// Model returns the recognition model in use.
func (g *GoogleProvider) Model() string { return "default" }

// Close shuts down the gRPC connection.
func (g *GoogleProvider) Close() error { return g.client.Close() }

// Transcribe sends the file inline (synchronous recognition is limited to
// about one minute of audio) and joins the top alternative of each result.
func (g *GoogleProvider) Transcribe(ctx context.Context, audioPath string) (*Response, error) {
	cfg := recognitionConfig(audioPath, g.language)
	data, err := g.audioContent(ctx, audioPath, cfg)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: cfg,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: data},
		},
	})
	if err != nil {
		return nil, newProviderError(g.Name(), classifyGRPC(err), err)
	}

	var parts []string
	for _, r := range resp.GetResults() {
		if alts := r.GetAlternatives(); len(alts) > 0 {
			parts = append(parts, strings.TrimSpace(alts[0].GetTranscript()))
		}
	}
	text := strings.TrimSpace(strings.Join(parts, " "))
	if text == "" {
		return nil, newProviderError(g.Name(), KindAudio, ErrUnrecognizedAudio)
	}

	return &Response{
		Text:     text,
		Language: g.language,
	}, nil
}

// audioContent returns the bytes to send for cfg. WAV and OGG go as stored;
// formats the v1 API cannot decode (MP3, M4A) are sent as LINEAR16 PCM.
func (g *GoogleProvider) audioContent(ctx context.Context, audioPath string, cfg *speechpb.RecognitionConfig) ([]byte, error) {
	if cfg.GetEncoding() != speechpb.RecognitionConfig_LINEAR16 {
		data, err := os.ReadFile(audioPath)
		if err != nil {
			return nil, newProviderError(g.Name(), KindInternal, fmt.Errorf("read audio file: %w", err))
		}
		return data, nil
	}

	if _, err := os.Stat(audioPath); err != nil {
		return nil, newProviderError(g.Name(), KindInternal, fmt.Errorf("read audio file: %w", err))
	}
	samples, err := g.decode(ctx, audioPath)
	if err != nil {
		return nil, newProviderError(g.Name(), KindAudio, fmt.Errorf("decode audio: %w", err))
	}
	return float32ToLinear16(samples), nil
}

// float32ToLinear16 encodes samples in [-1, 1] as little-endian int16.
func float32ToLinear16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := s * 32767
		switch {
		case v > 32767:
			v = 32767
		case v < -32768:
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v))) // #nosec G115 - clamped to int16
	}
	return out
}

// opusRates are the sample rates the API accepts for OGG_OPUS.
var opusRates = map[int32]bool{8000: true, 12000: true, 16000: true, 24000: true, 48000: true}

// recognitionConfig picks an encoding from the file extension. WAV headers
// are read by the API itself; OGG is sent as Opus; anything else is decoded
// locally to 16 kHz LINEAR16.
func recognitionConfig(audioPath, language string) *speechpb.RecognitionConfig {
	cfg := &speechpb.RecognitionConfig{
		LanguageCode:               language,
		EnableAutomaticPunctuation: true,
	}
	switch strings.ToLower(filepath.Ext(audioPath)) {
	case ".ogg", ".opus", ".oga":
		cfg.Encoding = speechpb.RecognitionConfig_OGG_OPUS
		rate := oggSampleRate(audioPath)
		if !opusRates[rate] {
			rate = 48000
		}
		cfg.SampleRateHertz = rate
	case ".wav":
		// the RIFF header carries encoding and rate
	default:
		cfg.Encoding = speechpb.RecognitionConfig_LINEAR16
		cfg.SampleRateHertz = TargetSampleRate
	}
	return cfg
}

// oggSampleRate reads the input sample rate from an Ogg Opus header, or 0.
func oggSampleRate(path string) int32 {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	_, header, err := oggreader.NewWith(f)
	if err != nil {
		return 0
	}
	return int32(header.SampleRate) // #nosec G115 - opus rates fit in int32
}

func classifyGRPC(err error) Kind {
	st, ok := status.FromError(err)
	if !ok {
		return transportKind(err)
	}
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return KindAuth
	case codes.ResourceExhausted:
		return KindRateLimit
	case codes.Unavailable, codes.Internal, codes.Aborted:
		return KindUnavailable
	case codes.DeadlineExceeded:
		return KindTimeout
	case codes.InvalidArgument, codes.OutOfRange, codes.FailedPrecondition:
		return KindAudio
	}
	return KindUnknown
}
