package transcribe

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeRecognizer struct {
	resp   *speechpb.RecognizeResponse
	err    error
	got    *speechpb.RecognizeRequest
	closed bool
}

func (f *fakeRecognizer) Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error) {
	f.got = req
	return f.resp, f.err
}

func (f *fakeRecognizer) Close() error {
	f.closed = true
	return nil
}

func results(transcripts ...string) *speechpb.RecognizeResponse {
	resp := &speechpb.RecognizeResponse{}
	for _, tr := range transcripts {
		resp.Results = append(resp.Results, &speechpb.SpeechRecognitionResult{
			Alternatives: []*speechpb.SpeechRecognitionAlternative{
				{Transcript: tr, Confidence: 0.9},
				{Transcript: "ignored alternative", Confidence: 0.1},
			},
		})
	}
	return resp
}

func TestGoogleTranscribe(t *testing.T) {
	fake := &fakeRecognizer{resp: results("hello there", " general kenobi ")}
	g := newGoogleProvider(fake, "")
	data := []byte("RIFF-fake-wav")
	path := writeAudioFile(t, "clip.wav", data)

	resp, err := g.Transcribe(context.Background(), path)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if resp.Text != "hello there general kenobi" {
		t.Errorf("Text = %q", resp.Text)
	}
	if fake.got.GetConfig().GetLanguageCode() != "en-US" {
		t.Errorf("language = %q", fake.got.GetConfig().GetLanguageCode())
	}
	if string(fake.got.GetAudio().GetContent()) != string(data) {
		t.Error("audio content not sent inline")
	}
	if fake.got.GetConfig().GetEncoding() != speechpb.RecognitionConfig_ENCODING_UNSPECIFIED {
		t.Errorf("encoding = %v, want unspecified for wav", fake.got.GetConfig().GetEncoding())
	}

	g.Close()
	if !fake.closed {
		t.Error("Close did not close the client")
	}
}

func TestGoogleNoSpeech(t *testing.T) {
	for name, resp := range map[string]*speechpb.RecognizeResponse{
		"no_results": {},
		"blank":      results("   "),
	} {
		t.Run(name, func(t *testing.T) {
			g := newGoogleProvider(&fakeRecognizer{resp: resp}, "en-GB")
			_, err := g.Transcribe(context.Background(), writeAudioFile(t, "a.wav", []byte("RIFF")))
			if !errors.Is(err, ErrUnrecognizedAudio) {
				t.Fatalf("err = %v, want ErrUnrecognizedAudio", err)
			}
			if KindOf(err) != KindAudio {
				t.Errorf("Kind = %q, want audio", KindOf(err))
			}
		})
	}
}

func TestGoogleErrorKinds(t *testing.T) {
	tests := []struct {
		code codes.Code
		want Kind
	}{
		{codes.Unauthenticated, KindAuth},
		{codes.PermissionDenied, KindAuth},
		{codes.ResourceExhausted, KindRateLimit},
		{codes.Unavailable, KindUnavailable},
		{codes.DeadlineExceeded, KindTimeout},
		{codes.InvalidArgument, KindAudio},
		{codes.NotFound, KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			g := newGoogleProvider(&fakeRecognizer{err: status.Error(tt.code, "nope")}, "en-US")
			_, err := g.Transcribe(context.Background(), writeAudioFile(t, "a.wav", []byte("RIFF")))
			if k := KindOf(err); k != tt.want {
				t.Errorf("KindOf = %q, want %q", k, tt.want)
			}
		})
	}
}

func TestGoogleMissingFile(t *testing.T) {
	g := newGoogleProvider(&fakeRecognizer{resp: results("x")}, "en-US")
	_, err := g.Transcribe(context.Background(), "/nonexistent/clip.wav")
	if KindOf(err) != KindInternal {
		t.Errorf("KindOf = %q, want internal", KindOf(err))
	}
}

func TestGoogleTranscribeDecodesUnsupportedFormats(t *testing.T) {
	for _, name := range []string{"clip.mp3", "clip.m4a"} {
		t.Run(name, func(t *testing.T) {
			fake := &fakeRecognizer{resp: results("decoded speech")}
			g := newGoogleProvider(fake, "en-US")
			var decoded string
			g.decode = func(ctx context.Context, path string) ([]float32, error) {
				decoded = path
				return []float32{0, 0.5, -1, 1}, nil
			}

			path := writeAudioFile(t, name, []byte("compressed"))
			resp, err := g.Transcribe(context.Background(), path)
			if err != nil {
				t.Fatalf("Transcribe: %v", err)
			}
			if resp.Text != "decoded speech" {
				t.Errorf("Text = %q", resp.Text)
			}
			if decoded != path {
				t.Errorf("decoded %q, want %q", decoded, path)
			}
			cfg := fake.got.GetConfig()
			if cfg.GetEncoding() != speechpb.RecognitionConfig_LINEAR16 || cfg.GetSampleRateHertz() != 16000 {
				t.Errorf("config = %v/%d, want LINEAR16/16000", cfg.GetEncoding(), cfg.GetSampleRateHertz())
			}
			want := []byte{0, 0, 0xff, 0x3f, 0x01, 0x80, 0xff, 0x7f}
			if got := fake.got.GetAudio().GetContent(); string(got) != string(want) {
				t.Errorf("content = %x, want %x", got, want)
			}
		})
	}
}

func TestGoogleDecodeFailureIsAudioError(t *testing.T) {
	fake := &fakeRecognizer{resp: results("x")}
	g := newGoogleProvider(fake, "en-US")
	g.decode = func(ctx context.Context, path string) ([]float32, error) {
		return nil, errors.New("decoding .mp3 requires ffmpeg in PATH")
	}
	_, err := g.Transcribe(context.Background(), writeAudioFile(t, "a.mp3", []byte("ID3")))
	if KindOf(err) != KindAudio {
		t.Errorf("KindOf = %q, want audio", KindOf(err))
	}
	if fake.got != nil {
		t.Error("Recognize called after decode failure")
	}
}

func TestRecognitionConfigByExtension(t *testing.T) {
	tests := []struct {
		name     string
		encoding speechpb.RecognitionConfig_AudioEncoding
		rate     int32
	}{
		{"a.wav", speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, 0},
		{"a.WAV", speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, 0},
		{"a.mp3", speechpb.RecognitionConfig_LINEAR16, 16000},
		{"a.m4a", speechpb.RecognitionConfig_LINEAR16, 16000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := recognitionConfig("/tmp/"+tt.name, "en-US")
			if cfg.GetEncoding() != tt.encoding || cfg.GetSampleRateHertz() != tt.rate {
				t.Errorf("config = %v/%d, want %v/%d", cfg.GetEncoding(), cfg.GetSampleRateHertz(), tt.encoding, tt.rate)
			}
		})
	}
}

func TestRecognitionConfigOgg(t *testing.T) {
	tests := []struct {
		name string
		rate uint32
		want int32
	}{
		{"supported_rate", 16000, 16000},
		{"unsupported_rate", 44100, 48000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeAudioFile(t, "clip.ogg", opusHeadPage(tt.rate))
			cfg := recognitionConfig(path, "en-US")
			if cfg.GetEncoding() != speechpb.RecognitionConfig_OGG_OPUS {
				t.Errorf("encoding = %v, want OGG_OPUS", cfg.GetEncoding())
			}
			if cfg.GetSampleRateHertz() != tt.want {
				t.Errorf("sample rate = %d, want %d", cfg.GetSampleRateHertz(), tt.want)
			}
		})
	}

	// Unparseable ogg still gets an explicit opus encoding.
	cfg := recognitionConfig(writeAudioFile(t, "junk.ogg", []byte("junk")), "en-US")
	if cfg.GetSampleRateHertz() != 48000 {
		t.Errorf("junk ogg sample rate = %d, want 48000", cfg.GetSampleRateHertz())
	}
}

// opusHeadPage builds a single beginning-of-stream Ogg page carrying an
// OpusHead identification header.
func opusHeadPage(rate uint32) []byte {
	head := make([]byte, 19)
	copy(head, "OpusHead")
	head[8] = 1 // version
	head[9] = 1 // channels
	binary.LittleEndian.PutUint16(head[10:], 312)
	binary.LittleEndian.PutUint32(head[12:], rate)

	page := make([]byte, 0, 27+1+len(head))
	page = append(page, "OggS"...)
	page = append(page, 0, 2)               // version, BOS
	page = append(page, make([]byte, 8)...) // granule
	page = binary.LittleEndian.AppendUint32(page, 1)
	page = binary.LittleEndian.AppendUint32(page, 0)
	page = append(page, 0, 0, 0, 0) // crc placeholder
	page = append(page, 1, byte(len(head)))
	page = append(page, head...)

	binary.LittleEndian.PutUint32(page[22:], oggCRC(page))
	return page
}

func oggCRC(b []byte) uint32 {
	var table [256]uint32
	for i := range table {
		r := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if r&0x80000000 != 0 {
				r = (r << 1) ^ 0x04c11db7
			} else {
				r <<= 1
			}
		}
		table[i] = r
	}
	var crc uint32
	for _, v := range b {
		crc = (crc << 8) ^ table[byte(crc>>24)^v]
	}
	return crc
}
