package transcribe

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/pion/opus"
	"github.com/pion/opus/pkg/oggreader"
	"github.com/zeozeozeo/gomplerate"
)

const (
	// TargetSampleRate is what whisper.cpp expects.
	TargetSampleRate = 16000
	maxOpusFrame     = 5760 // 120ms at 48kHz
)

var errNoSamples = errors.New("no audio samples decoded")

// DecodePCM converts an audio file to 16kHz mono float32 samples in [-1, 1].
// WAV is decoded in-process. OGG/Opus uses ffmpeg when installed and falls
// back to a pure Go decoder; other formats need ffmpeg.
func DecodePCM(ctx context.Context, path string) ([]float32, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return decodeWAV(path)
	case ".ogg", ".opus", ".oga":
		if ffmpegAvailable() {
			return decodeWithFFmpeg(ctx, path)
		}
		samples, err := decodeOggOpusSafe(path)
		if err != nil {
			return nil, fmt.Errorf("ogg decode failed (%v); install ffmpeg for reliable conversion", err)
		}
		return samples, nil
	default:
		if ffmpegAvailable() {
			return decodeWithFFmpeg(ctx, path)
		}
		return nil, fmt.Errorf("decoding %s requires ffmpeg in PATH", filepath.Ext(path))
	}
}

func decodeWAV(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("not a valid wav file")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read wav samples: %w", err)
	}

	channels := int(d.NumChans)
	if channels < 1 {
		channels = 1
	}
	depth := int(d.BitDepth)

	frames := len(buf.Data) / channels
	if frames == 0 {
		return nil, errNoSamples
	}
	mono := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var sum int
		for ch := 0; ch < channels; ch++ {
			sum += to16Bit(buf.Data[i*channels+ch], depth)
		}
		mono[i] = int16(sum / channels) // #nosec G115 - average of int16-range values
	}

	return int16ToFloat32(resampleInt16(mono, int(d.SampleRate), TargetSampleRate)), nil
}

// to16Bit rescales a PCM sample of the given bit depth to the int16 range.
// 8-bit WAV is unsigned.
func to16Bit(v, depth int) int {
	switch {
	case depth == 8:
		return (v - 128) << 8
	case depth > 16:
		return v >> (depth - 16)
	case depth > 0 && depth < 16:
		return v << (16 - depth)
	}
	return v
}

// decodeOggOpusSafe guards the pure Go decoder, which can panic on some files.
func decodeOggOpusSafe(path string) (samples []float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			samples = nil
			err = fmt.Errorf("decoder panic: %v", r)
		}
	}()
	return decodeOggOpus(path)
}

func decodeOggOpus(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	ogg, header, err := oggreader.NewWith(f)
	if err != nil {
		return nil, fmt.Errorf("parse ogg container: %w", err)
	}

	decoder := opus.NewDecoder()
	out := make([]byte, maxOpusFrame*2*2)

	var all []int16
	for {
		segments, _, err := ogg.ParseNextPage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse ogg page: %w", err)
		}
		for _, seg := range segments {
			if len(seg) == 0 {
				continue
			}
			clear(out)
			_, stereo, err := decoder.Decode(seg, out)
			if err != nil {
				continue
			}
			pcm := pcmFromBytes(out)
			if stereo {
				pcm = downmix(pcm, 2)
			}
			all = append(all, pcm...)
		}
	}
	if len(all) == 0 {
		return nil, errNoSamples
	}

	return int16ToFloat32(resampleInt16(all, int(header.SampleRate), TargetSampleRate)), nil
}

// pcmFromBytes reads little-endian int16 samples, dropping the zeroed tail
// the decoder leaves unused in its output buffer.
func pcmFromBytes(buf []byte) []int16 {
	end := len(buf) &^ 1
	for end >= 2 && buf[end-1] == 0 && buf[end-2] == 0 {
		end -= 2
	}
	samples := make([]int16, end/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2:])) // #nosec G115 - reinterpreting PCM bits
	}
	return samples
}

func downmix(samples []int16, channels int) []int16 {
	mono := make([]int16, len(samples)/channels)
	for i := range mono {
		var sum int32
		for ch := 0; ch < channels; ch++ {
			sum += int32(samples[i*channels+ch])
		}
		mono[i] = int16(sum / int32(channels)) // #nosec G115 - average stays in range
	}
	return mono
}

func resampleInt16(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || fromRate <= 0 {
		return samples
	}
	r, err := gomplerate.NewResampler(1, fromRate, toRate)
	if err != nil {
		return samples
	}
	return r.ResampleInt16(samples)
}

func int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

func ffmpegAvailable() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// decodeWithFFmpeg pipes raw s16le 16kHz mono out of ffmpeg's stdout.
func decodeWithFFmpeg(ctx context.Context, path string) ([]float32, error) {
	// #nosec G204 - path is a temp file created by this process
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-nostdin", "-loglevel", "error",
		"-i", path,
		"-ar", fmt.Sprintf("%d", TargetSampleRate),
		"-ac", "1",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"pipe:1",
	)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	raw, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:])) // #nosec G115 - reinterpreting PCM bits
	}
	if len(samples) == 0 {
		return nil, errNoSamples
	}
	return int16ToFloat32(samples), nil
}
