package transcribe

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func writeWAV(t *testing.T, rate, channels int, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	data := make([]int, frames*channels)
	for i := 0; i < frames; i++ {
		v := int(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
		for ch := 0; ch < channels; ch++ {
			data[i*channels+ch] = v
		}
	}

	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("wav write: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("wav close: %v", err)
	}
	return path
}

func TestDecodePCMWav(t *testing.T) {
	tests := []struct {
		name     string
		rate     int
		channels int
	}{
		{"16k_mono", 16000, 1},
		{"8k_stereo", 8000, 2},
		{"44k_mono", 44100, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// one second of audio
			path := writeWAV(t, tt.rate, tt.channels, tt.rate)
			samples, err := DecodePCM(context.Background(), path)
			if err != nil {
				t.Fatalf("DecodePCM: %v", err)
			}
			if n := len(samples); n < TargetSampleRate*95/100 || n > TargetSampleRate*105/100 {
				t.Errorf("got %d samples, want about %d", n, TargetSampleRate)
			}
			for _, s := range samples {
				if s < -1 || s > 1 {
					t.Fatalf("sample %v out of range", s)
				}
			}
		})
	}
}

func TestDecodePCMInvalidWav(t *testing.T) {
	path := writeAudioFile(t, "bad.wav", []byte("definitely not riff"))
	if _, err := DecodePCM(context.Background(), path); err == nil {
		t.Error("expected error for invalid wav")
	}
}

func TestTo16Bit(t *testing.T) {
	tests := []struct {
		v, depth, want int
	}{
		{128, 8, 0},
		{255, 8, 127 << 8},
		{1000, 16, 1000},
		{1 << 23, 24, 1 << 15},
		{100, 12, 1600},
	}
	for _, tt := range tests {
		if got := to16Bit(tt.v, tt.depth); got != tt.want {
			t.Errorf("to16Bit(%d, %d) = %d, want %d", tt.v, tt.depth, got, tt.want)
		}
	}
}

func TestDownmix(t *testing.T) {
	got := downmix([]int16{100, 200, -50, 50, 32767, 32767}, 2)
	want := []int16{150, 0, 32767}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestPCMFromBytesTrimsTail(t *testing.T) {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint16(buf[0:], 1)
	binary.LittleEndian.PutUint16(buf[2:], uint16(0xFFFF)) // -1
	got := pcmFromBytes(buf)
	if len(got) != 2 || got[0] != 1 || got[1] != -1 {
		t.Errorf("pcmFromBytes = %v, want [1 -1]", got)
	}
}

func TestResampleNoop(t *testing.T) {
	in := []int16{1, 2, 3}
	if got := resampleInt16(in, 16000, 16000); len(got) != 3 {
		t.Errorf("same-rate resample changed length to %d", len(got))
	}
}
