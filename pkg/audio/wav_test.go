package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestPCMToWAVDecodeRoundTrip(t *testing.T) {
	pcm := []byte{0x01, 0x00, 0xff, 0x7f, 0x00, 0x80, 0x34, 0x12}

	wav := PCMToWAV(pcm, 24000, 1)
	got, rate, channels, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if rate != 24000 {
		t.Errorf("sample rate = %d, want 24000", rate)
	}
	if channels != 1 {
		t.Errorf("channels = %d, want 1", channels)
	}
	if len(got) != len(pcm) {
		t.Fatalf("data length = %d, want %d", len(got), len(pcm))
	}
	for i := range got {
		if got[i] != pcm[i] {
			t.Fatalf("data[%d] = %#x, want %#x", i, got[i], pcm[i])
		}
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, _, _, err := DecodeWAV([]byte("definitely not audio")); err == nil {
		t.Error("expected error for non-WAV input")
	}
}

func TestWriteWAVCreatesParentDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deeper", "out.wav")

	if err := WriteWAV(path, make([]byte, 64), 8000); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("written file missing: %v", err)
	}
}

func TestLoadMonoResamplesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tone.wav")

	// 440 Hz sine at 16 kHz, half a second.
	const srcRate = 16000
	n := srcRate / 2
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/srcRate)
	}
	if err := WriteWAV(path, PCM16FromFloat64(samples), srcRate); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}

	got, err := LoadMono(path, 8000)
	if err != nil {
		t.Fatalf("LoadMono: %v", err)
	}
	wantLen := n / 2
	if got == nil || abs(len(got)-wantLen) > 1 {
		t.Fatalf("resampled length = %d, want ~%d", len(got), wantLen)
	}
	for i, s := range got {
		if s < -1 || s > 1 {
			t.Fatalf("sample %d = %f out of [-1, 1]", i, s)
		}
	}
}

func TestFloat64PCM16RoundTrip(t *testing.T) {
	in := []float64{0, 0.25, -0.25, 0.999, -0.999}
	out := Float64FromPCM16(PCM16FromFloat64(in))
	for i := range in {
		if math.Abs(out[i]-in[i]) > 1.0/32768 {
			t.Errorf("sample %d: got %f, want %f", i, out[i], in[i])
		}
	}
}

func TestFFTPureTonePeak(t *testing.T) {
	const n = 512
	const bin = 32
	re := make([]float64, n)
	im := make([]float64, n)
	for i := range re {
		re[i] = math.Cos(2 * math.Pi * bin * float64(i) / n)
	}

	FFT(re, im)

	peak, peakIdx := 0.0, 0
	for i := 0; i < n/2; i++ {
		mag := math.Hypot(re[i], im[i])
		if mag > peak {
			peak, peakIdx = mag, i
		}
	}
	if peakIdx != bin {
		t.Errorf("peak at bin %d, want %d", peakIdx, bin)
	}
	// A unit cosine concentrates n/2 of energy in the positive-frequency bin.
	if math.Abs(peak-n/2) > 1 {
		t.Errorf("peak magnitude = %f, want ~%d", peak, n/2)
	}
}

func TestStereoToMonoAverages(t *testing.T) {
	// One stereo frame: L=100, R=300 → mono 200.
	in := []byte{100, 0, 44, 1}
	out := StereoToMono(in)
	got := int16(out[0]) | int16(out[1])<<8
	if got != 200 {
		t.Errorf("mono sample = %d, want 200", got)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
