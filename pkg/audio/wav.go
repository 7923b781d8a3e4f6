// Package audio provides the PCM plumbing shared by the TTS and wave
// decomposition layers: WAV framing, channel and sample-rate conversion, and
// a small FFT used for spectral envelope extraction.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotWAV is returned when the input bytes do not start with a RIFF/WAVE header.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE file")

// PCMToWAV wraps raw little-endian int16 PCM in a canonical WAV container.
func PCMToWAV(pcm []byte, sampleRate, channels int) []byte {
	const bitsPerSample = 16
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign
	dataLen := len(pcm)

	buf := make([]byte, 0, 44+dataLen)
	w := func(b ...byte) { buf = append(buf, b...) }
	u32 := func(v uint32) {
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], v)
		buf = append(buf, tmp[:]...)
	}
	u16 := func(v uint16) {
		var tmp [2]byte
		binary.LittleEndian.PutUint16(tmp[:], v)
		buf = append(buf, tmp[:]...)
	}

	w([]byte("RIFF")...)
	u32(uint32(36 + dataLen))
	w([]byte("WAVE")...)
	w([]byte("fmt ")...)
	u32(16)
	u16(1) // PCM
	u16(uint16(channels))
	u32(uint32(sampleRate))
	u32(uint32(byteRate))
	u16(uint16(blockAlign))
	u16(bitsPerSample)
	w([]byte("data")...)
	u32(uint32(dataLen))
	buf = append(buf, pcm...)
	return buf
}

// WriteWAV writes mono 16-bit PCM to path as a WAV file, creating parent
// directories as needed.
func WriteWAV(path string, pcm []byte, sampleRate int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("audio: mkdir for %q: %w", path, err)
	}
	if err := os.WriteFile(path, PCMToWAV(pcm, sampleRate, 1), 0o644); err != nil {
		return fmt.Errorf("audio: write %q: %w", path, err)
	}
	return nil
}

// DecodeWAV parses a 16-bit PCM WAV file and returns the raw sample bytes
// together with the sample rate and channel count.
func DecodeWAV(data []byte) (pcm []byte, sampleRate, channels int, err error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, 0, ErrNotWAV
	}

	var bitsPerSample int
	pos := 12
	for pos+8 <= len(data) {
		chunkID := string(data[pos : pos+4])
		chunkLen := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if body+chunkLen > len(data) {
			chunkLen = len(data) - body
		}
		switch chunkID {
		case "fmt ":
			if chunkLen < 16 {
				return nil, 0, 0, errors.New("audio: short fmt chunk")
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 {
				return nil, 0, 0, fmt.Errorf("audio: unsupported WAV format %d (want PCM)", format)
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			pcm = data[body : body+chunkLen]
		}
		// Chunks are word-aligned.
		pos = body + chunkLen + chunkLen%2
	}

	if sampleRate == 0 || channels == 0 {
		return nil, 0, 0, errors.New("audio: missing fmt chunk")
	}
	if bitsPerSample != 16 {
		return nil, 0, 0, fmt.Errorf("audio: unsupported bit depth %d (want 16)", bitsPerSample)
	}
	if pcm == nil {
		return nil, 0, 0, errors.New("audio: missing data chunk")
	}
	return pcm, sampleRate, channels, nil
}

// LoadMono reads a 16-bit PCM WAV file, downmixes to mono, resamples to
// targetRate, and returns normalized float64 samples in [-1, 1].
func LoadMono(path string, targetRate int) ([]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("audio: read %q: %w", path, err)
	}
	pcm, rate, channels, err := DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("audio: decode %q: %w", path, err)
	}
	if channels == 2 {
		pcm = StereoToMono(pcm)
	}
	if rate != targetRate {
		pcm = ResampleMono16(pcm, rate, targetRate)
	}
	return Float64FromPCM16(pcm), nil
}

// Float64FromPCM16 converts little-endian int16 PCM bytes to float64 samples
// normalized to [-1, 1].
func Float64FromPCM16(pcm []byte) []float64 {
	n := len(pcm) / 2
	out := make([]float64, n)
	for i := range n {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float64(s) / 32768.0
	}
	return out
}

// PCM16FromFloat64 converts float64 samples in [-1, 1] to little-endian int16
// PCM bytes, clamping out-of-range values.
func PCM16FromFloat64(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := s * 32767.0
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		iv := int16(v)
		out[i*2] = byte(iv)
		out[i*2+1] = byte(iv >> 8)
	}
	return out
}
