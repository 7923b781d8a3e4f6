// Package waves runs the CPU-bound audio decomposition that turns each TTS
// take into low-frequency wave components for the installation's transducers.
//
// The kernel estimates the speech's pitch contour, extracts per-harmonic
// amplitude envelopes from the spectrogram, re-synthesizes cosine carriers in
// each target slot's frequency band, and gain-matches the mix against the
// original RMS envelope so the water moves with the voice.
package waves

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/asaficontact/reflective-resonance/pkg/audio"
	"github.com/asaficontact/reflective-resonance/pkg/types"
)

const (
	processingRate = 8000
	hopLength      = 128
	nFFT           = 512
	envFrameLen    = 512

	// gainCap bounds the dynamic gain so silence does not explode the mix.
	gainCap = 10.0
)

// slotFreqRanges maps physical slots to carrier bands. The dome is symmetric:
// high on the outer ring, low in the center.
var slotFreqRanges = map[int][2]float64{
	1: {80.0, 100.0},
	2: {50.0, 70.0},
	3: {20.0, 40.0},
	4: {20.0, 40.0},
	5: {50.0, 70.0},
	6: {80.0, 100.0},
}

// Decompose splits the input WAV into job.NWaves wave component files under
// job.OutputDir, named <basename>_v3_wave<k>.wav. It never panics; failures
// come back in the result record.
func Decompose(job types.DecomposeJob) types.DecomposeResult {
	start := time.Now()
	res := types.DecomposeResult{Job: job}
	fail := func(err error) types.DecomposeResult {
		res.Err = err.Error()
		res.Metrics.DurationMS = float64(time.Since(start)) / float64(time.Millisecond)
		return res
	}

	if _, err := os.Stat(job.InputPath); err != nil {
		return fail(fmt.Errorf("input file not found: %s", job.InputPath))
	}
	if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
		return fail(err)
	}

	y, err := audio.LoadMono(job.InputPath, processingRate)
	if err != nil {
		return fail(err)
	}
	if len(y) == 0 {
		return fail(fmt.Errorf("empty audio: %s", job.InputPath))
	}

	sr := processingRate
	nWaves := job.NWaves
	if nWaves <= 0 {
		nWaves = 2
	}

	// Pitch contour, per centered frame then interpolated to sample level.
	f0 := trackPitch(y, sr, hopLength)

	timesSamples := make([]float64, len(y))
	for i := range timesSamples {
		timesSamples[i] = float64(i) / float64(sr)
	}
	timesFrames := make([]float64, len(f0))
	for i := range timesFrames {
		timesFrames[i] = float64(i*hopLength) / float64(sr)
	}
	f0Interp := interp(timesSamples, timesFrames, f0)

	minF0, maxF0 := f0Range(f0)

	targets := job.WaveTargets()
	useSlotMapping := len(targets) == nWaves
	for _, slot := range targets {
		if _, ok := slotFreqRanges[slot]; !ok {
			useSlotMapping = false
		}
	}

	// Per-harmonic amplitude envelopes from the spectrogram.
	mags := stftMagnitudes(y, nFFT, hopLength)
	amplitudes := make([][]float64, nWaves)
	for h := 1; h <= nWaves; h++ {
		amplitudes[h-1] = harmonicAmplitude(mags, f0, h, sr, timesSamples, timesFrames)
	}

	rawWaves := make([][]float64, nWaves)
	for i, amp := range amplitudes {
		if useSlotMapping {
			band := slotFreqRanges[targets[i]]
			rawWaves[i] = synthesizeInBand(f0Interp, minF0, maxF0, band, amp, sr)
		} else {
			rawWaves[i] = synthesizeHarmonic(f0Interp, minF0, maxF0, i+1, amp, sr)
		}
	}

	rawMix := sumWaves(rawWaves)

	// Dynamic amplitude matching: force the mix envelope onto the original's.
	envOriginal := rmsEnvelope(y, envFrameLen, hopLength)
	envMix := rmsEnvelope(rawMix, envFrameLen, hopLength)
	gainFrames := make([]float64, len(envOriginal))
	for i := range gainFrames {
		gainFrames[i] = envOriginal[i] / (envMix[i] + 1e-8)
	}
	gain := interp(timesSamples, timesFrames, gainFrames)
	for i := range gain {
		gain[i] = math.Min(math.Max(gain[i], 0), gainCap)
	}

	finalWaves := make([][]float64, nWaves)
	for i, w := range rawWaves {
		out := make([]float64, len(w))
		for j := range w {
			out[j] = w[j] * gain[j]
		}
		finalWaves[i] = out
	}
	mix := sumWaves(finalWaves)

	res.Metrics = qualityMetrics(y, mix, envOriginal)

	basename := job.TTSBasename
	if basename == "" {
		basename = trimExt(filepath.Base(job.InputPath))
	}
	for i, w := range finalWaves {
		outPath := filepath.Join(job.OutputDir, fmt.Sprintf("%s_v3_wave%d.wav", basename, i+1))
		if err := audio.WriteWAV(outPath, audio.PCM16FromFloat64(w), sr); err != nil {
			return fail(err)
		}
		res.WavePaths = append(res.WavePaths, outPath)
	}

	res.Success = true
	res.Metrics.DurationMS = float64(time.Since(start)) / float64(time.Millisecond)
	return res
}

// f0Range extracts the voiced pitch extent, with a fallback for silent or
// unvoiced audio and a degenerate-range guard.
func f0Range(f0 []float64) (minF0, maxF0 float64) {
	minF0, maxF0 = math.Inf(1), math.Inf(-1)
	for _, v := range f0 {
		if v > 0 {
			minF0 = math.Min(minF0, v)
			maxF0 = math.Max(maxF0, v)
		}
	}
	if math.IsInf(minF0, 1) {
		return 100.0, 300.0
	}
	if maxF0 == minF0 {
		maxF0 += 1.0
	}
	return minF0, maxF0
}

// harmonicAmplitude reads the spectrogram magnitude at each frame's h-th
// harmonic bin, zeroes unvoiced frames, and interpolates to sample level.
func harmonicAmplitude(mags [][]float64, f0 []float64, h, sr int, timesSamples, timesFrames []float64) []float64 {
	nBins := len(mags[0])
	amps := make([]float64, len(f0))
	binHz := float64(sr) / float64(nFFT)
	for f := range f0 {
		if f0[f] <= 0 || f >= len(mags) {
			continue
		}
		bin := int(math.Round(f0[f] * float64(h) / binHz))
		if bin < 0 {
			bin = 0
		}
		if bin >= nBins {
			bin = nBins - 1
		}
		amps[f] = mags[f][bin]
	}
	out := interp(timesSamples, timesFrames, amps)
	// Baseline normalization plus a fixed x3 gain.
	norm := (2.0 / float64(nFFT)) * 3.0
	for i := range out {
		out[i] *= norm
	}
	return out
}

// synthesizeInBand maps the pitch contour linearly into the slot band and
// synthesizes a cosine carrier under the amplitude envelope.
func synthesizeInBand(f0Interp []float64, minF0, maxF0 float64, band [2]float64, amp []float64, sr int) []float64 {
	lo, hi := band[0], band[1]
	wave := make([]float64, len(f0Interp))
	var phase float64
	for i, f := range f0Interp {
		var mapped float64
		if f > 0 {
			if maxF0 > minF0 {
				mapped = lo + (f-minF0)/(maxF0-minF0)*(hi-lo)
			} else {
				mapped = (lo + hi) / 2
			}
		}
		phase += 2 * math.Pi * mapped / float64(sr)
		wave[i] = amp[i] * math.Cos(phase)
	}
	return wave
}

// synthesizeHarmonic is the legacy mapping used when no slot targets are
// given: pitch maps into 15-80 Hz and each wave is a harmonic multiple.
func synthesizeHarmonic(f0Interp []float64, minF0, maxF0 float64, harmonic int, amp []float64, sr int) []float64 {
	wave := make([]float64, len(f0Interp))
	var phase float64
	for i, f := range f0Interp {
		var mapped float64
		if f > 0 {
			mapped = 15.0 + (f-minF0)/(maxF0-minF0)*(80.0-15.0)
		}
		phase += 2 * math.Pi * mapped * float64(harmonic) / float64(sr)
		wave[i] = amp[i] * math.Cos(phase)
	}
	return wave
}

func sumWaves(waves [][]float64) []float64 {
	out := make([]float64, len(waves[0]))
	for _, w := range waves {
		for i, v := range w {
			out[i] += v
		}
	}
	return out
}

// qualityMetrics reports how closely the synthetic mix tracks the original.
func qualityMetrics(y, mix, envOriginal []float64) types.QualityMetrics {
	var mse, power float64
	for i := range y {
		d := y[i] - mix[i]
		mse += d * d
		power += y[i] * y[i]
	}
	mse /= float64(len(y))
	power /= float64(len(y))

	rmse := math.Sqrt(mse)
	envMix := rmsEnvelope(mix, envFrameLen, hopLength)
	n := min(len(envOriginal), len(envMix))

	return types.QualityMetrics{
		RMSE:    rmse,
		NRMSE:   rmse / (stddev(y) + 1e-10),
		SNRdB:   10 * math.Log10(power/(mse+1e-10)),
		EnvCorr: corrCoef(envOriginal[:n], envMix[:n]),
	}
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
