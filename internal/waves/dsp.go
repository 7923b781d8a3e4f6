package waves

import (
	"math"

	"github.com/asaficontact/reflective-resonance/pkg/audio"
)

// Pitch tracking bounds, C2..C7.
const (
	pitchMinHz = 65.406
	pitchMaxHz = 2093.005
)

// frameAt extracts a zero-padded window of length n centered at sample c.
func frameAt(y []float64, c, n int) []float64 {
	w := make([]float64, n)
	start := c - n/2
	for i := range w {
		idx := start + i
		if idx >= 0 && idx < len(y) {
			w[i] = y[idx]
		}
	}
	return w
}

// numFrames is the centered frame count for a signal and hop size.
func numFrames(n, hop int) int {
	return n/hop + 1
}

// stftMagnitudes computes the centered magnitude spectrogram:
// mags[frame][bin], bins 0..nfft/2, Hann window of length nfft.
func stftMagnitudes(y []float64, nfft, hop int) [][]float64 {
	window := audio.HannWindow(nfft)
	frames := numFrames(len(y), hop)
	mags := make([][]float64, frames)

	re := make([]float64, nfft)
	im := make([]float64, nfft)
	for f := 0; f < frames; f++ {
		w := frameAt(y, f*hop, nfft)
		for i := 0; i < nfft; i++ {
			re[i] = w[i] * window[i]
			im[i] = 0
		}
		audio.FFT(re, im)

		bins := make([]float64, nfft/2+1)
		for b := range bins {
			bins[b] = math.Hypot(re[b], im[b])
		}
		mags[f] = bins
	}
	return mags
}

// rmsEnvelope computes the centered per-frame RMS of y.
func rmsEnvelope(y []float64, frameLen, hop int) []float64 {
	frames := numFrames(len(y), hop)
	env := make([]float64, frames)
	for f := 0; f < frames; f++ {
		w := frameAt(y, f*hop, frameLen)
		var sum float64
		for _, v := range w {
			sum += v * v
		}
		env[f] = math.Sqrt(sum / float64(frameLen))
	}
	return env
}

// trackPitch estimates a fundamental-frequency contour via normalized
// autocorrelation over centered frames. Unvoiced frames report 0.
func trackPitch(y []float64, sr, hop int) []float64 {
	const (
		windowLen       = 512
		voicingMin      = 0.5
		silenceRMSFloor = 1e-4
	)
	minLag := int(float64(sr) / pitchMaxHz)
	if minLag < 2 {
		minLag = 2
	}
	maxLag := int(float64(sr) / pitchMinHz)

	frames := numFrames(len(y), hop)
	f0 := make([]float64, frames)
	for f := 0; f < frames; f++ {
		w := frameAt(y, f*hop, windowLen)

		var energy float64
		for _, v := range w {
			energy += v * v
		}
		if math.Sqrt(energy/float64(windowLen)) < silenceRMSFloor {
			continue
		}

		bestLag, bestCorr := 0, 0.0
		for lag := minLag; lag <= maxLag && lag < windowLen; lag++ {
			var num, den1, den2 float64
			for i := 0; i+lag < windowLen; i++ {
				num += w[i] * w[i+lag]
				den1 += w[i] * w[i]
				den2 += w[i+lag] * w[i+lag]
			}
			den := math.Sqrt(den1 * den2)
			if den == 0 {
				continue
			}
			if corr := num / den; corr > bestCorr {
				bestCorr = corr
				bestLag = lag
			}
		}
		if bestLag > 0 && bestCorr >= voicingMin {
			f0[f] = float64(sr) / float64(bestLag)
		}
	}
	return f0
}

// interp is linear interpolation with np.interp edge semantics: xs outside
// [xp[0], xp[len-1]] clamp to the boundary values. xp must be increasing.
func interp(xs, xp, fp []float64) []float64 {
	out := make([]float64, len(xs))
	j := 0
	for i, x := range xs {
		switch {
		case x <= xp[0]:
			out[i] = fp[0]
		case x >= xp[len(xp)-1]:
			out[i] = fp[len(fp)-1]
		default:
			for xp[j+1] < x {
				j++
			}
			t := (x - xp[j]) / (xp[j+1] - xp[j])
			out[i] = fp[j] + t*(fp[j+1]-fp[j])
		}
	}
	return out
}

// corrCoef is the Pearson correlation coefficient of equal-length series.
func corrCoef(a, b []float64) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return 0
	}
	ma, mb := mean(a), mean(b)
	var cov, va, vb float64
	for i := 0; i < n; i++ {
		da, db := a[i]-ma, b[i]-mb
		cov += da * db
		va += da * da
		vb += db * db
	}
	den := math.Sqrt(va * vb)
	if den == 0 {
		return 0
	}
	return cov / den
}

func mean(xs []float64) float64 {
	var sum float64
	for _, v := range xs {
		sum += v
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	m := mean(xs)
	var sum float64
	for _, v := range xs {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}
