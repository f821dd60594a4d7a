package audioengine

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// RMS returns the root mean square of a sample window.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Level maps a sample window to a 0..1 loudness estimate: RMS scaled by
// headroom and capped at 1.
func Level(samples []float64, headroom float64) float64 {
	return math.Min(RMS(samples)*headroom, 1)
}

// Spectrum returns the mean magnitude of `bands` equal-width frequency bands
// of a Hann-windowed FFT over the samples.
func Spectrum(samples []float64, bands int) []float64 {
	out := make([]float64, bands)
	if bands <= 0 || len(samples) < 2 {
		return out
	}

	windowed := make([]float64, len(samples))
	copy(windowed, samples)
	window.Apply(windowed, window.Hann)

	coeffs := fft.FFTReal(windowed)
	half := len(coeffs) / 2
	if half < bands {
		bands = half
	}
	per := half / bands
	norm := float64(len(samples)) / 2

	for b := 0; b < bands; b++ {
		var sum float64
		for i := b * per; i < (b+1)*per; i++ {
			sum += cmplx.Abs(coeffs[i])
		}
		out[b] = sum / float64(per) / norm
	}
	return out
}
