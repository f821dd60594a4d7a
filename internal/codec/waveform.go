package codec

import (
	"math"

	"github.com/faiface/beep"
)

// waveformBoost lifts typical mastered material into the visible range.
const waveformBoost = 5.0

// Waveform reduces a buffer to `points` RMS amplitudes (0-255) for drawing
// an overview of the stem.
func Waveform(buf *beep.Buffer, points int) []byte {
	if buf == nil || points <= 0 || buf.Len() == 0 {
		return nil
	}
	step := buf.Len() / points
	if step == 0 {
		step = 1
	}

	s := buf.Streamer(0, buf.Len())
	block := make([][2]float64, step)
	waveform := make([]byte, 0, points)

	for len(waveform) < points {
		n, ok := s.Stream(block)
		if n == 0 || !ok {
			break
		}
		var sum float64
		for _, f := range block[:n] {
			m := (f[0] + f[1]) / 2
			sum += m * m
		}
		rms := math.Sqrt(sum / float64(n))
		waveform = append(waveform, uint8(math.Min(rms*255.0*waveformBoost, 255.0)))
	}
	return waveform
}
