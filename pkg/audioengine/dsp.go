package audioengine

// Clamp limits a sample to the [-1, 1] range of the output device.
func Clamp(v float64) float64 {
	if v > 1 {
		return 1
	} else if v < -1 {
		return -1
	}
	return v
}

// ApplyQuickGain scales a block of stereo frames in place without clamping.
func ApplyQuickGain(samples [][2]float64, factor float64) {
	if factor == 1 {
		return
	}
	for i := range samples {
		samples[i][0] *= factor
		samples[i][1] *= factor
	}
}

// Int16ToFloat converts interleaved stereo int16 PCM into beep frames.
func Int16ToFloat(pcm []int16, dst [][2]float64) [][2]float64 {
	for i := 0; i+1 < len(pcm); i += 2 {
		dst = append(dst, [2]float64{
			float64(pcm[i]) / 32768.0,
			float64(pcm[i+1]) / 32768.0,
		})
	}
	return dst
}
