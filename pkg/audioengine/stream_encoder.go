package audioengine

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"stemdeck/pkg/spec"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hraban/opus"
)

// StreamEncodeWavToOpus reads a 48kHz stereo WAV and writes the framed opus
// container consumed by DecodeOpusStream. It returns the encoded duration.
func StreamEncodeWavToOpus(in io.ReadSeeker, out io.Writer) (time.Duration, error) {
	dec := wav.NewDecoder(in)
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("not a valid wav file")
	}
	if int(dec.SampleRate) != spec.SampleRate || int(dec.NumChans) != spec.Channels {
		return 0, fmt.Errorf("wav must be %dHz/%dch, got %dHz/%dch",
			spec.SampleRate, spec.Channels, dec.SampleRate, dec.NumChans)
	}
	if err := dec.FwdToPCM(); err != nil {
		return 0, fmt.Errorf("seek pcm: %w", err)
	}

	enc, err := opus.NewEncoder(spec.SampleRate, spec.Channels, opus.AppAudio)
	if err != nil {
		return 0, err
	}

	if _, err := io.WriteString(out, spec.OpusStreamMagic); err != nil {
		return 0, err
	}

	frameSize := spec.SampleRate * spec.FrameSize / 1000
	pcmBuf := make([]int16, frameSize*spec.Channels)
	opusBuf := make([]byte, 1500)
	shift := uint(0)
	if dec.BitDepth > 16 {
		shift = uint(dec.BitDepth - 16)
	}

	// one second of interleaved samples per read
	intBuf := &audio.IntBuffer{
		Data:   make([]int, spec.SampleRate*spec.Channels),
		Format: &audio.Format{NumChannels: spec.Channels, SampleRate: spec.SampleRate},
	}

	totalSamples := 0
	for {
		n, err := dec.PCMBuffer(intBuf)
		if err != nil && err != io.EOF {
			return 0, err
		}
		if n == 0 {
			break
		}

		for i := 0; i < n; i += len(pcmBuf) {
			batch := len(pcmBuf)
			if i+batch > n {
				batch = n - i
				for j := range pcmBuf {
					pcmBuf[j] = 0
				}
			}
			for j := 0; j < batch; j++ {
				pcmBuf[j] = int16(intBuf.Data[i+j] >> shift)
			}

			size, err := enc.Encode(pcmBuf, opusBuf)
			if err != nil {
				return 0, fmt.Errorf("opus encode: %w", err)
			}
			if err := binary.Write(out, binary.BigEndian, uint16(size)); err != nil {
				return 0, err
			}
			if _, err := out.Write(opusBuf[:size]); err != nil {
				return 0, err
			}
			totalSamples += batch
		}

		if err == io.EOF {
			break
		}
	}

	frames := totalSamples / spec.Channels
	return time.Duration(frames) * time.Second / spec.SampleRate, nil
}
