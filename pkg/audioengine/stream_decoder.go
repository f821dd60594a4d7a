package audioengine

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"stemdeck/pkg/spec"

	"github.com/hraban/opus"
)

var ErrNotOpusStream = errors.New("audioengine: not a framed opus stream")

// maxFrameSamples is the largest opus frame (120ms at 48kHz) per channel.
const maxFrameSamples = 5760

type StreamDecoder struct {
	dec *opus.Decoder
	pcm []int16
}

func NewStreamDecoder(rate, channels int) (*StreamDecoder, error) {
	d, err := opus.NewDecoder(rate, channels)
	if err != nil {
		return nil, err
	}
	return &StreamDecoder{dec: d, pcm: make([]int16, maxFrameSamples*channels)}, nil
}

// DecodeFrame decodes one opus packet and appends the stereo frames to dst.
func (sd *StreamDecoder) DecodeFrame(frame []byte, dst [][2]float64) ([][2]float64, error) {
	n, err := sd.dec.Decode(frame, sd.pcm)
	if err != nil {
		return dst, err
	}
	return Int16ToFloat(sd.pcm[:n*spec.Channels], dst), nil
}

// DecodeOpusStream decodes a whole framed container: the magic followed by
// [uint16 BE length][packet] records.
func DecodeOpusStream(data []byte) ([][2]float64, error) {
	if !bytes.HasPrefix(data, []byte(spec.OpusStreamMagic)) {
		return nil, ErrNotOpusStream
	}
	sd, err := NewStreamDecoder(spec.SampleRate, spec.Channels)
	if err != nil {
		return nil, err
	}

	r := bytes.NewReader(data[len(spec.OpusStreamMagic):])
	var out [][2]float64
	for {
		var sz uint16
		if err := binary.Read(r, binary.BigEndian, &sz); err != nil {
			if err == io.EOF {
				return out, nil
			}
			return nil, fmt.Errorf("frame header: %w", err)
		}
		frame := make([]byte, sz)
		if _, err := io.ReadFull(r, frame); err != nil {
			return nil, fmt.Errorf("frame body: %w", err)
		}
		if out, err = sd.DecodeFrame(frame, out); err != nil {
			return nil, fmt.Errorf("opus packet: %w", err)
		}
	}
}
