package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"stemdeck/pkg/audioengine"
	"stemdeck/pkg/spec"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/go-audio/wav"
)

var (
	ErrUnsupported = errors.New("codec: unsupported audio format")
	ErrMalformed   = errors.New("codec: malformed audio data")
)

// Format is the layout every decoded track buffer is normalised to.
var Format = beep.Format{
	SampleRate:  spec.SampleRate,
	NumChannels: spec.Channels,
	Precision:   spec.Precision,
}

// resampleQuality is the beep interpolation quality used for rate conversion.
const resampleQuality = 4

// Kind identifies a sniffed container.
type Kind int

const (
	KindUnknown Kind = iota
	KindWAV
	KindOpus
	KindMP3
)

func (k Kind) String() string {
	switch k {
	case KindWAV:
		return "wav"
	case KindOpus:
		return "opus"
	case KindMP3:
		return "mp3"
	default:
		return "unknown"
	}
}

// Sniff inspects the leading bytes of an encoded stem.
func Sniff(data []byte) Kind {
	switch {
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return KindWAV
	case bytes.HasPrefix(data, []byte(spec.OpusStreamMagic)):
		return KindOpus
	case bytes.HasPrefix(data, []byte("ID3")):
		return KindMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return KindMP3
	}
	return KindUnknown
}

// Decoder turns encoded stem bytes into an engine-format PCM buffer.
type Decoder struct{}

func (Decoder) Decode(data []byte) (*beep.Buffer, error) {
	return Decode(data)
}

// Decode sniffs the container, decodes every frame and resamples to the
// engine rate when needed.
func Decode(data []byte) (*beep.Buffer, error) {
	switch Sniff(data) {
	case KindWAV:
		s, rate, err := decodeWAV(data)
		if err != nil {
			return nil, err
		}
		return toBuffer(s, rate)

	case KindOpus:
		frames, err := audioengine.DecodeOpusStream(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return toBuffer(&frameStreamer{data: frames}, spec.SampleRate)

	case KindMP3:
		s, format, err := mp3.Decode(io.NopCloser(bytes.NewReader(data)))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		defer s.Close()
		return toBuffer(s, format.SampleRate)
	}
	return nil, ErrUnsupported
}

func decodeWAV(data []byte) (beep.Streamer, beep.SampleRate, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, 0, fmt.Errorf("%w: invalid wav header", ErrMalformed)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	ch := int(d.NumChans)
	depth := int(d.BitDepth)
	if ch < 1 || depth < 8 || depth > 32 {
		return nil, 0, fmt.Errorf("%w: %d channels at %d bits", ErrUnsupported, ch, depth)
	}

	// 8-bit wav is unsigned, everything wider is signed
	offset := 0.0
	scale := float64(int64(1) << uint(depth-1))
	if depth == 8 {
		offset = 128
		scale = 128
	}

	frames := make([][2]float64, len(buf.Data)/ch)
	for i := range frames {
		l := (float64(buf.Data[i*ch]) - offset) / scale
		r := l
		if ch > 1 {
			r = (float64(buf.Data[i*ch+1]) - offset) / scale
		}
		frames[i] = [2]float64{l, r}
	}
	return &frameStreamer{data: frames}, beep.SampleRate(d.SampleRate), nil
}

func toBuffer(s beep.Streamer, rate beep.SampleRate) (*beep.Buffer, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrMalformed, rate)
	}
	if rate != Format.SampleRate {
		s = beep.Resample(resampleQuality, rate, Format.SampleRate, s)
	}
	buf := beep.NewBuffer(Format)
	buf.Append(s)
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return buf, nil
}

// frameStreamer plays back an in-memory slice of stereo frames once.
type frameStreamer struct {
	data [][2]float64
	pos  int
}

func (f *frameStreamer) Stream(samples [][2]float64) (int, bool) {
	if f.pos >= len(f.data) {
		return 0, false
	}
	n := copy(samples, f.data[f.pos:])
	f.pos += n
	return n, true
}

func (f *frameStreamer) Err() error { return nil }
