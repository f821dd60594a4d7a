package audioengine

import (
	"errors"
	"sync"

	"stemdeck/pkg/spec"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
)

var (
	ErrNotConnected = errors.New("audioengine: strip not connected")
	ErrChannelRange = errors.New("audioengine: physical channel out of range")
)

// Source selects which part of a strip's stereo signal feeds a route.
type Source int

const (
	SourceLeft Source = iota
	SourceRight
	SourceMono
)

// Route sends one component of a strip's signal to a physical channel.
type Route struct {
	Channel int
	Source  Source
}

func (r Route) pick(l, rr float64) float64 {
	switch r.Source {
	case SourceLeft:
		return l
	case SourceRight:
		return rr
	default:
		return (l + rr) / 2
	}
}

// Frame is one sample period across every physical output channel.
type Frame [spec.MaxOutputChannels]float64

type voice struct {
	gain *effects.Gain
	pan  *effects.Pan
}

// strip is the per-track signal path: source -> gain -> pan -> tap -> routes.
type strip struct {
	gain    float64
	pan     float64
	routes  []Route
	tap     *Tap
	voice   *voice
	scratch [][2]float64
}

// Bus mixes every strip into MaxOutputChannels physical channels. All active
// voices are pulled for the same number of frames in a single render pass.
type Bus struct {
	mu        sync.Mutex
	strips    map[int]*strip
	master    float64
	suspended bool
	frames    []Frame
}

func NewBus() *Bus {
	return &Bus{strips: make(map[int]*strip), master: 1}
}

// SetMasterGain sets the linear gain applied after every strip. Negative
// values are treated as 0.
func (b *Bus) SetMasterGain(gain float64) {
	if gain < 0 {
		gain = 0
	}
	b.mu.Lock()
	b.master = gain
	b.mu.Unlock()
}

func (b *Bus) MasterGain() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.master
}

// Connect attaches a strip for the track index and returns its metering tap.
// Connecting an already connected index returns the existing tap.
func (b *Bus) Connect(index int) *Tap {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.strips[index]; ok {
		return s.tap
	}
	s := &strip{gain: 1, tap: NewTap(spec.MeterWindow)}
	b.strips[index] = s
	return s.tap
}

func (b *Bus) Connected(index int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.strips[index]
	return ok
}

func (b *Bus) DisconnectAll() {
	b.mu.Lock()
	b.strips = make(map[int]*strip)
	b.mu.Unlock()
}

// SetRoute replaces the strip's complete route set.
func (b *Bus) SetRoute(index int, routes []Route) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.strips[index]
	if !ok {
		return ErrNotConnected
	}
	for _, rt := range routes {
		if rt.Channel < 0 || rt.Channel >= spec.MaxOutputChannels {
			return ErrChannelRange
		}
	}
	s.routes = append([]Route(nil), routes...)
	return nil
}

// SetGain sets the linear gain applied to the strip.
func (b *Bus) SetGain(index int, gain float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.strips[index]
	if !ok {
		return ErrNotConnected
	}
	s.gain = gain
	if s.voice != nil {
		s.voice.gain.Gain = gain - 1
	}
	return nil
}

// SetPan sets the stereo balance in [-1, 1].
func (b *Bus) SetPan(index int, pan float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.strips[index]
	if !ok {
		return ErrNotConnected
	}
	s.pan = pan
	if s.voice != nil {
		s.voice.pan.Pan = pan
	}
	return nil
}

// Start binds a fresh source to the buffer beginning at offset frames. An
// offset past the end of the buffer leaves the strip silent.
func (b *Bus) Start(index int, buf *beep.Buffer, offset int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.strips[index]
	if !ok {
		return ErrNotConnected
	}
	s.voice = nil
	if buf == nil || offset >= buf.Len() {
		return nil
	}
	if offset < 0 {
		offset = 0
	}
	g := &effects.Gain{Streamer: buf.Streamer(offset, buf.Len()), Gain: s.gain - 1}
	p := &effects.Pan{Streamer: g, Pan: s.pan}
	s.voice = &voice{gain: g, pan: p}
	return nil
}

// StopAll releases every active source.
func (b *Bus) StopAll() {
	b.mu.Lock()
	for _, s := range b.strips {
		s.voice = nil
	}
	b.mu.Unlock()
}

// Active reports whether the strip currently has a playing source.
func (b *Bus) Active(index int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.strips[index]
	return ok && s.voice != nil
}

// Suspend silences the bus output without releasing any source.
func (b *Bus) Suspend() {
	b.mu.Lock()
	b.suspended = true
	b.mu.Unlock()
}

func (b *Bus) Resume() {
	b.mu.Lock()
	b.suspended = false
	b.mu.Unlock()
}

// Render mixes n frames. The returned slice is reused by the next call.
func (b *Bus) Render(n int) []Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.renderLocked(n)
}

func (b *Bus) renderLocked(n int) []Frame {
	if cap(b.frames) < n {
		b.frames = make([]Frame, n)
	}
	frames := b.frames[:n]
	for i := range frames {
		frames[i] = Frame{}
	}
	if b.suspended {
		return frames
	}

	for _, s := range b.strips {
		if s.voice == nil {
			continue
		}
		if cap(s.scratch) < n {
			s.scratch = make([][2]float64, n)
		}
		tmp := s.scratch[:n]
		got, ok := s.voice.pan.Stream(tmp)
		// meters read the strip before the master stage
		s.tap.Write(tmp[:got])
		ApplyQuickGain(tmp[:got], b.master)
		for i := 0; i < got; i++ {
			l, r := tmp[i][0], tmp[i][1]
			for _, rt := range s.routes {
				frames[i][rt.Channel] += rt.pick(l, r)
			}
		}
		if !ok || got < n {
			s.voice = nil
		}
	}
	return frames
}

// Stream feeds a stereo device with physical channels 0 and 1.
func (b *Bus) Stream(samples [][2]float64) (int, bool) {
	b.mu.Lock()
	frames := b.renderLocked(len(samples))
	for i := range samples {
		samples[i][0] = Clamp(frames[i][0])
		samples[i][1] = Clamp(frames[i][1])
	}
	b.mu.Unlock()
	return len(samples), true
}

func (b *Bus) Err() error { return nil }

var _ beep.Streamer = (*Bus)(nil)
