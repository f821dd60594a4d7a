// Package player is the multi-track playback engine: it loads stems in the
// background, keeps them aligned on one transport clock and mixes them onto
// the output bus.
package player

import (
	"context"
	"errors"
	"sync"
	"time"

	"stemdeck/internal/codec"
	"stemdeck/internal/device"
	"stemdeck/internal/fetch"
	"stemdeck/pkg/audioengine"
	"stemdeck/pkg/spec"

	"github.com/faiface/beep"
	"github.com/rs/zerolog"
)

// Decoder turns encoded stem bytes into an engine-format buffer.
type Decoder interface {
	Decode(data []byte) (*beep.Buffer, error)
}

type Options struct {
	SongID string
	Tracks []TrackConfig

	Fetcher fetch.Fetcher
	Decoder Decoder // codec.Decoder when nil
	Bus     *audioengine.Bus
	Devices *device.Manager // nil leaves output selection unsupported
	Clock   Clock

	// PriorityCount tracks are loaded before OnReady fires. Zero selects the
	// default of three.
	PriorityCount int
	// Zero selects the default; a negative value disables the delay.
	SettleDelay  time.Duration
	StaggerDelay time.Duration
	TickInterval time.Duration

	OnLoadProgress        func(fraction float64)
	OnTrackProgress       func(TrackProgress)
	OnReady               func()
	OnTimeUpdate          func(position time.Duration)
	OnOutputDeviceChanged func(id string)
	OnLevels              func(levels []float64)

	Logger zerolog.Logger
}

type Player struct {
	mu       sync.Mutex
	songID   string
	tracks   []*track
	routing  *RoutingTable
	tr       transport
	disposed bool

	fetcher fetch.Fetcher
	decoder Decoder
	bus     *audioengine.Bus
	devices *device.Manager
	clock   Clock

	priority int
	settle   time.Duration
	stagger  time.Duration
	tick     time.Duration
	tickStop chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	ready  sync.Once

	onLoadProgress  func(float64)
	onTrackProgress func(TrackProgress)
	onReady         func()
	onTimeUpdate    func(time.Duration)
	onDeviceChanged func(string)
	onLevels        func([]float64)

	log zerolog.Logger
}

func delay(d, def time.Duration) time.Duration {
	switch {
	case d == 0:
		return def
	case d < 0:
		return 0
	}
	return d
}

// New creates every track as unloaded and starts background loading.
func New(opts Options) (*Player, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("player: fetcher is required")
	}

	p := &Player{
		songID:          opts.SongID,
		routing:         NewRoutingTable(),
		fetcher:         opts.Fetcher,
		decoder:         opts.Decoder,
		bus:             opts.Bus,
		devices:         opts.Devices,
		clock:           opts.Clock,
		priority:        opts.PriorityCount,
		settle:          delay(opts.SettleDelay, spec.SettleDelay),
		stagger:         delay(opts.StaggerDelay, spec.StaggerDelay),
		tick:            delay(opts.TickInterval, spec.TickInterval),
		onLoadProgress:  opts.OnLoadProgress,
		onTrackProgress: opts.OnTrackProgress,
		onReady:         opts.OnReady,
		onTimeUpdate:    opts.OnTimeUpdate,
		onDeviceChanged: opts.OnOutputDeviceChanged,
		onLevels:        opts.OnLevels,
		log:             opts.Logger.With().Str("song", opts.SongID).Logger(),
	}
	if p.decoder == nil {
		p.decoder = codec.Decoder{}
	}
	if p.bus == nil {
		p.bus = audioengine.NewBus()
	}
	if p.clock == nil {
		p.clock = wallClock{}
	}
	if p.priority <= 0 {
		p.priority = spec.PriorityTracks
	}
	if p.tick <= 0 {
		p.tick = spec.TickInterval
	}

	for i, tc := range opts.Tracks {
		vol := 1.0
		if tc.Volume != nil {
			vol = *tc.Volume
		}
		if vol < 0 {
			vol = 0
		}
		out := tc.Output
		if out < 0 {
			out = spec.MainOutput
		}
		p.tracks = append(p.tracks, &track{
			index:  i,
			name:   tc.Name,
			url:    tc.URL,
			volume: vol,
			pan:    clampPan(tc.Pan),
			output: out,
			muted:  tc.Muted,
			solo:   tc.Solo,
		})
		p.routing.Assign(i, out)
	}

	if p.devices != nil {
		p.devices.OnChange(p.deviceChanged)
		if !p.devices.Bound() {
			if err := p.devices.SetOutputDevice(spec.DefaultDevice); err != nil {
				p.log.Error().Err(err).Msg("default output unavailable")
			}
		}
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	go p.loadAll()
	return p, nil
}

func clampPan(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

func (p *Player) trackLocked(index int) (*track, error) {
	if p.disposed {
		return nil, ErrDisposed
	}
	if index < 0 || index >= len(p.tracks) {
		return nil, ErrUnknownTrack
	}
	return p.tracks[index], nil
}

// --- Mixing ---

// SetTrackVolume sets a track's linear gain. Negative values are treated as 0.
func (p *Player) SetTrackVolume(index int, volume float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, err := p.trackLocked(index)
	if err != nil {
		return err
	}
	if volume < 0 {
		volume = 0
	}
	t.volume = volume
	p.applyGainsLocked()
	return nil
}

// SetTrackPan sets a track's balance, clamped to [-1, 1].
func (p *Player) SetTrackPan(index int, pan float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, err := p.trackLocked(index)
	if err != nil {
		return err
	}
	t.pan = clampPan(pan)
	if p.bus.Connected(index) {
		p.bus.SetPan(index, t.pan)
	}
	return nil
}

func (p *Player) SetTrackMute(index int, muted bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, err := p.trackLocked(index)
	if err != nil {
		return err
	}
	t.muted = muted
	p.applyGainsLocked()
	return nil
}

func (p *Player) SetTrackSolo(index int, solo bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, err := p.trackLocked(index)
	if err != nil {
		return err
	}
	t.solo = solo
	p.applyGainsLocked()
	return nil
}

// SetTrackOutputChannel reroutes a track. The previous routes are replaced
// as a whole, whether or not the track has loaded yet.
func (p *Player) SetTrackOutputChannel(index, channel int) error {
	if channel < 0 {
		return ErrInvalidChannel
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	t, err := p.trackLocked(index)
	if err != nil {
		return err
	}
	detached, attached := p.routing.Assign(index, channel)
	t.output = channel
	if p.bus.Connected(index) {
		if err := p.bus.SetRoute(index, routesFor(channel)); err != nil {
			return err
		}
	}
	p.log.Debug().Int("track", index).Int("output", channel).
		Ints("detached", detached).Ints("attached", attached).Msg("rerouted")
	return nil
}

// SetMasterVolume sets the gain applied to the whole mix after every track.
// Negative values are treated as 0.
func (p *Player) SetMasterVolume(volume float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return ErrDisposed
	}
	p.bus.SetMasterGain(volume)
	return nil
}

func (p *Player) MasterVolume() float64 {
	return p.bus.MasterGain()
}

// applyGainsLocked pushes volume times audibility to every connected strip.
func (p *Player) applyGainsLocked() {
	flags := make([]Flags, len(p.tracks))
	for i, t := range p.tracks {
		flags[i] = Flags{Muted: t.muted, Solo: t.solo}
	}
	aud := Audibility(flags)
	for i, t := range p.tracks {
		if p.bus.Connected(i) {
			p.bus.SetGain(i, t.volume*aud[i])
		}
	}
}

// connectLocked attaches a freshly loaded track to the bus with its current
// mix settings.
func (p *Player) connectLocked(t *track) {
	t.tap = p.bus.Connect(t.index)
	if err := p.bus.SetRoute(t.index, routesFor(t.output)); err != nil {
		p.log.Error().Err(err).Int("track", t.index).Int("output", t.output).Msg("routing loaded track failed")
	}
	p.bus.SetPan(t.index, t.pan)
	p.applyGainsLocked()
}

// --- Queries ---

func (p *Player) Tracks() []TrackInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TrackInfo, len(p.tracks))
	for i, t := range p.tracks {
		out[i] = t.info(p.routing.Channels(i))
		out[i].Active = p.bus.Active(i)
	}
	return out
}

func (p *Player) Track(index int) (TrackInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, err := p.trackLocked(index)
	if err != nil {
		return TrackInfo{}, err
	}
	info := t.info(p.routing.Channels(index))
	info.Active = p.bus.Active(index)
	return info, nil
}

// TrackWaveform returns an amplitude overview of a loaded track.
func (p *Player) TrackWaveform(index, points int) ([]byte, error) {
	p.mu.Lock()
	t, err := p.trackLocked(index)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	buf := t.buffer
	p.mu.Unlock()
	return codec.Waveform(buf, points), nil
}

// --- Output device ---

// SetGlobalOutputDevice selects the physical output for the final mix. On
// failure the previous selection stays bound.
func (p *Player) SetGlobalOutputDevice(id string) error {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return ErrDisposed
	}
	p.mu.Unlock()
	if p.devices == nil {
		return nil
	}
	if err := p.devices.SetOutputDevice(id); err != nil {
		p.log.Warn().Err(err).Str("device", id).Msg("output selection failed")
		return err
	}
	return nil
}

func (p *Player) GlobalOutputDevice() string {
	if p.devices == nil {
		return spec.DefaultDevice
	}
	return p.devices.OutputDevice()
}

func (p *Player) deviceChanged(id string) {
	p.log.Info().Str("device", id).Msg("output device changed")
	if p.onDeviceChanged != nil {
		p.onDeviceChanged(id)
	}
}

// --- Teardown ---

// Dispose stops playback, abandons every load and releases the bus and the
// output device. Any later command returns ErrDisposed.
func (p *Player) Dispose() error {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return ErrDisposed
	}
	p.disposed = true
	p.cancel()
	for _, t := range p.tracks {
		if t.cancel != nil {
			t.cancel()
			t.cancel = nil
		}
		t.gen++
	}
	p.stopTickerLocked()
	p.tr.state = Disposed
	p.bus.StopAll()
	p.bus.DisconnectAll()
	p.bus.Suspend()
	p.mu.Unlock()

	p.log.Info().Msg("player disposed")
	if p.devices != nil {
		return p.devices.Release()
	}
	return nil
}
