package player

import (
	"context"
	"time"

	"stemdeck/pkg/audioengine"

	"github.com/faiface/beep"
)

// LoadState is a track's position in the loading lifecycle.
type LoadState int

const (
	Unloaded LoadState = iota
	Loading
	Loaded
	Failed
)

func (s LoadState) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "error"
	default:
		return "unknown"
	}
}

// TrackConfig describes one stem and its initial mix settings.
type TrackConfig struct {
	Name string
	URL  string
	// Volume is the linear gain; nil means unity.
	Volume *float64
	Pan    float64
	Output int
	Muted  bool
	Solo   bool
}

type track struct {
	index  int
	name   string
	url    string
	buffer *beep.Buffer

	volume float64
	pan    float64
	output int
	muted  bool
	solo   bool

	state   LoadState
	err     error
	percent int
	cancel  context.CancelFunc
	gen     uint64
	tap     *audioengine.Tap
}

// TrackInfo is a point-in-time copy of a track's state.
type TrackInfo struct {
	Index    int
	Name     string
	State    LoadState
	Percent  int
	Err      error
	Volume   float64
	Pan      float64
	Output   int
	Channels []int
	Muted    bool
	Solo     bool
	Duration time.Duration
	// Active is set while the track has a source feeding the bus.
	Active bool
}

func (t *track) info(channels []int) TrackInfo {
	ti := TrackInfo{
		Index:    t.index,
		Name:     t.name,
		State:    t.state,
		Percent:  t.percent,
		Err:      t.err,
		Volume:   t.volume,
		Pan:      t.pan,
		Output:   t.output,
		Channels: channels,
		Muted:    t.muted,
		Solo:     t.solo,
	}
	if t.buffer != nil {
		ti.Duration = t.buffer.Format().SampleRate.D(t.buffer.Len())
	}
	return ti
}

// TrackStatus is the coarse status reported with per-track progress.
type TrackStatus int

const (
	TrackLoading TrackStatus = iota
	TrackLoaded
	TrackError
)

func (s TrackStatus) String() string {
	switch s {
	case TrackLoaded:
		return "loaded"
	case TrackError:
		return "error"
	default:
		return "loading"
	}
}

// TrackProgress is delivered to OnTrackProgress. Percent is meaningful for
// loading and loaded; Err only for error.
type TrackProgress struct {
	Index   int
	Status  TrackStatus
	Percent int
	Err     error
}
