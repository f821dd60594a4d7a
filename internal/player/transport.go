package player

import (
	"time"

	"stemdeck/pkg/spec"

	"github.com/faiface/beep"
)

// TransportState is the shared play state of all tracks.
type TransportState int

const (
	Stopped TransportState = iota
	Playing
	Paused
	Disposed
)

func (s TransportState) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Playing:
		return "Playing"
	case Paused:
		return "Paused"
	case Disposed:
		return "Disposed"
	default:
		return "Unknown"
	}
}

// transport is the single source of playback position. While playing the
// position is now - origin; otherwise it is pausePos.
type transport struct {
	state    TransportState
	origin   time.Time
	pausePos time.Duration
	duration time.Duration
}

var engineRate = beep.SampleRate(spec.SampleRate)

func (tr *transport) position(now time.Time) time.Duration {
	if tr.state == Playing {
		return now.Sub(tr.origin)
	}
	return tr.pausePos
}

// frameAt converts the position at now into a buffer offset.
func (tr *transport) frameAt(now time.Time) int {
	pos := tr.position(now)
	if pos < 0 {
		return 0
	}
	return engineRate.N(pos)
}

// extend grows the duration to cover a newly loaded buffer.
func (tr *transport) extend(buf *beep.Buffer) {
	if d := buf.Format().SampleRate.D(buf.Len()); d > tr.duration {
		tr.duration = d
	}
}

func (tr *transport) clampSeek(t time.Duration) time.Duration {
	if t < 0 {
		return 0
	}
	if t > tr.duration {
		return tr.duration
	}
	return t
}

// Play starts every loaded track at the current position. Tracks that are
// not loaded are skipped and join when their load completes.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return ErrDisposed
	}
	p.playLocked()
	return nil
}

func (p *Player) playLocked() {
	if p.tr.state == Playing {
		return
	}
	p.bus.Resume()
	now := p.clock.Now()
	p.tr.origin = now.Add(-p.tr.pausePos)
	offset := engineRate.N(p.tr.pausePos)
	started := 0
	for _, t := range p.tracks {
		if t.buffer == nil {
			continue
		}
		p.bus.Start(t.index, t.buffer, offset)
		started++
	}
	p.tr.state = Playing
	p.startTickerLocked()
	p.log.Debug().Dur("at", p.tr.pausePos).Int("tracks", started).Msg("play")
}

// Pause freezes the position and releases every active source.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return ErrDisposed
	}
	p.pauseLocked()
	return nil
}

func (p *Player) pauseLocked() {
	if p.tr.state != Playing {
		return
	}
	p.tr.pausePos = p.clock.Now().Sub(p.tr.origin)
	if p.tr.pausePos < 0 {
		p.tr.pausePos = 0
	}
	p.bus.StopAll()
	for _, t := range p.tracks {
		if t.tap != nil {
			t.tap.Reset()
		}
	}
	p.stopTickerLocked()
	p.tr.state = Paused
	p.log.Debug().Dur("at", p.tr.pausePos).Msg("pause")
}

// Stop pauses and rewinds to zero.
func (p *Player) Stop() error {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return ErrDisposed
	}
	p.pauseLocked()
	p.tr.pausePos = 0
	p.tr.state = Stopped
	p.mu.Unlock()

	p.emitTime(0)
	return nil
}

// SeekTo moves the shared position, clamped to [0, duration], and restores
// the play state it found.
func (p *Player) SeekTo(t time.Duration) error {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return ErrDisposed
	}
	wasPlaying := p.tr.state == Playing
	p.pauseLocked()
	pos := p.tr.clampSeek(t)
	p.tr.pausePos = pos
	if wasPlaying {
		p.playLocked()
	}
	p.mu.Unlock()

	p.emitTime(pos)
	return nil
}

func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tr.position(p.clock.Now())
}

// Duration is the length of the longest loaded track.
func (p *Player) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tr.duration
}

func (p *Player) State() TransportState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tr.state
}

func (p *Player) emitTime(pos time.Duration) {
	if p.onTimeUpdate != nil {
		p.onTimeUpdate(pos)
	}
}

func (p *Player) startTickerLocked() {
	p.stopTickerLocked()
	stop := make(chan struct{})
	p.tickStop = stop
	go p.tickLoop(stop)
}

func (p *Player) stopTickerLocked() {
	if p.tickStop != nil {
		close(p.tickStop)
		p.tickStop = nil
	}
}

func (p *Player) tickLoop(stop chan struct{}) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !p.onTick(stop) {
				return
			}
		}
	}
}

// onTick publishes the position and meter levels and auto-stops at the end
// of the song. It returns false once the run is over.
func (p *Player) onTick(stop chan struct{}) bool {
	p.mu.Lock()
	if p.tickStop != stop || p.tr.state != Playing {
		p.mu.Unlock()
		return false
	}
	pos := p.tr.position(p.clock.Now())
	var levels []float64
	if p.onLevels != nil {
		levels = p.levelsLocked()
	}
	ended := p.tr.duration > 0 && pos >= p.tr.duration
	if ended {
		pos = p.tr.duration
		p.pauseLocked()
		p.tr.pausePos = 0
		p.tr.state = Stopped
		p.log.Debug().Msg("reached end, stopped")
	}
	p.mu.Unlock()

	p.emitTime(pos)
	if levels != nil {
		p.onLevels(levels)
	}
	return !ended
}
