package player

import (
	"context"
	"errors"
	"math"

	"stemdeck/internal/fetch"
	"stemdeck/pkg/spec"
)

// loadAll runs the load policy: the priority batch in order, the ready
// signal, then the rest one at a time with a stagger before each.
func (p *Player) loadAll() {
	total := len(p.tracks)
	prio := p.priority
	if prio > total {
		prio = total
	}

	attempted := 0
	for i := 0; i < prio; i++ {
		if p.isDisposed() {
			return
		}
		p.loadTrack(i)
		attempted++
		p.emitLoadProgress(attempted, total)
	}
	if p.isDisposed() {
		return
	}
	p.ready.Do(func() {
		p.log.Info().Int("loaded", prio).Int("total", total).Msg("ready for playback")
		if p.onReady != nil {
			p.onReady()
		}
	})

	for i := prio; i < total; i++ {
		if sleepCtx(p.ctx, p.stagger) != nil || p.isDisposed() {
			return
		}
		p.loadTrack(i)
		attempted++
		p.emitLoadProgress(attempted, total)
	}
}

func (p *Player) isDisposed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disposed
}

func (p *Player) emitLoadProgress(attempted, total int) {
	if p.isDisposed() || p.onLoadProgress == nil || total == 0 {
		return
	}
	p.onLoadProgress(float64(attempted) / float64(total))
}

// RetryTrack starts a fresh load for a track that is unloaded or failed.
// Loaded and loading tracks are left alone. The load runs in the background.
func (p *Player) RetryTrack(index int) error {
	ctx, gen, ok, err := p.beginLoad(index)
	if err != nil || !ok {
		return err
	}
	go p.runLoad(ctx, index, gen)
	return nil
}

// CancelTrack abandons an in-flight load and returns the track to unloaded.
// It is a no-op for tracks that are not loading.
func (p *Player) CancelTrack(index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, err := p.trackLocked(index)
	if err != nil {
		return err
	}
	if t.state != Loading {
		return nil
	}
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.gen++
	t.state = Unloaded
	t.percent = 0
	p.log.Debug().Int("track", index).Msg("load cancelled")
	return nil
}

// loadTrack loads synchronously on the caller's goroutine.
func (p *Player) loadTrack(index int) {
	ctx, gen, ok, err := p.beginLoad(index)
	if err != nil || !ok {
		return
	}
	p.runLoad(ctx, index, gen)
}

// beginLoad moves a track to loading with a fresh cancel token,
// invalidating any previous one.
func (p *Player) beginLoad(index int) (context.Context, uint64, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, err := p.trackLocked(index)
	if err != nil {
		return nil, 0, false, err
	}
	if t.state == Loading || t.state == Loaded {
		return nil, 0, false, nil
	}
	ctx, cancel := context.WithCancel(p.ctx)
	t.gen++
	t.cancel = cancel
	t.state = Loading
	t.err = nil
	t.percent = 0
	return ctx, t.gen, true, nil
}

func (p *Player) runLoad(ctx context.Context, index int, gen uint64) {
	err := p.load(ctx, index, gen)
	switch {
	case err == nil:
	case errors.Is(err, errCancelled):
		p.log.Debug().Int("track", index).Msg("load abandoned")
	default:
		p.failLoad(index, gen, err)
	}
}

// load runs fetch, decode, settle and connect. Every suspension point checks
// ctx; a cancelled load returns errCancelled and leaves no trace.
func (p *Player) load(ctx context.Context, index int, gen uint64) error {
	p.mu.Lock()
	t := p.tracks[index]
	req := fetch.Request{URL: t.url, SongID: p.songID, TrackIndex: index}
	p.mu.Unlock()

	log := p.log.With().Int("track", index).Logger()
	log.Debug().Str("url", req.URL).Msg("fetching")

	data, err := p.fetcher.LoadOrStream(ctx, req, func(status fetch.Status, loaded int64, frac float64) {
		if ctx.Err() != nil {
			return
		}
		pct := spec.NetworkShare
		if status != fetch.Complete {
			pct = int(math.Floor(clamp01(frac) * spec.NetworkShare))
		}
		p.emitLoading(index, gen, pct)
	})
	if ctx.Err() != nil {
		return errCancelled
	}
	if err != nil {
		return &LoadError{Index: index, Phase: PhaseFetch, Kind: ErrFetch, Err: err}
	}

	p.emitLoading(index, gen, spec.DecodeStarted)
	// the fetch layer may reuse its buffer
	owned := append([]byte(nil), data...)
	buf, err := p.decoder.Decode(owned)
	if ctx.Err() != nil {
		return errCancelled
	}
	if err != nil {
		return &LoadError{Index: index, Phase: PhaseDecode, Kind: ErrDecode, Err: err}
	}

	if sleepCtx(ctx, p.settle) != nil {
		return errCancelled
	}

	p.mu.Lock()
	if p.disposed || ctx.Err() != nil || t.gen != gen {
		p.mu.Unlock()
		return errCancelled
	}
	t.buffer = buf
	t.state = Loaded
	t.percent = spec.LoadComplete
	t.cancel()
	t.cancel = nil
	p.connectLocked(t)
	p.tr.extend(buf)
	if p.tr.state == Playing {
		p.bus.Start(index, buf, p.tr.frameAt(p.clock.Now()))
	}
	p.mu.Unlock()

	log.Info().Dur("length", buf.Format().SampleRate.D(buf.Len())).Msg("track loaded")
	p.emitTrack(TrackProgress{Index: index, Status: TrackLoaded, Percent: spec.LoadComplete})
	return nil
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// emitLoading reports a loading percentage, never lower than one already
// reported for this load.
func (p *Player) emitLoading(index int, gen uint64, pct int) {
	p.mu.Lock()
	t := p.tracks[index]
	if p.disposed || t.gen != gen || t.state != Loading {
		p.mu.Unlock()
		return
	}
	if pct < t.percent {
		pct = t.percent
	}
	t.percent = pct
	p.mu.Unlock()
	p.emitTrack(TrackProgress{Index: index, Status: TrackLoading, Percent: pct})
}

func (p *Player) failLoad(index int, gen uint64, err error) {
	p.mu.Lock()
	t := p.tracks[index]
	if p.disposed || t.gen != gen {
		p.mu.Unlock()
		return
	}
	t.state = Failed
	t.err = err
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	p.mu.Unlock()

	p.log.Warn().Err(err).Int("track", index).Msg("track load failed")
	p.emitTrack(TrackProgress{Index: index, Status: TrackError, Err: err})
}

func (p *Player) emitTrack(tp TrackProgress) {
	if p.onTrackProgress != nil {
		p.onTrackProgress(tp)
	}
}
