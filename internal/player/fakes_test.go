package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"stemdeck/internal/fetch"
	"stemdeck/pkg/audioengine"
	"stemdeck/pkg/spec"

	"github.com/faiface/beep"
)

// --- Event log ---

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...interface{}) {
	l.mu.Lock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *eventLog) count(ev string) int {
	n := 0
	for _, e := range l.snapshot() {
		if e == ev {
			n++
		}
	}
	return n
}

// --- Fetcher ---

type tick struct {
	status   fetch.Status
	loaded   int64
	fraction float64
}

type stem struct {
	data     []byte
	err      error
	failures int
	ticks    []tick
	gate     chan struct{}
}

type fakeFetcher struct {
	mu    sync.Mutex
	stems map[int]*stem
	log   *eventLog
}

func newFetcher(log *eventLog) *fakeFetcher {
	return &fakeFetcher{stems: make(map[int]*stem), log: log}
}

func (f *fakeFetcher) set(index int, s *stem) {
	f.mu.Lock()
	f.stems[index] = s
	f.mu.Unlock()
}

func (f *fakeFetcher) LoadOrStream(ctx context.Context, req fetch.Request, progress fetch.ProgressFunc) ([]byte, error) {
	f.mu.Lock()
	s, ok := f.stems[req.TrackIndex]
	fail := false
	if ok && s.failures > 0 {
		s.failures--
		fail = true
	}
	f.mu.Unlock()
	if f.log != nil {
		f.log.add("fetch %d", req.TrackIndex)
	}
	if !ok {
		return nil, fmt.Errorf("no stem %d", req.TrackIndex)
	}

	for _, tk := range s.ticks {
		progress(tk.status, tk.loaded, tk.fraction)
	}
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errors.New("connection reset")
	}
	if s.err != nil {
		return nil, s.err
	}
	if len(s.ticks) == 0 {
		progress(fetch.Complete, int64(len(s.data)), 1)
	}
	return s.data, nil
}

// stemOf encodes a constant-valued buffer description for fakeDecoder.
func stemOf(frames int, value float64) *stem {
	return &stem{data: []byte(fmt.Sprintf("%d %g", frames, value))}
}

// --- Decoder ---

type fakeDecoder struct{}

func (fakeDecoder) Decode(data []byte) (*beep.Buffer, error) {
	var n int
	var v float64
	if _, err := fmt.Sscanf(string(data), "%d %g", &n, &v); err != nil {
		return nil, fmt.Errorf("undecodable stem: %w", err)
	}
	return constBuffer(n, v), nil
}

func constBuffer(n int, v float64) *beep.Buffer {
	buf := beep.NewBuffer(beep.Format{SampleRate: spec.SampleRate, NumChannels: spec.Channels, Precision: spec.Precision})
	i := 0
	buf.Append(beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if i >= n {
			return 0, false
		}
		k := 0
		for k < len(samples) && i < n {
			samples[k] = [2]float64{v, v}
			k++
			i++
		}
		return k, true
	}))
	return buf
}

// --- Clock ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// --- Helpers ---

type harness struct {
	p     *Player
	bus   *audioengine.Bus
	fetch *fakeFetcher
	clock *fakeClock
	log   *eventLog
}

// newHarness builds a player with no settle or stagger delay and a 1ms tick.
func newHarness(t *testing.T, tracks int, setup func(*fakeFetcher), tweak func(*Options)) *harness {
	t.Helper()
	h := &harness{bus: audioengine.NewBus(), clock: newClock(), log: &eventLog{}}
	h.fetch = newFetcher(h.log)
	if setup != nil {
		setup(h.fetch)
	}

	opts := Options{
		SongID:       "song",
		Fetcher:      h.fetch,
		Decoder:      fakeDecoder{},
		Bus:          h.bus,
		Clock:        h.clock,
		SettleDelay:  -1,
		StaggerDelay: -1,
		TickInterval: time.Millisecond,
		OnLoadProgress: func(f float64) {
			h.log.add("progress %.2f", f)
		},
		OnTrackProgress: func(tp TrackProgress) {
			switch tp.Status {
			case TrackLoaded:
				h.log.add("loaded %d", tp.Index)
			case TrackError:
				h.log.add("error %d", tp.Index)
			}
		},
		OnReady: func() { h.log.add("ready") },
	}
	for i := 0; i < tracks; i++ {
		opts.Tracks = append(opts.Tracks, TrackConfig{Name: fmt.Sprintf("stem%d", i), URL: fmt.Sprintf("mem://%d", i)})
	}
	if tweak != nil {
		tweak(&opts)
	}

	p, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.p = p
	t.Cleanup(func() { p.Dispose() })
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) waitState(t *testing.T, index int, want LoadState) {
	t.Helper()
	waitFor(t, fmt.Sprintf("track %d %v", index, want), func() bool {
		info, err := h.p.Track(index)
		return err == nil && info.State == want
	})
}

func near(a, b float64) bool {
	d := a - b
	return d < 1e-3 && d > -1e-3
}
