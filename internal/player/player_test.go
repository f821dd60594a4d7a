package player

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"stemdeck/internal/device"
	"stemdeck/internal/fetch"
	"stemdeck/pkg/spec"

	"github.com/rs/zerolog"
)

// --- Load orchestration ---

func TestPriorityBatchWithFailure(t *testing.T) {
	h := newHarness(t, 5, func(f *fakeFetcher) {
		for i := 0; i < 5; i++ {
			f.set(i, stemOf(480, 0.1))
		}
		f.set(2, &stem{err: errors.New("404")})
	}, nil)

	waitFor(t, "all attempts", func() bool { return h.log.count("progress 1.00") == 1 })

	want := []string{
		"fetch 0", "loaded 0", "progress 0.20",
		"fetch 1", "loaded 1", "progress 0.40",
		"fetch 2", "error 2", "progress 0.60",
		"ready",
		"fetch 3", "loaded 3", "progress 0.80",
		"fetch 4", "loaded 4", "progress 1.00",
	}
	got := h.log.snapshot()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("events:\n got %v\nwant %v", got, want)
	}

	info, _ := h.p.Track(2)
	if info.State != Failed {
		t.Errorf("track 2 state = %v, want error", info.State)
	}
	if !errors.Is(info.Err, ErrFetch) {
		t.Errorf("track 2 err = %v, want ErrFetch", info.Err)
	}
	var le *LoadError
	if !errors.As(info.Err, &le) || le.Index != 2 || le.Phase != PhaseFetch {
		t.Errorf("track 2 err = %#v", info.Err)
	}
	for _, i := range []int{0, 1, 3, 4} {
		if info, _ := h.p.Track(i); info.State != Loaded {
			t.Errorf("track %d state = %v, want loaded", i, info.State)
		}
	}
}

func TestReadyWithFewerTracksThanPriority(t *testing.T) {
	h := newHarness(t, 2, func(f *fakeFetcher) {
		f.set(0, stemOf(48, 0))
		f.set(1, stemOf(48, 0))
	}, nil)
	waitFor(t, "ready", func() bool { return h.log.count("ready") == 1 })
	if h.log.count("progress 1.00") != 1 {
		t.Errorf("events = %v", h.log.snapshot())
	}
}

func TestReadyWithNoTracks(t *testing.T) {
	h := newHarness(t, 0, nil, nil)
	waitFor(t, "ready", func() bool { return h.log.count("ready") == 1 })
	if err := h.p.Play(); err != nil {
		t.Fatalf("Play with no tracks: %v", err)
	}
}

func TestDecodeFailureIsContained(t *testing.T) {
	h := newHarness(t, 2, func(f *fakeFetcher) {
		f.set(0, &stem{data: []byte("garbage")})
		f.set(1, stemOf(48, 0.1))
	}, nil)
	h.waitState(t, 1, Loaded)
	info, _ := h.p.Track(0)
	if info.State != Failed || !errors.Is(info.Err, ErrDecode) {
		t.Errorf("track 0 = %v / %v, want decode error", info.State, info.Err)
	}
}

// --- Progress ---

func TestTrackProgressMonotonic(t *testing.T) {
	var mu sync.Mutex
	var pcts []int
	h := newHarness(t, 1, func(f *fakeFetcher) {
		s := stemOf(48, 0.1)
		s.ticks = []tick{
			{fetch.InProgress, 10, 0.1},
			{fetch.InProgress, 50, 0.5},
			{fetch.InProgress, 30, 0.3},
			{fetch.InProgress, 100, 1.0},
			{fetch.Complete, 100, 1.0},
		}
		f.set(0, s)
	}, func(o *Options) {
		o.OnTrackProgress = func(tp TrackProgress) {
			mu.Lock()
			pcts = append(pcts, tp.Percent)
			mu.Unlock()
		}
	})
	h.waitState(t, 0, Loaded)

	mu.Lock()
	defer mu.Unlock()
	want := []int{7, 35, 35, 70, 70, 80, 100}
	if len(pcts) != len(want) {
		t.Fatalf("percents = %v, want %v", pcts, want)
	}
	for i := range want {
		if pcts[i] != want[i] {
			t.Fatalf("percents = %v, want %v", pcts, want)
		}
	}
}

func TestCacheHitJumpsToNetworkShare(t *testing.T) {
	first := -1
	h := newHarness(t, 1, func(f *fakeFetcher) {
		s := stemOf(48, 0.1)
		s.ticks = []tick{{fetch.Complete, 0, 1}}
		f.set(0, s)
	}, func(o *Options) {
		o.OnTrackProgress = func(tp TrackProgress) {
			if first < 0 {
				first = tp.Percent
			}
		}
	})
	h.waitState(t, 0, Loaded)
	if first != spec.NetworkShare {
		t.Errorf("first percent = %d, want %d", first, spec.NetworkShare)
	}
}

// --- Cancellation and retry ---

func TestCancelTrackIdempotent(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, 2, func(f *fakeFetcher) {
		s := stemOf(48, 0.1)
		s.gate = gate
		f.set(0, s)
		f.set(1, stemOf(48, 0.1))
	}, nil)
	h.waitState(t, 0, Loading)

	if err := h.p.CancelTrack(0); err != nil {
		t.Fatalf("CancelTrack: %v", err)
	}
	if err := h.p.CancelTrack(0); err != nil {
		t.Fatalf("second CancelTrack: %v", err)
	}
	h.waitState(t, 1, Loaded)

	info, _ := h.p.Track(0)
	if info.State != Unloaded {
		t.Errorf("cancelled track state = %v, want unloaded", info.State)
	}
	if h.log.count("error 0") != 0 {
		t.Error("cancellation surfaced as an error")
	}

	// cancelling loaded tracks is a no-op
	if err := h.p.CancelTrack(1); err != nil {
		t.Fatalf("CancelTrack on loaded: %v", err)
	}
	if info, _ := h.p.Track(1); info.State != Loaded {
		t.Errorf("loaded track state = %v after cancel", info.State)
	}

	close(gate)
	if err := h.p.RetryTrack(0); err != nil {
		t.Fatalf("RetryTrack: %v", err)
	}
	h.waitState(t, 0, Loaded)
}

func TestRetryAfterFailure(t *testing.T) {
	h := newHarness(t, 1, func(f *fakeFetcher) {
		s := stemOf(4800, 0.1)
		s.failures = 1
		f.set(0, s)
	}, nil)
	h.waitState(t, 0, Failed)

	if err := h.p.CancelTrack(0); err != nil {
		t.Fatalf("CancelTrack on failed: %v", err)
	}
	if info, _ := h.p.Track(0); info.State != Failed {
		t.Errorf("cancel changed failed track to %v", info.State)
	}

	if err := h.p.RetryTrack(0); err != nil {
		t.Fatalf("RetryTrack: %v", err)
	}
	h.waitState(t, 0, Loaded)
	if h.p.Duration() != 100*time.Millisecond {
		t.Errorf("Duration = %v, want 100ms", h.p.Duration())
	}
	// retrying a loaded track does nothing
	if err := h.p.RetryTrack(0); err != nil {
		t.Fatalf("RetryTrack on loaded: %v", err)
	}
	if info, _ := h.p.Track(0); info.State != Loaded {
		t.Errorf("state = %v after redundant retry", info.State)
	}
}

// --- Disposal ---

func TestDisposeDuringLoad(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, 1, func(f *fakeFetcher) {
		s := stemOf(48, 0.1)
		s.gate = gate
		f.set(0, s)
	}, nil)
	h.waitState(t, 0, Loading)

	if err := h.p.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if h.bus.Connected(0) {
		t.Error("disposed player connected a track")
	}
	if h.log.count("error 0") != 0 || h.log.count("ready") != 0 {
		t.Errorf("events after dispose: %v", h.log.snapshot())
	}
	if err := h.p.Play(); !errors.Is(err, ErrDisposed) {
		t.Errorf("Play err = %v, want ErrDisposed", err)
	}
	if err := h.p.SetTrackVolume(0, 1); !errors.Is(err, ErrDisposed) {
		t.Errorf("SetTrackVolume err = %v, want ErrDisposed", err)
	}
	if err := h.p.Dispose(); !errors.Is(err, ErrDisposed) {
		t.Errorf("second Dispose err = %v, want ErrDisposed", err)
	}
	if h.p.State() != Disposed {
		t.Errorf("state = %v, want Disposed", h.p.State())
	}
}

func TestUnknownTrack(t *testing.T) {
	h := newHarness(t, 1, func(f *fakeFetcher) { f.set(0, stemOf(48, 0)) }, nil)
	for name, err := range map[string]error{
		"volume": h.p.SetTrackVolume(5, 1),
		"pan":    h.p.SetTrackPan(-1, 0),
		"mute":   h.p.SetTrackMute(1, true),
		"solo":   h.p.SetTrackSolo(9, true),
		"output": h.p.SetTrackOutputChannel(3, 1),
		"retry":  h.p.RetryTrack(2),
		"cancel": h.p.CancelTrack(2),
	} {
		if !errors.Is(err, ErrUnknownTrack) {
			t.Errorf("%s: err = %v, want ErrUnknownTrack", name, err)
		}
	}
	if err := h.p.SetTrackOutputChannel(0, -1); !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("negative channel err = %v, want ErrInvalidChannel", err)
	}
}

// --- Output device ---

type stubBackend struct {
	mu      sync.Mutex
	devices []string
}

func (s *stubBackend) Available() bool { return true }

func (s *stubBackend) Devices() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.devices...), nil
}

func (s *stubBackend) Bind(string) error { return nil }
func (s *stubBackend) Release() error    { return nil }

func TestOutputDeviceRemovedNotifiesOnce(t *testing.T) {
	backend := &stubBackend{devices: []string{"default", "USB"}}
	mgr := device.NewManager(backend, zerolog.Nop())
	var mu sync.Mutex
	var changes []string

	h := newHarness(t, 0, nil, func(o *Options) {
		o.Devices = mgr
		o.OnOutputDeviceChanged = func(id string) {
			mu.Lock()
			changes = append(changes, id)
			mu.Unlock()
		}
	})
	if err := h.p.SetGlobalOutputDevice("USB"); err != nil {
		t.Fatalf("SetGlobalOutputDevice: %v", err)
	}
	if h.p.GlobalOutputDevice() != "USB" {
		t.Fatalf("device = %q", h.p.GlobalOutputDevice())
	}

	backend.mu.Lock()
	backend.devices = []string{"default"}
	backend.mu.Unlock()
	mgr.HandleDeviceChange()
	mgr.HandleDeviceChange()

	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 1 || changes[0] != spec.DefaultDevice {
		t.Errorf("changes = %v, want [default]", changes)
	}
	if h.p.GlobalOutputDevice() != spec.DefaultDevice {
		t.Errorf("device = %q, want default", h.p.GlobalOutputDevice())
	}
}

func TestOutputDeviceWithoutManager(t *testing.T) {
	h := newHarness(t, 0, nil, nil)
	if err := h.p.SetGlobalOutputDevice("USB"); err != nil {
		t.Errorf("SetGlobalOutputDevice: %v", err)
	}
	if h.p.GlobalOutputDevice() != spec.DefaultDevice {
		t.Errorf("device = %q, want default", h.p.GlobalOutputDevice())
	}
}
