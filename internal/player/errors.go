package player

import (
	"errors"
	"fmt"
)

var (
	ErrFetch          = errors.New("player: fetch failed")
	ErrDecode         = errors.New("player: decode failed")
	ErrDisposed       = errors.New("player: disposed")
	ErrUnknownTrack   = errors.New("player: unknown track")
	ErrInvalidChannel = errors.New("player: invalid output channel")

	// errCancelled marks a load that was abandoned. It never reaches callers.
	errCancelled = errors.New("player: load cancelled")
)

// Phase is the loader step a failure happened in.
type Phase int

const (
	PhaseFetch Phase = iota
	PhaseDecode
)

func (p Phase) String() string {
	if p == PhaseDecode {
		return "decode"
	}
	return "fetch"
}

// LoadError is a contained per-track load failure. errors.Is matches its
// Kind (ErrFetch or ErrDecode); errors.Unwrap yields the cause.
type LoadError struct {
	Index int
	Phase Phase
	Kind  error
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("track %d: %v: %v", e.Index, e.Kind, e.Err)
}

func (e *LoadError) Is(target error) bool { return target == e.Kind }

func (e *LoadError) Unwrap() error { return e.Err }
