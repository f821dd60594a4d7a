// Package fetch defines the contract between the player and whatever
// delivers encoded stem bytes: a streaming HTTP client, a disk cache or a
// test fake.
package fetch

import "context"

// Status is the phase reported with each progress tick.
type Status int

const (
	InProgress Status = iota
	Complete
)

func (s Status) String() string {
	if s == Complete {
		return "complete"
	}
	return "in-progress"
}

// Request identifies one stem of one song.
type Request struct {
	URL        string
	SongID     string
	TrackIndex int
}

// ProgressFunc receives the transfer status, bytes moved so far and the
// completed fraction in [0, 1]. Complete with loaded == 0 means the bytes
// came from a warm cache.
type ProgressFunc func(status Status, loaded int64, fraction float64)

// Fetcher loads a stem's encoded bytes. Implementations must stop and
// return ctx.Err() once ctx is cancelled.
type Fetcher interface {
	LoadOrStream(ctx context.Context, req Request, progress ProgressFunc) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, req Request, progress ProgressFunc) ([]byte, error)

func (f FetcherFunc) LoadOrStream(ctx context.Context, req Request, progress ProgressFunc) ([]byte, error) {
	return f(ctx, req, progress)
}
