// Package cache implements fetch.Fetcher over HTTP and local files, keeping
// an encrypted copy of every stem on disk so the next load is instant.
package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"stemdeck/internal/fetch"
	"stemdeck/internal/security"
	"stemdeck/pkg/spec"

	"github.com/rs/zerolog"
)

var ErrHTTPStatus = errors.New("cache: unexpected http status")

const chunkSize = 32 * 1024

type Options struct {
	// Dir holds the cache entries. Empty disables caching.
	Dir        string
	Passphrase string
	Client     *http.Client
	Logger     zerolog.Logger
}

type Store struct {
	dir    string
	key    []byte
	client *http.Client
	log    zerolog.Logger
}

func New(opts Options) *Store {
	s := &Store{
		dir:    opts.Dir,
		key:    security.DeriveKey(opts.Passphrase, []byte(spec.Salt)),
		client: opts.Client,
		log:    opts.Logger.With().Str("component", "cache").Logger(),
	}
	if s.client == nil {
		s.client = http.DefaultClient
	}
	return s
}

// LoadOrStream returns the stem bytes, from the cache when a valid entry
// exists and from the source otherwise.
func (s *Store) LoadOrStream(ctx context.Context, req fetch.Request, progress fetch.ProgressFunc) ([]byte, error) {
	if progress == nil {
		progress = func(fetch.Status, int64, float64) {}
	}
	path := s.Path(req)

	if data, ok := s.readEntry(path); ok {
		s.log.Debug().Str("url", req.URL).Int("track", req.TrackIndex).Msg("cache hit")
		progress(fetch.Complete, 0, 1)
		return data, nil
	}

	data, err := s.stream(ctx, req.URL, progress)
	if err != nil {
		return nil, err
	}
	if err := s.writeEntry(path, data); err != nil {
		s.log.Warn().Err(err).Str("url", req.URL).Msg("cache write failed")
	}
	progress(fetch.Complete, int64(len(data)), 1)
	return data, nil
}

// Path returns where the entry for req lives, or "" with caching disabled.
func (s *Store) Path(req fetch.Request) string {
	if s.dir == "" {
		return ""
	}
	return filepath.Join(s.dir, security.Fingerprint(req.SongID, strconv.Itoa(req.TrackIndex), req.URL))
}

func (s *Store) open(ctx context.Context, src string) (io.ReadCloser, int64, error) {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
		if err != nil {
			return nil, 0, err
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, 0, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			return nil, 0, fmt.Errorf("%w: GET %s: %s", ErrHTTPStatus, src, resp.Status)
		}
		return resp.Body, resp.ContentLength, nil
	}

	f, err := os.Open(strings.TrimPrefix(src, "file://"))
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

func (s *Store) stream(ctx context.Context, src string, progress fetch.ProgressFunc) ([]byte, error) {
	rc, total, err := s.open(ctx, src)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var out bytes.Buffer
	if total > 0 {
		out.Grow(int(total))
	}
	chunk := make([]byte, chunkSize)
	var loaded int64
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := rc.Read(chunk)
		if n > 0 {
			out.Write(chunk[:n])
			loaded += int64(n)
			frac := 0.0
			if total > 0 {
				frac = float64(loaded) / float64(total)
				if frac > 1 {
					frac = 1
				}
			}
			progress(fetch.InProgress, loaded, frac)
		}
		if err == io.EOF {
			return out.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (s *Store) readEntry(path string) ([]byte, bool) {
	if path == "" {
		return nil, false
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	if !bytes.HasPrefix(raw, []byte(spec.CacheMagic)) {
		s.discard(path, errors.New("bad magic"))
		return nil, false
	}
	data, err := security.Decrypt(raw[len(spec.CacheMagic):], s.key)
	if err != nil {
		s.discard(path, err)
		return nil, false
	}
	return data, true
}

func (s *Store) discard(path string, cause error) {
	s.log.Warn().Err(cause).Str("entry", filepath.Base(path)).Msg("dropping unreadable cache entry")
	os.Remove(path)
}

func (s *Store) writeEntry(path string, data []byte) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	sealed, err := security.Encrypt(data, s.key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write([]byte(spec.CacheMagic)); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

var _ fetch.Fetcher = (*Store)(nil)
