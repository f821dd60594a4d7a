package device

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"sync"

	"stemdeck/pkg/spec"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/rs/zerolog"
)

// CardsPath is where the kernel lists ALSA sound cards.
const CardsPath = "/proc/asound/cards"

// cardEnv selects the card used by ALSA's "default" pcm.
const cardEnv = "ALSA_PCM_CARD"

// Card is one entry of /proc/asound/cards.
type Card struct {
	Index int
	ID    string
	Name  string
}

var cardLine = regexp.MustCompile(`^\s*(\d+)\s+\[(\S+)\s*\]:\s*(.*)$`)

// ParseCards reads the /proc/asound/cards format.
func ParseCards(r io.Reader) ([]Card, error) {
	var cards []Card
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		m := cardLine.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		cards = append(cards, Card{Index: idx, ID: m[2], Name: m[3]})
	}
	return cards, sc.Err()
}

// SpeakerBackend plays a stereo source through beep's speaker. Device ids
// are ALSA card ids.
type SpeakerBackend struct {
	CardsPath string

	mu     sync.Mutex
	source beep.Streamer
	bound  bool
	log    zerolog.Logger
}

func NewSpeakerBackend(source beep.Streamer, log zerolog.Logger) *SpeakerBackend {
	return &SpeakerBackend{
		CardsPath: CardsPath,
		source:    source,
		log:       log.With().Str("component", "speaker").Logger(),
	}
}

func (s *SpeakerBackend) Available() bool {
	_, err := os.Stat(s.CardsPath)
	return err == nil
}

func (s *SpeakerBackend) Cards() ([]Card, error) {
	f, err := os.Open(s.CardsPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseCards(f)
}

func (s *SpeakerBackend) Devices() ([]string, error) {
	cards, err := s.Cards()
	if err != nil {
		return nil, err
	}
	ids := []string{spec.DefaultDevice}
	for _, c := range cards {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// Bind re-initialises the speaker on the given card and resumes the source.
func (s *SpeakerBackend) Bind(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == spec.DefaultDevice {
		os.Unsetenv(cardEnv)
	} else {
		os.Setenv(cardEnv, id)
	}

	if s.bound {
		speaker.Clear()
	}
	sr := beep.SampleRate(spec.SampleRate)
	if err := speaker.Init(sr, sr.N(spec.SpeakerBuffer)); err != nil {
		s.bound = false
		return fmt.Errorf("speaker init: %w", err)
	}
	speaker.Play(s.source)
	s.bound = true
	s.log.Debug().Str("card", id).Msg("speaker initialised")
	return nil
}

func (s *SpeakerBackend) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.bound {
		return nil
	}
	speaker.Clear()
	speaker.Close()
	s.bound = false
	return nil
}

var _ Backend = (*SpeakerBackend)(nil)
