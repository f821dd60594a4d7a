package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"stemdeck/internal/player"

	"gopkg.in/yaml.v3"
)

var ErrNoTracks = errors.New("config: manifest has no tracks")

// Manifest describes one song and its stems.
type Manifest struct {
	SongID string       `yaml:"song_id"`
	Title  string       `yaml:"title"`
	Tracks []TrackEntry `yaml:"tracks"`
}

type TrackEntry struct {
	Name   string   `yaml:"name"`
	URL    string   `yaml:"url"`
	Volume *float64 `yaml:"volume,omitempty"`
	Pan    float64  `yaml:"pan,omitempty"`
	Output int      `yaml:"output,omitempty"`
	Muted  bool     `yaml:"muted,omitempty"`
	Solo   bool     `yaml:"solo,omitempty"`
}

// LoadManifest parses a YAML manifest. Relative local stem paths resolve
// against the manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	base := filepath.Dir(path)
	for i := range m.Tracks {
		u := m.Tracks[i].URL
		if !strings.Contains(u, "://") && !filepath.IsAbs(u) {
			m.Tracks[i].URL = filepath.Join(base, u)
		}
	}
	if m.SongID == "" {
		m.SongID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return m, nil
}

func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(m.Tracks) == 0 {
		return nil, ErrNoTracks
	}
	for i, t := range m.Tracks {
		if t.URL == "" {
			return nil, fmt.Errorf("track %d (%s): missing url", i, t.Name)
		}
		if t.Output < 0 {
			return nil, fmt.Errorf("track %d (%s): negative output %d", i, t.Name, t.Output)
		}
	}
	return &m, nil
}

// TrackConfigs converts manifest entries to player settings. Volume
// defaults to 1 and pan is clamped to [-1, 1].
func (m *Manifest) TrackConfigs() []player.TrackConfig {
	out := make([]player.TrackConfig, len(m.Tracks))
	for i, t := range m.Tracks {
		vol := 1.0
		if t.Volume != nil {
			vol = *t.Volume
		}
		if vol < 0 {
			vol = 0
		}
		pan := t.Pan
		if pan < -1 {
			pan = -1
		} else if pan > 1 {
			pan = 1
		}
		name := t.Name
		if name == "" {
			name = fmt.Sprintf("track %d", i+1)
		}
		out[i] = player.TrackConfig{
			Name:   name,
			URL:    t.URL,
			Volume: &vol,
			Pan:    pan,
			Output: t.Output,
			Muted:  t.Muted,
			Solo:   t.Solo,
		}
	}
	return out
}
