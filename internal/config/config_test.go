package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stemdeck/pkg/spec"

	"github.com/rs/zerolog"
)

// --- Environment ---

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{
		"STEMDECK_MANIFEST", "STEMDECK_CACHE_DIR", "STEMDECK_CACHE_KEY",
		"STEMDECK_DEVICE", "STEMDECK_PRIORITY", "STEMDECK_SETTLE_MS",
		"STEMDECK_STAGGER_MS", "STEMDECK_TICK_MS", "STEMDECK_LOG_LEVEL",
	} {
		os.Unsetenv(k)
	}

	cfg := Load()
	if cfg.ManifestPath != "song.yaml" {
		t.Errorf("ManifestPath = %q, want song.yaml", cfg.ManifestPath)
	}
	if cfg.Device != spec.DefaultDevice {
		t.Errorf("Device = %q, want default", cfg.Device)
	}
	if cfg.PriorityTracks != 3 {
		t.Errorf("PriorityTracks = %d, want 3", cfg.PriorityTracks)
	}
	if cfg.SettleDelay != 300*time.Millisecond || cfg.StaggerDelay != 500*time.Millisecond {
		t.Errorf("delays = %v / %v, want 300ms / 500ms", cfg.SettleDelay, cfg.StaggerDelay)
	}
	if cfg.TickInterval != 33*time.Millisecond {
		t.Errorf("TickInterval = %v, want 33ms", cfg.TickInterval)
	}
	if cfg.LogLevel != zerolog.InfoLevel {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
	if cfg.CacheDir == "" {
		t.Error("CacheDir should have a default")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STEMDECK_MANIFEST", "/srv/songs/amazing.yaml")
	t.Setenv("STEMDECK_CACHE_DIR", "/tmp/stems")
	t.Setenv("STEMDECK_CACHE_KEY", "hunter2")
	t.Setenv("STEMDECK_DEVICE", "USB")
	t.Setenv("STEMDECK_PRIORITY", "5")
	t.Setenv("STEMDECK_SETTLE_MS", "0")
	t.Setenv("STEMDECK_STAGGER_MS", "1000")
	t.Setenv("STEMDECK_TICK_MS", "16")
	t.Setenv("STEMDECK_LOG_LEVEL", "debug")

	cfg := Load()
	if cfg.ManifestPath != "/srv/songs/amazing.yaml" || cfg.CacheDir != "/tmp/stems" || cfg.CacheKey != "hunter2" {
		t.Errorf("paths = %+v", cfg)
	}
	if cfg.Device != "USB" || cfg.PriorityTracks != 5 {
		t.Errorf("Device = %q, PriorityTracks = %d", cfg.Device, cfg.PriorityTracks)
	}
	if cfg.SettleDelay >= 0 {
		t.Errorf("SettleDelay = %v, want disabled (negative)", cfg.SettleDelay)
	}
	if cfg.StaggerDelay != time.Second || cfg.TickInterval != 16*time.Millisecond {
		t.Errorf("StaggerDelay = %v, TickInterval = %v", cfg.StaggerDelay, cfg.TickInterval)
	}
	if cfg.LogLevel != zerolog.DebugLevel {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
}

func TestInvalidEnvFallsBack(t *testing.T) {
	t.Setenv("STEMDECK_PRIORITY", "many")
	t.Setenv("STEMDECK_SETTLE_MS", "-5")
	t.Setenv("STEMDECK_LOG_LEVEL", "shouty")
	cfg := Load()
	if cfg.PriorityTracks != 3 || cfg.SettleDelay != 300*time.Millisecond || cfg.LogLevel != zerolog.InfoLevel {
		t.Errorf("invalid values did not fall back: %+v", cfg)
	}
}

// --- Manifest ---

const manifestYAML = `
song_id: way-maker
title: Way Maker
tracks:
  - name: Click
    url: stems/click.opus
    output: 5
    volume: 0.8
  - name: Drums
    url: https://cdn.example.com/drums.wav
    pan: -3
  - name: Bass
    url: /abs/bass.wav
    muted: true
    volume: -1
  - url: stems/pad.mp3
    solo: true
`

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.yaml")
	os.WriteFile(path, []byte(manifestYAML), 0o644)

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if m.SongID != "way-maker" || m.Title != "Way Maker" || len(m.Tracks) != 4 {
		t.Fatalf("manifest = %+v", m)
	}
	if m.Tracks[0].URL != filepath.Join(dir, "stems/click.opus") {
		t.Errorf("relative url = %q", m.Tracks[0].URL)
	}
	if m.Tracks[1].URL != "https://cdn.example.com/drums.wav" || m.Tracks[2].URL != "/abs/bass.wav" {
		t.Errorf("absolute urls rewritten: %q %q", m.Tracks[1].URL, m.Tracks[2].URL)
	}

	tc := m.TrackConfigs()
	if *tc[0].Volume != 0.8 || tc[0].Output != 5 {
		t.Errorf("click = %+v", tc[0])
	}
	if *tc[1].Volume != 1 || tc[1].Pan != -1 {
		t.Errorf("drums = %+v, want default volume and clamped pan", tc[1])
	}
	if *tc[2].Volume != 0 || !tc[2].Muted {
		t.Errorf("bass = %+v", tc[2])
	}
	if tc[3].Name != "track 4" || !tc[3].Solo {
		t.Errorf("pad = %+v", tc[3])
	}
}

func TestManifestSongIDFromFilename(t *testing.T) {
	path := filepath.Join(t.TempDir(), "goodness.yaml")
	os.WriteFile(path, []byte("tracks:\n  - url: a.wav\n"), 0o644)
	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if m.SongID != "goodness" {
		t.Errorf("SongID = %q, want goodness", m.SongID)
	}
}

func TestParseManifestErrors(t *testing.T) {
	if _, err := ParseManifest([]byte("song_id: x\n")); !errors.Is(err, ErrNoTracks) {
		t.Errorf("empty tracks err = %v, want ErrNoTracks", err)
	}
	if _, err := ParseManifest([]byte("tracks:\n  - name: nourl\n")); err == nil {
		t.Error("missing url accepted")
	}
	if _, err := ParseManifest([]byte("tracks:\n  - url: a\n    output: -2\n")); err == nil {
		t.Error("negative output accepted")
	}
	if _, err := ParseManifest([]byte("tracks: [")); err == nil {
		t.Error("broken yaml accepted")
	}
	if _, err := LoadManifest(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file err = %v", err)
	}
}
