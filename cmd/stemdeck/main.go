/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the stemdeck multi-track stem player.
 * This code is provided "as is", without warranty of any kind.
 */
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"stemdeck/internal/cache"
	"stemdeck/internal/config"
	"stemdeck/internal/device"
	"stemdeck/internal/player"
	"stemdeck/pkg/audioengine"

	"github.com/rs/zerolog"
)

const (
	version_major = 1
	version_minor = 0
	app_name      = "stemdeck"
)

func main() {
	cfg := config.Load()
	manifestPath := flag.String("manifest", cfg.ManifestPath, "song manifest (yaml)")
	socket := flag.String("socket", "", "also accept commands on this unix socket, e.g. /tmp/stemdeck.sock")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(cfg.LogLevel).With().Timestamp().Logger()
	log.Info().Int("major", version_major).Int("minor", version_minor).Msg(app_name)

	manifest, err := config.LoadManifest(*manifestPath)
	if err != nil {
		log.Fatal().Err(err).Str("manifest", *manifestPath).Msg("cannot load manifest")
	}

	store := cache.New(cache.Options{
		Dir:        cfg.CacheDir,
		Passphrase: cfg.CacheKey,
		Logger:     log.With().Str("component", "cache").Logger(),
	})

	bus := audioengine.NewBus()
	backend := device.NewSpeakerBackend(bus, log)
	devices := device.NewManager(backend, log.With().Str("component", "device").Logger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if w, err := device.NewWatcher(device.DefaultDebounce, device.SoundDir); err != nil {
		log.Warn().Err(err).Msg("device hot-plug watch unavailable")
	} else {
		defer w.Close()
		go devices.Run(ctx, w.Events)
	}

	ev := newEvents()
	bar := newProgress(os.Stderr)

	p, err := player.New(player.Options{
		SongID:        manifest.SongID,
		Tracks:        manifest.TrackConfigs(),
		Fetcher:       store,
		Bus:           bus,
		Devices:       devices,
		PriorityCount: cfg.PriorityTracks,
		SettleDelay:   cfg.SettleDelay,
		StaggerDelay:  cfg.StaggerDelay,
		TickInterval:  cfg.TickInterval,
		OnLoadProgress: func(f float64) {
			bar.set(f)
			ev.emit("LOAD_PROGRESS", map[string]interface{}{"fraction": f})
		},
		OnTrackProgress: func(tp player.TrackProgress) {
			fields := map[string]interface{}{
				"index":   tp.Index,
				"status":  tp.Status.String(),
				"percent": tp.Percent,
			}
			if tp.Err != nil {
				fields["error"] = tp.Err.Error()
				log.Error().Err(tp.Err).Int("track", tp.Index).Msg("track failed")
			}
			ev.emit("TRACK", fields)
		},
		OnReady: func() {
			log.Info().Str("song", manifest.SongID).Msg("ready")
			ev.emit("READY", nil)
		},
		OnTimeUpdate: func(pos time.Duration) {
			ev.emit("TIME", map[string]interface{}{"position": pos.Seconds()})
		},
		OnOutputDeviceChanged: func(id string) {
			log.Warn().Str("device", id).Msg("output device changed")
			ev.emit("DEVICE", map[string]interface{}{"device": id})
		},
		Logger: log.With().Str("component", "player").Logger(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("cannot create player")
	}
	defer p.Dispose()

	if err := p.SetGlobalOutputDevice(cfg.Device); err != nil {
		if devices.Bound() {
			log.Warn().Err(err).Str("device", cfg.Device).Str("output", devices.OutputDevice()).Msg("device selection failed, using fallback")
		} else {
			log.Error().Err(err).Str("device", cfg.Device).Msg("no output device could be bound")
		}
	}

	sess := &session{ctrl: p, devices: backend.Devices}

	if *socket != "" {
		srv := &ipcServer{sess: sess, events: ev, log: log}
		if err := srv.listen(*socket); err != nil {
			log.Fatal().Err(err).Msg("control socket")
		}
		defer srv.close()
	}

	if err := runConsole(sess); err != nil {
		log.Error().Err(err).Msg("console")
	}
}
