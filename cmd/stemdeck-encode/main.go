/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the stemdeck multi-track stem player.
 * This code is provided "as is", without warranty of any kind.
 */

package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const (
	version_major = 1
	version_minor = 0
	usage_text    = "Usage: stemdeck-encode -sourcepath (WAV[s] Path) -destpath (stem Path) [-workers 4]"
	app_name      = "stemdeck-encode"
)

func main() {
	sourcePath := flag.String("sourcepath", "", "directory of source WAV stems")
	destPath := flag.String("destpath", "", "directory for encoded stems")
	workers := flag.Int("workers", 2, "simultaneous encodes")
	flag.Parse()

	if *sourcePath == "" || *destPath == "" {
		fmt.Printf("%s version %d.%d\n", app_name, version_major, version_minor)
		fmt.Printf("%s\n", usage_text)
		return
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()

	files, err := collect(*sourcePath)
	if err != nil {
		log.Fatal().Err(err).Str("source", *sourcePath).Msg("cannot scan source")
	}
	if err := os.MkdirAll(*destPath, 0o755); err != nil {
		log.Fatal().Err(err).Str("dest", *destPath).Msg("cannot create destination")
	}

	log.Info().Int("files", len(files)).Int("workers", *workers).Msg("encoding")
	results := encodeAll(files, *destPath, *workers)

	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			log.Error().Err(r.err).Str("file", r.src).Msg("encode failed")
			continue
		}
		log.Info().Str("file", r.dst).Dur("length", r.length).Msg("encoded")
	}
	if failed > 0 {
		os.Exit(1)
	}
}
