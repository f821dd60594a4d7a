/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the stemdeck multi-track stem player.
 * This code is provided "as is", without warranty of any kind.
 */
package main

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ipcServer exposes the console command set on a unix socket. One client at
// a time owns control; the others may only query.
type ipcServer struct {
	sess   *session
	events *events
	log    zerolog.Logger

	mu    sync.Mutex
	owner net.Conn
	ln    net.Listener
}

var readOnly = map[string]bool{
	"STATUS": true, "LEVELS": true, "DEVICES": true, "TRACK": true,
	"SPECTRUM": true, "WAVEFORM": true, "QUIT": true, "EXIT": true,
}

// isQuery reports whether a line only reads state. DEVICE and MASTER are
// queries without an argument.
func isQuery(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}
	verb := strings.ToUpper(fields[0])
	switch verb {
	case "DEVICE", "MASTER":
		return len(fields) == 1
	}
	return readOnly[verb]
}

func (s *ipcServer) claimOwner(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner == nil {
		s.owner = c
		return true
	}
	return s.owner == c
}

func (s *ipcServer) releaseOwner(c net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner == c {
		s.owner = nil
	}
}

func (s *ipcServer) listen(path string) error {
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("ipc: listen %s: %w", path, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.log.Info().Str("socket", path).Msg("control socket listening")

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				continue
			}
			go s.handleConn(c)
		}
	}()
	return nil
}

func (s *ipcServer) close() error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	return ln.Close()
}

func (s *ipcServer) handleConn(c net.Conn) {
	defer c.Close()
	defer s.releaseOwner(c)

	var wmu sync.Mutex
	write := func(line string) {
		wmu.Lock()
		defer wmu.Unlock()
		_, _ = fmt.Fprintln(c, line)
	}

	l := s.events.subscribe()
	defer s.events.unsubscribe(l)
	go func() {
		for {
			select {
			case line := <-l.C:
				write(line)
			case <-l.done:
				return
			}
		}
	}()

	sc := bufio.NewScanner(c)
	for sc.Scan() {
		line := sc.Text()
		if verbOf(line) == "" {
			continue
		}
		if !isQuery(line) && !s.claimOwner(c) {
			write("ERR NOT_OWNER")
			continue
		}
		out, quit := s.sess.execute(line)
		write(out)
		if quit {
			return
		}
	}
}
