/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the stemdeck multi-track stem player.
 * This code is provided "as is", without warranty of any kind.
 */
package main

import (
	"encoding/json"
	"sync"
)

// listenerBuffer is about three seconds of TIME events at the default tick.
const listenerBuffer = 96

// events fans player notifications out to every subscriber as
// "EVENT {json}" lines.
type events struct {
	mu        sync.RWMutex
	listeners map[*listener]struct{}
}

// listener receives event lines on a buffered channel.
type listener struct {
	C    chan string
	done chan struct{}
}

func newEvents() *events {
	return &events{listeners: make(map[*listener]struct{})}
}

func (e *events) subscribe() *listener {
	l := &listener{C: make(chan string, listenerBuffer), done: make(chan struct{})}
	e.mu.Lock()
	e.listeners[l] = struct{}{}
	e.mu.Unlock()
	return l
}

func (e *events) unsubscribe(l *listener) {
	e.mu.Lock()
	if _, ok := e.listeners[l]; ok {
		delete(e.listeners, l)
		close(l.done)
	}
	e.mu.Unlock()
}

func (e *events) count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners)
}

// emit never blocks: a listener whose buffer is full misses the event.
func (e *events) emit(t string, fields map[string]interface{}) {
	ev := map[string]interface{}{"type": t}
	for k, v := range fields {
		ev[k] = v
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	line := "EVENT " + string(b)

	e.mu.RLock()
	for l := range e.listeners {
		select {
		case l.C <- line:
		default:
		}
	}
	e.mu.RUnlock()
}
