package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// progress draws the whole-song load bar on a single terminal line.
type progress struct {
	w     io.Writer
	width int

	mu   sync.Mutex
	done bool
}

func newProgress(w io.Writer) *progress {
	return &progress{w: w, width: 30}
}

func (p *progress) set(fraction float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return
	}
	fmt.Fprint(p.w, "\r"+p.render(fraction))
	if fraction >= 1 {
		p.done = true
		fmt.Fprintln(p.w)
	}
}

func (p *progress) render(fraction float64) string {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	filled := int(float64(p.width) * fraction)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", p.width-filled)
	return fmt.Sprintf(" [LOADING] [%s] %d%%", bar, int(fraction*100))
}
