package player

import (
	"sort"

	"stemdeck/pkg/audioengine"
	"stemdeck/pkg/spec"
)

// channelsPerPair is the number of output options behind each stereo pair:
// the pair itself, its left channel alone, its right channel alone.
const channelsPerPair = 3

func clampPhysical(ch int) int {
	if ch > spec.MaxPhysicalIndex {
		return spec.MaxPhysicalIndex
	}
	return ch
}

// RoutesFor maps a logical output channel to bus routes. Channel 0 is Main
// (physical 0 and 1); every further group of three channels addresses one
// physical pair as stereo, left mono, right mono.
func RoutesFor(channel int) []audioengine.Route {
	if channel <= spec.MainOutput {
		return []audioengine.Route{
			{Channel: 0, Source: audioengine.SourceLeft},
			{Channel: 1, Source: audioengine.SourceRight},
		}
	}

	ext := channel - 1
	base := (ext / channelsPerPair) * 2
	switch ext % channelsPerPair {
	case 0:
		l, r := clampPhysical(base), clampPhysical(base+1)
		if l == r {
			return []audioengine.Route{{Channel: l, Source: audioengine.SourceMono}}
		}
		return []audioengine.Route{
			{Channel: l, Source: audioengine.SourceLeft},
			{Channel: r, Source: audioengine.SourceRight},
		}
	case 1:
		return []audioengine.Route{{Channel: clampPhysical(base), Source: audioengine.SourceMono}}
	default:
		return []audioengine.Route{{Channel: clampPhysical(base + 1), Source: audioengine.SourceMono}}
	}
}

// routesFor is the mapping the player applies to the bus.
var routesFor = RoutesFor

// PhysicalChannels returns the sorted physical channel set for a logical
// output channel.
func PhysicalChannels(channel int) []int {
	routes := RoutesFor(channel)
	out := make([]int, 0, len(routes))
	for _, r := range routes {
		out = append(out, r.Channel)
	}
	sort.Ints(out)
	return out
}

// RoutingTable records the physical channels each track feeds.
type RoutingTable struct {
	routes map[int][]int
}

func NewRoutingTable() *RoutingTable {
	return &RoutingTable{routes: make(map[int][]int)}
}

// Assign replaces the track's channel set with the one for channel and
// reports which physical channels were detached and which attached.
func (rt *RoutingTable) Assign(track, channel int) (detached, attached []int) {
	old := rt.routes[track]
	next := PhysicalChannels(channel)
	detached = difference(old, next)
	attached = difference(next, old)
	rt.routes[track] = next
	return detached, attached
}

// Channels returns a copy of the track's current physical channels.
func (rt *RoutingTable) Channels(track int) []int {
	return append([]int(nil), rt.routes[track]...)
}

func difference(a, b []int) []int {
	var out []int
	for _, v := range a {
		found := false
		for _, w := range b {
			if v == w {
				found = true
				break
			}
		}
		if !found {
			out = append(out, v)
		}
	}
	return out
}

// Flags are a track's user-set mute and solo switches.
type Flags struct {
	Muted bool
	Solo  bool
}

// Audibility resolves mute and solo across all tracks into a 0 or 1 gain
// per track. Any solo wins over every mute.
func Audibility(flags []Flags) []float64 {
	anySolo := false
	for _, f := range flags {
		if f.Solo {
			anySolo = true
			break
		}
	}
	out := make([]float64, len(flags))
	for i, f := range flags {
		switch {
		case anySolo && f.Solo:
			out[i] = 1
		case anySolo:
			out[i] = 0
		case f.Muted:
			out[i] = 0
		default:
			out[i] = 1
		}
	}
	return out
}
