package player

import (
	"stemdeck/pkg/audioengine"
	"stemdeck/pkg/spec"
)

// TrackLevel returns a 0..1 loudness estimate for the track. It is 0 unless
// the transport is playing and the track is loaded.
func (p *Player) TrackLevel(index int) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed || index < 0 || index >= len(p.tracks) {
		return 0
	}
	return p.levelLocked(p.tracks[index])
}

// AllTrackLevels returns TrackLevel for every track in index order.
func (p *Player) AllTrackLevels() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.levelsLocked()
}

func (p *Player) levelsLocked() []float64 {
	out := make([]float64, len(p.tracks))
	if p.disposed {
		return out
	}
	for i, t := range p.tracks {
		out[i] = p.levelLocked(t)
	}
	return out
}

func (p *Player) levelLocked(t *track) float64 {
	if p.tr.state != Playing || t.tap == nil || t.buffer == nil {
		return 0
	}
	return audioengine.Level(t.tap.Samples(spec.MeterWindow), spec.MeterHeadroom)
}

// TrackSpectrum returns band magnitudes of the track's recent signal, all
// zero under the same conditions as TrackLevel.
func (p *Player) TrackSpectrum(index, bands int) []float64 {
	if bands <= 0 {
		return nil
	}
	p.mu.Lock()
	if p.disposed || index < 0 || index >= len(p.tracks) {
		p.mu.Unlock()
		return make([]float64, bands)
	}
	t := p.tracks[index]
	if p.tr.state != Playing || t.tap == nil || t.buffer == nil {
		p.mu.Unlock()
		return make([]float64, bands)
	}
	samples := t.tap.Samples(spec.SpectrumSize)
	p.mu.Unlock()
	return audioengine.Spectrum(samples, bands)
}
