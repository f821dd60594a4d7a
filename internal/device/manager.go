// Package device binds the final mix to a physical output and follows it
// across hot-plug events.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"stemdeck/pkg/spec"

	"github.com/rs/zerolog"
)

var ErrUnknownDevice = errors.New("device: unknown output device")

// DeviceError reports a selection or binding failure for one device id.
type DeviceError struct {
	ID  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device %q: %v", e.ID, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Backend is the platform side of output selection.
type Backend interface {
	// Available reports whether output selection is supported at all.
	Available() bool
	// Devices lists selectable ids. The list may omit "default".
	Devices() ([]string, error)
	Bind(id string) error
	Release() error
}

// Manager holds the selected output id. It never owns the physical device:
// the id is re-resolved against the backend on every change event.
type Manager struct {
	mu       sync.Mutex
	backend  Backend
	current  string
	bound    bool
	onChange func(id string)
	log      zerolog.Logger
}

// NewManager returns a manager bound to nothing yet. A nil backend behaves
// like a platform without selection support.
func NewManager(b Backend, log zerolog.Logger) *Manager {
	return &Manager{
		backend: b,
		current: spec.DefaultDevice,
		log:     log.With().Str("component", "device").Logger(),
	}
}

// OnChange registers the callback fired when the manager switches device on
// its own, e.g. after the selected device disappeared.
func (m *Manager) OnChange(fn func(id string)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

func (m *Manager) OutputDevice() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Manager) available() bool {
	return m.backend != nil && m.backend.Available()
}

// SetOutputDevice selects and binds an output. Without selection support
// only the default output is bound. When a selection fails and nothing is
// bound yet, the default output is bound before the error is returned.
func (m *Manager) SetOutputDevice(id string) error {
	if id == "" {
		id = spec.DefaultDevice
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.available() {
		m.log.Debug().Str("device", id).Msg("output selection unsupported, keeping default")
		m.ensureDefaultLocked()
		return nil
	}
	if err := m.selectLocked(id); err != nil {
		m.ensureDefaultLocked()
		return err
	}
	return nil
}

func (m *Manager) selectLocked(id string) error {
	if id != spec.DefaultDevice {
		ids, err := m.backend.Devices()
		if err != nil {
			return &DeviceError{ID: id, Err: err}
		}
		if !contains(ids, id) {
			return &DeviceError{ID: id, Err: ErrUnknownDevice}
		}
	}
	if err := m.backend.Bind(id); err != nil {
		return &DeviceError{ID: id, Err: err}
	}
	m.current = id
	m.bound = true
	m.log.Info().Str("device", id).Msg("output bound")
	return nil
}

// ensureDefaultLocked binds the default output if nothing is bound.
func (m *Manager) ensureDefaultLocked() {
	if m.bound || m.backend == nil {
		return
	}
	if err := m.backend.Bind(spec.DefaultDevice); err != nil {
		m.log.Error().Err(err).Msg("binding default output failed")
		return
	}
	m.current = spec.DefaultDevice
	m.bound = true
	m.log.Info().Msg("default output bound")
}

// Bound reports whether an output is currently bound.
func (m *Manager) Bound() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bound
}

// HandleDeviceChange reacts to one hot-plug event.
func (m *Manager) HandleDeviceChange() {
	m.mu.Lock()
	if !m.available() {
		m.mu.Unlock()
		return
	}

	cur := m.current
	fellBack := false
	switch {
	case cur == spec.DefaultDevice:
		err := m.backend.Bind(spec.DefaultDevice)
		if err != nil {
			m.log.Error().Err(err).Msg("re-binding default output failed")
		}
		m.bound = err == nil

	default:
		ids, err := m.backend.Devices()
		if err != nil {
			m.log.Warn().Err(err).Msg("device enumeration failed, keeping selection")
			break
		}
		if !contains(ids, cur) {
			m.log.Warn().Str("device", cur).Msg("selected output disappeared")
		} else if err := m.backend.Bind(cur); err != nil {
			m.log.Warn().Err(err).Str("device", cur).Msg("re-bind failed")
		} else {
			m.bound = true
			break
		}
		err = m.backend.Bind(spec.DefaultDevice)
		if err != nil {
			m.log.Error().Err(err).Msg("binding default output failed")
		}
		m.bound = err == nil
		m.current = spec.DefaultDevice
		fellBack = true
	}
	notify := m.onChange
	m.mu.Unlock()

	if fellBack && notify != nil {
		notify(spec.DefaultDevice)
	}
}

// Run calls HandleDeviceChange for every event until ctx is done or events
// is closed.
func (m *Manager) Run(ctx context.Context, events <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			m.HandleDeviceChange()
		}
	}
}

// Release frees the physical binding.
func (m *Manager) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backend == nil {
		return nil
	}
	m.bound = false
	return m.backend.Release()
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
