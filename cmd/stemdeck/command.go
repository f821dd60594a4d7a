/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the stemdeck multi-track stem player.
 * This code is provided "as is", without warranty of any kind.
 */
package main

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"stemdeck/internal/device"
	"stemdeck/internal/player"
)

// controller is the slice of the player the command set drives.
type controller interface {
	Play() error
	Pause() error
	Stop() error
	SeekTo(time.Duration) error
	SetTrackVolume(int, float64) error
	SetTrackPan(int, float64) error
	SetTrackMute(int, bool) error
	SetTrackSolo(int, bool) error
	SetTrackOutputChannel(int, int) error
	SetMasterVolume(float64) error
	MasterVolume() float64
	RetryTrack(int) error
	CancelTrack(int) error
	SetGlobalOutputDevice(string) error
	GlobalOutputDevice() string
	AllTrackLevels() []float64
	Tracks() []player.TrackInfo
	Track(int) (player.TrackInfo, error)
	TrackSpectrum(int, int) []float64
	TrackWaveform(int, int) ([]byte, error)
	Position() time.Duration
	Duration() time.Duration
	State() player.TransportState
}

type session struct {
	ctrl    controller
	devices func() ([]string, error)
}

const (
	defaultBands  = 16
	defaultPoints = 64
)

var verbs = []string{
	"PLAY", "PAUSE", "STOP", "SEEK", "VOL", "PAN", "MUTE", "SOLO", "OUT", "MASTER",
	"RETRY", "CANCEL", "DEVICE", "DEVICES", "LEVELS", "TRACK", "SPECTRUM", "WAVEFORM", "STATUS", "QUIT",
}

func argInt(args []string, idx int) (int, bool) {
	if len(args) <= idx {
		return 0, false
	}
	v, err := strconv.Atoi(args[idx])
	if err != nil {
		return 0, false
	}
	return v, true
}

func argFloat(args []string, idx int) (float64, bool) {
	if len(args) <= idx {
		return 0, false
	}
	v, err := strconv.ParseFloat(args[idx], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func argBool(args []string, idx int) (bool, bool) {
	if len(args) <= idx {
		return false, false
	}
	switch strings.ToLower(args[idx]) {
	case "1", "on", "true", "yes":
		return true, true
	case "0", "off", "false", "no":
		return false, true
	}
	return false, false
}

// reply maps a command error to the wire reply.
func reply(err error) string {
	var de *device.DeviceError
	switch {
	case err == nil:
		return "OK"
	case errors.Is(err, player.ErrUnknownTrack):
		return "ERR TRACK_RANGE"
	case errors.Is(err, player.ErrInvalidChannel):
		return "ERR ARG"
	case errors.Is(err, player.ErrDisposed):
		return "ERR DISPOSED"
	case errors.Is(err, device.ErrUnknownDevice):
		return "ERR DEVICE_NOT_FOUND"
	case errors.As(err, &de):
		return "ERR DEVICE"
	default:
		return "ERR INTERNAL"
	}
}

func marshal(v interface{}) string {
	j, err := json.Marshal(v)
	if err != nil {
		return "ERR INTERNAL"
	}
	return string(j)
}

// verbOf returns the upper-cased command word of a line.
func verbOf(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

// execute runs one command line and returns the reply. quit is set for QUIT.
func (s *session) execute(line string) (out string, quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", false
	}
	cmd := strings.ToUpper(fields[0])
	args := fields[1:]

	switch cmd {
	case "PLAY":
		return reply(s.ctrl.Play()), false

	case "PAUSE":
		return reply(s.ctrl.Pause()), false

	case "STOP":
		return reply(s.ctrl.Stop()), false

	case "SEEK":
		sec, ok := argFloat(args, 0)
		if !ok {
			return "ERR ARG", false
		}
		return reply(s.ctrl.SeekTo(time.Duration(sec * float64(time.Second)))), false

	case "VOL", "PAN":
		idx, ok1 := argInt(args, 0)
		v, ok2 := argFloat(args, 1)
		if !ok1 || !ok2 {
			return "ERR ARG", false
		}
		if cmd == "VOL" {
			return reply(s.ctrl.SetTrackVolume(idx, v)), false
		}
		return reply(s.ctrl.SetTrackPan(idx, v)), false

	case "MUTE", "SOLO":
		idx, ok1 := argInt(args, 0)
		on, ok2 := argBool(args, 1)
		if !ok1 || !ok2 {
			return "ERR ARG", false
		}
		if cmd == "MUTE" {
			return reply(s.ctrl.SetTrackMute(idx, on)), false
		}
		return reply(s.ctrl.SetTrackSolo(idx, on)), false

	case "OUT":
		idx, ok1 := argInt(args, 0)
		ch, ok2 := argInt(args, 1)
		if !ok1 || !ok2 {
			return "ERR ARG", false
		}
		return reply(s.ctrl.SetTrackOutputChannel(idx, ch)), false

	case "MASTER":
		if len(args) == 0 {
			return strconv.FormatFloat(s.ctrl.MasterVolume(), 'f', -1, 64), false
		}
		v, ok := argFloat(args, 0)
		if !ok {
			return "ERR ARG", false
		}
		return reply(s.ctrl.SetMasterVolume(v)), false

	case "RETRY", "CANCEL":
		idx, ok := argInt(args, 0)
		if !ok {
			return "ERR ARG", false
		}
		if cmd == "RETRY" {
			return reply(s.ctrl.RetryTrack(idx)), false
		}
		return reply(s.ctrl.CancelTrack(idx)), false

	case "DEVICE":
		if len(args) == 0 {
			return s.ctrl.GlobalOutputDevice(), false
		}
		return reply(s.ctrl.SetGlobalOutputDevice(args[0])), false

	case "DEVICES":
		if s.devices == nil {
			return marshal([]string{}), false
		}
		ids, err := s.devices()
		if err != nil {
			return "ERR DEVICE", false
		}
		return marshal(ids), false

	case "LEVELS":
		return marshal(s.ctrl.AllTrackLevels()), false

	case "TRACK":
		idx, ok := argInt(args, 0)
		if !ok {
			return "ERR ARG", false
		}
		info, err := s.ctrl.Track(idx)
		if err != nil {
			return reply(err), false
		}
		return marshal(trackStatusOf(info)), false

	case "SPECTRUM", "WAVEFORM":
		idx, ok := argInt(args, 0)
		if !ok {
			return "ERR ARG", false
		}
		n := defaultBands
		if cmd == "WAVEFORM" {
			n = defaultPoints
		}
		if len(args) > 1 {
			if n, ok = argInt(args, 1); !ok || n <= 0 {
				return "ERR ARG", false
			}
		}
		if cmd == "SPECTRUM" {
			if _, err := s.ctrl.Track(idx); err != nil {
				return reply(err), false
			}
			return marshal(s.ctrl.TrackSpectrum(idx, n)), false
		}
		wf, err := s.ctrl.TrackWaveform(idx, n)
		if err != nil {
			return reply(err), false
		}
		points := make([]int, len(wf))
		for i, v := range wf {
			points[i] = int(v)
		}
		return marshal(points), false

	case "STATUS":
		return marshal(s.status()), false

	case "QUIT", "EXIT":
		return "BYE", true
	}
	return "ERR UNKNOWN", false
}

type trackStatus struct {
	Index    int     `json:"index"`
	Name     string  `json:"name"`
	State    string  `json:"state"`
	Percent  int     `json:"percent"`
	Volume   float64 `json:"volume"`
	Pan      float64 `json:"pan"`
	Output   int     `json:"output"`
	Channels []int   `json:"channels"`
	Muted    bool    `json:"muted"`
	Solo     bool    `json:"solo"`
	Active   bool    `json:"active"`
	Error    string  `json:"error,omitempty"`
}

type status struct {
	State    string        `json:"state"`
	Position float64       `json:"position"`
	Duration float64       `json:"duration"`
	Device   string        `json:"device"`
	Master   float64       `json:"master"`
	Tracks   []trackStatus `json:"tracks"`
}

func (s *session) status() status {
	st := status{
		State:    s.ctrl.State().String(),
		Position: s.ctrl.Position().Seconds(),
		Duration: s.ctrl.Duration().Seconds(),
		Device:   s.ctrl.GlobalOutputDevice(),
		Master:   s.ctrl.MasterVolume(),
		Tracks:   []trackStatus{},
	}
	for _, t := range s.ctrl.Tracks() {
		st.Tracks = append(st.Tracks, trackStatusOf(t))
	}
	return st
}

func trackStatusOf(t player.TrackInfo) trackStatus {
	ts := trackStatus{
		Index:    t.Index,
		Name:     t.Name,
		State:    t.State.String(),
		Percent:  t.Percent,
		Volume:   t.Volume,
		Pan:      t.Pan,
		Output:   t.Output,
		Channels: t.Channels,
		Muted:    t.Muted,
		Solo:     t.Solo,
		Active:   t.Active,
	}
	if t.Err != nil {
		ts.Error = t.Err.Error()
	}
	return ts
}
