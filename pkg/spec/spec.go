package spec

import "time"

const (
	// === ENGINE FORMAT ===
	SampleRate = 48000
	Channels   = 2
	FrameSize  = 20 // ms per opus frame
	Precision  = 2  // bytes per sample held in track buffers

	// MaxOutputChannels is the single physical channel ceiling shared by the
	// routing math and the mixing bus (32-channel interfaces, indices 0..31).
	MaxOutputChannels = 32
	MaxPhysicalIndex  = MaxOutputChannels - 1

	// MainOutput fans a track to physical channels 0 and 1.
	MainOutput = 0

	// === LOADER PROGRESS CHECKPOINTS (percent) ===
	NetworkShare   = 70
	DecodeStarted  = 80
	LoadComplete   = 100
	PriorityTracks = 3

	// === METERING ===
	MeterWindow   = 1024
	MeterHeadroom = 3.0
	SpectrumSize  = 1024

	// === DEVICES ===
	DefaultDevice = "default"

	// === CONTAINER MAGICS ===
	OpusStreamMagic = "SDKOPUS1"
	CacheMagic      = "SDKC01"
	Salt            = "SALT"
)

const (
	SettleDelay  = 300 * time.Millisecond
	StaggerDelay = 500 * time.Millisecond
	TickInterval = 33 * time.Millisecond

	// SpeakerBuffer is the latency of the default stereo output.
	SpeakerBuffer = 100 * time.Millisecond
)
