package core

import (
	"github.com/mnemos-dev/gbcore/core/debug"
	"github.com/mnemos-dev/gbcore/core/input/action"
	"github.com/mnemos-dev/gbcore/core/timing"
	"github.com/mnemos-dev/gbcore/core/video"
)

// EmulatorController is the interface backends use to drive any emulator
// implementation (a real cartridge or a test pattern) without depending on
// its concrete type.
type EmulatorController interface {
	RunUntilFrame() error
	GetCurrentFrame() *video.FrameBuffer
	HandleAction(act action.Action, pressed bool)
	ExtractDebugData() *debug.CompleteDebugData
	SetFrameLimiter(limiter timing.Limiter)
	ResetFrameTiming()
}
