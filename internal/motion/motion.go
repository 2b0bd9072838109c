// Package motion owns the physical track motors and the crane/grabber servos
// behind the drive board. It guarantees a mutually-exclusive direction state
// per track: the board protocol carries a single signed duty per track, so
// forward and backward drive outputs can never be asserted together.
package motion

import (
	"fmt"
	"math"
	"sync"

	"github.com/pi-tank/tankd/internal/config"
	"github.com/pi-tank/tankd/internal/driveboard"
	"github.com/pi-tank/tankd/internal/timeutil"
)

// Track identifies one independently driven side of the tank drive.
type Track int

const (
	TrackLeft Track = iota
	TrackRight
)

func (t Track) String() string {
	switch t {
	case TrackLeft:
		return "left"
	case TrackRight:
		return "right"
	}
	return fmt.Sprintf("track(%d)", int(t))
}

// Direction is the drive state of a single track.
type Direction string

const (
	DirIdle     Direction = "idle"
	DirForward  Direction = "forward"
	DirBackward Direction = "backward"
)

// MotorState is the observable state of one track motor.
type MotorState struct {
	Direction Direction `json:"direction"`
	Duty      float64   `json:"duty"`
}

// Actuator drives the tank's two track motors and the crane servos through a
// drive board. When the board is simulated it tracks state identically but
// performs no physical effect, keeping the rest of the system operational
// and testable without hardware.
type Actuator struct {
	board driveboard.Board
	clock timeutil.Clock

	tracks [2]trackSlot

	crane craneState
}

type trackSlot struct {
	mu    sync.Mutex
	state MotorState
}

// NewActuator creates an Actuator over the given board and moves the crane
// servos to their startup positions (crane raised, grabber open).
func NewActuator(board driveboard.Board, clock timeutil.Clock, cfg *config.TuningConfig) *Actuator {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	a := &Actuator{
		board: board,
		clock: clock,
	}
	a.tracks[TrackLeft].state = MotorState{Direction: DirIdle}
	a.tracks[TrackRight].state = MotorState{Direction: DirIdle}

	a.crane.stepDegrees = cfg.GetCraneStepDegrees()
	a.crane.stepDelay = cfg.GetCraneStepDelay()
	a.crane.craneAngle = craneStartAngle
	a.crane.grabberAngle = grabberStartAngle

	// Startup positions. Failures are ignored: a simulated board never
	// fails and a flaky real board must not prevent startup.
	_ = a.board.Send(fmt.Sprintf("%s%d", cmdCraneServo, craneStartAngle))
	_ = a.board.Send(fmt.Sprintf("%s%d", cmdGrabberServo, grabberStartAngle))

	return a
}

// Simulated reports whether the actuator is running without physical effect.
func (a *Actuator) Simulated() bool { return a.board.Simulated() }

// Drive board command verbs.
const (
	cmdLeftTrack    = "ML"
	cmdRightTrack   = "MR"
	cmdCraneServo   = "SC"
	cmdGrabberServo = "SG"
)

// clamp bounds v to [lo,hi]. NaN collapses to zero so it can never reach
// the board as a malformed duty.
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// trackCommand formats the board command for a signed track speed.
// Zero is the explicit idle form so the firmware deasserts both drive pins.
func trackCommand(track Track, speed float64) string {
	verb := cmdLeftTrack
	if track == TrackRight {
		verb = cmdRightTrack
	}
	if speed == 0 {
		return verb + "0"
	}
	return fmt.Sprintf("%s%+.2f", verb, speed)
}

// SetTrackSpeed sets one track's drive state from a normalized speed.
// The speed is clamped to [-1,1]; zero transitions the track to idle.
// The state update and the board write are atomic with respect to
// concurrent submissions on the same track.
func (a *Actuator) SetTrackSpeed(track Track, speed float64) error {
	if track != TrackLeft && track != TrackRight {
		return fmt.Errorf("unknown track %d", int(track))
	}
	speed = clamp(speed, -1, 1)

	next := MotorState{Direction: DirIdle}
	switch {
	case speed > 0:
		next = MotorState{Direction: DirForward, Duty: speed}
	case speed < 0:
		next = MotorState{Direction: DirBackward, Duty: -speed}
	}

	slot := &a.tracks[track]
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if err := a.board.Send(trackCommand(track, speed)); err != nil {
		return fmt.Errorf("failed to drive %s track: %w", track, err)
	}
	slot.state = next
	return nil
}

// StopAll zeroes both tracks. Both tracks are attempted even if the first
// write fails; the first error is returned.
func (a *Actuator) StopAll() error {
	errLeft := a.SetTrackSpeed(TrackLeft, 0)
	errRight := a.SetTrackSpeed(TrackRight, 0)
	if errLeft != nil {
		return errLeft
	}
	return errRight
}

// TrackState returns a read-only snapshot of one track motor.
func (a *Actuator) TrackState(track Track) MotorState {
	slot := &a.tracks[track]
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.state
}

// MotorsSnapshot is a point-in-time view of both tracks for status reporting.
type MotorsSnapshot struct {
	Left  MotorState `json:"left"`
	Right MotorState `json:"right"`
}

// Motors returns the current state of both tracks.
func (a *Actuator) Motors() MotorsSnapshot {
	return MotorsSnapshot{
		Left:  a.TrackState(TrackLeft),
		Right: a.TrackState(TrackRight),
	}
}
