package motion

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// CraneCommand is one of the crane/grabber verbs accepted by the actuator.
type CraneCommand string

const (
	CraneUp      CraneCommand = "crane_up"
	CraneDown    CraneCommand = "crane_down"
	CraneStop    CraneCommand = "crane_stop"
	GrabberOpen  CraneCommand = "grabber_open"
	GrabberClose CraneCommand = "grabber_close"
	GrabberStop  CraneCommand = "grabber_stop"
)

// Servo angle limits for the crane kit. 90° is crane-down/grabber-open,
// 150° is crane-up/grabber-closed.
const (
	craneMinAngle     = 90
	craneMaxAngle     = 150
	grabberMinAngle   = 90
	grabberMaxAngle   = 150
	craneStartAngle   = 140
	grabberStartAngle = 90
)

type craneState struct {
	mu           sync.Mutex
	craneAngle   int
	grabberAngle int
	stepDegrees  int
	stepDelay    time.Duration

	// Ramp generations. A new verb bumps the generation so an in-flight
	// ramp aborts at its current angle; this is what keeps up and down
	// mutually exclusive without sharing the track locks.
	craneGen   atomic.Uint64
	grabberGen atomic.Uint64
}

// CraneStatus reports the crane and grabber servo positions.
type CraneStatus struct {
	CraneAngle      int    `json:"crane_angle"`
	GrabberAngle    int    `json:"grabber_angle"`
	CranePosition   string `json:"crane_position"`   // "up" or "down"
	GrabberPosition string `json:"grabber_position"` // "open" or "closed"
}

// HandleCrane executes one crane/grabber verb. Movement verbs ramp the servo
// gradually and return once the target angle is reached or the ramp is
// aborted by a later verb; stop verbs return immediately.
func (a *Actuator) HandleCrane(cmd CraneCommand) error {
	switch cmd {
	case CraneUp:
		return a.rampCrane(craneMaxAngle)
	case CraneDown:
		return a.rampCrane(craneMinAngle)
	case CraneStop:
		a.crane.craneGen.Add(1)
		return nil
	case GrabberOpen:
		return a.rampGrabber(grabberMinAngle)
	case GrabberClose:
		return a.rampGrabber(grabberMaxAngle)
	case GrabberStop:
		a.crane.grabberGen.Add(1)
		return nil
	}
	return fmt.Errorf("unknown crane command %q", string(cmd))
}

// CraneState returns a read-only snapshot of the crane and grabber servos.
func (a *Actuator) CraneState() CraneStatus {
	a.crane.mu.Lock()
	defer a.crane.mu.Unlock()

	st := CraneStatus{
		CraneAngle:      a.crane.craneAngle,
		GrabberAngle:    a.crane.grabberAngle,
		CranePosition:   "down",
		GrabberPosition: "open",
	}
	if a.crane.craneAngle > 120 {
		st.CranePosition = "up"
	}
	if a.crane.grabberAngle > 120 {
		st.GrabberPosition = "closed"
	}
	return st
}

func clampAngle(angle, lo, hi int) int {
	if angle < lo {
		return lo
	}
	if angle > hi {
		return hi
	}
	return angle
}

func (a *Actuator) rampCrane(target int) error {
	gen := a.crane.craneGen.Add(1)
	target = clampAngle(target, craneMinAngle, craneMaxAngle)

	a.crane.mu.Lock()
	defer a.crane.mu.Unlock()

	for a.crane.craneAngle != target {
		if a.crane.craneGen.Load() != gen {
			return nil // superseded or stopped, hold current angle
		}
		step := a.crane.stepDegrees
		if target < a.crane.craneAngle {
			step = -step
		}
		next := clampAngle(a.crane.craneAngle+step, craneMinAngle, craneMaxAngle)
		if (step > 0 && next > target) || (step < 0 && next < target) {
			next = target
		}
		if err := a.board.Send(fmt.Sprintf("%s%d", cmdCraneServo, next)); err != nil {
			return fmt.Errorf("failed to move crane: %w", err)
		}
		a.crane.craneAngle = next
		a.clock.Sleep(a.crane.stepDelay)
	}
	return nil
}

func (a *Actuator) rampGrabber(target int) error {
	gen := a.crane.grabberGen.Add(1)
	target = clampAngle(target, grabberMinAngle, grabberMaxAngle)

	a.crane.mu.Lock()
	defer a.crane.mu.Unlock()

	for a.crane.grabberAngle != target {
		if a.crane.grabberGen.Load() != gen {
			return nil
		}
		step := a.crane.stepDegrees
		if target < a.crane.grabberAngle {
			step = -step
		}
		next := clampAngle(a.crane.grabberAngle+step, grabberMinAngle, grabberMaxAngle)
		if (step > 0 && next > target) || (step < 0 && next < target) {
			next = target
		}
		if err := a.board.Send(fmt.Sprintf("%s%d", cmdGrabberServo, next)); err != nil {
			return fmt.Errorf("failed to move grabber: %w", err)
		}
		a.crane.grabberAngle = next
		a.clock.Sleep(a.crane.stepDelay)
	}
	return nil
}
