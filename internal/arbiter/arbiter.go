// Package arbiter normalizes heterogeneous operator inputs (discrete web
// commands and continuous analog stick polls) into track speed targets and
// forwards them to the actuation layer.
//
// Precedence between concurrently active sources is most-recent-write-wins:
// there is a single shared target per track and every accepted submission
// overwrites it. The discrete path never consults the continuous-source rate
// window, so an emergency stop is always deliverable even while an analog
// poll is in flight.
package arbiter

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/pi-tank/tankd/internal/config"
	"github.com/pi-tank/tankd/internal/motion"
	"github.com/pi-tank/tankd/internal/timeutil"
)

// InputError marks an operator input rejected without any state mutation.
type InputError struct {
	msg string
}

func (e *InputError) Error() string { return e.msg }

func inputErrorf(format string, v ...interface{}) error {
	return &InputError{msg: fmt.Sprintf(format, v...)}
}

// IsInputError reports whether err is an input rejection rather than a
// hardware failure.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// discreteTargets maps each discrete command to its full-speed track target.
var discreteTargets = map[string][2]float64{
	"forward":  {1, 1},
	"backward": {-1, -1},
	"left":     {-1, 1},
	"right":    {1, -1},
	"stop":     {0, 0},
}

// craneCommands is the set of crane/grabber verbs accepted over the wire.
var craneCommands = map[string]motion.CraneCommand{
	"crane_up":      motion.CraneUp,
	"crane_down":    motion.CraneDown,
	"crane_stop":    motion.CraneStop,
	"grabber_open":  motion.GrabberOpen,
	"grabber_close": motion.GrabberClose,
	"grabber_stop":  motion.GrabberStop,
}

// AnalogInput carries one poll of the operator's analog sticks. Axis values
// are normalized to [-1,1] with positive Y meaning forward. RightY is nil
// when only a single stick is available, in which case X steers via
// differential mixing.
type AnalogInput struct {
	LeftY  float64
	RightY *float64
	X      float64
}

// Arbiter turns operator inputs into actuation calls.
type Arbiter struct {
	act      *motion.Actuator
	clock    timeutil.Clock
	deadzone float64
	window   time.Duration

	mu          sync.Mutex
	lastForward time.Time
	forwarded   bool
}

// New creates an Arbiter over the given actuator.
func New(act *motion.Actuator, clock timeutil.Clock, cfg *config.TuningConfig) *Arbiter {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	return &Arbiter{
		act:      act,
		clock:    clock,
		deadzone: cfg.GetDeadzoneRadius(),
		window:   cfg.GetAnalogWindow(),
	}
}

// SubmitDiscrete applies one discrete drive command at full speed. Unknown
// commands are rejected with an input error and mutate nothing. The discrete
// path bypasses the analog rate window entirely, so "stop" always lands.
func (a *Arbiter) SubmitDiscrete(cmd string) error {
	target, ok := discreteTargets[cmd]
	if !ok {
		return inputErrorf("unknown command %q", cmd)
	}
	return a.applyTarget(target[0], target[1])
}

// SubmitAnalog applies one analog stick poll. Out-of-range axis values are
// rejected with an input error. At most one poll per rate window is
// forwarded to the actuator; polls arriving inside the window are dropped,
// not queued, since the next poll supersedes them.
func (a *Arbiter) SubmitAnalog(in AnalogInput) error {
	if err := checkAxis("left_stick_y", in.LeftY); err != nil {
		return err
	}
	if in.RightY != nil {
		if err := checkAxis("right_stick_y", *in.RightY); err != nil {
			return err
		}
	}
	if err := checkAxis("left_stick_x", in.X); err != nil {
		return err
	}

	left, right := a.mix(in)

	a.mu.Lock()
	if a.forwarded && a.clock.Since(a.lastForward) < a.window {
		a.mu.Unlock()
		return nil // inside the window: dropped, superseded by the next poll
	}
	a.lastForward = a.clock.Now()
	a.forwarded = true
	a.mu.Unlock()

	return a.applyTarget(left, right)
}

// SubmitCrane dispatches one crane/grabber verb. Crane commands share no
// lock with the track path; the two subsystems are mechanically independent.
func (a *Arbiter) SubmitCrane(cmd string) error {
	verb, ok := craneCommands[cmd]
	if !ok {
		return inputErrorf("unknown crane command %q", cmd)
	}
	return a.act.HandleCrane(verb)
}

func checkAxis(name string, v float64) error {
	if math.IsNaN(v) || v < -1 || v > 1 {
		return inputErrorf("%s value %v out of range [-1,1]", name, v)
	}
	return nil
}

// mix converts a stick poll into per-track speeds.
func (a *Arbiter) mix(in AnalogInput) (left, right float64) {
	y := applyDeadzone(in.LeftY, a.deadzone)

	if in.RightY != nil {
		// Dual stick: each stick drives its own track directly.
		return y, applyDeadzone(*in.RightY, a.deadzone)
	}

	// Single stick: differential mix of throttle and steer, normalized so
	// neither track exceeds unit magnitude.
	x := applyDeadzone(in.X, a.deadzone)
	left = y - x
	right = y + x
	scale := math.Max(math.Max(math.Abs(left), math.Abs(right)), 1.0)
	return left / scale, right / scale
}

// applyDeadzone zeroes values inside the deadzone and rescales the remaining
// range linearly so full deflection still reaches ±1.
func applyDeadzone(v, deadzone float64) float64 {
	if math.Abs(v) < deadzone {
		return 0
	}
	if v > 0 {
		return (v - deadzone) / (1 - deadzone)
	}
	return (v + deadzone) / (1 - deadzone)
}

func (a *Arbiter) applyTarget(left, right float64) error {
	if err := a.act.SetTrackSpeed(motion.TrackLeft, left); err != nil {
		return err
	}
	return a.act.SetTrackSpeed(motion.TrackRight, right)
}
