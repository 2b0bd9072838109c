package motion

import (
	"math"
	"testing"
	"time"

	"github.com/pi-tank/tankd/internal/config"
	"github.com/pi-tank/tankd/internal/driveboard"
	"github.com/pi-tank/tankd/internal/timeutil"
)

func newTestActuator(t *testing.T) (*Actuator, *driveboard.SimulatedBoard) {
	t.Helper()
	board := driveboard.NewSimulatedBoard()
	t.Cleanup(func() { board.Close() })
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	act := NewActuator(board, clock, config.EmptyTuningConfig())
	board.Reset() // drop the startup servo positioning commands
	return act, board
}

func TestSetTrackSpeedRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		speed float64
		want  MotorState
	}{
		{"full forward", 1.0, MotorState{Direction: DirForward, Duty: 1.0}},
		{"half forward", 0.5, MotorState{Direction: DirForward, Duty: 0.5}},
		{"stopped", 0, MotorState{Direction: DirIdle, Duty: 0}},
		{"half backward", -0.5, MotorState{Direction: DirBackward, Duty: 0.5}},
		{"full backward", -1.0, MotorState{Direction: DirBackward, Duty: 1.0}},
		{"clamped above", 2.5, MotorState{Direction: DirForward, Duty: 1.0}},
		{"clamped below", -3.0, MotorState{Direction: DirBackward, Duty: 1.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			act, _ := newTestActuator(t)
			for _, track := range []Track{TrackLeft, TrackRight} {
				if err := act.SetTrackSpeed(track, tt.speed); err != nil {
					t.Fatalf("SetTrackSpeed(%v, %v) error = %v", track, tt.speed, err)
				}
				if got := act.TrackState(track); got != tt.want {
					t.Errorf("TrackState(%v) = %+v, want %+v", track, got, tt.want)
				}
			}
		})
	}
}

func TestSetTrackSpeedNaNIdlesTrack(t *testing.T) {
	// NaN passes both clamp comparisons unchanged, so it must be caught
	// explicitly: the track idles and the board sees the idle form, never
	// a "ML+NaN" literal.
	act, board := newTestActuator(t)

	if err := act.SetTrackSpeed(TrackLeft, math.NaN()); err != nil {
		t.Fatalf("SetTrackSpeed(NaN) error = %v", err)
	}
	if got := act.TrackState(TrackLeft); got != (MotorState{Direction: DirIdle, Duty: 0}) {
		t.Errorf("TrackState = %+v, want idle", got)
	}
	cmds := board.Commands()
	if len(cmds) != 1 || cmds[0] != "ML0" {
		t.Errorf("board commands = %v, want [ML0]", cmds)
	}
}

func TestDirectionMutualExclusion(t *testing.T) {
	// Every accepted speed yields exactly one direction; a reversal must
	// pass through a single signed command, never an overlap of both.
	act, _ := newTestActuator(t)

	seq := []float64{1, -1, 0.3, -0.7, 0, 1, 0}
	for _, s := range seq {
		if err := act.SetTrackSpeed(TrackLeft, s); err != nil {
			t.Fatalf("SetTrackSpeed error = %v", err)
		}
		st := act.TrackState(TrackLeft)
		if st.Direction == DirForward && s <= 0 {
			t.Errorf("speed %v reported forward", s)
		}
		if st.Direction == DirBackward && s >= 0 {
			t.Errorf("speed %v reported backward", s)
		}
		if st.Direction == DirIdle && s != 0 {
			t.Errorf("speed %v reported idle", s)
		}
		if st.Duty < 0 || st.Duty > 1 {
			t.Errorf("duty %v out of range for speed %v", st.Duty, s)
		}
	}
}

func TestTrackCommandFormat(t *testing.T) {
	act, board := newTestActuator(t)

	if err := act.SetTrackSpeed(TrackLeft, 0.5); err != nil {
		t.Fatal(err)
	}
	if got := board.LastCommand(); got != "ML+0.50" {
		t.Errorf("command = %q, want %q", got, "ML+0.50")
	}

	if err := act.SetTrackSpeed(TrackRight, -0.25); err != nil {
		t.Fatal(err)
	}
	if got := board.LastCommand(); got != "MR-0.25" {
		t.Errorf("command = %q, want %q", got, "MR-0.25")
	}

	if err := act.SetTrackSpeed(TrackLeft, 0); err != nil {
		t.Fatal(err)
	}
	if got := board.LastCommand(); got != "ML0" {
		t.Errorf("command = %q, want %q", got, "ML0")
	}
}

func TestStopAllZeroesBothTracks(t *testing.T) {
	act, _ := newTestActuator(t)

	if err := act.SetTrackSpeed(TrackLeft, 0.9); err != nil {
		t.Fatal(err)
	}
	if err := act.SetTrackSpeed(TrackRight, -0.9); err != nil {
		t.Fatal(err)
	}

	if err := act.StopAll(); err != nil {
		t.Fatalf("StopAll() error = %v", err)
	}

	want := MotorState{Direction: DirIdle, Duty: 0}
	if got := act.TrackState(TrackLeft); got != want {
		t.Errorf("left after StopAll = %+v, want %+v", got, want)
	}
	if got := act.TrackState(TrackRight); got != want {
		t.Errorf("right after StopAll = %+v, want %+v", got, want)
	}
}

func TestUnknownTrackRejected(t *testing.T) {
	act, board := newTestActuator(t)
	if err := act.SetTrackSpeed(Track(7), 1); err == nil {
		t.Fatal("SetTrackSpeed accepted an unknown track")
	}
	if got := board.LastCommand(); got != "" {
		t.Errorf("rejected command still reached the board: %q", got)
	}
}

func TestSimulatedReporting(t *testing.T) {
	act, _ := newTestActuator(t)
	if !act.Simulated() {
		t.Error("actuator over a simulated board must report Simulated() = true")
	}
}
