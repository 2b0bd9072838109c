package timeutil

import (
	"testing"
	"time"
)

func TestMockClockAdvance(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	if got := c.Now(); !got.Equal(start) {
		t.Fatalf("Now() = %v, want %v", got, start)
	}

	c.Advance(75 * time.Millisecond)
	if got := c.Since(start); got != 75*time.Millisecond {
		t.Errorf("Since(start) = %v, want 75ms", got)
	}
}

func TestMockClockAfter(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	ch := c.After(50 * time.Millisecond)

	select {
	case <-ch:
		t.Fatal("After fired before the clock advanced")
	default:
	}

	c.Advance(50 * time.Millisecond)
	select {
	case <-ch:
	default:
		t.Fatal("After did not fire at the deadline")
	}
}

func TestMockClockSleepRecords(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	c.Sleep(20 * time.Millisecond)
	c.Sleep(30 * time.Millisecond)

	sleeps := c.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != 20*time.Millisecond || sleeps[1] != 30*time.Millisecond {
		t.Errorf("Sleeps() = %v, want [20ms 30ms]", sleeps)
	}
}

func TestMockTicker(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	ticker := c.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	c.Advance(100 * time.Millisecond)
	select {
	case <-ticker.C():
	default:
		t.Fatal("ticker did not fire after one interval")
	}

	ticker.Stop()
	c.Advance(time.Second)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestRealClockTicker(t *testing.T) {
	var c Clock = RealClock{}
	ticker := c.NewTicker(time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Fatal("real ticker did not tick within 1s")
	}
}
