package driveboard

import (
	"context"
	"net/http"
	"strings"
	"sync"
)

// SimulatedBoard is a no-effect Board implementation used when the motor
// controller hardware is absent (or under -dev). It accepts every command so
// the arbitration and status layers stay fully operational, acknowledges each
// command to subscribers the way the real firmware does, and records the
// command stream for inspection. Subscriber channels are tracked so they can
// be deterministically closed on Unsubscribe() or Close(), letting readers
// unblock predictably during shutdown.
type SimulatedBoard struct {
	mu          sync.Mutex
	subscribers map[string]chan string
	commands    []string
	closing     bool
}

func NewSimulatedBoard() *SimulatedBoard {
	return &SimulatedBoard{
		subscribers: make(map[string]chan string),
	}
}

func (b *SimulatedBoard) Subscribe() (string, chan string) {
	id := subscriberID()
	ch := make(chan string)

	b.mu.Lock()
	if b.closing {
		// Already closing: hand back a closed channel so callers don't block.
		close(ch)
		b.mu.Unlock()
		return id, ch
	}
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

func (b *SimulatedBoard) Unsubscribe(id string) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

// Send accepts the command unconditionally and echoes an "ok" ack to
// subscribers, mirroring the firmware's reply format.
func (b *SimulatedBoard) Send(command string) error {
	command = strings.TrimSuffix(command, "\n")

	b.mu.Lock()
	if b.closing {
		b.mu.Unlock()
		return nil
	}
	b.commands = append(b.commands, command)
	ack := "ok " + command
	for _, ch := range b.subscribers {
		select {
		case ch <- ack:
		default:
		}
	}
	b.mu.Unlock()
	return nil
}

// Commands returns a copy of all commands sent to the board so far.
func (b *SimulatedBoard) Commands() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.commands))
	copy(out, b.commands)
	return out
}

// LastCommand returns the most recent command, or "" if none were sent.
func (b *SimulatedBoard) LastCommand() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.commands) == 0 {
		return ""
	}
	return b.commands[len(b.commands)-1]
}

// Reset clears the recorded command stream.
func (b *SimulatedBoard) Reset() {
	b.mu.Lock()
	b.commands = nil
	b.mu.Unlock()
}

func (b *SimulatedBoard) Monitor(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (b *SimulatedBoard) Simulated() bool { return true }

func (b *SimulatedBoard) Close() error {
	b.mu.Lock()
	if b.closing {
		b.mu.Unlock()
		return nil
	}
	b.closing = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
	return nil
}

func (b *SimulatedBoard) AttachAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/board-simulated", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("drive board simulated\n"))
	})
}
