// Package driveboard provides an abstraction over the serial line to the
// tank's motor controller PCB, with the ability for multiple clients to
// subscribe to telemetry lines from the board and to send actuation commands
// to the single board device.
package driveboard

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

var ErrWriteFailed = fmt.Errorf("failed to write to drive board")

// Board defines the interface between the actuation layer and the physical
// (or simulated) motor controller.
type Board interface {
	// Subscribe creates a new channel for receiving telemetry lines from the
	// board. The returned ID identifies the channel when unsubscribing.
	Subscribe() (string, chan string)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// Send writes the provided command line to the board.
	Send(string) error
	// Monitor reads telemetry lines from the board and fans them out to
	// subscribers until the context is cancelled.
	Monitor(context.Context) error
	// Close closes all subscribed channels and the underlying port.
	Close() error
	// Simulated reports whether the board performs physical effects.
	Simulated() bool

	// AttachAdminRoutes attaches debugging endpoints to the given HTTP mux
	// under /debug/. These routes are reachable only over localhost or
	// Tailscale, never from the operator-facing surface.
	AttachAdminRoutes(*http.ServeMux)
}

// Mux is a serial multiplexer for the drive board: one writer lock over the
// command stream, many telemetry subscribers.
type Mux[T Porter] struct {
	port         T
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// NewMux creates a Mux backed by the given port.
func NewMux[T Porter](port T) *Mux[T] {
	return &Mux[T]{
		port:        port,
		subscribers: make(map[string]chan string),
	}
}

// subscriberID generates a random channel ID.
func subscriberID() string {
	return uuid.NewString()
}

func (m *Mux[T]) Subscribe() (string, chan string) {
	id := subscriberID()
	ch := make(chan string)
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the mux.
func (m *Mux[T]) Unsubscribe(id string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

// Send writes a command line to the board.
func (m *Mux[T]) Send(command string) error {
	m.commandMu.Lock()
	defer m.commandMu.Unlock()
	if !bytes.HasSuffix([]byte(command), []byte("\n")) {
		command += "\n" // board commands are newline-terminated
	}
	n, err := m.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Simulated reports false: a Mux always fronts a real port.
func (m *Mux[T]) Simulated() bool { return false }

// Monitor reads telemetry lines from the board and fans them out to
// subscribers.
func (m *Mux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(m.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// Read from the port in its own goroutine so the blocking scan.Scan does
	// not interfere with awaiting context cancellation below.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				// channel closed: the port has nothing more to give
				if err := scan.Err(); err != nil {
					return err
				}
				return nil
			}

			m.closingMu.Lock()
			if m.closing {
				m.closingMu.Unlock()
				return nil
			}
			m.closingMu.Unlock()

			m.subscriberMu.Lock()
			for _, ch := range m.subscribers {
				select {
				case ch <- line:
				default:
					// skip full/blocked channels so one slow subscriber
					// cannot stall the board reader
				}
			}
			m.subscriberMu.Unlock()
		}
	}
}

func (m *Mux[T]) Close() error {
	m.closingMu.Lock()
	m.closing = true
	m.closingMu.Unlock()

	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	return m.port.Close()
}
