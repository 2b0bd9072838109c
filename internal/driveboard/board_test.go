package driveboard

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// fakePort implements Porter for exercising Mux without real hardware.
type fakePort struct {
	readData    []byte
	readIndex   int
	writtenData bytes.Buffer
	writeErr    error
	shortWrite  bool
	closed      bool
	mu          sync.Mutex
}

func newFakePort(data string) *fakePort {
	return &fakePort{readData: []byte(data)}
}

func (p *fakePort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.EOF
	}
	if p.readIndex >= len(p.readData) {
		// Block briefly to simulate waiting for more data.
		time.Sleep(10 * time.Millisecond)
		if p.closed {
			return 0, io.EOF
		}
		return 0, nil
	}
	n := copy(buf, p.readData[p.readIndex:])
	p.readIndex += n
	return n, nil
}

func (p *fakePort) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	if p.shortWrite {
		return p.writtenData.Write(data[:len(data)-1])
	}
	return p.writtenData.Write(data)
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) WrittenData() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writtenData.String()
}

func TestSendAppendsNewline(t *testing.T) {
	port := newFakePort("")
	mux := NewMux(port)

	if err := mux.Send("ML+0.50"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := port.WrittenData(); got != "ML+0.50\n" {
		t.Errorf("written data = %q, want %q", got, "ML+0.50\n")
	}

	// A command already carrying the terminator is not doubled.
	if err := mux.Send("MR-0.25\n"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := port.WrittenData(); got != "ML+0.50\nMR-0.25\n" {
		t.Errorf("written data = %q", got)
	}
}

func TestSendWriteFailures(t *testing.T) {
	port := newFakePort("")
	mux := NewMux(port)

	wantErr := errors.New("port gone")
	port.writeErr = wantErr
	if err := mux.Send("SC120"); !errors.Is(err, wantErr) {
		t.Errorf("Send() error = %v, want %v", err, wantErr)
	}

	port.writeErr = nil
	port.shortWrite = true
	if err := mux.Send("SC120"); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("Send() error = %v, want ErrWriteFailed", err)
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	mux := NewMux(newFakePort(""))

	id1, ch1 := mux.Subscribe()
	id2, ch2 := mux.Subscribe()

	if id1 == "" || id2 == "" {
		t.Fatal("Subscribe returned empty ID")
	}
	if id1 == id2 {
		t.Error("subscriber IDs should be unique")
	}
	if ch1 == nil || ch2 == nil {
		t.Fatal("Subscribe returned nil channel")
	}

	mux.Unsubscribe(id1)
	if _, ok := <-ch1; ok {
		t.Error("unsubscribed channel not closed")
	}

	// Unsubscribing an unknown ID is a no-op.
	mux.Unsubscribe("no-such-id")

	mux.Unsubscribe(id2)
	if _, ok := <-ch2; ok {
		t.Error("unsubscribed channel not closed")
	}
}

func TestMonitorFansOutLines(t *testing.T) {
	port := newFakePort("ok ML+1.00\nerr servo stall\n")
	mux := NewMux(port)

	_, ch := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()

	want := []string{"ok ML+1.00", "err servo stall"}
	for _, w := range want {
		select {
		case line := <-ch:
			if line != w {
				t.Errorf("line = %q, want %q", line, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for line %q", w)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Monitor() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Monitor did not return after cancellation")
	}
}

func TestCloseClosesSubscribersAndPort(t *testing.T) {
	port := newFakePort("")
	mux := NewMux(port)

	_, ch := mux.Subscribe()
	if err := mux.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, ok := <-ch; ok {
		t.Error("subscriber channel not closed on Close")
	}
	if !port.closed {
		t.Error("port not closed on Close")
	}
	if mux.Simulated() {
		t.Error("Mux reports simulated")
	}
}

func TestPortOptionsNormalize(t *testing.T) {
	tests := []struct {
		name    string
		opts    PortOptions
		want    PortOptions
		wantErr bool
	}{
		{
			name: "zero values get defaults",
			opts: PortOptions{},
			want: PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"},
		},
		{
			name: "parity names normalized",
			opts: PortOptions{Parity: "even"},
			want: PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "E"},
		},
		{name: "invalid data bits", opts: PortOptions{DataBits: 9}, wantErr: true},
		{name: "invalid stop bits", opts: PortOptions{StopBits: 3}, wantErr: true},
		{name: "invalid parity", opts: PortOptions{Parity: "mark"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.opts.Normalize()
			if tt.wantErr {
				if err == nil {
					t.Errorf("Normalize() accepted %+v", tt.opts)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
