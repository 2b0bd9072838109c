package camera

import (
	"context"
	"sync"
	"time"
)

// Frame is one encoded JPEG frame with its position in the stream.
type Frame struct {
	Data []byte
	Seq  uint64
	Time time.Time
	Mode Mode
}

// Hub holds the single most recent frame. Publishing replaces the slot
// unconditionally; a consumer that falls behind observes frame skips, never
// backpressure on the producer.
type Hub struct {
	mu     sync.Mutex
	frame  Frame
	seq    uint64
	notify chan struct{}
}

func NewHub() *Hub {
	return &Hub{notify: make(chan struct{})}
}

// Publish stores f as the current frame and wakes all waiting consumers.
func (h *Hub) Publish(f Frame) {
	h.mu.Lock()
	h.seq++
	f.Seq = h.seq
	h.frame = f
	close(h.notify)
	h.notify = make(chan struct{})
	h.mu.Unlock()
}

// Latest returns the current frame, if any frame has been published yet.
func (h *Hub) Latest() (Frame, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frame, h.seq > 0
}

// Next blocks until a frame newer than after is available. Consumers pass
// the Seq of the last frame they handled; passing 0 returns the first frame
// published.
func (h *Hub) Next(ctx context.Context, after uint64) (Frame, error) {
	for {
		h.mu.Lock()
		if h.seq > after {
			f := h.frame
			h.mu.Unlock()
			return f, nil
		}
		ch := h.notify
		h.mu.Unlock()
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-ch:
		}
	}
}
