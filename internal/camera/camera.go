// Package camera acquires frames from whatever capture hardware is
// available and publishes them as JPEG through a single-slot hub.
//
// Acquisition walks a fixed fallback chain: the primary camera is tried
// with several configuration variants, then alternate device indices are
// probed, and if everything fails the pipeline synthesizes placeholder
// frames so downstream consumers always have something to stream. A
// mid-stream capture failure re-enters the chain from the top.
package camera

import (
	"context"
	"sync"
	"time"

	"github.com/pi-tank/tankd/internal/monitoring"
	"github.com/pi-tank/tankd/internal/timeutil"
)

// Mode reports which acquisition source is currently feeding the hub.
type Mode string

const (
	ModeUninitialized Mode = "uninitialized"
	ModePrimary       Mode = "primary"
	ModeSecondary     Mode = "secondary"
	ModeDegraded      Mode = "degraded"
)

// Options configures a Pipeline. Zero values fall back to workable
// defaults so tests can set only what they exercise.
type Options struct {
	Opener           Opener
	PrimaryIndex     int
	SecondaryIndices []int
	Width            int
	Height           int
	Interval         time.Duration
	AcquireTimeout   time.Duration
	JPEGQuality      int
	Clock            timeutil.Clock
	// OnModeChange, if set, is called whenever the acquisition mode
	// transitions. It runs on the pipeline goroutine and must not block.
	OnModeChange func(from, to Mode)
}

// Pipeline owns the acquisition loop and the frame hub.
type Pipeline struct {
	opts  Options
	clock timeutil.Clock
	hub   *Hub

	mu   sync.Mutex
	mode Mode
}

func NewPipeline(opts Options) *Pipeline {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.SecondaryIndices == nil {
		opts.SecondaryIndices = []int{1, 2, 3}
	}
	if opts.Width <= 0 {
		opts.Width = 640
	}
	if opts.Height <= 0 {
		opts.Height = 480
	}
	if opts.Interval <= 0 {
		opts.Interval = 33 * time.Millisecond
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = 2 * time.Second
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 80
	}
	return &Pipeline{
		opts:  opts,
		clock: opts.Clock,
		hub:   NewHub(),
		mode:  ModeUninitialized,
	}
}

// Hub returns the frame hub consumers subscribe to.
func (p *Pipeline) Hub() *Hub { return p.hub }

// Mode returns the current acquisition mode.
func (p *Pipeline) Mode() Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// Streaming reports whether frames originate from a real capture device.
// Degraded placeholder frames do not count.
func (p *Pipeline) Streaming() bool {
	m := p.Mode()
	return m == ModePrimary || m == ModeSecondary
}

func (p *Pipeline) setMode(m Mode) {
	p.mu.Lock()
	from := p.mode
	p.mode = m
	p.mu.Unlock()
	if from == m {
		return
	}
	monitoring.Logf("camera: mode %s -> %s", from, m)
	if p.opts.OnModeChange != nil {
		p.opts.OnModeChange(from, m)
	}
}

// Run drives acquisition until ctx is canceled. It never returns early on
// capture failures: every failure path lands in degraded synthesis, which
// produces frames indefinitely.
func (p *Pipeline) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		dev, mode, probe := p.acquire(ctx)
		if dev == nil {
			if ctx.Err() != nil {
				break
			}
			p.setMode(ModeDegraded)
			p.runDegraded(ctx)
			break
		}
		p.setMode(mode)
		if probe != nil {
			p.publish(probe, mode)
		}
		p.stream(ctx, dev, mode)
		dev.Close()
	}
	return ctx.Err()
}

// acquire walks the fallback chain and returns an open, configured device
// that has produced at least one frame, along with that probe frame's
// encoded bytes. A nil device means the whole chain was exhausted.
func (p *Pipeline) acquire(ctx context.Context) (Device, Mode, []byte) {
	if dev, probe := p.tryPrimary(ctx); dev != nil {
		return dev, ModePrimary, probe
	}
	if dev, probe := p.trySecondary(ctx); dev != nil {
		return dev, ModeSecondary, probe
	}
	return nil, ModeDegraded, nil
}

func (p *Pipeline) tryPrimary(ctx context.Context) (Device, []byte) {
	dev, err := p.opts.Opener(p.opts.PrimaryIndex)
	if err != nil {
		monitoring.Logf("camera: primary device %d: %v", p.opts.PrimaryIndex, err)
		return nil, nil
	}
	for _, variant := range primaryVariants(p.opts.Width, p.opts.Height) {
		if ctx.Err() != nil {
			break
		}
		if err := dev.Configure(variant); err != nil {
			monitoring.Logf("camera: primary variant %s: %v", variant.Name, err)
			continue
		}
		probe, err := p.probe(dev)
		if err != nil {
			monitoring.Logf("camera: primary variant %s probe: %v", variant.Name, err)
			continue
		}
		monitoring.Logf("camera: primary device %d up (variant %s)", p.opts.PrimaryIndex, variant.Name)
		return dev, probe
	}
	dev.Close()
	return nil, nil
}

func (p *Pipeline) trySecondary(ctx context.Context) (Device, []byte) {
	variant := secondaryVariant(p.opts.Width, p.opts.Height)
	for _, idx := range p.opts.SecondaryIndices {
		if ctx.Err() != nil {
			break
		}
		dev, err := p.opts.Opener(idx)
		if err != nil {
			monitoring.Logf("camera: secondary device %d: %v", idx, err)
			continue
		}
		if err := dev.Configure(variant); err != nil {
			monitoring.Logf("camera: secondary device %d configure: %v", idx, err)
			dev.Close()
			continue
		}
		probe, err := p.probe(dev)
		if err != nil {
			monitoring.Logf("camera: secondary device %d probe: %v", idx, err)
			dev.Close()
			continue
		}
		monitoring.Logf("camera: secondary device %d up", idx)
		return dev, probe
	}
	return nil, nil
}

// probe reads and encodes one frame, proving the configuration actually
// delivers usable data before the device is adopted.
func (p *Pipeline) probe(dev Device) ([]byte, error) {
	img, err := dev.ReadFrame(p.opts.AcquireTimeout)
	if err != nil {
		return nil, err
	}
	return encodeJPEG(img, p.opts.JPEGQuality)
}

// stream reads frames at the nominal interval until a capture error or
// cancellation. Per-frame encode failures are skipped; read failures end
// the stream so the caller re-enters fallback.
func (p *Pipeline) stream(ctx context.Context, dev Device, mode Mode) {
	ticker := p.clock.NewTicker(p.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
		}
		img, err := dev.ReadFrame(p.opts.AcquireTimeout)
		if err != nil {
			monitoring.Logf("camera: capture failed, re-evaluating sources: %v", err)
			return
		}
		data, err := encodeJPEG(img, p.opts.JPEGQuality)
		if err != nil {
			monitoring.Logf("camera: dropping frame: %v", err)
			continue
		}
		p.publish(data, mode)
	}
}

// runDegraded publishes synthesized placeholder frames until cancellation.
// Degraded mode persists for the life of the process; recovery requires a
// restart.
func (p *Pipeline) runDegraded(ctx context.Context) {
	emit := func() {
		data, err := synthesizeFrame(p.opts.Width, p.opts.Height, p.clock.Now(), p.opts.JPEGQuality)
		if err != nil {
			monitoring.Logf("camera: placeholder synthesis: %v", err)
			return
		}
		p.publish(data, ModeDegraded)
	}
	emit()
	ticker := p.clock.NewTicker(p.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			emit()
		}
	}
}

func (p *Pipeline) publish(data []byte, mode Mode) {
	p.hub.Publish(Frame{
		Data: data,
		Time: p.clock.Now(),
		Mode: mode,
	})
}
