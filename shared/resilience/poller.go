package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrPollerRunning is returned when Start is called on an active poller.
var ErrPollerRunning = errors.New("poller already running")

// TickFunc is invoked once per poll interval.
type TickFunc func(ctx context.Context)

// Poller runs a function at a fixed interval until stopped. Stop and
// context cancellation are both honored; Stop blocks until the loop exits.
type Poller struct {
	interval time.Duration
	maxTicks int // 0 means unbounded

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewPoller creates a poller firing every interval. maxTicks bounds the
// number of ticks; zero leaves the loop unbounded.
func NewPoller(interval time.Duration, maxTicks int) *Poller {
	return &Poller{
		interval: interval,
		maxTicks: maxTicks,
	}
}

// Start launches the poll loop in its own goroutine.
func (p *Poller) Start(ctx context.Context, tick TickFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrPollerRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	go p.loop(ctx, tick)
	return nil
}

func (p *Poller) loop(ctx context.Context, tick TickFunc) {
	defer func() {
		p.mu.Lock()
		p.running = false
		close(p.done)
		p.mu.Unlock()
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
			ticks++
			if p.maxTicks > 0 && ticks >= p.maxTicks {
				return
			}
		}
	}
}

// Stop cancels the poll loop and waits for it to exit. Safe to call
// multiple times and before Start.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the poll loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
