package sync

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/stitionai/devika-go/internal/logging"
)

// DefaultProbeInterval is the default time between liveness probes.
const DefaultProbeInterval = 10 * time.Second

// minProbeInterval caps the probe rate regardless of configuration, so
// an aggressive interval cannot hammer an unreachable backend.
const minProbeInterval = time.Second

// Poller periodically probes backend liveness and mirrors the result
// into the store's connectivity flag.
type Poller struct {
	r        *Reconciler
	interval time.Duration
	limiter  *rate.Limiter

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewPoller creates a poller for the reconciler's backend.
func NewPoller(r *Reconciler, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Poller{
		r:        r,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(minProbeInterval), 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins probing in a background goroutine until Stop is called
// or ctx ends. An immediate first probe runs before the first tick.
func (p *Poller) Start(ctx context.Context) {
	go p.run(ctx)
}

// Stop halts the poller and waits for the loop to exit.
func (p *Poller) Stop() {
	close(p.stopCh)
	<-p.doneCh
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.doneCh)
	log := logging.Sync()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.probe(log)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.probe(log)
		}
	}
}

func (p *Poller) probe(log *slog.Logger) {
	if !p.limiter.Allow() {
		return
	}
	up := p.r.gw.Status()
	log.Debug("liveness probe", "reachable", up)
	p.r.store.SetConnected(up)
}
