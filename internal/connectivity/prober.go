package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/stockpro/internal/remote"
)

// Default probe settings.
const (
	DefaultProbeInterval = 30 * time.Second
	DefaultProbeTimeout  = 5 * time.Second
)

// Prober pings the remote store on an interval and feeds the result into a
// Monitor.
type Prober struct {
	pinger   remote.Pinger
	monitor  *Monitor
	interval time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithInterval sets the time between probes.
func WithInterval(d time.Duration) ProberOption {
	return func(p *Prober) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithTimeout bounds each ping.
func WithTimeout(d time.Duration) ProberOption {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func NewProber(pinger remote.Pinger, m *Monitor, opts ...ProberOption) *Prober {
	p := &Prober{
		pinger:   pinger,
		monitor:  m,
		interval: DefaultProbeInterval,
		timeout:  DefaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe pings once and updates the monitor. Only offline and transient
// failures count as unreachable; an authentication error still proves the
// network path works.
func (p *Prober) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.pinger.Ping(ctx)
	online := true
	if err != nil {
		switch remote.ClassOf(err) {
		case remote.ClassOffline, remote.ClassTransient:
			online = false
		}
		slog.Debug("probe failed", "error", err, "online", online)
	}
	p.monitor.SetOnline(online)
	return online
}

// Start probes immediately, then on every interval until Stop or ctx is
// done. Calling Start twice is a no-op.
func (p *Prober) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	stop := p.stopCh
	p.mu.Unlock()

	p.wg.Add(1)
	go p.loop(ctx, stop)
}

// Stop halts probing and waits for the loop to exit.
func (p *Prober) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Prober) loop(ctx context.Context, stop <-chan struct{}) {
	defer p.wg.Done()

	p.Probe(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}
