package habitron

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Poll interval bounds. The hardware copes badly with sub-4-second polling;
// anything above a minute makes the decoded state too stale to be useful.
const (
	MinPollInterval     = 4 * time.Second
	MaxPollInterval     = 60 * time.Second
	DefaultPollInterval = 10 * time.Second

	// defaultFailureThreshold is how many consecutive failed cycles mark the
	// router unavailable. A single transient miss must not flicker
	// availability.
	defaultFailureThreshold = 3
)

// PollerConfig configures the status poll loop.
type PollerConfig struct {
	// Router is the router index polled.
	Router int

	// Interval between poll cycles. Clamped to the 4..60 second bounds.
	Interval time.Duration

	// FailureThreshold is the number of consecutive failures after which
	// OnAvailability(false) fires. Default: 3.
	FailureThreshold int

	// Transport performs the exchanges.
	Transport Connector

	// Builder encodes the status reads.
	Builder *Builder

	// Decoder unpacks status blocks.
	Decoder *Decoder

	// Gate suppresses unchanged blocks.
	Gate *ChangeGate

	// OnModules receives decoded module records when a cycle saw changes.
	OnModules func(records []ModuleRecord)

	// OnRouter receives the decoded router state each changed cycle
	// (optional).
	OnRouter func(state RouterRecord)

	// OnAvailability is called with false after FailureThreshold consecutive
	// failed cycles and with true on the next success (optional).
	OnAvailability func(available bool)
}

// Poller drives the recurring compact status fetch/gate/decode cycle.
//
// One poll cycle is: fetch compact status → compare the router-supplied CRC
// via the gate → when changed, decode and dispatch. A failed cycle means "no
// update this cycle"; the next tick retries independently, no retry state is
// carried across cycles.
//
// The poller is the single writer of the gate and of the decoded state it
// dispatches.
type Poller struct {
	cfg       PollerConfig
	suspended atomic.Bool
	available atomic.Bool

	failures int

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewPoller creates a poller. Call Start to begin polling.
func NewPoller(cfg PollerConfig) *Poller {
	cfg.Interval = ClampPollInterval(cfg.Interval)
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.Gate == nil {
		cfg.Gate = NewChangeGate()
	}
	return &Poller{
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

// ClampPollInterval forces an interval into the supported bounds, applying
// the default for zero.
func ClampPollInterval(d time.Duration) time.Duration {
	switch {
	case d == 0:
		return DefaultPollInterval
	case d < MinPollInterval:
		return MinPollInterval
	case d > MaxPollInterval:
		return MaxPollInterval
	default:
		return d
	}
}

// SetLogger sets the logger for this poller.
func (p *Poller) SetLogger(logger Logger) {
	p.loggerMu.Lock()
	p.logger = logger
	p.loggerMu.Unlock()
}

// Start begins the poll loop. The first cycle runs immediately.
func (p *Poller) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.loop(ctx)
}

// Stop ends the poll loop and waits for the current cycle to finish.
// Safe to call multiple times.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
	})
}

// Suspend makes subsequent cycles no-ops until Resume. Used during bulk
// configuration operations elsewhere in the system.
func (p *Poller) Suspend() { p.suspended.Store(true) }

// Resume re-enables polling and forces the next cycle to decode, since the
// bus state may have changed arbitrarily while suspended.
func (p *Poller) Resume() {
	p.cfg.Gate.Reset()
	p.suspended.Store(false)
}

// Suspended reports whether polling is currently suspended.
func (p *Poller) Suspended() bool { return p.suspended.Load() }

// Available reports the current availability verdict.
func (p *Poller) Available() bool { return p.available.Load() }

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

// cycle runs one poll iteration.
func (p *Poller) cycle(ctx context.Context) {
	if p.suspended.Load() {
		return
	}

	frame, err := p.cfg.Builder.GetCompactStatus(p.cfg.Router)
	if err != nil {
		// Catalog/encode errors are programming errors, not cycle failures.
		p.logError("encoding compact status read", err)
		return
	}

	resp, err := p.cfg.Transport.SendReceive(ctx, frame)
	if err != nil {
		p.cycleFailed("compact status fetch failed", err)
		return
	}

	payload, changed := p.cfg.Gate.Filter(resp)
	if !changed {
		p.cycleSucceeded()
		return
	}

	records, err := p.cfg.Decoder.DecodeCompactStatus(payload)
	if err != nil {
		// Corrupt block: discard entirely, apply no partial state.
		p.cycleFailed("compact status decode failed", err)
		return
	}

	p.cycleSucceeded()
	if p.cfg.OnModules != nil {
		p.cfg.OnModules(records)
	}
	p.updateRouter(ctx)
}

// updateRouter fetches and dispatches the router's own status.
func (p *Poller) updateRouter(ctx context.Context) {
	if p.cfg.OnRouter == nil {
		return
	}

	frame, err := p.cfg.Builder.GetRouterStatus(p.cfg.Router)
	if err != nil {
		p.logError("encoding router status read", err)
		return
	}
	resp, err := p.cfg.Transport.SendReceive(ctx, frame)
	if err != nil {
		p.logError("router status fetch failed", err)
		return
	}
	state, err := DecodeRouterStatus(resp.Payload)
	if err != nil {
		p.logError("router status decode failed", err)
		return
	}
	p.cfg.OnRouter(state)
}

func (p *Poller) cycleSucceeded() {
	p.failures = 0
	if !p.available.Swap(true) && p.cfg.OnAvailability != nil {
		p.cfg.OnAvailability(true)
	}
}

func (p *Poller) cycleFailed(msg string, err error) {
	p.failures++
	p.logWarn(msg, "error", err, "consecutive_failures", p.failures)
	if p.failures == p.cfg.FailureThreshold {
		p.available.Store(false)
		if p.cfg.OnAvailability != nil {
			p.cfg.OnAvailability(false)
		}
	}
}

func (p *Poller) logWarn(msg string, args ...any) {
	p.loggerMu.RLock()
	logger := p.logger
	p.loggerMu.RUnlock()
	if logger != nil {
		logger.Warn(msg, args...)
	}
}

func (p *Poller) logError(msg string, err error) {
	p.loggerMu.RLock()
	logger := p.logger
	p.loggerMu.RUnlock()
	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
