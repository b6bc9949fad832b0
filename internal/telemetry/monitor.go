package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"agrispy.dev/agrispy/pkg/metrics"
)

const (
	DefaultRefreshInterval = 30 * time.Second
	DefaultRefreshDelay    = time.Second
	defaultPublishTimeout  = 5 * time.Second
)

// ErrStopped is returned once the monitor has been stopped.
var ErrStopped = errors.New("telemetry: monitor stopped")

// Publisher receives every committed reading.
type Publisher interface {
	Publish(ctx context.Context, r Reading) error
}

// MonitorConfig configures a Monitor.
type MonitorConfig struct {
	Logger *slog.Logger
	// Metrics and Publisher are optional.
	Metrics   *metrics.TelemetryMetrics
	Publisher Publisher

	// Interval is the auto-refresh period, RefreshDelay the pause before a
	// manual refresh commits. Zero selects the defaults.
	Interval     time.Duration
	RefreshDelay time.Duration

	// Rand and Now default to a time-seeded PCG and time.Now.
	Rand Rand
	Now  func() time.Time
	// Initial overrides the seed reading.
	Initial *Reading
}

// Status is what the monitoring view shows.
type Status struct {
	LastUpdated time.Time
	Reading     Reading
	Refreshing  bool
}

// Monitor owns the current reading and refreshes it on a ticker and on demand.
type Monitor struct {
	logger       *slog.Logger
	metrics      *metrics.TelemetryMetrics
	publisher    Publisher
	interval     time.Duration
	refreshDelay time.Duration
	now          func() time.Time

	life   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	rng         Rand
	current     Reading
	lastUpdated time.Time
	refreshing  int
	started     bool
	stopped     bool
}

// NewMonitor returns a monitor holding the seed reading. It does not tick
// until Start.
func NewMonitor(cfg MonitorConfig) (*Monitor, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	m := &Monitor{
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		publisher:    cfg.Publisher,
		interval:     cfg.Interval,
		refreshDelay: cfg.RefreshDelay,
		now:          cfg.Now,
		rng:          cfg.Rand,
	}
	if m.interval <= 0 {
		m.interval = DefaultRefreshInterval
	}
	if m.refreshDelay <= 0 {
		m.refreshDelay = DefaultRefreshDelay
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.rng == nil {
		seed := uint64(time.Now().UnixNano())
		m.rng = rand.New(rand.NewPCG(seed, seed>>1)) // #nosec G404 - simulated readings
	}

	if cfg.Initial != nil {
		m.current = *cfg.Initial
	} else {
		m.current = Baseline(m.now())
	}
	m.lastUpdated = m.now()
	m.life, m.cancel = context.WithCancel(context.Background())

	m.observe(m.current)
	return m, nil
}

// Start launches the auto-refresh ticker. It runs until ctx is done or Stop
// is called. Calling Start on a running monitor does nothing.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrStopped
	}
	if m.started {
		return nil
	}
	m.started = true

	m.wg.Add(1)
	go m.run(ctx)

	m.logger.Info("telemetry monitor started", "interval", m.interval)
	return nil
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.life.Done():
			return
		case <-ticker.C:
			m.commit("auto")
		}
	}
}

// RefreshNow marks the monitor refreshing, waits the refresh delay and then
// commits a new reading. ctx or Stop abort it without committing.
func (m *Monitor) RefreshNow(ctx context.Context) (Reading, error) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return Reading{}, ErrStopped
	}
	m.refreshing++
	m.wg.Add(1)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.refreshing--
		m.mu.Unlock()
		m.wg.Done()
	}()

	timer := time.NewTimer(m.refreshDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return Reading{}, ctx.Err()
	case <-m.life.Done():
		return Reading{}, ErrStopped
	case <-timer.C:
	}

	r, ok := m.commit("manual")
	if !ok {
		return Reading{}, ErrStopped
	}
	return r, nil
}

// commit applies one refresh. It reports false when the monitor has stopped.
func (m *Monitor) commit(trigger string) (Reading, bool) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return Reading{}, false
	}

	next := Refresh(m.current, m.rng, m.now())
	m.current = next
	m.lastUpdated = next.Timestamp

	if m.publisher != nil {
		m.wg.Add(1)
		go m.publish(next)
	}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RefreshesTotal.WithLabelValues(trigger).Inc()
	}
	m.observe(next)

	m.logger.Debug("telemetry refreshed",
		"trigger", trigger,
		"temperature", next.Temperature,
		"humidity", next.Humidity,
		"soil_moisture", next.SoilMoisture,
		"gas_level", next.GasLevel,
	)
	return next, true
}

func (m *Monitor) publish(r Reading) {
	defer m.wg.Done()

	ctx, cancel := context.WithTimeout(m.life, defaultPublishTimeout)
	defer cancel()

	if err := m.publisher.Publish(ctx, r); err != nil {
		m.logger.Warn("failed to publish reading", "error", err)
		if m.metrics != nil {
			m.metrics.PublishFailures.Inc()
		}
	}
}

func (m *Monitor) observe(r Reading) {
	if m.metrics == nil {
		return
	}
	for _, f := range r.Fields() {
		m.metrics.ReadingValue.WithLabelValues(f.Name).Set(f.Value)
	}
}

// Status returns the current reading, whether a manual refresh is pending
// and when the reading last changed.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Status{
		Reading:     m.current,
		Refreshing:  m.refreshing > 0,
		LastUpdated: m.lastUpdated,
	}
}

// Stop cancels the ticker, any pending manual refresh and in-flight
// publishes, and waits for them. No reading changes after Stop returns.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.stopped {
		m.stopped = true
		m.cancel()
		m.logger.Info("telemetry monitor stopped")
	}
	m.mu.Unlock()

	m.wg.Wait()
}
