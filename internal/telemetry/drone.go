package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"agrispy.dev/agrispy/pkg/metrics"
)

const (
	// DefaultBattery is the drone's charge at startup.
	DefaultBattery = 78.0
	// DrainStep is the charge spraying consumes per tick.
	DrainStep            = 0.5
	DefaultDrainInterval = 3 * time.Second
)

// ErrUnsupportedFlightPath is returned for uploads that are not .json or .csv.
var ErrUnsupportedFlightPath = errors.New("telemetry: flight path must be a .json or .csv file")

// DroneConfig configures a Drone.
type DroneConfig struct {
	Logger *slog.Logger
	// Metrics is optional.
	Metrics *metrics.TelemetryMetrics
	// DrainInterval is the tick period while spraying. Zero selects the default.
	DrainInterval time.Duration
	// InitialBattery is the starting charge. Zero selects DefaultBattery.
	InitialBattery float64
}

// DroneState is a snapshot of the drone's controls.
type DroneState struct {
	FlightPath string
	Battery    float64
	Spraying   bool
	Camera     bool
	Sensors    bool
}

// Drone simulates the spray drone's manual controls. While spraying, a
// ticker drains the battery; an empty battery stops spraying.
type Drone struct {
	logger   *slog.Logger
	metrics  *metrics.TelemetryMetrics
	interval time.Duration

	wg sync.WaitGroup

	mu          sync.Mutex
	state       DroneState
	cancelDrain context.CancelFunc
	stopped     bool
}

// NewDrone returns an idle drone with camera and sensors on.
func NewDrone(cfg DroneConfig) (*Drone, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	d := &Drone{
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		interval: cfg.DrainInterval,
		state: DroneState{
			Battery: cfg.InitialBattery,
			Camera:  true,
			Sensors: true,
		},
	}
	if d.interval <= 0 {
		d.interval = DefaultDrainInterval
	}
	if d.state.Battery == 0 {
		d.state.Battery = DefaultBattery
	}

	d.observeLocked()
	return d, nil
}

// State returns a snapshot.
func (d *Drone) State() DroneState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// SetSpraying starts or stops spraying.
func (d *Drone) SetSpraying(on bool) DroneState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setSprayingLocked(on)
}

// ToggleSpraying flips the spraying flag.
func (d *Drone) ToggleSpraying() DroneState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setSprayingLocked(!d.state.Spraying)
}

func (d *Drone) setSprayingLocked(on bool) DroneState {
	if d.stopped || d.state.Spraying == on {
		return d.state
	}

	d.state.Spraying = on
	if on {
		d.startDrainLocked()
	} else {
		d.stopDrainLocked()
	}

	d.logger.Info("spraying toggled", "spraying", on, "battery", d.state.Battery)
	d.observeLocked()
	return d.state
}

// ToggleCamera flips the camera flag.
func (d *Drone) ToggleCamera() DroneState {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.stopped {
		d.state.Camera = !d.state.Camera
	}
	return d.state
}

// ToggleSensors flips the sensors flag.
func (d *Drone) ToggleSensors() DroneState {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.stopped {
		d.state.Sensors = !d.state.Sensors
	}
	return d.state
}

// SetFlightPath records the name of an uploaded flight path.
func (d *Drone) SetFlightPath(name string) (DroneState, error) {
	name = filepath.Base(strings.TrimSpace(name))
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".csv":
	default:
		return d.State(), fmt.Errorf("%w: %q", ErrUnsupportedFlightPath, name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.stopped {
		d.state.FlightPath = name
	}
	return d.state, nil
}

// Reset stops spraying and restores the control defaults. The battery level
// is kept.
func (d *Drone) Reset() DroneState {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return d.state
	}

	d.stopDrainLocked()
	d.state = DroneState{
		Battery: d.state.Battery,
		Camera:  true,
		Sensors: true,
	}

	d.logger.Info("drone controls reset")
	d.observeLocked()
	return d.state
}

// Stop ends any drain loop and waits for it. Later calls change nothing.
func (d *Drone) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.stopDrainLocked()
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Drone) startDrainLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancelDrain = cancel

	d.wg.Add(1)
	go d.drain(ctx)
}

func (d *Drone) stopDrainLocked() {
	if d.cancelDrain != nil {
		d.cancelDrain()
		d.cancelDrain = nil
	}
}

func (d *Drone) drain(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !d.tick(ctx) {
				return
			}
		}
	}
}

// tick applies one drain step. It reports whether the loop should continue.
func (d *Drone) tick(ctx context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	// A deactivation may have raced the ticker.
	if ctx.Err() != nil {
		return false
	}

	if d.metrics != nil {
		d.metrics.DrainTicksTotal.Inc()
	}

	next := d.state.Battery - DrainStep
	if next <= 0 {
		d.state.Battery = 0
		d.state.Spraying = false
		d.stopDrainLocked()
		d.logger.Warn("battery depleted, spraying stopped")
		d.observeLocked()
		return false
	}

	d.state.Battery = next
	d.observeLocked()
	return true
}

func (d *Drone) observeLocked() {
	if d.metrics == nil {
		return
	}
	d.metrics.BatteryLevel.Set(d.state.Battery)
	if d.state.Spraying {
		d.metrics.Spraying.Set(1)
	} else {
		d.metrics.Spraying.Set(0)
	}
}

// BatteryBand classifies a charge for display: "high" above 50, "medium"
// above 20, "low" otherwise.
func BatteryBand(level float64) string {
	switch {
	case level > 50:
		return "high"
	case level > 20:
		return "medium"
	default:
		return "low"
	}
}
