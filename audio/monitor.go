package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"callkit/core"
)

const (
	// DefaultTickInterval approximates one animation frame.
	DefaultTickInterval = 16 * time.Millisecond
	// HoldTicks is how many quiet ticks pass before speaking ends.
	HoldTicks = 10
)

// Source delivers decoded mono PCM16 frames to sink until stop is called.
type Source interface {
	Stream(sink func([]int16)) (stop func(), err error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(sink func([]int16)) (func(), error)

func (f SourceFunc) Stream(sink func([]int16)) (func(), error) { return f(sink) }

// MonitorConfig wires a Monitor to its consumer.
type MonitorConfig struct {
	Interval time.Duration
	// StopWhen is polled every tick; returning true ends monitoring.
	StopWhen          func() bool
	OnLevel           func(LevelInfo)
	OnSpeakingChanged func(speaking bool)
	Logger            *core.Logger
}

// Monitor samples a remote track's spectrum on a fixed tick and derives a
// debounced speaking signal.
type Monitor struct {
	cfg    MonitorConfig
	logger *core.Logger

	mu     sync.Mutex
	active *monitorRun
}

type monitorRun struct {
	ticker     *time.Ticker
	quit       chan struct{}
	done       chan struct{}
	once       sync.Once
	stopSource func()
}

// release stops the ticker and the source stream. Safe to call concurrently.
func (r *monitorRun) release() {
	r.once.Do(func() {
		close(r.quit)
		r.ticker.Stop()
		if r.stopSource != nil {
			r.stopSource()
		}
	})
}

func NewMonitor(cfg MonitorConfig) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultTickInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Monitor{cfg: cfg, logger: logger.Component("audio_monitor")}
}

// Start begins monitoring src, replacing any previous source.
func (m *Monitor) Start(src Source) error {
	if src == nil {
		return errors.New("audio monitor: nil source")
	}
	m.Stop()

	analyser := NewAnalyser(FFTSize, SmoothingTimeConstant)
	stop, err := src.Stream(analyser.Write)
	if err != nil {
		return fmt.Errorf("audio monitor: stream source: %w", err)
	}

	r := &monitorRun{
		ticker:     time.NewTicker(m.cfg.Interval),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		stopSource: stop,
	}

	m.mu.Lock()
	prev := m.active
	m.active = r
	m.mu.Unlock()
	if prev != nil {
		prev.release()
	}

	go m.loop(r, analyser)
	m.logger.Debug("audio monitor started", "interval", m.cfg.Interval)
	return nil
}

// Stop ends monitoring. It does not wait for an in-flight tick so it may be
// called from a monitor callback.
func (m *Monitor) Stop() {
	m.mu.Lock()
	r := m.active
	m.active = nil
	m.mu.Unlock()
	if r != nil {
		r.release()
	}
}

// current reports whether r is still the active run and has not been released.
func (m *Monitor) current(r *monitorRun) bool {
	select {
	case <-r.quit:
		return false
	default:
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active == r
}

// Running reports whether a source is being sampled.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active != nil
}

func (m *Monitor) loop(r *monitorRun, analyser *Analyser) {
	defer close(r.done)

	bins := make([]byte, analyser.BinCount())
	var deb debouncer
	for {
		select {
		case <-r.quit:
			return
		case <-r.ticker.C:
		}

		if m.cfg.StopWhen != nil && m.cfg.StopWhen() {
			m.mu.Lock()
			if m.active == r {
				m.active = nil
			}
			m.mu.Unlock()
			r.release()
			m.logger.Debug("audio monitor stopped: source disconnected")
			return
		}

		analyser.ByteFrequencyData(bins)
		info := ComputeLevel(bins)

		if !m.current(r) {
			return
		}
		if m.cfg.OnLevel != nil {
			m.cfg.OnLevel(info)
		}
		changed, speaking := deb.observe(info.IsSpeaking)
		if changed && m.cfg.OnSpeakingChanged != nil && m.current(r) {
			m.cfg.OnSpeakingChanged(speaking)
		}
	}
}

// debouncer holds the speaking state for HoldTicks quiet ticks.
type debouncer struct {
	hold     int
	speaking bool
}

func (d *debouncer) observe(speaking bool) (changed, state bool) {
	if speaking {
		d.hold = HoldTicks
		if !d.speaking {
			d.speaking = true
			return true, true
		}
		return false, true
	}
	if d.hold > 0 {
		d.hold--
		if d.hold == 0 && d.speaking {
			d.speaking = false
			return true, false
		}
	}
	return false, d.speaking
}
