package hook

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ayusman/trafficcv/internal/track"
	"github.com/ayusman/trafficcv/internal/units"
)

// DefaultQueueSize is the number of pending speed events a Dispatcher
// buffers before dropping new ones.
const DefaultQueueSize = 64

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	RunID string
	// MinSpeed is the threshold, in Units, below which events are ignored.
	MinSpeed float64
	Units    string
	// QueueSize defaults to DefaultQueueSize.
	QueueSize int
}

// Dispatcher runs every discovered hook for each latched speed at or above
// the threshold. Hooks run on a single worker goroutine so the frame loop is
// never blocked; events arriving while the queue is full are dropped.
type Dispatcher struct {
	manager  *Manager
	executor *Executor
	config   DispatcherConfig

	queue  chan *Request
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	dropped int
}

// NewDispatcher starts a Dispatcher. Call Close to drain and stop it.
func NewDispatcher(m *Manager, e *Executor, config DispatcherConfig) *Dispatcher {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if config.Units == "" {
		config.Units = units.KPH
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		manager:  m,
		executor: e,
		config:   config,
		queue:    make(chan *Request, config.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}

	d.wg.Add(1)
	go d.run()
	return d
}

// OnEvent implements track.Observer.
func (d *Dispatcher) OnEvent(e track.Event) {
	if e.Kind != track.EventSpeed {
		return
	}

	speed := units.FromMPS(e.SpeedMPS, d.config.Units)
	if speed < d.config.MinSpeed {
		return
	}

	req := &Request{
		RunID:    d.config.RunID,
		TrackID:  e.TrackID,
		Speed:    speed,
		Units:    d.config.Units,
		SpeedMPS: e.SpeedMPS,
		X:        e.Box.X,
		Y:        e.Box.Y,
		Tick:     e.Tick,
		Time:     e.Time,
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- req:
	default:
		d.dropped++
		log.Warn().Int("track", e.TrackID).Int("dropped", d.dropped).Msg("hook queue full, dropping speed event")
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (d *Dispatcher) Dropped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Close stops accepting events, waits for queued events to be handled and
// stops the worker.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.cancel()
	return nil
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for req := range d.queue {
		for _, h := range d.manager.List() {
			r := *req
			resp, err := d.executor.Execute(d.ctx, h, &r)
			if err != nil {
				log.Error().Err(err).Str("hook", h.Manifest.Name).Int("track", req.TrackID).Msg("hook execution failed")
				continue
			}
			if !resp.Success {
				log.Warn().Str("hook", h.Manifest.Name).Str("error", resp.Error).Int("track", req.TrackID).Msg("hook reported failure")
				continue
			}
			log.Debug().Str("hook", h.Manifest.Name).Int("track", req.TrackID).Float64("speed", req.Speed).Msg("hook executed")
		}
	}
}
