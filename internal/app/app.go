// Package app provides the frame loop that ties detection, tracking and
// speed estimation together for the TrafficCV speed detector.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"github.com/ayusman/trafficcv/internal/capture"
	"github.com/ayusman/trafficcv/internal/detector"
	"github.com/ayusman/trafficcv/internal/track"
	"github.com/ayusman/trafficcv/internal/tracker"
)

// Process exit codes.
const (
	ExitOK     = 0
	ExitConfig = 1
)

// DefaultDetectionPeriod is how many ticks pass between detection cycles.
const DefaultDetectionPeriod = 10

// Config holds configuration options for the frame loop.
type Config struct {
	Calibration track.Calibration

	// DetectionPeriod runs the detector on ticks where tick%DetectionPeriod == 0.
	DetectionPeriod int

	// MeasuredFPS uses the loop's instantaneous rate in the speed formula
	// instead of Calibration.FPS.
	MeasuredFPS bool

	// NoWindow suppresses the preview window.
	NoWindow bool
}

// DefaultConfig returns a Config with the default calibration.
func DefaultConfig() Config {
	return Config{
		Calibration:     track.DefaultCalibration(),
		DetectionPeriod: DefaultDetectionPeriod,
	}
}

// Deps are the collaborators of the frame loop.
type Deps struct {
	Source   capture.Source
	Detector detector.Detector
	Trackers tracker.Factory

	// Display defaults to a window, or to nothing when NoWindow is set.
	Display Display
	// Clock defaults to time.Now.
	Clock func() time.Time

	Observers []track.Observer
	Sinks     []FrameSink
}

// TickResult summarises one iteration of the loop.
type TickResult struct {
	Tick        int
	Detected    bool
	Detections  []detector.Detection
	Evicted     []int
	Assignments []track.Assignment
	Positions   []track.Position
	Readings    []track.Reading
	FPS         float64
	Quit        bool
}

// App is the frame loop. It owns the track registry and runs on a single
// goroutine; only Stop may be called concurrently.
type App struct {
	config    Config
	deps      Deps
	registry  *track.Registry
	assoc     track.Associator
	estimator track.SpeedEstimator
	meter     FPSMeter
	tick      int
	stop      atomic.Bool
}

// New creates a new App. It fails if the configuration is invalid.
func New(config Config, deps Deps) (*App, error) {
	if err := config.Calibration.Validate(); err != nil {
		return nil, err
	}
	if config.DetectionPeriod <= 0 {
		return nil, fmt.Errorf("detection period must be positive, got %d", config.DetectionPeriod)
	}
	if deps.Source == nil || deps.Detector == nil || deps.Trackers == nil {
		return nil, errors.New("source, detector and tracker factory are required")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Display == nil {
		if config.NoWindow {
			deps.Display = nullDisplay{}
		} else {
			deps.Display = NewWindowDisplay()
		}
	}

	return &App{
		config:    config,
		deps:      deps,
		registry:  track.NewRegistry(deps.Trackers, config.Calibration.MinQuality),
		estimator: track.NewSpeedEstimator(config.Calibration),
	}, nil
}

// Registry returns the track registry. It must only be read from the loop
// goroutine or after Run returns.
func (a *App) Registry() *track.Registry {
	return a.registry
}

// AddObserver registers o for track events.
func (a *App) AddObserver(o track.Observer) {
	a.deps.Observers = append(a.deps.Observers, o)
}

// Stop asks the loop to exit after the current tick.
func (a *App) Stop() {
	a.stop.Store(true)
}

// Run processes frames until the source is exhausted, the user quits, Stop
// is called or ctx is cancelled. End of stream is a normal exit.
func (a *App) Run(ctx context.Context) error {
	if !a.deps.Source.IsOpen() {
		if err := a.deps.Source.Open(); err != nil {
			return fmt.Errorf("open source: %w", err)
		}
	}
	defer a.deps.Source.Close()
	defer a.deps.Display.Close()
	defer a.registry.Close()

	log.Info().
		Float64("ppm", a.config.Calibration.PPM).
		Float64("fps", a.config.Calibration.FPS).
		Int("fc", a.config.DetectionPeriod).
		Msg("frame loop started")

	for {
		start := a.deps.Clock()

		frame, err := a.deps.Source.ReadFrame()
		if errors.Is(err, capture.ErrEndOfStream) {
			log.Info().Int("ticks", a.tick).Msg("end of stream")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read frame: %w", err)
		}

		res, err := a.Step(frame, start)
		if frame != nil {
			frame.Close()
		}
		if err != nil {
			return err
		}

		if res.Quit || a.stop.Load() || ctx.Err() != nil {
			log.Info().Int("ticks", a.tick).Msg("frame loop stopped")
			return nil
		}
	}
}

// Step runs one tick on frame. start is when the tick began and is used to
// measure the loop rate. frame may be nil when no image is available, in
// which case tracking runs but nothing is rendered.
func (a *App) Step(frame *gocv.Mat, start time.Time) (*TickResult, error) {
	res := &TickResult{Tick: a.tick}
	defer func() { a.tick++ }()

	var result *gocv.Mat
	if frame != nil && !frame.Empty() {
		clone := frame.Clone()
		result = &clone
		defer result.Close()
	}

	if err := a.updateTracks(frame, res); err != nil {
		return res, err
	}

	if a.tick%a.config.DetectionPeriod == 0 {
		if err := a.detect(frame, result, res); err != nil {
			return res, err
		}
	}

	a.registry.Refresh()
	res.Positions = a.registry.Snapshot()

	res.FPS = a.meter.Observe(start, a.deps.Clock())

	speedFPS := a.config.Calibration.FPS
	if a.config.MeasuredFPS {
		speedFPS = res.FPS
	}
	for _, t := range a.registry.Tracks() {
		r := a.estimator.Observe(t, speedFPS)
		if !r.Moved {
			continue
		}
		res.Readings = append(res.Readings, r)
		if r.Latched {
			log.Info().Int("track", r.TrackID).Float64("speed", r.Speed).Msg("speed measured")
			a.emit(track.Event{Kind: track.EventSpeed, TrackID: r.TrackID, Tick: res.Tick, Box: r.Previous, Quality: t.Quality, Speed: r.Speed, SpeedMPS: r.SpeedMPS})
		}
	}

	if result != nil {
		Render(result, res.Positions, res.FPS, res.Readings)
		for _, s := range a.deps.Sinks {
			s.Publish(result)
		}
	}
	res.Quit = a.deps.Display.Show(result)

	return res, nil
}

// updateTracks advances every tracker and evicts the ones that lost their target.
func (a *App) updateTracks(frame *gocv.Mat, res *TickResult) error {
	stale, err := a.registry.UpdateAll(frame)
	if err != nil {
		return fmt.Errorf("update trackers: %w", err)
	}

	for _, id := range stale {
		if t, ok := a.registry.Get(id); ok {
			a.emit(track.Event{Kind: track.EventEvicted, TrackID: id, Tick: res.Tick, Box: t.Current, Quality: t.Quality})
		}
	}
	a.registry.Evict(stale)
	res.Evicted = stale
	return nil
}

// detect runs one detection cycle and spawns tracks for unmatched objects.
// New trackers are seeded on seed, an untouched copy of frame.
func (a *App) detect(frame, seed *gocv.Mat, res *TickResult) error {
	dets, err := a.deps.Detector.Detect(frame)
	if err != nil {
		return fmt.Errorf("detect: %w", err)
	}
	res.Detected = true
	res.Detections = dets

	boxes := make([]track.Box, 0, len(dets))
	for _, d := range dets {
		log.Info().Str("label", d.Name()).Float64("score", d.Score).Msg("object detected")
		boxes = append(boxes, track.BoxFromRect(d.Box))
	}
	log.Debug().Int("tick", res.Tick).Int("detections", len(dets)).Int("tracks", a.registry.Len()).Msg("detection cycle")

	if seed == nil {
		seed = frame
	}
	assignments, err := a.assoc.Assign(seed, boxes, a.registry)
	res.Assignments = assignments
	if err != nil {
		return fmt.Errorf("associate: %w", err)
	}

	for _, as := range assignments {
		if as.Created {
			a.emit(track.Event{Kind: track.EventCreated, TrackID: as.TrackID, Tick: res.Tick, Box: as.Box})
		}
	}
	return nil
}

func (a *App) emit(e track.Event) {
	if len(a.deps.Observers) == 0 {
		return
	}
	if e.Time.IsZero() {
		e.Time = a.deps.Clock()
	}
	for _, o := range a.deps.Observers {
		o.OnEvent(e)
	}
}
