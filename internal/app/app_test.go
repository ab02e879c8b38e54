package app

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/trafficcv/internal/capture"
	"github.com/ayusman/trafficcv/internal/detector"
	"github.com/ayusman/trafficcv/internal/track"
	"github.com/ayusman/trafficcv/internal/tracker"
)

const epsilon = 1e-9

// fixedClock returns a clock whose every reading is step after the epoch,
// so a tick started at the epoch lasts exactly step.
func fixedClock(epoch time.Time, step time.Duration) func() time.Time {
	return func() time.Time { return epoch.Add(step) }
}

type recorder struct {
	events []track.Event
}

func (r *recorder) OnEvent(e track.Event) {
	r.events = append(r.events, e)
}

func (r *recorder) kinds(kind track.EventKind) []track.Event {
	var out []track.Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type quitDisplay struct {
	after int
	shown int
}

func (d *quitDisplay) Show(*gocv.Mat) bool {
	d.shown++
	return d.shown >= d.after
}

func (d *quitDisplay) Close() error { return nil }

func newTestApp(t *testing.T, cfg Config, src capture.Source, det detector.Detector, trk tracker.Factory) (*App, *recorder) {
	t.Helper()
	cfg.NoWindow = true
	rec := &recorder{}
	a, err := New(cfg, Deps{
		Source:    src,
		Detector:  det,
		Trackers:  trk,
		Clock:     fixedClock(time.Unix(0, 0), 50*time.Millisecond),
		Observers: []track.Observer{rec},
	})
	require.NoError(t, err)
	return a, rec
}

func car(x, y, w, h int) detector.Detection {
	return detector.CarDetection(image.Rect(x, y, x+w, y+h))
}

func TestApp_EndToEnd_OverlappingDetectionReusesTrack(t *testing.T) {
	det := detector.NewMockDetector()
	det.Script(0, []detector.Detection{car(100, 100, 40, 30)})
	det.Script(1, []detector.Detection{car(105, 102, 40, 30)})

	a, rec := newTestApp(t, DefaultConfig(), capture.NewBlankSource(11), det, tracker.NewMockFactory())

	start := time.Unix(0, 0)
	var results []*TickResult
	for i := 0; i < 11; i++ {
		res, err := a.Step(nil, start)
		require.NoError(t, err)
		results = append(results, res)
	}

	first := results[0]
	require.Len(t, first.Assignments, 1)
	assert.True(t, first.Assignments[0].Created)
	assert.Equal(t, 0, first.Assignments[0].TrackID)

	last := results[10]
	assert.True(t, last.Detected)
	require.Len(t, last.Assignments, 1)
	assert.False(t, last.Assignments[0].Created)
	assert.Equal(t, 0, last.Assignments[0].TrackID)

	assert.Equal(t, 1, a.Registry().Len())
	assert.Equal(t, 1, a.Registry().NextID())
	assert.Len(t, rec.kinds(track.EventCreated), 1)
	assert.Equal(t, 2, det.Calls())
}

func TestApp_DetectsOnlyEveryPeriod(t *testing.T) {
	det := detector.NewMockDetector()
	a, _ := newTestApp(t, DefaultConfig(), capture.NewBlankSource(25), det, tracker.NewMockFactory())

	var detected []int
	for i := 0; i < 25; i++ {
		res, err := a.Step(nil, time.Unix(0, 0))
		require.NoError(t, err)
		if res.Detected {
			detected = append(detected, res.Tick)
		}
	}

	assert.Equal(t, []int{0, 10, 20}, detected)
	assert.Equal(t, 3, det.Calls())
}

func TestApp_EmptyDetectionsCreateNothing(t *testing.T) {
	det := detector.NewMockDetector()
	a, rec := newTestApp(t, DefaultConfig(), capture.NewBlankSource(1), det, tracker.NewMockFactory())

	res, err := a.Step(nil, time.Unix(0, 0))
	require.NoError(t, err)
	assert.True(t, res.Detected)
	assert.Empty(t, res.Assignments)
	assert.Zero(t, a.Registry().Len())
	assert.Empty(t, rec.events)
}

func TestApp_EvictsWhenQualityDrops(t *testing.T) {
	det := detector.NewMockDetector()
	det.Script(0, []detector.Detection{car(10, 10, 20, 20)})

	trk := tracker.NewMockFactory()
	trk.Script = func(box image.Rectangle) *tracker.MockHandle {
		h := tracker.NewMockHandle(box)
		h.Qualities = []float64{10, 7, 6.99}
		return h
	}

	a, rec := newTestApp(t, DefaultConfig(), capture.NewBlankSource(5), det, trk)

	evictedAt := -1
	for i := 0; i < 5; i++ {
		res, err := a.Step(nil, time.Unix(0, 0))
		require.NoError(t, err)
		if len(res.Evicted) > 0 {
			require.Equal(t, -1, evictedAt, "evicted twice")
			assert.Equal(t, []int{0}, res.Evicted)
			evictedAt = res.Tick
		}
	}

	// Created on tick 0, updated from tick 1 onwards.
	assert.Equal(t, 3, evictedAt)
	assert.True(t, trk.Handles()[0].Closed())
	assert.Zero(t, a.Registry().Len())

	evicted := rec.kinds(track.EventEvicted)
	require.Len(t, evicted, 1)
	assert.InDelta(t, 6.99, evicted[0].Quality, epsilon)
}

func TestApp_IdentifiersNeverReused(t *testing.T) {
	det := detector.NewMockDetector()
	det.Script(0, []detector.Detection{car(10, 10, 20, 20)})
	det.Script(1, []detector.Detection{car(10, 10, 20, 20)})

	trk := tracker.NewMockFactory()
	trk.Script = func(box image.Rectangle) *tracker.MockHandle {
		h := tracker.NewMockHandle(box)
		h.Qualities = []float64{1}
		return h
	}

	a, rec := newTestApp(t, DefaultConfig(), capture.NewBlankSource(11), det, trk)
	for i := 0; i < 11; i++ {
		_, err := a.Step(nil, time.Unix(0, 0))
		require.NoError(t, err)
	}

	created := rec.kinds(track.EventCreated)
	require.Len(t, created, 2)
	assert.Equal(t, 0, created[0].TrackID)
	assert.Equal(t, 1, created[1].TrackID, "the evicted id 0 is not handed out again")
}

func TestApp_MeasuresSpeedInBand(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Calibration.PPM, cfg.Calibration.FPS = 10, 20

	det := detector.NewMockDetector()
	det.Script(0, []detector.Detection{car(100, 280, 40, 30)})

	trk := tracker.NewMockFactory()
	trk.Script = func(box image.Rectangle) *tracker.MockHandle {
		h := tracker.NewMockHandle(box)
		h.Positions = []image.Rectangle{
			image.Rect(110, 280, 150, 310),
			image.Rect(120, 300, 160, 330),
		}
		return h
	}

	a, rec := newTestApp(t, cfg, capture.NewBlankSource(3), det, trk)

	res, err := a.Step(nil, time.Unix(0, 0))
	require.NoError(t, err)
	assert.Empty(t, res.Readings, "a fresh track has not moved")

	res, err = a.Step(nil, time.Unix(0, 0))
	require.NoError(t, err)
	require.Len(t, res.Readings, 1)
	r := res.Readings[0]
	assert.True(t, r.Latched)
	assert.InDelta(t, 72.0, r.Speed, epsilon)
	assert.True(t, r.Display)
	assert.Equal(t, image.Pt(120, 275), r.Anchor)

	res, err = a.Step(nil, time.Unix(0, 0))
	require.NoError(t, err)
	require.Len(t, res.Readings, 1)
	assert.False(t, res.Readings[0].Latched)
	assert.InDelta(t, 72.0, res.Readings[0].Speed, epsilon)

	speeds := rec.kinds(track.EventSpeed)
	require.Len(t, speeds, 1)
	assert.Equal(t, 0, speeds[0].TrackID)
	assert.InDelta(t, 20.0, speeds[0].SpeedMPS, epsilon)
}

func TestApp_MeasuredFPS(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Calibration.PPM, cfg.Calibration.FPS = 10, 1
	cfg.MeasuredFPS = true

	det := detector.NewMockDetector()
	det.Script(0, []detector.Detection{car(0, 280, 10, 10)})

	trk := tracker.NewMockFactory()
	trk.Script = func(box image.Rectangle) *tracker.MockHandle {
		h := tracker.NewMockHandle(box)
		h.Positions = []image.Rectangle{image.Rect(10, 280, 20, 290)}
		return h
	}

	a, _ := newTestApp(t, cfg, capture.NewBlankSource(2), det, trk)

	_, err := a.Step(nil, time.Unix(0, 0))
	require.NoError(t, err)
	res, err := a.Step(nil, time.Unix(0, 0))
	require.NoError(t, err)

	assert.InDelta(t, 20.0, res.FPS, epsilon)
	require.Len(t, res.Readings, 1)
	assert.InDelta(t, 72.0, res.Readings[0].Speed, epsilon)
}

func TestApp_Run(t *testing.T) {
	t.Run("end of stream is a normal exit", func(t *testing.T) {
		src := capture.NewBlankSource(12)
		det := detector.NewMockDetector()
		det.Script(0, []detector.Detection{car(100, 100, 40, 30)})
		det.Script(1, []detector.Detection{car(105, 102, 40, 30)})

		a, rec := newTestApp(t, DefaultConfig(), src, det, tracker.NewMockFactory())

		require.NoError(t, a.Run(context.Background()))
		assert.Equal(t, 12, src.Reads())
		assert.False(t, src.IsOpen(), "source is closed on exit")
		assert.Len(t, rec.kinds(track.EventCreated), 1)
		assert.Equal(t, 2, det.Calls())
	})

	t.Run("stop is checked once per tick", func(t *testing.T) {
		src := capture.NewBlankSource(100)
		det := detector.NewMockDetector()
		det.SetDetections([]detector.Detection{car(0, 0, 10, 10)})

		a, _ := newTestApp(t, DefaultConfig(), src, det, tracker.NewMockFactory())
		a.AddObserver(track.ObserverFunc(func(track.Event) { a.Stop() }))

		require.NoError(t, a.Run(context.Background()))
		assert.Equal(t, 1, src.Reads())
	})

	t.Run("cancelled context", func(t *testing.T) {
		src := capture.NewBlankSource(100)
		a, _ := newTestApp(t, DefaultConfig(), src, detector.NewMockDetector(), tracker.NewMockFactory())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		require.NoError(t, a.Run(ctx))
		assert.Equal(t, 1, src.Reads())
	})

	t.Run("quit key", func(t *testing.T) {
		src := capture.NewBlankSource(100)
		display := &quitDisplay{after: 3}
		a, err := New(DefaultConfig(), Deps{
			Source:   src,
			Detector: detector.NewMockDetector(),
			Trackers: tracker.NewMockFactory(),
			Display:  display,
		})
		require.NoError(t, err)

		require.NoError(t, a.Run(context.Background()))
		assert.Equal(t, 3, src.Reads())
	})

	t.Run("detector failure aborts", func(t *testing.T) {
		det := detector.NewMockDetector()
		boom := errors.New("inference failed")
		det.SetError(boom)

		a, _ := newTestApp(t, DefaultConfig(), capture.NewBlankSource(5), det, tracker.NewMockFactory())
		assert.ErrorIs(t, a.Run(context.Background()), boom)
	})

	t.Run("tracker failure aborts", func(t *testing.T) {
		det := detector.NewMockDetector()
		det.Script(0, []detector.Detection{car(0, 0, 10, 10)})

		boom := errors.New("tracker lost")
		trk := tracker.NewMockFactory()
		trk.Script = func(box image.Rectangle) *tracker.MockHandle {
			h := tracker.NewMockHandle(box)
			h.Err = boom
			return h
		}

		a, _ := newTestApp(t, DefaultConfig(), capture.NewBlankSource(5), det, trk)
		assert.ErrorIs(t, a.Run(context.Background()), boom)
	})
}

func TestNew_Validation(t *testing.T) {
	deps := Deps{
		Source:   capture.NewBlankSource(1),
		Detector: detector.NewMockDetector(),
		Trackers: tracker.NewMockFactory(),
		Display:  nullDisplay{},
	}

	cfg := DefaultConfig()
	cfg.DetectionPeriod = 0
	_, err := New(cfg, deps)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Calibration.PPM = 0
	_, err = New(cfg, deps)
	assert.ErrorIs(t, err, track.ErrInvalidCalibration)

	_, err = New(DefaultConfig(), Deps{Display: nullDisplay{}})
	assert.Error(t, err)
}

func TestFPSMeter(t *testing.T) {
	var m FPSMeter
	start := time.Unix(100, 0)

	assert.InDelta(t, 20.0, m.Observe(start, start.Add(50*time.Millisecond)), epsilon)
	assert.InDelta(t, 20.0, m.Observe(start, start), epsilon, "zero-duration tick keeps the previous rate")
	assert.InDelta(t, 4.0, m.Observe(start, start.Add(250*time.Millisecond)), epsilon)
	assert.InDelta(t, 4.0, m.FPS(), epsilon)

	var fresh FPSMeter
	assert.Zero(t, fresh.Observe(start, start))
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "72 km/hr", SpeedLabel(72.9))
	assert.Equal(t, "0 km/hr", SpeedLabel(0.4))
	assert.Equal(t, "FPS: 17", FPSLabel(17.6))
}

func TestRender(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV test in short mode")
	}

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	Render(&frame, []track.Position{{ID: 0, Box: track.Box{X: 100, Y: 100, W: 50, H: 40}}}, 18, []track.Reading{
		{Display: true, Speed: 72, Anchor: image.Pt(125, 95)},
	})

	// The top-left corner of the box is drawn in green.
	px := frame.GetVecbAt(100, 100)
	assert.Equal(t, uint8(0), px[0])
	assert.Equal(t, uint8(255), px[1])
	assert.Equal(t, uint8(0), px[2])
}
