package track

import (
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const epsilon = 1e-9

func TestEstimateSpeed(t *testing.T) {
	tests := []struct {
		name     string
		ppm, fps float64
		from, to image.Point
		want     float64
	}{
		{name: "horizontal", ppm: 10, fps: 20, from: image.Pt(0, 0), to: image.Pt(10, 0), want: 20},
		{name: "diagonal 3-4-5", ppm: 5, fps: 10, from: image.Pt(1, 1), to: image.Pt(4, 5), want: 10},
		{name: "no displacement", ppm: 8.8, fps: 18, from: image.Pt(7, 7), to: image.Pt(7, 7), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateSpeed(tt.ppm, tt.fps, tt.from, tt.to)
			assert.InDelta(t, tt.want, got, epsilon)
		})
	}
}

func TestSpeedEstimator_Estimate(t *testing.T) {
	cal := DefaultCalibration()
	cal.PPM, cal.FPS = 10, 20
	e := NewSpeedEstimator(cal)

	kmh, mps := e.Estimate(Box{X: 0, Y: 0, W: 30, H: 20}, Box{X: 10, Y: 0, W: 30, H: 20}, cal.FPS)
	assert.InDelta(t, 72.0, kmh, epsilon)
	assert.InDelta(t, 20.0, mps, epsilon)
}

func newTrackAt(prev, cur Box) *Track {
	return &Track{ID: 1, Previous: prev, Current: cur}
}

func TestSpeedEstimator_Observe(t *testing.T) {
	cal := DefaultCalibration()
	cal.PPM, cal.FPS = 10, 20
	e := NewSpeedEstimator(cal)

	t.Run("latches inside the band", func(t *testing.T) {
		tr := newTrackAt(Box{X: 100, Y: 280, W: 40, H: 30}, Box{X: 100, Y: 290, W: 40, H: 30})

		r := e.Observe(tr, cal.FPS)
		assert.True(t, r.Moved)
		assert.True(t, r.Latched)
		assert.True(t, r.HasSpeed)
		assert.InDelta(t, 72.0, r.Speed, epsilon)
		assert.True(t, r.Display)
		assert.Equal(t, image.Pt(120, 275), r.Anchor)
		assert.Equal(t, tr.Current, tr.Previous, "previous rolls forward")
	})

	t.Run("band edges are inclusive", func(t *testing.T) {
		for _, y := range []int{cal.BandMin, cal.BandMax} {
			tr := newTrackAt(Box{X: 0, Y: y, W: 10, H: 10}, Box{X: 0, Y: y + 3, W: 10, H: 10})
			r := e.Observe(tr, cal.FPS)
			assert.True(t, r.Latched, "y=%d", y)
		}
	})

	t.Run("outside the band never latches", func(t *testing.T) {
		for _, y := range []int{0, 179, 274, 286, 500} {
			tr := newTrackAt(Box{X: 0, Y: y, W: 10, H: 10}, Box{X: 40, Y: y + 50, W: 10, H: 10})
			r := e.Observe(tr, cal.FPS)
			assert.True(t, r.Moved)
			assert.False(t, r.Latched, "y=%d", y)
			_, ok := tr.Speed()
			assert.False(t, ok, "y=%d", y)
		}
	})

	t.Run("unmoved track is not evaluated", func(t *testing.T) {
		box := Box{X: 0, Y: 280, W: 10, H: 10}
		tr := newTrackAt(box, box)

		r := e.Observe(tr, cal.FPS)
		assert.False(t, r.Moved)
		assert.False(t, r.Latched)
		assert.False(t, r.Display)
		_, ok := tr.Speed()
		assert.False(t, ok)
	})

	t.Run("speed latches at most once", func(t *testing.T) {
		tr := newTrackAt(Box{X: 0, Y: 276, W: 10, H: 10}, Box{X: 10, Y: 276, W: 10, H: 10})

		first := e.Observe(tr, cal.FPS)
		require.True(t, first.Latched)

		latches := 0
		for i := 0; i < 5; i++ {
			tr.Previous = Box{X: 0, Y: 280, W: 10, H: 10}
			tr.Current = Box{X: 50 * (i + 1), Y: 281, W: 10, H: 10}
			r := e.Observe(tr, cal.FPS)
			if r.Latched {
				latches++
			}
			assert.InDelta(t, first.Speed, r.Speed, epsilon, "re-entering the band must not overwrite")
		}
		assert.Zero(t, latches)
	})

	t.Run("display band gates labels", func(t *testing.T) {
		tr := newTrackAt(Box{X: 0, Y: 280, W: 10, H: 10}, Box{X: 0, Y: 290, W: 10, H: 10})
		require.True(t, e.Observe(tr, cal.FPS).Latched)

		tr.Previous = Box{X: 0, Y: 170, W: 10, H: 10}
		tr.Current = Box{X: 0, Y: 175, W: 10, H: 10}
		r := e.Observe(tr, cal.FPS)
		assert.True(t, r.HasSpeed)
		assert.False(t, r.Display, "rows above the display band hide the label")

		tr.Previous = Box{X: 0, Y: 180, W: 10, H: 10}
		tr.Current = Box{X: 0, Y: 185, W: 10, H: 10}
		r = e.Observe(tr, cal.FPS)
		assert.True(t, r.Display)
	})

	t.Run("uses the fps it is given", func(t *testing.T) {
		tr := newTrackAt(Box{X: 0, Y: 280, W: 10, H: 10}, Box{X: 10, Y: 280, W: 10, H: 10})
		r := e.Observe(tr, 40)
		assert.InDelta(t, 144.0, r.Speed, epsilon)
		assert.False(t, math.IsInf(r.Speed, 0))
	})
}

func TestCalibration_Validate(t *testing.T) {
	assert.NoError(t, DefaultCalibration().Validate())

	tests := []struct {
		name   string
		mutate func(*Calibration)
	}{
		{name: "zero ppm", mutate: func(c *Calibration) { c.PPM = 0 }},
		{name: "negative fps", mutate: func(c *Calibration) { c.FPS = -1 }},
		{name: "inverted band", mutate: func(c *Calibration) { c.BandMin, c.BandMax = 300, 200 }},
		{name: "zero factor", mutate: func(c *Calibration) { c.KMHFactor = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultCalibration()
			tt.mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidCalibration)
		})
	}
}

func TestBox(t *testing.T) {
	b := BoxFromRect(image.Rect(10, 20, 50, 80))
	assert.Equal(t, Box{X: 10, Y: 20, W: 40, H: 60}, b)
	assert.Equal(t, image.Rect(10, 20, 50, 80), b.Rect())

	x, y := b.Center()
	assert.InDelta(t, 30.0, x, epsilon)
	assert.InDelta(t, 50.0, y, epsilon)

	assert.True(t, b.Contains(10, 20))
	assert.True(t, b.Contains(50, 80))
	assert.False(t, b.Contains(50.5, 50))
}
