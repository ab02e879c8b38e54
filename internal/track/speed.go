package track

import (
	"image"
	"math"
)

// EstimateSpeed converts the displacement between two points observed one
// frame apart into metres per second.
func EstimateSpeed(ppm, fps float64, from, to image.Point) float64 {
	pixels := math.Hypot(float64(to.X-from.X), float64(to.Y-from.Y))
	return pixels / ppm * fps
}

// Reading is what the estimator concluded about one track on one tick.
type Reading struct {
	TrackID  int
	Previous Box
	Current  Box
	Moved    bool
	// Latched is set on the tick the speed was measured.
	Latched  bool
	HasSpeed bool
	Speed    float64
	SpeedMPS float64
	// Display is set when the latched speed should be drawn at Anchor.
	Display bool
	Anchor  image.Point
}

// SpeedEstimator measures each track once as it crosses the measurement band.
type SpeedEstimator struct {
	cal Calibration
}

// NewSpeedEstimator creates an estimator for cal.
func NewSpeedEstimator(cal Calibration) SpeedEstimator {
	return SpeedEstimator{cal: cal}
}

// Calibration returns the estimator's calibration.
func (e SpeedEstimator) Calibration() Calibration {
	return e.cal
}

// Estimate returns the speed between prev and cur in display units and in
// metres per second.
func (e SpeedEstimator) Estimate(prev, cur Box, fps float64) (float64, float64) {
	mps := EstimateSpeed(e.cal.PPM, fps, prev.TopLeft(), cur.TopLeft())
	return mps * e.cal.KMHFactor, mps
}

// Observe compares t's previous and current boxes, latches a speed when the
// previous top edge lies in the measurement band, and rolls Previous forward.
// Unmoved tracks yield a Reading with Moved unset and nothing else evaluated.
func (e SpeedEstimator) Observe(t *Track, fps float64) Reading {
	prev, cur := t.Previous, t.Current
	t.Previous = cur

	r := Reading{TrackID: t.ID, Previous: prev, Current: cur}
	if prev == cur {
		r.Speed, r.HasSpeed = t.Speed()
		r.SpeedMPS = t.SpeedMPS()
		return r
	}
	r.Moved = true

	if _, ok := t.Speed(); !ok && e.cal.InBand(prev.Y) {
		r.Latched = t.latch(e.Estimate(prev, cur, fps))
	}

	r.Speed, r.HasSpeed = t.Speed()
	r.SpeedMPS = t.SpeedMPS()
	if r.HasSpeed && e.cal.Displayable(prev.Y) {
		r.Display = true
		r.Anchor = image.Pt(prev.X+prev.W/2, prev.Y-5)
	}
	return r
}
