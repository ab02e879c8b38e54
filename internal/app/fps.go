package app

import "time"

// FPSMeter computes the instantaneous frame rate of the loop from the wall
// clock duration of each tick.
type FPSMeter struct {
	fps float64
}

// Observe records one tick that ran from start to end and returns the
// resulting rate. A zero-duration tick keeps the previous value.
func (m *FPSMeter) Observe(start, end time.Time) float64 {
	if d := end.Sub(start); d > 0 {
		m.fps = float64(time.Second) / float64(d)
	}
	return m.fps
}

// FPS returns the most recent rate.
func (m *FPSMeter) FPS() float64 {
	return m.fps
}
