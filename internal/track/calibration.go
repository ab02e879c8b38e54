package track

import (
	"errors"
	"fmt"
)

// Calibration defaults.
const (
	// DefaultPPM is the default pixels-per-metre of the road plane.
	DefaultPPM = 8.8
	// DefaultFPS is the default frame rate assumed by the speed formula.
	DefaultFPS = 18.0
	// DefaultMinQuality is the tracker quality below which a track is evicted.
	DefaultMinQuality = 7.0
	// DefaultBandMin is the top of the measurement band (image row).
	DefaultBandMin = 275
	// DefaultBandMax is the bottom of the measurement band (image row).
	DefaultBandMax = 285
	// DefaultDisplayMin is the first image row at which latched speeds are shown.
	DefaultDisplayMin = 180
	// DefaultKMHFactor converts metres per second to kilometres per hour.
	DefaultKMHFactor = 3.6
)

// ErrInvalidCalibration is returned by Validate.
var ErrInvalidCalibration = errors.New("invalid calibration")

// Calibration holds the constants that turn pixel displacement into speed
// and decide when a track is measured, displayed or dropped.
type Calibration struct {
	PPM        float64 `json:"ppm"`
	FPS        float64 `json:"fps"`
	MinQuality float64 `json:"min_quality"`
	BandMin    int     `json:"band_min"`
	BandMax    int     `json:"band_max"`
	DisplayMin int     `json:"display_min"`
	KMHFactor  float64 `json:"kmh_factor"`
}

// DefaultCalibration returns the stock calibration.
func DefaultCalibration() Calibration {
	return Calibration{
		PPM:        DefaultPPM,
		FPS:        DefaultFPS,
		MinQuality: DefaultMinQuality,
		BandMin:    DefaultBandMin,
		BandMax:    DefaultBandMax,
		DisplayMin: DefaultDisplayMin,
		KMHFactor:  DefaultKMHFactor,
	}
}

// Validate checks that c can produce finite speeds.
func (c Calibration) Validate() error {
	switch {
	case c.PPM <= 0:
		return fmt.Errorf("%w: ppm must be positive, got %v", ErrInvalidCalibration, c.PPM)
	case c.FPS <= 0:
		return fmt.Errorf("%w: fps must be positive, got %v", ErrInvalidCalibration, c.FPS)
	case c.BandMin > c.BandMax:
		return fmt.Errorf("%w: band_min %d above band_max %d", ErrInvalidCalibration, c.BandMin, c.BandMax)
	case c.KMHFactor <= 0:
		return fmt.Errorf("%w: kmh_factor must be positive, got %v", ErrInvalidCalibration, c.KMHFactor)
	}
	return nil
}

// InBand reports whether row y lies in the closed measurement band.
func (c Calibration) InBand(y int) bool {
	return y >= c.BandMin && y <= c.BandMax
}

// Displayable reports whether a latched speed is shown for a track at row y.
func (c Calibration) Displayable(y int) bool {
	return y >= c.DisplayMin
}
