// Package report summarises stored speed measurements.
package report

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/ayusman/trafficcv/internal/units"
)

// Summary holds speed statistics in a single unit.
type Summary struct {
	Units  string  `json:"units"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	P50    float64 `json:"p50"`
	P85    float64 `json:"p85"`
	P98    float64 `json:"p98"`
	Max    float64 `json:"max"`
}

// Summarize converts speedsMPS to unit and computes their statistics. An
// empty input yields a zero Summary with only Units set.
func Summarize(speedsMPS []float64, unit string) Summary {
	unit, err := units.Normalize(unit)
	if err != nil {
		unit = units.MPS
	}
	s := Summary{Units: unit, Count: len(speedsMPS)}
	if len(speedsMPS) == 0 {
		return s
	}

	x := convert(speedsMPS, unit)
	sort.Float64s(x)

	s.Mean = stat.Mean(x, nil)
	if len(x) > 1 {
		s.StdDev = stat.StdDev(x, nil)
	}
	s.Min = x[0]
	s.Max = x[len(x)-1]
	s.P50 = stat.Quantile(0.50, stat.Empirical, x, nil)
	s.P85 = stat.Quantile(0.85, stat.Empirical, x, nil)
	s.P98 = stat.Quantile(0.98, stat.Empirical, x, nil)
	return s
}

// Bucket is one histogram bin covering [Low, High).
type Bucket struct {
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
	Count int     `json:"count"`
}

// MaxBuckets bounds the number of histogram buckets.
const MaxBuckets = 1000

var (
	// ErrBucketWidth is returned for a width that is not a positive finite number.
	ErrBucketWidth = errors.New("invalid bucket width")
	// ErrTooManyBuckets is returned when width would need more than MaxBuckets buckets.
	ErrTooManyBuckets = errors.New("too many buckets")
)

// Histogram bins speedsMPS, converted to unit, into buckets of width.
// Buckets start at zero and run up to the bucket holding the maximum.
func Histogram(speedsMPS []float64, unit string, width float64) ([]Bucket, error) {
	if width <= 0 || math.IsNaN(width) || math.IsInf(width, 0) {
		return nil, fmt.Errorf("%w: %g", ErrBucketWidth, width)
	}
	if len(speedsMPS) == 0 {
		return nil, nil
	}

	x := convert(speedsMPS, unit)
	maxV := 0.0
	for _, v := range x {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			maxV = math.Max(maxV, v)
		}
	}

	if span := maxV / width; span >= MaxBuckets {
		return nil, fmt.Errorf("%w: width %g spans %.0f buckets, limit %d", ErrTooManyBuckets, width, span+1, MaxBuckets)
	}
	n := int(maxV/width) + 1
	buckets := make([]Bucket, n)
	for i := range buckets {
		buckets[i].Low = float64(i) * width
		buckets[i].High = float64(i+1) * width
	}
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if v < 0 {
			v = 0
		}
		buckets[int(v/width)].Count++
	}
	return buckets, nil
}

func convert(speedsMPS []float64, unit string) []float64 {
	x := make([]float64, len(speedsMPS))
	for i, v := range speedsMPS {
		x[i] = units.FromMPS(v, unit)
	}
	return x
}
