// Package units converts measured speeds between the units reports are
// published in. Speeds are stored in metres per second.
package units

import (
	"fmt"
	"strings"
)

// Unit names.
const (
	MPS = "mps"
	KPH = "kph"
	MPH = "mph"
)

// mpsToMPH is the number of miles per hour in one metre per second.
const mpsToMPH = 2.2369362920544

// Valid lists every accepted unit. "kmph" is accepted as an alias of kph.
var Valid = []string{MPS, KPH, MPH}

// Normalize lowercases unit and resolves aliases. It returns an error for
// unknown units.
func Normalize(unit string) (string, error) {
	u := strings.ToLower(strings.TrimSpace(unit))
	if u == "kmph" || u == "kmh" {
		u = KPH
	}
	for _, v := range Valid {
		if u == v {
			return u, nil
		}
	}
	return "", fmt.Errorf("unknown speed unit %q (want one of %s)", unit, strings.Join(Valid, ", "))
}

// IsValid reports whether unit names a known unit.
func IsValid(unit string) bool {
	_, err := Normalize(unit)
	return err == nil
}

// FromMPS converts a speed in metres per second to unit. Unknown units
// leave the value unchanged.
func FromMPS(mps float64, unit string) float64 {
	u, _ := Normalize(unit)
	switch u {
	case KPH:
		return mps * 3.6
	case MPH:
		return mps * mpsToMPH
	default:
		return mps
	}
}

// Label returns the display suffix for unit.
func Label(unit string) string {
	u, _ := Normalize(unit)
	switch u {
	case KPH:
		return "km/hr"
	case MPH:
		return "mph"
	default:
		return "m/s"
	}
}
