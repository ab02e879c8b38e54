// Package detector provides object detection interfaces and backends for
// finding vehicles in video frames.
package detector

import (
	"image"
	"strconv"
)

// Detection is one object found in a frame.
type Detection struct {
	ClassID int             `json:"class_id"`
	Label   string          `json:"label,omitempty"`
	Score   float64         `json:"score"`
	Box     image.Rectangle `json:"box"`
}

// Name returns the label if known, otherwise the numeric class id.
func (d Detection) Name() string {
	if d.Label != "" {
		return d.Label
	}
	return strconv.Itoa(d.ClassID)
}

// Filter applies cfg to dets, labeling each detection from labels.
// Detections with an empty box are dropped.
func Filter(dets []Detection, cfg Config, labels Labels) []Detection {
	var keep map[string]bool
	if len(cfg.Classes) > 0 {
		keep = make(map[string]bool, len(cfg.Classes))
		for _, c := range cfg.Classes {
			keep[c] = true
		}
	}

	out := make([]Detection, 0, len(dets))
	for _, d := range dets {
		if d.Score < cfg.MinScore || d.Box.Empty() {
			continue
		}
		if d.Label == "" {
			d.Label = labels.Name(d.ClassID)
		}
		if keep != nil && !keep[d.Name()] {
			continue
		}
		out = append(out, d)
	}
	return out
}

// scaleBox maps a normalized [ymin, xmin, ymax, xmax] box onto the source
// frame, given the tensor size and the factor the frame was scaled by.
func scaleBox(ymin, xmin, ymax, xmax float32, tensorW, tensorH int, scale float64) image.Rectangle {
	sx := float64(tensorW) / scale
	sy := float64(tensorH) / scale
	return image.Rect(
		int(float64(xmin)*sx),
		int(float64(ymin)*sy),
		int(float64(xmax)*sx),
		int(float64(ymax)*sy),
	)
}
