package tracker

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"
)

// correlationHandle drives an OpenCV tracker and scores each update by
// template correlation against the region it was seeded with.
type correlationHandle struct {
	tracker  gocv.Tracker
	template gocv.Mat
	box      image.Rectangle
	scale    float64
}

// NewFactory returns a Factory producing OpenCV-backed handles.
func NewFactory(cfg Config) (Factory, error) {
	if _, err := ParseKind(string(cfg.Kind)); err != nil {
		return nil, err
	}
	if cfg.QualityScale <= 0 {
		cfg.QualityScale = DefaultConfig().QualityScale
	}

	return FactoryFunc(func(frame *gocv.Mat, box image.Rectangle) (Handle, error) {
		return newCorrelationHandle(cfg, frame, box)
	}), nil
}

func newTracker(kind Kind) gocv.Tracker {
	switch kind {
	case KindKCF:
		return contrib.NewTrackerKCF()
	case KindCSRT:
		return contrib.NewTrackerCSRT()
	default:
		return gocv.NewTrackerMIL()
	}
}

func newCorrelationHandle(cfg Config, frame *gocv.Mat, box image.Rectangle) (*correlationHandle, error) {
	if frame == nil || frame.Empty() {
		return nil, fmt.Errorf("%w: empty frame", ErrInitFailed)
	}

	box = clip(box, frame)
	if box.Empty() {
		return nil, fmt.Errorf("%w: box outside frame", ErrInitFailed)
	}

	t := newTracker(cfg.Kind)
	if !t.Init(*frame, box) {
		t.Close()
		return nil, fmt.Errorf("%w: %s rejected box %v", ErrInitFailed, cfg.Kind, box)
	}

	return &correlationHandle{
		tracker:  t,
		template: grayRegion(frame, box),
		box:      box,
		scale:    cfg.QualityScale,
	}, nil
}

// Update advances the tracker. A lost target or a region that left the
// frame scores zero.
func (h *correlationHandle) Update(frame *gocv.Mat) (float64, error) {
	if frame == nil || frame.Empty() {
		return 0, fmt.Errorf("update tracker: empty frame")
	}

	box, ok := h.tracker.Update(*frame)
	if !ok {
		return 0, nil
	}
	h.box = box

	region := clip(box, frame)
	if region.Empty() {
		return 0, nil
	}

	current := grayRegion(frame, region)
	defer current.Close()

	return h.correlate(current) * h.scale, nil
}

// correlate returns the normalized cross-correlation between the seeded
// template and patch, resizing patch to the template size first.
func (h *correlationHandle) correlate(patch gocv.Mat) float64 {
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(patch, &resized, image.Pt(h.template.Cols(), h.template.Rows()), 0, 0, gocv.InterpolationLinear)

	result := gocv.NewMat()
	defer result.Close()
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.MatchTemplate(resized, h.template, &result, gocv.TmCcoeffNormed, mask)

	_, maxVal, _, _ := gocv.MinMaxLoc(result)
	return float64(maxVal)
}

func (h *correlationHandle) Position() image.Rectangle {
	return h.box
}

func (h *correlationHandle) Close() error {
	h.template.Close()
	return h.tracker.Close()
}

func clip(box image.Rectangle, frame *gocv.Mat) image.Rectangle {
	return box.Intersect(image.Rect(0, 0, frame.Cols(), frame.Rows()))
}

// grayRegion copies the grayscale pixels of frame inside box.
func grayRegion(frame *gocv.Mat, box image.Rectangle) gocv.Mat {
	roi := frame.Region(box)
	defer roi.Close()

	gray := gocv.NewMat()
	if roi.Channels() > 1 {
		gocv.CvtColor(roi, &gray, gocv.ColorBGRToGray)
	} else {
		roi.CopyTo(&gray)
	}
	return gray
}
