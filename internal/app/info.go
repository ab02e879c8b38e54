package app

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/ayusman/trafficcv/internal/capture"
	"github.com/ayusman/trafficcv/internal/detector"
)

// Info logs model, stream and label metadata. The source is opened if
// needed and closed before returning.
func Info(src capture.Source, det detector.Detector, labels detector.Labels) error {
	if d, ok := det.(detector.Describer); ok {
		for _, line := range d.Describe() {
			log.Info().Msg(line)
		}
	}

	if !src.IsOpen() {
		if err := src.Open(); err != nil {
			return fmt.Errorf("open source: %w", err)
		}
	}
	defer src.Close()

	log.Info().Msgf("Video source info: %s", src.Info())
	log.Info().Msgf("Labels: %s", formatLabels(labels))
	return nil
}

func formatLabels(labels detector.Labels) string {
	ids := make([]int, 0, len(labels))
	for id := range labels {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := "{"
	for i, id := range ids {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%d: %s", id, labels[id])
	}
	return out + "}"
}
