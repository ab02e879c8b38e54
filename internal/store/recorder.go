package store

import (
	"github.com/rs/zerolog/log"

	"github.com/ayusman/trafficcv/internal/track"
)

// Recorder persists track events for one run. Write failures are logged
// and never reach the frame loop.
type Recorder struct {
	store *Store
	runID string
}

// NewRecorder creates a Recorder writing into run.
func NewRecorder(s *Store, runID string) *Recorder {
	return &Recorder{store: s, runID: runID}
}

// RunID returns the run the recorder writes to.
func (r *Recorder) RunID() string {
	return r.runID
}

// OnEvent implements track.Observer.
func (r *Recorder) OnEvent(e track.Event) {
	var err error
	switch e.Kind {
	case track.EventCreated:
		err = r.store.Tracks().Create(&TrackRecord{
			RunID:       r.runID,
			TrackID:     e.TrackID,
			Box:         e.Box,
			CreatedTick: e.Tick,
			CreatedAt:   e.Time,
		})
	case track.EventEvicted:
		err = r.store.Tracks().Evict(r.runID, e.TrackID, e.Tick, e.Time)
	case track.EventSpeed:
		err = r.store.Measurements().Create(&Measurement{
			RunID:      r.runID,
			TrackID:    e.TrackID,
			SpeedMPS:   e.SpeedMPS,
			X:          e.Box.X,
			Y:          e.Box.Y,
			Tick:       e.Tick,
			MeasuredAt: e.Time,
		})
	}
	if err != nil {
		log.Error().Err(err).Str("run", r.runID).Int("track", e.TrackID).Str("event", string(e.Kind)).Msg("store event")
	}
}
