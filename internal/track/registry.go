package track

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"github.com/ayusman/trafficcv/internal/tracker"
)

// Track is one vehicle identity followed across frames.
type Track struct {
	ID       int
	Previous Box
	Current  Box
	Quality  float64

	handle   tracker.Handle
	speed    float64
	speedMPS float64
	latched  bool
}

// Speed returns the latched speed and whether it has been measured.
func (t *Track) Speed() (float64, bool) {
	return t.speed, t.latched
}

// SpeedMPS returns the latched speed in metres per second.
func (t *Track) SpeedMPS() float64 {
	return t.speedMPS
}

// latch records a speed once. Later calls are ignored.
func (t *Track) latch(speed, mps float64) bool {
	if t.latched {
		return false
	}
	t.speed, t.speedMPS, t.latched = speed, mps, true
	return true
}

// Position is a track's current box as seen by rendering and association.
type Position struct {
	ID  int `json:"id"`
	Box Box `json:"box"`
}

// Registry owns the active tracks. Identifiers increase strictly and are
// never reused within a Registry's lifetime. It is not safe for concurrent use.
type Registry struct {
	factory    tracker.Factory
	minQuality float64
	nextID     int
	order      []int
	tracks     map[int]*Track
}

// NewRegistry creates an empty Registry. Handles are built by factory and
// tracks whose quality drops below minQuality are reported stale.
func NewRegistry(factory tracker.Factory, minQuality float64) *Registry {
	return &Registry{
		factory:    factory,
		minQuality: minQuality,
		tracks:     make(map[int]*Track),
	}
}

// UpdateAll advances every track's handle on frame and returns the IDs
// whose quality fell below the eviction threshold, in creation order.
func (r *Registry) UpdateAll(frame *gocv.Mat) ([]int, error) {
	var stale []int
	for _, id := range r.order {
		t := r.tracks[id]

		quality, err := t.handle.Update(frame)
		if err != nil {
			return stale, fmt.Errorf("update track %d: %w", id, err)
		}
		t.Quality = quality
		t.Current = BoxFromRect(t.handle.Position())

		if quality < r.minQuality {
			stale = append(stale, id)
		}
	}
	return stale, nil
}

// Evict removes the given tracks and closes their handles. Unknown IDs are ignored.
func (r *Registry) Evict(ids []int) {
	if len(ids) == 0 {
		return
	}

	drop := make(map[int]bool, len(ids))
	for _, id := range ids {
		t, ok := r.tracks[id]
		if !ok {
			continue
		}
		log.Debug().Int("track", id).Float64("quality", t.Quality).Msg("removing track")
		if err := t.handle.Close(); err != nil {
			log.Error().Err(err).Int("track", id).Msg("close tracker handle")
		}
		delete(r.tracks, id)
		drop[id] = true
	}

	kept := r.order[:0]
	for _, id := range r.order {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	r.order = kept
}

// Create allocates the next identifier and starts tracking box on frame.
// The new track's previous and current boxes are both the box its handle
// starts from, which may be box clipped to the frame. Its speed is unset.
func (r *Registry) Create(frame *gocv.Mat, box Box) (int, error) {
	handle, err := r.factory.New(frame, box.Rect())
	if err != nil {
		return 0, fmt.Errorf("create track: %w", err)
	}

	id := r.nextID
	r.nextID++

	start := BoxFromRect(handle.Position())
	r.tracks[id] = &Track{
		ID:       id,
		Previous: start,
		Current:  start,
		handle:   handle,
	}
	r.order = append(r.order, id)

	log.Debug().Int("track", id).Interface("box", box).Msg("creating track")
	return id, nil
}

// Refresh re-reads every track's current box from its handle.
func (r *Registry) Refresh() {
	for _, id := range r.order {
		t := r.tracks[id]
		t.Current = BoxFromRect(t.handle.Position())
	}
}

// Snapshot returns the current box of every track in creation order.
func (r *Registry) Snapshot() []Position {
	out := make([]Position, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, Position{ID: id, Box: r.tracks[id].Current})
	}
	return out
}

// Tracks returns the active tracks in creation order.
func (r *Registry) Tracks() []*Track {
	out := make([]*Track, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tracks[id])
	}
	return out
}

// Get returns the track with the given ID.
func (r *Registry) Get(id int) (*Track, bool) {
	t, ok := r.tracks[id]
	return t, ok
}

// Len returns the number of active tracks.
func (r *Registry) Len() int {
	return len(r.order)
}

// NextID returns the identifier the next Create will assign.
func (r *Registry) NextID() int {
	return r.nextID
}

// Close evicts every track.
func (r *Registry) Close() {
	ids := make([]int, len(r.order))
	copy(ids, r.order)
	r.Evict(ids)
}
