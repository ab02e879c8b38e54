package track

import (
	"gocv.io/x/gocv"
)

// Assignment is the outcome of associating one detection.
type Assignment struct {
	Box     Box  `json:"box"`
	TrackID int  `json:"track_id"`
	Created bool `json:"created"`
}

// Matches reports whether det and trk mutually contain each other's centers.
// The test tolerates size drift between tracker and detector boxes.
func Matches(det, trk Box) bool {
	dx, dy := det.Center()
	tx, ty := trk.Center()
	return trk.Contains(dx, dy) && det.Contains(tx, ty)
}

// Associator attaches fresh detections to existing tracks or spawns new ones.
type Associator struct{}

// Match returns the first position, in registry order, that matches det.
func (Associator) Match(det Box, positions []Position) (int, bool) {
	for _, p := range positions {
		if Matches(det, p.Box) {
			return p.ID, true
		}
	}
	return 0, false
}

// Assign associates each detection in order. An unmatched detection creates
// a track seeded on frame; tracks created earlier in the same call are
// candidates for later detections. Matched tracks are left untouched.
func (a Associator) Assign(frame *gocv.Mat, detections []Box, reg *Registry) ([]Assignment, error) {
	out := make([]Assignment, 0, len(detections))
	for _, det := range detections {
		if id, ok := a.Match(det, reg.Snapshot()); ok {
			out = append(out, Assignment{Box: det, TrackID: id})
			continue
		}

		id, err := reg.Create(frame, det)
		if err != nil {
			return out, err
		}
		out = append(out, Assignment{Box: det, TrackID: id, Created: true})
	}
	return out, nil
}
