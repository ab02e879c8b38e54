package track

import "time"

// EventKind identifies a track lifecycle event.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventEvicted EventKind = "evicted"
	EventSpeed   EventKind = "speed"
)

// Event is emitted by the frame loop whenever a track is created, evicted
// or has its speed latched.
type Event struct {
	Kind     EventKind `json:"kind"`
	TrackID  int       `json:"track_id"`
	Tick     int       `json:"tick"`
	Box      Box       `json:"box"`
	Quality  float64   `json:"quality,omitempty"`
	Speed    float64   `json:"speed,omitempty"`
	SpeedMPS float64   `json:"speed_mps,omitempty"`
	Time     time.Time `json:"time"`
}

// Observer receives events. OnEvent is called on the frame loop goroutine
// and must not block.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// OnEvent calls f(e).
func (f ObserverFunc) OnEvent(e Event) {
	f(e)
}
