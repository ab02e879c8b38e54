// Package hook runs external executables when the speed detector latches a
// vehicle speed.
package hook

import (
	"encoding/json"
	"time"
)

// ManifestFile is the name of the manifest each hook directory must contain.
const ManifestFile = "hook.json"

// Manifest describes a hook's metadata.
type Manifest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Executable  string          `json:"executable"`
	Config      json.RawMessage `json:"config,omitempty"`
}

// Request is written to the hook's stdin for every speed event.
type Request struct {
	RunID    string          `json:"run_id,omitempty"`
	TrackID  int             `json:"track_id"`
	Speed    float64         `json:"speed"`
	Units    string          `json:"units"`
	SpeedMPS float64         `json:"speed_mps"`
	X        int             `json:"x"`
	Y        int             `json:"y"`
	Tick     int             `json:"tick"`
	Time     time.Time       `json:"time"`
	Config   json.RawMessage `json:"config,omitempty"`
}

// Response is read from the hook's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Hook is a discovered hook with its manifest and location.
type Hook struct {
	Manifest   Manifest
	Path       string
	Executable string
}
