// Package main is a speed hook that appends vehicles over a limit to a CSV
// file.
package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// Request represents the input from the hook executor.
type Request struct {
	RunID    string          `json:"run_id"`
	TrackID  int             `json:"track_id"`
	Speed    float64         `json:"speed"`
	Units    string          `json:"units"`
	SpeedMPS float64         `json:"speed_mps"`
	X        int             `json:"x"`
	Y        int             `json:"y"`
	Tick     int             `json:"tick"`
	Time     time.Time       `json:"time"`
	Config   json.RawMessage `json:"config"`
}

// Response represents the output to the hook executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config is read from the hook manifest.
type Config struct {
	// Limit is the speed, in the request's units, at or above which a
	// vehicle is logged.
	Limit float64 `json:"limit"`
	// File is the CSV file to append to, relative to the hook directory.
	File string `json:"file"`
}

const defaultFile = "speeders.csv"

var header = []string{"time", "run_id", "track_id", "speed", "units", "x", "y"}

func main() {
	json.NewEncoder(os.Stdout).Encode(handle(os.Stdin))
}

// handle processes one request read from r.
func handle(r io.Reader) Response {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return Response{Error: fmt.Sprintf("failed to decode request: %v", err)}
	}

	cfg := Config{File: defaultFile}
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			return Response{Error: fmt.Sprintf("invalid config: %v", err)}
		}
	}

	if req.Speed < cfg.Limit {
		return Response{Success: true, Data: json.RawMessage(`{"logged":false}`)}
	}

	if err := appendRow(cfg.File, req); err != nil {
		return Response{Error: err.Error()}
	}
	return Response{Success: true, Data: json.RawMessage(`{"logged":true}`)}
}

// appendRow writes req to path, adding a header when the file is new.
func appendRow(path string, req Request) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		w.Write(header)
	}
	w.Write([]string{
		req.Time.UTC().Format(time.RFC3339),
		req.RunID,
		strconv.Itoa(req.TrackID),
		strconv.FormatFloat(req.Speed, 'f', 1, 64),
		req.Units,
		strconv.Itoa(req.X),
		strconv.Itoa(req.Y),
	})
	w.Flush()
	return w.Error()
}
