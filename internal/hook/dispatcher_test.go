package hook

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/trafficcv/internal/track"
	"github.com/ayusman/trafficcv/internal/units"
)

func TestDispatcher_RunsHooksForFastVehicles(t *testing.T) {
	skipWithoutShell(t)

	root := t.TempDir()
	out := filepath.Join(t.TempDir(), "speeds.jsonl")
	writeHook(t, root, "recorder", Manifest{Name: "recorder", Executable: "hook.sh"},
		"#!/bin/sh\ncat >> '"+out+"'\necho >> '"+out+"'\n")

	m := NewManager(root)
	if err := m.Discover(); err != nil {
		t.Fatal(err)
	}

	d := NewDispatcher(m, NewExecutor(5*time.Second), DispatcherConfig{
		RunID:    "run-1",
		MinSpeed: 50,
		Units:    units.KPH,
	})

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d.OnEvent(track.Event{Kind: track.EventCreated, TrackID: 1, Time: now})
	d.OnEvent(track.Event{Kind: track.EventSpeed, TrackID: 1, SpeedMPS: 10, Time: now}) // 36 km/h
	d.OnEvent(track.Event{Kind: track.EventSpeed, TrackID: 2, SpeedMPS: 20, Box: track.Box{X: 100, Y: 280, W: 40, H: 20}, Tick: 7, Time: now})
	d.OnEvent(track.Event{Kind: track.EventEvicted, TrackID: 2, Time: now})

	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("hook never ran: %v", err)
	}
	defer f.Close()

	var reqs []Request
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var r Request
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("bad request line %q: %v", sc.Text(), err)
		}
		reqs = append(reqs, r)
	}

	if len(reqs) != 1 {
		t.Fatalf("hook ran %d times, want 1", len(reqs))
	}
	r := reqs[0]
	if r.TrackID != 2 || r.RunID != "run-1" || r.Units != units.KPH || r.Tick != 7 {
		t.Errorf("request = %+v", r)
	}
	if r.Speed < 71.99 || r.Speed > 72.01 {
		t.Errorf("Speed = %v, want 72", r.Speed)
	}
	if r.X != 100 || r.Y != 280 {
		t.Errorf("position = (%d, %d), want (100, 280)", r.X, r.Y)
	}
}

func TestDispatcher_DropsWhenQueueFull(t *testing.T) {
	skipWithoutShell(t)

	root := t.TempDir()
	writeHook(t, root, "slow", Manifest{Name: "slow", Executable: "hook.sh"}, "#!/bin/sh\ncat > /dev/null\nsleep 0.2\n")

	m := NewManager(root)
	if err := m.Discover(); err != nil {
		t.Fatal(err)
	}

	d := NewDispatcher(m, NewExecutor(5*time.Second), DispatcherConfig{QueueSize: 1})
	for i := 0; i < 10; i++ {
		d.OnEvent(track.Event{Kind: track.EventSpeed, TrackID: i, SpeedMPS: 20})
	}
	if d.Dropped() == 0 {
		t.Error("Dropped() = 0, want events dropped with a one-slot queue")
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestDispatcher_CloseIsIdempotent(t *testing.T) {
	d := NewDispatcher(NewManager(t.TempDir()), NewExecutor(time.Second), DispatcherConfig{})
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	// Events after close are ignored.
	d.OnEvent(track.Event{Kind: track.EventSpeed, SpeedMPS: 30})
}
