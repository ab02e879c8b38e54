package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/trafficcv/internal/store"
	"github.com/ayusman/trafficcv/internal/track"
)

func TestAPI_RecordedRunWorkflow(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	run := &store.Run{Source: "cars.mp4", PPM: 8.8, FPS: 18, DetectionPeriod: 10}
	if err := s.Runs().Create(run); err != nil {
		t.Fatalf("create run: %v", err)
	}

	hub := NewHub("kph")
	srv := New(Config{Store: s, Events: hub, Frames: NewFrameBuffer()})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/events", nil)
	if err != nil {
		t.Fatalf("dial /api/events: %v", err)
	}
	defer conn.Close()
	for deadline := time.Now().Add(2 * time.Second); hub.Clients() == 0; time.Sleep(10 * time.Millisecond) {
		if time.Now().After(deadline) {
			t.Fatal("events client never registered")
		}
	}

	// 1. The frame loop fans events out to the recorder and the hub.
	rec := store.NewRecorder(s, run.ID)
	now := time.Now()
	for _, e := range []track.Event{
		{Kind: track.EventCreated, TrackID: 0, Box: track.Box{X: 100, Y: 280, W: 40, H: 30}, Time: now},
		{Kind: track.EventSpeed, TrackID: 0, Tick: 1, Box: track.Box{X: 100, Y: 280, W: 40, H: 30}, Speed: 72, SpeedMPS: 20, Time: now},
	} {
		rec.OnEvent(e)
		hub.OnEvent(e)
	}

	// 2. Live feed delivers both events.
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for i := 0; i < 2; i++ {
		if _, _, err := conn.ReadMessage(); err != nil {
			t.Fatalf("read event %d: %v", i, err)
		}
	}

	client := ts.Client()

	// 3. Measurement is queryable.
	resp, err := client.Get(ts.URL + "/api/measurements?run=" + run.ID)
	if err != nil {
		t.Fatalf("GET /api/measurements error = %v", err)
	}
	var listed struct {
		Measurements []struct {
			Speed float64 `json:"speed"`
		} `json:"measurements"`
	}
	json.NewDecoder(resp.Body).Decode(&listed)
	resp.Body.Close()
	if len(listed.Measurements) != 1 {
		t.Fatalf("len(measurements) = %d, want 1", len(listed.Measurements))
	}

	// 4. Report summarises it.
	resp, err = client.Get(ts.URL + "/api/report?run=" + run.ID)
	if err != nil {
		t.Fatalf("GET /api/report error = %v", err)
	}
	var summary struct {
		Count int     `json:"count"`
		Max   float64 `json:"max"`
	}
	json.NewDecoder(resp.Body).Decode(&summary)
	resp.Body.Close()
	if summary.Count != 1 || summary.Max < 71.99 || summary.Max > 72.01 {
		t.Errorf("summary = %+v, want one 72 kph measurement", summary)
	}

	// 5. Run detail lists the track.
	resp, _ = client.Get(ts.URL + "/api/runs/" + run.ID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/runs/%s status = %d, want %d", run.ID, resp.StatusCode, http.StatusOK)
	}
	resp.Body.Close()
}

func TestAPI_HealthCheck(t *testing.T) {
	srv := New(Config{})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var health struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
	}
	json.NewDecoder(resp.Body).Decode(&health)

	if health.Status != "ok" {
		t.Errorf("status = %s, want ok", health.Status)
	}
}
