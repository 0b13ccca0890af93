package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vcamd/vcamd/internal/framechan"
	"github.com/vcamd/vcamd/internal/metrics"
	"github.com/vcamd/vcamd/internal/producer"
	"github.com/vcamd/vcamd/internal/scheduler"
	"github.com/vcamd/vcamd/internal/sink"
	"github.com/vcamd/vcamd/internal/supervisor"
	"github.com/vcamd/vcamd/pkg/logging"
)

// writeStubProducer creates an executable that ignores its arguments and
// sleeps until signalled, standing in for the real producer binary.
func writeStubProducer(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stub-producer")
	script := "#!/bin/sh\nexec sleep 60\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub producer: %v", err)
	}
	return path
}

func newTestServer(t *testing.T, binary string) (*Server, *httptest.Server) {
	t.Helper()
	log := logging.NewLogger(logging.ERROR, false)
	m := metrics.New()

	launch := producer.LaunchConfig{BinaryPath: binary, ListenPort: 19350}
	sup := supervisor.New(supervisor.Policy{
		GracefulTimeout: 50 * time.Millisecond,
		ForcedTimeout:   50 * time.Millisecond,
		CrashWindow:     30 * time.Second,
		CrashCeiling:    3,
		RestartDelay:    10 * time.Millisecond,
	}, log, m)

	channel := framechan.New(filepath.Join(t.TempDir(), "missing-region"), log)
	sched := scheduler.New(scheduler.Config{
		FrameInterval:     5 * time.Millisecond,
		PlaceholderWidth:  16,
		PlaceholderHeight: 16,
	}, channel, sink.NewNull(), log, m)

	srv := New(sup, sched, m, launch, log)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		sched.StopStream()
		sup.Stop()
	})
	return srv, ts
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	var resp *http.Response
	var err error
	if body == "" {
		resp, err = http.Post(url, "application/json", nil)
	} else {
		resp, err = http.Post(url, "application/json", strings.NewReader(body))
	}
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestShutdownBeforeServe(t *testing.T) {
	srv, _ := newTestServer(t, "rtmp-producer")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown before serve: %v", err)
	}
}

func TestListenAndServeStopsOnShutdown(t *testing.T) {
	srv, _ := newTestServer(t, "rtmp-producer")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe("127.0.0.1:0")
	}()
	// Shutdown may land before or after Serve picks up the listener; both
	// orders must end with a clean return.
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("ListenAndServe returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after Shutdown")
	}
}

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t, "rtmp-producer")

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, "rtmp-producer")

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestStatusIdle(t *testing.T) {
	_, ts := newTestServer(t, "rtmp-producer")

	resp, err := http.Get(ts.URL + "/api/producer/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	var status struct {
		State        string `json:"state"`
		StreamActive bool   `json:"stream_active"`
	}
	decodeBody(t, resp, &status)

	if status.State != string(supervisor.StateNotStarted) {
		t.Errorf("state = %q, want %q", status.State, supervisor.StateNotStarted)
	}
	if status.StreamActive {
		t.Error("stream reported active before stream start")
	}
}

func TestProducerStartMissingBinary(t *testing.T) {
	_, ts := newTestServer(t, filepath.Join(t.TempDir(), "nonexistent"))

	resp := post(t, ts.URL+"/api/producer/start", "")
	var body map[string]string
	decodeBody(t, resp, &body)

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	if body["error"] == "" {
		t.Error("error response carries no message")
	}
}

func TestProducerStartBadJSON(t *testing.T) {
	_, ts := newTestServer(t, "rtmp-producer")

	resp := post(t, ts.URL+"/api/producer/start", "{not json")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestProducerStopNotRunning(t *testing.T) {
	_, ts := newTestServer(t, "rtmp-producer")

	resp := post(t, ts.URL+"/api/producer/stop", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestProducerLifecycleOverHTTP(t *testing.T) {
	_, ts := newTestServer(t, writeStubProducer(t))

	// Start with a port override.
	resp := post(t, ts.URL+"/api/producer/start", `{"listen_port": 19351}`)
	var snap struct {
		State      string `json:"state"`
		PID        int    `json:"pid"`
		ListenPort int    `json:"listen_port"`
	}
	decodeBody(t, resp, &snap)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d, want 200", resp.StatusCode)
	}
	if snap.State != string(supervisor.StateRunning) {
		t.Errorf("state after start = %q, want %q", snap.State, supervisor.StateRunning)
	}
	if snap.PID == 0 {
		t.Error("running producer reports no PID")
	}
	if snap.ListenPort != 19351 {
		t.Errorf("listen port = %d, want override 19351", snap.ListenPort)
	}

	// Second start conflicts.
	resp = post(t, ts.URL+"/api/producer/start", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second start status = %d, want 409", resp.StatusCode)
	}

	// Stop is accepted and completes asynchronously.
	resp = post(t, ts.URL+"/api/producer/stop", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("stop status = %d, want 202", resp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(ts.URL + "/api/producer/status")
		if err != nil {
			t.Fatalf("GET status: %v", err)
		}
		var status struct {
			State string `json:"state"`
		}
		decodeBody(t, resp, &status)
		if status.State == string(supervisor.StateStopped) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("producer never reached stopped state (state %q)", status.State)
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Events recorded the lifecycle.
	resp, err := http.Get(ts.URL + "/api/producer/events")
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	var events struct {
		Events []struct {
			State string `json:"state"`
		} `json:"events"`
	}
	decodeBody(t, resp, &events)
	if len(events.Events) < 2 {
		t.Errorf("recorded %d events, want at least start and stop", len(events.Events))
	}
}

func TestProducerLogsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, "rtmp-producer")

	resp, err := http.Get(ts.URL + "/api/producer/logs")
	if err != nil {
		t.Fatalf("GET logs: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Lines []string `json:"lines"`
	}
	decodeBody(t, resp, &body)
	if len(body.Lines) != 0 {
		t.Errorf("idle producer has %d log lines", len(body.Lines))
	}
}

func TestStreamStartStop(t *testing.T) {
	_, ts := newTestServer(t, "rtmp-producer")

	resp := post(t, ts.URL+"/api/stream/start", "")
	var started map[string]bool
	decodeBody(t, resp, &started)
	if resp.StatusCode != http.StatusOK || !started["stream_active"] {
		t.Fatalf("stream start: status %d, body %v", resp.StatusCode, started)
	}

	resp = post(t, ts.URL+"/api/stream/start", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second stream start status = %d, want 409", resp.StatusCode)
	}

	resp = post(t, ts.URL+"/api/stream/stop", "")
	var stopped map[string]bool
	decodeBody(t, resp, &stopped)
	if resp.StatusCode != http.StatusOK || stopped["stream_active"] {
		t.Fatalf("stream stop: status %d, body %v", resp.StatusCode, stopped)
	}
}
