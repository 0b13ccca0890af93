package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	return rec.Body.String()
}

func TestRegistryExposesCollectors(t *testing.T) {
	m := New()
	m.FramesDelivered.Inc()
	m.PlaceholdersDelivered.Add(3)
	m.StreamActive.Set(1)

	body := scrape(t, m)
	for _, want := range []string{
		"vcamd_frames_delivered_total 1",
		"vcamd_placeholder_frames_total 3",
		"vcamd_stream_active 1",
		"vcamd_build_info",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}

func TestSetProducerState(t *testing.T) {
	m := New()
	all := []string{"not_started", "running", "stopped"}
	m.SetProducerState("running", all)

	body := scrape(t, m)
	if !strings.Contains(body, `vcamd_producer_state{state="running"} 1`) {
		t.Error("current state gauge is not 1")
	}
	if !strings.Contains(body, `vcamd_producer_state{state="not_started"} 0`) {
		t.Error("previous state gauge is not 0")
	}

	// Transition flips exactly one label to 1.
	m.SetProducerState("stopped", all)
	body = scrape(t, m)
	if !strings.Contains(body, `vcamd_producer_state{state="stopped"} 1`) ||
		!strings.Contains(body, `vcamd_producer_state{state="running"} 0`) {
		t.Error("state transition did not flip gauges")
	}
}

func TestIsolatedRegistries(t *testing.T) {
	a := New()
	b := New()
	a.FramesDelivered.Inc()

	if strings.Contains(scrape(t, b), "vcamd_frames_delivered_total 1") {
		t.Error("metric incremented on one bundle leaked into another")
	}
}
