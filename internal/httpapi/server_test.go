package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Eliolocin/TomoriBot-sub001/internal/config"
	"github.com/Eliolocin/TomoriBot-sub001/internal/stream"
)

func newTestServer() (*Server, *stream.Orchestrator, *stream.LockTable) {
	orch := stream.NewOrchestrator(stream.Config{}, nil, nil, nil, nil)
	locks := stream.NewLockTable(0)
	srv := New(config.Config{}, orch, locks, nil, "lorem")
	return srv, orch, locks
}

func TestHealthAndReady(t *testing.T) {
	srv, _, _ := newTestServer()
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for _, path := range []string{"/healthz", "/readyz"} {
		res, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d, want 200", path, res.StatusCode)
		}
	}
}

func TestStatusReportsLocksAndStops(t *testing.T) {
	srv, orch, locks := newTestServer()
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	locks.Acquire("chan-1", "msg-1", nil)
	orch.RequestStop("chan-2")

	res, err := http.Get(ts.URL + "/v1/status")
	if err != nil {
		t.Fatalf("GET /v1/status: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}

	var got statusResponse
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Provider != "lorem" {
		t.Fatalf("Provider = %q, want lorem", got.Provider)
	}
	if got.LockedChannels != 1 {
		t.Fatalf("LockedChannels = %d, want 1", got.LockedChannels)
	}
	if got.PendingStops != 1 {
		t.Fatalf("PendingStops = %d, want 1", got.PendingStops)
	}
}

func TestStopChannelEndpoint(t *testing.T) {
	srv, orch, _ := newTestServer()
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res, err := http.Post(ts.URL+"/v1/channels/chan-9/stop", "application/json", nil)
	if err != nil {
		t.Fatalf("POST stop: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", res.StatusCode)
	}
	if !orch.HasStopRequest("chan-9") {
		t.Fatal("stop request not registered")
	}
}

func TestPerfLatencyWithoutMetrics(t *testing.T) {
	srv, _, _ := newTestServer()
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/v1/perf/latency")
	if err != nil {
		t.Fatalf("GET /v1/perf/latency: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
}
