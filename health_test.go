package bentengo

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClassifyScore(t *testing.T) {
	tests := []struct {
		score float64
		want  HealthStatus
	}{
		{100, HealthHealthy},
		{80, HealthHealthy},
		{79.9, HealthDegraded},
		{60, HealthDegraded},
		{59.9, HealthUnhealthy},
		{0, HealthUnhealthy},
	}

	for _, tt := range tests {
		if got := classifyScore(tt.score); got != tt.want {
			t.Errorf("classifyScore(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestHealthStatusString(t *testing.T) {
	tests := []struct {
		status HealthStatus
		want   string
	}{
		{HealthHealthy, "healthy"},
		{HealthDegraded, "degraded"},
		{HealthUnhealthy, "unhealthy"},
		{HealthStatus(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("HealthStatus(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestCheckAllWeightedScore(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead.Close()

	client := New(WithHealthMonitor(HealthMonitorConfig{
		Targets: []ProbeTarget{
			{Name: "app", URL: healthy.URL, Weight: 1, Primary: true},
			{Name: "tools", URL: dead.URL, Weight: 1},
		},
		ProbeTimeout: time.Second,
	}))

	snapshot := client.Health().CheckAll(context.Background())

	if len(snapshot.Components) != 3 {
		t.Fatalf("Expected 2 probes + runtime component, got %d", len(snapshot.Components))
	}
	if !snapshot.Components[0].Healthy {
		t.Error("Expected app probe healthy")
	}
	if snapshot.Components[1].Healthy {
		t.Error("Expected tools probe unhealthy")
	}
	if snapshot.Components[2].Name != "client_runtime" {
		t.Errorf("Expected runtime component last, got %s", snapshot.Components[2].Name)
	}

	// (1*100 + 1*0 + 1*100) / 3
	want := 200.0 / 3.0
	if snapshot.Score < want-0.1 || snapshot.Score > want+0.1 {
		t.Errorf("Expected weighted score ~%.1f, got %.1f", want, snapshot.Score)
	}
	if snapshot.Status != HealthDegraded {
		t.Errorf("Expected degraded composite, got %v", snapshot.Status)
	}
}

func TestRuntimeStatusPenalties(t *testing.T) {
	client := New(WithFallback(time.Hour), WithCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Minute}))
	hm := newHealthMonitor(HealthMonitorConfig{}, client)

	client.CircuitBreaker().RecordFailure("GET /jobs")
	for i := 0; i < 3; i++ {
		client.Fallback().EnqueueWrite(QueuedWrite{URL: "http://api/jobs"})
	}

	status := hm.runtimeStatus()
	// 100 - 20 per open circuit - 2 per queued write
	if status.Score != 74 {
		t.Errorf("Expected runtime score 74, got %v", status.Score)
	}
	if status.Healthy {
		t.Error("Expected runtime component below the healthy threshold")
	}
	if !strings.Contains(status.Detail, "open_circuits=1") || !strings.Contains(status.Detail, "queued_writes=3") {
		t.Errorf("Expected penalty detail, got %q", status.Detail)
	}
}

func TestRuntimeStatusClampsAtZero(t *testing.T) {
	client := New(WithCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Minute}))
	hm := newHealthMonitor(HealthMonitorConfig{}, client)

	for i := 0; i < 10; i++ {
		client.CircuitBreaker().RecordFailure(string(rune('a'+i)) + " /x")
	}

	if status := hm.runtimeStatus(); status.Score != 0 {
		t.Errorf("Expected score clamped at 0, got %v", status.Score)
	}
}

func TestHistoryCapAndLatest(t *testing.T) {
	client := New(WithHealthMonitor(HealthMonitorConfig{HistoryCap: 3}))
	hm := client.Health()

	if _, ok := hm.Latest(); ok {
		t.Error("Expected no snapshot before the first check")
	}

	for i := 0; i < 5; i++ {
		hm.CheckAll(context.Background())
	}

	if got := len(hm.History()); got != 3 {
		t.Errorf("Expected history capped at 3, got %d", got)
	}
	if _, ok := hm.Latest(); !ok {
		t.Error("Expected a latest snapshot after checks")
	}
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	client := New(WithHealthMonitor(HealthMonitorConfig{}))
	hm := client.Health()

	ch := hm.Subscribe()
	hm.CheckAll(context.Background())

	select {
	case snapshot := <-ch:
		if snapshot.Status != HealthHealthy {
			t.Errorf("Expected healthy snapshot with no targets and a clean client, got %v", snapshot.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected a snapshot on the subscription channel")
	}
}

func TestHealthUpdateHandlerInvoked(t *testing.T) {
	var got []HealthSnapshot
	client := New(WithHealthUpdateHandler(func(s HealthSnapshot) {
		got = append(got, s)
	}))

	client.Health().CheckAll(context.Background())
	client.Health().CheckAll(context.Background())

	if len(got) != 2 {
		t.Fatalf("Expected handler invoked per check, got %d calls", len(got))
	}
	if got[0].Status != HealthHealthy {
		t.Errorf("Expected healthy snapshot for a clean client, got %v", got[0].Status)
	}
}

func TestMonitorDrainsQueueWhenPrimaryHealthy(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	posted := make(chan struct{}, 1)
	mux.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		select {
		case posted <- struct{}{}:
		default:
		}
		w.WriteHeader(http.StatusCreated)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := New(
		WithFallback(time.Hour),
		WithHealthMonitor(HealthMonitorConfig{
			Targets:      []ProbeTarget{{Name: "app", URL: server.URL + "/health", Primary: true}},
			Interval:     20 * time.Millisecond,
			GraceDelay:   time.Millisecond,
			ProbeTimeout: time.Second,
		}),
	)
	client.Fallback().EnqueueWrite(QueuedWrite{
		Endpoint:    "POST /jobs",
		Method:      http.MethodPost,
		URL:         server.URL + "/jobs",
		ContentType: "application/json",
		Payload:     []byte(`{"input":"x"}`),
	})

	client.Start()
	defer client.Close()

	select {
	case <-posted:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected the monitor to replay the queued write on a healthy tick")
	}

	deadline := time.Now().Add(time.Second)
	for client.Fallback().QueueLen() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("Expected the queue to be empty after the drain")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestMonitorHoldsQueueWhilePrimaryUnhealthy(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead.Close()

	client := New(
		WithFallback(time.Hour),
		WithHealthMonitor(HealthMonitorConfig{
			Targets:      []ProbeTarget{{Name: "app", URL: dead.URL, Primary: true}},
			ProbeTimeout: 100 * time.Millisecond,
		}),
	)
	client.Fallback().EnqueueWrite(QueuedWrite{Method: http.MethodPost, URL: dead.URL + "/jobs"})

	client.Health().tick(context.Background())

	if client.Fallback().QueueLen() != 1 {
		t.Errorf("Expected queue untouched while the primary is down, got depth %d", client.Fallback().QueueLen())
	}
}

func TestMonitorStartStopIdempotent(t *testing.T) {
	client := New(WithHealthMonitor(HealthMonitorConfig{
		Interval:   10 * time.Millisecond,
		GraceDelay: time.Millisecond,
	}))
	hm := client.Health()

	hm.Stop() // never started

	hm.Start()
	hm.Start()
	time.Sleep(30 * time.Millisecond)
	hm.Stop()
	hm.Stop()

	if _, ok := hm.Latest(); !ok {
		t.Error("Expected at least one tick while running")
	}
}

func TestReplayedWriteCarriesBody(t *testing.T) {
	var got []byte
	done := make(chan struct{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(bytes.Buffer)
		buf.ReadFrom(r.Body)
		got = buf.Bytes()
		select {
		case done <- struct{}{}:
		default:
		}
	}))
	defer server.Close()

	client := New(WithFallback(time.Hour))
	client.Fallback().EnqueueWrite(QueuedWrite{
		Method:      http.MethodPost,
		URL:         server.URL + "/jobs",
		ContentType: "application/json",
		Payload:     []byte(`{"input":"x"}`),
	})

	if settled := client.DrainQueue(context.Background()); settled != 1 {
		t.Fatalf("Expected 1 settled write, got %d", settled)
	}
	<-done
	if string(got) != `{"input":"x"}` {
		t.Errorf("Expected replayed payload, got %s", got)
	}
}
