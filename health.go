package bentengo

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// HealthStatus classifies a composite score.
type HealthStatus int

const (
	HealthHealthy HealthStatus = iota
	HealthDegraded
	HealthUnhealthy
)

// String returns the status name for logging and labels.
func (s HealthStatus) String() string {
	switch s {
	case HealthHealthy:
		return "healthy"
	case HealthDegraded:
		return "degraded"
	case HealthUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Score thresholds for classifying the composite health score.
const (
	healthyScoreThreshold  = 80
	degradedScoreThreshold = 60
)

// ProbeTarget is a backend liveness endpoint to probe each tick.
type ProbeTarget struct {
	Name    string
	URL     string
	Weight  float64
	Primary bool
}

// ComponentStatus is the outcome of one probe or internal check.
type ComponentStatus struct {
	Name    string
	Healthy bool
	Score   float64
	Latency time.Duration
	Detail  string
}

// HealthSnapshot is an immutable record of one monitoring tick. Snapshots are
// appended to a capped history and never mutated after creation.
type HealthSnapshot struct {
	Timestamp  time.Time
	Components []ComponentStatus
	Score      float64
	Status     HealthStatus
}

// HealthMonitorConfig configures the periodic health monitor.
type HealthMonitorConfig struct {
	Targets       []ProbeTarget
	Interval      time.Duration
	ProbeTimeout  time.Duration
	GraceDelay    time.Duration
	HistoryCap    int
	RuntimeWeight float64
	// OnUpdate, when set, is invoked synchronously with every snapshot.
	OnUpdate func(HealthSnapshot)
}

// HealthMonitor probes backend liveness endpoints on a fixed interval,
// combines them with the client's internal reliability state into a weighted
// composite score, and drains the offline write queue while the primary
// backend is healthy. Probes use their own short-timeout transport so open
// circuits never starve them.
type HealthMonitor struct {
	mu      sync.Mutex
	config  HealthMonitorConfig
	client  *Client
	probe   *http.Client
	history []HealthSnapshot
	subs    []chan HealthSnapshot
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func newHealthMonitor(config HealthMonitorConfig, client *Client) *HealthMonitor {
	if config.Interval == 0 {
		config.Interval = 30 * time.Second
	}
	if config.ProbeTimeout == 0 {
		config.ProbeTimeout = 5 * time.Second
	}
	if config.GraceDelay == 0 {
		config.GraceDelay = 3 * time.Second
	}
	if config.HistoryCap == 0 {
		config.HistoryCap = 100
	}
	if config.RuntimeWeight == 0 {
		config.RuntimeWeight = 1
	}
	for i := range config.Targets {
		if config.Targets[i].Weight == 0 {
			config.Targets[i].Weight = 1
		}
	}

	return &HealthMonitor{
		config: config,
		client: client,
		probe:  &http.Client{Timeout: config.ProbeTimeout},
	}
}

// Start begins periodic monitoring after the configured grace delay. Starting
// an already-running monitor is a no-op.
func (hm *HealthMonitor) Start() {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	if hm.running {
		return
	}
	hm.running = true

	ctx, cancel := context.WithCancel(context.Background())
	hm.cancel = cancel
	hm.done = make(chan struct{})

	go hm.run(ctx)
}

// Stop cancels the monitoring loop and waits for it to exit.
func (hm *HealthMonitor) Stop() {
	hm.mu.Lock()
	if !hm.running {
		hm.mu.Unlock()
		return
	}
	hm.running = false
	cancel := hm.cancel
	done := hm.done
	hm.mu.Unlock()

	cancel()
	<-done
}

func (hm *HealthMonitor) run(ctx context.Context) {
	defer close(hm.done)

	select {
	case <-ctx.Done():
		return
	case <-time.After(hm.config.GraceDelay):
	}

	ticker := time.NewTicker(hm.config.Interval)
	defer ticker.Stop()

	hm.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hm.tick(ctx)
		}
	}
}

func (hm *HealthMonitor) tick(ctx context.Context) {
	snapshot := hm.CheckAll(ctx)

	if hm.primaryHealthy(snapshot) {
		hm.client.DrainQueue(ctx)
	}
}

// CheckAll probes every target, reads internal component state, computes the
// weighted composite score, records the snapshot and notifies subscribers.
func (hm *HealthMonitor) CheckAll(ctx context.Context) HealthSnapshot {
	components := make([]ComponentStatus, 0, len(hm.config.Targets)+1)

	var weightSum, weighted float64
	for _, target := range hm.config.Targets {
		status := hm.probeTarget(ctx, target)
		components = append(components, status)
		weightSum += target.Weight
		weighted += target.Weight * status.Score
	}

	runtime := hm.runtimeStatus()
	components = append(components, runtime)
	weightSum += hm.config.RuntimeWeight
	weighted += hm.config.RuntimeWeight * runtime.Score

	score := float64(100)
	if weightSum > 0 {
		score = weighted / weightSum
	}

	snapshot := HealthSnapshot{
		Timestamp:  time.Now(),
		Components: components,
		Score:      score,
		Status:     classifyScore(score),
	}

	hm.record(snapshot)

	if hm.client.metrics != nil {
		hm.client.metrics.RecordHealthScore(score)
	}
	if hm.client.debug != nil && hm.client.debug.Enabled && hm.client.debug.LogHealth && hm.client.logger != nil {
		hm.client.logger.Debug("Health check completed", "score", score, "status", snapshot.Status.String())
	}

	return snapshot
}

// probeTarget hits the target's liveness URL with the monitor's own transport.
func (hm *HealthMonitor) probeTarget(ctx context.Context, target ProbeTarget) ComponentStatus {
	start := time.Now()
	status := ComponentStatus{Name: target.Name}

	probeCtx, cancel := context.WithTimeout(ctx, hm.config.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, target.URL, nil)
	if err != nil {
		status.Detail = err.Error()
		return status
	}

	resp, err := hm.probe.Do(req)
	status.Latency = time.Since(start)
	if err != nil {
		status.Detail = err.Error()
		return status
	}
	resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		status.Healthy = true
		status.Score = 100
	} else {
		status.Detail = fmt.Sprintf("status %d", resp.StatusCode)
	}
	return status
}

// runtimeStatus scores the client's own reliability state: open circuits and
// a backed-up offline queue pull the score down.
func (hm *HealthMonitor) runtimeStatus() ComponentStatus {
	score := float64(100)
	detail := ""

	open := 0
	for _, cs := range hm.client.circuitBreaker.Snapshot() {
		if cs.State == StateOpen {
			open++
		}
	}
	score -= float64(open) * 20

	queueDepth := 0
	if hm.client.fallback != nil {
		queueDepth = hm.client.fallback.Stats().QueueDepth
	}
	score -= float64(queueDepth) * 2

	inWindow := 0
	if hm.client.rateLimiter != nil {
		for _, n := range hm.client.rateLimiter.Snapshot() {
			inWindow += n
		}
	}

	if score < 0 {
		score = 0
	}
	if open > 0 || queueDepth > 0 || inWindow > 0 {
		detail = fmt.Sprintf("open_circuits=%d queued_writes=%d in_window_requests=%d", open, queueDepth, inWindow)
	}

	return ComponentStatus{
		Name:    "client_runtime",
		Healthy: score >= healthyScoreThreshold,
		Score:   score,
		Detail:  detail,
	}
}

func classifyScore(score float64) HealthStatus {
	switch {
	case score >= healthyScoreThreshold:
		return HealthHealthy
	case score >= degradedScoreThreshold:
		return HealthDegraded
	default:
		return HealthUnhealthy
	}
}

func (hm *HealthMonitor) primaryHealthy(snapshot HealthSnapshot) bool {
	for i, target := range hm.config.Targets {
		if target.Primary {
			return snapshot.Components[i].Healthy
		}
	}
	// Without an explicit primary, drain whenever the composite is healthy.
	return snapshot.Status == HealthHealthy
}

// record appends the snapshot to the capped history and fans it out to
// subscribers without blocking: a slow consumer misses ticks instead of
// stalling the monitor.
func (hm *HealthMonitor) record(snapshot HealthSnapshot) {
	hm.mu.Lock()
	hm.history = append(hm.history, snapshot)
	if len(hm.history) > hm.config.HistoryCap {
		hm.history = hm.history[len(hm.history)-hm.config.HistoryCap:]
	}
	subs := make([]chan HealthSnapshot, len(hm.subs))
	copy(subs, hm.subs)
	hm.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- snapshot:
		default:
		}
	}

	if hm.config.OnUpdate != nil {
		hm.config.OnUpdate(snapshot)
	}
}

// Subscribe returns a channel receiving one HealthSnapshot per monitoring
// tick. The channel is buffered; snapshots are dropped when the consumer
// falls behind.
func (hm *HealthMonitor) Subscribe() <-chan HealthSnapshot {
	ch := make(chan HealthSnapshot, 8)
	hm.mu.Lock()
	hm.subs = append(hm.subs, ch)
	hm.mu.Unlock()
	return ch
}

// History returns a copy of the recorded snapshots, oldest first.
func (hm *HealthMonitor) History() []HealthSnapshot {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	out := make([]HealthSnapshot, len(hm.history))
	copy(out, hm.history)
	return out
}

// Latest returns the most recent snapshot, if any.
func (hm *HealthMonitor) Latest() (HealthSnapshot, bool) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	if len(hm.history) == 0 {
		return HealthSnapshot{}, false
	}
	return hm.history[len(hm.history)-1], true
}
