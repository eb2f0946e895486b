package telemetry

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/mohammad-safakhou/hivemind/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hivemind_requests_total",
		Help: "Orchestration requests by outcome.",
	}, []string{"outcome"})
	broadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hivemind_broadcasts_total",
		Help: "Knowledge broadcasts by gate outcome.",
	}, []string{"outcome"})
	decisionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hivemind_decisions_total",
		Help: "Voting rounds finalized.",
	})
	conflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hivemind_decision_conflicts_total",
		Help: "Voting rounds that flagged a conflict.",
	})
	sessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hivemind_sessions_total",
		Help: "Collaboration sessions closed.",
	})
)

// Telemetry provides monitoring for requests, sessions and voting rounds.
type Telemetry struct {
	config  config.TelemetryConfig
	logger  *log.Logger
	mu      sync.RWMutex
	metrics Metrics
}

// Metrics holds aggregate performance metrics.
type Metrics struct {
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	AverageRequestTime time.Duration

	SessionsClosed     int64
	DecisionsTotal     int64
	ConflictsTotal     int64
	BroadcastsAccepted int64
	BroadcastsRejected int64

	AgentRequests map[string]int64
}

// RequestEvent describes one completed orchestration request.
type RequestEvent struct {
	ID         string
	ProjectID  string
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Success    bool
	Error      string
	AgentsUsed []string
}

// SessionEvent describes one closed collaboration session.
type SessionEvent struct {
	SessionID     string
	Type          string
	Participants  int
	Contributions int
	Decisions     int
	MeanConsensus float64
	Duration      time.Duration
}

// DecisionEvent describes one finalized voting round.
type DecisionEvent struct {
	SessionID      string
	Options        int
	Votes          int
	Abstentions    int
	ConsensusLevel float64
	Conflict       bool
	Weighted       bool
}

// BroadcastEvent describes one knowledge broadcast attempt.
type BroadcastEvent struct {
	SessionID string
	SenderID  string
	Accepted  bool
	Quality   float64
	Relevance float64
}

// NewTelemetry creates a telemetry instance.
func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	t := &Telemetry{
		config:  cfg,
		logger:  log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		metrics: Metrics{AgentRequests: make(map[string]int64)},
	}
	if cfg.Enabled && cfg.PeriodicLogs {
		go t.startPeriodicLogs()
	}
	return t
}

// RecordRequest records a completed orchestration request.
func (t *Telemetry) RecordRequest(ctx context.Context, event RequestEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.TotalRequests++
	if event.Success {
		t.metrics.SuccessfulRequests++
		requestsTotal.WithLabelValues("success").Inc()
	} else {
		t.metrics.FailedRequests++
		requestsTotal.WithLabelValues("failure").Inc()
	}

	if t.metrics.TotalRequests == 1 {
		t.metrics.AverageRequestTime = event.Duration
	} else {
		total := t.metrics.AverageRequestTime * time.Duration(t.metrics.TotalRequests-1)
		t.metrics.AverageRequestTime = (total + event.Duration) / time.Duration(t.metrics.TotalRequests)
	}

	for _, agent := range event.AgentsUsed {
		t.metrics.AgentRequests[agent]++
	}

	t.logger.Printf("Request: ID=%s, Success=%t, Duration=%v, Agents=%d",
		event.ID, event.Success, event.Duration, len(event.AgentsUsed))
}

// RecordSession records a closed collaboration session.
func (t *Telemetry) RecordSession(ctx context.Context, event SessionEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	t.metrics.SessionsClosed++
	t.mu.Unlock()
	sessionsTotal.Inc()

	t.logger.Printf("Session: ID=%s, Type=%s, Participants=%d, Decisions=%d, Consensus=%.2f",
		event.SessionID, event.Type, event.Participants, event.Decisions, event.MeanConsensus)
}

// RecordDecision records a finalized voting round.
func (t *Telemetry) RecordDecision(ctx context.Context, event DecisionEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	t.metrics.DecisionsTotal++
	if event.Conflict {
		t.metrics.ConflictsTotal++
	}
	t.mu.Unlock()

	decisionsTotal.Inc()
	if event.Conflict {
		conflictsTotal.Inc()
	}

	t.logger.Printf("Decision: Session=%s, Votes=%d, Abstentions=%d, Consensus=%.2f, Conflict=%t",
		event.SessionID, event.Votes, event.Abstentions, event.ConsensusLevel, event.Conflict)
}

// RecordBroadcast records a knowledge broadcast attempt.
func (t *Telemetry) RecordBroadcast(ctx context.Context, event BroadcastEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	if event.Accepted {
		t.metrics.BroadcastsAccepted++
	} else {
		t.metrics.BroadcastsRejected++
	}
	t.mu.Unlock()

	if event.Accepted {
		broadcastsTotal.WithLabelValues("accepted").Inc()
	} else {
		broadcastsTotal.WithLabelValues("rejected").Inc()
	}
}

// GetMetrics returns a snapshot of the current metrics.
func (t *Telemetry) GetMetrics() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	metrics := t.metrics
	metrics.AgentRequests = make(map[string]int64, len(t.metrics.AgentRequests))
	for k, v := range t.metrics.AgentRequests {
		metrics.AgentRequests[k] = v
	}
	return metrics
}

func (t *Telemetry) startPeriodicLogs() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		m := t.GetMetrics()
		t.logger.Printf("Metrics: Requests=%d/%d, AvgTime=%v, Sessions=%d, Decisions=%d, Conflicts=%d",
			m.SuccessfulRequests, m.TotalRequests, m.AverageRequestTime,
			m.SessionsClosed, m.DecisionsTotal, m.ConflictsTotal)
	}
}

// Shutdown logs a final report.
func (t *Telemetry) Shutdown() {
	m := t.GetMetrics()
	t.logger.Printf("Final Report: Requests=%d (%d failed), Sessions=%d, Decisions=%d, BroadcastsAccepted=%d",
		m.TotalRequests, m.FailedRequests, m.SessionsClosed, m.DecisionsTotal, m.BroadcastsAccepted)
}
