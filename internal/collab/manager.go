package collab

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/hivemind/config"
	core "github.com/mohammad-safakhou/hivemind/internal/agent/core"
	"github.com/mohammad-safakhou/hivemind/internal/agent/telemetry"
)

// Manager runs collaboration sessions: participant roles, the shared
// knowledge gate, voting rounds and background maintenance. It implements
// core.CollaborationService.
type Manager struct {
	cfg       config.CollaborationConfig
	transport core.Transport
	repo      core.Repository
	ai        core.AIService
	telemetry *telemetry.Telemetry
	logger    *log.Logger

	quality   QualityScorer
	relevance RelevanceScorer
	resolver  ConflictResolver

	mu       sync.RWMutex
	sessions map[string]*sessionState
}

// sessionState is the in-memory working state for one active session. All
// access goes through the state mutex; the durable core.Session inside is
// saved to the repository on every meaningful change.
type sessionState struct {
	mu           sync.Mutex
	session      core.Session
	profile      Profile
	participants map[string]*core.ParticipantState
	knowledge    []core.KnowledgeItem
	rounds       int
	cancel       context.CancelFunc
}

// NewManager creates a session manager with the default scorers and the
// re-vote conflict resolver.
func NewManager(cfg config.CollaborationConfig, transport core.Transport, repo core.Repository, ai core.AIService, tel *telemetry.Telemetry) *Manager {
	return &Manager{
		cfg:       cfg,
		transport: transport,
		repo:      repo,
		ai:        ai,
		telemetry: tel,
		logger:    log.New(log.Writer(), "[COLLAB] ", log.LstdFlags),
		quality:   HeuristicQuality{},
		relevance: KeywordRelevance{},
		resolver:  RevoteResolver{},
		sessions:  make(map[string]*sessionState),
	}
}

// WithScorers swaps the knowledge gate scorers. Used by tests and by
// deployments that plug in model-backed evaluation.
func (m *Manager) WithScorers(q QualityScorer, r RelevanceScorer) *Manager {
	if q != nil {
		m.quality = q
	}
	if r != nil {
		m.relevance = r
	}
	return m
}

// WithResolver swaps the conflict resolver.
func (m *Manager) WithResolver(r ConflictResolver) *Manager {
	if r != nil {
		m.resolver = r
	}
	return m
}

// Start opens a session with the given participants. Each participant is
// role-assigned in order, the transport channel is created, and the
// maintenance loops begin.
func (m *Manager) Start(ctx context.Context, projectID string, participants []core.Agent, seedContext string, sessionType core.SessionType) (core.Session, error) {
	if len(participants) == 0 {
		return core.Session{}, fmt.Errorf("start session: no participants")
	}

	profile := ProfileFor(m.cfg, sessionType)
	now := time.Now().UTC()
	session := core.Session{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Type:      sessionType,
		Status:    core.SessionStatusActive,
		CreatedAt: now,
	}
	if seedContext != "" {
		session.Shared.Understanding = append(session.Shared.Understanding, seedContext)
	}

	states := make(map[string]*core.ParticipantState, len(participants))
	for _, agent := range participants {
		role := assignRole(sessionType, states)
		states[agent.ID] = &core.ParticipantState{
			AgentID:        agent.ID,
			Status:         core.ParticipantActive,
			Role:           role,
			LastActivity:   now,
			AgreementScore: 0.5,
		}
		session.Participants = append(session.Participants, agent.ID)
	}

	ids := make([]string, 0, len(participants))
	for _, agent := range participants {
		ids = append(ids, agent.ID)
	}
	if err := m.transport.CreateSession(ctx, session.ID, ids); err != nil {
		return core.Session{}, core.ExternalServiceError{Service: "transport", Err: err}
	}
	if err := m.repo.SaveSession(ctx, session); err != nil {
		m.logger.Printf("session %s: initial save failed: %v", session.ID, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	st := &sessionState{
		session:      session,
		profile:      profile,
		participants: states,
		cancel:       cancel,
	}

	m.mu.Lock()
	m.sessions[session.ID] = st
	m.mu.Unlock()

	go m.healthLoop(loopCtx, st)
	go m.engagementLoop(loopCtx, st)
	go m.consensusLoop(loopCtx, st)

	m.logger.Printf("session %s started: type=%s participants=%d", session.ID, sessionType, len(participants))
	return session, nil
}

// Join adds an agent to a running session and returns the role the needs
// analysis assigned to it.
func (m *Manager) Join(ctx context.Context, sessionID, agentID string) (core.ParticipantRole, error) {
	st, ok := m.state(sessionID)
	if !ok {
		return "", core.ErrSessionNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if existing, ok := st.participants[agentID]; ok {
		return existing.Role, nil
	}

	role := assignRole(st.session.Type, st.participants)
	if err := m.transport.JoinSession(ctx, sessionID, agentID); err != nil {
		return "", core.ExternalServiceError{Service: "transport", Err: err}
	}

	st.participants[agentID] = &core.ParticipantState{
		AgentID:        agentID,
		Status:         core.ParticipantActive,
		Role:           role,
		LastActivity:   time.Now().UTC(),
		AgreementScore: 0.5,
	}
	st.session.Participants = append(st.session.Participants, agentID)
	m.saveLocked(ctx, st)

	m.logger.Printf("session %s: %s joined as %s", sessionID, agentID, role)
	return role, nil
}

// BroadcastKnowledge runs the content through the acceptance gate. A
// rejected broadcast changes nothing; an accepted one is stored, merged
// into the shared context and fanned out to the other participants.
func (m *Manager) BroadcastKnowledge(ctx context.Context, sessionID, senderID, content, knowledgeType string) (bool, error) {
	st, ok := m.state(sessionID)
	if !ok {
		return false, core.ErrSessionNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	sender, ok := st.participants[senderID]
	if !ok {
		return false, fmt.Errorf("session %s: sender %s is not a participant", sessionID, senderID)
	}

	quality := m.quality.Score(content, st.knowledge)
	relevance := m.relevance.Score(content, st.session.Type, st.session.Shared, st.knowledge)
	accepted := quality > qualityThreshold && relevance > relevanceThreshold

	m.telemetry.RecordBroadcast(ctx, telemetry.BroadcastEvent{
		SessionID: sessionID,
		SenderID:  senderID,
		Accepted:  accepted,
		Quality:   quality,
		Relevance: relevance,
	})

	if !accepted {
		m.logger.Printf("session %s: broadcast from %s rejected (quality=%.2f relevance=%.2f)", sessionID, senderID, quality, relevance)
		return false, nil
	}

	now := time.Now().UTC()
	item := core.KnowledgeItem{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		SenderID:  senderID,
		Type:      knowledgeType,
		Content:   content,
		Quality:   quality,
		Relevance: relevance,
		CreatedAt: now,
	}
	st.knowledge = append(st.knowledge, item)
	if knowledgeType == "question" {
		st.session.Shared.OpenQuestions = append(st.session.Shared.OpenQuestions, content)
	} else {
		st.session.Shared.Understanding = append(st.session.Shared.Understanding, content)
	}

	sender.ContributionScore += quality * relevance
	sender.LastActivity = now
	sender.Status = core.ParticipantActive

	msg := core.Message{
		ID:       item.ID,
		Type:     "knowledge",
		SenderID: senderID,
		Payload: map[string]interface{}{
			"content":   content,
			"kind":      knowledgeType,
			"quality":   quality,
			"relevance": relevance,
		},
		Timestamp: now,
	}
	if err := m.transport.Broadcast(ctx, sessionID, msg); err != nil {
		m.logger.Printf("session %s: knowledge fan-out failed: %v", sessionID, err)
	}
	m.saveLocked(ctx, st)
	return true, nil
}

// Snapshot returns a copy of the session's durable state.
func (m *Manager) Snapshot(sessionID string) (core.Session, error) {
	st, ok := m.state(sessionID)
	if !ok {
		return core.Session{}, core.ErrSessionNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return copySession(st.session), nil
}

// End closes a session, stops the maintenance loops and produces the
// summary.
func (m *Manager) End(ctx context.Context, sessionID string) (core.SessionSummary, error) {
	m.mu.Lock()
	st, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return core.SessionSummary{}, core.ErrSessionNotFound
	}

	st.cancel()

	st.mu.Lock()
	defer st.mu.Unlock()

	now := time.Now().UTC()
	st.session.Status = core.SessionStatusCompleted
	st.session.EndedAt = now
	st.session.SyncPoints = append(st.session.SyncPoints, core.SyncPoint{Name: "session_closed", At: now})

	summary := m.buildSummaryLocked(st, now)

	if err := m.transport.CloseSession(ctx, sessionID); err != nil {
		m.logger.Printf("session %s: transport close failed: %v", sessionID, err)
	}
	m.saveLocked(ctx, st)

	m.telemetry.RecordSession(ctx, telemetry.SessionEvent{
		SessionID:     sessionID,
		Type:          string(st.session.Type),
		Participants:  summary.Participants,
		Contributions: summary.Contributions,
		Decisions:     summary.Decisions,
		MeanConsensus: summary.MeanConsensus,
		Duration:      summary.Duration,
	})
	m.logger.Printf("session %s closed: contributions=%d decisions=%d mean_consensus=%.2f",
		sessionID, summary.Contributions, summary.Decisions, summary.MeanConsensus)
	return summary, nil
}

func (m *Manager) buildSummaryLocked(st *sessionState, now time.Time) core.SessionSummary {
	summary := core.SessionSummary{
		SessionID:     st.session.ID,
		Duration:      now.Sub(st.session.CreatedAt),
		Participants:  len(st.participants),
		Contributions: len(st.knowledge),
		Decisions:     len(st.session.Shared.Decisions),
	}

	if n := len(st.session.Shared.Decisions); n > 0 {
		var total float64
		for _, d := range st.session.Shared.Decisions {
			total += d.ConsensusLevel
		}
		summary.MeanConsensus = total / float64(n)
	}

	ranks := make([]core.ContributorRank, 0, len(st.participants))
	for _, p := range st.participants {
		ranks = append(ranks, core.ContributorRank{AgentID: p.AgentID, Score: p.ContributionScore})
	}
	sort.SliceStable(ranks, func(i, j int) bool { return ranks[i].Score > ranks[j].Score })
	if len(ranks) > 3 {
		ranks = ranks[:3]
	}
	summary.TopContributors = ranks

	knowledge := make([]core.KnowledgeItem, len(st.knowledge))
	copy(knowledge, st.knowledge)
	sort.SliceStable(knowledge, func(i, j int) bool { return knowledge[i].Confidence() > knowledge[j].Confidence() })
	if len(knowledge) > 5 {
		knowledge = knowledge[:5]
	}
	summary.TopKnowledge = knowledge
	return summary
}

// healthLoop marks participants inactive when they have been quiet for
// longer than the inactivity window.
func (m *Manager) healthLoop(ctx context.Context, st *sessionState) {
	if m.cfg.HealthCheckInterval <= 0 {
		return
	}
	ticker := time.NewTicker(m.cfg.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st.mu.Lock()
			cutoff := time.Now().UTC().Add(-m.cfg.InactivityWindow)
			for _, p := range st.participants {
				if p.Status == core.ParticipantActive && p.LastActivity.Before(cutoff) {
					p.Status = core.ParticipantInactive
					m.logger.Printf("session %s: %s marked inactive", st.session.ID, p.AgentID)
				}
			}
			st.mu.Unlock()
		}
	}
}

// engagementLoop periodically prompts participants who have been quiet for
// longer than the profile's share interval.
func (m *Manager) engagementLoop(ctx context.Context, st *sessionState) {
	if m.cfg.EngagementCheckInterval <= 0 || st.profile.ShareInterval <= 0 {
		return
	}
	ticker := time.NewTicker(m.cfg.EngagementCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st.mu.Lock()
			quiet := make([]string, 0)
			cutoff := time.Now().UTC().Add(-st.profile.ShareInterval)
			for _, p := range st.participants {
				if p.LastActivity.Before(cutoff) {
					quiet = append(quiet, p.AgentID)
				}
			}
			sessionID := st.session.ID
			st.mu.Unlock()
			if len(quiet) == 0 {
				continue
			}
			msg := core.Message{
				ID:        uuid.NewString(),
				Type:      "share_prompt",
				Payload:   map[string]interface{}{"agents": quiet},
				Timestamp: time.Now().UTC(),
			}
			if err := m.transport.Broadcast(ctx, sessionID, msg); err != nil {
				m.logger.Printf("session %s: share prompt failed: %v", sessionID, err)
			}
		}
	}
}

// consensusLoop watches decision history and flips ConsensusReached once
// the latest round clears the profile threshold.
func (m *Manager) consensusLoop(ctx context.Context, st *sessionState) {
	if m.cfg.ConsensusCheckInterval <= 0 {
		return
	}
	ticker := time.NewTicker(m.cfg.ConsensusCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st.mu.Lock()
			if !st.session.ConsensusReached {
				if n := len(st.session.Shared.Decisions); n > 0 {
					latest := st.session.Shared.Decisions[n-1]
					if latest.ConsensusLevel >= st.profile.MinConsensus {
						st.session.ConsensusReached = true
						st.session.SyncPoints = append(st.session.SyncPoints, core.SyncPoint{
							Name: "consensus_reached",
							At:   time.Now().UTC(),
						})
						m.logger.Printf("session %s: consensus reached at %.2f", st.session.ID, latest.ConsensusLevel)
					}
				}
			}
			st.mu.Unlock()
		}
	}
}

func (m *Manager) state(sessionID string) (*sessionState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.sessions[sessionID]
	return st, ok
}

// saveLocked persists the session. Persistence failures are logged, not
// surfaced; the in-memory state is authoritative while the session runs.
func (m *Manager) saveLocked(ctx context.Context, st *sessionState) {
	if err := m.repo.SaveSession(ctx, st.session); err != nil {
		m.logger.Printf("session %s: save failed: %v", st.session.ID, err)
	}
}

func copySession(s core.Session) core.Session {
	out := s
	out.Participants = append([]string(nil), s.Participants...)
	out.SyncPoints = append([]core.SyncPoint(nil), s.SyncPoints...)
	out.Shared.Understanding = append([]string(nil), s.Shared.Understanding...)
	out.Shared.Decisions = append([]core.Decision(nil), s.Shared.Decisions...)
	out.Shared.Conflicts = append([]string(nil), s.Shared.Conflicts...)
	out.Shared.OpenQuestions = append([]string(nil), s.Shared.OpenQuestions...)
	return out
}
