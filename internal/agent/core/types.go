package core

import (
	"context"
	"time"
)

// AgentStatus is the mutable availability state of an agent. The core only
// moves agents between Idle, Thinking and Error; the remaining states are
// set by whatever owns the agent.
type AgentStatus string

const (
	AgentStatusIdle     AgentStatus = "idle"
	AgentStatusThinking AgentStatus = "thinking"
	AgentStatusWorking  AgentStatus = "working"
	AgentStatusError    AgentStatus = "error"
	AgentStatusOffline  AgentStatus = "offline"
)

// AgentRole is an enumerated capability class.
type AgentRole string

const (
	RolePlanner     AgentRole = "planner"
	RoleResearcher  AgentRole = "researcher"
	RoleAnalyst     AgentRole = "analyst"
	RoleSynthesizer AgentRole = "synthesizer"
	RoleReviewer    AgentRole = "reviewer"
	RoleGeneralist  AgentRole = "generalist"
)

// PerformanceMetrics are the recorded performance figures for an agent.
type PerformanceMetrics struct {
	SuccessRate     float64       `json:"success_rate"` // 0.0 to 1.0
	AvgResponseTime time.Duration `json:"avg_response_time"`
	InnovationScore float64       `json:"innovation_score"` // 0.0 to 1.0
}

// Agent represents a unit of reasoning capability. Agents are created and
// owned externally; the core mutates only their status.
type Agent struct {
	ID           string             `json:"id"`
	ProjectID    string             `json:"project_id"`
	Name         string             `json:"name"`
	Role         AgentRole          `json:"role"`
	Capabilities []string           `json:"capabilities"`
	Status       AgentStatus        `json:"status"`
	Metrics      PerformanceMetrics `json:"metrics"`
	CreatedAt    time.Time          `json:"created_at"`
}

// Available reports whether the agent can take part in a new request.
func (a Agent) Available() bool {
	return a.Status == AgentStatusIdle || a.Status == AgentStatusThinking
}

// ThoughtNode is one node of the reasoning tree produced by the external
// reasoning collaborator. The core reads nodes and sets only the Selected
// flag.
type ThoughtNode struct {
	ID           string    `json:"id"`
	ParentID     string    `json:"parent_id,omitempty"`
	ProjectID    string    `json:"project_id"`
	AgentID      string    `json:"agent_id,omitempty"`
	Content      string    `json:"content"`
	Confidence   float64   `json:"confidence"` // 0.0 to 1.0
	Reasoning    string    `json:"reasoning,omitempty"`
	Alternatives []string  `json:"alternatives,omitempty"`
	Selected     bool      `json:"selected"`
	CreatedAt    time.Time `json:"created_at"`
}

// ThoughtTree is the hierarchical reasoning output: a root plus branches.
type ThoughtTree struct {
	Root     ThoughtNode   `json:"root"`
	Branches []ThoughtNode `json:"branches"`
}

// Nodes returns the root followed by all branches.
func (t ThoughtTree) Nodes() []ThoughtNode {
	out := make([]ThoughtNode, 0, len(t.Branches)+1)
	out = append(out, t.Root)
	out = append(out, t.Branches...)
	return out
}

// Find returns the node with the given id, if present.
func (t ThoughtTree) Find(id string) (ThoughtNode, bool) {
	if t.Root.ID == id {
		return t.Root, true
	}
	for _, n := range t.Branches {
		if n.ID == id {
			return n, true
		}
	}
	return ThoughtNode{}, false
}

// ContextItem is a ranked piece of request context.
type ContextItem struct {
	Content   string  `json:"content"`
	Relevance float64 `json:"relevance"` // 0.0 to 1.0
}

// Alternative is a non-primary answer candidate carried on a Response.
type Alternative struct {
	Description string   `json:"description"`
	Strengths   []string `json:"strengths,omitempty"`
	Limitations []string `json:"limitations,omitempty"`
	Score       float64  `json:"score"`
}

// Response is the synthesized answer for a request.
type Response struct {
	ID           string        `json:"id"`
	ProjectID    string        `json:"project_id,omitempty"`
	Content      string        `json:"content"`
	Confidence   float64       `json:"confidence"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
	AgentsUsed   []string      `json:"agents_used,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// SessionType selects a collaboration profile.
type SessionType string

const (
	SessionBrainstorming  SessionType = "brainstorming"
	SessionDecisionMaking SessionType = "decision_making"
	SessionReview         SessionType = "review"
	SessionPlanning       SessionType = "planning"
	SessionProblemSolving SessionType = "problem_solving"
)

// SessionStatus is the lifecycle state of a collaboration session.
// Completed is terminal.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
)

// ParticipantRole is the role assigned to a participant on join.
type ParticipantRole string

const (
	RoleFacilitator   ParticipantRole = "facilitator"
	RoleCritic        ParticipantRole = "critic"
	RoleSessionSynth  ParticipantRole = "synthesizer"
	RoleIdeaGenerator ParticipantRole = "idea_generator"
	RoleContributor   ParticipantRole = "contributor"
)

// ParticipantStatus is the session-scoped activity state of a participant.
type ParticipantStatus string

const (
	ParticipantActive   ParticipantStatus = "active"
	ParticipantInactive ParticipantStatus = "inactive"
	ParticipantThinking ParticipantStatus = "thinking"
	ParticipantWaiting  ParticipantStatus = "waiting"
)

// ParticipantState is per-session, in-memory participant bookkeeping.
// ContributionScore only grows (accepted broadcasts); AgreementScore stays
// within [0,1].
type ParticipantState struct {
	AgentID           string            `json:"agent_id"`
	Status            ParticipantStatus `json:"status"`
	Role              ParticipantRole   `json:"role"`
	LastActivity      time.Time         `json:"last_activity"`
	ContributionScore float64           `json:"contribution_score"`
	AgreementScore    float64           `json:"agreement_score"`
}

// KnowledgeItem is an accepted shared-knowledge broadcast.
type KnowledgeItem struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	SenderID  string    `json:"sender_id"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	Quality   float64   `json:"quality"`
	Relevance float64   `json:"relevance"`
	CreatedAt time.Time `json:"created_at"`
}

// Confidence is the combined acceptance score of the item.
func (k KnowledgeItem) Confidence() float64 {
	return (k.Quality + k.Relevance) / 2
}

// Decision is the outcome of one voting round.
type Decision struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	Description    string    `json:"description"`
	Rationale      string    `json:"rationale"`
	ChosenOption   string    `json:"chosen_option"`
	Confidence     float64   `json:"confidence"`
	ConsensusLevel float64   `json:"consensus_level"` // 0.0 to 1.0
	Conflicted     bool      `json:"conflicted"`
	Voters         []string  `json:"voters"`
	DecidedAt      time.Time `json:"decided_at"`
}

// VotingRecord is one participant's vote in a decision round. Abstained
// records carry zero weight and are excluded from option shares.
type VotingRecord struct {
	AgentID    string    `json:"agent_id"`
	Option     string    `json:"option"`
	Confidence float64   `json:"confidence"`
	Weight     float64   `json:"weight"`
	Abstained  bool      `json:"abstained,omitempty"`
	CastAt     time.Time `json:"cast_at"`
}

// SharedContext is the common understanding accumulated by a session.
type SharedContext struct {
	Understanding []string   `json:"understanding,omitempty"`
	Decisions     []Decision `json:"decisions,omitempty"`
	Conflicts     []string   `json:"conflicts,omitempty"`
	OpenQuestions []string   `json:"open_questions,omitempty"`
}

// SyncPoint marks a moment where the session state was aligned across
// participants (a decision, consensus reached, close).
type SyncPoint struct {
	Name string    `json:"name"`
	At   time.Time `json:"at"`
}

// Session is the durable view of a collaboration session.
type Session struct {
	ID               string        `json:"id"`
	ProjectID        string        `json:"project_id"`
	Type             SessionType   `json:"type"`
	Participants     []string      `json:"participants"`
	Status           SessionStatus `json:"status"`
	Shared           SharedContext `json:"shared"`
	SyncPoints       []SyncPoint   `json:"sync_points,omitempty"`
	ConsensusReached bool          `json:"consensus_reached"`
	CreatedAt        time.Time     `json:"created_at"`
	EndedAt          time.Time     `json:"ended_at,omitempty"`
}

// ContributorRank is one entry in a session summary's contributor ranking.
type ContributorRank struct {
	AgentID string  `json:"agent_id"`
	Score   float64 `json:"score"`
}

// SessionSummary is produced when a session is closed.
type SessionSummary struct {
	SessionID       string            `json:"session_id"`
	Duration        time.Duration     `json:"duration"`
	Participants    int               `json:"participants"`
	Contributions   int               `json:"contributions"`
	Decisions       int               `json:"decisions"`
	MeanConsensus   float64           `json:"mean_consensus"`
	TopContributors []ContributorRank `json:"top_contributors,omitempty"`
	TopKnowledge    []KnowledgeItem   `json:"top_knowledge,omitempty"`
}

// Message is the minimal schema fanned out over the transport.
type Message struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	SenderID  string                 `json:"sender_id"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Stage labels a workflow state.
type Stage string

const (
	StageIdle            Stage = "idle"
	StageSelectingAgents Stage = "selecting_agents"
	StageReasoning       Stage = "reasoning"
	StageCollaborating   Stage = "collaborating"
	StageSynthesizing    Stage = "synthesizing"
	StageOptimizing      Stage = "optimizing"
	StageCompleted       Stage = "completed"
	StageFailed          Stage = "failed"
)

// OrchestrationSnapshot is the immutable view of workflow state handed to
// external readers.
type OrchestrationSnapshot struct {
	Processing          bool      `json:"processing"`
	Stage               Stage     `json:"stage"`
	ActiveAgents        []string  `json:"active_agents,omitempty"`
	ActiveSessions      []string  `json:"active_sessions,omitempty"`
	LastResponse        *Response `json:"last_response,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
	RequestsProcessed   int64     `json:"requests_processed"`
	RequestsFailed      int64     `json:"requests_failed"`
	StatusUpdatesIssued int64     `json:"status_updates_issued"`
}

// ReasoningEngine is the external tree-of-thought collaborator.
type ReasoningEngine interface {
	Explore(ctx context.Context, projectID, prompt string, agents []Agent, contextItems []ContextItem) (ThoughtTree, error)
}

// AIService is the external completion collaborator used for per-agent
// responses, vote simulation and final refinement.
type AIService interface {
	// Respond produces a completion for a single agent.
	Respond(ctx context.Context, agent Agent, query string, contextData map[string]interface{}) (string, error)

	// Evaluate scores a thought in [0,1] given contextual data.
	Evaluate(ctx context.Context, thought ThoughtNode, contextData map[string]interface{}) (float64, error)
}

// Repository persists agents, thoughts and sessions. Implementations are
// external to the core; the Postgres implementation lives in internal/store.
type Repository interface {
	GetAgent(ctx context.Context, id string) (Agent, error)
	ListAgentsByProject(ctx context.Context, projectID string) ([]Agent, error)
	SaveAgent(ctx context.Context, agent Agent) error
	UpdateAgentStatus(ctx context.Context, agentID string, status AgentStatus) error

	SaveThought(ctx context.Context, node ThoughtNode) error
	GetThought(ctx context.Context, id string) (ThoughtNode, error)
	ListThoughtsByProject(ctx context.Context, projectID string) ([]ThoughtNode, error)
	MarkThoughtSelected(ctx context.Context, id string) error

	SaveSession(ctx context.Context, session Session) error
	GetSession(ctx context.Context, id string) (Session, error)
}

// Transport fans session messages out to participants.
type Transport interface {
	CreateSession(ctx context.Context, sessionID string, participantIDs []string) error
	JoinSession(ctx context.Context, sessionID, agentID string) error
	Broadcast(ctx context.Context, sessionID string, msg Message) error
	CloseSession(ctx context.Context, sessionID string) error
}

// CollaborationService is the session engine consumed by the workflow. The
// implementation lives in internal/collab.
type CollaborationService interface {
	Start(ctx context.Context, projectID string, participants []Agent, seedContext string, sessionType SessionType) (Session, error)
	Join(ctx context.Context, sessionID, agentID string) (ParticipantRole, error)
	BroadcastKnowledge(ctx context.Context, sessionID, senderID, content, knowledgeType string) (bool, error)
	FacilitateDecision(ctx context.Context, sessionID string, options []string, facilitatorID string, weighted bool) (Decision, error)
	Snapshot(sessionID string) (Session, error)
	End(ctx context.Context, sessionID string) (SessionSummary, error)
}
