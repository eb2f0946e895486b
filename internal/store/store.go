package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/mohammad-safakhou/hivemind/config"
	core "github.com/mohammad-safakhou/hivemind/internal/agent/core"
)

// Store is the Postgres-backed implementation of core.Repository plus the
// user records used by the HTTP server's auth layer.
type Store struct {
	DB *sql.DB
}

// New opens a connection using the configured Postgres settings.
func New(ctx context.Context, cfg config.PostgresConfig) (*Store, error) {
	return NewWithDSN(ctx, cfg.DSN())
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Agent operations

func (s *Store) SaveAgent(ctx context.Context, agent core.Agent) error {
	created := agent.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO agents (id, project_id, name, role, capabilities, status, success_rate, avg_response_time_ms, innovation_score, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
  project_id = EXCLUDED.project_id,
  name = EXCLUDED.name,
  role = EXCLUDED.role,
  capabilities = EXCLUDED.capabilities,
  status = EXCLUDED.status,
  success_rate = EXCLUDED.success_rate,
  avg_response_time_ms = EXCLUDED.avg_response_time_ms,
  innovation_score = EXCLUDED.innovation_score
`, agent.ID, agent.ProjectID, agent.Name, string(agent.Role), pq.Array(agent.Capabilities), string(agent.Status),
		agent.Metrics.SuccessRate, agent.Metrics.AvgResponseTime.Milliseconds(), agent.Metrics.InnovationScore, created)
	if err != nil {
		return fmt.Errorf("saving agent %s: %w", agent.ID, err)
	}
	return nil
}

func (s *Store) GetAgent(ctx context.Context, id string) (core.Agent, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT id, project_id, name, role, capabilities, status, success_rate, avg_response_time_ms, innovation_score, created_at
FROM agents WHERE id=$1
`, id)
	return scanAgent(row)
}

func (s *Store) ListAgentsByProject(ctx context.Context, projectID string) ([]core.Agent, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, project_id, name, role, capabilities, status, success_rate, avg_response_time_ms, innovation_score, created_at
FROM agents WHERE project_id=$1
ORDER BY created_at
`, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing agents for project %s: %w", projectID, err)
	}
	defer rows.Close()

	var out []core.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, agent)
	}
	return out, rows.Err()
}

func (s *Store) UpdateAgentStatus(ctx context.Context, agentID string, status core.AgentStatus) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE agents SET status=$2 WHERE id=$1`, agentID, string(status))
	if err != nil {
		return fmt.Errorf("updating agent %s status: %w", agentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("agent %s not found", agentID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAgent(row rowScanner) (core.Agent, error) {
	var (
		a         core.Agent
		role      string
		status    string
		caps      pq.StringArray
		avgMillis int64
	)
	err := row.Scan(&a.ID, &a.ProjectID, &a.Name, &role, &caps, &status,
		&a.Metrics.SuccessRate, &avgMillis, &a.Metrics.InnovationScore, &a.CreatedAt)
	if err != nil {
		return core.Agent{}, err
	}
	a.Role = core.AgentRole(role)
	a.Status = core.AgentStatus(status)
	a.Capabilities = []string(caps)
	a.Metrics.AvgResponseTime = time.Duration(avgMillis) * time.Millisecond
	return a, nil
}

// Thought operations

func (s *Store) SaveThought(ctx context.Context, node core.ThoughtNode) error {
	created := node.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO thoughts (id, parent_id, project_id, agent_id, content, confidence, reasoning, alternatives, selected, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
  content = EXCLUDED.content,
  confidence = EXCLUDED.confidence,
  reasoning = EXCLUDED.reasoning,
  alternatives = EXCLUDED.alternatives,
  selected = EXCLUDED.selected
`, node.ID, node.ParentID, node.ProjectID, node.AgentID, node.Content, node.Confidence,
		node.Reasoning, pq.Array(node.Alternatives), node.Selected, created)
	if err != nil {
		return fmt.Errorf("saving thought %s: %w", node.ID, err)
	}
	return nil
}

func (s *Store) GetThought(ctx context.Context, id string) (core.ThoughtNode, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT id, parent_id, project_id, agent_id, content, confidence, reasoning, alternatives, selected, created_at
FROM thoughts WHERE id=$1
`, id)
	return scanThought(row)
}

func (s *Store) ListThoughtsByProject(ctx context.Context, projectID string) ([]core.ThoughtNode, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, parent_id, project_id, agent_id, content, confidence, reasoning, alternatives, selected, created_at
FROM thoughts WHERE project_id=$1
ORDER BY created_at
`, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing thoughts for project %s: %w", projectID, err)
	}
	defer rows.Close()

	var out []core.ThoughtNode
	for rows.Next() {
		node, err := scanThought(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	return out, rows.Err()
}

func (s *Store) MarkThoughtSelected(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE thoughts SET selected=TRUE WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("marking thought %s selected: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("thought %s not found", id)
	}
	return nil
}

func scanThought(row rowScanner) (core.ThoughtNode, error) {
	var (
		n    core.ThoughtNode
		alts pq.StringArray
	)
	err := row.Scan(&n.ID, &n.ParentID, &n.ProjectID, &n.AgentID, &n.Content, &n.Confidence,
		&n.Reasoning, &alts, &n.Selected, &n.CreatedAt)
	if err != nil {
		return core.ThoughtNode{}, err
	}
	n.Alternatives = []string(alts)
	return n, nil
}

// Session operations

func (s *Store) SaveSession(ctx context.Context, session core.Session) error {
	shared, err := json.Marshal(session.Shared)
	if err != nil {
		return fmt.Errorf("encoding shared context: %w", err)
	}
	syncPoints, err := json.Marshal(session.SyncPoints)
	if err != nil {
		return fmt.Errorf("encoding sync points: %w", err)
	}
	var endedAt sql.NullTime
	if !session.EndedAt.IsZero() {
		endedAt = sql.NullTime{Time: session.EndedAt, Valid: true}
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO sessions (id, project_id, type, participants, status, shared, sync_points, consensus_reached, created_at, ended_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
  participants = EXCLUDED.participants,
  status = EXCLUDED.status,
  shared = EXCLUDED.shared,
  sync_points = EXCLUDED.sync_points,
  consensus_reached = EXCLUDED.consensus_reached,
  ended_at = EXCLUDED.ended_at
`, session.ID, session.ProjectID, string(session.Type), pq.Array(session.Participants), string(session.Status),
		shared, syncPoints, session.ConsensusReached, session.CreatedAt, endedAt)
	if err != nil {
		return fmt.Errorf("saving session %s: %w", session.ID, err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (core.Session, error) {
	var (
		session      core.Session
		sessionType  string
		status       string
		participants pq.StringArray
		shared       []byte
		syncPoints   []byte
		endedAt      sql.NullTime
	)
	err := s.DB.QueryRowContext(ctx, `
SELECT id, project_id, type, participants, status, shared, sync_points, consensus_reached, created_at, ended_at
FROM sessions WHERE id=$1
`, id).Scan(&session.ID, &session.ProjectID, &sessionType, &participants, &status,
		&shared, &syncPoints, &session.ConsensusReached, &session.CreatedAt, &endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Session{}, core.ErrSessionNotFound
	}
	if err != nil {
		return core.Session{}, fmt.Errorf("loading session %s: %w", id, err)
	}
	session.Type = core.SessionType(sessionType)
	session.Status = core.SessionStatus(status)
	session.Participants = []string(participants)
	if len(shared) > 0 {
		if err := json.Unmarshal(shared, &session.Shared); err != nil {
			return core.Session{}, fmt.Errorf("decoding shared context: %w", err)
		}
	}
	if len(syncPoints) > 0 {
		if err := json.Unmarshal(syncPoints, &session.SyncPoints); err != nil {
			return core.Session{}, fmt.Errorf("decoding sync points: %w", err)
		}
	}
	if endedAt.Valid {
		session.EndedAt = endedAt.Time
	}
	return session, nil
}

// User operations

func (s *Store) CreateUser(ctx context.Context, email, hash string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2)`, email, hash)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	return
}
