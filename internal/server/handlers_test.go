package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/hivemind/config"
	core "github.com/mohammad-safakhou/hivemind/internal/agent/core"
)

type fakeOrch struct {
	response core.Response
	err      error
	statuses map[string]core.AgentStatus
	snapshot core.OrchestrationSnapshot
}

func (f *fakeOrch) ProcessRequest(_ context.Context, projectID, input string, _ []core.ContextItem) (core.Response, error) {
	if f.err != nil {
		return core.Response{}, f.err
	}
	resp := f.response
	resp.ProjectID = projectID
	return resp, nil
}

func (f *fakeOrch) UpdateAgentStatus(_ context.Context, agentID string, status core.AgentStatus) error {
	switch status {
	case core.AgentStatusIdle, core.AgentStatusThinking, core.AgentStatusWorking, core.AgentStatusError, core.AgentStatusOffline:
	default:
		return fmt.Errorf("invalid status %q", status)
	}
	if f.statuses == nil {
		f.statuses = map[string]core.AgentStatus{}
	}
	f.statuses[agentID] = status
	return nil
}

func (f *fakeOrch) Snapshot() core.OrchestrationSnapshot { return f.snapshot }

type serverRepo struct {
	agents   map[string]core.Agent
	thoughts []core.ThoughtNode
	listErr  error
}

func (r *serverRepo) GetAgent(_ context.Context, id string) (core.Agent, error) {
	agent, ok := r.agents[id]
	if !ok {
		return core.Agent{}, fmt.Errorf("agent %s not found", id)
	}
	return agent, nil
}
func (r *serverRepo) ListAgentsByProject(context.Context, string) ([]core.Agent, error) {
	return nil, nil
}
func (r *serverRepo) SaveAgent(context.Context, core.Agent) error { return nil }
func (r *serverRepo) UpdateAgentStatus(context.Context, string, core.AgentStatus) error {
	return nil
}
func (r *serverRepo) SaveThought(context.Context, core.ThoughtNode) error { return nil }
func (r *serverRepo) GetThought(context.Context, string) (core.ThoughtNode, error) {
	return core.ThoughtNode{}, errors.New("not implemented")
}
func (r *serverRepo) ListThoughtsByProject(context.Context, string) ([]core.ThoughtNode, error) {
	return r.thoughts, r.listErr
}
func (r *serverRepo) MarkThoughtSelected(context.Context, string) error   { return nil }
func (r *serverRepo) SaveSession(context.Context, core.Session) error     { return nil }
func (r *serverRepo) GetSession(context.Context, string) (core.Session, error) {
	return core.Session{}, core.ErrSessionNotFound
}

type fakeCollabSvc struct {
	session      core.Session
	decision     core.Decision
	summary      core.SessionSummary
	startErr     error
	decisionErr  error
	lastWeighted bool
}

func (f *fakeCollabSvc) Start(_ context.Context, projectID string, participants []core.Agent, _ string, sessionType core.SessionType) (core.Session, error) {
	if f.startErr != nil {
		return core.Session{}, f.startErr
	}
	s := f.session
	s.ProjectID = projectID
	s.Type = sessionType
	for _, p := range participants {
		s.Participants = append(s.Participants, p.ID)
	}
	return s, nil
}

func (f *fakeCollabSvc) Join(_ context.Context, sessionID, _ string) (core.ParticipantRole, error) {
	if sessionID != f.session.ID {
		return "", core.ErrSessionNotFound
	}
	return core.RoleContributor, nil
}

func (f *fakeCollabSvc) BroadcastKnowledge(_ context.Context, sessionID, _, _, _ string) (bool, error) {
	if sessionID != f.session.ID {
		return false, core.ErrSessionNotFound
	}
	return true, nil
}

func (f *fakeCollabSvc) FacilitateDecision(_ context.Context, sessionID string, _ []string, _ string, weighted bool) (core.Decision, error) {
	if sessionID != f.session.ID {
		return core.Decision{}, core.ErrSessionNotFound
	}
	f.lastWeighted = weighted
	return f.decision, f.decisionErr
}

func (f *fakeCollabSvc) Snapshot(sessionID string) (core.Session, error) {
	if sessionID != f.session.ID {
		return core.Session{}, core.ErrSessionNotFound
	}
	return f.session, nil
}

func (f *fakeCollabSvc) End(_ context.Context, sessionID string) (core.SessionSummary, error) {
	if sessionID != f.session.ID {
		return core.SessionSummary{}, core.ErrSessionNotFound
	}
	return f.summary, nil
}

func serveJSON(t *testing.T, e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func orchServer(orch *fakeOrch, repo *serverRepo) *echo.Echo {
	e := echo.New()
	h := &OrchestrationHandler{Orch: orch, Repo: repo, Paths: core.NewPathValidator(nil, nil)}
	h.Register(e.Group("/api"))
	return e
}

func TestProcessRequestHappyPath(t *testing.T) {
	orch := &fakeOrch{response: core.Response{ID: "r1", Content: "answer", Confidence: 0.8}}
	e := orchServer(orch, &serverRepo{})

	rec := serveJSON(t, e, http.MethodPost, "/api/requests", `{"project_id":"p1","input":"question"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp core.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Content != "answer" || resp.ProjectID != "p1" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestProcessRequestValidation(t *testing.T) {
	e := orchServer(&fakeOrch{}, &serverRepo{})
	rec := serveJSON(t, e, http.MethodPost, "/api/requests", `{"project_id":"p1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestProcessRequestNoAgents(t *testing.T) {
	orch := &fakeOrch{err: fmt.Errorf("selecting agents: %w", core.ErrNoAgentsAvailable)}
	e := orchServer(orch, &serverRepo{})
	rec := serveJSON(t, e, http.MethodPost, "/api/requests", `{"project_id":"p1","input":"q"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestUpdateAgentStatus(t *testing.T) {
	orch := &fakeOrch{}
	e := orchServer(orch, &serverRepo{})

	rec := serveJSON(t, e, http.MethodPut, "/api/agents/a1/status", `{"status":"working"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if orch.statuses["a1"] != core.AgentStatusWorking {
		t.Fatalf("status not recorded: %+v", orch.statuses)
	}

	rec = serveJSON(t, e, http.MethodPut, "/api/agents/a1/status", `{"status":"bogus"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bogus status, got %d", rec.Code)
	}
}

func TestSnapshotEndpoint(t *testing.T) {
	orch := &fakeOrch{snapshot: core.OrchestrationSnapshot{Stage: core.StageIdle, RequestsProcessed: 3}}
	e := orchServer(orch, &serverRepo{})

	rec := serveJSON(t, e, http.MethodGet, "/api/orchestration", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var snap core.OrchestrationSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.RequestsProcessed != 3 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestSelectPathDisconnected(t *testing.T) {
	repo := &serverRepo{thoughts: []core.ThoughtNode{
		{ID: "a", ProjectID: "p1", Content: "start"},
		{ID: "b", ParentID: "x", ProjectID: "p2", Content: "stray"},
	}}
	e := orchServer(&fakeOrch{}, repo)

	rec := serveJSON(t, e, http.MethodPost, "/api/thoughts/path", `{"project_id":"p1","path_ids":["a","b"]}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSelectPathEmpty(t *testing.T) {
	repo := &serverRepo{thoughts: []core.ThoughtNode{{ID: "a", ProjectID: "p1", Content: "start"}}}
	e := orchServer(&fakeOrch{}, repo)

	rec := serveJSON(t, e, http.MethodPost, "/api/thoughts/path", `{"project_id":"p1","path_ids":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSelectPathConnected(t *testing.T) {
	repo := &serverRepo{thoughts: []core.ThoughtNode{
		{ID: "root", ProjectID: "p1", Content: "question", Confidence: 0.6},
		{ID: "n1", ParentID: "root", ProjectID: "p1", Content: "step one", Confidence: 0.8},
	}}
	e := orchServer(&fakeOrch{}, repo)

	rec := serveJSON(t, e, http.MethodPost, "/api/thoughts/path", `{"project_id":"p1","path_ids":["root","n1"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp core.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(resp.Content, "Conclusion: step one") {
		t.Fatalf("unexpected content %q", resp.Content)
	}
}

func collabServer(svc *fakeCollabSvc, repo *serverRepo, cfg config.CollaborationConfig) *echo.Echo {
	e := echo.New()
	h := &CollabHandler{Collab: svc, Repo: repo, Cfg: cfg}
	h.Register(e.Group("/api"))
	return e
}

func TestStartSessionResolvesAgents(t *testing.T) {
	repo := &serverRepo{agents: map[string]core.Agent{
		"a1": {ID: "a1", Role: core.RoleAnalyst},
		"a2": {ID: "a2", Role: core.RoleReviewer},
	}}
	svc := &fakeCollabSvc{session: core.Session{ID: "s1", Status: core.SessionStatusActive}}
	e := collabServer(svc, repo, config.CollaborationConfig{})

	rec := serveJSON(t, e, http.MethodPost, "/api/sessions", `{"project_id":"p1","agent_ids":["a1","a2"],"type":"review"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var session core.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if session.Type != core.SessionReview || len(session.Participants) != 2 {
		t.Fatalf("unexpected session %+v", session)
	}
}

func TestStartSessionUnknownAgent(t *testing.T) {
	e := collabServer(&fakeCollabSvc{}, &serverRepo{agents: map[string]core.Agent{}}, config.CollaborationConfig{})
	rec := serveJSON(t, e, http.MethodPost, "/api/sessions", `{"project_id":"p1","agent_ids":["ghost"]}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestBroadcastAndJoin(t *testing.T) {
	svc := &fakeCollabSvc{session: core.Session{ID: "s1"}}
	e := collabServer(svc, &serverRepo{}, config.CollaborationConfig{})

	rec := serveJSON(t, e, http.MethodPost, "/api/sessions/s1/join", `{"agent_id":"a9"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("join: expected 200, got %d", rec.Code)
	}
	var joined JoinSessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &joined); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if joined.Role != string(core.RoleContributor) {
		t.Fatalf("unexpected role %q", joined.Role)
	}

	rec = serveJSON(t, e, http.MethodPost, "/api/sessions/s1/knowledge", `{"sender_id":"a9","content":"a finding","type":"insight"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("broadcast: expected 200, got %d", rec.Code)
	}

	rec = serveJSON(t, e, http.MethodPost, "/api/sessions/missing/knowledge", `{"sender_id":"a9","content":"x"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing session: expected 404, got %d", rec.Code)
	}
}

func TestDecisionDefaultsWeightingFromProfile(t *testing.T) {
	svc := &fakeCollabSvc{
		session:  core.Session{ID: "s1", Type: core.SessionDecisionMaking},
		decision: core.Decision{ChosenOption: "A"},
	}
	e := collabServer(svc, &serverRepo{}, config.CollaborationConfig{})

	rec := serveJSON(t, e, http.MethodPost, "/api/sessions/s1/decisions", `{"options":["A","B"],"facilitator_id":"f1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !svc.lastWeighted {
		t.Fatal("decision_making sessions default to weighted voting")
	}

	rec = serveJSON(t, e, http.MethodPost, "/api/sessions/s1/decisions", `{"options":["A","B"],"weighted":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.lastWeighted {
		t.Fatal("explicit weighted=false must override the profile default")
	}
}

func TestDecisionAllAbstained(t *testing.T) {
	svc := &fakeCollabSvc{
		session:     core.Session{ID: "s1", Type: core.SessionReview},
		decisionErr: fmt.Errorf("round failed: %w", core.ErrVoteTimeout),
	}
	e := collabServer(svc, &serverRepo{}, config.CollaborationConfig{})

	rec := serveJSON(t, e, http.MethodPost, "/api/sessions/s1/decisions", `{"options":["A"],"weighted":true}`)
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rec.Code)
	}
}

func TestEndSession(t *testing.T) {
	svc := &fakeCollabSvc{
		session: core.Session{ID: "s1"},
		summary: core.SessionSummary{SessionID: "s1", Participants: 3},
	}
	e := collabServer(svc, &serverRepo{}, config.CollaborationConfig{})

	rec := serveJSON(t, e, http.MethodDelete, "/api/sessions/s1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var summary core.SessionSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.Participants != 3 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	rec = serveJSON(t, e, http.MethodDelete, "/api/sessions/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
