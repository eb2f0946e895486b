package server

import core "github.com/mohammad-safakhou/hivemind/internal/agent/core"

// HTTPError is the unified error body returned by the API.
type HTTPError struct {
	Error string `json:"error"`
}

type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type ProcessRequestBody struct {
	ProjectID string             `json:"project_id"`
	Input     string             `json:"input"`
	Context   []core.ContextItem `json:"context,omitempty"`
}

type SelectPathRequest struct {
	ProjectID string   `json:"project_id"`
	PathIDs   []string `json:"path_ids"`
}

type AgentStatusRequest struct {
	Status string `json:"status"`
}

type StartSessionRequest struct {
	ProjectID   string   `json:"project_id"`
	AgentIDs    []string `json:"agent_ids"`
	Type        string   `json:"type"`
	SeedContext string   `json:"seed_context,omitempty"`
}

type JoinSessionRequest struct {
	AgentID string `json:"agent_id"`
}

type JoinSessionResponse struct {
	Role string `json:"role"`
}

type BroadcastRequest struct {
	SenderID string `json:"sender_id"`
	Content  string `json:"content"`
	Type     string `json:"type"`
}

type BroadcastResponse struct {
	Accepted bool `json:"accepted"`
}

type DecisionRequest struct {
	Options       []string `json:"options"`
	FacilitatorID string   `json:"facilitator_id"`
	Weighted      *bool    `json:"weighted,omitempty"`
}
