package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/hivemind/config"
	core "github.com/mohammad-safakhou/hivemind/internal/agent/core"
	"github.com/mohammad-safakhou/hivemind/internal/collab"
)

type CollabHandler struct {
	Collab core.CollaborationService
	Repo   core.Repository
	Cfg    config.CollaborationConfig
}

func (h *CollabHandler) Register(g *echo.Group) {
	g.POST("/sessions", h.startSession)
	g.GET("/sessions/:id", h.getSession)
	g.POST("/sessions/:id/join", h.joinSession)
	g.POST("/sessions/:id/knowledge", h.broadcastKnowledge)
	g.POST("/sessions/:id/decisions", h.facilitateDecision)
	g.DELETE("/sessions/:id", h.endSession)
}

func (h *CollabHandler) startSession(c echo.Context) error {
	var req StartSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ProjectID == "" || len(req.AgentIDs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "project_id and agent_ids are required")
	}
	ctx := c.Request().Context()
	participants := make([]core.Agent, 0, len(req.AgentIDs))
	for _, id := range req.AgentIDs {
		agent, err := h.Repo.GetAgent(ctx, id)
		if err != nil {
			return echo.NewHTTPError(http.StatusNotFound, "unknown agent "+id)
		}
		participants = append(participants, agent)
	}
	session, err := h.Collab.Start(ctx, req.ProjectID, participants, req.SeedContext, core.SessionType(req.Type))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, session)
}

func (h *CollabHandler) getSession(c echo.Context) error {
	session, err := h.Collab.Snapshot(c.Param("id"))
	if err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, session)
}

func (h *CollabHandler) joinSession(c echo.Context) error {
	var req JoinSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.AgentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent_id is required")
	}
	role, err := h.Collab.Join(c.Request().Context(), c.Param("id"), req.AgentID)
	if err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, JoinSessionResponse{Role: string(role)})
}

func (h *CollabHandler) broadcastKnowledge(c echo.Context) error {
	var req BroadcastRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.SenderID == "" || req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "sender_id and content are required")
	}
	accepted, err := h.Collab.BroadcastKnowledge(c.Request().Context(), c.Param("id"), req.SenderID, req.Content, req.Type)
	if err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, BroadcastResponse{Accepted: accepted})
}

func (h *CollabHandler) facilitateDecision(c echo.Context) error {
	var req DecisionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Options) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "options are required")
	}
	sessionID := c.Param("id")
	weighted := false
	if req.Weighted != nil {
		weighted = *req.Weighted
	} else {
		session, err := h.Collab.Snapshot(sessionID)
		if err != nil {
			if errors.Is(err, core.ErrSessionNotFound) {
				return echo.NewHTTPError(http.StatusNotFound, err.Error())
			}
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		weighted = collab.ProfileFor(h.Cfg, session.Type).QualityWeightedVoting
	}
	decision, err := h.Collab.FacilitateDecision(c.Request().Context(), sessionID, req.Options, req.FacilitatorID, weighted)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrSessionNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, core.ErrVoteTimeout):
			return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, decision)
}

func (h *CollabHandler) endSession(c echo.Context) error {
	summary, err := h.Collab.End(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, summary)
}
