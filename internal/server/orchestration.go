package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	core "github.com/mohammad-safakhou/hivemind/internal/agent/core"
)

// Orchestrator is the request-processing surface consumed by the HTTP
// layer. *core.Workflow satisfies it.
type Orchestrator interface {
	ProcessRequest(ctx context.Context, projectID, input string, contextItems []core.ContextItem) (core.Response, error)
	UpdateAgentStatus(ctx context.Context, agentID string, status core.AgentStatus) error
	Snapshot() core.OrchestrationSnapshot
}

type OrchestrationHandler struct {
	Orch  Orchestrator
	Repo  core.Repository
	Paths *core.PathValidator
}

func (h *OrchestrationHandler) Register(g *echo.Group) {
	g.POST("/requests", h.processRequest)
	g.GET("/orchestration", h.snapshot)
	g.PUT("/agents/:id/status", h.updateAgentStatus)
	g.POST("/thoughts/path", h.selectPath)
}

func (h *OrchestrationHandler) processRequest(c echo.Context) error {
	var req ProcessRequestBody
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ProjectID == "" || req.Input == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "project_id and input are required")
	}
	resp, err := h.Orch.ProcessRequest(c.Request().Context(), req.ProjectID, req.Input, req.Context)
	if err != nil {
		if errors.Is(err, core.ErrNoAgentsAvailable) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *OrchestrationHandler) snapshot(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Orch.Snapshot())
}

func (h *OrchestrationHandler) updateAgentStatus(c echo.Context) error {
	var req AgentStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	err := h.Orch.UpdateAgentStatus(c.Request().Context(), c.Param("id"), core.AgentStatus(req.Status))
	if err != nil {
		var ext core.ExternalServiceError
		if errors.As(err, &ext) {
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusOK)
}

func (h *OrchestrationHandler) selectPath(c echo.Context) error {
	var req SelectPathRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ProjectID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "project_id is required")
	}
	nodes, err := h.Repo.ListThoughtsByProject(c.Request().Context(), req.ProjectID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	tree, ok := buildTree(nodes)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no thoughts recorded for project")
	}
	resp, err := h.Paths.SelectPath(c.Request().Context(), tree, req.PathIDs)
	if err != nil {
		var dpe core.DisconnectedPathError
		switch {
		case errors.Is(err, core.ErrEmptyPath):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.As(err, &dpe):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// buildTree rebuilds a thought tree from stored nodes. The first node
// without a parent becomes the root.
func buildTree(nodes []core.ThoughtNode) (core.ThoughtTree, bool) {
	if len(nodes) == 0 {
		return core.ThoughtTree{}, false
	}
	rootIdx := 0
	for i, n := range nodes {
		if n.ParentID == "" {
			rootIdx = i
			break
		}
	}
	tree := core.ThoughtTree{Root: nodes[rootIdx]}
	for i, n := range nodes {
		if i == rootIdx {
			continue
		}
		tree.Branches = append(tree.Branches, n)
	}
	return tree, true
}
