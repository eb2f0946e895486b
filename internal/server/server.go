package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/hivemind/config"
	core "github.com/mohammad-safakhou/hivemind/internal/agent/core"
	"github.com/mohammad-safakhou/hivemind/internal/agent/engine"
	"github.com/mohammad-safakhou/hivemind/internal/agent/telemetry"
	"github.com/mohammad-safakhou/hivemind/internal/collab"
	"github.com/mohammad-safakhou/hivemind/internal/store"
	"github.com/mohammad-safakhou/hivemind/internal/transport/redistransport"
	"github.com/mohammad-safakhou/hivemind/provider"
)

// Run wires every collaborator together and serves the HTTP API until the
// listener fails.
func Run(cfg *config.Config) error {
	logger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	if cfg.Server.JWTSecret == "" {
		return fmt.Errorf("server.jwt_secret is required")
	}
	secret := []byte(cfg.Server.JWTSecret)

	ctx := context.Background()

	st, err := store.New(ctx, cfg.Storage.Postgres)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer st.DB.Close()

	redisClient, err := redistransport.Conn(ctx, cfg.Storage.Redis)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer redisClient.Close()
	transport := redistransport.New(redisClient)

	tele := telemetry.NewTelemetry(cfg.Telemetry)

	ai, err := provider.NewAIService(cfg.LLM)
	if err != nil {
		return fmt.Errorf("initializing ai provider: %w", err)
	}

	reasoner := engine.NewLLMEngine(ai, st, nil, cfg.Agents.MaxResponseTime)
	manager := collab.NewManager(cfg.Collaboration, transport, st, ai, tele)
	workflow := core.NewWorkflow(cfg, nil, tele, reasoner, ai, st, manager)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization},
		AllowCredentials: true,
	}))
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			msg = fmt.Sprintf("%v", he.Message)
		}
		if code >= http.StatusInternalServerError {
			logger.Printf("%s %s -> %d: %s", c.Request().Method, c.Request().URL.Path, code, msg)
		}
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Telemetry.Enabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	auth := &AuthHandler{Store: st, Secret: secret}
	auth.Register(e.Group("/auth"))

	api := e.Group("/api")
	api.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	orch := &OrchestrationHandler{
		Orch:  workflow,
		Repo:  st,
		Paths: core.NewPathValidator(st, nil),
	}
	orch.Register(api)
	collabHandler := &CollabHandler{Collab: manager, Repo: st, Cfg: cfg.Collaboration}
	collabHandler.Register(api)

	logger.Printf("listening on %s", cfg.Server.Address)
	return e.Start(cfg.Server.Address)
}
