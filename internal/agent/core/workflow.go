package core

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/hivemind/config"
	"github.com/mohammad-safakhou/hivemind/internal/agent/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var workflowTracer trace.Tracer = otel.Tracer("hivemind/internal/agent/workflow")

// Workflow drives one request through the orchestration stages and owns
// the request-scoped state. The state is mutated only under the workflow's
// own lock; external readers get an immutable snapshot.
type Workflow struct {
	cfg       *config.Config
	logger    *log.Logger
	telemetry *telemetry.Telemetry

	selector    *Selector
	synthesizer *Synthesizer
	reasoner    ReasoningEngine
	ai          AIService
	repo        Repository
	collab      CollaborationService

	mu    sync.Mutex
	state orchestrationState
}

// orchestrationState is the single owned state value for the in-flight
// request plus running counters.
type orchestrationState struct {
	processing     bool
	stage          Stage
	activeAgents   []string
	activeSessions []string
	lastResponse   *Response
	lastError      string

	requestsProcessed int64
	requestsFailed    int64
	statusUpdates     int64
}

// NewWorkflow wires the workflow with its collaborators.
func NewWorkflow(cfg *config.Config, logger *log.Logger, tele *telemetry.Telemetry, reasoner ReasoningEngine, ai AIService, repo Repository, collab CollaborationService) *Workflow {
	if logger == nil {
		logger = log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	}
	return &Workflow{
		cfg:         cfg,
		logger:      logger,
		telemetry:   tele,
		state:       orchestrationState{stage: StageIdle},
		selector:    NewSelector(cfg.Agents.MaxConcurrentAgents, cfg.Agents.MaxResponseTime, logger),
		synthesizer: NewSynthesizer(logger),
		reasoner:    reasoner,
		ai:          ai,
		repo:        repo,
		collab:      collab,
	}
}

// Selector exposes the workflow's agent selector (strategy injection).
func (w *Workflow) Selector() *Selector { return w.selector }

// ProcessRequest runs a single request through selection, reasoning,
// collaboration, synthesis and optimization. On any stage failure the
// selected agents are rolled back to Error status before the error
// surfaces, and the workflow resets for the next request.
func (w *Workflow) ProcessRequest(ctx context.Context, projectID, input string, contextItems []ContextItem) (Response, error) {
	w.mu.Lock()
	if w.state.processing {
		w.mu.Unlock()
		return Response{}, fmt.Errorf("workflow is already processing a request")
	}
	w.state.processing = true
	w.state.stage = StageSelectingAgents
	w.mu.Unlock()

	if w.cfg.General.MaxProcessingTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.General.MaxProcessingTime)
		defer cancel()
	}

	requestID := uuid.NewString()
	startTime := time.Now()
	ctx, span := workflowTracer.Start(ctx, "workflow.process_request",
		trace.WithAttributes(
			attribute.String("request.id", requestID),
			attribute.String("project.id", projectID),
		))
	defer span.End()

	event := telemetry.RequestEvent{ID: requestID, ProjectID: projectID, StartTime: startTime}
	defer func() {
		event.EndTime = time.Now()
		event.Duration = event.EndTime.Sub(event.StartTime)
		w.telemetry.RecordRequest(ctx, event)
	}()

	w.logger.Printf("processing request %s for project %s", requestID, projectID)

	// Stage 1: agent selection. There is nothing to roll back yet.
	agents, err := w.selectAgents(ctx, projectID, input, contextItems)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		event.Error = err.Error()
		w.finish(StageFailed, nil, err)
		return Response{}, err
	}
	agentIDs := make([]string, len(agents))
	for i, a := range agents {
		agentIDs[i] = a.ID
	}
	event.AgentsUsed = agentIDs
	span.AddEvent("agents.selected", trace.WithAttributes(attribute.Int("agent.count", len(agents))))

	w.setStage(StageSelectingAgents, agentIDs, nil)
	if err := w.updateStatuses(ctx, agentIDs, AgentStatusThinking, false); err != nil {
		return w.fail(ctx, span, &event, agentIDs, "", err)
	}

	// Stage 2: reasoning via the external engine.
	w.setStage(StageReasoning, agentIDs, nil)
	tree, err := w.explore(ctx, projectID, input, agents, contextItems)
	if err != nil {
		return w.fail(ctx, span, &event, agentIDs, "", err)
	}

	// Stage 3: collaboration seeded with the tree's root.
	w.setStage(StageCollaborating, agentIDs, nil)
	session, err := w.collab.Start(ctx, projectID, agents, tree.Root.Content, SessionProblemSolving)
	if err != nil {
		return w.fail(ctx, span, &event, agentIDs, "", ExternalServiceError{Service: "collaboration", Err: err})
	}
	w.setStage(StageCollaborating, agentIDs, []string{session.ID})

	// Stage 4: synthesis over the best thoughts plus shared context.
	w.setStage(StageSynthesizing, agentIDs, []string{session.ID})
	sessState, err := w.collab.Snapshot(session.ID)
	if err != nil {
		sessState = session
	}
	response, err := w.synthesizer.Synthesize(tree, sessState.Shared, len(sessState.Participants), sessState.ConsensusReached)
	if err != nil {
		return w.fail(ctx, span, &event, agentIDs, session.ID, err)
	}
	response.AgentsUsed = agentIDs

	// Stage 5: optimization via the external refinement collaborator.
	w.setStage(StageOptimizing, agentIDs, []string{session.ID})
	response = w.optimize(ctx, agents[0], response)

	// Session close is cleanup; its failure must not fail the request.
	if _, err := w.collab.End(ctx, session.ID); err != nil {
		w.logger.Printf("closing session %s failed: %v", session.ID, err)
	}

	if err := w.updateStatuses(ctx, agentIDs, AgentStatusIdle, true); err != nil {
		w.logger.Printf("resetting agent statuses failed: %v", err)
	}

	event.Success = true
	span.SetAttributes(attribute.Float64("response.confidence", response.Confidence))
	span.SetStatus(codes.Ok, "completed")
	w.finish(StageCompleted, &response, nil)
	w.logger.Printf("completed request %s in %v", requestID, time.Since(startTime))
	return response, nil
}

func (w *Workflow) selectAgents(ctx context.Context, projectID, input string, contextItems []ContextItem) ([]Agent, error) {
	ctx, span := workflowTracer.Start(ctx, "workflow.select_agents")
	defer span.End()
	agents, err := w.repo.ListAgentsByProject(ctx, projectID)
	if err != nil {
		return nil, ExternalServiceError{Service: "repository", Err: err}
	}
	selected, err := w.selector.Select(agents, input, contextItems)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "completed")
	return selected, nil
}

func (w *Workflow) explore(ctx context.Context, projectID, input string, agents []Agent, contextItems []ContextItem) (ThoughtTree, error) {
	ctx, span := workflowTracer.Start(ctx, "workflow.reason")
	defer span.End()
	tree, err := w.reasoner.Explore(ctx, projectID, input, agents, contextItems)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ThoughtTree{}, ExternalServiceError{Service: "reasoning engine", Err: err}
	}
	span.SetAttributes(attribute.Int("tree.branches", len(tree.Branches)))
	span.SetStatus(codes.Ok, "completed")
	return tree, nil
}

// optimize asks the completion collaborator to refine the synthesized
// response. Refinement is advisory: failures keep the unrefined response.
func (w *Workflow) optimize(ctx context.Context, agent Agent, response Response) Response {
	ctx, span := workflowTracer.Start(ctx, "workflow.optimize")
	defer span.End()
	prompt := fmt.Sprintf("Refine the following answer for clarity without losing content:\n\n%s", response.Content)
	refined, err := w.ai.Respond(ctx, agent, prompt, map[string]interface{}{"confidence": response.Confidence})
	if err != nil {
		w.logger.Printf("refinement failed, keeping synthesized response: %v", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return response
	}
	if refined != "" {
		response.Content = refined
	}
	span.SetStatus(codes.Ok, "completed")
	return response
}

// updateStatuses writes one status for every agent in parallel and joins
// before returning. With bestEffort set, individual failures are logged and
// the call never fails.
func (w *Workflow) updateStatuses(ctx context.Context, agentIDs []string, status AgentStatus, bestEffort bool) error {
	timeout := w.cfg.Agents.StatusUpdateTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(agentIDs))
	for _, id := range agentIDs {
		wg.Add(1)
		go func(agentID string) {
			defer wg.Done()
			updCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
			defer cancel()
			if err := w.repo.UpdateAgentStatus(updCtx, agentID, status); err != nil {
				if bestEffort {
					w.logger.Printf("status update %s -> %s failed: %v", agentID, status, err)
					return
				}
				errCh <- fmt.Errorf("updating agent %s status: %w", agentID, err)
			}
		}(id)
	}
	wg.Wait()
	close(errCh)

	w.mu.Lock()
	w.state.statusUpdates += int64(len(agentIDs))
	w.mu.Unlock()

	for err := range errCh {
		if err != nil {
			return ExternalServiceError{Service: "repository", Err: err}
		}
	}
	return nil
}

// fail rolls back agent statuses, resets the workflow to a clean idle
// state and surfaces the original cause. Rollback writes are attempted for
// every agent and joined before the error is returned.
func (w *Workflow) fail(ctx context.Context, span trace.Span, event *telemetry.RequestEvent, agentIDs []string, sessionID string, cause error) (Response, error) {
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())
	event.Error = cause.Error()

	w.mu.Lock()
	failedStage := w.state.stage
	w.mu.Unlock()

	if err := w.updateStatuses(ctx, agentIDs, AgentStatusError, true); err != nil {
		w.logger.Printf("rollback status updates failed: %v", err)
	}
	if sessionID != "" {
		if _, err := w.collab.End(context.WithoutCancel(ctx), sessionID); err != nil {
			w.logger.Printf("closing session %s during failure cleanup: %v", sessionID, err)
		}
	}

	w.finish(StageFailed, nil, cause)
	return Response{}, fmt.Errorf("request failed during %s: %w", failedStage, cause)
}

func (w *Workflow) setStage(stage Stage, agentIDs, sessionIDs []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state.stage = stage
	w.state.activeAgents = append([]string(nil), agentIDs...)
	w.state.activeSessions = append([]string(nil), sessionIDs...)
}

// finish records the terminal stage of the request and resets the workflow
// so the instance is reusable. Failed requests leave an idle-equivalent
// state with the error recorded and the active sets cleared.
func (w *Workflow) finish(stage Stage, response *Response, cause error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state.processing = false
	w.state.activeAgents = nil
	w.state.activeSessions = nil
	if stage == StageCompleted {
		w.state.stage = StageCompleted
		w.state.lastResponse = response
		w.state.lastError = ""
		w.state.requestsProcessed++
		return
	}
	w.state.stage = StageIdle
	w.state.lastResponse = nil
	if cause != nil {
		w.state.lastError = cause.Error()
	}
	w.state.requestsFailed++
}

// UpdateAgentStatus is the externally exposed status mutation. Only the
// enumerated statuses are accepted.
func (w *Workflow) UpdateAgentStatus(ctx context.Context, agentID string, status AgentStatus) error {
	switch status {
	case AgentStatusIdle, AgentStatusThinking, AgentStatusWorking, AgentStatusError, AgentStatusOffline:
	default:
		return fmt.Errorf("invalid agent status: %s", status)
	}
	if err := w.repo.UpdateAgentStatus(ctx, agentID, status); err != nil {
		return ExternalServiceError{Service: "repository", Err: err}
	}
	w.mu.Lock()
	w.state.statusUpdates++
	w.mu.Unlock()
	return nil
}

// Snapshot returns an immutable copy of the orchestration state.
func (w *Workflow) Snapshot() OrchestrationSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	snap := OrchestrationSnapshot{
		Processing:          w.state.processing,
		Stage:               w.state.stage,
		ActiveAgents:        append([]string(nil), w.state.activeAgents...),
		ActiveSessions:      append([]string(nil), w.state.activeSessions...),
		LastError:           w.state.lastError,
		RequestsProcessed:   w.state.requestsProcessed,
		RequestsFailed:      w.state.requestsFailed,
		StatusUpdatesIssued: w.state.statusUpdates,
	}
	if w.state.lastResponse != nil {
		resp := *w.state.lastResponse
		snap.LastResponse = &resp
	}
	return snap
}
