// Package engine provides the default tree-of-thought implementation of
// core.ReasoningEngine. Each selected agent explores the prompt from its own
// role perspective in parallel; the resulting branches hang off a root node
// holding the original request.
package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	core "github.com/mohammad-safakhou/hivemind/internal/agent/core"
)

const defaultAgentTimeout = 30 * time.Second

type LLMEngine struct {
	ai      core.AIService
	repo    core.Repository
	logger  *log.Logger
	timeout time.Duration
}

// NewLLMEngine builds an engine around the completion collaborator. The
// repository receives every generated node best effort; persistence failures
// never fail exploration. A zero timeout falls back to the default.
func NewLLMEngine(ai core.AIService, repo core.Repository, logger *log.Logger, timeout time.Duration) *LLMEngine {
	if logger == nil {
		logger = log.New(log.Writer(), "[ENGINE] ", log.LstdFlags)
	}
	if timeout <= 0 {
		timeout = defaultAgentTimeout
	}
	return &LLMEngine{ai: ai, repo: repo, logger: logger, timeout: timeout}
}

// Explore asks every agent for its perspective on the prompt in parallel.
// Agents that error or time out are skipped; exploration fails only when no
// agent produced a branch.
func (e *LLMEngine) Explore(ctx context.Context, projectID, prompt string, agents []core.Agent, contextItems []core.ContextItem) (core.ThoughtTree, error) {
	root := core.ThoughtNode{
		ID:         uuid.NewString(),
		ProjectID:  projectID,
		Content:    prompt,
		Confidence: 0.5,
		Reasoning:  "original request",
		CreatedAt:  time.Now().UTC(),
	}

	contextData := map[string]interface{}{"project_id": projectID}
	for i, item := range contextItems {
		contextData[fmt.Sprintf("context_%d", i)] = item.Content
	}

	branches := make([]core.ThoughtNode, len(agents))
	errs := make([]error, len(agents))
	var wg sync.WaitGroup
	for i, agent := range agents {
		wg.Add(1)
		go func(i int, agent core.Agent) {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, e.timeout)
			defer cancel()
			node, err := e.branch(callCtx, root, agent, prompt, contextData)
			if err != nil {
				errs[i] = err
				return
			}
			branches[i] = node
		}(i, agent)
	}
	wg.Wait()

	tree := core.ThoughtTree{Root: root}
	for i, b := range branches {
		if errs[i] != nil {
			e.logger.Printf("agent %s dropped from exploration: %v", agents[i].ID, errs[i])
			continue
		}
		tree.Branches = append(tree.Branches, b)
	}
	if len(agents) > 0 && len(tree.Branches) == 0 {
		return core.ThoughtTree{}, fmt.Errorf("exploration produced no branches: %w", firstErr(errs))
	}
	sort.SliceStable(tree.Branches, func(i, j int) bool {
		return tree.Branches[i].Confidence > tree.Branches[j].Confidence
	})
	e.persist(ctx, tree)
	return tree, nil
}

func (e *LLMEngine) branch(ctx context.Context, root core.ThoughtNode, agent core.Agent, prompt string, contextData map[string]interface{}) (core.ThoughtNode, error) {
	query := fmt.Sprintf(
		"Explore the following request from your perspective as %s. Give your best answer, then on a new line starting with \"Alternatives:\" list up to two alternative approaches separated by semicolons.\n\nRequest: %s",
		agent.Role, prompt)
	raw, err := e.ai.Respond(ctx, agent, query, contextData)
	if err != nil {
		return core.ThoughtNode{}, fmt.Errorf("respond: %w", err)
	}
	content, alternatives := splitAlternatives(raw)
	if strings.TrimSpace(content) == "" {
		return core.ThoughtNode{}, fmt.Errorf("agent %s returned an empty thought", agent.ID)
	}
	node := core.ThoughtNode{
		ID:           uuid.NewString(),
		ParentID:     root.ID,
		ProjectID:    root.ProjectID,
		AgentID:      agent.ID,
		Content:      content,
		Reasoning:    fmt.Sprintf("perspective of %s (%s)", agent.Name, agent.Role),
		Alternatives: alternatives,
		CreatedAt:    time.Now().UTC(),
	}
	node.Confidence = e.score(ctx, node, contextData)
	return node, nil
}

// score asks the evaluator for a confidence estimate, keeping a neutral
// default when evaluation fails.
func (e *LLMEngine) score(ctx context.Context, node core.ThoughtNode, contextData map[string]interface{}) float64 {
	score, err := e.ai.Evaluate(ctx, node, contextData)
	if err != nil {
		e.logger.Printf("evaluation failed for thought %s: %v", node.ID, err)
		return 0.5
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func (e *LLMEngine) persist(ctx context.Context, tree core.ThoughtTree) {
	if e.repo == nil {
		return
	}
	for _, node := range tree.Nodes() {
		if err := e.repo.SaveThought(ctx, node); err != nil {
			e.logger.Printf("persisting thought %s failed: %v", node.ID, err)
		}
	}
}

func splitAlternatives(raw string) (string, []string) {
	idx := strings.Index(strings.ToLower(raw), "alternatives:")
	if idx < 0 {
		return strings.TrimSpace(raw), nil
	}
	content := strings.TrimSpace(raw[:idx])
	var alternatives []string
	for _, alt := range strings.Split(raw[idx+len("alternatives:"):], ";") {
		alt = strings.TrimSpace(alt)
		if alt == "" {
			continue
		}
		alternatives = append(alternatives, alt)
		if len(alternatives) == 2 {
			break
		}
	}
	return content, alternatives
}

func firstErr(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return fmt.Errorf("no agents to explore with")
}
