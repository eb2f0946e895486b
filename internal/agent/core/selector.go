package core

import (
	"log"
	"sort"
	"time"
)

// Selector scores and picks a diverse, bounded subset of a project's agents
// for one request.
type Selector struct {
	maxAgents       int
	maxResponseTime time.Duration
	roleWeights     RoleWeightStrategy
	contextScorer   ContextRelevanceStrategy
	capabilityMatch CapabilityMatchStrategy
	logger          *log.Logger
}

// scoring term weights
const (
	roleWeightShare      = 0.30
	performanceShare     = 0.25
	loadShare            = 0.15
	contextShare         = 0.15
	capabilityShare      = 0.15
	fallbackSelectionCap = 3
)

// NewSelector creates a selector with the default keyword heuristics.
func NewSelector(maxAgents int, maxResponseTime time.Duration, logger *log.Logger) *Selector {
	if maxAgents <= 0 {
		maxAgents = 6
	}
	if maxResponseTime <= 0 {
		maxResponseTime = 30 * time.Second
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[SELECT] ", log.LstdFlags)
	}
	return &Selector{
		maxAgents:       maxAgents,
		maxResponseTime: maxResponseTime,
		roleWeights:     KeywordRoleWeights{},
		contextScorer:   TokenContextRelevance{},
		capabilityMatch: LiteralCapabilityMatch{},
		logger:          logger,
	}
}

// WithStrategies replaces the scoring heuristics; nil arguments keep the
// current strategy.
func (s *Selector) WithStrategies(rw RoleWeightStrategy, cr ContextRelevanceStrategy, cm CapabilityMatchStrategy) *Selector {
	if rw != nil {
		s.roleWeights = rw
	}
	if cr != nil {
		s.contextScorer = cr
	}
	if cm != nil {
		s.capabilityMatch = cm
	}
	return s
}

type scoredAgent struct {
	agent Agent
	score float64
}

// Select returns at most maxAgents agents ordered by score, preferring role
// diversity. It fails only when the project has no agents at all; an
// all-busy pool falls back to the full set capped at the limit.
func (s *Selector) Select(agents []Agent, request string, contextItems []ContextItem) ([]Agent, error) {
	if len(agents) == 0 {
		return nil, ErrNoAgentsAvailable
	}

	pool := make([]Agent, 0, len(agents))
	for _, a := range agents {
		if a.Available() {
			pool = append(pool, a)
		}
	}
	if len(pool) == 0 {
		// Everyone is busy or unreachable; better to over-ask than to stall.
		s.logger.Printf("no available agents after filtering, falling back to full pool of %d", len(agents))
		pool = agents
	}

	scored := make([]scoredAgent, 0, len(pool))
	for _, a := range pool {
		scored = append(scored, scoredAgent{agent: a, score: s.score(a, request, contextItems)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	selected := s.pickDiverse(scored)
	if len(selected) == 0 {
		n := fallbackSelectionCap
		if n > len(scored) {
			n = len(scored)
		}
		for _, sc := range scored[:n] {
			selected = append(selected, sc.agent)
		}
	}
	return selected, nil
}

// score combines the five weighted terms, each clipped to [0,1].
func (s *Selector) score(a Agent, request string, contextItems []ContextItem) float64 {
	roleWeight := clip01(s.roleWeights.Weight(a.Role, request))
	performance := clip01(a.Metrics.SuccessRate)
	load := clip01(1 - float64(a.Metrics.AvgResponseTime)/float64(s.maxResponseTime))
	contextRelevance := clip01(s.contextScorer.Relevance(a, contextItems))
	capability := clip01(s.capabilityMatch.Match(a, request))

	return roleWeightShare*roleWeight +
		performanceShare*performance +
		loadShare*load +
		contextShare*contextRelevance +
		capabilityShare*capability
}

// pickDiverse runs the two-pass selection: first the best agent per
// distinct role, then remaining capacity filled purely by score.
func (s *Selector) pickDiverse(scored []scoredAgent) []Agent {
	selected := make([]Agent, 0, s.maxAgents)
	taken := make(map[string]bool, s.maxAgents)
	rolesSeen := make(map[AgentRole]bool)

	for _, sc := range scored {
		if len(selected) >= s.maxAgents {
			break
		}
		if rolesSeen[sc.agent.Role] {
			continue
		}
		rolesSeen[sc.agent.Role] = true
		taken[sc.agent.ID] = true
		selected = append(selected, sc.agent)
	}

	for _, sc := range scored {
		if len(selected) >= s.maxAgents {
			break
		}
		if taken[sc.agent.ID] {
			continue
		}
		taken[sc.agent.ID] = true
		selected = append(selected, sc.agent)
	}

	return selected
}
