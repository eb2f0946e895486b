package core

import (
	"strings"
)

// Scoring strategies are deliberately simple keyword heuristics. They are
// kept behind interfaces so each one can be replaced and unit tested
// without touching selection or orchestration logic.

// RoleWeightStrategy scores how well a role fits a request.
type RoleWeightStrategy interface {
	Weight(role AgentRole, request string) float64
}

// ContextRelevanceStrategy scores an agent against ranked context items.
type ContextRelevanceStrategy interface {
	Relevance(agent Agent, items []ContextItem) float64
}

// CapabilityMatchStrategy scores an agent's capability tags against the
// request text.
type CapabilityMatchStrategy interface {
	Match(agent Agent, request string) float64
}

// KeywordRoleWeights boosts a role when the request mentions one of the
// role's trigger keywords; otherwise the role keeps its baseline.
type KeywordRoleWeights struct{}

var roleTriggers = map[AgentRole]struct {
	keywords []string
	baseline float64
}{
	RolePlanner:     {[]string{"plan", "strategy", "roadmap", "schedule"}, 0.65},
	RoleResearcher:  {[]string{"research", "find", "investigate", "explore"}, 0.70},
	RoleAnalyst:     {[]string{"analyze", "analysis", "compare", "evaluate"}, 0.70},
	RoleSynthesizer: {[]string{"summarize", "synthesize", "combine", "merge"}, 0.65},
	RoleReviewer:    {[]string{"review", "verify", "check", "critique"}, 0.60},
	RoleGeneralist:  {nil, 0.70},
}

func (KeywordRoleWeights) Weight(role AgentRole, request string) float64 {
	entry, ok := roleTriggers[role]
	if !ok {
		return 0.6
	}
	lower := strings.ToLower(request)
	for _, kw := range entry.keywords {
		if strings.Contains(lower, kw) {
			return 0.9
		}
	}
	return entry.baseline
}

// TokenContextRelevance measures the fraction of an agent's capability tags
// that co-occur with tokens of high-relevance context items.
type TokenContextRelevance struct {
	// MinRelevance filters which context items count as "high relevance".
	MinRelevance float64
}

func (s TokenContextRelevance) Relevance(agent Agent, items []ContextItem) float64 {
	if len(agent.Capabilities) == 0 || len(items) == 0 {
		return 0
	}
	threshold := s.MinRelevance
	if threshold <= 0 {
		threshold = 0.5
	}
	tokens := make(map[string]struct{})
	for _, item := range items {
		if item.Relevance < threshold {
			continue
		}
		for _, tok := range strings.Fields(strings.ToLower(item.Content)) {
			tokens[strings.Trim(tok, ".,:;!?()\"'")] = struct{}{}
		}
	}
	if len(tokens) == 0 {
		return 0
	}
	matched := 0
	for _, cap := range agent.Capabilities {
		if _, ok := tokens[strings.ToLower(cap)]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(agent.Capabilities))
}

// LiteralCapabilityMatch measures the fraction of capability tags literally
// present in the request text.
type LiteralCapabilityMatch struct{}

func (LiteralCapabilityMatch) Match(agent Agent, request string) float64 {
	if len(agent.Capabilities) == 0 {
		return 0
	}
	lower := strings.ToLower(request)
	matched := 0
	for _, cap := range agent.Capabilities {
		if strings.Contains(lower, strings.ToLower(cap)) {
			matched++
		}
	}
	return float64(matched) / float64(len(agent.Capabilities))
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
