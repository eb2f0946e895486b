package core

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Synthesizer merges the top reasoning outputs and the collaboration
// context into one confidence-weighted response.
type Synthesizer struct {
	logger *log.Logger
}

const (
	maxThoughtsConsidered = 5
	maxSupportingThoughts = 3
	maxInsights           = 3
	maxAlternatives       = 3
	consensusBonus        = 0.1
	participationCap      = 0.1
)

// NewSynthesizer creates a synthesizer.
func NewSynthesizer(logger *log.Logger) *Synthesizer {
	if logger == nil {
		logger = log.New(log.Writer(), "[SYNTH] ", log.LstdFlags)
	}
	return &Synthesizer{logger: logger}
}

// Synthesize builds the final response from the tree's best thoughts and
// the session's shared context. An empty collaboration context degrades
// gracefully; only a tree with no usable thoughts fails.
func (s *Synthesizer) Synthesize(tree ThoughtTree, shared SharedContext, participantCount int, consensusReached bool) (Response, error) {
	thoughts := topThoughts(tree, maxThoughtsConsidered)
	if len(thoughts) == 0 {
		return Response{}, ErrSynthesisFailure
	}

	primary := thoughts[0]
	var b strings.Builder
	b.WriteString(primary.Content)

	supporting := thoughts[1:]
	if len(supporting) > maxSupportingThoughts {
		supporting = supporting[:maxSupportingThoughts]
	}
	for _, t := range supporting {
		b.WriteString("\n\n")
		b.WriteString(t.Content)
	}

	insights := collaborativeInsights(shared, maxInsights)
	for _, insight := range insights {
		b.WriteString("\n\n")
		b.WriteString(insight)
	}

	var confSum float64
	for _, t := range thoughts {
		confSum += t.Confidence
	}
	confidence := confSum / float64(len(thoughts))
	if consensusReached {
		confidence += consensusBonus
	}
	participation := float64(participantCount) / 6 * 0.1
	if participation > participationCap {
		participation = participationCap
	}
	confidence += participation
	if confidence > 1 {
		confidence = 1
	}

	return Response{
		ID:           uuid.NewString(),
		ProjectID:    primary.ProjectID,
		Content:      b.String(),
		Confidence:   confidence,
		Alternatives: buildAlternatives(thoughts),
		CreatedAt:    time.Now(),
	}, nil
}

// topThoughts returns up to n highest-confidence nodes with content.
func topThoughts(tree ThoughtTree, n int) []ThoughtNode {
	nodes := make([]ThoughtNode, 0, len(tree.Branches)+1)
	for _, node := range tree.Nodes() {
		if strings.TrimSpace(node.Content) != "" {
			nodes = append(nodes, node)
		}
	}
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].Confidence > nodes[j].Confidence })
	if len(nodes) > n {
		nodes = nodes[:n]
	}
	return nodes
}

// collaborativeInsights extracts statements and agreed decisions from the
// session's shared context.
func collaborativeInsights(shared SharedContext, max int) []string {
	out := make([]string, 0, max)
	for _, stmt := range shared.Understanding {
		if len(out) >= max {
			return out
		}
		if strings.TrimSpace(stmt) != "" {
			out = append(out, stmt)
		}
	}
	for _, d := range shared.Decisions {
		if len(out) >= max {
			return out
		}
		if d.Description != "" {
			out = append(out, fmt.Sprintf("Agreed: %s", d.Description))
		}
	}
	return out
}

// buildAlternatives derives alternatives from the non-primary thoughts.
func buildAlternatives(thoughts []ThoughtNode) []Alternative {
	if len(thoughts) < 2 {
		return nil
	}
	rest := thoughts[1:]
	if len(rest) > maxAlternatives {
		rest = rest[:maxAlternatives]
	}
	out := make([]Alternative, 0, len(rest))
	for _, t := range rest {
		alt := Alternative{Description: t.Content, Score: t.Confidence}
		if strings.TrimSpace(t.Reasoning) != "" {
			alt.Strengths = []string{t.Reasoning}
		}
		if len(t.Alternatives) > 0 {
			alt.Limitations = t.Alternatives
		}
		out = append(out, alt)
	}
	return out
}
