package core

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PathValidator validates and executes a user-chosen reasoning path from a
// previously produced thought tree.
type PathValidator struct {
	repo   Repository
	logger *log.Logger
}

// NewPathValidator creates a validator. repo may be nil, in which case
// selected-flag persistence is skipped.
func NewPathValidator(repo Repository, logger *log.Logger) *PathValidator {
	if logger == nil {
		logger = log.New(log.Writer(), "[PATH] ", log.LstdFlags)
	}
	return &PathValidator{repo: repo, logger: logger}
}

// SelectPath resolves pathIDs against the tree, validates connectivity and
// builds a response from the resolved nodes. Unresolvable ids are tolerated;
// an empty id list is not.
func (v *PathValidator) SelectPath(ctx context.Context, tree ThoughtTree, pathIDs []string) (Response, error) {
	if len(pathIDs) == 0 {
		return Response{}, ErrEmptyPath
	}

	nodes := make([]ThoughtNode, 0, len(pathIDs))
	for _, id := range pathIDs {
		if n, ok := tree.Find(id); ok {
			nodes = append(nodes, n)
		}
	}
	if len(nodes) == 0 {
		return Response{}, ErrEmptyPath
	}

	// Adjacent nodes must be linked by parentage or at least share a
	// project. The project half of the rule admits loosely related nodes;
	// it is kept as documented.
	for i := 1; i < len(nodes); i++ {
		prev, cur := nodes[i-1], nodes[i]
		if cur.ParentID != prev.ID && cur.ProjectID != prev.ProjectID {
			return Response{}, DisconnectedPathError{FromID: prev.ID, ToID: cur.ID}
		}
	}

	v.markSelected(nodes)

	var b strings.Builder
	for i, n := range nodes {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(n.Content)
	}
	b.WriteString(fmt.Sprintf("\n\nConclusion: %s", nodes[len(nodes)-1].Content))

	return Response{
		ID:         uuid.NewString(),
		ProjectID:  nodes[0].ProjectID,
		Content:    b.String(),
		Confidence: pathConfidence(nodes),
		CreatedAt:  time.Now(),
	}, nil
}

// markSelected flips the selected flag on each resolved node. Persistence
// is best effort and never blocks or fails the selection.
func (v *PathValidator) markSelected(nodes []ThoughtNode) {
	if v.repo == nil {
		return
	}
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, id := range ids {
			if err := v.repo.MarkThoughtSelected(ctx, id); err != nil {
				v.logger.Printf("marking thought %s selected failed: %v", id, err)
			}
		}
	}()
}

// pathConfidence blends mean node confidence with the lexical coherence of
// the path.
func pathConfidence(nodes []ThoughtNode) float64 {
	var sum float64
	for _, n := range nodes {
		sum += n.Confidence
	}
	avg := sum / float64(len(nodes))

	coherence := 1.0
	if len(nodes) > 1 {
		var total float64
		for i := 1; i < len(nodes); i++ {
			total += lexicalOverlap(nodes[i-1].Content, nodes[i].Content)
		}
		coherence = total / float64(len(nodes)-1)
	}
	return clip01(0.7*avg + 0.3*coherence)
}

// lexicalOverlap is the Jaccard ratio of the two texts' token sets.
func lexicalOverlap(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	shared := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			shared++
		}
	}
	union := len(setA) + len(setB) - shared
	return float64(shared) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ".,:;!?()\"'")
		if tok != "" {
			out[tok] = struct{}{}
		}
	}
	return out
}
