package provider

import (
	"context"
	"fmt"
	"hash/fnv"

	core "github.com/mohammad-safakhou/hivemind/internal/agent/core"
)

// DeterministicClient is an offline AIService for development and tests. Outputs
// depend only on the inputs, so repeated runs produce identical trees and
// votes.
type DeterministicClient struct{}

func NewDeterministic() *DeterministicClient { return &DeterministicClient{} }

func (d *DeterministicClient) Respond(_ context.Context, agent core.Agent, query string, _ map[string]interface{}) (string, error) {
	h := stableHash(agent.ID + "|" + query)
	return fmt.Sprintf("[%s/%s] deterministic take %d on: %s", agent.Name, agent.Role, h%100, query), nil
}

func (d *DeterministicClient) Evaluate(_ context.Context, thought core.ThoughtNode, _ map[string]interface{}) (float64, error) {
	h := stableHash(thought.Content)
	// spread scores across [0.3, 0.9] so rankings stay meaningful
	return 0.3 + float64(h%61)/100.0, nil
}

func stableHash(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
