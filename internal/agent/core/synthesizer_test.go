package core

import (
	"fmt"
	"math"
	"strings"
	"testing"
)

func TestSynthesizeEmptyTreeFails(t *testing.T) {
	s := NewSynthesizer(nil)
	if _, err := s.Synthesize(ThoughtTree{}, SharedContext{}, 0, false); err != ErrSynthesisFailure {
		t.Fatalf("expected ErrSynthesisFailure, got %v", err)
	}
}

func TestSynthesizeLeadsWithHighestConfidence(t *testing.T) {
	s := NewSynthesizer(nil)
	tree := ThoughtTree{
		Root: ThoughtNode{ID: "r", Content: "weak framing", Confidence: 0.2},
		Branches: []ThoughtNode{
			{ID: "b1", Content: "strong answer", Confidence: 0.9},
			{ID: "b2", Content: "middling answer", Confidence: 0.5},
		},
	}
	resp, err := s.Synthesize(tree, SharedContext{}, 0, false)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !strings.HasPrefix(resp.Content, "strong answer") {
		t.Fatalf("primary thought not first:\n%s", resp.Content)
	}
}

func TestSynthesizeConfidenceBonuses(t *testing.T) {
	s := NewSynthesizer(nil)
	tree := ThoughtTree{Root: ThoughtNode{ID: "r", Content: "answer", Confidence: 0.5}}

	base, err := s.Synthesize(tree, SharedContext{}, 0, false)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if math.Abs(base.Confidence-0.5) > 1e-9 {
		t.Fatalf("base confidence = %.4f, want 0.5", base.Confidence)
	}

	withConsensus, _ := s.Synthesize(tree, SharedContext{}, 0, true)
	if math.Abs(withConsensus.Confidence-0.6) > 1e-9 {
		t.Fatalf("consensus bonus missing: %.4f, want 0.6", withConsensus.Confidence)
	}

	// three of six participants adds half the participation cap
	withParticipants, _ := s.Synthesize(tree, SharedContext{}, 3, false)
	if math.Abs(withParticipants.Confidence-0.55) > 1e-9 {
		t.Fatalf("participation bonus = %.4f, want 0.55", withParticipants.Confidence)
	}

	// the participation bonus caps at 0.1 regardless of headcount
	crowded, _ := s.Synthesize(tree, SharedContext{}, 60, false)
	if math.Abs(crowded.Confidence-0.6) > 1e-9 {
		t.Fatalf("participation bonus uncapped: %.4f, want 0.6", crowded.Confidence)
	}
}

func TestSynthesizeConfidenceNeverExceedsOne(t *testing.T) {
	s := NewSynthesizer(nil)
	tree := ThoughtTree{Root: ThoughtNode{ID: "r", Content: "answer", Confidence: 0.99}}
	resp, err := s.Synthesize(tree, SharedContext{}, 12, true)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if resp.Confidence > 1 {
		t.Fatalf("confidence %.4f exceeds 1.0", resp.Confidence)
	}
}

func TestSynthesizeCapsThoughtsAndAlternatives(t *testing.T) {
	s := NewSynthesizer(nil)
	tree := ThoughtTree{Root: ThoughtNode{ID: "r", Content: "thought 0", Confidence: 0.99}}
	for i := 1; i < 10; i++ {
		tree.Branches = append(tree.Branches, ThoughtNode{
			ID:         fmt.Sprintf("b%d", i),
			Content:    fmt.Sprintf("thought %d", i),
			Confidence: 0.9 - float64(i)*0.05,
			Reasoning:  "solid grounding",
		})
	}
	resp, err := s.Synthesize(tree, SharedContext{}, 0, false)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(resp.Alternatives) != 3 {
		t.Fatalf("alternatives = %d, want 3", len(resp.Alternatives))
	}
	// primary plus at most three supporting thoughts
	if strings.Contains(resp.Content, "thought 4") {
		t.Fatalf("more than three supporting thoughts included:\n%s", resp.Content)
	}
	for _, alt := range resp.Alternatives {
		if len(alt.Strengths) == 0 {
			t.Fatalf("reasoning not carried into strengths: %+v", alt)
		}
	}
}

func TestSynthesizeSkipsEmptyThoughts(t *testing.T) {
	s := NewSynthesizer(nil)
	tree := ThoughtTree{
		Root:     ThoughtNode{ID: "r", Content: "   ", Confidence: 0.9},
		Branches: []ThoughtNode{{ID: "b", Content: "real content", Confidence: 0.4}},
	}
	resp, err := s.Synthesize(tree, SharedContext{}, 0, false)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !strings.HasPrefix(resp.Content, "real content") {
		t.Fatalf("blank thought should be skipped:\n%s", resp.Content)
	}
}

func TestSynthesizeIncludesCollaborativeInsights(t *testing.T) {
	s := NewSynthesizer(nil)
	tree := ThoughtTree{Root: ThoughtNode{ID: "r", Content: "answer", Confidence: 0.8}}
	shared := SharedContext{
		Understanding: []string{"the cache invalidation is the real issue", "latency spikes track deploys", "third statement", "fourth statement"},
		Decisions:     []Decision{{Description: "roll back the deploy"}},
	}
	resp, err := s.Synthesize(tree, shared, 2, false)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !strings.Contains(resp.Content, "the cache invalidation is the real issue") {
		t.Fatalf("understanding not included:\n%s", resp.Content)
	}
	// capped at three insights, so the decision never makes it in
	if strings.Contains(resp.Content, "fourth statement") || strings.Contains(resp.Content, "Agreed:") {
		t.Fatalf("insight cap not applied:\n%s", resp.Content)
	}

	fewer := SharedContext{
		Understanding: []string{"one statement"},
		Decisions:     []Decision{{Description: "roll back the deploy"}},
	}
	resp2, _ := s.Synthesize(tree, fewer, 2, false)
	if !strings.Contains(resp2.Content, "Agreed: roll back the deploy") {
		t.Fatalf("agreed decision missing:\n%s", resp2.Content)
	}
}
