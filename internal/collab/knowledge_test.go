package collab

import (
	"strings"
	"testing"

	core "github.com/mohammad-safakhou/hivemind/internal/agent/core"
)

func TestHeuristicQualityRange(t *testing.T) {
	scorer := HeuristicQuality{}
	samples := []string{
		"",
		"ok",
		"The root cause is a stale cache entry: requests therefore read old data.\n- flush on write\n- add a version key",
		strings.Repeat("padding ", 400),
	}
	for _, s := range samples {
		v := scorer.Score(s, nil)
		if v < 0 || v > 1 {
			t.Fatalf("score %.4f out of range for %q", v, s)
		}
	}
}

func TestHeuristicQualityPrefersStructuredNovelContent(t *testing.T) {
	scorer := HeuristicQuality{}
	rich := "The failure happens because the retry loop never resets its backoff.\n- cap the backoff\n- reset on success"
	poor := "bad"
	if scorer.Score(rich, nil) <= scorer.Score(poor, nil) {
		t.Fatalf("structured reasoned content should outscore a bare fragment")
	}
}

func TestHeuristicQualityPenalizesDuplicates(t *testing.T) {
	scorer := HeuristicQuality{}
	content := "The retry loop never resets its backoff, therefore latency keeps growing over time."
	fresh := scorer.Score(content, nil)
	repeated := scorer.Score(content, []core.KnowledgeItem{{Content: content}})
	if repeated >= fresh {
		t.Fatalf("duplicate content should score lower: fresh=%.4f repeated=%.4f", fresh, repeated)
	}
}

func TestKeywordRelevanceSessionKeywords(t *testing.T) {
	scorer := KeywordRelevance{}
	shared := core.SharedContext{}
	onTopic := scorer.Score("the likely cause is a bad hypothesis, we should test the fix", core.SessionProblemSolving, shared, nil)
	offTopic := scorer.Score("lovely weather today", core.SessionProblemSolving, shared, nil)
	if onTopic <= offTopic {
		t.Fatalf("session keywords should raise relevance: on=%.4f off=%.4f", onTopic, offTopic)
	}
}

func TestKeywordRelevanceUsesSharedContext(t *testing.T) {
	scorer := KeywordRelevance{}
	shared := core.SharedContext{Understanding: []string{"the payment service drops webhook retries"}}
	related := scorer.Score("webhook retries from the payment service need a dead letter queue", core.SessionPlanning, shared, nil)
	unrelated := scorer.Score("unrelated musings entirely elsewhere", core.SessionPlanning, shared, nil)
	if related <= unrelated {
		t.Fatalf("shared-context overlap should raise relevance: related=%.4f unrelated=%.4f", related, unrelated)
	}
}

func TestContainmentAndJaccard(t *testing.T) {
	if v := containment("alpha beta", "alpha beta gamma"); v != 1.0 {
		t.Fatalf("full containment = %.4f, want 1.0", v)
	}
	if v := containment("", "alpha"); v != 0 {
		t.Fatalf("empty content containment = %.4f, want 0", v)
	}
	if v := jaccard("alpha beta", "alpha beta"); v != 1.0 {
		t.Fatalf("identical jaccard = %.4f, want 1.0", v)
	}
	if v := jaccard("alpha", "beta"); v != 0 {
		t.Fatalf("disjoint jaccard = %.4f, want 0", v)
	}
}
