package collab

import (
	"strings"

	core "github.com/mohammad-safakhou/hivemind/internal/agent/core"
)

// QualityScorer rates broadcast content in [0,1] against the knowledge a
// session has already accepted.
type QualityScorer interface {
	Score(content string, existing []core.KnowledgeItem) float64
}

// RelevanceScorer rates broadcast content in [0,1] against the session's
// shared context and recent knowledge.
type RelevanceScorer interface {
	Score(content string, sessionType core.SessionType, shared core.SharedContext, recent []core.KnowledgeItem) float64
}

// acceptance thresholds for the knowledge gate
const (
	qualityThreshold   = 0.6
	relevanceThreshold = 0.5
	recentWindow       = 5
)

// HeuristicQuality scores content by length band, structure, uniqueness
// against existing knowledge, and an insight/question bonus.
type HeuristicQuality struct{}

func (HeuristicQuality) Score(content string, existing []core.KnowledgeItem) float64 {
	score := 0.3

	n := len([]rune(content))
	if n >= 50 && n <= 1000 {
		score += 0.2
	} else {
		score -= 0.1
	}

	if strings.ContainsAny(content, "\n") || strings.Contains(content, "- ") || strings.Contains(content, ": ") {
		score += 0.1
	}

	var maxOverlap float64
	for _, item := range existing {
		if o := jaccard(content, item.Content); o > maxOverlap {
			maxOverlap = o
		}
	}
	score += 0.3 * (1 - maxOverlap)

	lower := strings.ToLower(content)
	if strings.Contains(lower, "because") || strings.Contains(lower, "therefore") ||
		strings.Contains(lower, "insight") || strings.Contains(lower, "suggest") ||
		strings.Contains(content, "?") {
		score += 0.1
	}

	return clamp01(score)
}

// KeywordRelevance combines shared-context overlap (0.4), session-type
// keyword hits (0.4) and overlap with the most recently shared items (0.2).
type KeywordRelevance struct{}

var sessionKeywords = map[core.SessionType][]string{
	core.SessionBrainstorming:  {"idea", "alternative", "concept", "imagine", "approach"},
	core.SessionDecisionMaking: {"option", "decide", "criteria", "tradeoff", "risk"},
	core.SessionReview:         {"issue", "improve", "quality", "correct", "standard"},
	core.SessionPlanning:       {"step", "milestone", "dependency", "timeline", "resource"},
	core.SessionProblemSolving: {"cause", "solution", "hypothesis", "test", "fix"},
}

func (KeywordRelevance) Score(content string, sessionType core.SessionType, shared core.SharedContext, recent []core.KnowledgeItem) float64 {
	var sharedText strings.Builder
	for _, s := range shared.Understanding {
		sharedText.WriteString(s)
		sharedText.WriteString(" ")
	}
	for _, d := range shared.Decisions {
		sharedText.WriteString(d.Description)
		sharedText.WriteString(" ")
	}
	for _, q := range shared.OpenQuestions {
		sharedText.WriteString(q)
		sharedText.WriteString(" ")
	}
	sharedScore := containment(content, sharedText.String())

	var hits int
	lower := strings.ToLower(content)
	for _, kw := range sessionKeywords[sessionType] {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	// two keyword hits saturate the term
	keywordScore := float64(hits) / 2
	if keywordScore > 1 {
		keywordScore = 1
	}

	var recentText strings.Builder
	start := len(recent) - recentWindow
	if start < 0 {
		start = 0
	}
	for _, item := range recent[start:] {
		recentText.WriteString(item.Content)
		recentText.WriteString(" ")
	}
	recentScore := containment(content, recentText.String())

	return clamp01(0.4*sharedScore + 0.4*keywordScore + 0.2*recentScore)
}

// containment is the fraction of content tokens present in the reference
// text.
func containment(content, reference string) float64 {
	contentTokens := tokens(content)
	if len(contentTokens) == 0 {
		return 0
	}
	refSet := make(map[string]struct{})
	for _, tok := range tokens(reference) {
		refSet[tok] = struct{}{}
	}
	if len(refSet) == 0 {
		return 0
	}
	matched := 0
	for _, tok := range contentTokens {
		if _, ok := refSet[tok]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(contentTokens))
}

// jaccard is the token-set overlap ratio of two texts.
func jaccard(a, b string) float64 {
	setA := make(map[string]struct{})
	for _, tok := range tokens(a) {
		setA[tok] = struct{}{}
	}
	setB := make(map[string]struct{})
	for _, tok := range tokens(b) {
		setB[tok] = struct{}{}
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	shared := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(setA)+len(setB)-shared)
}

func tokens(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,:;!?()\"'-")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
