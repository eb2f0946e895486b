package collab

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	core "github.com/mohammad-safakhou/hivemind/internal/agent/core"
	"github.com/mohammad-safakhou/hivemind/internal/agent/telemetry"
)

const (
	contributionWeightShare = 0.4
	agreementWeightShare    = 0.3
	activityWeightShare     = 0.3

	minVoteWeight = 0.1
	maxVoteWeight = 2.0

	// a participant's contribution term saturates at this score
	contributionSaturation = 5.0

	conflictShareThreshold = 0.30

	defaultVoteConfidence = 0.7

	agreementDecay = 0.7
)

// ConflictResolver decides what happens after a conflicted voting round.
type ConflictResolver interface {
	// Resolve reports whether the round should be re-run. round is
	// 1-based and counts rounds already completed for this decision.
	Resolve(ctx context.Context, session core.Session, round, maxRounds int) bool
}

// RevoteResolver re-runs conflicted rounds until the profile's round limit
// is exhausted.
type RevoteResolver struct{}

func (RevoteResolver) Resolve(_ context.Context, _ core.Session, round, maxRounds int) bool {
	return round < maxRounds
}

// consensusResult is the analysis of one round of votes.
type consensusResult struct {
	shares     map[string]float64
	level      float64
	conflicted bool
	winner     string
	confidence float64
}

// FacilitateDecision runs voting rounds over the given options until the
// round is not conflicted or the profile's round limit is hit. The final
// decision is recorded in the shared context either way; an unresolved
// conflict is additionally noted there.
func (m *Manager) FacilitateDecision(ctx context.Context, sessionID string, options []string, facilitatorID string, weighted bool) (core.Decision, error) {
	if len(options) == 0 {
		return core.Decision{}, fmt.Errorf("facilitate decision: no options")
	}
	st, ok := m.state(sessionID)
	if !ok {
		return core.Decision{}, core.ErrSessionNotFound
	}

	var (
		votes  []core.VotingRecord
		result consensusResult
		round  int
	)
	for {
		round++
		votes = m.collectVotes(ctx, st, options, weighted)
		var err error
		result, err = analyzeConsensus(votes, options)
		if err != nil {
			return core.Decision{}, err
		}
		if !result.conflicted {
			break
		}
		st.mu.Lock()
		session := copySession(st.session)
		maxRounds := st.profile.MaxRounds
		st.mu.Unlock()
		if !m.resolver.Resolve(ctx, session, round, maxRounds) {
			break
		}
		m.logger.Printf("session %s: round %d conflicted (level=%.2f), re-voting", sessionID, round, result.level)
	}

	now := time.Now().UTC()
	voters := make([]string, 0, len(votes))
	abstentions := 0
	for _, v := range votes {
		if v.Abstained {
			abstentions++
			continue
		}
		voters = append(voters, v.AgentID)
	}

	decision := core.Decision{
		ID:             uuid.NewString(),
		SessionID:      sessionID,
		Description:    result.winner,
		Rationale:      buildRationale(votes, result, options, round),
		ChosenOption:   result.winner,
		Confidence:     result.confidence,
		ConsensusLevel: result.level,
		Conflicted:     result.conflicted,
		Voters:         voters,
		DecidedAt:      now,
	}

	st.mu.Lock()
	st.session.Shared.Decisions = append(st.session.Shared.Decisions, decision)
	if result.conflicted {
		st.session.Shared.Conflicts = append(st.session.Shared.Conflicts,
			fmt.Sprintf("unresolved split over %q after %d round(s)", strings.Join(options, " vs "), round))
	}
	st.session.SyncPoints = append(st.session.SyncPoints, core.SyncPoint{Name: "decision", At: now})
	st.rounds += round
	m.applyAgreementLocked(st, votes, result.winner)
	m.saveLocked(ctx, st)
	st.mu.Unlock()

	m.telemetry.RecordDecision(ctx, telemetry.DecisionEvent{
		SessionID:      sessionID,
		Options:        len(options),
		Votes:          len(voters),
		Abstentions:    abstentions,
		ConsensusLevel: result.level,
		Conflict:       result.conflicted,
		Weighted:       weighted,
	})
	m.logger.Printf("session %s: decided %q (level=%.2f conflict=%v facilitator=%s)",
		sessionID, result.winner, result.level, result.conflicted, facilitatorID)
	return decision, nil
}

// collectVotes asks every active participant for a vote in parallel. Inactive
// participants are not prompted. A vote that errors, times out or cannot be
// parsed becomes an abstention.
func (m *Manager) collectVotes(ctx context.Context, st *sessionState, options []string, weighted bool) []core.VotingRecord {
	st.mu.Lock()
	participants := make([]core.ParticipantState, 0, len(st.participants))
	for _, p := range st.participants {
		if p.Status != core.ParticipantActive {
			continue
		}
		participants = append(participants, *p)
	}
	sessionID := st.session.ID
	st.mu.Unlock()

	voteCtx := ctx
	if m.cfg.VoteTimeout > 0 {
		var cancel context.CancelFunc
		voteCtx, cancel = context.WithTimeout(ctx, m.cfg.VoteTimeout)
		defer cancel()
	}

	votes := make([]core.VotingRecord, len(participants))
	var wg sync.WaitGroup
	for i, p := range participants {
		wg.Add(1)
		go func(i int, p core.ParticipantState) {
			defer wg.Done()
			votes[i] = m.castVote(voteCtx, sessionID, p, options, weighted)
		}(i, p)
	}
	wg.Wait()
	return votes
}

func (m *Manager) castVote(ctx context.Context, sessionID string, p core.ParticipantState, options []string, weighted bool) core.VotingRecord {
	record := core.VotingRecord{AgentID: p.AgentID, CastAt: time.Now().UTC()}

	prompt := fmt.Sprintf(
		"A decision is needed in your collaboration session. Pick exactly one option and state it verbatim, then give your confidence as a number between 0 and 1 on a line like \"confidence: 0.8\".\nOptions:\n- %s",
		strings.Join(options, "\n- "))
	answer, err := m.ai.Respond(ctx, core.Agent{ID: p.AgentID}, prompt, map[string]interface{}{
		"session_id": sessionID,
		"role":       string(p.Role),
	})
	if err != nil {
		m.logger.Printf("session %s: %s abstained: %v", sessionID, p.AgentID, fmt.Errorf("%w: %v", core.ErrVoteTimeout, err))
		record.Abstained = true
		return record
	}

	option, ok := chooseOption(answer, options)
	if !ok {
		m.logger.Printf("session %s: %s abstained: answer matched no option", sessionID, p.AgentID)
		record.Abstained = true
		return record
	}

	record.Option = option
	record.Confidence = parseConfidence(answer)
	if weighted {
		record.Weight = voteWeight(p, m.cfg.InactivityWindow)
	} else {
		record.Weight = 1.0
	}
	return record
}

// voteWeight blends contribution, agreement history and recent activity
// into a multiplier clipped to [0.1, 2.0].
func voteWeight(p core.ParticipantState, inactivityWindow time.Duration) float64 {
	contribution := p.ContributionScore / contributionSaturation
	if contribution > 1 {
		contribution = 1
	}

	activity := 0.0
	if inactivityWindow > 0 {
		elapsed := time.Since(p.LastActivity)
		activity = clamp01(1 - elapsed.Seconds()/inactivityWindow.Seconds())
	}

	w := contributionWeightShare*contribution +
		agreementWeightShare*clamp01(p.AgreementScore) +
		activityWeightShare*activity
	if w < minVoteWeight {
		return minVoteWeight
	}
	if w > maxVoteWeight {
		return maxVoteWeight
	}
	return w
}

// analyzeConsensus computes per-option weight shares, the consensus level
// (the largest share), the conflict flag and the winning option.
func analyzeConsensus(votes []core.VotingRecord, options []string) (consensusResult, error) {
	weightByOption := make(map[string]float64, len(options))
	scoreByOption := make(map[string]float64, len(options))
	var totalWeight float64
	cast := 0
	for _, v := range votes {
		if v.Abstained {
			continue
		}
		cast++
		weightByOption[v.Option] += v.Weight
		scoreByOption[v.Option] += v.Weight * v.Confidence
		totalWeight += v.Weight
	}
	if cast == 0 || totalWeight == 0 {
		return consensusResult{}, fmt.Errorf("decision round: %w", core.ErrVoteTimeout)
	}

	result := consensusResult{shares: make(map[string]float64, len(weightByOption))}
	contested := 0
	for option, w := range weightByOption {
		share := w / totalWeight
		result.shares[option] = share
		if share > result.level {
			result.level = share
		}
		if share > conflictShareThreshold {
			contested++
		}
	}
	result.conflicted = contested > 1

	// winner maximizes weighted mean confidence; option order breaks ties
	best := -1.0
	for _, option := range options {
		w := weightByOption[option]
		if w == 0 {
			continue
		}
		mean := scoreByOption[option] / w
		if mean > best {
			best = mean
			result.winner = option
			result.confidence = mean
		}
	}
	return result, nil
}

// buildRationale renders the final round's tally: per-option vote counts and
// weight shares in declaration order, then the consensus level and the number
// of rounds it took.
func buildRationale(votes []core.VotingRecord, result consensusResult, options []string, rounds int) string {
	countByOption := make(map[string]int, len(options))
	for _, v := range votes {
		if v.Abstained {
			continue
		}
		countByOption[v.Option]++
	}
	parts := make([]string, 0, len(options))
	for _, option := range options {
		count := countByOption[option]
		noun := "votes"
		if count == 1 {
			noun = "vote"
		}
		parts = append(parts, fmt.Sprintf("%s: %d %s (%.0f%%)", option, count, noun, result.shares[option]*100))
	}
	tail := fmt.Sprintf("consensus %.0f%%", result.level*100)
	if rounds > 1 {
		tail += fmt.Sprintf(" after %d rounds", rounds)
	}
	return strings.Join(parts, ", ") + "; " + tail
}

// applyAgreementLocked updates each voter's agreement history after a
// decision. Voting with the winner pulls the score toward 1, against it
// toward 0; abstainers are untouched.
func (m *Manager) applyAgreementLocked(st *sessionState, votes []core.VotingRecord, winner string) {
	now := time.Now().UTC()
	for _, v := range votes {
		if v.Abstained {
			continue
		}
		p, ok := st.participants[v.AgentID]
		if !ok {
			continue
		}
		target := 0.0
		if v.Option == winner {
			target = 1.0
		}
		p.AgreementScore = agreementDecay*p.AgreementScore + (1-agreementDecay)*target
		p.LastActivity = now
	}
}

var confidencePattern = regexp.MustCompile(`(?i)confidence[:= ]+([01](?:\.[0-9]+)?)`)

func parseConfidence(answer string) float64 {
	matches := confidencePattern.FindStringSubmatch(answer)
	if len(matches) != 2 {
		return defaultVoteConfidence
	}
	v, err := strconv.ParseFloat(matches[1], 64)
	if err != nil || v < 0 || v > 1 {
		return defaultVoteConfidence
	}
	return v
}

// chooseOption matches the answer to an option by case-insensitive
// containment, preferring the earliest declared option.
func chooseOption(answer string, options []string) (string, bool) {
	lower := strings.ToLower(answer)
	for _, option := range options {
		if strings.Contains(lower, strings.ToLower(option)) {
			return option, true
		}
	}
	return "", false
}
