package collab

import (
	"time"

	"github.com/mohammad-safakhou/hivemind/config"
	core "github.com/mohammad-safakhou/hivemind/internal/agent/core"
)

// Profile is the tuning applied to a session based on its type.
type Profile struct {
	Type                  core.SessionType
	MinConsensus          float64
	MaxRounds             int
	ShareInterval         time.Duration
	QualityWeightedVoting bool
}

func defaultProfiles() map[core.SessionType]Profile {
	return map[core.SessionType]Profile{
		core.SessionBrainstorming: {
			Type:         core.SessionBrainstorming,
			MinConsensus: 0.60, MaxRounds: 5, ShareInterval: 30 * time.Second,
			QualityWeightedVoting: false,
		},
		core.SessionDecisionMaking: {
			Type:         core.SessionDecisionMaking,
			MinConsensus: 0.80, MaxRounds: 3, ShareInterval: 60 * time.Second,
			QualityWeightedVoting: true,
		},
		core.SessionReview: {
			Type:         core.SessionReview,
			MinConsensus: 0.70, MaxRounds: 4, ShareInterval: 45 * time.Second,
			QualityWeightedVoting: true,
		},
		core.SessionPlanning: {
			Type:         core.SessionPlanning,
			MinConsensus: 0.75, MaxRounds: 6, ShareInterval: 90 * time.Second,
			QualityWeightedVoting: true,
		},
		core.SessionProblemSolving: {
			Type:         core.SessionProblemSolving,
			MinConsensus: 0.70, MaxRounds: 8, ShareInterval: 45 * time.Second,
			QualityWeightedVoting: false,
		},
	}
}

// ProfileFor returns the profile for a session type with any configured
// overrides applied. Unknown types fall back to problem solving.
func ProfileFor(cfg config.CollaborationConfig, sessionType core.SessionType) Profile {
	profiles := defaultProfiles()
	p, ok := profiles[sessionType]
	if !ok {
		p = profiles[core.SessionProblemSolving]
		p.Type = sessionType
	}
	override, ok := cfg.Profiles[string(sessionType)]
	if !ok {
		return p
	}
	if override.MinConsensus > 0 {
		p.MinConsensus = override.MinConsensus
	}
	if override.MaxRounds > 0 {
		p.MaxRounds = override.MaxRounds
	}
	if override.ShareInterval > 0 {
		p.ShareInterval = override.ShareInterval
	}
	p.QualityWeightedVoting = override.QualityWeightedVoting
	return p
}
