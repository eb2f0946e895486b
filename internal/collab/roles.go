package collab

import (
	core "github.com/mohammad-safakhou/hivemind/internal/agent/core"
)

// assignRole runs the needs analysis for a participant joining a session.
// The counts describe the session as it is at join time, including the
// joining participant.
func assignRole(sessionType core.SessionType, participants map[string]*core.ParticipantState) core.ParticipantRole {
	total := len(participants) + 1
	counts := make(map[core.ParticipantRole]int, len(participants))
	for _, p := range participants {
		counts[p.Role]++
	}

	if total > 3 && counts[core.RoleFacilitator] == 0 {
		return core.RoleFacilitator
	}
	if (sessionType == core.SessionReview || sessionType == core.SessionDecisionMaking) && counts[core.RoleCritic] < 2 {
		return core.RoleCritic
	}
	if total > 4 && counts[core.RoleSessionSynth] == 0 {
		return core.RoleSessionSynth
	}
	if sessionType == core.SessionBrainstorming && counts[core.RoleIdeaGenerator] < total/2 {
		return core.RoleIdeaGenerator
	}
	return core.RoleContributor
}
