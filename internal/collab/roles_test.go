package collab

import (
	"fmt"
	"testing"

	core "github.com/mohammad-safakhou/hivemind/internal/agent/core"
)

func withRoles(roles ...core.ParticipantRole) map[string]*core.ParticipantState {
	out := make(map[string]*core.ParticipantState, len(roles))
	for i, r := range roles {
		id := fmt.Sprintf("a%d", i+1)
		out[id] = &core.ParticipantState{AgentID: id, Role: r}
	}
	return out
}

func TestAssignRoleFirstJoinersAreContributors(t *testing.T) {
	if r := assignRole(core.SessionProblemSolving, withRoles()); r != core.RoleContributor {
		t.Fatalf("first joiner = %s, want contributor", r)
	}
	if r := assignRole(core.SessionProblemSolving, withRoles(core.RoleContributor, core.RoleContributor)); r != core.RoleContributor {
		t.Fatalf("third joiner = %s, want contributor", r)
	}
}

func TestAssignRoleFacilitatorOnceAboveThree(t *testing.T) {
	three := withRoles(core.RoleContributor, core.RoleContributor, core.RoleContributor)
	if r := assignRole(core.SessionProblemSolving, three); r != core.RoleFacilitator {
		t.Fatalf("fourth joiner = %s, want facilitator", r)
	}
	withFacilitator := withRoles(core.RoleContributor, core.RoleContributor, core.RoleContributor, core.RoleFacilitator)
	if r := assignRole(core.SessionProblemSolving, withFacilitator); r == core.RoleFacilitator {
		t.Fatalf("second facilitator assigned")
	}
}

func TestAssignRoleCriticsForReviewSessions(t *testing.T) {
	if r := assignRole(core.SessionReview, withRoles()); r != core.RoleCritic {
		t.Fatalf("review session first joiner = %s, want critic", r)
	}
	twoCritics := withRoles(core.RoleCritic, core.RoleCritic, core.RoleContributor)
	if r := assignRole(core.SessionReview, twoCritics); r == core.RoleCritic {
		t.Fatalf("third critic assigned")
	}
	if r := assignRole(core.SessionDecisionMaking, withRoles(core.RoleFacilitator, core.RoleContributor, core.RoleContributor)); r != core.RoleCritic {
		t.Fatalf("decision session with no critic = %s, want critic", r)
	}
}

func TestAssignRoleSynthesizerAboveFour(t *testing.T) {
	four := withRoles(core.RoleContributor, core.RoleContributor, core.RoleContributor, core.RoleFacilitator)
	if r := assignRole(core.SessionProblemSolving, four); r != core.RoleSessionSynth {
		t.Fatalf("fifth joiner = %s, want synthesizer", r)
	}
}

func TestAssignRoleIdeaGeneratorsForBrainstorming(t *testing.T) {
	two := withRoles(core.RoleContributor, core.RoleContributor)
	if r := assignRole(core.SessionBrainstorming, two); r != core.RoleIdeaGenerator {
		t.Fatalf("brainstorming joiner = %s, want idea generator", r)
	}
	// half the session already generates ideas
	half := withRoles(core.RoleIdeaGenerator, core.RoleContributor)
	if r := assignRole(core.SessionBrainstorming, half); r == core.RoleIdeaGenerator {
		t.Fatalf("idea generators exceeded half the session")
	}
}
