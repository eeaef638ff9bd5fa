package amendment

import (
	"testing"

	"github.com/google/uuid"

	"github.com/neurotech-brt/agentium/pkg/ethos"
)

func TestAmendment_IsTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusProposed, false},
		{StatusDeliberating, false},
		{StatusVoting, false},
		{StatusRatified, true},
		{StatusRejected, true},
		{StatusWithdrawn, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			a := Amendment{Status: tt.status}
			if got := a.IsTerminal(); got != tt.want {
				t.Errorf("IsTerminal() for %s = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestAmendment_Tally(t *testing.T) {
	v1, v2, v3 := uuid.New(), uuid.New(), uuid.New()
	a := Amendment{Votes: map[uuid.UUID]Vote{v1: VoteFor, v2: VoteFor, v3: VoteAgainst}}
	a.Tally()
	if a.VotesFor != 2 || a.VotesAgainst != 1 || a.VotesAbstain != 0 {
		t.Errorf("Tally() = for=%d against=%d abstain=%d, want 2/1/0", a.VotesFor, a.VotesAgainst, a.VotesAbstain)
	}
}

func TestAmendment_Tally_VoteReplacementCancelsPrevious(t *testing.T) {
	voter := uuid.New()
	a := Amendment{Votes: map[uuid.UUID]Vote{voter: VoteAgainst}}
	a.Tally()
	if a.VotesAgainst != 1 {
		t.Fatalf("expected initial AGAINST=1, got %d", a.VotesAgainst)
	}

	// Replacement: same voter flips to FOR. The map naturally holds only the
	// latest ballot, so tally must reflect FOR=1 AGAINST=0, not both counted.
	a.Votes[voter] = VoteFor
	a.Tally()
	if a.VotesFor != 1 || a.VotesAgainst != 0 {
		t.Errorf("after replacement: for=%d against=%d, want 1/0", a.VotesFor, a.VotesAgainst)
	}
}

func TestMeetsQuorumAndSupermajority_QuorumNotMet(t *testing.T) {
	a := Amendment{RequiredVotes: 3, SupermajorityPct: 66, VotesFor: 2, VotesAgainst: 0}
	if a.MeetsQuorumAndSupermajority() {
		t.Error("expected false: votes_for below required_votes")
	}
}

func TestMeetsQuorumAndSupermajority_SupermajorityNotMet(t *testing.T) {
	a := Amendment{RequiredVotes: 2, SupermajorityPct: 66, VotesFor: 2, VotesAgainst: 2}
	if a.MeetsQuorumAndSupermajority() {
		t.Error("expected false: for/(for+against)=50% < 66%")
	}
}

func TestMeetsQuorumAndSupermajority_NoVotesCast(t *testing.T) {
	a := Amendment{RequiredVotes: 0, SupermajorityPct: 66}
	if a.MeetsQuorumAndSupermajority() {
		t.Error("expected false when no decisive votes were cast")
	}
}

func TestMeetsQuorumAndSupermajority_Passes(t *testing.T) {
	// Scenario S4 from spec.md: 2 FOR, 0 AGAINST, 3 eligible, quorum 60% →
	// required_votes = ceil(0.6*3) = 2.
	a := Amendment{RequiredVotes: requiredVotes(3, DefaultQuorumPct), SupermajorityPct: DefaultSupermajorityPct, VotesFor: 2, VotesAgainst: 0}
	if a.RequiredVotes != 2 {
		t.Fatalf("requiredVotes(3, 60) = %d, want 2", a.RequiredVotes)
	}
	if !a.MeetsQuorumAndSupermajority() {
		t.Error("expected RATIFIED: quorum and supermajority both trivially met")
	}
}

func TestRequiredVotes_NoEligible(t *testing.T) {
	if got := requiredVotes(0, DefaultQuorumPct); got != 1 {
		t.Errorf("requiredVotes(0, ...) = %d, want 1", got)
	}
}

func TestRequiredVotes_RoundsUp(t *testing.T) {
	if got := requiredVotes(5, 60); got != 3 {
		t.Errorf("requiredVotes(5, 60) = %d, want 3 (ceil(3.0))", got)
	}
	if got := requiredVotes(4, 60); got != 3 {
		t.Errorf("requiredVotes(4, 60) = %d, want 3 (ceil(2.4))", got)
	}
}

func TestMergeArticles_ProposedOverridesCurrent(t *testing.T) {
	current := map[int]ethos.Article{1: {Title: "Old Title", Content: "old"}}
	proposed := map[int]ethos.Article{1: {Title: "New Title", Content: "new"}, 2: {Title: "Added", Content: "added"}}
	merged := mergeArticles(current, proposed)
	if merged[1].Title != "New Title" {
		t.Errorf("merged[1].Title = %q, want overridden value", merged[1].Title)
	}
	if _, ok := merged[2]; !ok {
		t.Error("expected new article 2 to be present in merge")
	}
}

func TestCoalesceStrings(t *testing.T) {
	current := []string{"a", "b"}
	if got := coalesceStrings(nil, current); len(got) != 2 {
		t.Errorf("coalesceStrings(nil, current) should fall back to current, got %v", got)
	}
	proposed := []string{"c"}
	if got := coalesceStrings(proposed, current); len(got) != 1 || got[0] != "c" {
		t.Errorf("coalesceStrings(proposed, current) should prefer proposed, got %v", got)
	}
}

func TestContainsUUID(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	ids := []uuid.UUID{a}
	if !containsUUID(ids, a) {
		t.Error("expected containsUUID to find a")
	}
	if containsUUID(ids, b) {
		t.Error("expected containsUUID to not find b")
	}
}
