// Package amendment implements the Amendment State Machine (§4.6):
// constitutional change proposed by COUNCIL/HEAD, gathered to sponsor
// threshold, debated for a fixed window, then settled by a quorum-and-
// supermajority vote.
package amendment

import (
	"time"

	"github.com/google/uuid"

	"github.com/neurotech-brt/agentium/pkg/ethos"
)

// Status is an amendment's position in the §4.6 state machine.
type Status string

const (
	StatusProposed     Status = "PROPOSED"
	StatusDeliberating Status = "DELIBERATING"
	StatusVoting       Status = "VOTING"
	StatusRatified     Status = "RATIFIED"
	StatusRejected     Status = "REJECTED"
	StatusWithdrawn    Status = "WITHDRAWN"
)

// Vote is a single voter's ballot.
type Vote string

const (
	VoteFor     Vote = "FOR"
	VoteAgainst Vote = "AGAINST"
	VoteAbstain Vote = "ABSTAIN"
)

// RequiredSponsors is the sponsor count that advances PROPOSED to
// DELIBERATING (§4.6, matching the source's REQUIRED_SPONSORS).
const RequiredSponsors = 2

// DefaultDebateWindow is how long an amendment sits in DELIBERATING before
// the timer advances it to VOTING, absent a HEAD override.
const DefaultDebateWindow = 48 * time.Hour

// DefaultVotingWindow is how long VOTING stays open before the tally is
// final.
const DefaultVotingWindow = 48 * time.Hour

// DefaultQuorumPct and DefaultSupermajorityPct are the §4.6 defaults:
// votes_for must clear quorum of the eligible pool, and clear supermajority
// of the votes actually cast.
const (
	DefaultQuorumPct        = 60
	DefaultSupermajorityPct = 66
)

// DiscussionEntry is one message on an amendment's debate thread.
type DiscussionEntry struct {
	AgentRef  *uuid.UUID `json:"agent_ref,omitempty"`
	Author    string     `json:"author"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"created_at"`
}

// Amendment is the persistent record described in §3.
type Amendment struct {
	ID           uuid.UUID
	Title        string
	Rationale    string
	Status       Status
	ProposerRef  uuid.UUID
	SponsorRefs  []uuid.UUID
	DebateThread []DiscussionEntry

	// ProposedArticles/Prohibitions/SovereignPreferences carry the actual
	// constitutional delta; DiffDocument is the rendered human-readable
	// unified-diff view of the same delta (pkg/amendment/diff.go).
	ProposedArticles             map[int]ethos.Article
	ProposedProhibitions         []string
	ProposedSovereignPreferences []string
	DiffDocument                 string

	EligibleVoters   []uuid.UUID
	RequiredVotes    int
	SupermajorityPct int
	Votes            map[uuid.UUID]Vote // latest vote per voter; replacement cancels-then-applies
	VotesFor         int
	VotesAgainst     int
	VotesAbstain     int

	DebateWindow            time.Duration
	VotingWindow            time.Duration
	StartedAt               *time.Time
	EndsAt                  *time.Time
	RatifiedConstitutionRef *uuid.UUID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsTerminal reports whether the amendment has left the active pipeline.
func (a Amendment) IsTerminal() bool {
	switch a.Status {
	case StatusRatified, StatusRejected, StatusWithdrawn:
		return true
	default:
		return false
	}
}

// Tally recomputes the for/against/abstain counters from the votes map —
// the single source of truth for the running count (§4.5 "vote replacement
// cancels-then-applies atomically").
func (a *Amendment) Tally() {
	a.VotesFor, a.VotesAgainst, a.VotesAbstain = 0, 0, 0
	for _, v := range a.Votes {
		switch v {
		case VoteFor:
			a.VotesFor++
		case VoteAgainst:
			a.VotesAgainst++
		case VoteAbstain:
			a.VotesAbstain++
		}
	}
}

// MeetsQuorumAndSupermajority reports whether the current tally ratifies
// the amendment (§4.6: "votes_for ≥ required_votes (quorum) and
// votes_for/(for+against) ≥ supermajority_pct").
func (a Amendment) MeetsQuorumAndSupermajority() bool {
	if a.VotesFor < a.RequiredVotes {
		return false
	}
	decisive := a.VotesFor + a.VotesAgainst
	if decisive == 0 {
		return false
	}
	return a.VotesFor*100 >= a.SupermajorityPct*decisive
}

// VoteResponse is the JSON projection of a single vote entry.
type VoteResponse struct {
	VoterRef uuid.UUID `json:"voter_ref"`
	Vote     string    `json:"vote"`
}

// Response is the JSON projection of an Amendment.
type Response struct {
	ID                      uuid.UUID         `json:"id"`
	Title                   string            `json:"title"`
	Rationale               string            `json:"rationale"`
	Status                  string            `json:"status"`
	ProposerRef             uuid.UUID         `json:"proposer_ref"`
	SponsorRefs             []uuid.UUID       `json:"sponsor_refs"`
	DebateThread            []DiscussionEntry `json:"debate_thread"`
	DiffDocument            string            `json:"diff_document"`
	EligibleVoters          []uuid.UUID       `json:"eligible_voters"`
	RequiredVotes           int               `json:"required_votes"`
	SupermajorityPct        int               `json:"supermajority_pct"`
	Votes                   []VoteResponse    `json:"votes"`
	VotesFor                int               `json:"votes_for"`
	VotesAgainst            int               `json:"votes_against"`
	VotesAbstain            int               `json:"votes_abstain"`
	StartedAt               *time.Time        `json:"started_at,omitempty"`
	EndsAt                  *time.Time        `json:"ends_at,omitempty"`
	RatifiedConstitutionRef *uuid.UUID        `json:"ratified_constitution_ref,omitempty"`
	CreatedAt               time.Time         `json:"created_at"`
	UpdatedAt               time.Time         `json:"updated_at"`
}

// ToResponse converts an Amendment to its API projection.
func (a Amendment) ToResponse() Response {
	sponsors := a.SponsorRefs
	if sponsors == nil {
		sponsors = []uuid.UUID{}
	}
	thread := a.DebateThread
	if thread == nil {
		thread = []DiscussionEntry{}
	}
	voters := a.EligibleVoters
	if voters == nil {
		voters = []uuid.UUID{}
	}
	votes := make([]VoteResponse, 0, len(a.Votes))
	for voter, v := range a.Votes {
		votes = append(votes, VoteResponse{VoterRef: voter, Vote: string(v)})
	}
	return Response{
		ID: a.ID, Title: a.Title, Rationale: a.Rationale, Status: string(a.Status),
		ProposerRef: a.ProposerRef, SponsorRefs: sponsors, DebateThread: thread,
		DiffDocument: a.DiffDocument, EligibleVoters: voters, RequiredVotes: a.RequiredVotes,
		SupermajorityPct: a.SupermajorityPct, Votes: votes,
		VotesFor: a.VotesFor, VotesAgainst: a.VotesAgainst, VotesAbstain: a.VotesAbstain,
		StartedAt: a.StartedAt, EndsAt: a.EndsAt, RatifiedConstitutionRef: a.RatifiedConstitutionRef,
		CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt,
	}
}
