package amendment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/neurotech-brt/agentium/internal/audit"
	"github.com/neurotech-brt/agentium/internal/dbtx"
	"github.com/neurotech-brt/agentium/pkg/agent"
	"github.com/neurotech-brt/agentium/pkg/agierr"
	"github.com/neurotech-brt/agentium/pkg/ethos"
	"github.com/neurotech-brt/agentium/pkg/identity"
	"github.com/neurotech-brt/agentium/pkg/vectorstore"
)

// Broadcaster publishes a notification to every agent, the sole outbound
// side effect the Amendment state machine performs on ratification or
// rejection (§6: "Only the Provider/Key Manager and Amendment state
// machine publish on these in the core"). Kept as a narrow local interface
// so this package never forces a concrete notification channel on callers
// that just want the state machine without wiring one up.
type Broadcaster interface {
	Broadcast(ctx context.Context, kind, subject, body string) error
}

// Engine drives the §4.6 PROPOSED→DELIBERATING→VOTING→RATIFIED|REJECTED
// lifecycle, plus the WITHDRAWN escape hatch. It owns the one irreversible
// side effect in the whole amendment path: activating a new constitution
// version on ratification.
type Engine struct {
	store       *Store
	agents      *agent.Store
	ethos       *ethos.Store
	registry    *identity.Registry
	vectors     vectorstore.Store
	embedder    vectorstore.Embedder
	broadcaster Broadcaster
	audit       *audit.Writer
	logger      *slog.Logger
	beginner    dbtx.Beginner
}

// NewEngine constructs an amendment Engine. vectors/embedder/broadcaster may
// all be nil, in which case the corresponding ratification side effect is
// skipped silently rather than failing the whole conclusion.
// db must be the pool itself (not a DBTX that might already be a Tx) since
// ratify opens a real transaction to archive the old constitution and
// insert the new one atomically.
func NewEngine(store *Store, agents *agent.Store, ethosStore *ethos.Store, registry *identity.Registry, vectors vectorstore.Store, embedder vectorstore.Embedder, broadcaster Broadcaster, auditWriter *audit.Writer, db dbtx.Beginner, logger *slog.Logger) *Engine {
	return &Engine{
		store: store, agents: agents, ethos: ethosStore, registry: registry,
		vectors: vectors, embedder: embedder, broadcaster: broadcaster,
		audit: auditWriter, beginner: db, logger: logger,
	}
}

// ProposeParams describes a new amendment as submitted by its proposer.
type ProposeParams struct {
	ProposerRef                  uuid.UUID
	Title                        string
	Rationale                    string
	ProposedArticles             map[int]ethos.Article
	ProposedProhibitions         []string
	ProposedSovereignPreferences []string
	DebateWindow                 time.Duration // 0 => DefaultDebateWindow
	VotingWindow                 time.Duration // 0 => DefaultVotingWindow
}

// Propose creates a new amendment in PROPOSED status (§4.6 "PROPOSED
// requires proposer is COUNCIL or HEAD; first sponsor = proposer").
func (e *Engine) Propose(ctx context.Context, params ProposeParams) (Amendment, error) {
	proposer, err := e.agents.Get(ctx, params.ProposerRef)
	if err != nil {
		return Amendment{}, fmt.Errorf("getting proposer: %w", err)
	}
	if _, err := e.registry.Check(proposer.View(), identity.CapProposeAmendment, true); err != nil {
		return Amendment{}, err
	}

	current, err := e.ethos.LoadActive(ctx)
	if err != nil {
		return Amendment{}, fmt.Errorf("loading active constitution: %w", err)
	}

	eligible, err := e.eligibleVoters(ctx)
	if err != nil {
		return Amendment{}, err
	}

	debateWindow, votingWindow := params.DebateWindow, params.VotingWindow
	if debateWindow <= 0 {
		debateWindow = DefaultDebateWindow
	}
	if votingWindow <= 0 {
		votingWindow = DefaultVotingWindow
	}

	a := Amendment{
		Title: params.Title, Rationale: params.Rationale, Status: StatusProposed,
		ProposerRef: params.ProposerRef, SponsorRefs: []uuid.UUID{params.ProposerRef},
		DebateThread: []DiscussionEntry{{
			AgentRef: &params.ProposerRef, Author: proposer.TierID,
			Message:   fmt.Sprintf("PROPOSAL: %s — %s", params.Title, params.Rationale),
			CreatedAt: timeNow(),
		}},
		ProposedArticles:             params.ProposedArticles,
		ProposedProhibitions:         params.ProposedProhibitions,
		ProposedSovereignPreferences: params.ProposedSovereignPreferences,
		DiffDocument:                 renderDiff(current, params.ProposedArticles, params.ProposedProhibitions, params.ProposedSovereignPreferences),
		EligibleVoters:               eligible,
		RequiredVotes:                requiredVotes(len(eligible), DefaultQuorumPct),
		SupermajorityPct:             DefaultSupermajorityPct,
		Votes:                        map[uuid.UUID]Vote{},
		DebateWindow:                 debateWindow,
		VotingWindow:                 votingWindow,
	}

	created, err := e.store.Create(ctx, a)
	if err != nil {
		return Amendment{}, err
	}
	e.logAudit(ctx, created.ID, "amendment_proposed", audit.LevelInfo, proposer.TierID, nil)
	return created, nil
}

// Sponsor adds sponsorRef to an amendment's sponsor list. When
// RequiredSponsors is reached, the amendment advances to DELIBERATING and
// the debate clock starts (§4.6).
func (e *Engine) Sponsor(ctx context.Context, amendmentID, sponsorRef uuid.UUID) (Amendment, error) {
	a, err := e.store.Get(ctx, amendmentID)
	if err != nil {
		return Amendment{}, err
	}
	if a.Status != StatusProposed {
		return Amendment{}, agierr.New(agierr.KindInvariantViolation, fmt.Sprintf("amendment %s is not in PROPOSED", amendmentID))
	}

	sponsor, err := e.agents.Get(ctx, sponsorRef)
	if err != nil {
		return Amendment{}, fmt.Errorf("getting sponsor: %w", err)
	}
	if _, err := e.registry.Check(sponsor.View(), identity.CapProposeAmendment, true); err != nil {
		return Amendment{}, err
	}
	for _, s := range a.SponsorRefs {
		if s == sponsorRef {
			return Amendment{}, agierr.New(agierr.KindConflict, fmt.Sprintf("agent %s has already sponsored this amendment", sponsorRef))
		}
	}

	a.SponsorRefs = append(a.SponsorRefs, sponsorRef)
	a.DebateThread = append(a.DebateThread, DiscussionEntry{
		AgentRef: &sponsorRef, Author: sponsor.TierID,
		Message:   fmt.Sprintf("SPONSOR: endorses this amendment (%d/%d sponsors)", len(a.SponsorRefs), RequiredSponsors),
		CreatedAt: timeNow(),
	})

	if len(a.SponsorRefs) >= RequiredSponsors {
		now := timeNow()
		ends := now.Add(a.DebateWindow)
		a.Status = StatusDeliberating
		a.StartedAt = &now
		a.EndsAt = &ends
		a.DebateThread = append(a.DebateThread, DiscussionEntry{
			Author: "system", Message: "sponsor threshold reached; amendment entering deliberation", CreatedAt: now,
		})
	}

	updated, err := e.store.Update(ctx, a)
	if err != nil {
		return Amendment{}, err
	}
	action := "amendment_sponsored"
	if updated.Status == StatusDeliberating {
		action = "amendment_deliberation_started"
	}
	e.logAudit(ctx, amendmentID, action, audit.LevelInfo, sponsor.TierID, nil)
	return updated, nil
}

// AdvanceToVoting transitions DELIBERATING to VOTING, either because the
// debate window elapsed (called by the timer loop) or HEAD advanced it
// manually (§4.6).
func (e *Engine) AdvanceToVoting(ctx context.Context, amendmentID uuid.UUID) (Amendment, error) {
	a, err := e.store.Get(ctx, amendmentID)
	if err != nil {
		return Amendment{}, err
	}
	if a.Status != StatusDeliberating {
		return Amendment{}, agierr.New(agierr.KindInvariantViolation, fmt.Sprintf("amendment %s is not in DELIBERATING", amendmentID))
	}

	now := timeNow()
	ends := now.Add(a.VotingWindow)
	a.Status = StatusVoting
	a.StartedAt = &now
	a.EndsAt = &ends

	updated, err := e.store.Update(ctx, a)
	if err != nil {
		return Amendment{}, err
	}
	e.logAudit(ctx, amendmentID, "amendment_voting_started", audit.LevelInfo, "system", nil)
	return updated, nil
}

// CastVote records voterRef's ballot. A replacement vote cancels the prior
// one and applies the new one atomically, since the tally is always
// recomputed from the votes map rather than incremented in place (§4.5).
func (e *Engine) CastVote(ctx context.Context, amendmentID, voterRef uuid.UUID, vote Vote, rationale string) (Amendment, error) {
	a, err := e.store.Get(ctx, amendmentID)
	if err != nil {
		return Amendment{}, err
	}
	if a.Status != StatusVoting {
		return Amendment{}, agierr.New(agierr.KindInvariantViolation, fmt.Sprintf("amendment %s is not in VOTING", amendmentID))
	}
	if !containsUUID(a.EligibleVoters, voterRef) {
		return Amendment{}, agierr.New(agierr.KindPermissionDenied, fmt.Sprintf("agent %s is not an eligible voter for this amendment", voterRef))
	}

	voter, err := e.agents.Get(ctx, voterRef)
	if err != nil {
		return Amendment{}, fmt.Errorf("getting voter: %w", err)
	}
	if _, err := e.registry.Check(voter.View(), identity.CapVoteOnAmendment, true); err != nil {
		return Amendment{}, err
	}

	a.Votes[voterRef] = vote
	a.Tally()
	entry := DiscussionEntry{AgentRef: &voterRef, Author: voter.TierID, Message: fmt.Sprintf("VOTE: %s", vote), CreatedAt: timeNow()}
	if rationale != "" {
		entry.Message += " — " + rationale
	}
	a.DebateThread = append(a.DebateThread, entry)

	updated, err := e.store.Update(ctx, a)
	if err != nil {
		return Amendment{}, err
	}
	e.logAudit(ctx, amendmentID, "amendment_vote_cast", audit.LevelInfo, voter.TierID, map[string]string{
		"vote": string(vote), "votes_for": fmt.Sprintf("%d", updated.VotesFor), "votes_against": fmt.Sprintf("%d", updated.VotesAgainst),
	})
	return updated, nil
}

// Conclude settles a VOTING amendment: RATIFIED activates a new
// constitution version, embeds it into the vector store, and broadcasts
// CONSTITUTION_AMENDED; otherwise REJECTED broadcasts AMENDMENT_REJECTED
// with no constitutional change (§4.6).
func (e *Engine) Conclude(ctx context.Context, amendmentID uuid.UUID) (Amendment, error) {
	a, err := e.store.Get(ctx, amendmentID)
	if err != nil {
		return Amendment{}, err
	}
	if a.Status != StatusVoting {
		return Amendment{}, agierr.New(agierr.KindInvariantViolation, fmt.Sprintf("amendment %s is not in VOTING", amendmentID))
	}

	if a.MeetsQuorumAndSupermajority() {
		return e.ratify(ctx, a)
	}
	return e.reject(ctx, a)
}

func (e *Engine) ratify(ctx context.Context, a Amendment) (Amendment, error) {
	current, err := e.ethos.LoadActive(ctx)
	if err != nil {
		return Amendment{}, fmt.Errorf("loading active constitution: %w", err)
	}

	next := ethos.Constitution{
		Version:                fmt.Sprintf("%d.0", current.VersionNumber+1),
		VersionNumber:          current.VersionNumber + 1,
		Preamble:               current.Preamble,
		Articles:               mergeArticles(current.Articles, a.ProposedArticles),
		Prohibitions:           coalesceStrings(a.ProposedProhibitions, current.Prohibitions),
		SovereignPreferences:   coalesceStrings(a.ProposedSovereignPreferences, current.SovereignPreferences),
		EffectiveDate:          timeNow(),
		ReplacesVersionRef:     &current.ID,
		RatifiedByAmendmentRef: &a.ID,
	}

	tx, err := e.beginner.Begin(ctx)
	if err != nil {
		return Amendment{}, fmt.Errorf("beginning ratification transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	activated, err := e.ethos.Activate(ctx, tx, next)
	if err != nil {
		return Amendment{}, fmt.Errorf("activating ratified constitution: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Amendment{}, fmt.Errorf("committing ratification transaction: %w", err)
	}

	a.Status = StatusRatified
	a.RatifiedConstitutionRef = &activated.ID
	a.DebateThread = append(a.DebateThread, DiscussionEntry{
		Author: "system", CreatedAt: timeNow(),
		Message: fmt.Sprintf("RATIFIED: constitution v%s now in effect (FOR=%d AGAINST=%d)", activated.Version, a.VotesFor, a.VotesAgainst),
	})

	updated, err := e.store.Update(ctx, a)
	if err != nil {
		return Amendment{}, err
	}

	e.embedRatifiedArticles(ctx, activated)
	e.broadcast(ctx, "CONSTITUTION_AMENDED", "Constitution amended",
		fmt.Sprintf("Constitution version %s is now in effect (amendment %s, FOR=%d AGAINST=%d)", activated.Version, a.ID, a.VotesFor, a.VotesAgainst))

	e.logAudit(ctx, a.ID, "amendment_ratified", audit.LevelCritical, "system", map[string]string{"new_constitution_version": activated.Version})
	return updated, nil
}

func (e *Engine) reject(ctx context.Context, a Amendment) (Amendment, error) {
	a.Status = StatusRejected
	a.DebateThread = append(a.DebateThread, DiscussionEntry{
		Author: "system", CreatedAt: timeNow(),
		Message: fmt.Sprintf("REJECTED: quorum or supermajority not met (FOR=%d AGAINST=%d ABSTAIN=%d)", a.VotesFor, a.VotesAgainst, a.VotesAbstain),
	})

	updated, err := e.store.Update(ctx, a)
	if err != nil {
		return Amendment{}, err
	}
	e.broadcast(ctx, "AMENDMENT_REJECTED", "Amendment rejected",
		fmt.Sprintf("Amendment %s was rejected by vote (FOR=%d AGAINST=%d)", a.ID, a.VotesFor, a.VotesAgainst))
	e.logAudit(ctx, a.ID, "amendment_rejected", audit.LevelWarning, "system", nil)
	return updated, nil
}

// Withdraw retracts a non-terminal amendment. Only the original proposer
// may withdraw it.
func (e *Engine) Withdraw(ctx context.Context, amendmentID, byRef uuid.UUID) (Amendment, error) {
	a, err := e.store.Get(ctx, amendmentID)
	if err != nil {
		return Amendment{}, err
	}
	if a.IsTerminal() {
		return Amendment{}, agierr.New(agierr.KindInvariantViolation, fmt.Sprintf("amendment %s is already terminal", amendmentID))
	}
	if a.ProposerRef != byRef {
		return Amendment{}, agierr.New(agierr.KindPermissionDenied, "only the proposer may withdraw this amendment")
	}

	a.Status = StatusWithdrawn
	updated, err := e.store.Update(ctx, a)
	if err != nil {
		return Amendment{}, err
	}
	e.logAudit(ctx, amendmentID, "amendment_withdrawn", audit.LevelInfo, byRef.String(), nil)
	return updated, nil
}

func (e *Engine) eligibleVoters(ctx context.Context) ([]uuid.UUID, error) {
	council, err := e.agents.ListByTier(ctx, identity.TierCouncil, false)
	if err != nil {
		return nil, fmt.Errorf("listing council agents: %w", err)
	}
	head, err := e.agents.ListByTier(ctx, identity.TierHead, false)
	if err != nil {
		return nil, fmt.Errorf("listing head agents: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(council)+len(head))
	for _, a := range council {
		ids = append(ids, a.ID)
	}
	for _, a := range head {
		ids = append(ids, a.ID)
	}
	return ids, nil
}

func (e *Engine) embedRatifiedArticles(ctx context.Context, c ethos.Constitution) {
	if e.vectors == nil || e.embedder == nil {
		return
	}
	for num, article := range c.Articles {
		content := fmt.Sprintf("Article %d: %s\n%s", num, article.Title, article.Content)
		embedding, err := e.embedder.Embed(ctx, content)
		if err != nil {
			e.logger.Warn("embedding ratified article failed", "error", err, "article", num)
			continue
		}
		err = e.vectors.Add(ctx, vectorstore.CollectionConstitutionArticles, vectorstore.Record{
			ID: uuid.New(), Text: content, Embedding: embedding,
			Metadata: map[string]string{"version": c.Version, "article": fmt.Sprintf("%d", num)},
		})
		if err != nil {
			e.logger.Warn("indexing ratified article failed", "error", err, "article", num)
		}
	}
}

func (e *Engine) broadcast(ctx context.Context, kind, subject, body string) {
	if e.broadcaster == nil {
		return
	}
	if err := e.broadcaster.Broadcast(ctx, kind, subject, body); err != nil {
		e.logger.Warn("broadcasting amendment outcome failed", "error", err, "kind", kind)
	}
}

func (e *Engine) logAudit(ctx context.Context, amendmentID uuid.UUID, action string, level audit.Level, actorID string, detail map[string]string) {
	if e.audit == nil {
		return
	}
	var raw json.RawMessage
	if detail != nil {
		raw, _ = json.Marshal(detail)
	}
	e.audit.Log(audit.Entry{
		Level: level, ActorType: "agent", ActorID: actorID,
		Action: action, TargetType: "amendment", TargetID: amendmentID.String(), Detail: raw,
	})
}

func requiredVotes(eligible, quorumPct int) int {
	if eligible <= 0 {
		return 1
	}
	return int(math.Max(1, math.Ceil(float64(eligible)*float64(quorumPct)/100)))
}

func mergeArticles(current, proposed map[int]ethos.Article) map[int]ethos.Article {
	merged := make(map[int]ethos.Article, len(current)+len(proposed))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range proposed {
		merged[k] = v
	}
	return merged
}

func coalesceStrings(proposed, current []string) []string {
	if proposed != nil {
		return proposed
	}
	return current
}

func containsUUID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}

// timeNow exists so every "now" used in this package's mutation paths goes
// through one seam — tests substitute it to drive the state machine
// deterministically without wall-clock flakiness.
var timeNow = time.Now
