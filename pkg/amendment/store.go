package amendment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/neurotech-brt/agentium/internal/dbtx"
	"github.com/neurotech-brt/agentium/pkg/agierr"
	"github.com/neurotech-brt/agentium/pkg/ethos"
)

// Store provides database operations for amendments.
type Store struct {
	dbtx dbtx.DBTX
}

// NewStore creates an amendment Store backed by the given database handle.
func NewStore(db dbtx.DBTX) *Store {
	return &Store{dbtx: db}
}

const amendmentColumns = `id, title, rationale, status, proposer_ref, sponsor_refs,
	debate_thread, proposed_articles, proposed_prohibitions, proposed_sovereign_preferences,
	diff_document, eligible_voters, required_votes, supermajority_pct, votes,
	debate_window_seconds, voting_window_seconds, started_at, ends_at,
	ratified_constitution_ref, created_at, updated_at`

type voteEntry struct {
	VoterRef uuid.UUID `json:"voter_ref"`
	Vote     string    `json:"vote"`
}

func scanAmendmentRow(row pgx.Row) (Amendment, error) {
	var a Amendment
	var status string
	var sponsorsJSON, threadJSON, articlesJSON, votersJSON, votesJSON []byte
	var debateWindowSec, votingWindowSec int64

	err := row.Scan(
		&a.ID, &a.Title, &a.Rationale, &status, &a.ProposerRef, &sponsorsJSON,
		&threadJSON, &articlesJSON, &a.ProposedProhibitions, &a.ProposedSovereignPreferences,
		&a.DiffDocument, &votersJSON, &a.RequiredVotes, &a.SupermajorityPct, &votesJSON,
		&debateWindowSec, &votingWindowSec, &a.StartedAt, &a.EndsAt,
		&a.RatifiedConstitutionRef, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return Amendment{}, err
	}
	a.Status = Status(status)
	a.DebateWindow = secondsToDuration(debateWindowSec)
	a.VotingWindow = secondsToDuration(votingWindowSec)

	if len(sponsorsJSON) > 0 {
		if err := json.Unmarshal(sponsorsJSON, &a.SponsorRefs); err != nil {
			return Amendment{}, fmt.Errorf("unmarshalling sponsor refs: %w", err)
		}
	}
	if len(threadJSON) > 0 {
		if err := json.Unmarshal(threadJSON, &a.DebateThread); err != nil {
			return Amendment{}, fmt.Errorf("unmarshalling debate thread: %w", err)
		}
	}
	if len(articlesJSON) > 0 {
		var articles map[string]ethos.Article
		if err := json.Unmarshal(articlesJSON, &articles); err != nil {
			return Amendment{}, fmt.Errorf("unmarshalling proposed articles: %w", err)
		}
		a.ProposedArticles = stringKeysToInt(articles)
	}
	if len(votersJSON) > 0 {
		if err := json.Unmarshal(votersJSON, &a.EligibleVoters); err != nil {
			return Amendment{}, fmt.Errorf("unmarshalling eligible voters: %w", err)
		}
	}
	a.Votes = make(map[uuid.UUID]Vote)
	if len(votesJSON) > 0 {
		var entries []voteEntry
		if err := json.Unmarshal(votesJSON, &entries); err != nil {
			return Amendment{}, fmt.Errorf("unmarshalling votes: %w", err)
		}
		for _, v := range entries {
			a.Votes[v.VoterRef] = Vote(v.Vote)
		}
	}
	a.Tally()
	return a, nil
}

func scanAmendmentRows(rows pgx.Rows) ([]Amendment, error) {
	defer rows.Close()
	var items []Amendment
	for rows.Next() {
		a, err := scanAmendmentRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning amendment row: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating amendment rows: %w", err)
	}
	return items, nil
}

// Create persists a new amendment in PROPOSED status.
func (s *Store) Create(ctx context.Context, a Amendment) (Amendment, error) {
	sponsorsJSON, _ := json.Marshal(emptyIfNilUUIDs(a.SponsorRefs))
	threadJSON, _ := json.Marshal(emptyIfNilThread(a.DebateThread))
	articlesJSON, err := json.Marshal(intKeysToString(a.ProposedArticles))
	if err != nil {
		return Amendment{}, fmt.Errorf("marshalling proposed articles: %w", err)
	}
	votersJSON, _ := json.Marshal(emptyIfNilUUIDs(a.EligibleVoters))
	votesJSON, _ := json.Marshal(voteEntriesOf(a.Votes))

	query := `INSERT INTO amendments (
		id, title, rationale, status, proposer_ref, sponsor_refs,
		debate_thread, proposed_articles, proposed_prohibitions, proposed_sovereign_preferences,
		diff_document, eligible_voters, required_votes, supermajority_pct, votes,
		debate_window_seconds, voting_window_seconds, started_at, ends_at,
		ratified_constitution_ref, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, now(), now())
	RETURNING ` + amendmentColumns

	row := s.dbtx.QueryRow(ctx, query,
		uuid.New(), a.Title, a.Rationale, string(StatusProposed), a.ProposerRef, sponsorsJSON,
		threadJSON, articlesJSON, a.ProposedProhibitions, a.ProposedSovereignPreferences,
		a.DiffDocument, votersJSON, a.RequiredVotes, a.SupermajorityPct, votesJSON,
		int64(a.DebateWindow.Seconds()), int64(a.VotingWindow.Seconds()), a.StartedAt, a.EndsAt,
		a.RatifiedConstitutionRef,
	)
	return scanAmendmentRow(row)
}

// Get returns a single amendment by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Amendment, error) {
	query := `SELECT ` + amendmentColumns + ` FROM amendments WHERE id = $1`
	a, err := scanAmendmentRow(s.dbtx.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return Amendment{}, agierr.New(agierr.KindNotFound, fmt.Sprintf("amendment %s not found", id))
		}
		return Amendment{}, fmt.Errorf("getting amendment: %w", err)
	}
	return a, nil
}

// ListActive returns every amendment not yet in a terminal status.
func (s *Store) ListActive(ctx context.Context) ([]Amendment, error) {
	query := `SELECT ` + amendmentColumns + ` FROM amendments
		WHERE status NOT IN ('RATIFIED', 'REJECTED', 'WITHDRAWN')
		ORDER BY created_at ASC`
	rows, err := s.dbtx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing active amendments: %w", err)
	}
	return scanAmendmentRows(rows)
}

// ListHistory returns the most recently created amendments, most recent
// first, bounded to limit.
func (s *Store) ListHistory(ctx context.Context, limit int) ([]Amendment, error) {
	query := `SELECT ` + amendmentColumns + ` FROM amendments ORDER BY created_at DESC LIMIT $1`
	rows, err := s.dbtx.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing amendment history: %w", err)
	}
	return scanAmendmentRows(rows)
}

// Update persists the full mutable state of an amendment (status, sponsors,
// debate thread, votes, timing).
func (s *Store) Update(ctx context.Context, a Amendment) (Amendment, error) {
	sponsorsJSON, _ := json.Marshal(emptyIfNilUUIDs(a.SponsorRefs))
	threadJSON, _ := json.Marshal(emptyIfNilThread(a.DebateThread))
	votesJSON, _ := json.Marshal(voteEntriesOf(a.Votes))

	query := `UPDATE amendments SET
		status = $2, sponsor_refs = $3, debate_thread = $4, votes = $5,
		started_at = $6, ends_at = $7, ratified_constitution_ref = $8, updated_at = now()
		WHERE id = $1
		RETURNING ` + amendmentColumns

	row := s.dbtx.QueryRow(ctx, query,
		a.ID, string(a.Status), sponsorsJSON, threadJSON, votesJSON,
		a.StartedAt, a.EndsAt, a.RatifiedConstitutionRef,
	)
	updated, err := scanAmendmentRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Amendment{}, agierr.New(agierr.KindNotFound, fmt.Sprintf("amendment %s not found", a.ID))
		}
		return Amendment{}, fmt.Errorf("updating amendment: %w", err)
	}
	return updated, nil
}

func emptyIfNilUUIDs(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}

func emptyIfNilThread(t []DiscussionEntry) []DiscussionEntry {
	if t == nil {
		return []DiscussionEntry{}
	}
	return t
}

func voteEntriesOf(votes map[uuid.UUID]Vote) []voteEntry {
	entries := make([]voteEntry, 0, len(votes))
	for voter, v := range votes {
		entries = append(entries, voteEntry{VoterRef: voter, Vote: string(v)})
	}
	return entries
}

func intKeysToString(m map[int]ethos.Article) map[string]ethos.Article {
	out := make(map[string]ethos.Article, len(m))
	for k, v := range m {
		out[fmt.Sprintf("%d", k)] = v
	}
	return out
}

func stringKeysToInt(m map[string]ethos.Article) map[int]ethos.Article {
	out := make(map[int]ethos.Article, len(m))
	for k, v := range m {
		var n int
		if _, err := fmt.Sscanf(k, "%d", &n); err == nil {
			out[n] = v
		}
	}
	return out
}

func secondsToDuration(s int64) time.Duration {
	return time.Duration(s) * time.Second
}
