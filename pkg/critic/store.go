package critic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/neurotech-brt/agentium/internal/dbtx"
	"github.com/neurotech-brt/agentium/pkg/agierr"
)

// Store provides database operations for critique reviews and critic
// performance profiles.
type Store struct {
	dbtx dbtx.DBTX
}

// NewStore creates a critic Store backed by the given database handle.
func NewStore(db dbtx.DBTX) *Store {
	return &Store{dbtx: db}
}

const reviewColumns = `id, task_ref, subtask_ref, specialty, critic_agent_ref, verdict,
	rejection_reason, suggestions, retry_count, max_retries, review_duration_ms,
	model_used, output_hash, criteria_results, criteria_evaluated, criteria_passed,
	consensus_reached, reviewed_at`

func scanReviewRow(row pgx.Row) (CritiqueReview, error) {
	var r CritiqueReview
	var specialty, verdict string
	var criteriaJSON []byte
	err := row.Scan(
		&r.ID, &r.TaskRef, &r.SubtaskRef, &specialty, &r.CriticAgentRef, &verdict,
		&r.RejectionReason, &r.Suggestions, &r.RetryCount, &r.MaxRetries, &r.ReviewDurationMs,
		&r.ModelUsed, &r.OutputHash, &criteriaJSON, &r.CriteriaEvaluated, &r.CriteriaPassed,
		&r.ConsensusReached, &r.ReviewedAt,
	)
	if err != nil {
		return CritiqueReview{}, err
	}
	r.Specialty = Specialty(specialty)
	r.Verdict = Verdict(verdict)
	if len(criteriaJSON) > 0 {
		if err := json.Unmarshal(criteriaJSON, &r.CriteriaResults); err != nil {
			return CritiqueReview{}, fmt.Errorf("unmarshalling criteria results: %w", err)
		}
	}
	return r, nil
}

func scanReviewRows(rows pgx.Rows) ([]CritiqueReview, error) {
	defer rows.Close()
	var items []CritiqueReview
	for rows.Next() {
		r, err := scanReviewRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning critique review row: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating critique review rows: %w", err)
	}
	return items, nil
}

// FindCached returns a prior review for the same (task, output hash,
// specialty), if one exists (§4.5 dedup).
func (s *Store) FindCached(ctx context.Context, taskRef uuid.UUID, outputHash string, specialty Specialty) (CritiqueReview, bool, error) {
	query := `SELECT ` + reviewColumns + ` FROM critique_reviews
		WHERE task_ref = $1 AND output_hash = $2 AND specialty = $3
		ORDER BY reviewed_at DESC LIMIT 1`
	r, err := scanReviewRow(s.dbtx.QueryRow(ctx, query, taskRef, outputHash, string(specialty)))
	if err != nil {
		if err == pgx.ErrNoRows {
			return CritiqueReview{}, false, nil
		}
		return CritiqueReview{}, false, fmt.Errorf("looking up cached review: %w", err)
	}
	return r, true, nil
}

// Insert persists a new critique review.
func (s *Store) Insert(ctx context.Context, r CritiqueReview) (CritiqueReview, error) {
	criteriaJSON, err := json.Marshal(r.CriteriaResults)
	if err != nil {
		return CritiqueReview{}, fmt.Errorf("marshalling criteria results: %w", err)
	}

	query := `INSERT INTO critique_reviews (
		id, task_ref, subtask_ref, specialty, critic_agent_ref, verdict,
		rejection_reason, suggestions, retry_count, max_retries, review_duration_ms,
		model_used, output_hash, criteria_results, criteria_evaluated, criteria_passed,
		consensus_reached, reviewed_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, now())
	RETURNING ` + reviewColumns

	row := s.dbtx.QueryRow(ctx, query,
		uuid.New(), r.TaskRef, r.SubtaskRef, string(r.Specialty), r.CriticAgentRef, string(r.Verdict),
		r.RejectionReason, r.Suggestions, r.RetryCount, r.MaxRetries, r.ReviewDurationMs,
		r.ModelUsed, r.OutputHash, criteriaJSON, r.CriteriaEvaluated, r.CriteriaPassed,
		r.ConsensusReached,
	)
	return scanReviewRow(row)
}

// ListForTask returns every review recorded against a task, most recent
// first.
func (s *Store) ListForTask(ctx context.Context, taskRef uuid.UUID) ([]CritiqueReview, error) {
	query := `SELECT ` + reviewColumns + ` FROM critique_reviews WHERE task_ref = $1 ORDER BY reviewed_at DESC`
	rows, err := s.dbtx.Query(ctx, query, taskRef)
	if err != nil {
		return nil, fmt.Errorf("listing reviews for task: %w", err)
	}
	return scanReviewRows(rows)
}

const profileColumns = `id, agent_ref, specialty, reviews_completed, vetoes_issued,
	escalations_issued, passes_issued, avg_review_time_ms, preferred_review_model`

func scanProfileRow(row pgx.Row) (Profile, error) {
	var p Profile
	var specialty string
	err := row.Scan(
		&p.ID, &p.AgentRef, &specialty, &p.ReviewsCompleted, &p.VetoesIssued,
		&p.EscalationsIssued, &p.PassesIssued, &p.AvgReviewTimeMs, &p.PreferredReviewModel,
	)
	if err != nil {
		return Profile{}, err
	}
	p.Specialty = Specialty(specialty)
	return p, nil
}

func scanProfileRows(rows pgx.Rows) ([]Profile, error) {
	defer rows.Close()
	var items []Profile
	for rows.Next() {
		p, err := scanProfileRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning critic profile row: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating critic profile rows: %w", err)
	}
	return items, nil
}

// GetOrCreateProfile returns the profile for agentRef, creating an empty one
// if none exists yet. It is the only place critic profiles are created.
func (s *Store) GetOrCreateProfile(ctx context.Context, agentRef uuid.UUID, specialty Specialty) (Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM critic_profiles WHERE agent_ref = $1`
	p, err := scanProfileRow(s.dbtx.QueryRow(ctx, query, agentRef))
	if err == nil {
		return p, nil
	}
	if err != pgx.ErrNoRows {
		return Profile{}, fmt.Errorf("reading critic profile: %w", err)
	}

	insert := `INSERT INTO critic_profiles (id, agent_ref, specialty, reviews_completed,
		vetoes_issued, escalations_issued, passes_issued, avg_review_time_ms, preferred_review_model)
		VALUES ($1, $2, $3, 0, 0, 0, 0, 0, '')
		RETURNING ` + profileColumns
	row := s.dbtx.QueryRow(ctx, insert, uuid.New(), agentRef, string(specialty))
	return scanProfileRow(row)
}

// ListCandidateProfiles returns the critic profiles for the given agent IDs,
// ordered by reviews_completed ascending (§4.5 least-busy selection).
func (s *Store) ListCandidateProfiles(ctx context.Context, agentRefs []uuid.UUID) ([]Profile, error) {
	if len(agentRefs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + profileColumns + ` FROM critic_profiles
		WHERE agent_ref = ANY($1) ORDER BY reviews_completed ASC`
	rows, err := s.dbtx.Query(ctx, query, agentRefs)
	if err != nil {
		return nil, fmt.Errorf("listing candidate critic profiles: %w", err)
	}
	return scanProfileRows(rows)
}

// SaveProfile persists updated review counters for a profile.
func (s *Store) SaveProfile(ctx context.Context, p Profile) error {
	tag, err := s.dbtx.Exec(ctx, `UPDATE critic_profiles SET
		reviews_completed = $2, vetoes_issued = $3, escalations_issued = $4,
		passes_issued = $5, avg_review_time_ms = $6
		WHERE agent_ref = $1`,
		p.AgentRef, p.ReviewsCompleted, p.VetoesIssued, p.EscalationsIssued,
		p.PassesIssued, p.AvgReviewTimeMs,
	)
	if err != nil {
		return fmt.Errorf("saving critic profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return agierr.New(agierr.KindNotFound, fmt.Sprintf("no critic profile for agent %s", p.AgentRef))
	}
	return nil
}
