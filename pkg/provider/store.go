package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/neurotech-brt/agentium/internal/dbtx"
	"github.com/neurotech-brt/agentium/pkg/agierr"
)

// Store provides database operations for provider keys.
type Store struct {
	dbtx dbtx.DBTX
}

// NewStore creates a provider Store backed by the given database handle.
func NewStore(db dbtx.DBTX) *Store {
	return &Store{dbtx: db}
}

const keyColumns = `id, provider_kind, encrypted_material, base_url, default_model,
	priority, status, failure_count, last_failure_at, cooldown_until,
	monthly_budget, current_spend, spend_reset_at, latency_p50_ms, latency_p95_ms,
	created_at, updated_at`

func scanKeyRow(row pgx.Row) (Key, error) {
	var k Key
	var kind, status string
	err := row.Scan(
		&k.ID, &kind, &k.EncryptedMaterial, &k.BaseURL, &k.DefaultModel,
		&k.Priority, &status, &k.FailureCount, &k.LastFailureAt, &k.CooldownUntil,
		&k.MonthlyBudget, &k.CurrentSpend, &k.SpendResetAt, &k.LatencyP50Ms, &k.LatencyP95Ms,
		&k.CreatedAt, &k.UpdatedAt,
	)
	if err != nil {
		return Key{}, err
	}
	k.ProviderKind = Kind(kind)
	k.Status = Status(status)
	return k, nil
}

func scanKeyRows(rows pgx.Rows) ([]Key, error) {
	defer rows.Close()
	var items []Key
	for rows.Next() {
		k, err := scanKeyRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning provider key row: %w", err)
		}
		items = append(items, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating provider key rows: %w", err)
	}
	return items, nil
}

// Get returns a single key by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Key, error) {
	query := `SELECT ` + keyColumns + ` FROM provider_keys WHERE id = $1`
	k, err := scanKeyRow(s.dbtx.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return Key{}, agierr.New(agierr.KindNotFound, fmt.Sprintf("provider key %s not found", id))
		}
		return Key{}, fmt.Errorf("getting provider key: %w", err)
	}
	return k, nil
}

// ActiveByKind returns active (non-terminal) keys for a provider kind,
// ordered by priority ascending (§4.3 step 1).
func (s *Store) ActiveByKind(ctx context.Context, kind Kind) ([]Key, error) {
	query := `SELECT ` + keyColumns + ` FROM provider_keys
		WHERE provider_kind = $1 AND status != $2
		ORDER BY priority ASC`
	rows, err := s.dbtx.Query(ctx, query, string(kind), string(StatusExhausted))
	if err != nil {
		return nil, fmt.Errorf("listing provider keys: %w", err)
	}
	return scanKeyRows(rows)
}

// Create registers a new provider key.
func (s *Store) Create(ctx context.Context, p CreateParams) (Key, error) {
	query := `INSERT INTO provider_keys (
		id, provider_kind, encrypted_material, base_url, default_model,
		priority, status, failure_count, monthly_budget, current_spend, spend_reset_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, 0, $9)
	RETURNING ` + keyColumns

	row := s.dbtx.QueryRow(ctx, query,
		uuid.New(), string(p.ProviderKind), p.EncryptedMaterial, p.BaseURL, p.DefaultModel,
		p.Priority, string(StatusTesting), p.MonthlyBudget, firstOfMonth(time.Now().UTC()),
	)
	return scanKeyRow(row)
}

// RecoverIfExpired transitions a key out of cooldown if its cooldown_until
// has passed, per §4.3 step 2's auto-recovery clause. Returns the possibly
// updated key.
func (s *Store) RecoverIfExpired(ctx context.Context, k Key, now time.Time) (Key, error) {
	if k.CooldownUntil == nil || k.CooldownUntil.After(now) {
		return k, nil
	}

	query := `UPDATE provider_keys SET
		status = $2, cooldown_until = NULL, failure_count = GREATEST(failure_count - 1, 0), updated_at = now()
	WHERE id = $1
	RETURNING ` + keyColumns
	row := s.dbtx.QueryRow(ctx, query, k.ID, string(StatusActive))
	return scanKeyRow(row)
}

// RecordSuccess resets failure tracking and records spend, rolling the
// monthly budget over if the calendar month changed (§4.3 on response/success).
func (s *Store) RecordSuccess(ctx context.Context, id uuid.UUID, actualCost float64, now time.Time) error {
	k, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	spend := k.CurrentSpend + actualCost
	resetAt := k.SpendResetAt
	if monthChanged(k.SpendResetAt, now) {
		spend = actualCost
		resetAt = firstOfMonth(now)
	}

	_, err = s.dbtx.Exec(ctx, `UPDATE provider_keys SET
		failure_count = 0, last_failure_at = NULL, cooldown_until = NULL, status = $2,
		current_spend = $3, spend_reset_at = $4, updated_at = now()
	WHERE id = $1`,
		id, string(StatusActive), spend, resetAt,
	)
	if err != nil {
		return fmt.Errorf("recording provider key success: %w", err)
	}
	return nil
}

// RecordFailure increments failure tracking and, once MaxFailuresBeforeCooldown
// is reached, trips the key into cooldown (§4.3 on response/failure).
func (s *Store) RecordFailure(ctx context.Context, id uuid.UUID, rateLimited bool, now time.Time) error {
	k, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	failureCount := k.FailureCount + 1
	status := k.Status
	var cooldownUntil *time.Time

	if failureCount >= MaxFailuresBeforeCooldown {
		window := GeneralCooldown
		if rateLimited {
			window = RateLimitCooldown
		}
		until := now.Add(window)
		cooldownUntil = &until
		status = StatusError
	}

	_, err = s.dbtx.Exec(ctx, `UPDATE provider_keys SET
		failure_count = $2, last_failure_at = $3, cooldown_until = $4, status = $5, updated_at = now()
	WHERE id = $1`,
		id, failureCount, now, cooldownUntil, string(status),
	)
	if err != nil {
		return fmt.Errorf("recording provider key failure: %w", err)
	}
	return nil
}

// RecordLatency updates the rolling latency percentiles using an
// exponentially-weighted approximation (cheap, single-row update — exact
// percentile tracking would require a sketch structure this table doesn't
// carry).
func (s *Store) RecordLatency(ctx context.Context, id uuid.UUID, latencyMs float64) error {
	const alpha = 0.2
	_, err := s.dbtx.Exec(ctx, `UPDATE provider_keys SET
		latency_p50_ms = latency_p50_ms * (1 - $2) + $3 * $2,
		latency_p95_ms = GREATEST(latency_p95_ms * (1 - $2), $3),
		updated_at = now()
	WHERE id = $1`, id, alpha, latencyMs)
	return err
}

// Rotate inserts a replacement key with priority := old.priority + 1 and
// marks the old key in cooldown for an hour on success (§4.3 key rotation).
// The caller is responsible for health-checking the new key before calling
// this, and for rolling back (deleting the new row) on failure.
func (s *Store) Rotate(ctx context.Context, old Key, p CreateParams) (Key, error) {
	p.Priority = old.Priority + 1
	next, err := s.Create(ctx, p)
	if err != nil {
		return Key{}, fmt.Errorf("creating rotated key: %w", err)
	}

	until := time.Now().UTC().Add(RotationCooldown)
	_, err = s.dbtx.Exec(ctx, `UPDATE provider_keys SET cooldown_until = $2, status = $3, updated_at = now() WHERE id = $1`,
		old.ID, until, string(StatusCooldown),
	)
	if err != nil {
		return Key{}, fmt.Errorf("cooling down rotated-out key: %w", err)
	}
	return next, nil
}

// Delete removes a key permanently.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.dbtx.Exec(ctx, `DELETE FROM provider_keys WHERE id = $1`, id)
	return err
}

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func monthChanged(resetAt, now time.Time) bool {
	return now.Year() != resetAt.Year() || now.Month() != resetAt.Month()
}
