package agent

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/neurotech-brt/agentium/internal/dbtx"
	"github.com/neurotech-brt/agentium/pkg/agierr"
	"github.com/neurotech-brt/agentium/pkg/identity"
)

// Store provides database operations for agents.
type Store struct {
	dbtx dbtx.DBTX
}

// NewStore creates an agent Store backed by the given database handle.
func NewStore(db dbtx.DBTX) *Store {
	return &Store{dbtx: db}
}

const agentColumns = `id, tier_id, tier, name, status, parent_ref, ethos_ref,
	preferred_provider_ref, is_persistent, incarnation_number, constitution_version,
	granted_caps, revoked_caps, tasks_completed, tasks_failed, idle_cycles,
	total_idle_seconds, token_count, token_budget, created_at, updated_at`

// DefaultTokenBudget is the per-agent token budget Create applies when
// CreateParams.TokenBudget is left unset, matching the context window of a
// typical configured model (§4.9: "a per-agent budget, e.g. 80% of context
// window").
const DefaultTokenBudget int64 = 128000

func scanAgentRow(row pgx.Row) (Agent, error) {
	var a Agent
	var tier string
	var granted, revoked []string
	err := row.Scan(
		&a.ID, &a.TierID, &tier, &a.Name, &a.Status, &a.ParentRef, &a.EthosRef,
		&a.PreferredProviderRef, &a.IsPersistent, &a.IncarnationNumber, &a.ConstitutionVersion,
		&granted, &revoked, &a.TasksCompleted, &a.TasksFailed, &a.IdleCycles,
		&a.TotalIdleSeconds, &a.TokenCount, &a.TokenBudget, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return Agent{}, err
	}
	a.Tier = identity.Tier(tier)
	for _, c := range granted {
		a.GrantedCaps = append(a.GrantedCaps, identity.Capability(c))
	}
	for _, c := range revoked {
		a.RevokedCaps = append(a.RevokedCaps, identity.Capability(c))
	}
	return a, nil
}

func scanAgentRows(rows pgx.Rows) ([]Agent, error) {
	defer rows.Close()
	var items []Agent
	for rows.Next() {
		a, err := scanAgentRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning agent row: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agent rows: %w", err)
	}
	return items, nil
}

// Get returns a single agent by internal ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE id = $1`
	return scanAgentRow(s.dbtx.QueryRow(ctx, query, id))
}

// GetByTierID returns a single agent by its tier_id.
func (s *Store) GetByTierID(ctx context.Context, tierID string) (Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE tier_id = $1`
	return scanAgentRow(s.dbtx.QueryRow(ctx, query, tierID))
}

// TierIDInUse reports whether tierID is already allocated to an agent,
// satisfying the isUsed callback signature identity.Registry.AllocateTierID expects.
func (s *Store) TierIDInUse(ctx context.Context, tierID string) (bool, error) {
	var exists bool
	err := s.dbtx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM agents WHERE tier_id = $1)`, tierID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking tier_id in use: %w", err)
	}
	return exists, nil
}

// Create inserts a new agent in INITIALIZING status.
func (s *Store) Create(ctx context.Context, p CreateParams) (Agent, error) {
	budget := p.TokenBudget
	if budget <= 0 {
		budget = DefaultTokenBudget
	}
	query := `INSERT INTO agents (
		tier_id, tier, name, status, parent_ref, ethos_ref,
		is_persistent, incarnation_number, constitution_version,
		granted_caps, revoked_caps, token_budget
	) VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8, '[]', '[]', $9)
	RETURNING ` + agentColumns
	row := s.dbtx.QueryRow(ctx, query,
		p.TierID, string(p.Tier), p.Name, string(StatusInitializing), p.ParentRef, p.EthosRef,
		p.IsPersistent, p.ConstitutionVersion, budget,
	)
	return scanAgentRow(row)
}

// UpdateStatus transitions an agent's status.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := s.dbtx.Exec(ctx, `UPDATE agents SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("updating agent status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return agierr.New(agierr.KindNotFound, fmt.Sprintf("agent %s not found", id))
	}
	return nil
}

// UpdateCapabilities persists a new granted/revoked set for an agent.
func (s *Store) UpdateCapabilities(ctx context.Context, id uuid.UUID, caps identity.CapabilitySet) error {
	granted := make([]string, len(caps.Granted))
	for i, c := range caps.Granted {
		granted[i] = string(c)
	}
	revoked := make([]string, len(caps.Revoked))
	for i, c := range caps.Revoked {
		revoked[i] = string(c)
	}
	_, err := s.dbtx.Exec(ctx,
		`UPDATE agents SET granted_caps = $2, revoked_caps = $3, updated_at = now() WHERE id = $1`,
		id, granted, revoked,
	)
	if err != nil {
		return fmt.Errorf("updating agent capabilities: %w", err)
	}
	return nil
}

// SetEthosRef links a newly created ethos record to its agent, used by the
// Lifecycle Manager after both rows exist (§4.8 spawn/promote: the agent row
// is created before its ethos, since the ethos row references the agent's
// id).
func (s *Store) SetEthosRef(ctx context.Context, id, ethosRef uuid.UUID) error {
	_, err := s.dbtx.Exec(ctx,
		`UPDATE agents SET ethos_ref = $2, updated_at = now() WHERE id = $1`,
		id, ethosRef,
	)
	return err
}

// SetPreferredProvider updates the provider the lifecycle preference
// optimizer has nudged this agent toward (SPEC_FULL.md Agent Store supplement).
func (s *Store) SetPreferredProvider(ctx context.Context, id uuid.UUID, providerRef string) error {
	_, err := s.dbtx.Exec(ctx,
		`UPDATE agents SET preferred_provider_ref = $2, updated_at = now() WHERE id = $1`,
		id, providerRef,
	)
	return err
}

// SetIncarnationNumber overrides the incarnation_number Create always sets
// to 1, used by the Reincarnation Controller when spawning a successor that
// must carry predecessor+1 (§4.9 step 4).
func (s *Store) SetIncarnationNumber(ctx context.Context, id uuid.UUID, n int) error {
	_, err := s.dbtx.Exec(ctx,
		`UPDATE agents SET incarnation_number = $2, updated_at = now() WHERE id = $1`,
		id, n,
	)
	return err
}

// IncrementTaskCounter bumps tasks_completed or tasks_failed.
func (s *Store) IncrementTaskCounter(ctx context.Context, id uuid.UUID, completed bool) error {
	col := "tasks_failed"
	if completed {
		col = "tasks_completed"
	}
	_, err := s.dbtx.Exec(ctx,
		fmt.Sprintf(`UPDATE agents SET %s = %s + 1, updated_at = now() WHERE id = $1`, col, col),
		id,
	)
	return err
}

// RecordIdleCycle bumps idle_cycles and total_idle_seconds after a cycle in
// which the agent found no work (feeds the preference-optimizer loop).
func (s *Store) RecordIdleCycle(ctx context.Context, id uuid.UUID, seconds int64) error {
	_, err := s.dbtx.Exec(ctx,
		`UPDATE agents SET idle_cycles = idle_cycles + 1, total_idle_seconds = total_idle_seconds + $2, updated_at = now() WHERE id = $1`,
		id, seconds,
	)
	return err
}

// IncrementTokenCount adds delta to an agent's running token count after a
// model call (§4.9 trigger condition). A non-positive delta is a no-op.
func (s *Store) IncrementTokenCount(ctx context.Context, id uuid.UUID, delta int) error {
	if delta <= 0 {
		return nil
	}
	_, err := s.dbtx.Exec(ctx,
		`UPDATE agents SET token_count = token_count + $2, updated_at = now() WHERE id = $1`,
		id, delta,
	)
	return err
}

// ListNearingTokenBudget returns every non-terminated, budgeted agent whose
// token_count has reached ratio of its token_budget, for the Reincarnation
// Controller's sweep (§4.9).
func (s *Store) ListNearingTokenBudget(ctx context.Context, ratio float64) ([]Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents
		WHERE token_budget > 0 AND status != $1 AND token_count >= token_budget * $2
		ORDER BY tier_id`
	rows, err := s.dbtx.Query(ctx, query, string(StatusTerminated), ratio)
	if err != nil {
		return nil, fmt.Errorf("listing agents nearing token budget: %w", err)
	}
	return scanAgentRows(rows)
}

// ListByTier returns all agents of a given tier, excluding TERMINATED unless includeTerminated is set.
func (s *Store) ListByTier(ctx context.Context, tier identity.Tier, includeTerminated bool) ([]Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE tier = $1`
	args := []any{string(tier)}
	if !includeTerminated {
		query += ` AND status != $2`
		args = append(args, string(StatusTerminated))
	}
	query += ` ORDER BY tier_id`
	rows, err := s.dbtx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing agents by tier: %w", err)
	}
	return scanAgentRows(rows)
}

// ListChildren returns all agents whose parent_ref is parentID.
func (s *Store) ListChildren(ctx context.Context, parentID uuid.UUID) ([]Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE parent_ref = $1 ORDER BY tier_id`
	rows, err := s.dbtx.Query(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("listing agent children: %w", err)
	}
	return scanAgentRows(rows)
}

// CountActiveByTier returns the number of non-terminated agents per tier,
// used by the Lifecycle Manager's capacity thresholds.
func (s *Store) CountActiveByTier(ctx context.Context, tier identity.Tier) (int, error) {
	var count int
	err := s.dbtx.QueryRow(ctx,
		`SELECT count(*) FROM agents WHERE tier = $1 AND status != $2`,
		string(tier), string(StatusTerminated),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting active agents by tier: %w", err)
	}
	return count, nil
}

// GetHead returns the unique persistent HEAD agent (§3 invariant i).
func (s *Store) GetHead(ctx context.Context) (Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE tier = $1 AND is_persistent = true LIMIT 1`
	return scanAgentRow(s.dbtx.QueryRow(ctx, query, string(identity.TierHead)))
}
