package task

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/neurotech-brt/agentium/internal/dbtx"
	"github.com/neurotech-brt/agentium/pkg/agierr"
)

// Store provides database operations for tasks.
type Store struct {
	dbtx dbtx.DBTX
}

// NewStore creates a task Store backed by the given database handle.
func NewStore(db dbtx.DBTX) *Store {
	return &Store{dbtx: db}
}

const taskColumns = `id, title, description, status, priority, created_by_ref,
	assigned_agents, plan, output, acceptance_criteria, retry_count,
	progress_percent, last_critic_suggestion, created_at, updated_at`

func scanTaskRow(row pgx.Row) (Task, error) {
	var t Task
	var status, priority string
	var assignedJSON, planJSON, criteriaJSON []byte
	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &status, &priority, &t.CreatedByRef,
		&assignedJSON, &planJSON, &t.Output, &criteriaJSON, &t.RetryCount,
		&t.ProgressPercent, &t.LastCriticSuggestion, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return Task{}, err
	}
	t.Status = Status(status)
	t.Priority = Priority(priority)

	if len(assignedJSON) > 0 {
		if err := json.Unmarshal(assignedJSON, &t.AssignedAgents); err != nil {
			return Task{}, fmt.Errorf("unmarshalling assigned agents: %w", err)
		}
	}
	if len(planJSON) > 0 {
		if err := json.Unmarshal(planJSON, &t.Plan); err != nil {
			return Task{}, fmt.Errorf("unmarshalling plan: %w", err)
		}
	}
	if len(criteriaJSON) > 0 {
		var payloads []criterionPayload
		if err := json.Unmarshal(criteriaJSON, &payloads); err != nil {
			return Task{}, fmt.Errorf("unmarshalling acceptance criteria: %w", err)
		}
		t.AcceptanceCriteria = fromCriterionPayloads(payloads)
	}
	return t, nil
}

func scanTaskRows(rows pgx.Rows) ([]Task, error) {
	defer rows.Close()
	var items []Task
	for rows.Next() {
		t, err := scanTaskRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning task row: %w", err)
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating task rows: %w", err)
	}
	return items, nil
}

// Create persists a new task in DRAFT status.
func (s *Store) Create(ctx context.Context, t Task) (Task, error) {
	assignedJSON, _ := json.Marshal(emptyIfNilUUIDs(t.AssignedAgents))
	planJSON, _ := json.Marshal(emptyIfNilPlan(t.Plan))
	criteriaJSON, err := json.Marshal(toCriterionPayloads(t.AcceptanceCriteria))
	if err != nil {
		return Task{}, fmt.Errorf("marshalling acceptance criteria: %w", err)
	}

	query := `INSERT INTO tasks (
		id, title, description, status, priority, created_by_ref,
		assigned_agents, plan, output, acceptance_criteria, retry_count,
		progress_percent, last_critic_suggestion, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '', $9, 0, 0, '', now(), now())
	RETURNING ` + taskColumns

	row := s.dbtx.QueryRow(ctx, query,
		uuid.New(), t.Title, t.Description, string(StatusDraft), string(t.Priority), t.CreatedByRef,
		assignedJSON, planJSON, criteriaJSON,
	)
	return scanTaskRow(row)
}

// Get returns a single task by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	t, err := scanTaskRow(s.dbtx.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return Task{}, agierr.New(agierr.KindNotFound, fmt.Sprintf("task %s not found", id))
		}
		return Task{}, fmt.Errorf("getting task: %w", err)
	}
	return t, nil
}

// ListActive returns every task not yet in a terminal status, most recently
// updated first — the working set a pipeline loop iterates over.
func (s *Store) ListActive(ctx context.Context) ([]Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE status NOT IN ('COMPLETED', 'FAILED', 'CANCELLED')
		ORDER BY updated_at DESC`
	rows, err := s.dbtx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing active tasks: %w", err)
	}
	return scanTaskRows(rows)
}

// ListByAssignedAgent returns every non-terminal task whose assigned_agents
// contains agentID, used by the Lifecycle Manager to find a liquidated or
// promoted agent's in-flight work (§4.8).
func (s *Store) ListByAssignedAgent(ctx context.Context, agentID uuid.UUID) ([]Task, error) {
	member, _ := json.Marshal([]uuid.UUID{agentID})
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE status NOT IN ('COMPLETED', 'FAILED', 'CANCELLED')
		AND assigned_agents @> $1
		ORDER BY updated_at DESC`
	rows, err := s.dbtx.Query(ctx, query, member)
	if err != nil {
		return nil, fmt.Errorf("listing tasks by assigned agent: %w", err)
	}
	return scanTaskRows(rows)
}

// Update persists the full mutable state of a task (status, assignment,
// plan, output, retry/progress counters).
func (s *Store) Update(ctx context.Context, t Task) (Task, error) {
	assignedJSON, _ := json.Marshal(emptyIfNilUUIDs(t.AssignedAgents))
	planJSON, _ := json.Marshal(emptyIfNilPlan(t.Plan))
	criteriaJSON, err := json.Marshal(toCriterionPayloads(t.AcceptanceCriteria))
	if err != nil {
		return Task{}, fmt.Errorf("marshalling acceptance criteria: %w", err)
	}

	query := `UPDATE tasks SET
		status = $2, assigned_agents = $3, plan = $4, output = $5,
		acceptance_criteria = $6, retry_count = $7, progress_percent = $8,
		last_critic_suggestion = $9, updated_at = now()
		WHERE id = $1
		RETURNING ` + taskColumns

	row := s.dbtx.QueryRow(ctx, query,
		t.ID, string(t.Status), assignedJSON, planJSON, t.Output, criteriaJSON,
		t.RetryCount, t.ProgressPercent, t.LastCriticSuggestion,
	)
	updated, err := scanTaskRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Task{}, agierr.New(agierr.KindNotFound, fmt.Sprintf("task %s not found", t.ID))
		}
		return Task{}, fmt.Errorf("updating task: %w", err)
	}
	return updated, nil
}

func emptyIfNilUUIDs(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}

func emptyIfNilPlan(p []PlanStep) []PlanStep {
	if p == nil {
		return []PlanStep{}
	}
	return p
}
