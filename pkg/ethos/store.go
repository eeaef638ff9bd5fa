package ethos

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/neurotech-brt/agentium/internal/dbtx"
	"github.com/neurotech-brt/agentium/pkg/agierr"
)

// Store provides database operations for constitutions and ethos records.
// Per-version derived views (articles_as_dict, prohibited_actions, changelog)
// are cached in versionCache since a constitution version is immutable once
// archived and re-parsing its JSON blob on every read is wasted work.
type Store struct {
	dbtx         dbtx.DBTX
	versionCache sync.Map // version string -> *versionView
}

type versionView struct {
	articlesAsDict    map[string]string
	prohibitedActions []string
	changelog         string
}

// NewStore creates an ethos Store backed by the given database handle.
func NewStore(db dbtx.DBTX) *Store {
	return &Store{dbtx: db}
}

const constitutionColumns = `id, version, version_number, preamble, articles, prohibitions,
	sovereign_preferences, effective_date, replaces_version_ref, archived_date,
	ratified_by_amendment_ref`

func scanConstitutionRow(row pgx.Row) (Constitution, error) {
	var c Constitution
	var articlesJSON []byte
	err := row.Scan(
		&c.ID, &c.Version, &c.VersionNumber, &c.Preamble, &articlesJSON, &c.Prohibitions,
		&c.SovereignPreferences, &c.EffectiveDate, &c.ReplacesVersionRef, &c.ArchivedDate,
		&c.RatifiedByAmendmentRef,
	)
	if err != nil {
		return Constitution{}, err
	}
	if len(articlesJSON) > 0 {
		if err := json.Unmarshal(articlesJSON, &c.Articles); err != nil {
			return Constitution{}, fmt.Errorf("unmarshalling articles: %w", err)
		}
	}
	return c, nil
}

// LoadActive returns the unique constitution version with archived_date IS
// NULL (§4.2 load_active).
func (s *Store) LoadActive(ctx context.Context) (Constitution, error) {
	query := `SELECT ` + constitutionColumns + ` FROM constitutions WHERE archived_date IS NULL LIMIT 1`
	c, err := scanConstitutionRow(s.dbtx.QueryRow(ctx, query))
	if err != nil {
		if err == pgx.ErrNoRows {
			return Constitution{}, agierr.New(agierr.KindNotFound, "no active constitution")
		}
		return Constitution{}, fmt.Errorf("loading active constitution: %w", err)
	}
	return c, nil
}

// GetVersion returns a specific constitution version, active or archived.
func (s *Store) GetVersion(ctx context.Context, version string) (Constitution, error) {
	query := `SELECT ` + constitutionColumns + ` FROM constitutions WHERE version = $1`
	c, err := scanConstitutionRow(s.dbtx.QueryRow(ctx, query, version))
	if err != nil {
		if err == pgx.ErrNoRows {
			return Constitution{}, agierr.New(agierr.KindNotFound, fmt.Sprintf("constitution version %s not found", version))
		}
		return Constitution{}, fmt.Errorf("loading constitution version: %w", err)
	}
	return c, nil
}

// Activate archives the currently active version (if any) and inserts newVersion
// as the new active version, all within a single transaction (§4.2 activate).
// Activation must never leave two versions simultaneously active nor zero.
func (s *Store) Activate(ctx context.Context, tx dbtx.DBTX, newVersion Constitution) (Constitution, error) {
	_, err := tx.Exec(ctx, `UPDATE constitutions SET archived_date = now() WHERE archived_date IS NULL`)
	if err != nil {
		return Constitution{}, fmt.Errorf("archiving prior constitution: %w", err)
	}

	articlesJSON, err := json.Marshal(newVersion.Articles)
	if err != nil {
		return Constitution{}, fmt.Errorf("marshalling articles: %w", err)
	}

	query := `INSERT INTO constitutions (
		id, version, version_number, preamble, articles, prohibitions,
		sovereign_preferences, effective_date, replaces_version_ref,
		ratified_by_amendment_ref
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	RETURNING ` + constitutionColumns

	row := tx.QueryRow(ctx, query,
		uuid.New(), newVersion.Version, newVersion.VersionNumber, newVersion.Preamble, articlesJSON,
		newVersion.Prohibitions, newVersion.SovereignPreferences, newVersion.EffectiveDate,
		newVersion.ReplacesVersionRef, newVersion.RatifiedByAmendmentRef,
	)
	c, err := scanConstitutionRow(row)
	if err != nil {
		return Constitution{}, fmt.Errorf("inserting new constitution version: %w", err)
	}

	s.versionCache.Delete(c.Version)
	return c, nil
}

// ArticlesAsDict returns articles keyed by their stringified number, computed
// once per version and cached thereafter.
func (s *Store) ArticlesAsDict(c Constitution) map[string]string {
	return s.viewFor(c).articlesAsDict
}

// ProhibitedActions returns the flattened prohibitions list, cached per version.
func (s *Store) ProhibitedActions(c Constitution) []string {
	return s.viewFor(c).prohibitedActions
}

// Changelog returns a rendered summary of what changed versus replaces_version_ref,
// cached per version. Rendering itself is out of scope here; callers needing the
// diff against the prior version should use the amendment package's diff_document.
func (s *Store) Changelog(c Constitution) string {
	return s.viewFor(c).changelog
}

func (s *Store) viewFor(c Constitution) *versionView {
	if v, ok := s.versionCache.Load(c.Version); ok {
		return v.(*versionView)
	}

	articles := make(map[string]string, len(c.Articles))
	for num, article := range c.Articles {
		articles[fmt.Sprintf("%d", num)] = article.Title + ": " + article.Content
	}

	view := &versionView{
		articlesAsDict:    articles,
		prohibitedActions: append([]string(nil), c.Prohibitions...),
		changelog:         fmt.Sprintf("version %s (replaces %v)", c.Version, c.ReplacesVersionRef),
	}

	actual, _ := s.versionCache.LoadOrStore(c.Version, view)
	return actual.(*versionView)
}

const ethosColumns = `id, agent_ref, mission_statement, behavioral_rules, restrictions,
	capabilities, constitutional_references, active_plan, working_state,
	lessons_learned, version, updated_at`

func scanEthosRow(row pgx.Row) (Ethos, error) {
	var e Ethos
	var planJSON []byte
	err := row.Scan(
		&e.ID, &e.AgentRef, &e.MissionStatement, &e.BehavioralRules, &e.Restrictions,
		&e.Capabilities, &e.ConstitutionalReferences, &planJSON, &e.WorkingState,
		&e.LessonsLearned, &e.Version, &e.UpdatedAt,
	)
	if err != nil {
		return Ethos{}, err
	}
	if len(planJSON) > 0 {
		if err := json.Unmarshal(planJSON, &e.ActivePlan); err != nil {
			return Ethos{}, fmt.Errorf("unmarshalling active plan: %w", err)
		}
	}
	return e, nil
}

// Read returns the ethos record for an agent (§4.2 read).
func (s *Store) Read(ctx context.Context, agentRef uuid.UUID) (Ethos, error) {
	query := `SELECT ` + ethosColumns + ` FROM ethos_records WHERE agent_ref = $1`
	e, err := scanEthosRow(s.dbtx.QueryRow(ctx, query, agentRef))
	if err != nil {
		if err == pgx.ErrNoRows {
			return Ethos{}, agierr.New(agierr.KindNotFound, fmt.Sprintf("no ethos record for agent %s", agentRef))
		}
		return Ethos{}, fmt.Errorf("reading ethos record: %w", err)
	}
	return e, nil
}

// Create inserts a new ethos record for a newly spawned agent.
func (s *Store) Create(ctx context.Context, e Ethos) (Ethos, error) {
	planJSON, err := json.Marshal(e.ActivePlan)
	if err != nil {
		return Ethos{}, fmt.Errorf("marshalling active plan: %w", err)
	}

	query := `INSERT INTO ethos_records (
		id, agent_ref, mission_statement, behavioral_rules, restrictions,
		capabilities, constitutional_references, active_plan, working_state,
		lessons_learned, version
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)
	RETURNING ` + ethosColumns

	row := s.dbtx.QueryRow(ctx, query,
		uuid.New(), e.AgentRef, e.MissionStatement, e.BehavioralRules, e.Restrictions,
		e.Capabilities, e.ConstitutionalReferences, planJSON, e.WorkingState, e.LessonsLearned,
	)
	return scanEthosRow(row)
}

// Update persists field changes and increments version (§4.2 update(fields, actor):
// every update increments version, there is no partial-update path that skips it).
func (s *Store) Update(ctx context.Context, e Ethos) (Ethos, error) {
	planJSON, err := json.Marshal(e.ActivePlan)
	if err != nil {
		return Ethos{}, fmt.Errorf("marshalling active plan: %w", err)
	}

	query := `UPDATE ethos_records SET
		mission_statement = $2, behavioral_rules = $3, restrictions = $4,
		capabilities = $5, constitutional_references = $6, active_plan = $7,
		working_state = $8, lessons_learned = $9, version = version + 1, updated_at = now()
	WHERE agent_ref = $1
	RETURNING ` + ethosColumns

	row := s.dbtx.QueryRow(ctx, query,
		e.AgentRef, e.MissionStatement, e.BehavioralRules, e.Restrictions,
		e.Capabilities, e.ConstitutionalReferences, planJSON, e.WorkingState, e.LessonsLearned,
	)
	updated, err := scanEthosRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Ethos{}, agierr.New(agierr.KindNotFound, fmt.Sprintf("no ethos record for agent %s", e.AgentRef))
		}
		return Ethos{}, fmt.Errorf("updating ethos record: %w", err)
	}
	return updated, nil
}

// Compress loads the current record, applies Compress, and persists it
// (§4.2 compress(completed_steps)).
func (s *Store) Compress(ctx context.Context, agentRef uuid.UUID) (Ethos, error) {
	e, err := s.Read(ctx, agentRef)
	if err != nil {
		return Ethos{}, err
	}
	e.Compress()
	return s.Update(ctx, e)
}

// SetActivePlan replaces the active plan (§4.2 set_active_plan).
func (s *Store) SetActivePlan(ctx context.Context, agentRef uuid.UUID, plan []PlanStep) (Ethos, error) {
	e, err := s.Read(ctx, agentRef)
	if err != nil {
		return Ethos{}, err
	}
	e.ActivePlan = plan
	return s.Update(ctx, e)
}

// SetConstitutionalReferences replaces the constitutional_references list
// (§4.2 set_constitutional_references).
func (s *Store) SetConstitutionalReferences(ctx context.Context, agentRef uuid.UUID, refs []string) (Ethos, error) {
	e, err := s.Read(ctx, agentRef)
	if err != nil {
		return Ethos{}, err
	}
	e.ConstitutionalReferences = refs
	return s.Update(ctx, e)
}

// AddLessonLearned appends a lesson, trimming to the most recent 50 entries,
// and persists the change (§4.2 add_lesson_learned).
func (s *Store) AddLessonLearned(ctx context.Context, agentRef uuid.UUID, lesson string) (Ethos, error) {
	e, err := s.Read(ctx, agentRef)
	if err != nil {
		return Ethos{}, err
	}
	e.AddLessonLearned(lesson)
	return s.Update(ctx, e)
}
