// Package seed bootstraps the mandatory persistent agents and initial
// constitution a fresh database needs before any governance operation can
// run. The Data Model invariant "exactly one HEAD exists and it is
// persistent" has nothing to satisfy it until this runs once — every other
// agent-creation path requires an already-existing parent to spawn under.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/neurotech-brt/agentium/internal/dbtx"
	"github.com/neurotech-brt/agentium/pkg/agent"
	"github.com/neurotech-brt/agentium/pkg/ethos"
	"github.com/neurotech-brt/agentium/pkg/identity"
	"github.com/neurotech-brt/agentium/pkg/lifecycle"
)

// initialConstitutionVersion is the version string of the constitution Run
// creates when a database has no active constitution at all.
const initialConstitutionVersion = "1.0"

// councilSpec describes one of the two persistent COUNCIL members.
type councilSpec struct {
	name        string
	description string
}

var councilSpecs = []councilSpec{
	{name: "System Optimizer", description: "Persistent council member focused on storage optimization and resource efficiency."},
	{name: "Strategic Planner", description: "Persistent council member focused on predictive planning and workload scheduling."},
}

// Run creates the HEAD agent, its two persistent COUNCIL members, and the
// initial constitution version, if a HEAD does not already exist. It is
// idempotent: a second call against an already-seeded database logs and
// returns nil rather than erroring on the unique-HEAD constraint.
func Run(ctx context.Context, beginner dbtx.Beginner, agents *agent.Store, ethosStore *ethos.Store, registry *identity.Registry, logger *slog.Logger) error {
	if _, err := agents.GetHead(ctx); err == nil {
		logger.Info("seed: HEAD agent already exists, skipping")
		return nil
	}

	version, err := seedConstitution(ctx, beginner, ethosStore)
	if err != nil {
		return fmt.Errorf("seeding initial constitution: %w", err)
	}

	head, err := createPersistentAgent(ctx, agents, ethosStore, registry, identity.TierHead, nil, version,
		"Head of Council", "The sovereign's proxy and the system's final governance authority. Never sleeps.")
	if err != nil {
		return fmt.Errorf("seeding HEAD agent: %w", err)
	}
	logger.Info("seed: created HEAD agent", "tier_id", head.TierID)

	for _, spec := range councilSpecs {
		member, err := createPersistentAgent(ctx, agents, ethosStore, registry, identity.TierCouncil, &head.ID, version, spec.name, spec.description)
		if err != nil {
			return fmt.Errorf("seeding council member %q: %w", spec.name, err)
		}
		logger.Info("seed: created COUNCIL agent", "tier_id", member.TierID, "name", spec.name)
	}

	return nil
}

// seedConstitution creates the initial constitution version when no version
// is active yet, leaving an already-active constitution untouched. Uses a
// real transaction for parity with every other path that calls Activate
// (archival and insertion must commit together).
func seedConstitution(ctx context.Context, beginner dbtx.Beginner, ethosStore *ethos.Store) (string, error) {
	if current, err := ethosStore.LoadActive(ctx); err == nil {
		return current.Version, nil
	}

	tx, err := beginner.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("beginning constitution seed transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	initial := ethos.Constitution{
		Version:       initialConstitutionVersion,
		VersionNumber: 1,
		Preamble:      "This constitution governs every agent in the system, from the Head of Council down to the most recently spawned Task agent.",
		Articles: map[int]ethos.Article{
			1: {Title: "Sovereign Authority", Content: "The sovereign's commands take precedence over all other directives."},
			2: {Title: "Hierarchy", Content: "Head > Council > Lead > Task. Capabilities flow downward only through explicit delegation."},
			3: {Title: "Transparency", Content: "Every governance action is logged and auditable."},
			4: {Title: "Amendment", Content: "This constitution may only be changed through the amendment process: debate, vote, and ratification."},
		},
		Prohibitions:         []string{"Terminating a persistent agent without an explicit violation flag", "Bypassing capability checks"},
		SovereignPreferences: []string{},
		EffectiveDate:        timeNow(),
	}

	activated, err := ethosStore.Activate(ctx, tx, initial)
	if err != nil {
		return "", fmt.Errorf("activating initial constitution: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("committing constitution seed transaction: %w", err)
	}
	return activated.Version, nil
}

// createPersistentAgent allocates a tier id, inserts the agent as
// persistent, and gives it a default ethos personalised with name and
// description — the same shape the Lifecycle Manager's Spawn produces, but
// callable with no existing parent capability check since HEAD/COUNCIL are
// never spawned through the normal capability-gated path.
func createPersistentAgent(ctx context.Context, agents *agent.Store, ethosStore *ethos.Store, registry *identity.Registry, tier identity.Tier, parentRef *uuid.UUID, constitutionVersion, name, description string) (agent.Agent, error) {
	tierID, err := registry.AllocateTierID(ctx, tier, agents.TierIDInUse)
	if err != nil {
		return agent.Agent{}, err
	}

	created, err := agents.Create(ctx, agent.CreateParams{
		TierID:              tierID,
		Tier:                tier,
		Name:                name,
		ParentRef:           parentRef,
		IsPersistent:        true,
		ConstitutionVersion: constitutionVersion,
	})
	if err != nil {
		return agent.Agent{}, err
	}

	newEthos := ethos.Ethos{
		AgentRef:         created.ID,
		MissionStatement: lifecycle.DefaultMission(tier, name) + " " + description,
		BehavioralRules:  lifecycle.DefaultRules(tier),
		Restrictions:     lifecycle.DefaultRestrictions(tier),
		Capabilities:     lifecycle.CapabilityStrings(identity.BaseCapabilities(tier)),
	}
	createdEthos, err := ethosStore.Create(ctx, newEthos)
	if err != nil {
		return agent.Agent{}, fmt.Errorf("creating default ethos: %w", err)
	}
	if err := agents.SetEthosRef(ctx, created.ID, createdEthos.ID); err != nil {
		return agent.Agent{}, fmt.Errorf("linking ethos to agent: %w", err)
	}
	if err := agents.UpdateStatus(ctx, created.ID, agent.StatusActive); err != nil {
		return agent.Agent{}, err
	}
	created.Status = agent.StatusActive
	created.EthosRef = &createdEthos.ID
	return created, nil
}

func timeNow() time.Time {
	return time.Now().UTC()
}
