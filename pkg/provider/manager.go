package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/neurotech-brt/agentium/internal/audit"
	"github.com/neurotech-brt/agentium/pkg/agierr"
)

// Prober lets the Manager exercise a specific key through the Model Adapter
// without going through selection — used by FetchModels/TestKey. Defined
// here (rather than imported from pkg/modeladapter) so pkg/provider never
// depends on pkg/modeladapter; the adapter implements this interface
// structurally.
type Prober interface {
	ProbeKey(ctx context.Context, k Key, dryRun bool) error
	FetchModelsFor(ctx context.Context, k Key) ([]string, error)
}

// Notifier broadcasts a structured outage alert on every registered external
// channel (§4.3.1). Implemented by pkg/notify.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// Manager is the thread-safe Provider/Key Manager singleton (§4.3). Mutation
// of a single key is serialized by the database row, not an in-process lock,
// matching §5's "operations on a single key are serialised" by relying on
// Postgres row-level consistency rather than an application mutex.
type Manager struct {
	store    *Store
	cipher   *MaterialCipher
	redis    *redis.Client
	notifier Notifier
	prober   Prober
	logger   *slog.Logger
	audit    *audit.Writer
}

// NewManager constructs a Manager. prober may be nil and set later via
// SetProber — the Model Adapter that implements Prober is itself
// constructed from a Manager, so callers break the cycle by constructing
// the Manager first, then the Adapter, then wiring it back with SetProber.
func NewManager(store *Store, cipher *MaterialCipher, rdb *redis.Client, notifier Notifier, prober Prober, logger *slog.Logger, auditWriter *audit.Writer) *Manager {
	return &Manager{store: store, cipher: cipher, redis: rdb, notifier: notifier, prober: prober, logger: logger, audit: auditWriter}
}

// SetProber wires the Prober after construction, breaking the Manager/Adapter
// construction cycle.
func (m *Manager) SetProber(p Prober) {
	m.prober = p
}

// Selection is the outcome of SelectKey: the chosen key plus its decrypted
// material, ready for the Model Adapter to dispatch with.
type Selection struct {
	Key      Key
	Material string
}

// SelectKey runs the §4.3 selection algorithm against provider kind `kind`,
// falling back across fallbackKinds in order if kind is fully unhealthy.
func (m *Manager) SelectKey(ctx context.Context, kind Kind, fallbackKinds []Kind, estimatedCost float64) (Selection, error) {
	kinds := append([]Kind{kind}, fallbackKinds...)
	now := time.Now().UTC()

	for _, k := range kinds {
		sel, err := m.selectFromKind(ctx, k, now, estimatedCost)
		if err != nil {
			return Selection{}, err
		}
		if sel != nil {
			return *sel, nil
		}
	}

	m.notifyOutage(ctx, kinds)
	return Selection{}, agierr.ProvidersExhausted(
		fmt.Sprintf("no healthy key across provider kinds %v", kinds),
		int(GeneralCooldown.Seconds()),
	)
}

func (m *Manager) selectFromKind(ctx context.Context, kind Kind, now time.Time, estimatedCost float64) (*Selection, error) {
	keys, err := m.store.ActiveByKind(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("listing keys for kind %s: %w", kind, err)
	}

	for _, k := range keys {
		if k.CooldownUntil != nil && !k.CooldownUntil.After(now) {
			recovered, err := m.store.RecoverIfExpired(ctx, k, now)
			if err != nil {
				return nil, fmt.Errorf("recovering key %s: %w", k.ID, err)
			}
			k = recovered
		}

		if !k.IsHealthy(now, estimatedCost) {
			continue
		}

		material, err := m.cipher.Decrypt(k.EncryptedMaterial)
		if err != nil {
			m.logger.Error("decrypting provider key material", "key_id", k.ID, "error", err)
			continue
		}
		return &Selection{Key: k, Material: material}, nil
	}
	return nil, nil
}

// DecryptMaterial recovers a key's cleartext credential. Exposed for the
// Model Adapter's probe paths (FetchModels/TestKey), which operate on a
// specific key outside the normal SelectKey flow.
func (m *Manager) DecryptMaterial(k Key) (string, error) {
	return m.cipher.Decrypt(k.EncryptedMaterial)
}

// ReportOutcome records the result of a dispatch against key id (§4.3 on
// response).
func (m *Manager) ReportOutcome(ctx context.Context, id uuid.UUID, outcome OutcomeReport) error {
	now := time.Now().UTC()
	if outcome.Success {
		if err := m.store.RecordSuccess(ctx, id, outcome.ActualCost, now); err != nil {
			return err
		}
	} else {
		if err := m.store.RecordFailure(ctx, id, outcome.RateLimited, now); err != nil {
			return err
		}
		m.audit.Log(audit.Entry{
			Level:      audit.LevelWarning,
			ActorType:  "system",
			ActorID:    "provider_key_manager",
			Action:     "provider_key_failure",
			TargetType: "provider_key",
			TargetID:   id.String(),
		})
	}
	if outcome.LatencyMs > 0 {
		if err := m.store.RecordLatency(ctx, id, outcome.LatencyMs); err != nil {
			m.logger.Error("recording provider key latency", "key_id", id, "error", err)
		}
	}
	return nil
}

// notifyOutage broadcasts the §4.3.1 notification protocol, debounced per
// provider kind via a Redis TTL key so a storm of failing requests doesn't
// re-fire the alert more than once per NotificationDebounceSeconds.
func (m *Manager) notifyOutage(ctx context.Context, kinds []Kind) {
	debounceKey := fmt.Sprintf("agentium:provider:outage-notified:%v", kinds)
	set, err := m.redis.SetNX(ctx, debounceKey, "1", NotificationDebounceSeconds*time.Second).Result()
	if err != nil {
		m.logger.Error("checking outage notification debounce", "error", err)
		return
	}
	if !set {
		return
	}

	subject := "All provider keys exhausted"
	body := fmt.Sprintf("every key across provider kinds %v is unhealthy or over budget", kinds)
	if m.notifier != nil {
		if err := m.notifier.Notify(ctx, subject, body); err != nil {
			m.logger.Error("sending outage notification", "error", err)
		}
	}
	m.audit.Log(audit.Entry{
		Level:      audit.LevelCritical,
		ActorType:  "system",
		ActorID:    "provider_key_manager",
		Action:     "providers_exhausted",
		TargetType: "provider_kind",
		TargetID:   fmt.Sprintf("%v", kinds),
	})
}

// FetchModels lists the models a key's account can access, via the Model
// Adapter's listing call — it spends no budget (SPEC_FULL.md supplement).
func (m *Manager) FetchModels(ctx context.Context, id uuid.UUID) ([]string, error) {
	k, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.prober.FetchModelsFor(ctx, k)
}

// TestKey health-checks a key with a constant small-cost (or no-cost) probe
// dispatched with opts.DryRun = true, never recording spend (SPEC_FULL.md
// supplement).
func (m *Manager) TestKey(ctx context.Context, id uuid.UUID) error {
	k, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := m.prober.ProbeKey(ctx, k, true); err != nil {
		return fmt.Errorf("probing provider key %s: %w", id, err)
	}
	if err := m.store.RecordSuccess(ctx, id, 0, time.Now().UTC()); err != nil {
		return err
	}
	return nil
}

// RegisterKey encrypts rawMaterial and persists a new key in TESTING status.
func (m *Manager) RegisterKey(ctx context.Context, kind Kind, rawMaterial, baseURL, defaultModel string, priority int, monthlyBudget float64) (Key, error) {
	encrypted, err := m.cipher.Encrypt(rawMaterial)
	if err != nil {
		return Key{}, fmt.Errorf("encrypting key material: %w", err)
	}
	return m.store.Create(ctx, CreateParams{
		ProviderKind:      kind,
		EncryptedMaterial: encrypted,
		BaseURL:           baseURL,
		DefaultModel:      defaultModel,
		Priority:          priority,
		MonthlyBudget:     monthlyBudget,
	})
}

// RotateKey health-checks rawMaterial against old's provider kind before
// rotating it in; on failure the new row is never created and old is left
// untouched (§4.3 key rotation's rollback clause).
func (m *Manager) RotateKey(ctx context.Context, old Key, rawMaterial, baseURL, defaultModel string, monthlyBudget float64) (Key, error) {
	encrypted, err := m.cipher.Encrypt(rawMaterial)
	if err != nil {
		return Key{}, fmt.Errorf("encrypting rotated key material: %w", err)
	}
	candidate := Key{ProviderKind: old.ProviderKind, EncryptedMaterial: encrypted, BaseURL: baseURL, DefaultModel: defaultModel}

	if err := m.prober.ProbeKey(ctx, candidate, true); err != nil {
		return Key{}, agierr.Wrap(agierr.KindValidation, "replacement key failed health check", err)
	}

	next, err := m.store.Rotate(ctx, old, CreateParams{
		ProviderKind:      old.ProviderKind,
		EncryptedMaterial: encrypted,
		BaseURL:           baseURL,
		DefaultModel:      defaultModel,
		MonthlyBudget:     monthlyBudget,
	})
	if err != nil {
		return Key{}, err
	}

	m.audit.Log(audit.Entry{
		Level:      audit.LevelInfo,
		ActorType:  "system",
		ActorID:    "provider_key_manager",
		Action:     "provider_key_rotated",
		TargetType: "provider_key",
		TargetID:   next.ID.String(),
	})
	return next, nil
}
