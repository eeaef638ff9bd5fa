package principal

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/neurotech-brt/agentium/internal/dbtx"
	"github.com/neurotech-brt/agentium/pkg/agierr"
)

// agentKeyPrefix identifies service-to-service credentials issued to a
// specific agent, sent via the X-API-Key header, adapted from the teacher's
// API key pattern (§6: bearer credential resolved to an "acting agent").
const agentKeyPrefix = "agtm_"

// AgentKey is a hashed service-to-service credential bound to one agent's
// tier_id, never to a human principal.
type AgentKey struct {
	ID          uuid.UUID
	AgentTierID string
	KeyHash     string
	KeyPrefix   string
	Description string
	LastUsedAt  *time.Time
	ExpiresAt   *time.Time
	CreatedAt   time.Time
}

// AgentKeyStore provides database operations for agent service keys.
type AgentKeyStore struct {
	dbtx dbtx.DBTX
}

// NewAgentKeyStore creates an AgentKeyStore backed by the given database handle.
func NewAgentKeyStore(db dbtx.DBTX) *AgentKeyStore {
	return &AgentKeyStore{dbtx: db}
}

const agentKeyColumns = `id, agent_tier_id, key_hash, key_prefix, description, last_used_at, expires_at, created_at`

func scanAgentKey(row pgx.Row) (AgentKey, error) {
	var k AgentKey
	err := row.Scan(&k.ID, &k.AgentTierID, &k.KeyHash, &k.KeyPrefix, &k.Description,
		&k.LastUsedAt, &k.ExpiresAt, &k.CreatedAt)
	return k, err
}

// Create generates a new raw key, stores only its hash, and returns the raw
// value once — it is never retrievable again.
func (s *AgentKeyStore) Create(ctx context.Context, agentTierID, description string, expiresAt *time.Time) (raw string, key AgentKey, err error) {
	raw, hash, prefix := generateAgentKey()
	row := s.dbtx.QueryRow(ctx, `
		INSERT INTO agent_keys (id, agent_tier_id, key_hash, key_prefix, description, expires_at, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, now())
		RETURNING `+agentKeyColumns,
		agentTierID, hash, prefix, description, expiresAt,
	)
	key, err = scanAgentKey(row)
	if err != nil {
		return "", AgentKey{}, fmt.Errorf("creating agent key: %w", err)
	}
	return raw, key, nil
}

// GetByHash resolves a raw key's hash to its stored record, used on every
// authenticated request carrying an X-API-Key header.
func (s *AgentKeyStore) GetByHash(ctx context.Context, hash string) (AgentKey, error) {
	row := s.dbtx.QueryRow(ctx, `SELECT `+agentKeyColumns+` FROM agent_keys WHERE key_hash = $1`, hash)
	k, err := scanAgentKey(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AgentKey{}, agierr.New(agierr.KindNotFound, "agent key not found")
		}
		return AgentKey{}, fmt.Errorf("looking up agent key: %w", err)
	}
	return k, nil
}

// TouchLastUsed records the key's most recent successful use. Best-effort:
// callers should not fail the request if this write fails.
func (s *AgentKeyStore) TouchLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.dbtx.Exec(ctx, `UPDATE agent_keys SET last_used_at = now() WHERE id = $1`, id)
	return err
}

// Delete permanently revokes an agent key.
func (s *AgentKeyStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.dbtx.Exec(ctx, `DELETE FROM agent_keys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting agent key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return agierr.New(agierr.KindNotFound, "agent key not found")
	}
	return nil
}

// generateAgentKey creates a random raw key, its SHA-256 hash for storage,
// and a short prefix for display — the teacher's pkg/apikey pattern.
func generateAgentKey() (raw, hash, prefix string) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	raw = fmt.Sprintf("%s%x", agentKeyPrefix, b)
	h := sha256.Sum256([]byte(raw))
	hash = hex.EncodeToString(h[:])
	prefix = raw[:len(agentKeyPrefix)+8]
	return
}
