package principal

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/neurotech-brt/agentium/internal/dbtx"
	"github.com/neurotech-brt/agentium/pkg/agierr"
)

// Store provides database operations for principal accounts.
type Store struct {
	dbtx dbtx.DBTX
}

// NewStore creates a principal Store backed by the given database handle.
func NewStore(db dbtx.DBTX) *Store {
	return &Store{dbtx: db}
}

const principalColumns = `id, username, password_hash, role, created_at, updated_at`

func scanPrincipal(row pgx.Row) (Principal, error) {
	var p Principal
	var role string
	err := row.Scan(&p.ID, &p.Username, &p.PasswordHash, &role, &p.CreatedAt, &p.UpdatedAt)
	p.Role = Role(role)
	return p, err
}

// Create inserts a new principal account. passwordHash must already be bcrypt-hashed.
func (s *Store) Create(ctx context.Context, username, passwordHash string, role Role) (Principal, error) {
	row := s.dbtx.QueryRow(ctx, `
		INSERT INTO principals (id, username, password_hash, role, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, $2, $3, now(), now())
		RETURNING `+principalColumns,
		username, passwordHash, string(role),
	)
	p, err := scanPrincipal(row)
	if err != nil {
		return Principal{}, fmt.Errorf("creating principal: %w", err)
	}
	return p, nil
}

// GetByUsername looks up a principal by username.
func (s *Store) GetByUsername(ctx context.Context, username string) (Principal, error) {
	row := s.dbtx.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE username = $1`, username)
	p, err := scanPrincipal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, agierr.New(agierr.KindNotFound, "principal not found")
		}
		return Principal{}, fmt.Errorf("getting principal by username: %w", err)
	}
	return p, nil
}

// Get looks up a principal by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Principal, error) {
	row := s.dbtx.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE id = $1`, id)
	p, err := scanPrincipal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, agierr.New(agierr.KindNotFound, "principal not found")
		}
		return Principal{}, fmt.Errorf("getting principal: %w", err)
	}
	return p, nil
}
