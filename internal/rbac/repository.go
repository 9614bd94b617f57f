package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrKeyNotFound = errors.New("rbac: agent key not found")

// AgentKey is a stored agent credential. Role is kept as stored so the gate can reject garbage.
type AgentKey struct {
	ID        string
	Label     string
	Role      string
	CreatedAt time.Time
	RevokedAt *time.Time
}

type KeyRepository interface {
	// FindActiveByHash returns the unrevoked key with this hash, or ErrKeyNotFound.
	FindActiveByHash(ctx context.Context, keyHash string) (AgentKey, error)
	Create(ctx context.Context, label string, role Role, keyHash string) (AgentKey, error)
	// Revoke marks the key revoked. Revoking an unknown or already revoked key is ErrKeyNotFound.
	Revoke(ctx context.Context, id string) error
}

// PostgresKeyRepository stores keys in agent_api_keys.
type PostgresKeyRepository struct {
	db *sql.DB
}

func NewPostgresKeyRepository(db *sql.DB) *PostgresKeyRepository {
	return &PostgresKeyRepository{db: db}
}

const findActiveKeyQuery = `
SELECT id, label, role, created_at, revoked_at
FROM agent_api_keys
WHERE key_hash = $1 AND revoked_at IS NULL`

func (r *PostgresKeyRepository) FindActiveByHash(ctx context.Context, keyHash string) (AgentKey, error) {
	var (
		k         AgentKey
		revokedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, findActiveKeyQuery, keyHash).
		Scan(&k.ID, &k.Label, &k.Role, &k.CreatedAt, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return AgentKey{}, ErrKeyNotFound
	}
	if err != nil {
		return AgentKey{}, fmt.Errorf("find agent key: %w", err)
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		k.RevokedAt = &t
	}
	return k, nil
}

const insertKeyQuery = `
INSERT INTO agent_api_keys (id, label, key_hash, role)
VALUES ($1, $2, $3, $4)
RETURNING created_at`

func (r *PostgresKeyRepository) Create(ctx context.Context, label string, role Role, keyHash string) (AgentKey, error) {
	if role == RoleNone {
		return AgentKey{}, errors.New("rbac: role is required")
	}
	k := AgentKey{ID: uuid.NewString(), Label: label, Role: role.String()}
	if err := r.db.QueryRowContext(ctx, insertKeyQuery, k.ID, label, keyHash, k.Role).Scan(&k.CreatedAt); err != nil {
		return AgentKey{}, fmt.Errorf("insert agent key: %w", err)
	}
	return k, nil
}

const revokeKeyQuery = `
UPDATE agent_api_keys
SET revoked_at = now()
WHERE id = $1 AND revoked_at IS NULL`

func (r *PostgresKeyRepository) Revoke(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrKeyNotFound
	}
	res, err := r.db.ExecContext(ctx, revokeKeyQuery, id)
	if err != nil {
		return fmt.Errorf("revoke agent key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke agent key: %w", err)
	}
	if n == 0 {
		return ErrKeyNotFound
	}
	return nil
}
