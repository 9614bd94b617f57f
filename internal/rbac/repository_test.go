package rbac

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresKeyRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresKeyRepository(db), mock
}

const findQ = `(?s)SELECT id, label, role, created_at, revoked_at\s+FROM agent_api_keys\s+WHERE key_hash = \$1 AND revoked_at IS NULL`

func TestFindActiveByHash_Found(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(findQ).
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows([]string{"id", "label", "role", "created_at", "revoked_at"}).
			AddRow("k-1", "pricing-bot", "agent:write", created, nil))

	k, err := repo.FindActiveByHash(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, AgentKey{ID: "k-1", Label: "pricing-bot", Role: "agent:write", CreatedAt: created}, k)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindActiveByHash_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(findQ).WithArgs("abc").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindActiveByHash(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestFindActiveByHash_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(findQ).WithArgs("abc").WillReturnError(errors.New("db down"))

	_, err := repo.FindActiveByHash(context.Background(), "abc")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrKeyNotFound)
	assert.Contains(t, err.Error(), "db down")
}

func TestCreate(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`(?s)INSERT INTO agent_api_keys \(id, label, key_hash, role\)\s+VALUES \(\$1, \$2, \$3, \$4\)\s+RETURNING created_at`).
		WithArgs(sqlmock.AnyArg(), "crawler", "hash", "agent:read").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	k, err := repo.Create(context.Background(), "crawler", RoleRead, "hash")
	require.NoError(t, err)
	assert.NotEmpty(t, k.ID)
	assert.Equal(t, "agent:read", k.Role)
	assert.Equal(t, created, k.CreatedAt)

	_, err = repo.Create(context.Background(), "crawler", RoleNone, "hash")
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRevoke(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	const id = "6f1c1f7c-3a53-4e0e-9a1b-6c1b2f0b9d11"
	const q = `(?s)UPDATE agent_api_keys\s+SET revoked_at = now\(\)\s+WHERE id = \$1 AND revoked_at IS NULL`

	mock.ExpectExec(q).WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Revoke(context.Background(), id))

	mock.ExpectExec(q).WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Revoke(context.Background(), id), ErrKeyNotFound)

	assert.ErrorIs(t, repo.Revoke(context.Background(), "not-a-uuid"), ErrKeyNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
