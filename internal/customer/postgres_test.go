package customer

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

var customerCols = []string{"id", "email", "password_hash", "first_name", "last_name", "role", "created_at"}

func TestGetByEmail(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, email, password_hash, first_name, last_name, role, created_at FROM customers WHERE email = \$1`).
		WithArgs("a@example.com").
		WillReturnRows(sqlmock.NewRows(customerCols).AddRow("c-1", "a@example.com", "hash", "A", "B", "customer", created))

	c, err := repo.GetByEmail(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "c-1", c.ID)
	assert.Equal(t, created, c.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`FROM customers WHERE id = \$1`).WithArgs("c-404").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "c-404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreate_MapsUniqueViolation(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	const q = `INSERT INTO customers \(id, email, password_hash, first_name, last_name, role\)`

	mock.ExpectQuery(q).
		WithArgs("c-1", "a@example.com", "hash", "A", "B", "customer").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	_, err := repo.Create(context.Background(), Customer{ID: "c-1", Email: "a@example.com", PasswordHash: "hash", FirstName: "A", LastName: "B", Role: "customer"})
	require.NoError(t, err)

	mock.ExpectQuery(q).WillReturnError(&pgconn.PgError{Code: "23505"})
	_, err = repo.Create(context.Background(), Customer{ID: "c-2", Email: "a@example.com"})
	assert.ErrorIs(t, err, ErrEmailTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}
