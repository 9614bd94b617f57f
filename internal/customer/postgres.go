package customer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectCustomerColumns = `SELECT id, email, password_hash, first_name, last_name, role, created_at FROM customers`

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (Customer, error) {
	return r.getOne(ctx, selectCustomerColumns+` WHERE email = $1`, email)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (Customer, error) {
	return r.getOne(ctx, selectCustomerColumns+` WHERE id = $1`, id)
}

func (r *PostgresRepository) getOne(ctx context.Context, q string, arg string) (Customer, error) {
	var c Customer
	err := r.db.QueryRowContext(ctx, q, arg).
		Scan(&c.ID, &c.Email, &c.PasswordHash, &c.FirstName, &c.LastName, &c.Role, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Customer{}, ErrNotFound
	}
	if err != nil {
		return Customer{}, fmt.Errorf("get customer: %w", err)
	}
	return c, nil
}

const insertCustomerQuery = `
INSERT INTO customers (id, email, password_hash, first_name, last_name, role)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at`

func (r *PostgresRepository) Create(ctx context.Context, c Customer) (Customer, error) {
	err := r.db.QueryRowContext(ctx, insertCustomerQuery,
		c.ID, c.Email, c.PasswordHash, c.FirstName, c.LastName, c.Role,
	).Scan(&c.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Customer{}, ErrEmailTaken
		}
		return Customer{}, fmt.Errorf("insert customer: %w", err)
	}
	return c, nil
}
