// Package customer owns storefront customer credentials: lookup, registration, password checks.
package customer

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("customer: not found")
	ErrEmailTaken         = errors.New("customer: email already registered")
	ErrInvalidCredentials = errors.New("customer: invalid email or password")
	ErrInvalidInput       = errors.New("customer: invalid input")
)

const RoleCustomer = "customer"

type Customer struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         string
	CreatedAt    time.Time
}

type Repository interface {
	GetByEmail(ctx context.Context, email string) (Customer, error)
	GetByID(ctx context.Context, id string) (Customer, error)
	Create(ctx context.Context, c Customer) (Customer, error)
}
