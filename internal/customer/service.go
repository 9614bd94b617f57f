package customer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	// bcrypt only hashes the first 72 bytes and rejects longer input.
	maxPasswordLength = 72
)

type Service struct {
	repo  Repository
	cost  int
	log   *slog.Logger
	dummy []byte
}

// NewService builds the service. cost 0 means bcrypt.DefaultCost.
func NewService(repo Repository, cost int, log *slog.Logger) (*Service, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if log == nil {
		log = slog.Default()
	}
	// Compared against when the email is unknown so both paths cost the same.
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("hash dummy password: %w", err)
	}
	return &Service{repo: repo, cost: cost, log: log, dummy: dummy}, nil
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (Customer, error) {
	email := normalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return Customer{}, fmt.Errorf("%w: a valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.FirstName) == "" || strings.TrimSpace(in.LastName) == "" {
		return Customer{}, fmt.Errorf("%w: first and last name are required", ErrInvalidInput)
	}
	if err := ValidatePassword(in.Password); err != nil {
		return Customer{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return Customer{}, fmt.Errorf("hash password: %w", err)
	}

	c, err := s.repo.Create(ctx, Customer{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         RoleCustomer,
	})
	if err != nil {
		return Customer{}, err
	}

	s.log.InfoContext(ctx, "customer registered", slog.String("customer_id", c.ID))
	return c, nil
}

// Authenticate returns the customer for valid credentials, or ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Customer, error) {
	c, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummy, []byte(password))
		return Customer{}, ErrInvalidCredentials
	}
	if err != nil {
		return Customer{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)); err != nil {
		return Customer{}, ErrInvalidCredentials
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, id string) (Customer, error) {
	return s.repo.GetByID(ctx, id)
}

// ValidatePassword checks the minimum complexity for new passwords.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	if len(password) > maxPasswordLength {
		return fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidInput, maxPasswordLength)
	}
	var hasUpper, hasDigit bool
	for _, ch := range password {
		switch {
		case unicode.IsUpper(ch):
			hasUpper = true
		case unicode.IsDigit(ch):
			hasDigit = true
		}
	}
	if !hasUpper || !hasDigit {
		return fmt.Errorf("%w: password must contain at least one uppercase letter and one digit", ErrInvalidInput)
	}
	return nil
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}
