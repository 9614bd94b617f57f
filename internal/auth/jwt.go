package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"storefront-gateway/internal/config"
	"storefront-gateway/internal/kvstore"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidSignature covers every structural failure: bad signature, wrong method,
	// wrong token type, malformed input, missing claims.
	ErrInvalidSignature = errors.New("auth: invalid token")
	ErrExpired          = errors.New("auth: token expired")
	ErrRevoked          = errors.New("auth: token revoked")

	// ErrRevocationUnavailable means the blacklist could not be consulted or written.
	// A verification that hits it must be treated as a failure.
	ErrRevocationUnavailable = errors.New("auth: revocation store unavailable")
)

const blacklistPrefix = "sf:jwt:blacklist:"

type Manager struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	audience      string
	accessTTL     time.Duration
	refreshTTL    time.Duration

	revocations kvstore.Store
	now         func() time.Time
}

type Option func(*Manager)

// WithClock overrides the time source used for issuing and verifying tokens.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(cfg config.AuthConfig, revocations kvstore.Store, opts ...Option) (*Manager, error) {
	if cfg.AccessSecret == "" {
		return nil, errors.New("JWT_ACCESS_SECRET is required")
	}
	if cfg.RefreshSecret == "" {
		return nil, errors.New("JWT_REFRESH_SECRET is required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if revocations == nil {
		return nil, errors.New("revocation store is required")
	}

	m := &Manager{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		issuer:        cfg.Issuer,
		audience:      cfg.Audience,
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		revocations:   revocations,
		now:           time.Now,
	}
	if m.accessTTL <= 0 {
		m.accessTTL = 15 * time.Minute
	}
	if m.refreshTTL <= 0 {
		m.refreshTTL = 7 * 24 * time.Hour
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

func (m *Manager) AccessTTL() time.Duration  { return m.accessTTL }
func (m *Manager) RefreshTTL() time.Duration { return m.refreshTTL }

/* ===================== ISSUE TOKENS ===================== */

// GenerateTokenPair signs a fresh access/refresh pair for p.Subject.
func (m *Manager) GenerateTokenPair(p TokenPayload) (TokenPair, error) {
	if p.Subject == "" {
		return TokenPair{}, errors.New("subject is required")
	}
	now := m.now()

	access, accessExp, err := m.issue(now, TokenTypeAccess, p, m.accessTTL, m.accessSecret)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := m.issue(now, TokenTypeRefresh, p, m.refreshTTL, m.refreshSecret)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

/* ===================== VERIFY TOKENS ===================== */

// VerifyAccessToken checks signature, expiry and token type. It never consults the blacklist.
func (m *Manager) VerifyAccessToken(token string) (TokenPayload, error) {
	claims, err := m.verify(token, TokenTypeAccess, m.accessSecret)
	if err != nil {
		return TokenPayload{}, err
	}
	return claims.payload(), nil
}

// VerifyRefreshToken checks the token like VerifyAccessToken, then the blacklist.
// A blacklist that cannot be read fails the verification.
func (m *Manager) VerifyRefreshToken(ctx context.Context, token string) (TokenPayload, error) {
	claims, err := m.verify(token, TokenTypeRefresh, m.refreshSecret)
	if err != nil {
		return TokenPayload{}, err
	}

	revoked, err := m.revocations.Exists(ctx, blacklistKey(token))
	if err != nil {
		return TokenPayload{}, fmt.Errorf("%w: %w", ErrRevocationUnavailable, err)
	}
	if revoked {
		return TokenPayload{}, ErrRevoked
	}
	return claims.payload(), nil
}

/* ===================== REVOKE / ROTATE ===================== */

// RevokeRefreshToken blacklists token until its own expiry.
// Malformed or already expired tokens are a no-op.
func (m *Manager) RevokeRefreshToken(ctx context.Context, token string) error {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil
	}
	if claims.ExpiresAt == nil {
		return nil
	}

	ttl := claims.ExpiresAt.Sub(m.now())
	if ttl <= 0 {
		return nil
	}
	// The token is unverified here, so its exp cannot be trusted beyond what we would issue.
	if ttl > m.refreshTTL {
		ttl = m.refreshTTL
	}

	if err := m.revocations.Set(ctx, blacklistKey(token), "1", ttl); err != nil {
		return fmt.Errorf("%w: %w", ErrRevocationUnavailable, err)
	}
	return nil
}

// Rotate exchanges a valid refresh token for a new pair and revokes the old one.
// No pair is returned unless the revocation write succeeded.
func (m *Manager) Rotate(ctx context.Context, refreshToken string) (TokenPair, error) {
	p, err := m.VerifyRefreshToken(ctx, refreshToken)
	if err != nil {
		return TokenPair{}, err
	}

	pair, err := m.GenerateTokenPair(p)
	if err != nil {
		return TokenPair{}, err
	}

	if err := m.RevokeRefreshToken(ctx, refreshToken); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

/* ===================== INTERNAL ===================== */

func (m *Manager) verify(token string, expected TokenType, secret []byte) (Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}

	var claims Claims
	_, err := jwt.NewParser(opts...).ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	if claims.TokenType != expected {
		return Claims{}, fmt.Errorf("%w: token_type mismatch", ErrInvalidSignature)
	}
	if claims.Subject == "" {
		return Claims{}, fmt.Errorf("%w: subject missing", ErrInvalidSignature)
	}
	return claims, nil
}

func (m *Manager) issue(now time.Time, tokenType TokenType, p TokenPayload, ttl time.Duration, secret []byte) (string, time.Time, error) {
	exp := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Subject,
			Issuer:    m.issuer,
			Audience:  audienceOrNil(m.audience),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			// A unique jti keeps a rotated token distinct from its predecessor.
			ID: uuid.NewString(),
		},
		Email:     p.Email,
		Role:      p.Role,
		TokenType: tokenType,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return signed, jwt.NewNumericDate(exp).UTC(), nil
}

func blacklistKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return blacklistPrefix + hex.EncodeToString(sum[:])
}

func audienceOrNil(aud string) jwt.ClaimStrings {
	if aud == "" {
		return nil
	}
	return jwt.ClaimStrings{aud}
}
