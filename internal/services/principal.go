package services

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/AnshRaj112/palchat-backend/internal/models"
	"github.com/AnshRaj112/palchat-backend/pkg/apperr"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// PrincipalProvider hands out the anonymous technical identity a device uses
// before and after anyone signs in on it.
type PrincipalProvider interface {
	// GetOrCreateAnonymousPrincipal returns the same principal for the same
	// device token every time.
	GetOrCreateAnonymousPrincipal(ctx context.Context, deviceToken string) (models.Principal, error)
	Exists(ctx context.Context, principalID string) (bool, error)
}

var errDeviceTokenRequired = apperr.Validation("device token is required")

// PostgresPrincipals stores principals in the principals table.
type PostgresPrincipals struct {
	db *sql.DB
}

func NewPostgresPrincipals(db *sql.DB) *PostgresPrincipals {
	return &PostgresPrincipals{db: db}
}

func (p *PostgresPrincipals) GetOrCreateAnonymousPrincipal(ctx context.Context, deviceToken string) (models.Principal, error) {
	if deviceToken == "" {
		return models.Principal{}, errDeviceTokenRequired
	}

	var id string
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO principals (device_token) VALUES ($1)
		ON CONFLICT (device_token) DO UPDATE SET last_seen = NOW()
		RETURNING id`, deviceToken).Scan(&id)
	if err != nil {
		return models.Principal{}, apperr.Store(err)
	}
	return models.Principal{ID: id, DeviceToken: deviceToken}, nil
}

func (p *PostgresPrincipals) Exists(ctx context.Context, principalID string) (bool, error) {
	if _, err := uuid.Parse(principalID); err != nil {
		return false, nil
	}
	var exists bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM principals WHERE id = $1)`, principalID).Scan(&exists)
	if err != nil {
		return false, apperr.Store(err)
	}
	return exists, nil
}

// MemoryPrincipals is the in-process provider used with the memory store.
type MemoryPrincipals struct {
	mu       sync.Mutex
	byDevice map[string]string
	ids      map[string]struct{}
}

func NewMemoryPrincipals() *MemoryPrincipals {
	return &MemoryPrincipals{byDevice: map[string]string{}, ids: map[string]struct{}{}}
}

func (m *MemoryPrincipals) GetOrCreateAnonymousPrincipal(_ context.Context, deviceToken string) (models.Principal, error) {
	if deviceToken == "" {
		return models.Principal{}, errDeviceTokenRequired
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byDevice[deviceToken]
	if !ok {
		id = uuid.NewString()
		m.byDevice[deviceToken] = id
		m.ids[id] = struct{}{}
	}
	return models.Principal{ID: id, DeviceToken: deviceToken}, nil
}

func (m *MemoryPrincipals) Exists(_ context.Context, principalID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.ids[principalID]
	return ok, nil
}

const tokenIssuer = "palchat"

var errInvalidToken = apperr.Unauthenticated("invalid or expired token")

// PrincipalTokens signs and checks the bearer tokens that carry a principal
// id between requests.
type PrincipalTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewPrincipalTokens(secret string, ttl time.Duration) *PrincipalTokens {
	return &PrincipalTokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (t *PrincipalTokens) Issue(principalID string) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   principalID,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Parse returns the principal id carried by a valid token.
func (t *PrincipalTokens) Parse(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || claims.Subject == "" {
		return "", errInvalidToken
	}
	return claims.Subject, nil
}
