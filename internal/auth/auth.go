package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"marketplace/internal/domain"
	"marketplace/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the JWT body: sub, role, name, sid plus the registered claims.
type Claims struct {
	jwt.RegisteredClaims

	Role      string `json:"role"`
	Name      string `json:"name,omitempty"`
	SessionID string `json:"sid"`
}

// Manager issues HS256 tokens and resolves them back into sessions. A token
// is only accepted while its sid is present in the session store.
type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	store  domain.SessionRepository
	now    func() time.Time
}

func NewManager(secret, issuer string, ttl time.Duration, store domain.SessionRepository) *Manager {
	if ttl <= 0 {
		ttl = time.Duration(models.DefaultSessionTTL) * time.Second
	}
	return &Manager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		store:  store,
		now:    time.Now,
	}
}

// Issue creates a session record and returns the signed token for it.
func (m *Manager) Issue(ctx context.Context, userID string, role models.Role, name string) (string, *models.Session, error) {
	if userID == "" {
		return "", nil, fmt.Errorf("%w: user id is required", models.ErrValidation)
	}
	if _, err := models.ParseRole(string(role)); err != nil {
		return "", nil, err
	}

	now := m.now().UTC().Truncate(time.Second)
	session := &models.Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		Role:        role,
		DisplayName: name,
		IssuedAt:    now,
		ExpiresAt:   now.Add(m.ttl),
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
		Role:      string(role),
		Name:      name,
		SessionID: session.ID,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}

	if err := m.store.SaveSession(ctx, session, m.ttl); err != nil {
		return "", nil, fmt.Errorf("save session: %w", err)
	}
	return token, session, nil
}

// Authenticate verifies the token and returns the live session.
// Every rejection wraps models.ErrUnauthenticated.
func (m *Manager) Authenticate(ctx context.Context, token string) (*models.Session, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", models.ErrUnauthenticated)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	parser := jwt.NewParser(opts...)

	claims := &Claims{}
	tok, err := parser.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token expired", models.ErrUnauthenticated)
		}
		return nil, fmt.Errorf("%w: %v", models.ErrUnauthenticated, err)
	}
	if !tok.Valid || claims.SessionID == "" || claims.Subject == "" {
		return nil, fmt.Errorf("%w: invalid token", models.ErrUnauthenticated)
	}

	role, err := models.ParseRole(claims.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUnauthenticated, err)
	}

	session, err := m.store.GetSession(ctx, claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: session revoked", models.ErrUnauthenticated)
	}
	if session.UserID != claims.Subject || session.Role != role {
		return nil, fmt.Errorf("%w: session mismatch", models.ErrUnauthenticated)
	}
	if session.Expired(m.now()) {
		return nil, fmt.Errorf("%w: session expired", models.ErrUnauthenticated)
	}
	return session, nil
}

// Revoke drops the session so its token stops working.
func (m *Manager) Revoke(ctx context.Context, sessionID string) error {
	return m.store.DeleteSession(ctx, sessionID)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	header = strings.TrimSpace(header)
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
