// Package auth issues and verifies the admin tokens that unlock privileged
// hub actions such as the global jumpscare and message moderation.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/Tyrowin/hangout/internal/platform/errors"
)

// DefaultIssuer is used when no issuer is configured.
const DefaultIssuer = "hangout"

// AdminConfig defines how admin tokens are signed and verified.
type AdminConfig struct {
	Secret []byte
	Issuer string
	Now    func() time.Time
}

// AdminClaims captures validated admin token claims.
type AdminClaims struct {
	Subject   string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type adminClaims struct {
	jwt.RegisteredClaims
	Admin bool `json:"admin"`
}

// Enabled reports whether a signing secret is configured.
func (c AdminConfig) Enabled() bool {
	return len(c.Secret) > 0
}

func (c AdminConfig) normalized() AdminConfig {
	if c.Now == nil {
		c.Now = time.Now
	}
	if strings.TrimSpace(c.Issuer) == "" {
		c.Issuer = DefaultIssuer
	}
	return c
}

// IssueAdminToken signs an HS256 admin token for subject valid for ttl.
func IssueAdminToken(cfg AdminConfig, subject string, ttl time.Duration) (string, error) {
	cfg = cfg.normalized()
	if !cfg.Enabled() {
		return "", errors.New("admin token secret is not configured")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("admin token subject is required")
	}
	if ttl <= 0 {
		return "", errors.New("admin token ttl must be positive")
	}

	now := cfg.Now().UTC()
	claims := adminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Admin: true,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign admin token: %w", err)
	}
	return signed, nil
}

// ValidateAdminToken verifies signature, issuer, expiry and the admin claim.
// A missing token is Unauthenticated; any other rejection is Forbidden.
func ValidateAdminToken(token string, cfg AdminConfig) (AdminClaims, error) {
	cfg = cfg.normalized()
	token = strings.TrimSpace(token)
	if token == "" {
		return AdminClaims{}, apperrors.New(apperrors.CodeUnauthenticated, "admin token is required")
	}
	if !cfg.Enabled() {
		return AdminClaims{}, apperrors.New(apperrors.CodeForbidden, "admin actions are disabled")
	}

	var parsed adminClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return AdminClaims{}, mapJWTError(err)
	}

	if parsed.Issuer != cfg.Issuer {
		return AdminClaims{}, apperrors.New(apperrors.CodeForbidden, "admin token issuer mismatch")
	}
	if !parsed.Admin {
		return AdminClaims{}, apperrors.New(apperrors.CodeForbidden, "token does not grant admin")
	}
	if parsed.ExpiresAt == nil {
		return AdminClaims{}, apperrors.New(apperrors.CodeForbidden, "admin token exp is required")
	}
	now := cfg.Now().UTC()
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(now) {
		return AdminClaims{}, apperrors.New(apperrors.CodeForbidden, "admin token is expired")
	}

	claims := AdminClaims{
		Subject:   parsed.Subject,
		Issuer:    parsed.Issuer,
		ExpiresAt: exp,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, nil
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

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return apperrors.Wrap(apperrors.CodeForbidden, "admin token is malformed", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return apperrors.Wrap(apperrors.CodeForbidden, "admin token signature is invalid", err)
	default:
		return apperrors.Wrap(apperrors.CodeForbidden, "admin token is invalid", err)
	}
}
