package httpapi

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidSession covers malformed, mis-signed and expired session tokens.
var ErrInvalidSession = errors.New("invalid session token")

// SessionClaims is the payload the platform's identity service signs into a
// session token. This subsystem only verifies; it never issues tokens.
type SessionClaims struct {
	OrganizationID string `json:"org"`
	jwt.RegisteredClaims
}

// SessionVerifier validates HS256 session tokens from the identity
// collaborator and extracts the (user, organization) pair.
type SessionVerifier struct {
	secret []byte
	issuer string
}

// NewSessionVerifier constructs a verifier. An empty secret disables session
// authentication (API keys remain usable).
func NewSessionVerifier(secret, issuer string) *SessionVerifier {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	return &SessionVerifier{secret: []byte(secret), issuer: strings.TrimSpace(issuer)}
}

// Verify parses and validates a session token, returning the caller identity.
func (v *SessionVerifier) Verify(token string) (userID, organizationID string, err error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	var claims SessionClaims
	parsed, parseErr := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, parserOpts...)
	if parseErr != nil || !parsed.Valid {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidSession, parseErr)
	}
	userID = strings.TrimSpace(claims.Subject)
	organizationID = strings.TrimSpace(claims.OrganizationID)
	if userID == "" || organizationID == "" {
		return "", "", fmt.Errorf("%w: missing subject or org claim", ErrInvalidSession)
	}
	return userID, organizationID, nil
}
