package authz

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"nexteach.org/internal/obs"
)

const (
	// KeyPrefix identifies platform API keys on the wire.
	KeyPrefix = "ne"
	// keyRandomBytes yields 43 base64url characters, comfortably past the
	// 32-character floor for guessing resistance.
	keyRandomBytes = 32
	// DisplayPrefixLen is how much of the plaintext is kept for display.
	DisplayPrefixLen = 12

	EnvironmentLive = "live"
	EnvironmentTest = "test"

	defaultTouchTimeout = 5 * time.Second
)

// knownScopes is the closed scope vocabulary for bearer keys. It shares
// string values with the permission catalog today but stays a separate set:
// a key's authority is its own grant, not a proxy for any user's role.
var knownScopes = func() map[string]struct{} {
	set := make(map[string]struct{}, len(BuiltinPermissions))
	for _, p := range BuiltinPermissions {
		set[p.Code] = struct{}{}
	}
	return set
}()

// GenerateKey produces a plaintext key of the form ne_{environment}_{random}.
// The random part is drawn from crypto/rand and base64url-encoded, so no
// '+', '/' or '=' ever appears in a key.
func GenerateKey(environment string) (string, error) {
	environment = strings.TrimSpace(environment)
	if environment == "" {
		environment = EnvironmentLive
	}
	if environment != EnvironmentLive && environment != EnvironmentTest {
		return "", fmt.Errorf("%w: unsupported key environment %s", ErrInvalidInput, environment)
	}
	buf := make([]byte, keyRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate key material: %w", err)
	}
	return fmt.Sprintf("%s_%s_%s", KeyPrefix, environment, base64.RawURLEncoding.EncodeToString(buf)), nil
}

// HashKey computes the SHA-256 digest of a plaintext key. Lookup is an
// equality match on this hash, never a reversal.
func HashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// DisplayPrefix returns the identifying head of a plaintext key.
func DisplayPrefix(plaintext string) string {
	if len(plaintext) <= DisplayPrefixLen {
		return plaintext
	}
	return plaintext[:DisplayPrefixLen]
}

// HasScope reports whether requiredScope is among grantedScopes.
func HasScope(grantedScopes []string, requiredScope string) bool {
	for _, s := range grantedScopes {
		if s == requiredScope {
			return true
		}
	}
	return false
}

// APIKeyService manages the bearer key lifecycle.
type APIKeyService struct {
	store        Store
	now          func() time.Time
	touchTimeout time.Duration
	touchSync    bool
}

// APIKeyOption configures APIKeyService.
type APIKeyOption func(*APIKeyService)

// WithKeyClock overrides the time source (useful for tests).
func WithKeyClock(fn func() time.Time) APIKeyOption {
	return func(s *APIKeyService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithTouchTimeout bounds the background last_used_at write.
func WithTouchTimeout(d time.Duration) APIKeyOption {
	return func(s *APIKeyService) {
		if d > 0 {
			s.touchTimeout = d
		}
	}
}

// WithSynchronousTouch makes the last_used_at write block inside
// ValidateAPIKey. Tests use it to avoid racing the background goroutine.
func WithSynchronousTouch() APIKeyOption {
	return func(s *APIKeyService) {
		s.touchSync = true
	}
}

// NewAPIKeyService constructs an APIKeyService.
func NewAPIKeyService(store Store, opts ...APIKeyOption) (*APIKeyService, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: api key store is required", ErrInvalidInput)
	}
	svc := &APIKeyService{
		store:        store,
		now:          time.Now,
		touchTimeout: defaultTouchTimeout,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// ValidateScopes rejects any scope absent from the known vocabulary, naming
// every invalid entry.
func ValidateScopes(scopes []string) error {
	var invalid []string
	for _, s := range scopes {
		if _, ok := knownScopes[s]; !ok {
			invalid = append(invalid, s)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("%w: unknown scopes: %s", ErrInvalidInput, strings.Join(invalid, ", "))
	}
	return nil
}

// CreateAPIKey generates a key, persists its hash and prefix, and returns
// the plaintext exactly once. The plaintext is never logged or stored.
func (s *APIKeyService) CreateAPIKey(ctx context.Context, in CreateKeyInput) (*CreatedKey, error) {
	in.OrganizationID = strings.TrimSpace(in.OrganizationID)
	in.UserID = strings.TrimSpace(in.UserID)
	in.Name = strings.TrimSpace(in.Name)
	if in.OrganizationID == "" || in.UserID == "" {
		return nil, fmt.Errorf("%w: organization_id and user_id are required", ErrInvalidInput)
	}
	if in.Name == "" {
		return nil, fmt.Errorf("%w: key name is required", ErrInvalidInput)
	}
	scopes := dedupeCodes(in.Scopes)
	if len(scopes) == 0 {
		return nil, fmt.Errorf("%w: at least one scope is required", ErrInvalidInput)
	}
	if err := ValidateScopes(scopes); err != nil {
		return nil, err
	}
	if in.ExpiresInDays < 0 {
		return nil, fmt.Errorf("%w: expires_in_days must be positive", ErrInvalidInput)
	}

	plaintext, err := GenerateKey(in.Environment)
	if err != nil {
		return nil, err
	}

	key := &APIKey{
		OrganizationID: in.OrganizationID,
		UserID:         in.UserID,
		Name:           in.Name,
		KeyPrefix:      DisplayPrefix(plaintext),
		KeyHash:        HashKey(plaintext),
		Scopes:         scopes,
		IsActive:       true,
	}
	if in.ExpiresInDays > 0 {
		expires := s.now().UTC().AddDate(0, 0, in.ExpiresInDays)
		key.ExpiresAt = &expires
	}
	if err := s.store.APIKeys(ctx).Create(ctx, key); err != nil {
		return nil, err
	}
	return &CreatedKey{Key: key, PlaintextKey: plaintext}, nil
}

// ValidateAPIKey checks a plaintext key and returns the joined record with
// its organization and creator. Unknown, revoked and expired keys all
// surface as ErrInvalidCredential. On success the last_used_at timestamp is
// touched off the critical path; a failed touch never affects the result.
func (s *APIKeyService) ValidateAPIKey(ctx context.Context, plaintext string) (*ValidatedKey, error) {
	plaintext = strings.TrimSpace(plaintext)
	if plaintext == "" || !strings.HasPrefix(plaintext, KeyPrefix+"_") {
		obs.APIKeyValidations.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidCredential
	}

	match, err := s.store.APIKeys(ctx).FindByHash(ctx, HashKey(plaintext))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.APIKeyValidations.WithLabelValues("invalid").Inc()
			return nil, ErrInvalidCredential
		}
		obs.APIKeyValidations.WithLabelValues("error").Inc()
		obs.LogError("authz.apikey.lookup", err, nil)
		return nil, err
	}
	if !match.Key.IsActive {
		obs.APIKeyValidations.WithLabelValues("revoked").Inc()
		return nil, ErrInvalidCredential
	}
	if match.Key.ExpiresAt != nil && match.Key.ExpiresAt.Before(s.now()) {
		obs.APIKeyValidations.WithLabelValues("expired").Inc()
		return nil, ErrInvalidCredential
	}

	obs.APIKeyValidations.WithLabelValues("ok").Inc()
	if s.touchSync {
		s.touchLastUsed(match.Key.ID)
	} else {
		go s.touchLastUsed(match.Key.ID)
	}
	return match, nil
}

// touchLastUsed is deliberately detached from the caller's context: staleness
// of last_used_at is acceptable, added authorization latency is not.
func (s *APIKeyService) touchLastUsed(keyID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.touchTimeout)
	defer cancel()
	if err := s.store.APIKeys(ctx).TouchLastUsed(ctx, keyID, s.now().UTC()); err != nil {
		obs.LogError("authz.apikey.touch", err, map[string]any{"key_id": keyID})
	}
}

// ListAPIKeys returns all keys for the organization, newest first, with
// creator display info. Hashes never leave the store layer's projection.
func (s *APIKeyService) ListAPIKeys(ctx context.Context, organizationID string) ([]*APIKey, error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organization_id is required", ErrInvalidInput)
	}
	return s.store.APIKeys(ctx).ListByOrg(ctx, organizationID)
}

// RevokeAPIKey flips the key inactive. Revocation is idempotent and scoped
// to the organization.
func (s *APIKeyService) RevokeAPIKey(ctx context.Context, organizationID, keyID string) error {
	organizationID = strings.TrimSpace(organizationID)
	keyID = strings.TrimSpace(keyID)
	if organizationID == "" || keyID == "" {
		return fmt.Errorf("%w: organization_id and key_id are required", ErrInvalidInput)
	}
	return s.store.APIKeys(ctx).Revoke(ctx, organizationID, keyID)
}

// DeleteAPIKey permanently removes the key record, same organization scoping.
func (s *APIKeyService) DeleteAPIKey(ctx context.Context, organizationID, keyID string) error {
	organizationID = strings.TrimSpace(organizationID)
	keyID = strings.TrimSpace(keyID)
	if organizationID == "" || keyID == "" {
		return fmt.Errorf("%w: organization_id and key_id are required", ErrInvalidInput)
	}
	return s.store.APIKeys(ctx).Delete(ctx, organizationID, keyID)
}
