package authz

import (
	"context"
	"time"
)

// Store describes persistence operations required by the authorization
// subsystem. Every query is scoped by organization id; cross-tenant lookups
// surface as ErrNotFound.
type Store interface {
	Permissions(ctx context.Context) PermissionStore
	Roles(ctx context.Context) RoleStore
	Members(ctx context.Context) MemberStore
	APIKeys(ctx context.Context) APIKeyStore
}

// PermissionStore manages the read-only permission catalog.
type PermissionStore interface {
	Ensure(ctx context.Context, perms []Permission) error
	List(ctx context.Context) ([]Permission, error)
}

// RoleStore manages organization roles.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, organizationID, roleID string) (*Role, error)
	ListByOrg(ctx context.Context, organizationID string) ([]*Role, error)
	Update(ctx context.Context, organizationID, roleID string, upd RoleUpdate) (*Role, error)
	Delete(ctx context.Context, organizationID, roleID string) error
}

// MemberStore manages the member→role link and its append-only history.
type MemberStore interface {
	Find(ctx context.Context, organizationID, userID string) (*Member, error)
	// SetRole updates the member's role_id and appends the history row in
	// one transaction, deriving the action from the before/after values.
	SetRole(ctx context.Context, organizationID, userID string, roleID *string, changedBy string) (*RoleAssignment, error)
	History(ctx context.Context, organizationID string, f HistoryFilter) ([]RoleAssignment, error)
	CountByRole(ctx context.Context, organizationID string) (map[string]int, error)
	CountWithRole(ctx context.Context, organizationID, roleID string) (int, error)
}

// APIKeyStore manages bearer key records.
type APIKeyStore interface {
	Create(ctx context.Context, key *APIKey) error
	// FindByHash joins the owning organization and creator onto the match.
	FindByHash(ctx context.Context, keyHash string) (*ValidatedKey, error)
	ListByOrg(ctx context.Context, organizationID string) ([]*APIKey, error)
	TouchLastUsed(ctx context.Context, keyID string, at time.Time) error
	Revoke(ctx context.Context, organizationID, keyID string) error
	Delete(ctx context.Context, organizationID, keyID string) error
}
