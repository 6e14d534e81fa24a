package authz

import "time"

// Permission is an immutable catalog entry. The catalog is seeded once and
// never written by tenant actions.
type Permission struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category"`
	IsDangerous bool      `json:"is_dangerous"`
	CreatedAt   time.Time `json:"created_at"`
}

// Role is an organization-scoped set of permission codes. System roles
// (owner, admin, member) are pre-seeded and immutable through the
// management API.
type Role struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Color          string    `json:"color,omitempty"`
	IsSystem       bool      `json:"is_system"`
	IsDefault      bool      `json:"is_default"`
	Permissions    []string  `json:"permissions"`
	CreatedBy      string    `json:"created_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RoleInput carries the caller-supplied fields for role creation.
type RoleInput struct {
	Name        string
	Description string
	Color       string
	Permissions []string
	IsDefault   bool
}

// RoleUpdate applies a partial update. Nil fields are left untouched; a nil
// Permissions slice means "not provided" (an empty non-nil slice clears the
// set).
type RoleUpdate struct {
	Name        *string
	Description *string
	Color       *string
	Permissions []string
	IsDefault   *bool
}

// Member is the slice of the surrounding platform's membership record this
// subsystem reads and writes: the current role link. RoleID is authoritative
// when present; LegacyRole is the pre-migration role string.
type Member struct {
	UserID         string    `json:"user_id"`
	OrganizationID string    `json:"organization_id"`
	RoleID         *string   `json:"role_id,omitempty"`
	LegacyRole     string    `json:"role,omitempty"`
	JoinedAt       time.Time `json:"joined_at"`
}

// AssignmentAction describes a history row. It is derived from the
// before/after role values, never passed by the caller.
type AssignmentAction string

const (
	ActionAssigned AssignmentAction = "assigned"
	ActionChanged  AssignmentAction = "changed"
	ActionRemoved  AssignmentAction = "removed"
)

// RoleAssignment is an append-only audit record of one member role change.
type RoleAssignment struct {
	ID             string           `json:"id"`
	OrganizationID string           `json:"organization_id"`
	UserID         string           `json:"user_id"`
	RoleID         *string          `json:"role_id,omitempty"`
	OldRoleID      *string          `json:"old_role_id,omitempty"`
	Action         AssignmentAction `json:"action"`
	ChangedBy      string           `json:"changed_by"`
	CreatedAt      time.Time        `json:"created_at"`
}

// HistoryFilter narrows and pages history queries.
type HistoryFilter struct {
	UserID string
	Limit  int
	Offset int
}

// APIKey is a long-lived bearer credential scoped to an organization. Only
// the hash and display prefix of the plaintext persist.
type APIKey struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	UserID         string     `json:"user_id"`
	Name           string     `json:"name"`
	KeyPrefix      string     `json:"key_prefix"`
	KeyHash        string     `json:"-"`
	Scopes         []string   `json:"scopes"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	IsActive       bool       `json:"is_active"`
	LastUsedAt     *time.Time `json:"last_used_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	// Joined creator display info for listings; not stored on api_keys.
	CreatorName  string `json:"creator_name,omitempty"`
	CreatorEmail string `json:"creator_email,omitempty"`
}

// CreateKeyInput carries the caller-supplied fields for key creation.
type CreateKeyInput struct {
	OrganizationID string
	UserID         string
	Name           string
	Scopes         []string
	Environment    string
	ExpiresInDays  int
}

// CreatedKey pairs the persisted record with the plaintext key, which is
// returned exactly once and unrecoverable thereafter.
type CreatedKey struct {
	Key          *APIKey `json:"key"`
	PlaintextKey string  `json:"plaintext_key"`
}

// Organization is the owning tenant, included on key validation so callers
// can authorize without a second round trip.
type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

// User is the minimal creator projection joined onto validated keys.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

// ValidatedKey is the result of a successful key validation.
type ValidatedKey struct {
	Key          *APIKey       `json:"key"`
	Organization *Organization `json:"organization"`
	Creator      *User         `json:"creator,omitempty"`
}
