package authz

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"nexteach.org/internal/obs"
)

// Permission categories.
const (
	CategoryCredits      = "credits"
	CategoryMembers      = "members"
	CategoryOrganization = "organization"
	CategoryAnalytics    = "analytics"
	CategoryCourses      = "courses"
	CategoryAPIKeys      = "api_keys"
)

// Permission codes. The catalog is a closed vocabulary: unknown codes are
// rejected at the boundary instead of silently creating meaningless grants.
const (
	PermCreditsRead        = "credits:read"
	PermCreditsManage      = "credits:manage"
	PermMembersRead        = "members:read"
	PermMembersWrite       = "members:write"
	PermMembersManageRoles = "members:manage_roles"
	PermOrgRead            = "organization:read"
	PermOrgManage          = "organization:manage"
	PermOrgBilling         = "organization:billing"
	PermAnalyticsRead      = "analytics:read"
	PermCoursesRead        = "courses:read"
	PermCoursesWrite       = "courses:write"
	PermCoursesEnroll      = "courses:enroll"
	PermCoursesPublish     = "courses:publish"
	PermAPIKeysRead        = "api_keys:read"
	PermAPIKeysManage      = "api_keys:manage"
)

// BuiltinPermissions is the seed set for the permission catalog. Adding an
// entry is a deploy-time data migration, not a runtime operation.
var BuiltinPermissions = []Permission{
	{Code: PermCreditsRead, Name: "View credits", Description: "View the organization credit balance and usage", Category: CategoryCredits},
	{Code: PermCreditsManage, Name: "Manage credits", Description: "Purchase and allocate organization credits", Category: CategoryCredits, IsDangerous: true},
	{Code: PermMembersRead, Name: "View members", Description: "List organization members and their roles", Category: CategoryMembers},
	{Code: PermMembersWrite, Name: "Manage members", Description: "Invite and remove organization members", Category: CategoryMembers, IsDangerous: true},
	{Code: PermMembersManageRoles, Name: "Manage member roles", Description: "Assign and change member roles", Category: CategoryMembers, IsDangerous: true},
	{Code: PermOrgRead, Name: "View organization", Description: "View organization settings and profile", Category: CategoryOrganization},
	{Code: PermOrgManage, Name: "Manage organization", Description: "Edit organization settings, roles and branding", Category: CategoryOrganization, IsDangerous: true},
	{Code: PermOrgBilling, Name: "Manage billing", Description: "View invoices and change billing details", Category: CategoryOrganization, IsDangerous: true},
	{Code: PermAnalyticsRead, Name: "View analytics", Description: "View learner progress and engagement reports", Category: CategoryAnalytics},
	{Code: PermCoursesRead, Name: "View courses", Description: "Browse assigned course content", Category: CategoryCourses},
	{Code: PermCoursesWrite, Name: "Edit courses", Description: "Create and edit course content", Category: CategoryCourses},
	{Code: PermCoursesEnroll, Name: "Enroll learners", Description: "Enroll members into courses", Category: CategoryCourses},
	{Code: PermCoursesPublish, Name: "Publish courses", Description: "Publish and unpublish courses", Category: CategoryCourses, IsDangerous: true},
	{Code: PermAPIKeysRead, Name: "View API keys", Description: "List organization API keys", Category: CategoryAPIKeys},
	{Code: PermAPIKeysManage, Name: "Manage API keys", Description: "Create, revoke and delete organization API keys", Category: CategoryAPIKeys, IsDangerous: true},
}

// Catalog is a process-wide read-only cache over the permissions table,
// loaded lazily on first access. A failed load is not cached: a later access
// retries, so a transient store outage does not permanently degrade the UI.
type Catalog struct {
	store Store

	mu     sync.RWMutex
	loaded bool
	perms  []Permission
	byCode map[string]Permission
}

// NewCatalog constructs a catalog backed by store.
func NewCatalog(store Store) (*Catalog, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: catalog store is required", ErrInvalidInput)
	}
	return &Catalog{store: store}, nil
}

func (c *Catalog) load(ctx context.Context) ([]Permission, bool) {
	c.mu.RLock()
	if c.loaded {
		defer c.mu.RUnlock()
		return c.perms, true
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c.perms, true
	}
	perms, err := c.store.Permissions(ctx).List(ctx)
	if err != nil {
		obs.LogError("authz.catalog.load", err, nil)
		return nil, false
	}
	sort.Slice(perms, func(i, j int) bool {
		if perms[i].Category != perms[j].Category {
			return perms[i].Category < perms[j].Category
		}
		return perms[i].Name < perms[j].Name
	})
	byCode := make(map[string]Permission, len(perms))
	for _, p := range perms {
		byCode[p.Code] = p
	}
	c.perms = perms
	c.byCode = byCode
	c.loaded = true
	return c.perms, true
}

// ListAll returns every permission ordered by category then name. A storage
// failure yields an empty slice; security checks downstream fail closed on
// the empty catalog.
func (c *Catalog) ListAll(ctx context.Context) []Permission {
	perms, _ := c.load(ctx)
	return append([]Permission(nil), perms...)
}

// ListByCategory groups the catalog by category, each group ordered by name.
func (c *Catalog) ListByCategory(ctx context.Context) map[string][]Permission {
	perms, _ := c.load(ctx)
	grouped := make(map[string][]Permission)
	for _, p := range perms {
		grouped[p.Category] = append(grouped[p.Category], p)
	}
	return grouped
}

// Snapshot returns the catalog along with its availability, letting UI
// consumers distinguish "empty" from "store unreachable".
func (c *Catalog) Snapshot(ctx context.Context) ([]Permission, bool) {
	perms, ok := c.load(ctx)
	return append([]Permission(nil), perms...), ok
}

// Known reports whether code exists in the catalog. Unknown on load failure.
func (c *Catalog) Known(ctx context.Context, code string) bool {
	_, ok := c.load(ctx)
	if !ok {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, found := c.byCode[code]
	return found
}

// Validate rejects any code absent from the catalog, naming every invalid
// code in the error. An unavailable catalog rejects everything.
func (c *Catalog) Validate(ctx context.Context, codes []string) error {
	if _, ok := c.load(ctx); !ok {
		return fmt.Errorf("%w: permission catalog unavailable", ErrInvalidInput)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	var invalid []string
	for _, code := range codes {
		if _, found := c.byCode[code]; !found {
			invalid = append(invalid, code)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("%w: unknown permission codes: %s", ErrInvalidInput, strings.Join(invalid, ", "))
	}
	return nil
}

// EnsureBuiltins seeds the catalog table with the builtin set. Called by the
// migration tool, never by tenant-facing paths.
func (c *Catalog) EnsureBuiltins(ctx context.Context) error {
	return c.store.Permissions(ctx).Ensure(ctx, BuiltinPermissions)
}

func dedupeCodes(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
