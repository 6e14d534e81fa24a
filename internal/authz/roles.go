package authz

import (
	"context"
	"fmt"
	"strings"
)

// RoleService owns the role lifecycle: listing, creation, partial updates
// and deletion, with catalog validation at every write boundary.
type RoleService struct {
	store   Store
	catalog *Catalog
}

// NewRoleService constructs a RoleService.
func NewRoleService(store Store, catalog *Catalog) (*RoleService, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: role store is required", ErrInvalidInput)
	}
	if catalog == nil {
		return nil, fmt.Errorf("%w: permission catalog is required", ErrInvalidInput)
	}
	return &RoleService{store: store, catalog: catalog}, nil
}

// ListRoles returns all roles for the organization, system roles first, then
// alphabetical.
func (s *RoleService) ListRoles(ctx context.Context, organizationID string) ([]*Role, error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organization_id is required", ErrInvalidInput)
	}
	return s.store.Roles(ctx).ListByOrg(ctx, organizationID)
}

// GetRole returns a single role. Roles of other organizations are
// indistinguishable from missing ones.
func (s *RoleService) GetRole(ctx context.Context, organizationID, roleID string) (*Role, error) {
	organizationID = strings.TrimSpace(organizationID)
	roleID = strings.TrimSpace(roleID)
	if organizationID == "" || roleID == "" {
		return nil, fmt.Errorf("%w: organization_id and role_id are required", ErrInvalidInput)
	}
	return s.store.Roles(ctx).Find(ctx, organizationID, roleID)
}

// CreateRole validates every permission code against the catalog and persists
// a custom role. Unknown codes abort the whole operation; nothing is
// partially created.
func (s *RoleService) CreateRole(ctx context.Context, organizationID, actingUserID string, in RoleInput) (*Role, error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organization_id is required", ErrInvalidInput)
	}
	actingUserID = strings.TrimSpace(actingUserID)
	if actingUserID == "" {
		return nil, fmt.Errorf("%w: acting user is required", ErrInvalidInput)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	perms := dedupeCodes(in.Permissions)
	if err := s.catalog.Validate(ctx, perms); err != nil {
		return nil, err
	}
	if perms == nil {
		perms = []string{}
	}

	role := &Role{
		OrganizationID: organizationID,
		Name:           name,
		Description:    strings.TrimSpace(in.Description),
		Color:          strings.TrimSpace(in.Color),
		IsSystem:       false,
		IsDefault:      in.IsDefault,
		Permissions:    perms,
		CreatedBy:      actingUserID,
	}
	if err := s.store.Roles(ctx).Create(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// systemRoleSpec describes one of the roles every organization starts with.
type systemRoleSpec struct {
	name        string
	description string
	isDefault   bool
	permissions []string
}

func systemRoles() []systemRoleSpec {
	all := make([]string, 0, len(BuiltinPermissions))
	for _, p := range BuiltinPermissions {
		all = append(all, p.Code)
	}
	admin := make([]string, 0, len(all))
	for _, code := range all {
		if code == PermOrgBilling {
			continue
		}
		admin = append(admin, code)
	}
	return []systemRoleSpec{
		{name: "Owner", description: "Full access to the organization, including billing", permissions: all},
		{name: "Admin", description: "Full access except billing", permissions: admin},
		{name: "Member", description: "Browse courses and organization info", isDefault: true,
			permissions: []string{PermOrgRead, PermCoursesRead, PermCoursesEnroll}},
	}
}

// EnsureSystemRoles creates the Owner, Admin and Member system roles for an
// organization if they do not exist yet. Called during organization
// provisioning; safe to call again, matching roles are left untouched.
func (s *RoleService) EnsureSystemRoles(ctx context.Context, organizationID, actingUserID string) ([]*Role, error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organization_id is required", ErrInvalidInput)
	}
	existing, err := s.store.Roles(ctx).ListByOrg(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(existing))
	for _, r := range existing {
		present[strings.ToLower(r.Name)] = true
	}

	var created []*Role
	for _, spec := range systemRoles() {
		if present[strings.ToLower(spec.name)] {
			continue
		}
		role := &Role{
			OrganizationID: organizationID,
			Name:           spec.name,
			Description:    spec.description,
			IsSystem:       true,
			IsDefault:      spec.isDefault,
			Permissions:    spec.permissions,
			CreatedBy:      strings.TrimSpace(actingUserID),
		}
		if err := s.store.Roles(ctx).Create(ctx, role); err != nil {
			return nil, err
		}
		created = append(created, role)
	}
	return created, nil
}

// UpdateRole applies a partial update. System roles are rejected before any
// other field is considered; a provided permission set is re-validated
// exactly as in create.
func (s *RoleService) UpdateRole(ctx context.Context, organizationID, roleID string, upd RoleUpdate) (*Role, error) {
	organizationID = strings.TrimSpace(organizationID)
	roleID = strings.TrimSpace(roleID)
	if organizationID == "" || roleID == "" {
		return nil, fmt.Errorf("%w: organization_id and role_id are required", ErrInvalidInput)
	}
	role, err := s.store.Roles(ctx).Find(ctx, organizationID, roleID)
	if err != nil {
		return nil, err
	}
	if role.IsSystem {
		return nil, fmt.Errorf("%w: cannot modify system role", ErrForbidden)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.Description != nil {
		desc := strings.TrimSpace(*upd.Description)
		upd.Description = &desc
	}
	if upd.Color != nil {
		color := strings.TrimSpace(*upd.Color)
		upd.Color = &color
	}
	if upd.Permissions != nil {
		perms := dedupeCodes(upd.Permissions)
		if err := s.catalog.Validate(ctx, perms); err != nil {
			return nil, err
		}
		if perms == nil {
			perms = []string{}
		}
		upd.Permissions = perms
	}
	return s.store.Roles(ctx).Update(ctx, organizationID, roleID, upd)
}

// DeleteRole permanently removes a custom role. Roles with members still
// assigned are rejected; the caller must reassign those members first. The
// store treats a foreign-key violation on delete as the same rejection, which
// makes the check-then-delete race harmless.
func (s *RoleService) DeleteRole(ctx context.Context, organizationID, roleID string) error {
	organizationID = strings.TrimSpace(organizationID)
	roleID = strings.TrimSpace(roleID)
	if organizationID == "" || roleID == "" {
		return fmt.Errorf("%w: organization_id and role_id are required", ErrInvalidInput)
	}
	role, err := s.store.Roles(ctx).Find(ctx, organizationID, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return fmt.Errorf("%w: cannot delete system role", ErrForbidden)
	}
	assigned, err := s.store.Members(ctx).CountWithRole(ctx, organizationID, roleID)
	if err != nil {
		return err
	}
	if assigned > 0 {
		return fmt.Errorf("%w: role has %d assigned members, reassign them first", ErrForbidden, assigned)
	}
	return s.store.Roles(ctx).Delete(ctx, organizationID, roleID)
}
