package authz

import (
	"context"
	"time"
)

type stubStore struct {
	perms   stubPermissionStore
	roles   stubRoleStore
	members stubMemberStore
	keys    stubAPIKeyStore
}

func (s *stubStore) Permissions(ctx context.Context) PermissionStore { return &s.perms }
func (s *stubStore) Roles(ctx context.Context) RoleStore             { return &s.roles }
func (s *stubStore) Members(ctx context.Context) MemberStore         { return &s.members }
func (s *stubStore) APIKeys(ctx context.Context) APIKeyStore         { return &s.keys }

type stubPermissionStore struct {
	ensureFn func(context.Context, []Permission) error
	listFn   func(context.Context) ([]Permission, error)
}

func (s *stubPermissionStore) Ensure(ctx context.Context, perms []Permission) error {
	if s.ensureFn != nil {
		return s.ensureFn(ctx, perms)
	}
	return nil
}

func (s *stubPermissionStore) List(ctx context.Context) ([]Permission, error) {
	if s.listFn != nil {
		return s.listFn(ctx)
	}
	return nil, nil
}

type stubRoleStore struct {
	createFn func(context.Context, *Role) error
	findFn   func(context.Context, string, string) (*Role, error)
	listFn   func(context.Context, string) ([]*Role, error)
	updateFn func(context.Context, string, string, RoleUpdate) (*Role, error)
	deleteFn func(context.Context, string, string) error
}

func (s *stubRoleStore) Create(ctx context.Context, role *Role) error {
	if s.createFn != nil {
		return s.createFn(ctx, role)
	}
	return nil
}

func (s *stubRoleStore) Find(ctx context.Context, organizationID, roleID string) (*Role, error) {
	if s.findFn != nil {
		return s.findFn(ctx, organizationID, roleID)
	}
	return nil, ErrNotFound
}

func (s *stubRoleStore) ListByOrg(ctx context.Context, organizationID string) ([]*Role, error) {
	if s.listFn != nil {
		return s.listFn(ctx, organizationID)
	}
	return nil, nil
}

func (s *stubRoleStore) Update(ctx context.Context, organizationID, roleID string, upd RoleUpdate) (*Role, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, organizationID, roleID, upd)
	}
	return nil, ErrNotFound
}

func (s *stubRoleStore) Delete(ctx context.Context, organizationID, roleID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, organizationID, roleID)
	}
	return nil
}

type stubMemberStore struct {
	findFn          func(context.Context, string, string) (*Member, error)
	setRoleFn       func(context.Context, string, string, *string, string) (*RoleAssignment, error)
	historyFn       func(context.Context, string, HistoryFilter) ([]RoleAssignment, error)
	countByRoleFn   func(context.Context, string) (map[string]int, error)
	countWithRoleFn func(context.Context, string, string) (int, error)
}

func (s *stubMemberStore) Find(ctx context.Context, organizationID, userID string) (*Member, error) {
	if s.findFn != nil {
		return s.findFn(ctx, organizationID, userID)
	}
	return nil, ErrNotFound
}

func (s *stubMemberStore) SetRole(ctx context.Context, organizationID, userID string, roleID *string, changedBy string) (*RoleAssignment, error) {
	if s.setRoleFn != nil {
		return s.setRoleFn(ctx, organizationID, userID, roleID, changedBy)
	}
	return nil, ErrNotFound
}

func (s *stubMemberStore) History(ctx context.Context, organizationID string, f HistoryFilter) ([]RoleAssignment, error) {
	if s.historyFn != nil {
		return s.historyFn(ctx, organizationID, f)
	}
	return nil, nil
}

func (s *stubMemberStore) CountByRole(ctx context.Context, organizationID string) (map[string]int, error) {
	if s.countByRoleFn != nil {
		return s.countByRoleFn(ctx, organizationID)
	}
	return nil, nil
}

func (s *stubMemberStore) CountWithRole(ctx context.Context, organizationID, roleID string) (int, error) {
	if s.countWithRoleFn != nil {
		return s.countWithRoleFn(ctx, organizationID, roleID)
	}
	return 0, nil
}

type stubAPIKeyStore struct {
	createFn     func(context.Context, *APIKey) error
	findByHashFn func(context.Context, string) (*ValidatedKey, error)
	listFn       func(context.Context, string) ([]*APIKey, error)
	touchFn      func(context.Context, string, time.Time) error
	revokeFn     func(context.Context, string, string) error
	deleteFn     func(context.Context, string, string) error
}

func (s *stubAPIKeyStore) Create(ctx context.Context, key *APIKey) error {
	if s.createFn != nil {
		return s.createFn(ctx, key)
	}
	return nil
}

func (s *stubAPIKeyStore) FindByHash(ctx context.Context, keyHash string) (*ValidatedKey, error) {
	if s.findByHashFn != nil {
		return s.findByHashFn(ctx, keyHash)
	}
	return nil, ErrNotFound
}

func (s *stubAPIKeyStore) ListByOrg(ctx context.Context, organizationID string) ([]*APIKey, error) {
	if s.listFn != nil {
		return s.listFn(ctx, organizationID)
	}
	return nil, nil
}

func (s *stubAPIKeyStore) TouchLastUsed(ctx context.Context, keyID string, at time.Time) error {
	if s.touchFn != nil {
		return s.touchFn(ctx, keyID, at)
	}
	return nil
}

func (s *stubAPIKeyStore) Revoke(ctx context.Context, organizationID, keyID string) error {
	if s.revokeFn != nil {
		return s.revokeFn(ctx, organizationID, keyID)
	}
	return nil
}

func (s *stubAPIKeyStore) Delete(ctx context.Context, organizationID, keyID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, organizationID, keyID)
	}
	return nil
}
