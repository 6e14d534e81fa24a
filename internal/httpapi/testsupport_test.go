package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"nexteach.org/internal/authz"
)

const (
	testSecret = "test-session-secret"
	testIssuer = "nexteach-identity"
)

// fakeStore is an in-memory authz.Store used to exercise handlers end to end
// without a database.
type fakeStore struct {
	perms      []authz.Permission
	roles      map[string]*authz.Role
	members    map[string]*authz.Member
	history    []authz.RoleAssignment
	keysByHash map[string]*authz.ValidatedKey

	nextID int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		perms: []authz.Permission{
			{ID: "p1", Code: authz.PermOrgRead, Name: "View organization", Category: authz.CategoryOrganization},
			{ID: "p2", Code: authz.PermOrgManage, Name: "Manage organization", Category: authz.CategoryOrganization, IsDangerous: true},
			{ID: "p3", Code: authz.PermMembersRead, Name: "View members", Category: authz.CategoryMembers},
			{ID: "p4", Code: authz.PermMembersManageRoles, Name: "Manage member roles", Category: authz.CategoryMembers, IsDangerous: true},
			{ID: "p5", Code: authz.PermCoursesRead, Name: "View courses", Category: authz.CategoryCourses},
			{ID: "p6", Code: authz.PermAPIKeysRead, Name: "View API keys", Category: authz.CategoryAPIKeys},
			{ID: "p7", Code: authz.PermAPIKeysManage, Name: "Manage API keys", Category: authz.CategoryAPIKeys, IsDangerous: true},
		},
		roles:      make(map[string]*authz.Role),
		members:    make(map[string]*authz.Member),
		keysByHash: make(map[string]*authz.ValidatedKey),
	}
}

func (f *fakeStore) genID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeStore) addRole(role *authz.Role) *authz.Role {
	if role.ID == "" {
		role.ID = f.genID("role")
	}
	f.roles[role.ID] = role
	return role
}

func (f *fakeStore) addMember(orgID, userID string, roleID *string) {
	f.members[userID] = &authz.Member{
		UserID:         userID,
		OrganizationID: orgID,
		RoleID:         roleID,
		JoinedAt:       time.Now().UTC(),
	}
}

func (f *fakeStore) Permissions(ctx context.Context) authz.PermissionStore { return (*fakePerms)(f) }
func (f *fakeStore) Roles(ctx context.Context) authz.RoleStore             { return (*fakeRoles)(f) }
func (f *fakeStore) Members(ctx context.Context) authz.MemberStore         { return (*fakeMembers)(f) }
func (f *fakeStore) APIKeys(ctx context.Context) authz.APIKeyStore         { return (*fakeKeys)(f) }

type fakePerms fakeStore

func (f *fakePerms) Ensure(ctx context.Context, perms []authz.Permission) error { return nil }
func (f *fakePerms) List(ctx context.Context) ([]authz.Permission, error)       { return f.perms, nil }

type fakeRoles fakeStore

func (f *fakeRoles) Create(ctx context.Context, role *authz.Role) error {
	(*fakeStore)(f).addRole(role)
	role.CreatedAt = time.Now().UTC()
	role.UpdatedAt = role.CreatedAt
	return nil
}

func (f *fakeRoles) Find(ctx context.Context, organizationID, roleID string) (*authz.Role, error) {
	role, ok := f.roles[roleID]
	if !ok || role.OrganizationID != organizationID {
		return nil, authz.ErrNotFound
	}
	copied := *role
	return &copied, nil
}

func (f *fakeRoles) ListByOrg(ctx context.Context, organizationID string) ([]*authz.Role, error) {
	var out []*authz.Role
	for _, role := range f.roles {
		if role.OrganizationID == organizationID {
			copied := *role
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsSystem != out[j].IsSystem {
			return out[i].IsSystem
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (f *fakeRoles) Update(ctx context.Context, organizationID, roleID string, upd authz.RoleUpdate) (*authz.Role, error) {
	role, ok := f.roles[roleID]
	if !ok || role.OrganizationID != organizationID || role.IsSystem {
		return nil, authz.ErrNotFound
	}
	if upd.Name != nil {
		role.Name = *upd.Name
	}
	if upd.Description != nil {
		role.Description = *upd.Description
	}
	if upd.Color != nil {
		role.Color = *upd.Color
	}
	if upd.Permissions != nil {
		role.Permissions = upd.Permissions
	}
	if upd.IsDefault != nil {
		role.IsDefault = *upd.IsDefault
	}
	role.UpdatedAt = time.Now().UTC()
	copied := *role
	return &copied, nil
}

func (f *fakeRoles) Delete(ctx context.Context, organizationID, roleID string) error {
	role, ok := f.roles[roleID]
	if !ok || role.OrganizationID != organizationID || role.IsSystem {
		return authz.ErrNotFound
	}
	for _, m := range f.members {
		if m.RoleID != nil && *m.RoleID == roleID {
			return fmt.Errorf("%w: role has assigned members, reassign them first", authz.ErrForbidden)
		}
	}
	delete(f.roles, roleID)
	return nil
}

type fakeMembers fakeStore

func (f *fakeMembers) Find(ctx context.Context, organizationID, userID string) (*authz.Member, error) {
	m, ok := f.members[userID]
	if !ok || m.OrganizationID != organizationID {
		return nil, authz.ErrNotFound
	}
	copied := *m
	return &copied, nil
}

func (f *fakeMembers) SetRole(ctx context.Context, organizationID, userID string, roleID *string, changedBy string) (*authz.RoleAssignment, error) {
	if roleID != nil {
		role, ok := f.roles[*roleID]
		if !ok || role.OrganizationID != organizationID {
			return nil, authz.ErrNotFound
		}
	}
	m, ok := f.members[userID]
	if !ok || m.OrganizationID != organizationID {
		return nil, authz.ErrNotFound
	}
	entry := authz.RoleAssignment{
		ID:             (*fakeStore)(f).genID("hist"),
		OrganizationID: organizationID,
		UserID:         userID,
		RoleID:         roleID,
		OldRoleID:      m.RoleID,
		Action:         authz.DeriveAction(m.RoleID, roleID),
		ChangedBy:      changedBy,
		CreatedAt:      time.Now().UTC(),
	}
	m.RoleID = roleID
	f.history = append(f.history, entry)
	return &entry, nil
}

func (f *fakeMembers) History(ctx context.Context, organizationID string, filter authz.HistoryFilter) ([]authz.RoleAssignment, error) {
	var out []authz.RoleAssignment
	for i := len(f.history) - 1; i >= 0; i-- {
		entry := f.history[i]
		if entry.OrganizationID != organizationID {
			continue
		}
		if filter.UserID != "" && entry.UserID != filter.UserID {
			continue
		}
		out = append(out, entry)
	}
	if filter.Offset < len(out) {
		out = out[filter.Offset:]
	} else {
		out = nil
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *fakeMembers) CountByRole(ctx context.Context, organizationID string) (map[string]int, error) {
	counts := make(map[string]int)
	for _, m := range f.members {
		if m.OrganizationID != organizationID {
			continue
		}
		key := m.LegacyRole
		if m.RoleID != nil {
			key = *m.RoleID
		}
		counts[key]++
	}
	return counts, nil
}

func (f *fakeMembers) CountWithRole(ctx context.Context, organizationID, roleID string) (int, error) {
	count := 0
	for _, m := range f.members {
		if m.OrganizationID == organizationID && m.RoleID != nil && *m.RoleID == roleID {
			count++
		}
	}
	return count, nil
}

type fakeKeys fakeStore

func (f *fakeKeys) Create(ctx context.Context, key *authz.APIKey) error {
	if key.ID == "" {
		key.ID = (*fakeStore)(f).genID("key")
	}
	key.CreatedAt = time.Now().UTC()
	key.UpdatedAt = key.CreatedAt
	f.keysByHash[key.KeyHash] = &authz.ValidatedKey{
		Key:          key,
		Organization: &authz.Organization{ID: key.OrganizationID, Name: "Test Org"},
		Creator:      &authz.User{ID: key.UserID},
	}
	return nil
}

func (f *fakeKeys) FindByHash(ctx context.Context, keyHash string) (*authz.ValidatedKey, error) {
	match, ok := f.keysByHash[keyHash]
	if !ok {
		return nil, authz.ErrNotFound
	}
	return match, nil
}

func (f *fakeKeys) ListByOrg(ctx context.Context, organizationID string) ([]*authz.APIKey, error) {
	var out []*authz.APIKey
	for _, match := range f.keysByHash {
		if match.Key.OrganizationID == organizationID {
			copied := *match.Key
			copied.KeyHash = ""
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeKeys) TouchLastUsed(ctx context.Context, keyID string, at time.Time) error {
	for _, match := range f.keysByHash {
		if match.Key.ID == keyID {
			match.Key.LastUsedAt = &at
		}
	}
	return nil
}

func (f *fakeKeys) Revoke(ctx context.Context, organizationID, keyID string) error {
	for _, match := range f.keysByHash {
		if match.Key.ID == keyID && match.Key.OrganizationID == organizationID {
			match.Key.IsActive = false
			return nil
		}
	}
	return authz.ErrNotFound
}

func (f *fakeKeys) Delete(ctx context.Context, organizationID, keyID string) error {
	for hash, match := range f.keysByHash {
		if match.Key.ID == keyID && match.Key.OrganizationID == organizationID {
			delete(f.keysByHash, hash)
			return nil
		}
	}
	return authz.ErrNotFound
}

// --- test API construction ---

func newTestAPI(t *testing.T, store *fakeStore) http.Handler {
	t.Helper()
	catalog, err := authz.NewCatalog(store)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	roles, err := authz.NewRoleService(store, catalog)
	if err != nil {
		t.Fatalf("NewRoleService: %v", err)
	}
	assignments, err := authz.NewAssignmentService(store)
	if err != nil {
		t.Fatalf("NewAssignmentService: %v", err)
	}
	resolver, err := authz.NewResolver(store)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	keys, err := authz.NewAPIKeyService(store, authz.WithSynchronousTouch())
	if err != nil {
		t.Fatalf("NewAPIKeyService: %v", err)
	}
	sessions := NewSessionVerifier(testSecret, testIssuer)

	api := New(ReadyProbe{}, "test", Options{MaxBodyBytes: 1 << 20},
		catalog, roles, assignments, resolver, keys, sessions)
	return api.Handler()
}

func sessionToken(t *testing.T, userID, orgID string) string {
	t.Helper()
	claims := SessionClaims{
		OrganizationID: orgID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    testIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func doRequest(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}
