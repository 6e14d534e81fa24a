package authz

import (
	"context"
	"strings"

	"nexteach.org/internal/obs"
)

// LegacyResolver supplies permission codes for members without a role_id.
// The surrounding platform defines the legacy scheme; the resolver only
// consumes it.
type LegacyResolver func(ctx context.Context, member *Member) []string

// Resolver computes effective permission sets for session callers. It sits
// on a security boundary: every failure mode degrades to "no permissions",
// never to an open grant.
type Resolver struct {
	store  Store
	legacy LegacyResolver
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLegacyResolver installs the fallback for members still on the legacy
// role string.
func WithLegacyResolver(fn LegacyResolver) ResolverOption {
	return func(r *Resolver) {
		r.legacy = fn
	}
}

// NewResolver constructs a Resolver.
func NewResolver(store Store, opts ...ResolverOption) (*Resolver, error) {
	if store == nil {
		return nil, ErrInvalidInput
	}
	r := &Resolver{store: store}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// GetUserPermissions returns the de-duplicated set of permission codes
// granted by the user's current role. It never returns an error: resolution
// failures are logged and produce the empty set.
func (r *Resolver) GetUserPermissions(ctx context.Context, userID, organizationID string) map[string]struct{} {
	userID = strings.TrimSpace(userID)
	organizationID = strings.TrimSpace(organizationID)
	if userID == "" || organizationID == "" {
		return map[string]struct{}{}
	}

	member, err := r.store.Members(ctx).Find(ctx, organizationID, userID)
	if err != nil {
		obs.LogError("authz.resolve.member", err, map[string]any{
			"organization_id": organizationID,
			"user_id":         userID,
		})
		return map[string]struct{}{}
	}

	var codes []string
	if member.RoleID != nil {
		role, err := r.store.Roles(ctx).Find(ctx, organizationID, *member.RoleID)
		if err != nil {
			obs.LogError("authz.resolve.role", err, map[string]any{
				"organization_id": organizationID,
				"role_id":         *member.RoleID,
			})
			return map[string]struct{}{}
		}
		codes = role.Permissions
	} else if r.legacy != nil {
		codes = r.legacy(ctx, member)
	}

	set := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		set[code] = struct{}{}
	}
	return set
}

// HasPermission reports whether code is a member of the resolved set.
func (r *Resolver) HasPermission(ctx context.Context, userID, organizationID, code string) bool {
	set := r.GetUserPermissions(ctx, userID, organizationID)
	_, ok := set[code]
	observePermissionCheck(ok)
	return ok
}

// HasAnyPermission reports whether the resolved set intersects codes.
func (r *Resolver) HasAnyPermission(ctx context.Context, userID, organizationID string, codes []string) bool {
	set := r.GetUserPermissions(ctx, userID, organizationID)
	for _, code := range codes {
		if _, ok := set[code]; ok {
			observePermissionCheck(true)
			return true
		}
	}
	observePermissionCheck(false)
	return false
}

// HasAllPermissions reports whether every entry of codes is present in the
// resolved set.
func (r *Resolver) HasAllPermissions(ctx context.Context, userID, organizationID string, codes []string) bool {
	set := r.GetUserPermissions(ctx, userID, organizationID)
	for _, code := range codes {
		if _, ok := set[code]; !ok {
			observePermissionCheck(false)
			return false
		}
	}
	observePermissionCheck(true)
	return true
}

func observePermissionCheck(allowed bool) {
	if allowed {
		obs.PermissionChecks.WithLabelValues("allowed").Inc()
		return
	}
	obs.PermissionChecks.WithLabelValues("denied").Inc()
}
