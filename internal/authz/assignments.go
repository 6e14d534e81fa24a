package authz

import (
	"context"
	"fmt"
	"strings"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// AssignmentService maintains the member→role link and its append-only
// history ledger.
type AssignmentService struct {
	store Store
}

// NewAssignmentService constructs an AssignmentService.
func NewAssignmentService(store Store) (*AssignmentService, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: assignment store is required", ErrInvalidInput)
	}
	return &AssignmentService{store: store}, nil
}

// DeriveAction maps a before/after role pair onto the history action.
func DeriveAction(oldRoleID, newRoleID *string) AssignmentAction {
	switch {
	case newRoleID == nil:
		return ActionRemoved
	case oldRoleID == nil:
		return ActionAssigned
	default:
		return ActionChanged
	}
}

// AssignRole updates the member's current role and appends the matching
// history row in one transaction. A nil roleID removes the role. The store
// verifies the role belongs to the same organization; mismatches surface as
// not-found.
func (s *AssignmentService) AssignRole(ctx context.Context, organizationID, userID string, roleID *string, changedBy string) (*RoleAssignment, error) {
	organizationID = strings.TrimSpace(organizationID)
	userID = strings.TrimSpace(userID)
	changedBy = strings.TrimSpace(changedBy)
	if organizationID == "" || userID == "" {
		return nil, fmt.Errorf("%w: organization_id and user_id are required", ErrInvalidInput)
	}
	if changedBy == "" {
		return nil, fmt.Errorf("%w: changed_by is required", ErrInvalidInput)
	}
	if roleID != nil {
		trimmed := strings.TrimSpace(*roleID)
		if trimmed == "" {
			roleID = nil
		} else {
			roleID = &trimmed
		}
	}
	return s.store.Members(ctx).SetRole(ctx, organizationID, userID, roleID, changedBy)
}

// GetHistory returns role change records, most recent first, optionally
// filtered to a single member.
func (s *AssignmentService) GetHistory(ctx context.Context, organizationID string, f HistoryFilter) ([]RoleAssignment, error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organization_id is required", ErrInvalidInput)
	}
	if f.Limit <= 0 {
		f.Limit = defaultHistoryLimit
	}
	if f.Limit > maxHistoryLimit {
		f.Limit = maxHistoryLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.UserID = strings.TrimSpace(f.UserID)
	return s.store.Members(ctx).History(ctx, organizationID, f)
}

// CountMembersByRole maps role identifiers to member counts. Members still on
// the legacy role string are keyed by that string.
func (s *AssignmentService) CountMembersByRole(ctx context.Context, organizationID string) (map[string]int, error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organization_id is required", ErrInvalidInput)
	}
	return s.store.Members(ctx).CountByRole(ctx, organizationID)
}
