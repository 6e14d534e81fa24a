package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"nexteach.org/internal/authz"
	"nexteach.org/internal/ids"
)

type memberStore struct{ db *sql.DB }

func (s *memberStore) Find(ctx context.Context, organizationID, userID string) (*authz.Member, error) {
	var (
		member authz.Member
		roleID sql.NullString
		legacy sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select user_id, organization_id, role_id, role, joined_at
		from organization_members
		where organization_id = $1 and user_id = $2
	`, organizationID, userID).Scan(&member.UserID, &member.OrganizationID, &roleID, &legacy, &member.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authz.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if roleID.Valid {
		member.RoleID = &roleID.String
	}
	if legacy.Valid {
		member.LegacyRole = legacy.String
	}
	return &member, nil
}

// SetRole updates the member's role link and appends the history row in one
// transaction. The action is derived from the before/after values here, so
// callers cannot fabricate history.
func (s *memberStore) SetRole(ctx context.Context, organizationID, userID string, roleID *string, changedBy string) (*authz.RoleAssignment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if roleID != nil {
		var roleOrg string
		err := tx.QueryRowContext(ctx, `select organization_id from organization_roles where id = $1`, *roleID).Scan(&roleOrg)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authz.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		if roleOrg != organizationID {
			// Cross-tenant role ids look like missing ones.
			return nil, authz.ErrNotFound
		}
	}

	var oldRole sql.NullString
	err = tx.QueryRowContext(ctx, `
		select role_id from organization_members
		where organization_id = $1 and user_id = $2
		for update
	`, organizationID, userID).Scan(&oldRole)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authz.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var newRoleArg sql.NullString
	if roleID != nil {
		newRoleArg = sql.NullString{String: *roleID, Valid: true}
	}
	if _, err := tx.ExecContext(ctx, `
		update organization_members set role_id = $3
		where organization_id = $1 and user_id = $2
	`, organizationID, userID, newRoleArg); err != nil {
		return nil, err
	}

	var oldRoleID *string
	if oldRole.Valid {
		oldRoleID = &oldRole.String
	}
	entry := &authz.RoleAssignment{
		ID:             ids.New(),
		OrganizationID: organizationID,
		UserID:         userID,
		RoleID:         roleID,
		OldRoleID:      oldRoleID,
		Action:         authz.DeriveAction(oldRoleID, roleID),
		ChangedBy:      changedBy,
	}
	if err := tx.QueryRowContext(ctx, `
		insert into role_assignment_history (id, organization_id, user_id, role_id, old_role_id, action, changed_by)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning created_at
	`, entry.ID, entry.OrganizationID, entry.UserID, newRoleArg, oldRole, string(entry.Action), entry.ChangedBy,
	).Scan(&entry.CreatedAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *memberStore) History(ctx context.Context, organizationID string, f authz.HistoryFilter) ([]authz.RoleAssignment, error) {
	query := `
		select id, organization_id, user_id, role_id, old_role_id, action, changed_by, created_at
		from role_assignment_history
		where organization_id = $1`
	args := []any{organizationID}
	idx := 2
	if f.UserID != "" {
		query += fmt.Sprintf(" and user_id = $%d", idx)
		args = append(args, f.UserID)
		idx++
	}
	// ULID ids are time-ordered; the id tiebreak preserves insertion order
	// within one timestamp.
	query += fmt.Sprintf(" order by created_at desc, id desc limit $%d offset $%d", idx, idx+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []authz.RoleAssignment
	for rows.Next() {
		var (
			entry   authz.RoleAssignment
			roleID  sql.NullString
			oldRole sql.NullString
			action  string
		)
		if err := rows.Scan(&entry.ID, &entry.OrganizationID, &entry.UserID, &roleID, &oldRole,
			&action, &entry.ChangedBy, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if roleID.Valid {
			entry.RoleID = &roleID.String
		}
		if oldRole.Valid {
			entry.OldRoleID = &oldRole.String
		}
		entry.Action = authz.AssignmentAction(action)
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *memberStore) CountByRole(ctx context.Context, organizationID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		select coalesce(role_id, role, '') as role_key, count(*)
		from organization_members
		where organization_id = $1
		group by role_key
	`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			key   string
			count int
		)
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		counts[key] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

func (s *memberStore) CountWithRole(ctx context.Context, organizationID, roleID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		select count(*) from organization_members
		where organization_id = $1 and role_id = $2
	`, organizationID, roleID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
