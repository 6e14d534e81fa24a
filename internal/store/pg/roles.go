package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"nexteach.org/internal/authz"
	"nexteach.org/internal/ids"
)

type roleStore struct{ db *sql.DB }

const roleColumns = `id, organization_id, name, description, color, is_system, is_default, permissions, created_by, created_at, updated_at`

func (s *roleStore) Create(ctx context.Context, role *authz.Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("marshal permissions: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		insert into organization_roles (id, organization_id, name, description, color, is_system, is_default, permissions, created_by)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning created_at, updated_at
	`, role.ID, role.OrganizationID, role.Name, nullIfEmpty(role.Description), nullIfEmpty(role.Color),
		role.IsSystem, role.IsDefault, perms, nullIfEmpty(role.CreatedBy))
	if err := row.Scan(&role.CreatedAt, &role.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return authz.ErrConflict
			case pgErrForeignKeyViolation:
				return authz.ErrNotFound
			}
		}
		return err
	}
	return nil
}

func (s *roleStore) Find(ctx context.Context, organizationID, roleID string) (*authz.Role, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+roleColumns+`
		from organization_roles
		where organization_id = $1 and id = $2
	`, organizationID, roleID)
	role, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authz.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return role, nil
}

func (s *roleStore) ListByOrg(ctx context.Context, organizationID string) ([]*authz.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+roleColumns+`
		from organization_roles
		where organization_id = $1
		order by is_system desc, name
	`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*authz.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *roleStore) Update(ctx context.Context, organizationID, roleID string, upd authz.RoleUpdate) (*authz.Role, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Description != nil {
		if *upd.Description == "" {
			sets = append(sets, "description = NULL")
		} else {
			sets = append(sets, fmt.Sprintf("description = $%d", idx))
			args = append(args, *upd.Description)
			idx++
		}
	}
	if upd.Color != nil {
		if *upd.Color == "" {
			sets = append(sets, "color = NULL")
		} else {
			sets = append(sets, fmt.Sprintf("color = $%d", idx))
			args = append(args, *upd.Color)
			idx++
		}
	}
	if upd.Permissions != nil {
		perms, err := json.Marshal(upd.Permissions)
		if err != nil {
			return nil, fmt.Errorf("marshal permissions: %w", err)
		}
		sets = append(sets, fmt.Sprintf("permissions = $%d", idx))
		args = append(args, perms)
		idx++
	}
	if upd.IsDefault != nil {
		sets = append(sets, fmt.Sprintf("is_default = $%d", idx))
		args = append(args, *upd.IsDefault)
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(
			`update organization_roles set %s where organization_id = $%d and id = $%d and is_system = false`,
			strings.Join(sets, ", "), idx, idx+1)
		args = append(args, organizationID, roleID)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return nil, authz.ErrConflict
			}
			return nil, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if aff == 0 {
			return nil, authz.ErrNotFound
		}
	}
	return s.Find(ctx, organizationID, roleID)
}

func (s *roleStore) Delete(ctx context.Context, organizationID, roleID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from organization_roles
		where organization_id = $1 and id = $2 and is_system = false
	`, organizationID, roleID)
	if err != nil {
		// Members reference roles with ON DELETE RESTRICT; the constraint
		// is the authoritative guard against the check-then-delete race.
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: role has assigned members, reassign them first", authz.ErrForbidden)
		}
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return authz.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(row rowScanner) (*authz.Role, error) {
	var (
		role      authz.Role
		desc      sql.NullString
		color     sql.NullString
		createdBy sql.NullString
		rawPerms  []byte
	)
	if err := row.Scan(&role.ID, &role.OrganizationID, &role.Name, &desc, &color,
		&role.IsSystem, &role.IsDefault, &rawPerms, &createdBy, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return nil, err
	}
	if desc.Valid {
		role.Description = desc.String
	}
	if color.Valid {
		role.Color = color.String
	}
	if createdBy.Valid {
		role.CreatedBy = createdBy.String
	}
	role.Permissions = []string{}
	if len(rawPerms) > 0 {
		if err := json.Unmarshal(rawPerms, &role.Permissions); err != nil {
			return nil, fmt.Errorf("decode permissions: %w", err)
		}
	}
	return &role, nil
}
