package pg

import (
	"context"
	"database/sql"

	"nexteach.org/internal/authz"
	"nexteach.org/internal/ids"
)

type permissionStore struct{ db *sql.DB }

func (s *permissionStore) Ensure(ctx context.Context, perms []authz.Permission) error {
	for _, p := range perms {
		id := p.ID
		if id == "" {
			id = ids.New()
		}
		if _, err := s.db.ExecContext(ctx, `
			insert into permissions (id, code, name, description, category, is_dangerous)
			values ($1, $2, $3, $4, $5, $6)
			on conflict (code) do update
			set name = excluded.name,
			    description = excluded.description,
			    category = excluded.category,
			    is_dangerous = excluded.is_dangerous
		`, id, p.Code, p.Name, nullIfEmpty(p.Description), p.Category, p.IsDangerous); err != nil {
			return err
		}
	}
	return nil
}

func (s *permissionStore) List(ctx context.Context) ([]authz.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, code, name, description, category, is_dangerous, created_at
		from permissions
		order by category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []authz.Permission
	for rows.Next() {
		var (
			p    authz.Permission
			desc sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &desc, &p.Category, &p.IsDangerous, &p.CreatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			p.Description = desc.String
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
