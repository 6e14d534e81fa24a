package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"nexteach.org/internal/authz"
	"nexteach.org/internal/ids"
)

type apiKeyStore struct{ db *sql.DB }

func (s *apiKeyStore) Create(ctx context.Context, key *authz.APIKey) error {
	if key.ID == "" {
		key.ID = ids.New()
	}
	scopes, err := json.Marshal(key.Scopes)
	if err != nil {
		return fmt.Errorf("marshal scopes: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		insert into api_keys (id, organization_id, user_id, name, key_prefix, key_hash, scopes, expires_at, is_active)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning created_at, updated_at
	`, key.ID, key.OrganizationID, key.UserID, key.Name, key.KeyPrefix, key.KeyHash, scopes,
		nullTime(key.ExpiresAt), key.IsActive)
	if err := row.Scan(&key.CreatedAt, &key.UpdatedAt); err != nil {
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

// FindByHash joins the owning organization and creator so validation answers
// authorization questions in a single round trip.
func (s *apiKeyStore) FindByHash(ctx context.Context, keyHash string) (*authz.ValidatedKey, error) {
	var (
		key       authz.APIKey
		rawScopes []byte
		expires   sql.NullTime
		lastUsed  sql.NullTime
		org       authz.Organization
		orgSlug   sql.NullString
		creator   authz.User
		email     sql.NullString
		fullName  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select k.id, k.organization_id, k.user_id, k.name, k.key_prefix, k.scopes,
		       k.expires_at, k.is_active, k.last_used_at, k.created_at, k.updated_at,
		       o.id, o.name, o.slug,
		       u.id, u.email, u.full_name
		from api_keys k
		join organizations o on o.id = k.organization_id
		left join users u on u.id = k.user_id
		where k.key_hash = $1
	`, keyHash).Scan(&key.ID, &key.OrganizationID, &key.UserID, &key.Name, &key.KeyPrefix, &rawScopes,
		&expires, &key.IsActive, &lastUsed, &key.CreatedAt, &key.UpdatedAt,
		&org.ID, &org.Name, &orgSlug,
		&creator.ID, &email, &fullName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authz.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	key.Scopes = []string{}
	if len(rawScopes) > 0 {
		if err := json.Unmarshal(rawScopes, &key.Scopes); err != nil {
			return nil, fmt.Errorf("decode scopes: %w", err)
		}
	}
	if expires.Valid {
		t := expires.Time
		key.ExpiresAt = &t
	}
	if lastUsed.Valid {
		t := lastUsed.Time
		key.LastUsedAt = &t
	}
	if orgSlug.Valid {
		org.Slug = orgSlug.String
	}
	if email.Valid {
		creator.Email = email.String
	}
	if fullName.Valid {
		creator.FullName = fullName.String
	}
	result := &authz.ValidatedKey{Key: &key, Organization: &org}
	if creator.ID != "" {
		result.Creator = &creator
	}
	return result, nil
}

func (s *apiKeyStore) ListByOrg(ctx context.Context, organizationID string) ([]*authz.APIKey, error) {
	// key_hash deliberately excluded from the projection.
	rows, err := s.db.QueryContext(ctx, `
		select k.id, k.organization_id, k.user_id, k.name, k.key_prefix, k.scopes,
		       k.expires_at, k.is_active, k.last_used_at, k.created_at, k.updated_at,
		       u.full_name, u.email
		from api_keys k
		left join users u on u.id = k.user_id
		where k.organization_id = $1
		order by k.created_at desc
	`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []*authz.APIKey
	for rows.Next() {
		var (
			key       authz.APIKey
			rawScopes []byte
			expires   sql.NullTime
			lastUsed  sql.NullTime
			fullName  sql.NullString
			email     sql.NullString
		)
		if err := rows.Scan(&key.ID, &key.OrganizationID, &key.UserID, &key.Name, &key.KeyPrefix, &rawScopes,
			&expires, &key.IsActive, &lastUsed, &key.CreatedAt, &key.UpdatedAt, &fullName, &email); err != nil {
			return nil, err
		}
		key.Scopes = []string{}
		if len(rawScopes) > 0 {
			if err := json.Unmarshal(rawScopes, &key.Scopes); err != nil {
				return nil, fmt.Errorf("decode scopes: %w", err)
			}
		}
		if expires.Valid {
			t := expires.Time
			key.ExpiresAt = &t
		}
		if lastUsed.Valid {
			t := lastUsed.Time
			key.LastUsedAt = &t
		}
		if fullName.Valid {
			key.CreatorName = fullName.String
		}
		if email.Valid {
			key.CreatorEmail = email.String
		}
		keys = append(keys, &key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *apiKeyStore) TouchLastUsed(ctx context.Context, keyID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		update api_keys set last_used_at = $2, updated_at = now()
		where id = $1
	`, keyID, at)
	return err
}

func (s *apiKeyStore) Revoke(ctx context.Context, organizationID, keyID string) error {
	res, err := s.db.ExecContext(ctx, `
		update api_keys set is_active = false, updated_at = now()
		where organization_id = $1 and id = $2
	`, organizationID, keyID)
	if err != nil {
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

func (s *apiKeyStore) Delete(ctx context.Context, organizationID, keyID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from api_keys
		where organization_id = $1 and id = $2
	`, organizationID, keyID)
	if err != nil {
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

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
