package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"nexteach.org/internal/authz"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

var _ authz.Store = (*Store)(nil)

// Store implements authz.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL with tuned pool defaults.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing connection pool (tests use sqlmock here).
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Permissions(ctx context.Context) authz.PermissionStore {
	return &permissionStore{db: s.db}
}
func (s *Store) Roles(ctx context.Context) authz.RoleStore     { return &roleStore{db: s.db} }
func (s *Store) Members(ctx context.Context) authz.MemberStore { return &memberStore{db: s.db} }
func (s *Store) APIKeys(ctx context.Context) authz.APIKeyStore { return &apiKeyStore{db: s.db} }

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
