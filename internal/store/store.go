package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"linkoraadmin/internal/db"
	"linkoraadmin/internal/models"
)

var ErrNotFound = errors.New("not found")
var ErrConflict = errors.New("conflict")

type Store struct {
	db     *sql.DB
	driver string
}

func New(sqdb *sql.DB, driver string) *Store { return &Store{db: sqdb, driver: driver} }

func (s *Store) q(query string) string { return db.Rebind(s.driver, query) }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) CreateAdmin(ctx context.Context, email, displayName, passwordHash string) (models.Admin, error) {
	email = normalizeEmail(email)
	if email == "" {
		return models.Admin{}, errors.New("email is required")
	}
	if _, err := s.GetAdminByEmail(ctx, email); err == nil {
		return models.Admin{}, ErrConflict
	} else if !errors.Is(err, ErrNotFound) {
		return models.Admin{}, err
	}
	now := time.Now().UTC()
	a := models.Admin{ID: uuid.NewString(), Email: email, DisplayName: strings.TrimSpace(displayName), PasswordHash: passwordHash, CreatedAt: now, UpdatedAt: now}
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO admins(id,email,display_name,password_hash,created_at,updated_at) VALUES(?,?,?,?,?,?)`),
		a.ID, a.Email, a.DisplayName, a.PasswordHash, a.CreatedAt, a.UpdatedAt,
	)
	return a, err
}

// EnsureAdmin creates or resets the bootstrap admin account.
func (s *Store) EnsureAdmin(ctx context.Context, email, displayName, passwordHash string) error {
	email = normalizeEmail(email)
	if email == "" || passwordHash == "" {
		return nil
	}
	a, err := s.GetAdminByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		_, err = s.CreateAdmin(ctx, email, displayName, passwordHash)
		return err
	}
	if err != nil {
		return err
	}
	return s.UpdateAdminPasswordHash(ctx, a.ID, passwordHash)
}

func (s *Store) UpdateAdminPasswordHash(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		s.q(`UPDATE admins SET password_hash=?, updated_at=? WHERE id=?`),
		passwordHash, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// EnsureAdminProfile returns the admin row for an identity verified elsewhere,
// creating a password-less profile on first sight.
func (s *Store) EnsureAdminProfile(ctx context.Context, email, displayName string) (models.Admin, error) {
	a, err := s.GetAdminByEmail(ctx, email)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return models.Admin{}, err
	}
	a, err = s.CreateAdmin(ctx, email, displayName, "")
	if errors.Is(err, ErrConflict) {
		return s.GetAdminByEmail(ctx, email)
	}
	return a, err
}

func (s *Store) GetAdminByEmail(ctx context.Context, email string) (models.Admin, error) {
	return s.getAdmin(ctx, `SELECT id,email,display_name,password_hash,created_at,updated_at,last_login_at FROM admins WHERE email=?`, normalizeEmail(email))
}

func (s *Store) GetAdminByID(ctx context.Context, id string) (models.Admin, error) {
	return s.getAdmin(ctx, `SELECT id,email,display_name,password_hash,created_at,updated_at,last_login_at FROM admins WHERE id=?`, id)
}

func (s *Store) getAdmin(ctx context.Context, query, arg string) (models.Admin, error) {
	var a models.Admin
	var lastLogin sql.NullTime
	err := s.db.QueryRowContext(ctx, s.q(query), arg).
		Scan(&a.ID, &a.Email, &a.DisplayName, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Admin{}, ErrNotFound
	}
	if err != nil {
		return models.Admin{}, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		a.LastLoginAt = &t
	}
	return a, nil
}

func (s *Store) UpdateAdminDisplayName(ctx context.Context, id, displayName string) error {
	res, err := s.db.ExecContext(ctx,
		s.q(`UPDATE admins SET display_name=?, updated_at=? WHERE id=?`),
		strings.TrimSpace(displayName), time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) TouchAdminLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE admins SET last_login_at=? WHERE id=?`), at, id)
	return err
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func normalizeEmail(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
