package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/stagekit/showcall/internal/model"
)

// SessionRepo provides data access to the `sessions` table.  Sessions
// are the system of record for show runs; the live room state in the
// show package is a cache over these rows.
type SessionRepo struct{ DB *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{DB: db} }

// Create inserts a session row.  A duplicate code surfaces as
// ErrConflict so the registry can retry with a fresh code.
func (r *SessionRepo) Create(ctx context.Context, s model.Session) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO sessions (id, code, name, password_hash, created_by, is_active) VALUES (?,?,?,?,?,?)",
		s.ID, s.Code, s.Name, s.PasswordHash, s.CreatedBy, s.IsActive)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "1062") {
		return ErrConflict
	}
	return err
}

// GetByID fetches a session regardless of its active flag.
func (r *SessionRepo) GetByID(ctx context.Context, id string) (model.Session, error) {
	var s model.Session
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,code,name,password_hash,created_by,is_active,created_at FROM sessions WHERE id=? LIMIT 1",
		id).Scan(&s.ID, &s.Code, &s.Name, &s.PasswordHash, &s.CreatedBy, &s.IsActive, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return model.Session{}, ErrNotFound
	}
	return s, err
}

// GetActiveByCode resolves a normalized join code to an active session.
// Codes of closed sessions are free for reuse, so the active flag is
// part of the lookup.
func (r *SessionRepo) GetActiveByCode(ctx context.Context, code string) (model.Session, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	var s model.Session
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,code,name,password_hash,created_by,is_active,created_at FROM sessions WHERE code=? AND is_active=1 LIMIT 1",
		code).Scan(&s.ID, &s.Code, &s.Name, &s.PasswordHash, &s.CreatedBy, &s.IsActive, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return model.Session{}, ErrNotFound
	}
	return s, err
}

// SetActive flips the is_active flag (used by CloseSession).
func (r *SessionRepo) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET is_active=? WHERE id=?", active, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
