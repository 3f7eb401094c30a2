package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/stagekit/showcall/internal/model"
)

// MembershipRepo provides data access to the `session_participants`
// table.  The (session_id, user_id) pair is the primary key: rejoining
// never creates a second row, and role changes update in place.
type MembershipRepo struct{ DB *sql.DB }

func NewMembershipRepo(db *sql.DB) *MembershipRepo { return &MembershipRepo{DB: db} }

// Create inserts a membership row.  A duplicate pair surfaces as
// ErrConflict; the membership manager decides whether that is an
// idempotent re-enroll or an AlreadyEnrolled rejection.
func (r *MembershipRepo) Create(ctx context.Context, m model.Membership) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO session_participants (session_id, user_id, role) VALUES (?,?,?)",
		m.SessionID, m.UserID, string(m.Role))
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "1062") {
		return ErrConflict
	}
	return err
}

// Get fetches the membership for one user in one session.
func (r *MembershipRepo) Get(ctx context.Context, sessionID string, userID uint64) (model.Membership, error) {
	var (
		m    model.Membership
		role string
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT session_id,user_id,role,joined_at FROM session_participants WHERE session_id=? AND user_id=? LIMIT 1",
		sessionID, userID).Scan(&m.SessionID, &m.UserID, &role, &m.JoinedAt)
	if err == sql.ErrNoRows {
		return model.Membership{}, ErrNotFound
	}
	if err != nil {
		return model.Membership{}, err
	}
	m.Role, _ = model.ParseRole(role)
	return m, nil
}

// UpdateRole switches the stored role in place (explicit role switch,
// never a second row).
func (r *MembershipRepo) UpdateRole(ctx context.Context, sessionID string, userID uint64, role model.Role) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE session_participants SET role=? WHERE session_id=? AND user_id=?",
		string(role), sessionID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBySession returns all memberships of a session, oldest first.
func (r *MembershipRepo) ListBySession(ctx context.Context, sessionID string) ([]model.Membership, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT session_id,user_id,role,joined_at FROM session_participants WHERE session_id=? ORDER BY joined_at",
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Membership
	for rows.Next() {
		var (
			m    model.Membership
			role string
		)
		if err := rows.Scan(&m.SessionID, &m.UserID, &role, &m.JoinedAt); err != nil {
			return nil, err
		}
		m.Role, _ = model.ParseRole(role)
		out = append(out, m)
	}
	return out, rows.Err()
}
