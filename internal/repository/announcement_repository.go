package repository

import (
	"context"
	"database/sql"

	"github.com/stagekit/showcall/internal/model"
)

// AnnouncementRepo provides append-only access to the `announcements`
// table.  The core never updates or deletes rows; retention is an
// external concern.
type AnnouncementRepo struct{ DB *sql.DB }

func NewAnnouncementRepo(db *sql.DB) *AnnouncementRepo { return &AnnouncementRepo{DB: db} }

// Append inserts one announcement row.
func (r *AnnouncementRepo) Append(ctx context.Context, a model.Announcement) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO announcements (id, session_id, message, sent_by, is_emergency, created_at) VALUES (?,?,?,?,?,?)",
		a.ID, a.SessionID, a.Message, a.SentBy, a.IsEmergency, a.CreatedAt.UTC())
	return err
}

// RecentBySession returns the newest n announcements in chronological
// order (oldest first), for late-joiner backfill.
func (r *AnnouncementRepo) RecentBySession(ctx context.Context, sessionID string, n int) ([]model.Announcement, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,session_id,message,sent_by,is_emergency,created_at
		 FROM announcements WHERE session_id=? ORDER BY created_at DESC, id DESC LIMIT ?`,
		sessionID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Announcement
	for rows.Next() {
		var a model.Announcement
		if err := rows.Scan(&a.ID, &a.SessionID, &a.Message, &a.SentBy, &a.IsEmergency, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// reverse into chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
