package model

import "time"

// Session is one bounded show run that participants join with a short
// shareable code.  Everything except IsActive is immutable after
// creation; closing a session flips IsActive and terminates live
// subscriptions, it never deletes the record.
//
// Fields:
//  ID           – uuid primary key (sessions.id).
//  Code         – short uppercase join code, unique among active sessions.
//  Name         – human readable show name.
//  PasswordHash – bcrypt hash when the session is password gated, else "".
//  CreatedBy    – user id of the creator (automatically the stage manager).
//  IsActive     – false once the session has been closed.
//  CreatedAt    – creation timestamp.
type Session struct {
    ID           string    `json:"id"`
    Code         string    `json:"code"`
    Name         string    `json:"name"`
    PasswordHash string    `json:"-"`
    CreatedBy    uint64    `json:"created_by"`
    IsActive     bool      `json:"is_active"`
    CreatedAt    time.Time `json:"created_at"`
}

// Membership binds one user to one role within one session.  At most one
// row exists per (session, user); changing role updates the row in place.
type Membership struct {
    SessionID string    `json:"session_id"`
    UserID    uint64    `json:"user_id"`
    Role      Role      `json:"role"`
    JoinedAt  time.Time `json:"joined_at"`
}
