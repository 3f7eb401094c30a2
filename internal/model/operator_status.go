package model

import "time"

// OperatorStatus is the presence and readiness row of one operator in
// one session.  The row is created when an operator enrolls and
// persists across reconnects; only IsOnline flips with connectivity.
//
// Fields:
//  SessionID         – session the operator belongs to.
//  UserID            – operator's user id.
//  Department        – department the operator runs (e.g. "Lighting").
//  IsReady           – operator-toggled readiness flag.
//  IsOnline          – flips false when heartbeats stop for longer than
//                      the configured timeout, true again on reconnect.
//  CurrentOrderIndex – the cue the operator is tracking locally.
//  PrivateNotes      – notes shared with stage manager and directors,
//                      hidden from other operators.
//  LastPing          – time of the most recent heartbeat.
type OperatorStatus struct {
    SessionID         string    `json:"session_id"`
    UserID            uint64    `json:"user_id"`
    Department        string    `json:"department,omitempty"`
    IsReady           bool      `json:"is_ready"`
    IsOnline          bool      `json:"is_online"`
    CurrentOrderIndex int       `json:"current_cue_order_index"`
    PrivateNotes      string    `json:"private_notes,omitempty"`
    LastPing          time.Time `json:"last_ping"`
}

// Announcement is one broadcast message.  Rows are append-only; the
// core never mutates or deletes them (pruning is an external concern).
type Announcement struct {
    ID          string    `json:"id"`
    SessionID   string    `json:"session_id"`
    Message     string    `json:"message"`
    SentBy      uint64    `json:"sent_by"`
    IsEmergency bool      `json:"is_emergency"`
    CreatedAt   time.Time `json:"created_at"`
}
