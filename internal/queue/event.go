// Package queue defines message payloads exchanged over the message broker.
package queue

// ShowLogEvent is published for every committed cue transition and
// announcement.  It carries enough for downstream consumers (the show
// log, analytics) to work without querying the primary database.
type ShowLogEvent struct {
	Kind      string `json:"kind"` // "cue" or "announcement"
	SessionID string `json:"session_id"`

	// cue transition fields
	Action     string `json:"action,omitempty"` // standby|go|complete|next|previous|undo|reset
	OrderIndex int    `json:"order_index,omitempty"`
	Phase      string `json:"phase,omitempty"`

	// announcement fields
	Message     string `json:"message,omitempty"`
	IsEmergency bool   `json:"is_emergency,omitempty"`

	UserID uint64 `json:"user_id"`
	At     string `json:"at"` // RFC3339
}
