package show

import (
	"context"
	"time"

	"github.com/stagekit/showcall/internal/model"
)

// The store interfaces are the core's view of the durable record
// store.  The MySQL repositories implement them in production; tests
// substitute in-memory fakes.  Every interface is owned by exactly one
// component; no component writes through another component's store.

type SessionStore interface {
	Create(ctx context.Context, s model.Session) error
	GetByID(ctx context.Context, id string) (model.Session, error)
	GetActiveByCode(ctx context.Context, code string) (model.Session, error)
	SetActive(ctx context.Context, id string, active bool) error
}

type MembershipStore interface {
	Create(ctx context.Context, m model.Membership) error
	Get(ctx context.Context, sessionID string, userID uint64) (model.Membership, error)
	UpdateRole(ctx context.Context, sessionID string, userID uint64, role model.Role) error
	ListBySession(ctx context.Context, sessionID string) ([]model.Membership, error)
}

type CueSheetStore interface {
	CreateSheet(ctx context.Context, sheet model.CueSheet, cues []model.Cue) error
	ActiveSheet(ctx context.Context, sessionID string) (model.CueSheet, []model.Cue, error)
}

type ProgressStore interface {
	Save(ctx context.Context, p model.CueProgress) error
	Get(ctx context.Context, sessionID string) (model.CueProgress, error)
}

type OperatorStatusStore interface {
	Upsert(ctx context.Context, s model.OperatorStatus) error
	ListBySession(ctx context.Context, sessionID string) ([]model.OperatorStatus, error)
}

type AnnouncementStore interface {
	Append(ctx context.Context, a model.Announcement) error
	RecentBySession(ctx context.Context, sessionID string, n int) ([]model.Announcement, error)
}

// EntitlementStore exposes the identity provider's role grants; the
// core trusts them without re-verifying credentials.
type EntitlementStore interface {
	Entitlements(ctx context.Context, userID uint64) ([]model.Role, error)
}

// Stores bundles every store the core depends on.
type Stores struct {
	Sessions      SessionStore
	Memberships   MembershipStore
	Sheets        CueSheetStore
	Progress      ProgressStore
	Operators     OperatorStatusStore
	Announcements AnnouncementStore
	Users         EntitlementStore
}

// Mirror receives a copy of committed events for out-of-process
// consumers (the AMQP show log).  Calls happen after the durable write
// and off the room's command path; implementations must tolerate
// broker downtime without affecting the session.
type Mirror interface {
	CueTransition(ctx context.Context, action string, p model.CueProgress)
	Announcement(ctx context.Context, a model.Announcement)
}

// Config carries the coordination knobs the core exposes.
type Config struct {
	HeartbeatTimeout     time.Duration // operator presumed offline after this silence
	AnnouncementBackfill int           // announcements replayed to late joiners
	CodeAlphabet         string        // session code character set
	CodeLength           int           // session code length
	CodeRetries          int           // collision retries before ErrCodeExhausted
	GoHold               time.Duration // how long "go" lasts before auto-complete
	AdvanceOnGo          bool          // auto-advance to the next cue after complete
}

func (c Config) withDefaults() Config {
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 30 * time.Second
	}
	if c.AnnouncementBackfill <= 0 {
		c.AnnouncementBackfill = 20
	}
	if c.CodeAlphabet == "" {
		c.CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	}
	if c.CodeLength <= 0 {
		c.CodeLength = 6
	}
	if c.CodeRetries <= 0 {
		c.CodeRetries = 10
	}
	return c
}
