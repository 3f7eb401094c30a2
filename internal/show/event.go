package show

import (
	"time"

	"github.com/stagekit/showcall/internal/model"
)

// EntityType identifies what kind of payload an event carries.
type EntityType string

const (
	EntityCueProgress    EntityType = "cue_progress"
	EntityCueSheet       EntityType = "cue_sheet"
	EntityOperatorStatus EntityType = "operator_status"
	EntityAnnouncement   EntityType = "announcement"
	EntityEmergency      EntityType = "emergency"
	EntityMembership     EntityType = "membership"
	EntitySession        EntityType = "session"
)

// Event is the envelope pushed to gateway subscribers.  CueProgress
// payloads are full replacements, never deltas: a subscriber that
// missed intermediate events on a flaky link converges on the next
// event it sees.
type Event struct {
	SessionID  string     `json:"session_id"`
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id,omitempty"`
	Payload    any        `json:"payload"`
	ServerTS   time.Time  `json:"server_ts"`

	// delivery hints, not serialized
	urgent     bool   // blocking delivery, never dropped or coalesced
	privileged bool   // only privileged roles and the owning user see it
	ownerID    uint64 // the user the event is about (for privileged routing)
}

// EmergencyPing is the payload of an EntityEmergency event.  It is a
// silent high-priority signal, distinct from announcements, and is
// never persisted.
type EmergencyPing struct {
	SessionID  string    `json:"session_id"`
	UserID     uint64    `json:"user_id"`
	Department string    `json:"department,omitempty"`
	At         time.Time `json:"at"`
}

// SessionNotice is the payload of an EntitySession event, currently
// only sent when a session is closed.
type SessionNotice struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// SheetChange is the payload of an EntityCueSheet event: a new sheet
// was activated and subscribers should reload their cue list.
type SheetChange struct {
	Sheet model.CueSheet `json:"sheet"`
	Cues  []model.Cue    `json:"cues"`
}

// CueView decorates a cue with per-viewer emphasis: MyDept is true for
// operator viewers whose department matches the cue's.
type CueView struct {
	model.Cue
	MyDept bool `json:"my_dept"`
}

// Snapshot is the full point-in-time view sent to a subscriber before
// any incremental events, so a new connection never observes a partial
// state.  Operator private notes are already filtered for the viewer.
type Snapshot struct {
	Session       model.Session          `json:"session"`
	Sheet         *model.CueSheet        `json:"sheet,omitempty"`
	Cues          []CueView              `json:"cues,omitempty"`
	Progress      model.CueProgress      `json:"progress"`
	Operators     []model.OperatorStatus `json:"operators"`
	Announcements []model.Announcement   `json:"announcements"`
}

// privilegedRole reports whether the role may see operator private
// notes and receives emergency pings.
func privilegedRole(r model.Role) bool {
	switch r {
	case model.RoleStageManager, model.RoleDirector, model.RoleDirectorPlus, model.RoleAdmin:
		return true
	}
	return false
}
