package show

import "github.com/stagekit/showcall/internal/model"

// Capabilities describes what a role may do inside a session.  The
// mapping is a pure function of the role; it is evaluated by the
// gateway before a command is forwarded and again by the owning
// component, so a stale connection role can never smuggle a command
// through.
type Capabilities struct {
    DriveCues         bool // invoke cue state machine transitions
    ViewState         bool // receive cue/operator snapshots and events
    SetOwnReadiness   bool // toggle own ready flag, notes, heartbeat
    SendAnnouncements bool // broadcast to the session
    ManageMembership  bool // close session, switch member roles
}

// CapabilitiesFor returns the capability set of a role.  Unknown roles
// get the zero value, which permits nothing.
func CapabilitiesFor(r model.Role) Capabilities {
    switch r {
    case model.RoleStageManager:
        return Capabilities{DriveCues: true, ViewState: true, SendAnnouncements: true, ManageMembership: true}
    case model.RoleOperator:
        return Capabilities{ViewState: true, SetOwnReadiness: true}
    case model.RoleDirector:
        return Capabilities{ViewState: true}
    case model.RoleDirectorPlus:
        return Capabilities{ViewState: true, ManageMembership: true}
    case model.RoleAdmin:
        return Capabilities{ViewState: true, SendAnnouncements: true, ManageMembership: true}
    }
    return Capabilities{}
}
