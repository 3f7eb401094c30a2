package model

import "time"

// Phase is the live execution state of the currently pointed-to cue.
type Phase string

const (
    PhaseWaiting  Phase = "waiting"  // pointer parked, nothing called
    PhaseStandby  Phase = "standby"  // cue called to standby
    PhaseGo       Phase = "go"       // cue firing (transient)
    PhaseComplete Phase = "complete" // cue executed, pointer not yet advanced
)

// NoCue is the CurrentOrderIndex value before a session has an active
// cue sheet.  It never appears while a sheet is active.
const NoCue = -1

// CueProgress is the authoritative per-session cue state.  Consumers of
// change events must treat every event as a full replacement of this
// struct: intermediate events may be missed across reconnects, so a
// delta encoding would corrupt their view.
type CueProgress struct {
    SessionID         string    `json:"session_id"`
    CurrentOrderIndex int       `json:"current_cue_order_index"`
    Phase             Phase     `json:"phase"`
    UpdatedBy         uint64    `json:"updated_by"`
    UpdatedAt         time.Time `json:"updated_at"`
}
