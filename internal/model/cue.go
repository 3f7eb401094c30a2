package model

import "time"

// CueSheet groups the ordered cues of one session.  Exactly one sheet
// per session is active at a time; activating a new sheet resets the
// session's cue pointer to the first cue.
type CueSheet struct {
    ID        string    `json:"id"`
    SessionID string    `json:"session_id"`
    Name      string    `json:"name"`
    IsActive  bool      `json:"is_active"`
    CreatedAt time.Time `json:"created_at"`
}

// Cue is a single scripted action in a sheet.  OrderIndex is the sole
// ordering truth: dense, unique within the sheet, assigned on creation.
// Number and SubNumber are display labels only and are free to skip
// around (e.g. "12", "12.5", "13A").
type Cue struct {
    ID          string `json:"id"`
    SheetID     string `json:"sheet_id"`
    OrderIndex  int    `json:"order_index"`
    Number      string `json:"number"`
    SubNumber   string `json:"sub_number,omitempty"`
    Department  string `json:"department"`
    Description string `json:"description"`
    Notes       string `json:"notes,omitempty"`
    Hold        bool   `json:"hold"`
    ColorCode   string `json:"color_code,omitempty"`
}
