package show

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/stagekit/showcall/internal/model"
	"github.com/stagekit/showcall/internal/repository"
)

// memStore is the shared state behind the in-memory store fakes that
// stand in for the MySQL repositories.  Each interface is satisfied by
// a thin wrapper so method names can mirror the real repositories.
// Failure flags let tests exercise the write-through error paths.
type memStore struct {
	mu            sync.Mutex
	sessions      map[string]model.Session
	memberships   map[string]model.Membership
	sheets        map[string]model.CueSheet // active sheet by session id
	sheetCues     map[string][]model.Cue
	progress      map[string]model.CueProgress
	operators     map[string]model.OperatorStatus
	announcements map[string][]model.Announcement
	entitlements  map[uint64][]model.Role

	failProgress    bool // progress Save returns an error
	failOperators   bool // operator Upsert returns an error
	failMemberships bool // membership Create returns an error
}

func newMemStore() *memStore {
	return &memStore{
		sessions:      make(map[string]model.Session),
		memberships:   make(map[string]model.Membership),
		sheets:        make(map[string]model.CueSheet),
		sheetCues:     make(map[string][]model.Cue),
		progress:      make(map[string]model.CueProgress),
		operators:     make(map[string]model.OperatorStatus),
		announcements: make(map[string][]model.Announcement),
		entitlements:  make(map[uint64][]model.Role),
	}
}

func (m *memStore) stores() Stores {
	return Stores{
		Sessions:      memSessions{m},
		Memberships:   memMemberships{m},
		Sheets:        memSheets{m},
		Progress:      memProgress{m},
		Operators:     memOperators{m},
		Announcements: memAnnouncements{m},
		Users:         memUsers{m},
	}
}

func memberKey(sessionID string, userID uint64) string {
	return fmt.Sprintf("%s|%d", sessionID, userID)
}

type memSessions struct{ *memStore }

func (m memSessions) Create(ctx context.Context, s model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, have := range m.sessions {
		if have.Code == s.Code && have.IsActive {
			return repository.ErrConflict
		}
	}
	m.sessions[s.ID] = s
	return nil
}

func (m memSessions) GetByID(ctx context.Context, id string) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return model.Session{}, repository.ErrNotFound
	}
	return s, nil
}

func (m memSessions) GetActiveByCode(ctx context.Context, code string) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.Code == code && s.IsActive {
			return s, nil
		}
	}
	return model.Session{}, repository.ErrNotFound
}

func (m memSessions) SetActive(ctx context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	s.IsActive = active
	m.sessions[id] = s
	return nil
}

type memMemberships struct{ *memStore }

func (m memMemberships) Create(ctx context.Context, mb model.Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failMemberships {
		return errors.New("membership store down")
	}
	k := memberKey(mb.SessionID, mb.UserID)
	if _, ok := m.memberships[k]; ok {
		return repository.ErrConflict
	}
	m.memberships[k] = mb
	return nil
}

func (m memMemberships) Get(ctx context.Context, sessionID string, userID uint64) (model.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mb, ok := m.memberships[memberKey(sessionID, userID)]
	if !ok {
		return model.Membership{}, repository.ErrNotFound
	}
	return mb, nil
}

func (m memMemberships) UpdateRole(ctx context.Context, sessionID string, userID uint64, role model.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memberKey(sessionID, userID)
	mb, ok := m.memberships[k]
	if !ok {
		return repository.ErrNotFound
	}
	mb.Role = role
	m.memberships[k] = mb
	return nil
}

func (m memMemberships) ListBySession(ctx context.Context, sessionID string) ([]model.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Membership
	for _, mb := range m.memberships {
		if mb.SessionID == sessionID {
			out = append(out, mb)
		}
	}
	return out, nil
}

type memSheets struct{ *memStore }

func (m memSheets) CreateSheet(ctx context.Context, sheet model.CueSheet, cues []model.Cue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sheets[sheet.SessionID] = sheet
	m.sheetCues[sheet.SessionID] = cues
	return nil
}

func (m memSheets) ActiveSheet(ctx context.Context, sessionID string) (model.CueSheet, []model.Cue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sheet, ok := m.sheets[sessionID]
	if !ok {
		return model.CueSheet{}, nil, repository.ErrNotFound
	}
	return sheet, m.sheetCues[sessionID], nil
}

type memProgress struct{ *memStore }

func (m memProgress) Save(ctx context.Context, p model.CueProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failProgress {
		return errors.New("progress store down")
	}
	m.progress[p.SessionID] = p
	return nil
}

func (m memProgress) Get(ctx context.Context, sessionID string) (model.CueProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.progress[sessionID]
	if !ok {
		return model.CueProgress{}, repository.ErrNotFound
	}
	return p, nil
}

type memOperators struct{ *memStore }

func (m memOperators) Upsert(ctx context.Context, s model.OperatorStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOperators {
		return errors.New("operator store down")
	}
	m.operators[memberKey(s.SessionID, s.UserID)] = s
	return nil
}

func (m memOperators) ListBySession(ctx context.Context, sessionID string) ([]model.OperatorStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.OperatorStatus
	for _, s := range m.operators {
		if s.SessionID == sessionID {
			out = append(out, s)
		}
	}
	return out, nil
}

type memAnnouncements struct{ *memStore }

func (m memAnnouncements) Append(ctx context.Context, a model.Announcement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.announcements[a.SessionID] = append(m.announcements[a.SessionID], a)
	return nil
}

func (m memAnnouncements) RecentBySession(ctx context.Context, sessionID string, n int) ([]model.Announcement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.announcements[sessionID]
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return append([]model.Announcement(nil), all...), nil
}

type memUsers struct{ *memStore }

func (m memUsers) Entitlements(ctx context.Context, userID uint64) ([]model.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Role(nil), m.entitlements[userID]...), nil
}

// recordingMirror collects mirrored events for assertions.
type recordingMirror struct {
	mu            sync.Mutex
	transitions   []string
	announcements []model.Announcement
}

func (m *recordingMirror) CueTransition(ctx context.Context, action string, p model.CueProgress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, action)
}

func (m *recordingMirror) Announcement(ctx context.Context, a model.Announcement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.announcements = append(m.announcements, a)
}
