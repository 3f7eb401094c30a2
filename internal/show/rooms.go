package show

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stagekit/showcall/internal/model"
	"github.com/stagekit/showcall/internal/repository"
)

// Rooms owns the set of live rooms, one per active session.  Rooms are
// loaded from the stores on first use and evicted when their session
// closes.  Sessions share nothing: load and mutation in one room never
// touches another.
type Rooms struct {
	cfg    Config
	stores Stores
	mirror Mirror
	rdb    *redis.Client
	log    zerolog.Logger

	mu    sync.Mutex
	rooms map[string]*Room
}

func NewRooms(cfg Config, stores Stores, mirror Mirror, rdb *redis.Client, log zerolog.Logger) *Rooms {
	return &Rooms{
		cfg:    cfg.withDefaults(),
		stores: stores,
		mirror: mirror,
		rdb:    rdb,
		log:    log,
		rooms:  make(map[string]*Room),
	}
}

// Get returns the live room for a session, loading it from the stores
// when no instance is attached yet.  Loading holds the manager lock so
// concurrent callers for the same session share one load.
func (rs *Rooms) Get(ctx context.Context, sessionID string) (*Room, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if room, ok := rs.rooms[sessionID]; ok {
		return room, nil
	}
	room, err := rs.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rs.rooms[sessionID] = room
	return room, nil
}

// Peek returns the live room if one is attached, without loading.
func (rs *Rooms) Peek(sessionID string) *Room {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.rooms[sessionID]
}

// Close terminates and evicts a session's room, if attached.
func (rs *Rooms) Close(sessionID, reason string) {
	rs.mu.Lock()
	room := rs.rooms[sessionID]
	delete(rs.rooms, sessionID)
	rs.mu.Unlock()
	if room != nil {
		room.Close(reason)
	}
}

// Shutdown terminates every live room, used on server stop.
func (rs *Rooms) Shutdown(reason string) {
	rs.mu.Lock()
	rooms := make([]*Room, 0, len(rs.rooms))
	for _, r := range rs.rooms {
		rooms = append(rooms, r)
	}
	rs.rooms = make(map[string]*Room)
	rs.mu.Unlock()
	for _, r := range rooms {
		r.Close(reason)
	}
}

// load hydrates a room from the durable record: session row,
// memberships, the active cue sheet, saved progress, operator rows and
// the recent announcement window.  A session with a sheet but no saved
// progress starts at the first cue in waiting; a session without a
// sheet carries the NoCue pointer.
func (rs *Rooms) load(ctx context.Context, sessionID string) (*Room, error) {
	s, err := rs.stores.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !s.IsActive {
		return nil, ErrSessionClosed
	}

	members, err := rs.stores.Memberships.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var sheetPtr *model.CueSheet
	var cues []model.Cue
	sheet, sheetCues, err := rs.stores.Sheets.ActiveSheet(ctx, sessionID)
	switch {
	case err == nil:
		sheetCopy := sheet
		sheetPtr = &sheetCopy
		cues = sheetCues
	case errors.Is(err, repository.ErrNotFound):
		// no sheet yet
	default:
		return nil, err
	}

	progress, err := rs.stores.Progress.Get(ctx, sessionID)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound):
		progress = model.CueProgress{
			SessionID:         sessionID,
			CurrentOrderIndex: model.NoCue,
			Phase:             model.PhaseWaiting,
			UpdatedAt:         time.Now().UTC(),
		}
		if len(cues) > 0 {
			progress.CurrentOrderIndex = cues[0].OrderIndex
		}
	default:
		return nil, err
	}

	ops, err := rs.stores.Operators.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	recent, err := rs.stores.Announcements.RecentBySession(ctx, sessionID, rs.cfg.AnnouncementBackfill)
	if err != nil {
		return nil, err
	}

	room := newRoom(rs.cfg, rs.stores, rs.mirror, rs.rdb, rs.log, s)
	for _, m := range members {
		room.members[m.UserID] = m
	}
	room.sheet = sheetPtr
	room.cues = cues
	room.progress = progress
	for _, op := range ops {
		cp := op
		room.operators[op.UserID] = &cp
	}
	room.recent = recent
	// The room goroutines start only after the hydrated state is in place.
	room.start()

	rs.log.Info().Str("session_id", sessionID).Int("members", len(members)).
		Int("cues", len(cues)).Msg("room loaded")
	return room, nil
}
