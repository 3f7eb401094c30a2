package show

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stagekit/showcall/internal/model"
	"github.com/stagekit/showcall/internal/repository"
)

// storeTimeout bounds write-through calls issued from room goroutines
// (auto-complete timers, staleness sweeps) that have no request context.
const storeTimeout = 5 * time.Second

// Room is the live state of one active session.  All mutations are
// serialized through mu, so transition requests apply atomically in
// arrival order; rooms of different sessions share nothing and never
// contend.  Fan-out runs on a separate goroutine fed by the events
// channel, so publishing never blocks a mutator on slow subscribers.
type Room struct {
	cfg    Config
	stores Stores
	mirror Mirror
	rdb    *redis.Client // optional; mirrors presence TTLs across instances
	log    zerolog.Logger

	sessionID string

	mu        sync.Mutex
	session   model.Session
	sheet     *model.CueSheet
	cues      []model.Cue // ordered by OrderIndex
	progress  model.CueProgress
	operators map[uint64]*model.OperatorStatus
	members   map[uint64]model.Membership
	recent    []model.Announcement // last N for backfill
	goSeq     uint64               // invalidates stale auto-complete timers
	closed    bool

	subsMu sync.RWMutex
	subs   map[*Subscriber]struct{}

	events chan Event
	done   chan struct{}
}

// Subscriber is one gateway connection's view of a room.  Events are
// buffered; non-urgent events are dropped on backpressure (the next
// full-replace event resyncs the client), urgent events always land.
type Subscriber struct {
	UserID uint64

	room      *Room
	role      model.Role // guarded by room.subsMu
	ch        chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// Events is the stream the gateway writer drains.
func (s *Subscriber) Events() <-chan Event { return s.ch }

// Done is closed when the subscriber is detached or the room closes.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Role returns the subscriber's current role; it follows role switches
// made while the connection is up.
func (s *Subscriber) Role() model.Role {
	s.room.subsMu.RLock()
	defer s.room.subsMu.RUnlock()
	return s.role
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func newRoom(cfg Config, stores Stores, mirror Mirror, rdb *redis.Client, log zerolog.Logger, session model.Session) *Room {
	r := &Room{
		cfg:       cfg,
		stores:    stores,
		mirror:    mirror,
		rdb:       rdb,
		log:       log.With().Str("session_id", session.ID).Logger(),
		sessionID: session.ID,
		session:   session,
		operators: make(map[uint64]*model.OperatorStatus),
		members:   make(map[uint64]model.Membership),
		subs:      make(map[*Subscriber]struct{}),
		events:    make(chan Event, 256),
		done:      make(chan struct{}),
	}
	return r
}

// start launches the fan-out and presence-sweep goroutines.  Callers
// finish populating the hydrated state before starting them, so the
// goroutines never observe a half-built room.
func (r *Room) start() {
	go r.fanout()
	go r.sweepLoop()
}

// SessionID returns the id of the session this room serves.
func (r *Room) SessionID() string { return r.sessionID }

// Done is closed when the room shuts down.
func (r *Room) Done() <-chan struct{} { return r.done }

// Member resolves a user's membership in this session.
func (r *Room) Member(userID uint64) (model.Membership, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[userID]
	return m, ok
}

// Progress returns the current CueProgress (for error-resync replies).
func (r *Room) Progress() model.CueProgress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

// Subscribe attaches a connection for the given member.  The caller
// must hold a membership; the subscriber's role tracks later switches.
func (r *Room) Subscribe(userID uint64) (*Subscriber, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrSessionClosed
	}
	m, ok := r.members[userID]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no membership for user %d: %w", userID, repository.ErrNotFound)
	}
	sub := &Subscriber{
		UserID: userID,
		room:   r,
		role:   m.Role,
		ch:     make(chan Event, 64),
		done:   make(chan struct{}),
	}
	r.subsMu.Lock()
	r.subs[sub] = struct{}{}
	r.subsMu.Unlock()
	return sub, nil
}

// Unsubscribe detaches a connection.  Presence is handled separately
// via MarkDisconnected so that multiple connections of one identity do
// not flap the online flag.
func (r *Room) Unsubscribe(sub *Subscriber) {
	r.subsMu.Lock()
	delete(r.subs, sub)
	r.subsMu.Unlock()
	sub.close()
}

// HasSubscriber reports whether any connection of the user remains.
func (r *Room) HasSubscriber(userID uint64) bool {
	r.subsMu.RLock()
	defer r.subsMu.RUnlock()
	for s := range r.subs {
		if s.UserID == userID {
			return true
		}
	}
	return false
}

// Snapshot assembles the full view for one subscriber under a single
// lock acquisition, so cue progress and operator rows are from the
// same instant (no torn reads).  Private notes of other operators are
// stripped for operator viewers.
func (r *Room) Snapshot(viewerID uint64) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	viewer := r.members[viewerID]
	viewerDept := ""
	if op, ok := r.operators[viewerID]; ok {
		viewerDept = op.Department
	}

	snap := Snapshot{
		Session:  r.session,
		Progress: r.progress,
	}
	if r.sheet != nil {
		sheet := *r.sheet
		snap.Sheet = &sheet
		snap.Cues = make([]CueView, 0, len(r.cues))
		for _, c := range r.cues {
			snap.Cues = append(snap.Cues, CueView{
				Cue:    c,
				MyDept: viewer.Role == model.RoleOperator && viewerDept != "" && c.Department == viewerDept,
			})
		}
	}
	snap.Operators = make([]model.OperatorStatus, 0, len(r.operators))
	for _, op := range r.operators {
		s := *op
		if !privilegedRole(viewer.Role) && s.UserID != viewerID {
			s.PrivateNotes = ""
		}
		snap.Operators = append(snap.Operators, s)
	}
	snap.Announcements = append([]model.Announcement(nil), r.recent...)
	return snap
}

// UpsertMember is called by the registry after an enroll or rejoin so
// the live room reflects the durable membership.  Operator members get
// their status row materialized in memory.
func (r *Room) UpsertMember(m model.Membership, department string, status *model.OperatorStatus) {
	r.mu.Lock()
	r.members[m.UserID] = m
	if m.Role == model.RoleOperator {
		if status != nil {
			cp := *status
			r.operators[m.UserID] = &cp
		} else if _, ok := r.operators[m.UserID]; !ok {
			r.operators[m.UserID] = &model.OperatorStatus{
				SessionID:         r.sessionID,
				UserID:            m.UserID,
				Department:        department,
				CurrentOrderIndex: model.NoCue,
			}
		}
	}
	ev := r.eventLocked(EntityMembership, "", m)
	r.mu.Unlock()
	r.publish(ev)
}

// UpdateMemberRole applies a role switch to the live room and to every
// open subscription of that user, re-issuing its capabilities in place.
func (r *Room) UpdateMemberRole(userID uint64, role model.Role) {
	r.mu.Lock()
	m, ok := r.members[userID]
	if !ok {
		r.mu.Unlock()
		return
	}
	m.Role = role
	r.members[userID] = m
	if role == model.RoleOperator {
		if _, exists := r.operators[userID]; !exists {
			r.operators[userID] = &model.OperatorStatus{
				SessionID:         r.sessionID,
				UserID:            userID,
				CurrentOrderIndex: model.NoCue,
			}
		}
	}
	ev := r.eventLocked(EntityMembership, "", m)
	r.mu.Unlock()

	r.subsMu.Lock()
	for s := range r.subs {
		if s.UserID == userID {
			s.role = role
		}
	}
	r.subsMu.Unlock()

	r.publish(ev)
}

// Close terminates the room: a SessionClosed notice is delivered to all
// subscribers, then every subscription and the room goroutines stop.
func (r *Room) Close(reason string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	notice := r.eventLocked(EntitySession, "", SessionNotice{SessionID: r.sessionID, Reason: reason})
	notice.urgent = true // must reach even backlogged subscribers
	r.mu.Unlock()

	// Synchronous delivery: the notice must land before channels close.
	r.deliver(notice)

	r.subsMu.Lock()
	for s := range r.subs {
		s.close()
	}
	r.subs = make(map[*Subscriber]struct{})
	r.subsMu.Unlock()

	close(r.done)
}

// eventLocked stamps an envelope; callers hold r.mu.
func (r *Room) eventLocked(t EntityType, id string, payload any) Event {
	return Event{
		SessionID:  r.sessionID,
		EntityType: t,
		EntityID:   id,
		Payload:    payload,
		ServerTS:   time.Now().UTC(),
	}
}

// publish enqueues an event for fan-out.  The channel send preserves
// commit order because every mutator publishes while its own command
// still owns the room lock sequence.
func (r *Room) publish(ev Event) {
	select {
	case r.events <- ev:
	case <-r.done:
	}
}

func (r *Room) fanout() {
	for {
		select {
		case ev := <-r.events:
			r.deliver(ev)
		case <-r.done:
			return
		}
	}
}

// deliver pushes one event to every eligible subscriber.  Normal events
// are dropped on a full buffer (the stream self-heals via full-replace
// payloads); urgent events always land, evicting buffered events if the
// subscriber is backlogged.
func (r *Room) deliver(ev Event) {
	r.subsMu.RLock()
	targets := make([]*Subscriber, 0, len(r.subs))
	roles := make([]model.Role, 0, len(r.subs))
	for s := range r.subs {
		targets = append(targets, s)
		roles = append(roles, s.role)
	}
	r.subsMu.RUnlock()

	for i, s := range targets {
		role := roles[i]
		if ev.privileged && !privilegedRole(role) && (ev.ownerID == 0 || s.UserID != ev.ownerID) {
			continue
		}
		if ev.urgent {
			deliverUrgent(s, ev)
			continue
		}
		select {
		case s.ch <- ev:
		default:
			r.log.Warn().Uint64("user_id", s.UserID).Str("entity", string(ev.EntityType)).
				Msg("subscriber buffer full, event dropped")
		}
	}
}

// deliverUrgent places an event on a subscriber channel no matter how
// backlogged it is: when the buffer is full, the oldest pending event
// is evicted to make room.  Pending events are replaceable (the next
// full-replace payload resyncs the client); a close notice or an
// emergency is not.
func deliverUrgent(s *Subscriber, ev Event) {
	for {
		select {
		case s.ch <- ev:
			return
		case <-s.done:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// sweepLoop periodically demotes operators whose heartbeats stopped.
func (r *Room) sweepLoop() {
	interval := r.cfg.HeartbeatTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			r.sweepStale()
		case <-r.done:
			return
		}
	}
}

// sweepStale flips operators offline whose last ping is older than the
// timeout.  The durable write happens before the flip is published; on
// store failure the operator stays online and the next sweep retries,
// so the offline event is published exactly once per disconnection.
func (r *Room) sweepStale() {
	now := time.Now().UTC()
	var evs []Event

	r.mu.Lock()
	for _, op := range r.operators {
		if !op.IsOnline || now.Sub(op.LastPing) <= r.cfg.HeartbeatTimeout {
			continue
		}
		if r.presenceAlive(op.UserID) {
			// another instance is still seeing heartbeats
			continue
		}
		next := *op
		next.IsOnline = false
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		err := r.stores.Operators.Upsert(ctx, next)
		cancel()
		if err != nil {
			r.log.Error().Err(err).Uint64("user_id", op.UserID).Msg("presence write-through failed")
			continue
		}
		*op = next
		evs = append(evs, r.eventLocked(EntityOperatorStatus, "", next))
	}
	r.mu.Unlock()

	for _, ev := range evs {
		r.publish(ev)
	}
}

// presenceAlive consults the shared Redis TTL key when available.
func (r *Room) presenceAlive(userID uint64) bool {
	if r.rdb == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n, err := r.rdb.Exists(ctx, presenceKey(r.sessionID, userID)).Result()
	return err == nil && n > 0
}

func presenceKey(sessionID string, userID uint64) string {
	return fmt.Sprintf("presence:%s:%d", sessionID, userID)
}
