package show

import (
	"context"
	"fmt"
	"time"

	"github.com/stagekit/showcall/internal/model"
	"github.com/stagekit/showcall/internal/repository"
)

// Presence & readiness tracking.  One OperatorStatus row per operator
// membership; the row persists across reconnects, only IsOnline and
// LastPing follow connectivity.  Mutations write through the operator
// status store before publishing, same contract as the cue machine.

// Heartbeat records a ping from an operator connection and revives the
// online flag when it was down.  The online->online fast path still
// refreshes LastPing and the Redis TTL but publishes nothing.
func (r *Room) Heartbeat(ctx context.Context, userID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, err := r.operatorLocked(userID)
	if err != nil {
		return err
	}
	next := *op
	next.LastPing = time.Now().UTC()
	wasOffline := !next.IsOnline
	next.IsOnline = true
	if err := r.stores.Operators.Upsert(ctx, next); err != nil {
		return fmt.Errorf("heartbeat write-through: %w", err)
	}
	*op = next
	r.touchPresenceKey(userID)
	if wasOffline {
		r.publish(r.eventLocked(EntityOperatorStatus, "", next))
	}
	return nil
}

// SetReady toggles the operator's own readiness flag.  Always legal
// regardless of cue phase.
func (r *Room) SetReady(ctx context.Context, userID uint64, ready bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, err := r.operatorLocked(userID)
	if err != nil {
		return err
	}
	next := *op
	next.IsReady = ready
	if err := r.stores.Operators.Upsert(ctx, next); err != nil {
		return fmt.Errorf("readiness write-through: %w", err)
	}
	*op = next
	r.publish(r.eventLocked(EntityOperatorStatus, "", next))
	return nil
}

// SetPrivateNotes overwrites the operator's notes.  The resulting event
// is routed only to privileged roles and the operator itself; other
// operators never see it.
func (r *Room) SetPrivateNotes(ctx context.Context, userID uint64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, err := r.operatorLocked(userID)
	if err != nil {
		return err
	}
	next := *op
	next.PrivateNotes = text
	if err := r.stores.Operators.Upsert(ctx, next); err != nil {
		return fmt.Errorf("notes write-through: %w", err)
	}
	*op = next
	ev := r.eventLocked(EntityOperatorStatus, "", next)
	ev.privileged = true
	ev.ownerID = userID
	r.publish(ev)
	return nil
}

// SetTrackedCue mirrors which cue the operator is following locally.
func (r *Room) SetTrackedCue(ctx context.Context, userID uint64, orderIndex int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, err := r.operatorLocked(userID)
	if err != nil {
		return err
	}
	next := *op
	next.CurrentOrderIndex = orderIndex
	if err := r.stores.Operators.Upsert(ctx, next); err != nil {
		return fmt.Errorf("tracked cue write-through: %w", err)
	}
	*op = next
	r.publish(r.eventLocked(EntityOperatorStatus, "", next))
	return nil
}

// EmergencyPing raises a silent high-priority signal to the stage
// manager and other privileged viewers.  It is urgent: never dropped,
// never coalesced, and not persisted anywhere.
func (r *Room) EmergencyPing(ctx context.Context, userID uint64) error {
	r.mu.Lock()
	op, err := r.operatorLocked(userID)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	ev := r.eventLocked(EntityEmergency, "", EmergencyPing{
		SessionID:  r.sessionID,
		UserID:     userID,
		Department: op.Department,
		At:         time.Now().UTC(),
	})
	ev.urgent = true
	ev.privileged = true
	ev.ownerID = userID
	r.mu.Unlock()
	r.publish(ev)
	return nil
}

// MarkDisconnected is called by the gateway when the last connection of
// an identity drops.  Operators go offline immediately rather than
// waiting out the heartbeat timeout; membership is untouched, so a
// reconnect resumes the same role without re-enrollment.
func (r *Room) MarkDisconnected(userID uint64) {
	r.mu.Lock()
	op, ok := r.operators[userID]
	if !ok || !op.IsOnline {
		r.mu.Unlock()
		return
	}
	next := *op
	next.IsOnline = false
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	err := r.stores.Operators.Upsert(ctx, next)
	cancel()
	if err != nil {
		// leave online; the sweep loop will retry the demotion
		r.log.Error().Err(err).Uint64("user_id", userID).Msg("disconnect write-through failed")
		r.mu.Unlock()
		return
	}
	*op = next
	ev := r.eventLocked(EntityOperatorStatus, "", next)
	r.mu.Unlock()

	r.dropPresenceKey(userID)
	r.publish(ev)
}

// operatorLocked resolves the caller's status row and enforces the
// operator-only capability on presence mutations.
func (r *Room) operatorLocked(userID uint64) (*model.OperatorStatus, error) {
	if r.closed {
		return nil, ErrSessionClosed
	}
	m, ok := r.members[userID]
	if !ok {
		return nil, fmt.Errorf("no membership for user %d: %w", userID, repository.ErrNotFound)
	}
	if !CapabilitiesFor(m.Role).SetOwnReadiness {
		return nil, ErrForbidden
	}
	op, ok := r.operators[userID]
	if !ok {
		op = &model.OperatorStatus{
			SessionID:         r.sessionID,
			UserID:            userID,
			CurrentOrderIndex: model.NoCue,
		}
		r.operators[userID] = op
	}
	return op, nil
}

// touchPresenceKey refreshes the shared TTL key; best effort.
func (r *Room) touchPresenceKey(userID uint64) {
	if r.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.rdb.Set(ctx, presenceKey(r.sessionID, userID), 1, r.cfg.HeartbeatTimeout).Err(); err != nil {
		r.log.Debug().Err(err).Msg("presence key refresh failed")
	}
}

func (r *Room) dropPresenceKey(userID uint64) {
	if r.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = r.rdb.Del(ctx, presenceKey(r.sessionID, userID)).Err()
}
