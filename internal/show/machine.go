package show

import (
	"context"
	"fmt"
	"time"

	"github.com/stagekit/showcall/internal/model"
)

// Cue state machine.  Phases move waiting -> standby -> go -> complete;
// the pointer only moves via Next/Previous/Undo/Reset.  Firing a cue
// (Go) and advancing to the next cue are deliberately separate actions.
// Every method serializes on the room lock, writes the new CueProgress
// through the progress store, and only then updates memory and
// publishes a full-replace event.

// Standby calls the current cue to standby.  Legal from waiting or
// complete.
func (r *Room) Standby(ctx context.Context, userID uint64) (model.CueProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.driverLocked(userID); err != nil {
		return r.progress, err
	}
	if r.progress.Phase != model.PhaseWaiting && r.progress.Phase != model.PhaseComplete {
		return r.progress, fmt.Errorf("standby from %s: %w", r.progress.Phase, ErrInvalidTransition)
	}
	next := r.progress
	next.Phase = model.PhaseStandby
	return r.applyLocked(ctx, userID, "standby", next)
}

// Go fires the cue on standby.  The phase stays "go" for the configured
// hold, then the machine auto-applies complete; the pointer does not
// advance unless AdvanceOnGo is set.
func (r *Room) Go(ctx context.Context, userID uint64) (model.CueProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.driverLocked(userID); err != nil {
		return r.progress, err
	}
	if r.progress.Phase != model.PhaseStandby {
		return r.progress, fmt.Errorf("go from %s: %w", r.progress.Phase, ErrInvalidTransition)
	}
	next := r.progress
	next.Phase = model.PhaseGo
	p, err := r.applyLocked(ctx, userID, "go", next)
	if err != nil {
		return p, err
	}

	r.goSeq++
	seq := r.goSeq
	if r.cfg.GoHold <= 0 {
		return r.completeLocked(ctx, userID, seq)
	}
	time.AfterFunc(r.cfg.GoHold, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		cctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if _, err := r.completeLocked(cctx, userID, seq); err != nil {
			r.log.Error().Err(err).Msg("cue auto-complete failed")
		}
	})
	return r.progress, nil
}

// completeLocked applies the go -> complete transition scheduled by Go.
// A stale seq means the show moved on (Reset, sheet change) and the
// pending completion is abandoned.
func (r *Room) completeLocked(ctx context.Context, userID uint64, seq uint64) (model.CueProgress, error) {
	if r.closed || r.goSeq != seq || r.progress.Phase != model.PhaseGo {
		return r.progress, nil
	}
	next := r.progress
	next.Phase = model.PhaseComplete
	p, err := r.applyLocked(ctx, userID, "complete", next)
	if err != nil {
		return p, err
	}
	if r.cfg.AdvanceOnGo {
		if pos := r.cueIndexLocked(); pos >= 0 && pos < len(r.cues)-1 {
			adv := r.progress
			adv.CurrentOrderIndex = r.cues[pos+1].OrderIndex
			adv.Phase = model.PhaseWaiting
			return r.applyLocked(ctx, userID, "next", adv)
		}
	}
	return p, nil
}

// Next advances the pointer to the next cue and parks in waiting.
// Legal from waiting or complete; EndOfShow at the last cue leaves
// state untouched.
func (r *Room) Next(ctx context.Context, userID uint64) (model.CueProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.driverLocked(userID); err != nil {
		return r.progress, err
	}
	if r.progress.Phase != model.PhaseWaiting && r.progress.Phase != model.PhaseComplete {
		return r.progress, fmt.Errorf("next from %s: %w", r.progress.Phase, ErrInvalidTransition)
	}
	pos := r.cueIndexLocked()
	if pos >= len(r.cues)-1 {
		return r.progress, ErrEndOfShow
	}
	next := r.progress
	next.CurrentOrderIndex = r.cues[pos+1].OrderIndex
	next.Phase = model.PhaseWaiting
	return r.applyLocked(ctx, userID, "next", next)
}

// Previous moves the pointer back one cue; AtStart at the first cue.
func (r *Room) Previous(ctx context.Context, userID uint64) (model.CueProgress, error) {
	return r.stepBack(ctx, userID, "previous")
}

// Undo is semantically Previous but logged as its own action so the
// show log distinguishes a correction from normal navigation.
func (r *Room) Undo(ctx context.Context, userID uint64) (model.CueProgress, error) {
	return r.stepBack(ctx, userID, "undo")
}

func (r *Room) stepBack(ctx context.Context, userID uint64, action string) (model.CueProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.driverLocked(userID); err != nil {
		return r.progress, err
	}
	pos := r.cueIndexLocked()
	if pos < 0 {
		return r.progress, ErrNoCueSheet
	}
	if pos == 0 {
		return r.progress, ErrAtStart
	}
	next := r.progress
	next.CurrentOrderIndex = r.cues[pos-1].OrderIndex
	next.Phase = model.PhaseWaiting
	return r.applyLocked(ctx, userID, action, next)
}

// Reset returns to the first cue in waiting.  Always legal.
func (r *Room) Reset(ctx context.Context, userID uint64) (model.CueProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.driverLocked(userID); err != nil {
		return r.progress, err
	}
	r.goSeq++ // abandon any pending auto-complete
	next := r.progress
	next.CurrentOrderIndex = r.cues[0].OrderIndex
	next.Phase = model.PhaseWaiting
	return r.applyLocked(ctx, userID, "reset", next)
}

// ActivateSheet swaps in a new active cue sheet and resets progress to
// its first cue.  The sheet rows are already durable (written by the
// handler through the sheet store); only the progress reset is written
// here.
func (r *Room) ActivateSheet(ctx context.Context, userID uint64, sheet model.CueSheet, cues []model.Cue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrSessionClosed
	}
	m, ok := r.members[userID]
	if !ok || !CapabilitiesFor(m.Role).DriveCues {
		return ErrForbidden
	}
	if len(cues) == 0 {
		return fmt.Errorf("cue sheet %q has no cues: %w", sheet.Name, ErrNoCueSheet)
	}

	next := model.CueProgress{
		SessionID:         r.sessionID,
		CurrentOrderIndex: cues[0].OrderIndex,
		Phase:             model.PhaseWaiting,
		UpdatedBy:         userID,
		UpdatedAt:         time.Now().UTC(),
	}
	if err := r.stores.Progress.Save(ctx, next); err != nil {
		return err
	}
	r.goSeq++
	sheetCopy := sheet
	r.sheet = &sheetCopy
	r.cues = append([]model.Cue(nil), cues...)
	r.progress = next

	r.publish(r.eventLocked(EntityCueSheet, sheet.ID, SheetChange{Sheet: sheet, Cues: cues}))
	r.publish(r.eventLocked(EntityCueProgress, "", next))
	return nil
}

// driverLocked gates state machine entry: the session must be open,
// have an active sheet, and the caller must hold the drive capability.
func (r *Room) driverLocked(userID uint64) error {
	if r.closed {
		return ErrSessionClosed
	}
	m, ok := r.members[userID]
	if !ok || !CapabilitiesFor(m.Role).DriveCues {
		return ErrForbidden
	}
	if len(r.cues) == 0 {
		return ErrNoCueSheet
	}
	return nil
}

// cueIndexLocked resolves the pointer to a position in the cue slice;
// -1 when there is no active sheet or the pointer is unset.
func (r *Room) cueIndexLocked() int {
	if r.progress.CurrentOrderIndex == model.NoCue {
		return -1
	}
	for i, c := range r.cues {
		if c.OrderIndex == r.progress.CurrentOrderIndex {
			return i
		}
	}
	return -1
}

// applyLocked is the single commit point of the machine: durable write
// first, then memory, then the full-replace event and the audit mirror.
// On a store failure nothing is applied or published.
func (r *Room) applyLocked(ctx context.Context, userID uint64, action string, next model.CueProgress) (model.CueProgress, error) {
	next.UpdatedBy = userID
	next.UpdatedAt = time.Now().UTC()
	if err := r.stores.Progress.Save(ctx, next); err != nil {
		return r.progress, fmt.Errorf("progress write-through: %w", err)
	}
	r.progress = next
	r.publish(r.eventLocked(EntityCueProgress, "", next))
	r.log.Info().Str("action", action).Int("cue", next.CurrentOrderIndex).
		Str("phase", string(next.Phase)).Uint64("by", userID).Msg("cue transition")
	if r.mirror != nil {
		p := next
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			defer cancel()
			r.mirror.CueTransition(ctx, action, p)
		}()
	}
	return next, nil
}
