package show

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stagekit/showcall/internal/model"
)

// Announcement channel: capability-gated append-only broadcast,
// independent of cue state.  The row is durable before any subscriber
// sees it; late joiners get the last N rows as snapshot backfill.

// SendAnnouncement appends and fans out one announcement.  Emergency
// announcements are delivered urgently (never dropped on
// backpressure) but, unlike pings, go to every session member.
func (r *Room) SendAnnouncement(ctx context.Context, senderID uint64, message string, isEmergency bool) (model.Announcement, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return model.Announcement{}, fmt.Errorf("empty announcement: %w", ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return model.Announcement{}, ErrSessionClosed
	}
	m, ok := r.members[senderID]
	if !ok || !CapabilitiesFor(m.Role).SendAnnouncements {
		return model.Announcement{}, ErrForbidden
	}

	a := model.Announcement{
		ID:          uuid.NewString(),
		SessionID:   r.sessionID,
		Message:     message,
		SentBy:      senderID,
		IsEmergency: isEmergency,
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.stores.Announcements.Append(ctx, a); err != nil {
		return model.Announcement{}, fmt.Errorf("announcement write-through: %w", err)
	}

	r.recent = append(r.recent, a)
	if n := r.cfg.AnnouncementBackfill; len(r.recent) > n {
		r.recent = r.recent[len(r.recent)-n:]
	}

	ev := r.eventLocked(EntityAnnouncement, a.ID, a)
	ev.urgent = isEmergency // emergency broadcasts bypass backpressure drops
	r.publish(ev)

	if r.mirror != nil {
		cp := a
		go func() {
			mctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			defer cancel()
			r.mirror.Announcement(mctx, cp)
		}()
	}
	return a, nil
}
