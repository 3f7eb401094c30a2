package show

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stagekit/showcall/internal/model"
	"github.com/stagekit/showcall/internal/repository"
	"github.com/stagekit/showcall/internal/utils"
)

// Registry implements session creation/join/close and membership
// management.  It owns the session and membership stores; live rooms
// are notified after durable writes succeed.
type Registry struct {
	cfg        Config
	stores     Stores
	rooms      *Rooms
	bcryptCost int
	log        zerolog.Logger
}

func NewRegistry(cfg Config, stores Stores, rooms *Rooms, bcryptCost int, log zerolog.Logger) *Registry {
	return &Registry{
		cfg:        cfg.withDefaults(),
		stores:     stores,
		rooms:      rooms,
		bcryptCost: bcryptCost,
		log:        log.With().Str("component", "registry").Logger(),
	}
}

// CreateSession generates a fresh join code, inserts the session and
// enrolls the creator as stage manager.  Code generation retries on
// collision against active sessions; exhausting the retries is a rare
// infrastructure fault surfaced as ErrCodeExhausted.
func (g *Registry) CreateSession(ctx context.Context, name, password string, creator uint64) (model.Session, model.Membership, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Session{}, model.Membership{}, fmt.Errorf("session name required: %w", ErrInvalidArgument)
	}

	hash := ""
	if password != "" {
		h, err := utils.HashPassword(password, g.bcryptCost)
		if err != nil {
			return model.Session{}, model.Membership{}, err
		}
		hash = h
	}

	for attempt := 0; attempt < g.cfg.CodeRetries; attempt++ {
		code, err := randomCode(g.cfg.CodeAlphabet, g.cfg.CodeLength)
		if err != nil {
			return model.Session{}, model.Membership{}, err
		}
		if _, err := g.stores.Sessions.GetActiveByCode(ctx, code); err == nil {
			continue // collision, draw again
		} else if !errors.Is(err, repository.ErrNotFound) {
			return model.Session{}, model.Membership{}, err
		}

		s := model.Session{
			ID:           uuid.NewString(),
			Code:         code,
			Name:         name,
			PasswordHash: hash,
			CreatedBy:    creator,
			IsActive:     true,
			CreatedAt:    time.Now().UTC(),
		}
		if err := g.stores.Sessions.Create(ctx, s); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				continue // lost a race for the code, draw again
			}
			return model.Session{}, model.Membership{}, err
		}

		m := model.Membership{
			SessionID: s.ID,
			UserID:    creator,
			Role:      model.RoleStageManager,
			JoinedAt:  time.Now().UTC(),
		}
		if err := g.stores.Memberships.Create(ctx, m); err != nil {
			// Deactivate the fresh session row: an active session with no
			// members has nobody who could ever close it.
			if derr := g.stores.Sessions.SetActive(ctx, s.ID, false); derr != nil {
				g.log.Error().Err(derr).Str("session_id", s.ID).Msg("rollback of memberless session failed")
			}
			return model.Session{}, model.Membership{}, err
		}
		g.log.Info().Str("session_id", s.ID).Str("code", s.Code).Uint64("creator", creator).Msg("session created")
		return s, m, nil
	}

	g.log.Error().Int("retries", g.cfg.CodeRetries).Msg("session code space exhausted")
	return model.Session{}, model.Membership{}, ErrCodeExhausted
}

// JoinSession resolves a join code (case-insensitive), checks the
// optional password and returns the caller's membership: the existing
// one when the identity already belongs to the session, otherwise a
// fresh enrollment under the requested role.
func (g *Registry) JoinSession(ctx context.Context, code, password string, userID uint64, role model.Role, department string) (model.Session, model.Membership, error) {
	s, err := g.stores.Sessions.GetActiveByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return model.Session{}, model.Membership{}, err
	}
	if s.PasswordHash != "" {
		if password == "" || !utils.VerifyPassword(s.PasswordHash, password) {
			return model.Session{}, model.Membership{}, ErrUnauthorized
		}
	}

	if existing, err := g.stores.Memberships.Get(ctx, s.ID, userID); err == nil {
		// rejoin: same role resumes silently, a different requested
		// role requires an explicit switch
		if role != "" && role != existing.Role {
			return s, existing, ErrAlreadyEnrolled
		}
		g.notifyRoom(s.ID, existing, department, nil)
		return s, existing, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return model.Session{}, model.Membership{}, err
	}

	m, err := g.Enroll(ctx, s.ID, userID, role, department)
	if err != nil {
		return model.Session{}, model.Membership{}, err
	}
	return s, m, nil
}

// Enroll creates a membership for an identity that has none in this
// session.  Re-enrolling with the same role is idempotent; a different
// role yields ErrAlreadyEnrolled.  The requested role must be covered
// by the identity's entitlements, or the identity must hold an
// elevated entitlement.
func (g *Registry) Enroll(ctx context.Context, sessionID string, userID uint64, role model.Role, department string) (model.Membership, error) {
	if _, ok := model.ParseRole(string(role)); !ok {
		return model.Membership{}, fmt.Errorf("unknown role %q: %w", role, ErrInvalidArgument)
	}
	if err := g.checkEntitlement(ctx, userID, role); err != nil {
		return model.Membership{}, err
	}

	m := model.Membership{
		SessionID: sessionID,
		UserID:    userID,
		Role:      role,
		JoinedAt:  time.Now().UTC(),
	}
	if err := g.stores.Memberships.Create(ctx, m); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			existing, gerr := g.stores.Memberships.Get(ctx, sessionID, userID)
			if gerr != nil {
				return model.Membership{}, gerr
			}
			if existing.Role == role {
				return existing, nil
			}
			return existing, ErrAlreadyEnrolled
		}
		return model.Membership{}, err
	}

	var status *model.OperatorStatus
	if role == model.RoleOperator {
		status = &model.OperatorStatus{
			SessionID:         sessionID,
			UserID:            userID,
			Department:        strings.TrimSpace(department),
			CurrentOrderIndex: model.NoCue,
		}
		if err := g.stores.Operators.Upsert(ctx, *status); err != nil {
			return model.Membership{}, err
		}
	}

	g.notifyRoom(sessionID, m, department, status)
	return m, nil
}

// SwitchRole updates a membership in place.  Allowed when the current
// role is elevated (director_plus/admin) or the identity is separately
// entitled to the new role.  Live connections of the user have their
// capabilities re-issued immediately.
func (g *Registry) SwitchRole(ctx context.Context, sessionID string, userID uint64, newRole model.Role) (model.Membership, error) {
	if _, ok := model.ParseRole(string(newRole)); !ok {
		return model.Membership{}, fmt.Errorf("unknown role %q: %w", newRole, ErrInvalidArgument)
	}
	m, err := g.stores.Memberships.Get(ctx, sessionID, userID)
	if err != nil {
		return model.Membership{}, err
	}
	if m.Role == newRole {
		return m, nil
	}
	if !m.Role.Elevated() {
		if err := g.checkEntitlement(ctx, userID, newRole); err != nil {
			return model.Membership{}, err
		}
	}
	if err := g.stores.Memberships.UpdateRole(ctx, sessionID, userID, newRole); err != nil {
		return model.Membership{}, err
	}
	if newRole == model.RoleOperator {
		if err := g.stores.Operators.Upsert(ctx, model.OperatorStatus{
			SessionID:         sessionID,
			UserID:            userID,
			CurrentOrderIndex: model.NoCue,
		}); err != nil {
			return model.Membership{}, err
		}
	}
	m.Role = newRole
	if room := g.rooms.Peek(sessionID); room != nil {
		room.UpdateMemberRole(userID, newRole)
	}
	g.log.Info().Str("session_id", sessionID).Uint64("user_id", userID).
		Str("role", string(newRole)).Msg("role switched")
	return m, nil
}

// CloseSession deactivates a session.  Only the creator, a stage
// manager member or an admin member may close; every live subscription
// receives a SessionClosed notice before termination.
func (g *Registry) CloseSession(ctx context.Context, sessionID string, requester uint64) error {
	s, err := g.stores.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if !s.IsActive {
		return nil // already closed, idempotent
	}
	if requester != s.CreatedBy {
		m, err := g.stores.Memberships.Get(ctx, sessionID, requester)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrForbidden
			}
			return err
		}
		if !CapabilitiesFor(m.Role).ManageMembership || m.Role == model.RoleDirectorPlus {
			// director_plus manages only its own role, not the session
			return ErrForbidden
		}
	}
	if err := g.stores.Sessions.SetActive(ctx, sessionID, false); err != nil {
		return err
	}
	g.rooms.Close(sessionID, "closed")
	g.log.Info().Str("session_id", sessionID).Uint64("by", requester).Msg("session closed")
	return nil
}

// checkEntitlement verifies the identity may take the role.  Elevated
// entitlements (director_plus, admin) cover every role.
func (g *Registry) checkEntitlement(ctx context.Context, userID uint64, role model.Role) error {
	ents, err := g.stores.Users.Entitlements(ctx, userID)
	if err != nil {
		return err
	}
	for _, e := range ents {
		if e == role || e.Elevated() {
			return nil
		}
	}
	return fmt.Errorf("role %s not entitled: %w", role, ErrForbidden)
}

// notifyRoom mirrors a membership change into the live room, if one is
// attached.  Rooms that are not loaded pick the row up from the store
// on their next load.
func (g *Registry) notifyRoom(sessionID string, m model.Membership, department string, status *model.OperatorStatus) {
	if room := g.rooms.Peek(sessionID); room != nil {
		room.UpsertMember(m, department, status)
	}
}
