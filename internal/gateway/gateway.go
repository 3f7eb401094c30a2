// Package gateway exposes the realtime sync endpoint.  One websocket
// connection binds one authenticated identity to one session's room:
// the server pushes a full snapshot, then incremental events; the
// client sends commands that are applied through the room and answered
// with ack or error frames.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/websocket"

	"github.com/stagekit/showcall/internal/model"
	"github.com/stagekit/showcall/internal/show"
	"github.com/stagekit/showcall/internal/utils"
)

const commandTimeout = 10 * time.Second

// ClientFrame is a command sent by a connected client.
type ClientFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ServerFrame is anything the server pushes that is not an event
// envelope: the welcome snapshot, command acks and command errors.
type ServerFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Payload   any    `json:"payload,omitempty"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	State     any    `json:"state,omitempty"`
}

// Gateway upgrades websocket connections and bridges them to rooms.
type Gateway struct {
	secret string
	rooms  *show.Rooms
	log    zerolog.Logger
}

func New(secret string, rooms *show.Rooms, log zerolog.Logger) *Gateway {
	return &Gateway{secret: secret, rooms: rooms, log: log.With().Str("component", "gateway").Logger()}
}

// Handler returns the http.Handler to mount at the ws route.
func (g *Gateway) Handler() http.Handler {
	return websocket.Server{Handler: g.serve}
}

func (g *Gateway) serve(conn *websocket.Conn) {
	defer conn.Close()
	req := conn.Request()

	userID, _, err := g.authenticate(req)
	if err != nil {
		g.sendFrame(conn, ServerFrame{Type: "error", Code: "unauthorized", Message: "invalid or missing token"})
		return
	}
	sessionID := req.URL.Query().Get("session_id")
	if sessionID == "" {
		g.sendFrame(conn, ServerFrame{Type: "error", Code: "invalid_argument", Message: "session_id required"})
		return
	}

	room, err := g.rooms.Get(req.Context(), sessionID)
	if err != nil {
		g.sendFrame(conn, ServerFrame{Type: "error", Code: show.ErrorCode(err), Message: "session unavailable"})
		return
	}
	sub, err := room.Subscribe(userID)
	if err != nil {
		g.sendFrame(conn, ServerFrame{Type: "error", Code: show.ErrorCode(err), Message: "not a member of this session"})
		return
	}

	log := g.log.With().Str("session_id", sessionID).Uint64("user_id", userID).Logger()
	log.Info().Msg("subscriber connected")

	defer func() {
		room.Unsubscribe(sub)
		if !room.HasSubscriber(userID) {
			room.MarkDisconnected(userID)
		}
		log.Info().Msg("subscriber disconnected")
	}()

	// Replies from the reader are funneled through the writer goroutine
	// so event pushes and command responses never interleave a write.
	replies := make(chan ServerFrame, 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		g.writer(conn, room, sub, replies, userID)
	}()

	g.reader(conn, room, sub, replies, userID, log)
	<-writerDone
}

// writer owns the connection's write side: welcome snapshot first, then
// room events and command replies until the subscription ends.
func (g *Gateway) writer(conn *websocket.Conn, room *show.Room, sub *show.Subscriber, replies <-chan ServerFrame, userID uint64) {
	welcome := ServerFrame{Type: "welcome", Payload: room.Snapshot(userID)}
	if err := websocket.JSON.Send(conn, welcome); err != nil {
		return
	}
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := websocket.JSON.Send(conn, eventFrame(ev)); err != nil {
				return
			}
		case f := <-replies:
			if err := websocket.JSON.Send(conn, f); err != nil {
				return
			}
		case <-sub.Done():
			// flush everything still buffered, the close notice included
			for {
				select {
				case ev := <-sub.Events():
					if err := websocket.JSON.Send(conn, eventFrame(ev)); err != nil {
						conn.Close()
						return
					}
				default:
					conn.Close()
					return
				}
			}
		}
	}
}

// eventFrame wraps a room event for the wire, keyed by entity type.
func eventFrame(ev show.Event) map[string]any {
	return map[string]any{
		"type":        "event",
		"session_id":  ev.SessionID,
		"entity_type": ev.EntityType,
		"entity_id":   ev.EntityID,
		"payload":     ev.Payload,
		"server_ts":   ev.ServerTS,
	}
}

func (g *Gateway) reader(conn *websocket.Conn, room *show.Room, sub *show.Subscriber, replies chan<- ServerFrame, userID uint64, log zerolog.Logger) {
	for {
		var f ClientFrame
		if err := websocket.JSON.Receive(conn, &f); err != nil {
			return
		}
		reply := g.dispatch(room, sub, userID, f)
		select {
		case replies <- reply:
		case <-sub.Done():
			return
		}
	}
}

// dispatch applies one client command and builds the response frame.
// State-machine rejections carry the current progress so the client can
// resync without a round trip.
func (g *Gateway) dispatch(room *show.Room, sub *show.Subscriber, userID uint64, f ClientFrame) ServerFrame {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	caps := show.CapabilitiesFor(sub.Role())

	switch f.Type {
	case "cue.standby", "cue.go", "cue.next", "cue.previous", "cue.undo", "cue.reset":
		if !caps.DriveCues {
			return errorFrame(f.RequestID, show.ErrForbidden, nil)
		}
		var p model.CueProgress
		var err error
		switch f.Type {
		case "cue.standby":
			p, err = room.Standby(ctx, userID)
		case "cue.go":
			p, err = room.Go(ctx, userID)
		case "cue.next":
			p, err = room.Next(ctx, userID)
		case "cue.previous":
			p, err = room.Previous(ctx, userID)
		case "cue.undo":
			p, err = room.Undo(ctx, userID)
		case "cue.reset":
			p, err = room.Reset(ctx, userID)
		}
		if err != nil {
			state := room.Progress()
			return errorFrame(f.RequestID, err, &state)
		}
		return ServerFrame{Type: "ack", RequestID: f.RequestID, Payload: p}

	case "presence.heartbeat":
		if err := room.Heartbeat(ctx, userID); err != nil {
			return errorFrame(f.RequestID, err, nil)
		}
		return ServerFrame{Type: "ack", RequestID: f.RequestID}

	case "presence.ready":
		var body struct {
			Ready bool `json:"ready"`
		}
		if err := json.Unmarshal(f.Payload, &body); err != nil {
			return errorFrame(f.RequestID, show.ErrInvalidArgument, nil)
		}
		if err := room.SetReady(ctx, userID, body.Ready); err != nil {
			return errorFrame(f.RequestID, err, nil)
		}
		return ServerFrame{Type: "ack", RequestID: f.RequestID}

	case "presence.notes":
		var body struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(f.Payload, &body); err != nil {
			return errorFrame(f.RequestID, show.ErrInvalidArgument, nil)
		}
		if err := room.SetPrivateNotes(ctx, userID, body.Text); err != nil {
			return errorFrame(f.RequestID, err, nil)
		}
		return ServerFrame{Type: "ack", RequestID: f.RequestID}

	case "presence.track":
		var body struct {
			OrderIndex int `json:"order_index"`
		}
		if err := json.Unmarshal(f.Payload, &body); err != nil {
			return errorFrame(f.RequestID, show.ErrInvalidArgument, nil)
		}
		if err := room.SetTrackedCue(ctx, userID, body.OrderIndex); err != nil {
			return errorFrame(f.RequestID, err, nil)
		}
		return ServerFrame{Type: "ack", RequestID: f.RequestID}

	case "presence.emergency":
		if err := room.EmergencyPing(ctx, userID); err != nil {
			return errorFrame(f.RequestID, err, nil)
		}
		return ServerFrame{Type: "ack", RequestID: f.RequestID}

	case "announce.send":
		var body struct {
			Message   string `json:"message"`
			Emergency bool   `json:"emergency"`
		}
		if err := json.Unmarshal(f.Payload, &body); err != nil {
			return errorFrame(f.RequestID, show.ErrInvalidArgument, nil)
		}
		a, err := room.SendAnnouncement(ctx, userID, body.Message, body.Emergency)
		if err != nil {
			return errorFrame(f.RequestID, err, nil)
		}
		return ServerFrame{Type: "ack", RequestID: f.RequestID, Payload: a}

	default:
		return ServerFrame{
			Type: "error", RequestID: f.RequestID,
			Code: "unknown_command", Message: "unknown frame type " + f.Type,
		}
	}
}

func errorFrame(requestID string, err error, state *model.CueProgress) ServerFrame {
	f := ServerFrame{
		Type:      "error",
		RequestID: requestID,
		Code:      show.ErrorCode(err),
		Message:   err.Error(),
	}
	if state != nil && onStateError(err) {
		f.State = *state
	}
	return f
}

// onStateError limits the state echo to rejections the client resolves
// by resyncing, not by fixing its request.
func onStateError(err error) bool {
	return errors.Is(err, show.ErrInvalidTransition) ||
		errors.Is(err, show.ErrEndOfShow) ||
		errors.Is(err, show.ErrAtStart)
}

// authenticate resolves the identity from the Authorization header or
// the token query parameter (browser websocket clients cannot set
// headers).
func (g *Gateway) authenticate(req *http.Request) (uint64, string, error) {
	raw := ""
	if h := req.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		raw = strings.TrimPrefix(h, "Bearer ")
	} else if t := req.URL.Query().Get("token"); t != "" {
		raw = t
	}
	if raw == "" {
		return 0, "", show.ErrUnauthorized
	}
	return utils.ParseAccessToken(g.secret, raw)
}

func (g *Gateway) sendFrame(conn *websocket.Conn, f ServerFrame) {
	if err := websocket.JSON.Send(conn, f); err != nil {
		g.log.Debug().Err(err).Msg("pre-subscribe frame send failed")
	}
}
