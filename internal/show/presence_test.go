package show

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stagekit/showcall/internal/model"
)

func operatorRow(t *testing.T, ms *memStore, userID uint64) model.OperatorStatus {
	t.Helper()
	ms.mu.Lock()
	defer ms.mu.Unlock()
	st, ok := ms.operators[memberKey(testSessionID, userID)]
	if !ok {
		t.Fatalf("no operator row for user %d", userID)
	}
	return st
}

func TestHeartbeatBringsOperatorOnlineOnce(t *testing.T) {
	ms, _, room := testRoom(t, Config{})
	ctx := context.Background()

	sub, err := room.Subscribe(smUser)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer room.Unsubscribe(sub)

	for i := 0; i < 3; i++ {
		if err := room.Heartbeat(ctx, opUser); err != nil {
			t.Fatalf("heartbeat %d: %v", i, err)
		}
	}

	if st := operatorRow(t, ms, opUser); !st.IsOnline || st.LastPing.IsZero() {
		t.Fatalf("row after heartbeats = %+v", st)
	}

	// Only the offline->online flip publishes; repeats are silent.
	var statusEvents int
	for _, ev := range drain(sub) {
		if ev.EntityType == EntityOperatorStatus {
			statusEvents++
		}
	}
	if statusEvents != 1 {
		t.Fatalf("status events = %d, want 1", statusEvents)
	}
}

func TestPresenceMutationsAreOperatorOnly(t *testing.T) {
	_, _, room := testRoom(t, Config{})
	ctx := context.Background()

	for _, user := range []uint64{smUser, dirUser} {
		if err := room.Heartbeat(ctx, user); !errors.Is(err, ErrForbidden) {
			t.Errorf("user %d heartbeat: %v, want ErrForbidden", user, err)
		}
		if err := room.SetReady(ctx, user, true); !errors.Is(err, ErrForbidden) {
			t.Errorf("user %d ready: %v, want ErrForbidden", user, err)
		}
	}
	if err := room.Heartbeat(ctx, 999); err == nil {
		t.Error("non-member heartbeat should fail")
	}
}

func TestSetReadySurvivesDisconnect(t *testing.T) {
	ms, _, room := testRoom(t, Config{})
	ctx := context.Background()

	if err := room.Heartbeat(ctx, opUser); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if err := room.SetReady(ctx, opUser, true); err != nil {
		t.Fatalf("ready: %v", err)
	}

	room.MarkDisconnected(opUser)

	st := operatorRow(t, ms, opUser)
	if st.IsOnline {
		t.Fatal("operator still online after disconnect")
	}
	if !st.IsReady {
		t.Fatal("readiness must survive a disconnect")
	}

	// Reconnect resumes the same row.
	if err := room.Heartbeat(ctx, opUser); err != nil {
		t.Fatalf("reconnect heartbeat: %v", err)
	}
	if st := operatorRow(t, ms, opUser); !st.IsOnline || !st.IsReady {
		t.Fatalf("row after reconnect = %+v", st)
	}
}

func TestMarkDisconnectedIsIdempotent(t *testing.T) {
	_, _, room := testRoom(t, Config{})
	ctx := context.Background()

	if err := room.Heartbeat(ctx, opUser); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	sub, err := room.Subscribe(smUser)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer room.Unsubscribe(sub)
	drain(sub)

	room.MarkDisconnected(opUser)
	room.MarkDisconnected(opUser) // second call must publish nothing

	var offline int
	for _, ev := range drain(sub) {
		if ev.EntityType != EntityOperatorStatus {
			continue
		}
		if st, ok := ev.Payload.(model.OperatorStatus); ok && !st.IsOnline {
			offline++
		}
	}
	if offline != 1 {
		t.Fatalf("offline events = %d, want exactly 1", offline)
	}
}

func TestSweepDemotesStaleOperatorsExactlyOnce(t *testing.T) {
	ms, _, room := testRoom(t, Config{HeartbeatTimeout: 10 * time.Millisecond})
	ctx := context.Background()

	if err := room.Heartbeat(ctx, opUser); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	sub, err := room.Subscribe(smUser)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer room.Unsubscribe(sub)
	drain(sub)

	time.Sleep(20 * time.Millisecond)
	room.sweepStale()
	room.sweepStale() // already offline, must be silent

	if st := operatorRow(t, ms, opUser); st.IsOnline {
		t.Fatal("stale operator still online")
	}
	var offline int
	for _, ev := range drain(sub) {
		if ev.EntityType != EntityOperatorStatus {
			continue
		}
		if st, ok := ev.Payload.(model.OperatorStatus); ok && !st.IsOnline {
			offline++
		}
	}
	if offline != 1 {
		t.Fatalf("offline events = %d, want exactly 1", offline)
	}
}

func TestSweepRetriesAfterStoreFailure(t *testing.T) {
	ms, _, room := testRoom(t, Config{HeartbeatTimeout: 10 * time.Millisecond})
	ctx := context.Background()

	if err := room.Heartbeat(ctx, opUser); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	ms.mu.Lock()
	ms.failOperators = true
	ms.mu.Unlock()
	room.sweepStale()
	if st := operatorRow(t, ms, opUser); !st.IsOnline {
		t.Fatal("operator flipped offline despite store failure")
	}

	ms.mu.Lock()
	ms.failOperators = false
	ms.mu.Unlock()
	room.sweepStale()
	if st := operatorRow(t, ms, opUser); st.IsOnline {
		t.Fatal("operator not demoted after store recovered")
	}
}

func TestPrivateNotesEventRouting(t *testing.T) {
	_, _, room := testRoom(t, Config{})
	ctx := context.Background()

	subs := make(map[uint64]*Subscriber)
	for _, user := range []uint64{smUser, opUser, op2User, dirUser} {
		sub, err := room.Subscribe(user)
		if err != nil {
			t.Fatalf("subscribe %d: %v", user, err)
		}
		defer room.Unsubscribe(sub)
		subs[user] = sub
	}

	if err := room.SetPrivateNotes(ctx, opUser, "watch the followspot"); err != nil {
		t.Fatalf("notes: %v", err)
	}

	sawNotes := func(sub *Subscriber) bool {
		for _, ev := range drain(sub) {
			if ev.EntityType == EntityOperatorStatus {
				if st, ok := ev.Payload.(model.OperatorStatus); ok && st.PrivateNotes != "" {
					return true
				}
			}
		}
		return false
	}

	if !sawNotes(subs[smUser]) {
		t.Error("stage manager missed the notes event")
	}
	if !sawNotes(subs[dirUser]) {
		t.Error("director missed the notes event")
	}
	if !sawNotes(subs[opUser]) {
		t.Error("owner missed their own notes event")
	}
	if sawNotes(subs[op2User]) {
		t.Error("other operator received a private notes event")
	}
}

func TestEmergencyPingReachesPrivilegedOnly(t *testing.T) {
	_, _, room := testRoom(t, Config{})
	ctx := context.Background()

	subs := make(map[uint64]*Subscriber)
	for _, user := range []uint64{smUser, opUser, op2User} {
		sub, err := room.Subscribe(user)
		if err != nil {
			t.Fatalf("subscribe %d: %v", user, err)
		}
		defer room.Unsubscribe(sub)
		subs[user] = sub
	}

	if err := room.EmergencyPing(ctx, opUser); err != nil {
		t.Fatalf("ping: %v", err)
	}

	sawPing := func(sub *Subscriber) (EmergencyPing, bool) {
		for _, ev := range drain(sub) {
			if ev.EntityType == EntityEmergency {
				p, _ := ev.Payload.(EmergencyPing)
				return p, true
			}
		}
		return EmergencyPing{}, false
	}

	p, ok := sawPing(subs[smUser])
	if !ok {
		t.Fatal("stage manager missed the emergency ping")
	}
	if p.UserID != opUser || p.Department != "Lighting" {
		t.Fatalf("ping payload = %+v", p)
	}
	if _, ok := sawPing(subs[opUser]); !ok {
		t.Error("sender missed their own ping")
	}
	if _, ok := sawPing(subs[op2User]); ok {
		t.Error("other operator received an emergency ping")
	}

	// Pings gate on the same operator capability as other presence ops.
	if err := room.EmergencyPing(ctx, smUser); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stage manager ping: %v, want ErrForbidden", err)
	}
}

func TestSetTrackedCuePublishes(t *testing.T) {
	ms, _, room := testRoom(t, Config{})
	ctx := context.Background()

	if err := room.SetTrackedCue(ctx, opUser, 2); err != nil {
		t.Fatalf("track: %v", err)
	}
	if st := operatorRow(t, ms, opUser); st.CurrentOrderIndex != 2 {
		t.Fatalf("tracked cue = %d, want 2", st.CurrentOrderIndex)
	}
}
