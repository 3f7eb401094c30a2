package show

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stagekit/showcall/internal/model"
)

func TestStandbyGoCompleteCycle(t *testing.T) {
	ms, _, room := testRoom(t, Config{GoHold: -1}) // complete immediately
	ctx := context.Background()

	p, err := room.Standby(ctx, smUser)
	if err != nil {
		t.Fatalf("standby: %v", err)
	}
	if p.Phase != model.PhaseStandby || p.CurrentOrderIndex != 0 {
		t.Fatalf("after standby: %+v", p)
	}
	if p.UpdatedBy != smUser {
		t.Fatalf("updated_by = %d, want %d", p.UpdatedBy, smUser)
	}

	p, err = room.Go(ctx, smUser)
	if err != nil {
		t.Fatalf("go: %v", err)
	}
	if p.Phase != model.PhaseComplete {
		t.Fatalf("after go with no hold: phase = %s, want complete", p.Phase)
	}
	if p.CurrentOrderIndex != 0 {
		t.Fatal("complete must not advance the pointer")
	}

	// Durable copy matches memory.
	ms.mu.Lock()
	saved := ms.progress[testSessionID]
	ms.mu.Unlock()
	if saved.Phase != model.PhaseComplete || saved.CurrentOrderIndex != 0 {
		t.Fatalf("stored progress = %+v", saved)
	}
}

func TestTransitionLegality(t *testing.T) {
	cases := []struct {
		name  string
		setup []string // actions to reach the starting phase
		op    string
		want  error
	}{
		{"go from waiting", nil, "go", ErrInvalidTransition},
		{"standby from standby", []string{"standby"}, "standby", ErrInvalidTransition},
		{"next from standby", []string{"standby"}, "next", ErrInvalidTransition},
		{"standby from complete", []string{"standby", "go"}, "standby", nil},
		{"next from complete", []string{"standby", "go"}, "next", nil},
		{"reset from standby", []string{"standby"}, "reset", nil},
		{"previous from waiting at start", nil, "previous", ErrAtStart},
		{"undo from waiting at start", nil, "undo", ErrAtStart},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, room := testRoom(t, Config{GoHold: -1})
			ctx := context.Background()

			apply := func(action string) (model.CueProgress, error) {
				switch action {
				case "standby":
					return room.Standby(ctx, smUser)
				case "go":
					return room.Go(ctx, smUser)
				case "next":
					return room.Next(ctx, smUser)
				case "previous":
					return room.Previous(ctx, smUser)
				case "undo":
					return room.Undo(ctx, smUser)
				case "reset":
					return room.Reset(ctx, smUser)
				}
				t.Fatalf("unknown action %q", action)
				return model.CueProgress{}, nil
			}

			for _, a := range tc.setup {
				if _, err := apply(a); err != nil {
					t.Fatalf("setup %q: %v", a, err)
				}
			}
			before := room.Progress()
			_, err := apply(tc.op)
			if !errors.Is(err, tc.want) {
				t.Fatalf("%s: err = %v, want %v", tc.op, err, tc.want)
			}
			if tc.want != nil {
				if after := room.Progress(); after != before {
					t.Fatalf("rejected op changed state: %+v -> %+v", before, after)
				}
			}
		})
	}
}

func TestNextStopsAtLastCue(t *testing.T) {
	_, _, room := testRoom(t, Config{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		p, err := room.Next(ctx, smUser)
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		if p.CurrentOrderIndex != i+1 || p.Phase != model.PhaseWaiting {
			t.Fatalf("next %d: %+v", i, p)
		}
	}

	before := room.Progress()
	if _, err := room.Next(ctx, smUser); !errors.Is(err, ErrEndOfShow) {
		t.Fatalf("next at last cue: %v, want ErrEndOfShow", err)
	}
	if after := room.Progress(); after != before {
		t.Fatalf("end of show changed state: %+v", after)
	}
}

func TestPreviousAndUndoStepBack(t *testing.T) {
	_, _, room := testRoom(t, Config{})
	ctx := context.Background()

	if _, err := room.Next(ctx, smUser); err != nil {
		t.Fatalf("next: %v", err)
	}
	p, err := room.Previous(ctx, smUser)
	if err != nil {
		t.Fatalf("previous: %v", err)
	}
	if p.CurrentOrderIndex != 0 || p.Phase != model.PhaseWaiting {
		t.Fatalf("after previous: %+v", p)
	}

	if _, err := room.Undo(ctx, smUser); !errors.Is(err, ErrAtStart) {
		t.Fatalf("undo at first cue: %v, want ErrAtStart", err)
	}
}

func TestResetAlwaysLegal(t *testing.T) {
	_, _, room := testRoom(t, Config{GoHold: time.Minute})
	ctx := context.Background()

	if _, err := room.Next(ctx, smUser); err != nil {
		t.Fatalf("next: %v", err)
	}
	if _, err := room.Standby(ctx, smUser); err != nil {
		t.Fatalf("standby: %v", err)
	}
	if _, err := room.Go(ctx, smUser); err != nil {
		t.Fatalf("go: %v", err)
	}

	p, err := room.Reset(ctx, smUser)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if p.CurrentOrderIndex != 0 || p.Phase != model.PhaseWaiting {
		t.Fatalf("after reset: %+v", p)
	}

	// The pending auto-complete from Go must not fire after Reset.
	time.Sleep(50 * time.Millisecond)
	if got := room.Progress(); got.Phase != model.PhaseWaiting {
		t.Fatalf("stale auto-complete applied: %+v", got)
	}
}

func TestGoHoldAutoCompletes(t *testing.T) {
	_, _, room := testRoom(t, Config{GoHold: 20 * time.Millisecond})
	ctx := context.Background()

	if _, err := room.Standby(ctx, smUser); err != nil {
		t.Fatalf("standby: %v", err)
	}
	p, err := room.Go(ctx, smUser)
	if err != nil {
		t.Fatalf("go: %v", err)
	}
	if p.Phase != model.PhaseGo {
		t.Fatalf("phase right after go = %s", p.Phase)
	}

	waitFor(t, "auto-complete", func() bool {
		return room.Progress().Phase == model.PhaseComplete
	})
}

func TestAdvanceOnGoMovesPointerAfterComplete(t *testing.T) {
	_, _, room := testRoom(t, Config{GoHold: -1, AdvanceOnGo: true})
	ctx := context.Background()

	if _, err := room.Standby(ctx, smUser); err != nil {
		t.Fatalf("standby: %v", err)
	}
	p, err := room.Go(ctx, smUser)
	if err != nil {
		t.Fatalf("go: %v", err)
	}
	if p.CurrentOrderIndex != 1 || p.Phase != model.PhaseWaiting {
		t.Fatalf("after go with advance: %+v, want cue 1 waiting", p)
	}
}

func TestDriveRequiresCapability(t *testing.T) {
	_, _, room := testRoom(t, Config{})
	ctx := context.Background()

	for _, user := range []uint64{opUser, dirUser} {
		if _, err := room.Standby(ctx, user); !errors.Is(err, ErrForbidden) {
			t.Errorf("user %d standby: %v, want ErrForbidden", user, err)
		}
	}
}

func TestWriteThroughFailureLeavesStateUntouched(t *testing.T) {
	ms, _, room := testRoom(t, Config{})
	ctx := context.Background()

	ms.mu.Lock()
	ms.failProgress = true
	ms.mu.Unlock()

	before := room.Progress()
	if _, err := room.Standby(ctx, smUser); err == nil {
		t.Fatal("standby should fail when the store is down")
	}
	if after := room.Progress(); after != before {
		t.Fatalf("failed write changed state: %+v -> %+v", before, after)
	}
}

func TestConcurrentGoAppliesExactlyOnce(t *testing.T) {
	_, _, room := testRoom(t, Config{GoHold: time.Minute})
	ctx := context.Background()

	if _, err := room.Standby(ctx, smUser); err != nil {
		t.Fatalf("standby: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := room.Go(ctx, smUser)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, rejected int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInvalidTransition):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || rejected != n-1 {
		t.Fatalf("ok=%d rejected=%d, want 1/%d", ok, rejected, n-1)
	}
}

func TestRandomActionSequenceKeepsInvariants(t *testing.T) {
	_, _, room := testRoom(t, Config{GoHold: -1})
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	actions := []func() (model.CueProgress, error){
		func() (model.CueProgress, error) { return room.Standby(ctx, smUser) },
		func() (model.CueProgress, error) { return room.Go(ctx, smUser) },
		func() (model.CueProgress, error) { return room.Next(ctx, smUser) },
		func() (model.CueProgress, error) { return room.Previous(ctx, smUser) },
		func() (model.CueProgress, error) { return room.Undo(ctx, smUser) },
		func() (model.CueProgress, error) { return room.Reset(ctx, smUser) },
	}

	for i := 0; i < 500; i++ {
		before := room.Progress()
		_, err := actions[rng.Intn(len(actions))]()
		after := room.Progress()

		if after.CurrentOrderIndex < 0 || after.CurrentOrderIndex > 2 {
			t.Fatalf("step %d: pointer out of range: %+v", i, after)
		}
		switch after.Phase {
		case model.PhaseWaiting, model.PhaseStandby, model.PhaseComplete:
		default:
			// go is transient with no hold configured
			t.Fatalf("step %d: unexpected resting phase %s", i, after.Phase)
		}
		if err != nil && after != before {
			t.Fatalf("step %d: error %v but state changed", i, err)
		}
	}
}

func TestActivateSheetResetsProgress(t *testing.T) {
	_, _, room := testRoom(t, Config{})
	ctx := context.Background()

	if _, err := room.Next(ctx, smUser); err != nil {
		t.Fatalf("next: %v", err)
	}

	sheet := model.CueSheet{ID: "sheet-2", SessionID: testSessionID, Name: "Act II", IsActive: true}
	cues := []model.Cue{
		{ID: "d0", SheetID: "sheet-2", OrderIndex: 0, Number: "1", Department: "Sound"},
		{ID: "d1", SheetID: "sheet-2", OrderIndex: 1, Number: "2", Department: "Lighting"},
	}
	if err := room.ActivateSheet(ctx, smUser, sheet, cues); err != nil {
		t.Fatalf("activate: %v", err)
	}

	p := room.Progress()
	if p.CurrentOrderIndex != 0 || p.Phase != model.PhaseWaiting {
		t.Fatalf("after activate: %+v", p)
	}
	snap := room.Snapshot(smUser)
	if snap.Sheet.ID != "sheet-2" || len(snap.Cues) != 2 {
		t.Fatalf("snapshot sheet = %+v cues = %d", snap.Sheet, len(snap.Cues))
	}

	if err := room.ActivateSheet(ctx, opUser, sheet, cues); !errors.Is(err, ErrForbidden) {
		t.Fatalf("operator activate: %v, want ErrForbidden", err)
	}
	if err := room.ActivateSheet(ctx, smUser, sheet, nil); err == nil {
		t.Fatal("empty sheet should be rejected")
	}
}

func TestTransitionEventsAreFullReplacements(t *testing.T) {
	_, _, room := testRoom(t, Config{GoHold: -1})
	ctx := context.Background()

	sub, err := room.Subscribe(dirUser)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer room.Unsubscribe(sub)

	if _, err := room.Standby(ctx, smUser); err != nil {
		t.Fatalf("standby: %v", err)
	}
	if _, err := room.Go(ctx, smUser); err != nil {
		t.Fatalf("go: %v", err)
	}

	var phases []model.Phase
	waitFor(t, "three progress events", func() bool {
		for _, ev := range drain(sub) {
			if ev.EntityType == EntityCueProgress {
				p, ok := ev.Payload.(model.CueProgress)
				if !ok {
					t.Fatalf("payload type %T", ev.Payload)
				}
				phases = append(phases, p.Phase)
			}
		}
		return len(phases) >= 3
	})

	want := []model.Phase{model.PhaseStandby, model.PhaseGo, model.PhaseComplete}
	for i, w := range want {
		if phases[i] != w {
			t.Fatalf("event %d phase = %s, want %s (all: %v)", i, phases[i], w, phases)
		}
	}
}
