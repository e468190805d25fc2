package pairing

import (
	"fmt"
	"sync"
	"testing"
)

// recorder captures Events callbacks for assertions. It is goroutine-safe
// because the engine emits notifications from whichever goroutine triggered
// the transition.
type recorder struct {
	mu       sync.Mutex
	matched  map[string][]matchedEvent // id -> matches received
	waiting  map[string]int
	skipped  map[string]int
	dropped  map[string]int // partner-disconnected notifications
}

type matchedEvent struct {
	partnerID string
	roomID    string
}

func newRecorder() *recorder {
	return &recorder{
		matched: make(map[string][]matchedEvent),
		waiting: make(map[string]int),
		skipped: make(map[string]int),
		dropped: make(map[string]int),
	}
}

func (r *recorder) Matched(id, partnerID, roomID string) {
	r.mu.Lock()
	r.matched[id] = append(r.matched[id], matchedEvent{partnerID, roomID})
	r.mu.Unlock()
}

func (r *recorder) Waiting(id string) {
	r.mu.Lock()
	r.waiting[id]++
	r.mu.Unlock()
}

func (r *recorder) PartnerSkipped(id string) {
	r.mu.Lock()
	r.skipped[id]++
	r.mu.Unlock()
}

func (r *recorder) PartnerDisconnected(id string) {
	r.mu.Lock()
	r.dropped[id]++
	r.mu.Unlock()
}

func (r *recorder) lastMatch(t *testing.T, id string) matchedEvent {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	events := r.matched[id]
	if len(events) == 0 {
		t.Fatalf("no matched event for %s", id)
	}
	return events[len(events)-1]
}

func newTestEngine(t *testing.T) (*Engine, *recorder) {
	t.Helper()
	rec := newRecorder()
	return NewEngine(rec), rec
}

func register(t *testing.T, e *Engine, ids ...string) {
	t.Helper()
	for _, id := range ids {
		e.Register(id)
	}
}

func mustJoin(t *testing.T, e *Engine, id, gender, pref string) {
	t.Helper()
	if err := e.Join(id, gender, pref); err != nil {
		t.Fatalf("Join(%s): %v", id, err)
	}
}

func TestJoin_MutualPreferenceMatchesEitherOrder(t *testing.T) {
	for _, order := range []struct {
		name  string
		first string
	}{
		{"male first", "m"},
		{"female first", "f"},
	} {
		t.Run(order.name, func(t *testing.T) {
			e, rec := newTestEngine(t)
			register(t, e, "m", "f")

			if order.first == "m" {
				mustJoin(t, e, "m", "male", "female")
				mustJoin(t, e, "f", "female", "male")
			} else {
				mustJoin(t, e, "f", "female", "male")
				mustJoin(t, e, "m", "male", "female")
			}

			waiting, sessions := e.Stats()
			if waiting != 0 || sessions != 1 {
				t.Fatalf("Stats = (%d waiting, %d sessions), want (0, 1)", waiting, sessions)
			}

			mMatch := rec.lastMatch(t, "m")
			fMatch := rec.lastMatch(t, "f")
			if mMatch.partnerID != "f" || fMatch.partnerID != "m" {
				t.Errorf("partners = %q/%q, want f/m", mMatch.partnerID, fMatch.partnerID)
			}
			if mMatch.roomID == "" || mMatch.roomID != fMatch.roomID {
				t.Errorf("room ids disagree: %q vs %q", mMatch.roomID, fMatch.roomID)
			}
		})
	}
}

func TestJoin_IncompatibleNeverMatch(t *testing.T) {
	e, rec := newTestEngine(t)
	register(t, e, "a", "b")

	// Both prefer "male" but b is female: a accepts nobody here, so no
	// session may ever form.
	mustJoin(t, e, "a", "male", "male")
	mustJoin(t, e, "b", "female", "male")

	waiting, sessions := e.Stats()
	if waiting != 2 || sessions != 0 {
		t.Fatalf("Stats = (%d waiting, %d sessions), want (2, 0)", waiting, sessions)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.matched) != 0 {
		t.Errorf("matched events = %v, want none", rec.matched)
	}
	if rec.waiting["a"] != 1 || rec.waiting["b"] != 1 {
		t.Errorf("waiting notices = %v, want one each", rec.waiting)
	}
}

func TestJoin_StateErrors(t *testing.T) {
	e, _ := newTestEngine(t)
	register(t, e, "a", "b")

	if err := e.Join("ghost", "male", PrefAny); err != ErrNotRegistered {
		t.Errorf("Join(ghost) err = %v, want ErrNotRegistered", err)
	}

	mustJoin(t, e, "a", "male", PrefAny)
	if err := e.Join("a", "male", PrefAny); err != ErrAlreadyWaiting {
		t.Errorf("second Join err = %v, want ErrAlreadyWaiting", err)
	}

	mustJoin(t, e, "b", "female", PrefAny)
	if err := e.Join("a", "male", PrefAny); err != ErrAlreadyPaired {
		t.Errorf("Join while paired err = %v, want ErrAlreadyPaired", err)
	}
}

func TestPartner_ViewsAreMutuallyConsistent(t *testing.T) {
	e, _ := newTestEngine(t)
	register(t, e, "a", "b")
	mustJoin(t, e, "a", "male", "female")
	mustJoin(t, e, "b", "female", PrefAny)

	aPartner, aRoom, ok := e.Partner("a")
	if !ok {
		t.Fatal("Partner(a) not found")
	}
	bPartner, bRoom, ok := e.Partner("b")
	if !ok {
		t.Fatal("Partner(b) not found")
	}
	if aPartner != "b" || bPartner != "a" {
		t.Errorf("partners = %q/%q, want b/a", aPartner, bPartner)
	}
	if aRoom != bRoom {
		t.Errorf("room ids disagree: %q vs %q", aRoom, bRoom)
	}
}

func TestSkip_PrefersThirdPartyOverRematch(t *testing.T) {
	e, rec := newTestEngine(t)
	register(t, e, "a", "b", "c")

	mustJoin(t, e, "a", "male", "female")
	mustJoin(t, e, "b", "female", "male")
	// c joins while a and b are paired; profiles intact means it can pick up
	// either of them later.
	mustJoin(t, e, "c", "female", "male")

	if err := e.Skip("a"); err != nil {
		t.Fatalf("Skip(a): %v", err)
	}

	rec.mu.Lock()
	skips := rec.skipped["b"]
	rec.mu.Unlock()
	if skips != 1 {
		t.Errorf("b received %d partner-skipped notices, want 1", skips)
	}

	// a re-matches with the longer-waiting c; b stays pooled.
	aMatch := rec.lastMatch(t, "a")
	if aMatch.partnerID != "c" {
		t.Errorf("a re-matched with %q, want c", aMatch.partnerID)
	}

	waiting, sessions := e.Stats()
	if waiting != 1 || sessions != 1 {
		t.Errorf("Stats = (%d waiting, %d sessions), want (1, 1)", waiting, sessions)
	}

	// b kept its original profile: a fresh compatible arrival matches it.
	register(t, e, "d")
	mustJoin(t, e, "d", "male", "female")
	dMatch := rec.lastMatch(t, "d")
	if dMatch.partnerID != "b" {
		t.Errorf("d matched %q, want b (profile preserved through skip)", dMatch.partnerID)
	}
}

func TestSkip_RematchesExPartnerWhenAlone(t *testing.T) {
	e, rec := newTestEngine(t)
	register(t, e, "a", "b")
	mustJoin(t, e, "a", "male", "female")
	mustJoin(t, e, "b", "female", "male")

	firstRoom := rec.lastMatch(t, "a").roomID

	if err := e.Skip("a"); err != nil {
		t.Fatalf("Skip(a): %v", err)
	}

	// With nobody else in the pool the two are still mutually compatible and
	// pair again, in a fresh session.
	secondRoom := rec.lastMatch(t, "a").roomID
	if secondRoom == firstRoom {
		t.Error("re-match reused the old room id, want a fresh session")
	}
	waiting, sessions := e.Stats()
	if waiting != 0 || sessions != 1 {
		t.Errorf("Stats = (%d waiting, %d sessions), want (0, 1)", waiting, sessions)
	}
}

func TestSkip_NotPaired(t *testing.T) {
	e, _ := newTestEngine(t)
	register(t, e, "a")

	if err := e.Skip("a"); err != ErrNotPaired {
		t.Errorf("Skip(unjoined) err = %v, want ErrNotPaired", err)
	}
	mustJoin(t, e, "a", "male", PrefAny)
	if err := e.Skip("a"); err != ErrNotPaired {
		t.Errorf("Skip(waiting) err = %v, want ErrNotPaired", err)
	}
	if err := e.Skip("ghost"); err != ErrNotRegistered {
		t.Errorf("Skip(ghost) err = %v, want ErrNotRegistered", err)
	}
}

func TestDisconnect_PairedNotifiesPartnerExactlyOnce(t *testing.T) {
	e, rec := newTestEngine(t)
	register(t, e, "a", "b")
	mustJoin(t, e, "a", "male", "female")
	mustJoin(t, e, "b", "female", "male")

	e.Disconnect("a")
	e.Disconnect("a") // stale duplicate is a no-op

	rec.mu.Lock()
	drops := rec.dropped["b"]
	skips := rec.skipped["b"]
	rec.mu.Unlock()
	if drops != 1 {
		t.Errorf("b received %d partner-disconnected notices, want exactly 1", drops)
	}
	if skips != 0 {
		t.Errorf("b received %d partner-skipped notices, want 0 (disconnect is distinct)", skips)
	}

	if e.Exists("a") {
		t.Error("a still registered after disconnect")
	}
	if _, _, ok := e.Partner("b"); ok {
		t.Error("session survived a member's disconnect")
	}

	// b is back in the pool but idle; a new arrival's TryMatch picks it up.
	waiting, sessions := e.Stats()
	if waiting != 1 || sessions != 0 {
		t.Fatalf("Stats = (%d waiting, %d sessions), want (1, 0)", waiting, sessions)
	}
	register(t, e, "c")
	mustJoin(t, e, "c", "male", "female")
	if got := rec.lastMatch(t, "c").partnerID; got != "b" {
		t.Errorf("c matched %q, want b", got)
	}
}

func TestDisconnect_WaitingLeavesPool(t *testing.T) {
	e, _ := newTestEngine(t)
	register(t, e, "a")
	mustJoin(t, e, "a", "male", PrefAny)

	e.Disconnect("a")

	waiting, sessions := e.Stats()
	if waiting != 0 || sessions != 0 {
		t.Errorf("Stats = (%d waiting, %d sessions), want (0, 0)", waiting, sessions)
	}
	if e.Exists("a") {
		t.Error("a still registered after disconnect")
	}
}

func TestTryMatch_NoOpOutsideWaiting(t *testing.T) {
	e, rec := newTestEngine(t)
	register(t, e, "a", "b")
	mustJoin(t, e, "a", "male", "female")
	mustJoin(t, e, "b", "female", "male")

	e.TryMatch("a")     // paired: no-op
	e.TryMatch("ghost") // unknown: no-op

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.matched["a"]) != 1 {
		t.Errorf("a has %d matched events, want 1", len(rec.matched["a"]))
	}
}

// TestConcurrentJoins drives many simultaneous joins of mutually compatible
// connections and verifies the match-and-remove critical section: everyone
// ends up in exactly one session, nobody is claimed twice, and partner views
// agree.
func TestConcurrentJoins(t *testing.T) {
	const pairs = 32

	e, rec := newTestEngine(t)

	var ids []string
	for i := 0; i < pairs; i++ {
		ids = append(ids, fmt.Sprintf("m%d", i), fmt.Sprintf("f%d", i))
	}
	register(t, e, ids...)

	var wg sync.WaitGroup
	for i := 0; i < pairs; i++ {
		wg.Add(2)
		go func(id string) {
			defer wg.Done()
			if err := e.Join(id, "male", "female"); err != nil {
				t.Errorf("Join(%s): %v", id, err)
			}
		}(fmt.Sprintf("m%d", i))
		go func(id string) {
			defer wg.Done()
			if err := e.Join(id, "female", "male"); err != nil {
				t.Errorf("Join(%s): %v", id, err)
			}
		}(fmt.Sprintf("f%d", i))
	}
	wg.Wait()

	waiting, sessions := e.Stats()
	if waiting != 0 || sessions != pairs {
		t.Fatalf("Stats = (%d waiting, %d sessions), want (0, %d)", waiting, sessions, pairs)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	for _, id := range ids {
		events := rec.matched[id]
		if len(events) != 1 {
			t.Fatalf("%s has %d matched events, want exactly 1", id, len(events))
		}
	}

	// Partner claims must be strictly mutual: if a was told about b, b was
	// told about a with the same room, and nobody else was told about either.
	for _, id := range ids {
		ev := rec.matched[id][0]
		partnerEvents := rec.matched[ev.partnerID]
		if len(partnerEvents) != 1 || partnerEvents[0].partnerID != id {
			t.Fatalf("%s claims partner %s, but %s claims %v",
				id, ev.partnerID, ev.partnerID, partnerEvents)
		}
		if partnerEvents[0].roomID != ev.roomID {
			t.Fatalf("room disagreement between %s and %s", id, ev.partnerID)
		}
	}
}

// TestMembershipInvariant checks that every live joined connection is in
// exactly one of {waiting pool, session} after a scramble of operations.
func TestMembershipInvariant(t *testing.T) {
	e, _ := newTestEngine(t)

	ids := []string{"a", "b", "c", "d", "e"}
	register(t, e, ids...)
	mustJoin(t, e, "a", "male", "female")
	mustJoin(t, e, "b", "female", PrefAny)
	mustJoin(t, e, "c", "male", PrefAny)
	mustJoin(t, e, "d", "female", "male")
	mustJoin(t, e, "e", "other", PrefAny)

	_ = e.Skip("a")
	e.Disconnect("c")

	live := 0
	for _, id := range ids {
		if e.Exists(id) {
			live++
		}
	}

	waiting, sessions := e.Stats()
	if waiting+2*sessions != live {
		t.Errorf("membership leak: %d waiting + 2*%d sessions != %d live joined",
			waiting, sessions, live)
	}
}
