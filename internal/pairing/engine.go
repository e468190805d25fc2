package pairing

import (
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/roulette/chat-app/internal/metrics"
)

// Sentinel errors for protocol misuse. Callers treat them as no-ops per the
// error handling policy: a stale or misbehaving client never disrupts the
// service.
var (
	ErrNotRegistered = errors.New("pairing: connection not registered")
	ErrAlreadyPaired = errors.New("pairing: connection already paired")
	ErrNotPaired     = errors.New("pairing: connection not paired")
)

// Per-connection lifecycle states.
type state int

const (
	stateUnjoined state = iota // registered, no preferences declared
	stateWaiting               // in the waiting pool
	statePaired                // member of an active session
)

// Events receives pairing lifecycle notifications. Implementations typically
// translate these into outbound protocol messages. The Engine always invokes
// Events outside its internal lock, so implementations may safely call back
// into the Engine.
type Events interface {
	// Matched fires once per member when a session is established.
	Matched(id, partnerID, roomID string)
	// Waiting fires when a connection enters or re-enters the pool with no
	// compatible partner available.
	Waiting(id string)
	// PartnerSkipped fires on the remaining member when its partner skipped.
	PartnerSkipped(id string)
	// PartnerDisconnected fires on the remaining member when its partner
	// left entirely.
	PartnerDisconnected(id string)
}

// record is the registry entry for one live connection.
type record struct {
	profile Profile
	state   state
}

// Engine is the coordinator that owns all matchmaking state. Every public
// method takes the single mutex, applies the whole transition, and only then
// emits notifications, so no two concurrent calls can both claim the same
// waiting entry and no observer ever sees a connection in two places at once.
type Engine struct {
	mu       sync.Mutex
	conns    map[string]*record
	pool     *pool
	sessions map[string]*Session // keyed by member id; two keys per session
	active   int                 // live session count (pairs, not members)
	events   Events
}

// NewEngine creates an Engine that reports lifecycle transitions to events.
func NewEngine(events Events) *Engine {
	return &Engine{
		conns:    make(map[string]*record),
		pool:     newPool(),
		sessions: make(map[string]*Session),
		events:   events,
	}
}

// notice is a deferred Events call, gathered under the lock and emitted
// after it is released.
type notice struct {
	kind    string
	id      string
	partner string
	room    string
}

const (
	noticeMatched             = "matched"
	noticeWaiting             = "waiting"
	noticePartnerSkipped      = "partner_skipped"
	noticePartnerDisconnected = "partner_disconnected"
)

func (e *Engine) emit(notices []notice) {
	if e.events == nil {
		return
	}
	for _, n := range notices {
		switch n.kind {
		case noticeMatched:
			e.events.Matched(n.id, n.partner, n.room)
		case noticeWaiting:
			e.events.Waiting(n.id)
		case noticePartnerSkipped:
			e.events.PartnerSkipped(n.id)
		case noticePartnerDisconnected:
			e.events.PartnerDisconnected(n.id)
		}
	}
}

// Register creates a live registry record for a freshly connected id in the
// Unjoined state. Registering an id twice is a no-op.
func (e *Engine) Register(id string) {
	e.mu.Lock()
	if _, ok := e.conns[id]; !ok {
		e.conns[id] = &record{state: stateUnjoined}
	}
	e.mu.Unlock()
}

// Exists reports whether id has a live registry record.
func (e *Engine) Exists(id string) bool {
	e.mu.Lock()
	_, ok := e.conns[id]
	e.mu.Unlock()
	return ok
}

// Join declares a connection's gender and preference, enters it into the
// waiting pool, and immediately attempts a match. Valid only from the
// Unjoined state.
func (e *Engine) Join(id, gender, pref string) error {
	e.mu.Lock()
	rec, ok := e.conns[id]
	if !ok {
		e.mu.Unlock()
		return ErrNotRegistered
	}
	switch rec.state {
	case stateWaiting:
		e.mu.Unlock()
		return ErrAlreadyWaiting
	case statePaired:
		e.mu.Unlock()
		return ErrAlreadyPaired
	}

	rec.profile = Profile{Gender: gender, Pref: pref}
	rec.state = stateWaiting
	if err := e.pool.enter(id, rec.profile); err != nil {
		// Unreachable while the state machine holds: Unjoined ids are never
		// pool members.
		e.mu.Unlock()
		return err
	}

	notices := e.tryMatchLocked(id)
	e.updateGauges()
	e.mu.Unlock()

	e.emit(notices)
	return nil
}

// TryMatch re-attempts matching for a connection in the Waiting state. It is
// a no-op for connections in any other state.
func (e *Engine) TryMatch(id string) {
	e.mu.Lock()
	rec, ok := e.conns[id]
	if !ok || rec.state != stateWaiting {
		e.mu.Unlock()
		return
	}
	notices := e.tryMatchLocked(id)
	e.updateGauges()
	e.mu.Unlock()

	e.emit(notices)
}

// tryMatchLocked is the critical section of the matchmaker: find a
// compatible partner and, in the same lock hold, remove both entries from
// the pool, create the session, and flip both states to Paired. Callers must
// hold e.mu and guarantee id is in the Waiting state.
func (e *Engine) tryMatchLocked(id string) []notice {
	rec := e.conns[id]

	partnerID, found := e.pool.findCompatible(id, rec.profile)
	if !found {
		return []notice{{kind: noticeWaiting, id: id}}
	}

	e.pool.remove(id)
	e.pool.remove(partnerID)

	sess := &Session{RoomID: uuid.New().String(), A: id, B: partnerID}
	e.sessions[id] = sess
	e.sessions[partnerID] = sess
	e.active++

	rec.state = statePaired
	e.conns[partnerID].state = statePaired

	metrics.MatchesTotal.Inc()
	log.Printf("[pairing] matched %s with %s room=%s", id, partnerID, sess.RoomID)

	return []notice{
		{kind: noticeMatched, id: id, partner: partnerID, room: sess.RoomID},
		{kind: noticeMatched, id: partnerID, partner: id, room: sess.RoomID},
	}
}

// Skip tears down the caller's session, notifies the ex-partner, returns
// both members to the waiting pool with their original profiles, and
// re-attempts matching for the caller. The ex-partner stays pooled until a
// later TryMatch (its own or another arrival's) picks it up. Valid only from
// the Paired state.
func (e *Engine) Skip(id string) error {
	e.mu.Lock()
	rec, ok := e.conns[id]
	if !ok {
		e.mu.Unlock()
		return ErrNotRegistered
	}
	if rec.state != statePaired {
		e.mu.Unlock()
		return ErrNotPaired
	}

	sess := e.sessions[id]
	partnerID := sess.Partner(id)
	e.destroySessionLocked(sess)

	notices := []notice{{kind: noticePartnerSkipped, id: partnerID}}

	// The ex-partner re-enters the pool first so that a third party who was
	// already waiting is preferred over an immediate re-pairing, per the
	// insertion-order tie-break.
	partner := e.conns[partnerID]
	partner.state = stateWaiting
	_ = e.pool.enter(partnerID, partner.profile)

	rec.state = stateWaiting
	_ = e.pool.enter(id, rec.profile)

	log.Printf("[pairing] %s skipped %s", id, partnerID)

	notices = append(notices, e.tryMatchLocked(id)...)
	e.updateGauges()
	e.mu.Unlock()

	e.emit(notices)
	return nil
}

// Disconnect removes a connection and all its derived state. If it was
// paired, the session is destroyed and the partner is notified — with a
// disconnect signal, distinct from a skip — and returned to the waiting pool,
// where it stays until it next initiates matching itself or is picked up by
// another arrival's TryMatch. Valid from any state; unknown ids are a no-op.
func (e *Engine) Disconnect(id string) {
	e.mu.Lock()
	rec, ok := e.conns[id]
	if !ok {
		e.mu.Unlock()
		return
	}

	var notices []notice

	switch rec.state {
	case stateWaiting:
		e.pool.remove(id)
	case statePaired:
		sess := e.sessions[id]
		partnerID := sess.Partner(id)
		e.destroySessionLocked(sess)

		partner := e.conns[partnerID]
		partner.state = stateWaiting
		_ = e.pool.enter(partnerID, partner.profile)

		notices = append(notices, notice{kind: noticePartnerDisconnected, id: partnerID})
	}

	delete(e.conns, id)
	e.updateGauges()
	e.mu.Unlock()

	log.Printf("[pairing] disconnected %s", id)
	e.emit(notices)
}

// destroySessionLocked removes both member entries for a session. Callers
// must hold e.mu.
func (e *Engine) destroySessionLocked(sess *Session) {
	delete(e.sessions, sess.A)
	delete(e.sessions, sess.B)
	e.active--
}

// Partner returns the current partner id and room id for a paired
// connection. ok is false when id is not currently a session member.
func (e *Engine) Partner(id string) (partnerID, roomID string, ok bool) {
	e.mu.Lock()
	sess, found := e.sessions[id]
	e.mu.Unlock()
	if !found {
		return "", "", false
	}
	return sess.Partner(id), sess.RoomID, true
}

// Stats returns the current waiting-pool size and the number of active
// sessions, each session counted once rather than per member.
func (e *Engine) Stats() (waiting, sessions int) {
	e.mu.Lock()
	waiting = e.pool.size()
	sessions = e.active
	e.mu.Unlock()
	return waiting, sessions
}

// updateGauges refreshes the Prometheus gauges that mirror engine state.
// Callers must hold e.mu.
func (e *Engine) updateGauges() {
	metrics.WaitingPoolSize.Set(float64(e.pool.size()))
	metrics.ActiveSessions.Set(float64(e.active))
}
