// Package pairing owns all matchmaking state for the server: the connection
// registry, the waiting pool, and the table of active sessions. A single
// Engine serializes every state transition (join, match, skip, disconnect)
// behind one mutex so that concurrent events from different connections can
// never observe a half-applied transition or race two matches onto the same
// waiting entry.
package pairing

import "errors"

// PrefAny is the preference value that accepts a partner of any gender.
const PrefAny = "any"

// ErrAlreadyWaiting is returned when a connection tries to enter the waiting
// pool while it is already in it.
var ErrAlreadyWaiting = errors.New("pairing: already waiting")

// Profile is a connection's declared gender and partner preference. The
// gender is a free-form category string as declared by the client; the
// preference is a gender string or PrefAny.
type Profile struct {
	Gender string
	Pref   string
}

// Compatible reports whether two profiles accept each other. Compatibility
// is not symmetric by construction, so both directions are checked: a's
// preference must admit b's gender and b's preference must admit a's gender.
func Compatible(a, b Profile) bool {
	if a.Pref != PrefAny && b.Gender != a.Pref {
		return false
	}
	if b.Pref != PrefAny && a.Gender != b.Pref {
		return false
	}
	return true
}

type poolEntry struct {
	id      string
	profile Profile
}

// pool is the set of connections currently seeking a partner, kept in
// insertion order so that FindCompatible's first-match-wins tie-break is
// deterministic. It is not goroutine-safe; the Engine's mutex guards it.
type pool struct {
	entries []poolEntry
	present map[string]struct{}
}

func newPool() *pool {
	return &pool{present: make(map[string]struct{})}
}

// enter appends an entry to the pool. It fails with ErrAlreadyWaiting if the
// id is already present.
func (p *pool) enter(id string, profile Profile) error {
	if _, ok := p.present[id]; ok {
		return ErrAlreadyWaiting
	}
	p.entries = append(p.entries, poolEntry{id: id, profile: profile})
	p.present[id] = struct{}{}
	return nil
}

// remove deletes an entry if present and reports whether it was there.
// Insertion order of the remaining entries is preserved.
func (p *pool) remove(id string) bool {
	if _, ok := p.present[id]; !ok {
		return false
	}
	delete(p.present, id)
	for i, e := range p.entries {
		if e.id == id {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			break
		}
	}
	return true
}

// findCompatible scans the pool in insertion order and returns the first
// entry, other than id itself, whose profile is mutually compatible with the
// given profile. The second return value is false when no such entry exists.
func (p *pool) findCompatible(id string, profile Profile) (string, bool) {
	for _, e := range p.entries {
		if e.id == id {
			continue
		}
		if Compatible(profile, e.profile) {
			return e.id, true
		}
	}
	return "", false
}

// size returns the number of waiting entries.
func (p *pool) size() int {
	return len(p.entries)
}
