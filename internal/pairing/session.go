package pairing

// Session is one active one-to-one pairing. Both members share the same
// Session value, so their views of the partner id and room id are mutually
// consistent by construction.
type Session struct {
	RoomID string // fresh UUID minted when the pair is matched
	A, B   string // the two member connection ids
}

// Partner returns the other member's connection id, or "" if id is not a
// member of this session.
func (s *Session) Partner(id string) string {
	switch id {
	case s.A:
		return s.B
	case s.B:
		return s.A
	}
	return ""
}
