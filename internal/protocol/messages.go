// Package protocol defines the WebSocket message types and structures used for
// communication between the client and server. All messages are serialized as
// JSON and follow a consistent envelope format with a type discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeJoin        = "join"
	TypeTextMessage = "text-message"
	TypeCallOffer   = "call-offer"
	TypeCallAnswer  = "call-answer"
	TypeICE         = "ice-candidate"
	TypeReportUser  = "report-user"
	TypeSkipPartner = "skip-partner"
	TypePing        = "ping"
)

// Server -> Client message types. The signaling types (call-offer,
// call-answer, ice-candidate) and text-message flow in both directions.
const (
	TypeMatched             = "matched"
	TypeWaiting             = "waiting"
	TypeMessageBlocked      = "message-blocked"
	TypeBanned              = "banned"
	TypePartnerSkipped      = "partner-skipped"
	TypePartnerDisconnected = "partner-disconnected"
	TypeRateLimited         = "rate-limited"
	TypeError               = "error"
	TypePong                = "pong"
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	// Capture the full raw message for deferred parsing.
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	// Extract only the type field.
	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// JoinMsg is sent by the client to enter the waiting pool with its declared
// gender and partner preference ("male", "female", ... or "any").
type JoinMsg struct {
	Type   string `json:"type"`
	Gender string `json:"gender"`
	Pref   string `json:"pref"`
}

// TextMsg is a chat text message sent by the client to its current partner.
type TextMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// SignalMsg carries opaque WebRTC call-setup metadata (offer, answer, or ICE
// candidate). The server never inspects the payload; it is forwarded to the
// partner verbatim.
type SignalMsg struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ReportUserMsg is sent by the client to report another connection for abuse.
type ReportUserMsg struct {
	Type     string `json:"type"`
	TargetID string `json:"target_id"`
}

// SkipPartnerMsg is sent by the client to end the current pairing and look
// for a new partner.
type SkipPartnerMsg struct {
	Type string `json:"type"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// MatchedMsg is sent by the server to both members of a fresh pairing.
type MatchedMsg struct {
	Type      string `json:"type"`
	PartnerID string `json:"partner_id"`
	RoomID    string `json:"room_id"`
}

// WaitingMsg tells the client it is in the waiting pool with no partner yet.
type WaitingMsg struct {
	Type string `json:"type"`
}

// ServerTextMsg is a chat text message relayed to the partner, tagged with
// the sender's connection ID.
type ServerTextMsg struct {
	Type    string `json:"type"`
	From    string `json:"from"`
	Message string `json:"message"`
	Ts      int64  `json:"ts"`
}

// ServerSignalMsg is an opaque signaling payload relayed to the partner,
// tagged with the sender's connection ID.
type ServerSignalMsg struct {
	Type    string          `json:"type"`
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

// MessageBlockedMsg tells the sender its text message was withheld by
// moderation and why.
type MessageBlockedMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// BannedMsg is sent to a connection just before it is forcibly disconnected
// for crossing the report threshold.
type BannedMsg struct {
	Type string `json:"type"`
}

// PartnerSkippedMsg tells the client its partner chose to move on.
type PartnerSkippedMsg struct {
	Type string `json:"type"`
}

// PartnerDisconnectedMsg tells the client its partner left entirely.
type PartnerDisconnectedMsg struct {
	Type string `json:"type"`
}

// RateLimitedMsg is sent by the server when the client has been rate-limited.
type RateLimitedMsg struct {
	Type       string `json:"type"`
	RetryAfter int    `json:"retry_after"`
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeJoin:
		var m JoinMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTextMessage:
		var m TextMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeCallOffer, TypeCallAnswer, TypeICE:
		var m SignalMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReportUser:
		var m ReportUserMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSkipPartner:
		var m SkipPartnerMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the server message structs; this function marshals it to
// JSON, injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	// Marshal the payload struct to a generic map so we can ensure the "type"
	// field is present and correct.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
