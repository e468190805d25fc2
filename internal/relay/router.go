// Package relay forwards chat text and WebRTC signaling between the two
// members of a session. Text passes through moderation and rate limiting;
// signaling payloads are forwarded verbatim. A connection with no current
// partner gets nothing relayed and no error back, so stale sends race-free
// resolve to silence.
package relay

import (
	"context"
	"log"
	"time"

	"github.com/roulette/chat-app/internal/metrics"
	"github.com/roulette/chat-app/internal/moderation"
	"github.com/roulette/chat-app/internal/protocol"
)

// Sender delivers an encoded frame to a connection by id. Send failures are
// logged and otherwise ignored; a dying peer is cleaned up by the transport's
// own disconnect path.
type Sender interface {
	Send(connID string, data []byte) error
}

// Pairs answers partner lookups for live sessions.
type Pairs interface {
	Partner(id string) (partnerID, roomID string, ok bool)
}

// Limiter throttles per-connection message rates. A Limiter error fails
// open, same policy as moderation.
type Limiter interface {
	Allow(ctx context.Context, id string) (allowed bool, retryAfter time.Duration, err error)
}

// Router relays payloads between session members.
//
// Partner resolution and delivery are not atomic with pairing transitions.
// A message relayed concurrently with a skip can still reach the partner
// from the session the sender was in when the lookup ran, so "current
// partner" delivery holds only once a transition has settled.
type Router struct {
	pairs   Pairs
	gate    *moderation.Gate
	limiter Limiter // nil disables rate limiting
	send    Sender
}

// NewRouter creates a Router. limiter may be nil.
func NewRouter(pairs Pairs, gate *moderation.Gate, limiter Limiter, send Sender) *Router {
	return &Router{pairs: pairs, gate: gate, limiter: limiter, send: send}
}

// RelayText validates, rate-limits, and moderates a chat message from
// senderID, then forwards it to the partner. Flagged messages produce a
// message-blocked notice to the sender only; the partner never learns a
// message was attempted. Sends from unpaired connections are dropped.
func (r *Router) RelayText(ctx context.Context, senderID, text string) {
	partnerID, _, ok := r.pairs.Partner(senderID)
	if !ok {
		metrics.MessagesTotal.WithLabelValues("dropped").Inc()
		return
	}

	if err := validateText(text); err != nil {
		log.Printf("[relay] rejecting message from %s: %v", senderID, err)
		metrics.MessagesTotal.WithLabelValues("dropped").Inc()
		r.reply(senderID, protocol.TypeError, protocol.ErrorMsg{
			Code:    "invalid_message",
			Message: err.Error(),
		})
		return
	}

	if r.limiter != nil {
		allowed, retryAfter, err := r.limiter.Allow(ctx, senderID)
		if err != nil {
			log.Printf("[relay] rate limiter error (failing open): %v", err)
		} else if !allowed {
			metrics.MessagesTotal.WithLabelValues("dropped").Inc()
			r.reply(senderID, protocol.TypeRateLimited, protocol.RateLimitedMsg{
				RetryAfter: int(retryAfter.Seconds()),
			})
			return
		}
	}

	if verdict := r.gate.Check(ctx, text); verdict.Flagged {
		metrics.MessagesTotal.WithLabelValues("blocked").Inc()
		r.reply(senderID, protocol.TypeMessageBlocked, protocol.MessageBlockedMsg{
			Reason: verdict.Reason,
		})
		return
	}

	data, err := protocol.NewServerMessage(protocol.TypeTextMessage, protocol.ServerTextMsg{
		From:    senderID,
		Message: text,
		Ts:      time.Now().UnixMilli(),
	})
	if err != nil {
		log.Printf("[relay] encode text from %s: %v", senderID, err)
		return
	}

	metrics.MessagesTotal.WithLabelValues("relayed").Inc()
	if err := r.send.Send(partnerID, data); err != nil {
		log.Printf("[relay] send text to %s: %v", partnerID, err)
	}
}

// RelaySignal forwards an opaque WebRTC signaling payload (call-offer,
// call-answer, or ice-candidate) to the partner under the same message type.
// Signaling bypasses moderation and rate limiting. Sends from unpaired
// connections are dropped.
func (r *Router) RelaySignal(senderID, msgType string, msg protocol.SignalMsg) {
	partnerID, _, ok := r.pairs.Partner(senderID)
	if !ok {
		metrics.MessagesTotal.WithLabelValues("dropped").Inc()
		return
	}

	data, err := protocol.NewServerMessage(msgType, protocol.ServerSignalMsg{
		From:    senderID,
		Payload: msg.Payload,
	})
	if err != nil {
		log.Printf("[relay] encode %s from %s: %v", msgType, senderID, err)
		return
	}

	metrics.MessagesTotal.WithLabelValues("signal").Inc()
	if err := r.send.Send(partnerID, data); err != nil {
		log.Printf("[relay] send %s to %s: %v", msgType, partnerID, err)
	}
}

// reply sends an encoded notice back to the originating connection.
func (r *Router) reply(connID, msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("[relay] encode %s: %v", msgType, err)
		return
	}
	if err := r.send.Send(connID, data); err != nil {
		log.Printf("[relay] send %s to %s: %v", msgType, connID, err)
	}
}
