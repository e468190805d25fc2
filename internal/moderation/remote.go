package moderation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roulette/chat-app/internal/messaging"
)

// RemoteClassifier consults the out-of-process classifier service over NATS
// request/reply. Errors (timeout, no responders, unreachable broker) are
// returned to the Gate, which fails open.
type RemoteClassifier struct {
	client *messaging.Client
}

// NewRemoteClassifier creates a classifier that calls the moderation service
// through the given NATS client.
func NewRemoteClassifier(client *messaging.Client) *RemoteClassifier {
	return &RemoteClassifier{client: client}
}

// Classify implements the Classifier interface.
func (r *RemoteClassifier) Classify(ctx context.Context, text string) (Verdict, error) {
	req, err := json.Marshal(CheckRequest{Text: text, Ts: time.Now().Unix()})
	if err != nil {
		return Verdict{}, fmt.Errorf("moderation: marshal request: %w", err)
	}

	data, err := r.client.Request(ctx, messaging.SubjectModerationCheck, req)
	if err != nil {
		return Verdict{}, err
	}

	var resp CheckResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return Verdict{}, fmt.Errorf("moderation: unmarshal response: %w", err)
	}
	return Verdict{Flagged: resp.Flagged, Reason: resp.Reason}, nil
}
