package moderation

// CheckRequest is the payload sent to the moderation.check subject when the
// relay asks the external classifier service to review a message.
type CheckRequest struct {
	Text string `json:"text"`
	Ts   int64  `json:"ts"`
}

// CheckResponse is the classifier service's reply.
type CheckResponse struct {
	Flagged bool   `json:"flagged"`
	Reason  string `json:"reason,omitempty"`
}
