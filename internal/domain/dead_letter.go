package domain

import (
	"time"

	"github.com/goccy/go-json"
)

// DeadLetter is a message that exhausted its requeue budget.
type DeadLetter struct {
	Key          MessageKey      `json:"key"`
	Payload      json.RawMessage `json:"payload"`
	RequeueCount int             `json:"requeue_count"`
	Reason       string          `json:"reason"`
	ArchivedAt   time.Time       `json:"archived_at"`
}

// NewDeadLetter archives msg with the given reason.
func NewDeadLetter(msg *Message, reason string, at time.Time) *DeadLetter {
	payload := make(json.RawMessage, len(msg.Payload))
	copy(payload, msg.Payload)

	return &DeadLetter{
		Key:          msg.Key,
		Payload:      payload,
		RequeueCount: msg.RequeueCount,
		Reason:       reason,
		ArchivedAt:   at.UTC(),
	}
}

// DeadLetterFilter narrows List results.
type DeadLetterFilter struct {
	Segment string
	Limit   int
}
