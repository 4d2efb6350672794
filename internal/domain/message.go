// Package domain contains the core entities and value objects for Redline.
// These models represent the ubiquitous language of the queue engine.
package domain

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// MessageStatus represents where a message currently lives in the store.
type MessageStatus string

const (
	// StatusQueued means the message was just committed to a pending list.
	StatusQueued MessageStatus = "queued"
	// StatusPending means the message was handed to a consumer and awaits acknowledgement.
	StatusPending MessageStatus = "pending"
	// StatusDelayed means the message sits in the delayed set until its deliver-at time.
	StatusDelayed MessageStatus = "delayed"
)

// keySeparator joins segment and id in the encoded key form.
// Message ids are UUIDs and never contain it, so decoding splits on the last one.
const keySeparator = "|"

// MessageKey identifies a message and the segment it was queued to.
// An empty Segment means the message is unsharded.
type MessageKey struct {
	ID      string `json:"id"`
	Segment string `json:"segment,omitempty"`
}

// HasSegment reports whether the key carries a segment.
func (k MessageKey) HasSegment() bool {
	return k.Segment != ""
}

// String encodes the key as "segment|id", or just "id" when unsharded.
func (k MessageKey) String() string {
	if k.Segment == "" {
		return k.ID
	}
	return k.Segment + keySeparator + k.ID
}

// ParseMessageKey reverses MessageKey.String.
func ParseMessageKey(s string) MessageKey {
	idx := strings.LastIndex(s, keySeparator)
	if idx < 0 {
		return MessageKey{ID: s}
	}
	return MessageKey{Segment: s[:idx], ID: s[idx+1:]}
}

// Message is a queued unit of work together with its bookkeeping.
type Message struct {
	// Key identifies the message; the segment never changes once assigned.
	Key MessageKey `json:"key"`

	// Payload is the caller supplied JSON document.
	Payload json.RawMessage `json:"payload"`

	// RequeueCount is how many times the message went back to the pending list.
	RequeueCount int `json:"requeue_count"`

	// Status reflects the last operation applied through the queue server.
	Status MessageStatus `json:"status"`

	// QueuedAt is when the message was last committed to a pending list.
	QueuedAt time.Time `json:"queued_at,omitempty"`
}

// DelayedEntry describes one member of the delayed set.
type DelayedEntry struct {
	Key       MessageKey `json:"key"`
	DeliverAt time.Time  `json:"deliver_at"`
}

// Due reports whether the entry should be delivered at now.
func (e DelayedEntry) Due(now time.Time) bool {
	return !e.DeliverAt.After(now)
}
