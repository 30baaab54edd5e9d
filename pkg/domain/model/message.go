package model

import (
	"time"

	"github.com/mnemo-lab/mnemosyne/pkg/domain/types"
)

// Message is a single conversation turn held in short-term memory.
// Messages are append-only: they are never mutated after creation and are
// evicted by TTL or buffer overflow, oldest first.
type Message struct {
	AuthorID    string          `json:"author_id"`
	Content     string          `json:"content"`
	Timestamp   time.Time       `json:"timestamp"`
	ChannelID   types.ChannelID `json:"channel_id"`
	Attachments []Attachment    `json:"attachments,omitempty"`
	Mentions    []string        `json:"mentions,omitempty"`
	IsBot       bool            `json:"is_bot"`
}

// Attachment describes a non-text part of a message. Only a reference and
// a caller-provided description are kept; transcoding is out of scope.
type Attachment struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// Identity returns the timestamp+author pair used to deduplicate messages
// during history backfill.
func (m *Message) Identity() MessageIdentity {
	return MessageIdentity{
		Timestamp: m.Timestamp.UnixNano(),
		AuthorID:  m.AuthorID,
	}
}

// MessageIdentity is a comparable backfill deduplication key
type MessageIdentity struct {
	Timestamp int64
	AuthorID  string
}
