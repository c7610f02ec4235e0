package models

import (
	"time"

	"github.com/google/uuid"
)

// SenderRole identifies which side of a conversation sent a message.
type SenderRole string

const (
	RoleUser  SenderRole = "user"
	RoleOwner SenderRole = "owner"
)

// Message is one immutable directional hop inside a conversation.
// Append-only; removed only by the retention sweep.
type Message struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	ConversationID uuid.UUID  `json:"conversation_id" db:"conversation_id"`
	Sender         SenderRole `json:"sender" db:"sender"`
	Body           string     `json:"body" db:"body"`
	Kind           string     `json:"kind" db:"kind"`
	OriginID       *int64     `json:"origin_id" db:"origin_id"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}
