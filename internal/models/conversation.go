package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is the unique pairing of one user and one owner. The
// (user_id, owner_id) pair is unique at the store level; the rolling daily
// counter is reset lazily on the first message after the date changes.
type Conversation struct {
	ID                uuid.UUID `json:"id" db:"id"`
	UserID            int64     `json:"user_id" db:"user_id"`
	OwnerID           int64     `json:"owner_id" db:"owner_id"`
	MessageCountToday int       `json:"message_count_today" db:"message_count_today"`
	LastMessageDate   time.Time `json:"last_message_date" db:"last_message_date"`
	LastMessage       time.Time `json:"last_message" db:"last_message"`
	LastForwardID     *int64    `json:"last_forward_id" db:"last_forward_id"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}
