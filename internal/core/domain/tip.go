package domain

import "time"

type TipID string

// TipRecord is an immutable monetary transfer attributed to a call.
// Amount is in minor currency units. Records are never mutated; totals
// are recomputed from the full record set, not maintained incrementally.
type TipRecord struct {
	ID          TipID         `json:"id"`
	SenderID    ParticipantID `json:"sender_id"`
	RecipientID ParticipantID `json:"recipient_id"`
	Amount      int64         `json:"amount"`
	ChannelKey  ChannelKey    `json:"channel_key"`
	CreatedAt   time.Time     `json:"created_at"`
}
