package ports

import (
	"context"

	"peerline/internal/core/domain"
)

// TipRepository persists immutable tip records. The aggregate for a
// (recipient, channel) pair is always recomputed from the full record set.
type TipRepository interface {
	Record(ctx context.Context, tip *domain.TipRecord) error
	ListByChannel(ctx context.Context, recipient domain.ParticipantID, key domain.ChannelKey) ([]*domain.TipRecord, error)
}
