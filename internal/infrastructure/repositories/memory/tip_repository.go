package memory

import (
	"context"
	"sync"

	"peerline/internal/core/domain"
	"peerline/internal/core/ports"
)

type MemoryTipRepository struct {
	mu   sync.RWMutex
	tips []*domain.TipRecord
}

func NewMemoryTipRepository() ports.TipRepository {
	return &MemoryTipRepository{}
}

func (r *MemoryTipRepository) Record(ctx context.Context, tip *domain.TipRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *tip
	r.tips = append(r.tips, &stored)
	return nil
}

// ExportAll returns every record in insertion order, for ledger snapshots.
func (r *MemoryTipRepository) ExportAll(ctx context.Context) ([]*domain.TipRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.TipRecord, 0, len(r.tips))
	for _, tip := range r.tips {
		copied := *tip
		out = append(out, &copied)
	}
	return out, nil
}

func (r *MemoryTipRepository) ListByChannel(ctx context.Context, recipient domain.ParticipantID, key domain.ChannelKey) ([]*domain.TipRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.TipRecord
	for _, tip := range r.tips {
		if tip.RecipientID == recipient && tip.ChannelKey == key {
			copied := *tip
			out = append(out, &copied)
		}
	}
	return out, nil
}
