package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"peerline/internal/core/domain"
	"peerline/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisTipRepository stores the tip ledger as one Redis list per
// (recipient, channel) pair. Records append with RPUSH, so list order is
// insertion order and totals come from a full LRANGE scan.
type RedisTipRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisTipRepository(client *redis.Client) ports.TipRepository {
	return &RedisTipRepository{
		client: client,
		prefix: "peerline:tips:",
	}
}

func (r *RedisTipRepository) ledgerKey(recipient domain.ParticipantID, key domain.ChannelKey) string {
	return fmt.Sprintf("%s%s:%s", r.prefix, recipient, key)
}

func (r *RedisTipRepository) Record(ctx context.Context, tip *domain.TipRecord) error {
	data, err := json.Marshal(tip)
	if err != nil {
		return fmt.Errorf("failed to marshal tip record: %w", err)
	}

	key := r.ledgerKey(tip.RecipientID, tip.ChannelKey)
	if err := r.client.RPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("failed to append tip record: %w", err)
	}
	return nil
}

// ExportAll walks every ledger list under the prefix, for ledger snapshots.
func (r *RedisTipRepository) ExportAll(ctx context.Context) ([]*domain.TipRecord, error) {
	var tips []*domain.TipRecord

	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		entries, err := r.client.LRange(ctx, iter.Val(), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read tip ledger %s: %w", iter.Val(), err)
		}
		for _, entry := range entries {
			var tip domain.TipRecord
			if err := json.Unmarshal([]byte(entry), &tip); err != nil {
				return nil, fmt.Errorf("failed to unmarshal tip record: %w", err)
			}
			tips = append(tips, &tip)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan tip ledgers: %w", err)
	}
	return tips, nil
}

func (r *RedisTipRepository) ListByChannel(ctx context.Context, recipient domain.ParticipantID, key domain.ChannelKey) ([]*domain.TipRecord, error) {
	entries, err := r.client.LRange(ctx, r.ledgerKey(recipient, key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read tip ledger: %w", err)
	}

	tips := make([]*domain.TipRecord, 0, len(entries))
	for _, entry := range entries {
		var tip domain.TipRecord
		if err := json.Unmarshal([]byte(entry), &tip); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tip record: %w", err)
		}
		tips = append(tips, &tip)
	}
	return tips, nil
}
