package services

import (
	"context"
	"fmt"
	"time"

	"peerline/internal/core/domain"
	"peerline/internal/core/ports"
	"peerline/pkg/cache"
	"peerline/pkg/circuitbreaker"
	"peerline/pkg/tracing"
	"peerline/pkg/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TippingConfig holds tipping tunables.
type TippingConfig struct {
	// MaxAmount caps a single tip, in minor currency units. Zero means no cap.
	MaxAmount int64
	// TotalCacheTTL bounds staleness of running totals. The spec accepts
	// "until next refetch" staleness, so totals are cached rather than
	// recomputed on every read.
	TotalCacheTTL time.Duration
}

// tippingService persists tips through the ledger repository and reports
// running totals per (recipient, channel) pair. It is a sidecar: failures
// here never reach the call session.
type tippingService struct {
	cfg      TippingConfig
	repo     ports.TipRepository
	breaker  *circuitbreaker.CircuitBreaker
	totals   *cache.Cache
	notifier ports.Notifier
	observer ports.CallObserver
	logger   *zap.SugaredLogger
}

func NewTippingService(
	cfg TippingConfig,
	repo ports.TipRepository,
	notifier ports.Notifier,
	observer ports.CallObserver,
	logger *zap.SugaredLogger,
) ports.TippingService {
	ttl := cfg.TotalCacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &tippingService{
		cfg:      cfg,
		repo:     repo,
		breaker:  circuitbreaker.New(circuitbreaker.DefaultConfig()),
		totals:   cache.NewCache(ttl),
		notifier: notifier,
		observer: observer,
		logger:   logger,
	}
}

func (s *tippingService) SendTip(ctx context.Context, recipient domain.ParticipantID, key domain.ChannelKey, amount int64) (*domain.TipRecord, error) {
	sender, err := senderFromContext(ctx)
	if err != nil {
		return nil, err
	}

	if err := validation.ValidateTipAmount(amount, s.cfg.MaxAmount); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidAmount, err)
	}
	if err := validation.ValidateParticipantID(string(recipient)); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}

	tip := &domain.TipRecord{
		ID:          domain.TipID(uuid.NewString()),
		SenderID:    sender,
		RecipientID: recipient,
		Amount:      amount,
		ChannelKey:  key,
		CreatedAt:   time.Now(),
	}

	ctx, span := tracing.TraceLedgerOperation(ctx, "record")
	defer span.End()

	err = s.breaker.Execute(ctx, func() error {
		return s.repo.Record(ctx, tip)
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		s.logger.Warnw("tip persistence failed",
			"recipient", recipient,
			"channel_key", key,
			"amount", amount,
			"error", err,
		)
		if s.notifier != nil {
			s.notifier.Notify(ports.NotifyError, "Tip failed", "Your tip could not be sent. Please try again.")
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrTransferFailed, err)
	}

	s.totals.Delete(totalCacheKey(recipient, key))
	if s.observer != nil {
		s.observer.RecordTip(amount)
	}
	if s.notifier != nil {
		s.notifier.Notify(ports.NotifyInfo, "Tip sent", "Your tip was delivered.")
	}
	return tip, nil
}

// GetTotal recomputes the running total by summing all persisted records for
// the pair. Results are cached briefly; staleness until the next refetch is
// acceptable.
func (s *tippingService) GetTotal(ctx context.Context, recipient domain.ParticipantID, key domain.ChannelKey) (int64, error) {
	cacheKey := totalCacheKey(recipient, key)
	if cached, ok := s.totals.Get(cacheKey); ok {
		if total, ok := cached.(int64); ok {
			return total, nil
		}
	}

	ctx, span := tracing.TraceLedgerOperation(ctx, "list")
	defer span.End()

	records, err := s.repo.ListByChannel(ctx, recipient, key)
	if err != nil {
		tracing.RecordError(ctx, err)
		return 0, fmt.Errorf("failed to list tip records: %w", err)
	}

	var total int64
	for _, tip := range records {
		total += tip.Amount
	}

	s.totals.Set(cacheKey, total)
	return total, nil
}

func totalCacheKey(recipient domain.ParticipantID, key domain.ChannelKey) string {
	return string(recipient) + "#" + string(key)
}

// senderFromContext reads the authenticated participant placed in the
// context by the auth middleware.
func senderFromContext(ctx context.Context) (domain.ParticipantID, error) {
	if v := ctx.Value("user_id"); v != nil {
		if id, ok := v.(domain.ParticipantID); ok && id != "" {
			return id, nil
		}
		if id, ok := v.(string); ok && id != "" {
			return domain.ParticipantID(id), nil
		}
	}
	return "", domain.ErrAuthRequired
}
