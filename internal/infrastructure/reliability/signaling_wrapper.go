package reliability

import (
	"context"

	"peerline/internal/core/domain"
	"peerline/internal/core/ports"
	"peerline/pkg/circuitbreaker"
	"peerline/pkg/retry"

	"go.uber.org/zap"
)

// SignalingWrapper wraps a SignalingChannel with retry logic on Open and a
// circuit breaker on Publish. Delivery stays best-effort: when the breaker
// is open, publishes fail fast and the loss is logged, never retried. Only
// channel setup is worth retrying.
type SignalingWrapper struct {
	channel ports.SignalingChannel
	logger  *zap.SugaredLogger

	retryConfig    retry.Config
	circuitBreaker *circuitbreaker.CircuitBreaker
}

func NewSignalingWrapper(
	channel ports.SignalingChannel,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *SignalingWrapper {
	wrapper := &SignalingWrapper{
		channel:        channel,
		logger:         logger,
		retryConfig:    retryConfig,
		circuitBreaker: circuitbreaker.New(cbConfig),
	}

	wrapper.circuitBreaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("signaling circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})

	return wrapper
}

// Open joins the signaling topic, retrying transient failures. A channel
// that cannot be opened fails the call before any media is acquired, so
// a few attempts with backoff are worth the wait.
func (w *SignalingWrapper) Open(ctx context.Context, key domain.ChannelKey, self domain.ParticipantID) (ports.Subscription, error) {
	if !w.retryConfig.Enabled {
		return w.channel.Open(ctx, key, self)
	}

	return retry.RetryWithResult(ctx, w.retryConfig, func() (ports.Subscription, error) {
		sub, err := w.channel.Open(ctx, key, self)
		if err != nil {
			w.logger.Warnw("signaling open attempt failed",
				"channel_key", key,
				"error", err,
			)
		}
		return sub, err
	})
}

// Publish sends one message through the breaker. Failures are reported to
// the caller but never retried; a renegotiation message delivered twice is
// worse than one lost.
func (w *SignalingWrapper) Publish(ctx context.Context, key domain.ChannelKey, msg domain.SignalMessage) error {
	err := w.circuitBreaker.Execute(ctx, func() error {
		return w.channel.Publish(ctx, key, msg)
	})
	if err != nil {
		w.logger.Warnw("signaling publish dropped",
			"channel_key", key,
			"kind", msg.Kind,
			"error", err,
		)
	}
	return err
}

// GetCircuitBreakerStats returns circuit breaker statistics.
func (w *SignalingWrapper) GetCircuitBreakerStats() circuitbreaker.Stats {
	return w.circuitBreaker.GetStats()
}
