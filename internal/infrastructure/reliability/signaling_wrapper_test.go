package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"peerline/internal/core/domain"
	"peerline/internal/core/ports"
	"peerline/pkg/circuitbreaker"
	"peerline/pkg/retry"

	"go.uber.org/zap/zaptest"
)

type flakyChannel struct {
	openFailures int
	openCalls    int
	publishErr   error
	published    int
}

type nopSubscription struct{}

func (nopSubscription) OnMessage(kind domain.MessageKind, handler func(domain.SignalMessage)) {}
func (nopSubscription) Close() error                                                          { return nil }

func (c *flakyChannel) Open(ctx context.Context, key domain.ChannelKey, self domain.ParticipantID) (ports.Subscription, error) {
	c.openCalls++
	if c.openCalls <= c.openFailures {
		return nil, errors.New("transient open failure")
	}
	return nopSubscription{}, nil
}

func (c *flakyChannel) Publish(ctx context.Context, key domain.ChannelKey, msg domain.SignalMessage) error {
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published++
	return nil
}

func fastRetryConfig() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	cfg.Jitter = false
	return cfg
}

func TestSignalingWrapper_OpenRetriesTransientFailures(t *testing.T) {
	channel := &flakyChannel{openFailures: 2}
	wrapper := NewSignalingWrapper(channel, fastRetryConfig(), circuitbreaker.DefaultConfig(), zaptest.NewLogger(t).Sugar())

	sub, err := wrapper.Open(context.Background(), "alice|bob", "alice")
	if err != nil {
		t.Fatalf("expected open to succeed after retries, got %v", err)
	}
	if sub == nil {
		t.Fatal("expected non-nil subscription")
	}
	if channel.openCalls != 3 {
		t.Errorf("expected 3 open attempts, got %d", channel.openCalls)
	}
}

func TestSignalingWrapper_OpenGivesUpEventually(t *testing.T) {
	channel := &flakyChannel{openFailures: 100}
	wrapper := NewSignalingWrapper(channel, fastRetryConfig(), circuitbreaker.DefaultConfig(), zaptest.NewLogger(t).Sugar())

	if _, err := wrapper.Open(context.Background(), "alice|bob", "alice"); err == nil {
		t.Fatal("expected open to fail when every attempt fails")
	}
}

func TestSignalingWrapper_PublishNeverRetries(t *testing.T) {
	channel := &flakyChannel{publishErr: errors.New("send failed")}
	wrapper := NewSignalingWrapper(channel, fastRetryConfig(), circuitbreaker.DefaultConfig(), zaptest.NewLogger(t).Sugar())

	msg := domain.SignalMessage{Kind: domain.MessageOffer, Sender: "alice"}
	if err := wrapper.Publish(context.Background(), "alice|bob", msg); err == nil {
		t.Fatal("expected publish error to surface")
	}
	if channel.published != 0 {
		t.Errorf("expected no successful publishes, got %d", channel.published)
	}

	channel.publishErr = nil
	if err := wrapper.Publish(context.Background(), "alice|bob", msg); err != nil {
		t.Fatalf("expected publish to succeed, got %v", err)
	}
	if channel.published != 1 {
		t.Errorf("expected exactly 1 publish, got %d", channel.published)
	}
}
