package services

import (
	"context"
	"testing"

	"peerline/internal/core/domain"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
)

func withSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return recorder
}

func endedSpanNames(recorder *tracetest.SpanRecorder) map[string]bool {
	names := make(map[string]bool)
	for _, span := range recorder.Ended() {
		names[span.Name()] = true
	}
	return names
}

func TestCallService_LifecycleEmitsSpans(t *testing.T) {
	recorder := withSpanRecorder(t)

	hub := newFakeHub()
	svc := NewCallService(
		ControllerConfig{},
		&fakeIdentity{id: "alice"},
		&fakeChannel{hub: hub},
		&fakeCapture{},
		&fakeConnector{},
		&fakeNotifier{},
		nil,
		zaptest.NewLogger(t).Sugar(),
	)

	if _, err := svc.Start(context.Background(), "bob", domain.RoleCaller, false); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.End(context.Background()); err != nil {
		t.Fatalf("end: %v", err)
	}

	names := endedSpanNames(recorder)
	for _, want := range []string{"call.start", "call.end", "signal.offer"} {
		if !names[want] {
			t.Errorf("no %q span was recorded", want)
		}
	}
}

func TestTippingService_LedgerEmitsSpans(t *testing.T) {
	recorder := withSpanRecorder(t)

	svc, _ := newTestTippingService(t, &fakeTipRepo{}, TippingConfig{})
	ctx := senderContext("alice")

	if _, err := svc.SendTip(ctx, "bob", "alice|bob", 25); err != nil {
		t.Fatalf("send tip: %v", err)
	}
	if _, err := svc.GetTotal(ctx, "bob", "alice|bob"); err != nil {
		t.Fatalf("get total: %v", err)
	}

	names := endedSpanNames(recorder)
	for _, want := range []string{"ledger.record", "ledger.list"} {
		if !names[want] {
			t.Errorf("no %q span was recorded", want)
		}
	}
}
