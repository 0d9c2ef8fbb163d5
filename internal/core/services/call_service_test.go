package services

import (
	"context"
	"errors"
	"testing"

	"peerline/internal/core/domain"
	"peerline/internal/core/ports"

	"go.uber.org/zap/zaptest"
)

func newTestCallService(t *testing.T, identity ports.Identity) (ports.CallService, *fakeNotifier) {
	t.Helper()
	hub := newFakeHub()
	notifier := &fakeNotifier{}
	svc := NewCallService(
		ControllerConfig{},
		identity,
		&fakeChannel{hub: hub},
		&fakeCapture{},
		&fakeConnector{},
		notifier,
		nil,
		zaptest.NewLogger(t).Sugar(),
	)
	return svc, notifier
}

func TestCallService_RequiresSignIn(t *testing.T) {
	svc, notifier := newTestCallService(t, &fakeIdentity{err: domain.ErrAuthRequired})

	_, err := svc.Start(context.Background(), "bob", domain.RoleCaller, false)
	if !errors.Is(err, domain.ErrAuthRequired) {
		t.Fatalf("start error = %v, want ErrAuthRequired", err)
	}
	if got := notifier.countKind(ports.NotifyError); got != 1 {
		t.Errorf("error notifications = %d, want 1", got)
	}
}

func TestCallService_RejectsInvalidRemote(t *testing.T) {
	svc, _ := newTestCallService(t, &fakeIdentity{id: "alice"})

	if _, err := svc.Start(context.Background(), "", domain.RoleCaller, false); err == nil {
		t.Error("expected error for empty remote participant")
	}
	if _, err := svc.Start(context.Background(), "bob", domain.CallRole("spectator"), false); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestCallService_SingleActiveSession(t *testing.T) {
	svc, _ := newTestCallService(t, &fakeIdentity{id: "alice"})
	ctx := context.Background()

	session, err := svc.Start(ctx, "bob", domain.RoleCaller, false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if session.ChannelKey != domain.DeriveChannelKey("alice", "bob") {
		t.Errorf("channel key = %s", session.ChannelKey)
	}

	if _, err := svc.Start(ctx, "carol", domain.RoleCaller, false); !errors.Is(err, domain.ErrCallActive) {
		t.Errorf("second start error = %v, want ErrCallActive", err)
	}

	if err := svc.End(ctx); err != nil {
		t.Fatalf("end: %v", err)
	}

	// A new session may start once the previous one is gone.
	if _, err := svc.Start(ctx, "carol", domain.RoleCaller, false); err != nil {
		t.Errorf("start after end: %v", err)
	}
}

func TestCallService_NoActiveCall(t *testing.T) {
	svc, _ := newTestCallService(t, &fakeIdentity{id: "alice"})
	ctx := context.Background()

	if err := svc.End(ctx); !errors.Is(err, domain.ErrNoActiveCall) {
		t.Errorf("end error = %v, want ErrNoActiveCall", err)
	}
	if _, err := svc.ToggleMute(ctx); !errors.Is(err, domain.ErrNoActiveCall) {
		t.Errorf("toggle mute error = %v, want ErrNoActiveCall", err)
	}
	if _, err := svc.ToggleVideo(ctx); !errors.Is(err, domain.ErrNoActiveCall) {
		t.Errorf("toggle video error = %v, want ErrNoActiveCall", err)
	}
	if _, err := svc.Active(ctx); !errors.Is(err, domain.ErrNoActiveCall) {
		t.Errorf("active error = %v, want ErrNoActiveCall", err)
	}
}

func TestCallService_FailedStartClearsActive(t *testing.T) {
	hub := newFakeHub()
	capture := &fakeCapture{failWith: domain.ErrDeviceUnavailable}
	svc := NewCallService(
		ControllerConfig{},
		&fakeIdentity{id: "alice"},
		&fakeChannel{hub: hub},
		capture,
		&fakeConnector{},
		&fakeNotifier{},
		nil,
		zaptest.NewLogger(t).Sugar(),
	)
	ctx := context.Background()

	if _, err := svc.Start(ctx, "bob", domain.RoleCaller, false); !errors.Is(err, domain.ErrDeviceUnavailable) {
		t.Fatalf("start error = %v, want ErrDeviceUnavailable", err)
	}

	// The failed attempt must not block a retry.
	capture.failWith = nil
	if _, err := svc.Start(ctx, "bob", domain.RoleCaller, false); err != nil {
		t.Errorf("retry after failure: %v", err)
	}
}
