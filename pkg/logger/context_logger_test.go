package logger

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type participantID string

func newObservedContextLogger() (*ContextLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewContextLogger(zap.New(core)), logs
}

func TestContextLogger_LogRequestCarriesIdentity(t *testing.T) {
	cl, logs := newObservedContextLogger()

	// The auth middleware stores a typed id, not a plain string.
	ctx := context.WithValue(context.Background(), "user_id", participantID("alice"))
	ctx = context.WithValue(ctx, "request_id", "req-123")

	cl.LogRequest(ctx, "POST", "/api/v1/call/start", 200, 12)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["user_id"] != "alice" {
		t.Errorf("user_id = %v, want alice", fields["user_id"])
	}
	if fields["request_id"] != "req-123" {
		t.Errorf("request_id = %v, want req-123", fields["request_id"])
	}
	if fields["method"] != "POST" {
		t.Errorf("method = %v, want POST", fields["method"])
	}
	if fields["status_code"] != int64(200) {
		t.Errorf("status_code = %v, want 200", fields["status_code"])
	}
}

func TestContextLogger_EmptyContextAddsNoIdentity(t *testing.T) {
	cl, logs := newObservedContextLogger()

	cl.LogInfo(context.Background(), "plain message")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	for _, key := range []string{"trace_id", "user_id", "request_id"} {
		if _, ok := fields[key]; ok {
			t.Errorf("unexpected field %q on an empty context", key)
		}
	}
}

func TestContextLogger_LogErrorIncludesError(t *testing.T) {
	cl, logs := newObservedContextLogger()

	cl.LogError(context.Background(), errors.New("boom"), "operation failed")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].Message != "operation failed" {
		t.Errorf("message = %q, want %q", entries[0].Message, "operation failed")
	}
	if entries[0].ContextMap()["error"] != "boom" {
		t.Errorf("error field = %v, want boom", entries[0].ContextMap()["error"])
	}
}
