package backup

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestSnapshotService_WriteAndRead(t *testing.T) {
	storage, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	svc := NewSnapshotService(storage, "1.0.0")

	snap := &Snapshot{
		Records: []json.RawMessage{
			json.RawMessage(`{"id":"t1","amount":25}`),
			json.RawMessage(`{"id":"t2","amount":30}`),
		},
		Metadata: map[string]interface{}{"record_count": 2},
	}

	name, err := svc.Write(context.Background(), snap)
	if err != nil {
		t.Fatalf("failed to write snapshot: %v", err)
	}

	loaded, err := svc.Read(context.Background(), name)
	if err != nil {
		t.Fatalf("failed to read snapshot: %v", err)
	}

	if loaded.Version != "1.0.0" {
		t.Errorf("expected version '1.0.0', got '%s'", loaded.Version)
	}
	if len(loaded.Records) != 2 {
		t.Errorf("expected 2 records, got %d", len(loaded.Records))
	}
	if loaded.Timestamp.IsZero() {
		t.Error("expected non-zero timestamp")
	}
}

func TestSnapshotService_ListAndDelete(t *testing.T) {
	storage, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	svc := NewSnapshotService(storage, "1.0.0")

	name, err := svc.Write(context.Background(), &Snapshot{})
	if err != nil {
		t.Fatalf("failed to write snapshot: %v", err)
	}

	names, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("failed to list snapshots: %v", err)
	}
	if len(names) != 1 || names[0] != name {
		t.Errorf("expected [%s], got %v", name, names)
	}

	if err := svc.Delete(context.Background(), name); err != nil {
		t.Fatalf("failed to delete snapshot: %v", err)
	}

	names, err = svc.List(context.Background())
	if err != nil {
		t.Fatalf("failed to list snapshots after delete: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("expected no snapshots after delete, got %v", names)
	}
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("ledger-20260115-103000.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	if !ts.Equal(want) {
		t.Errorf("expected %v, got %v", want, ts)
	}

	if _, err := ParseTimestamp("ledger-bad"); err == nil {
		t.Error("expected error for malformed name")
	}

	if _, err := ParseTimestamp("ledger-2026xx15-103000.json"); err == nil {
		t.Error("expected error for unparseable timestamp")
	}
}
