package backup

import (
	"context"
	"testing"
	"time"

	"peerline/internal/core/domain"
	"peerline/internal/infrastructure/repositories/memory"
	"peerline/pkg/backup"

	"go.uber.org/zap/zaptest"
)

func newLedgerFixture(t *testing.T) (*backup.SnapshotService, *memory.MemoryTipRepository) {
	t.Helper()

	storage, err := backup.NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	repo := memory.NewMemoryTipRepository().(*memory.MemoryTipRepository)
	return backup.NewSnapshotService(storage, "1.0.0"), repo
}

func seedTips(t *testing.T, repo *memory.MemoryTipRepository, ids ...string) {
	t.Helper()
	for i, id := range ids {
		err := repo.Record(context.Background(), &domain.TipRecord{
			ID:          domain.TipID(id),
			SenderID:    "alice",
			RecipientID: "bob",
			Amount:      int64(10 * (i + 1)),
			ChannelKey:  "alice|bob",
			CreatedAt:   time.Now(),
		})
		if err != nil {
			t.Fatalf("failed to seed tip %s: %v", id, err)
		}
	}
}

func TestScheduler_SnapshotRoundTrip(t *testing.T) {
	snapshots, repo := newLedgerFixture(t)
	seedTips(t, repo, "t1", "t2", "t3")

	logger := zaptest.NewLogger(t).Sugar()
	sched := NewScheduler(snapshots, repo, Config{Interval: time.Hour, RetentionDays: 7}, logger)

	sched.runSnapshot(context.Background())

	names, err := snapshots.List(context.Background())
	if err != nil {
		t.Fatalf("failed to list snapshots: %v", err)
	}
	if len(names) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(names))
	}

	snap, err := snapshots.Read(context.Background(), names[0])
	if err != nil {
		t.Fatalf("failed to read snapshot: %v", err)
	}
	if len(snap.Records) != 3 {
		t.Errorf("expected 3 records in snapshot, got %d", len(snap.Records))
	}
}

func TestRestoreService_SkipsExistingRecords(t *testing.T) {
	snapshots, repo := newLedgerFixture(t)
	seedTips(t, repo, "t1", "t2")

	logger := zaptest.NewLogger(t).Sugar()
	sched := NewScheduler(snapshots, repo, Config{Interval: time.Hour, RetentionDays: 7}, logger)
	sched.runSnapshot(context.Background())

	names, err := snapshots.List(context.Background())
	if err != nil || len(names) != 1 {
		t.Fatalf("expected 1 snapshot, got %v (err %v)", names, err)
	}

	// Restore into a repository that already holds one of the records.
	target := memory.NewMemoryTipRepository().(*memory.MemoryTipRepository)
	seedTips(t, target, "t1")

	restore := NewRestoreService(snapshots, target, target, logger)
	if err := restore.RestoreFromSnapshot(context.Background(), names[0], DefaultRestoreOptions()); err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	all, err := target.ExportAll(context.Background())
	if err != nil {
		t.Fatalf("failed to export: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 records after restore, got %d", len(all))
	}
}

func TestRestoreService_FindSnapshotByTime(t *testing.T) {
	snapshots, repo := newLedgerFixture(t)
	logger := zaptest.NewLogger(t).Sugar()

	name, err := snapshots.Write(context.Background(), &backup.Snapshot{})
	if err != nil {
		t.Fatalf("failed to write snapshot: %v", err)
	}

	restore := NewRestoreService(snapshots, repo, repo, logger)

	found, err := restore.FindSnapshotByTime(context.Background(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found != name {
		t.Errorf("expected %s, got %s", name, found)
	}

	if _, err := restore.FindSnapshotByTime(context.Background(), time.Now().Add(-24*time.Hour)); err == nil {
		t.Error("expected error when no snapshot is old enough")
	}
}
