package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"peerline/internal/core/domain"
	"peerline/pkg/backup"

	"go.uber.org/zap"
)

// LedgerExporter is the full-export capability of a tip repository.
// Repositories that cannot enumerate all records cannot back the scheduler.
type LedgerExporter interface {
	ExportAll(ctx context.Context) ([]*domain.TipRecord, error)
}

// Scheduler writes periodic snapshots of the tip ledger and prunes old ones.
// Tips are money; the ledger is the one piece of call-agent state worth
// surviving a process loss.
type Scheduler struct {
	snapshots     *backup.SnapshotService
	exporter      LedgerExporter
	interval      time.Duration
	retentionDays int
	logger        *zap.SugaredLogger
	stopChan      chan struct{}
}

// Config contains scheduler configuration.
type Config struct {
	Interval      time.Duration
	RetentionDays int
}

func NewScheduler(
	snapshots *backup.SnapshotService,
	exporter LedgerExporter,
	cfg Config,
	logger *zap.SugaredLogger,
) *Scheduler {
	return &Scheduler{
		snapshots:     snapshots,
		exporter:      exporter,
		interval:      cfg.Interval,
		retentionDays: cfg.RetentionDays,
		logger:        logger,
		stopChan:      make(chan struct{}),
	}
}

// Start runs the snapshot loop until Stop or context cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runSnapshot(ctx)

	for {
		select {
		case <-ticker.C:
			s.runSnapshot(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	close(s.stopChan)
}

func (s *Scheduler) runSnapshot(ctx context.Context) {
	s.logger.Info("starting scheduled ledger snapshot")

	snap, err := s.collectLedger(ctx)
	if err != nil {
		s.logger.Errorw("failed to export tip ledger", "error", err)
		return
	}

	name, err := s.snapshots.Write(ctx, snap)
	if err != nil {
		s.logger.Errorw("failed to write ledger snapshot", "error", err)
		return
	}

	s.logger.Infow("ledger snapshot written", "snapshot", name, "records", len(snap.Records))

	if err := s.cleanupOldSnapshots(ctx); err != nil {
		s.logger.Warnw("failed to prune old snapshots", "error", err)
	}
}

func (s *Scheduler) collectLedger(ctx context.Context) (*backup.Snapshot, error) {
	tips, err := s.exporter.ExportAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export tip records: %w", err)
	}

	snap := &backup.Snapshot{
		Records:  make([]json.RawMessage, 0, len(tips)),
		Metadata: make(map[string]interface{}),
	}

	for _, tip := range tips {
		data, err := json.Marshal(tip)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tip record %s: %w", tip.ID, err)
		}
		snap.Records = append(snap.Records, data)
	}

	snap.Metadata["record_count"] = len(tips)
	snap.Metadata["snapshot_type"] = "scheduled"

	return snap, nil
}

func (s *Scheduler) cleanupOldSnapshots(ctx context.Context) error {
	names, err := s.snapshots.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)

	for _, name := range names {
		ts, err := backup.ParseTimestamp(name)
		if err != nil {
			s.logger.Warnw("skipping snapshot with unparseable name", "snapshot", name, "error", err)
			continue
		}

		if ts.Before(cutoff) {
			if err := s.snapshots.Delete(ctx, name); err != nil {
				s.logger.Warnw("failed to delete old snapshot", "snapshot", name, "error", err)
				continue
			}
			s.logger.Infow("deleted old snapshot", "snapshot", name, "age", time.Since(ts))
		}
	}

	return nil
}
