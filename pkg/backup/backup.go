package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Snapshot is one serialized export of the tip ledger. Records are kept as
// raw JSON so this package stays independent of the domain types.
type Snapshot struct {
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Records   []json.RawMessage      `json:"records"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Storage defines where snapshots live.
type Storage interface {
	Save(ctx context.Context, name string, data io.Reader) error
	Load(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}

const namePrefix = "ledger-"
const nameTimeLayout = "20060102-150405"

// SnapshotService writes and reads ledger snapshots.
type SnapshotService struct {
	storage Storage
	version string
}

func NewSnapshotService(storage Storage, version string) *SnapshotService {
	return &SnapshotService{
		storage: storage,
		version: version,
	}
}

// Write persists a snapshot and returns its storage name.
func (s *SnapshotService) Write(ctx context.Context, snap *Snapshot) (string, error) {
	snap.Version = s.version
	snap.Timestamp = time.Now()

	jsonData, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	name := fmt.Sprintf("%s%s.json", namePrefix, snap.Timestamp.UTC().Format(nameTimeLayout))

	if err := s.storage.Save(ctx, name, bytes.NewReader(jsonData)); err != nil {
		return "", fmt.Errorf("failed to save snapshot: %w", err)
	}

	return name, nil
}

// Read loads a snapshot by name.
func (s *SnapshotService) Read(ctx context.Context, name string) (*Snapshot, error) {
	reader, err := s.storage.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot data: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// List returns all snapshot names.
func (s *SnapshotService) List(ctx context.Context) ([]string, error) {
	return s.storage.List(ctx, namePrefix)
}

// Delete removes a snapshot.
func (s *SnapshotService) Delete(ctx context.Context, name string) error {
	return s.storage.Delete(ctx, name)
}

// ParseTimestamp extracts the creation time embedded in a snapshot name.
func ParseTimestamp(name string) (time.Time, error) {
	if len(name) < len(namePrefix)+len(nameTimeLayout) {
		return time.Time{}, fmt.Errorf("snapshot name too short: %s", name)
	}
	stamp := name[len(namePrefix) : len(namePrefix)+len(nameTimeLayout)]
	ts, err := time.Parse(nameTimeLayout, stamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse snapshot timestamp: %w", err)
	}
	return ts, nil
}
