package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"trader_go/internal/domain"
)

// RiskCounters is the serialized form of one symbol's risk gate state.
// Amounts are decimal strings.
type RiskCounters struct {
	Day            string `json:"day"` // UTC yyyy-mm-dd the counters belong to
	RealizedLoss   string `json:"realized_loss"`
	LastLossUnixMs int64  `json:"last_loss_unix_ms,omitempty"`
}

// EngineSnapshot is the point-in-time state published for external
// readers (dashboard, status tooling). The engine itself never depends
// on it: positions rebuild from trades, risk counters reset with the
// process.
type EngineSnapshot struct {
	TsUnixMs   int64                      `json:"ts_unix_ms"`
	Mode       string                     `json:"mode"`
	Positions  map[string]domain.Position `json:"positions"`
	Risk       map[string]RiskCounters    `json:"risk"`
	LastPrices map[string]string          `json:"last_prices"` // decimal strings
}

// SnapshotWriter maintains one JSON state file, replaced atomically so a
// concurrent reader never sees a torn write.
type SnapshotWriter struct {
	path string
}

func NewSnapshotWriter(path string) *SnapshotWriter {
	return &SnapshotWriter{path: path}
}

// Write marshals the snapshot to a temp file next to the target and
// renames it into place.
func (w *SnapshotWriter) Write(snap *EngineSnapshot) error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create snapshot temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close snapshot temp file: %w", err)
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	slog.Debug("State snapshot written",
		slog.String("path", w.path),
		slog.Int("positions", len(snap.Positions)))
	return nil
}

// Load reads the current snapshot. Returns nil without error when none
// has been written yet.
func (w *SnapshotWriter) Load() (*EngineSnapshot, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var snap EngineSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}
