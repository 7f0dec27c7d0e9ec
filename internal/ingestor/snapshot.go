package ingestor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ferrovia/internal/domain"
	"ferrovia/pkg/dataset"
)

// Source produces a full dataset together with a fingerprint of its content.
type Source interface {
	Load(ctx context.Context) (*domain.Dataset, string, error)
}

// Loader receives every new dataset.
type Loader interface {
	Load(ds *domain.Dataset)
}

// Dumper is implemented by the SQL store.
type Dumper interface {
	Dump(ctx context.Context) (*domain.Dataset, error)
}

// DumpSource exposes a database dump as a Source. The fingerprint is computed
// over the JSON encoding of the dump.
type DumpSource struct {
	DB Dumper
}

func (s DumpSource) Load(ctx context.Context) (*domain.Dataset, string, error) {
	ds, err := s.DB.Dump(ctx)
	if err != nil {
		return nil, "", err
	}
	data, err := json.Marshal(ds)
	if err != nil {
		return nil, "", fmt.Errorf("encode dump: %w", err)
	}
	return ds, dataset.Fingerprint(data), nil
}

// SnapshotIngestor periodically reloads the schedule dataset into memory.
type SnapshotIngestor struct {
	source         Source
	store          Loader
	updateInterval time.Duration
	logger         *slog.Logger
	onUpdate       func(context.Context)

	fingerprint string
	lastUpdate  time.Time

	ready   bool
	readyMu sync.RWMutex
}

func NewSnapshotIngestor(source Source, store Loader, updateInterval time.Duration, logger *slog.Logger) *SnapshotIngestor {
	return &SnapshotIngestor{
		source:         source,
		store:          store,
		updateInterval: updateInterval,
		logger:         logger.With("component", "snapshot_ingestor"),
	}
}

// Start loads the dataset once, then again on every tick until ctx is done.
// A non-positive interval disables reloading.
func (i *SnapshotIngestor) Start(ctx context.Context) {
	i.Update(ctx)

	if i.updateInterval <= 0 {
		return
	}

	ticker := time.NewTicker(i.updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			i.Update(ctx)
		}
	}
}

// Update loads the dataset and swaps it in when its fingerprint changed.
// It reports whether the store was updated.
func (i *SnapshotIngestor) Update(ctx context.Context) bool {
	i.logger.Info("starting dataset update")
	start := time.Now()

	ds, fingerprint, err := i.source.Load(ctx)
	if err != nil {
		i.logger.Error("failed to load dataset", "error", err)
		return false
	}
	loadDuration := time.Since(start)

	if fingerprint != "" && fingerprint == i.fingerprint {
		i.logger.Info("dataset unchanged", "sha256", fingerprint, "duration", loadDuration)
		return false
	}

	i.store.Load(ds)
	i.fingerprint = fingerprint
	i.lastUpdate = time.Now()

	if !i.IsReady() {
		i.setReady(true)
	}

	if i.onUpdate != nil {
		i.onUpdate(ctx)
	}

	stats := ds.Stats()
	i.logger.Info("dataset update completed",
		"load_duration", loadDuration,
		"total_duration", time.Since(start),
		"sha256", fingerprint,
		"stations", stats.Stations,
		"runs", stats.Runs,
		"stops", stats.Stops,
		"variants", stats.Variants,
	)
	return true
}

func (i *SnapshotIngestor) Fingerprint() string {
	return i.fingerprint
}

func (i *SnapshotIngestor) IsReady() bool {
	i.readyMu.RLock()
	defer i.readyMu.RUnlock()
	return i.ready
}

func (i *SnapshotIngestor) setReady(ready bool) {
	i.readyMu.Lock()
	defer i.readyMu.Unlock()
	i.ready = ready
}

func (i *SnapshotIngestor) SetOnUpdate(fn func(context.Context)) {
	i.onUpdate = fn
}
