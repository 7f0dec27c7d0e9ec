package saved

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ferrovia/internal/domain"
)

// KeyPrefix namespaces saved lists; the owner id is appended.
const KeyPrefix = "saved:v1:"

// MaxOccurrences is how many upcoming trains are kept per saved timetable.
const MaxOccurrences = 3

var ErrInvalidOwner = errors.New("invalid owner")

// KV is the persistence behind saved timetables. Get returns nil, nil for a
// missing key. A zero ttl means no expiry.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Entry is one saved timetable. The stored value for an owner is a JSON
// array of entries in insertion order.
type Entry struct {
	ID          string              `json:"id"`
	StationID   int64               `json:"station_id"`
	StationName string              `json:"station_name"`
	Direction   domain.Direction    `json:"direction"`
	SavedAt     time.Time           `json:"saved_at"`
	Occurrences []domain.Occurrence `json:"occurrences"`
}

type Manager struct {
	kv     KV
	mu     sync.Mutex
	now    func() time.Time
	logger *slog.Logger
}

func NewManager(kv KV, logger *slog.Logger) *Manager {
	return &Manager{
		kv:     kv,
		now:    time.Now,
		logger: logger.With("component", "saved_timetables"),
	}
}

func key(owner string) (string, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" || len(owner) > 128 || strings.ContainsAny(owner, "*?[]: ") {
		return "", ErrInvalidOwner
	}
	return KeyPrefix + owner, nil
}

// List returns the owner's saved timetables. Undecodable data is treated as
// an empty list.
func (m *Manager) List(ctx context.Context, owner string) ([]Entry, error) {
	k, err := key(owner)
	if err != nil {
		return nil, err
	}
	return m.load(ctx, k)
}

func (m *Manager) load(ctx context.Context, k string) ([]Entry, error) {
	data, err := m.kv.Get(ctx, k)
	if err != nil {
		return nil, fmt.Errorf("load saved timetables: %w", err)
	}
	if data == nil {
		return []Entry{}, nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		m.logger.Warn("failed to decode saved timetables", "key", k, "error", err)
		return []Entry{}, nil
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

func (m *Manager) store(ctx context.Context, k string, entries []Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode saved timetables: %w", err)
	}
	if err := m.kv.Set(ctx, k, data, 0); err != nil {
		return fmt.Errorf("persist saved timetables: %w", err)
	}
	return nil
}

// Add appends a timetable for the station, keeping the first MaxOccurrences
// occurrences.
func (m *Manager) Add(ctx context.Context, owner string, stationID int64, stationName string, dir domain.Direction, occs []domain.Occurrence) (*Entry, error) {
	k, err := key(owner)
	if err != nil {
		return nil, err
	}

	if len(occs) > MaxOccurrences {
		occs = occs[:MaxOccurrences]
	}
	entry := Entry{
		ID:          uuid.NewString(),
		StationID:   stationID,
		StationName: stationName,
		Direction:   dir,
		SavedAt:     m.now().UTC(),
		Occurrences: append([]domain.Occurrence{}, occs...),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := m.load(ctx, k)
	if err != nil {
		return nil, err
	}
	entries = append(entries, entry)
	if err := m.store(ctx, k, entries); err != nil {
		return nil, err
	}

	m.logger.Debug("timetable saved", "owner", owner, "id", entry.ID, "station_id", stationID, "total", len(entries))
	return &entry, nil
}

// Remove deletes one entry; it returns domain.ErrNotFound when id is unknown.
func (m *Manager) Remove(ctx context.Context, owner, id string) error {
	k, err := key(owner)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := m.load(ctx, k)
	if err != nil {
		return err
	}

	kept := entries[:0]
	for _, e := range entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return domain.ErrNotFound
	}
	if len(kept) == 0 {
		return m.kv.Delete(ctx, k)
	}
	return m.store(ctx, k, kept)
}

func (m *Manager) Clear(ctx context.Context, owner string) error {
	k, err := key(owner)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.kv.Delete(ctx, k); err != nil {
		return fmt.Errorf("clear saved timetables: %w", err)
	}
	return nil
}

// MemoryKV is a process-local KV.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (kv *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	v, ok := kv.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (kv *MemoryKV) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.data[key] = append([]byte(nil), value...)
	return nil
}

func (kv *MemoryKV) Delete(_ context.Context, key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	delete(kv.data, key)
	return nil
}
