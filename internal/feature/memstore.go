package feature

import (
	"context"
	"sync"
	"time"

	"github.com/sawpanic/autotrader/internal/model"
)

// MemStore is an in-memory Store, used by tests and by the CLI scan when no
// database is configured; it keeps nothing across process restarts.
type MemStore struct {
	mu        sync.Mutex
	features  map[string]map[string][]model.Feature // token -> name -> ascending by timestamp
	snapshots map[string][]model.GemScoreSnapshot    // token -> ascending by timestamp
}

// NewMemStore constructs an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		features:  make(map[string]map[string][]model.Feature),
		snapshots: make(map[string][]model.GemScoreSnapshot),
	}
}

func (m *MemStore) WriteFeature(ctx context.Context, f model.Feature) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byName, ok := m.features[f.Token]
	if !ok {
		byName = make(map[string][]model.Feature)
		m.features[f.Token] = byName
	}
	series := byName[f.Name]

	// preserve write order by (token, name, timestamp): insert in sorted
	// position rather than assuming callers write in timestamp order.
	i := len(series)
	for i > 0 && series[i-1].Timestamp.After(f.Timestamp) {
		i--
	}
	series = append(series, model.Feature{})
	copy(series[i+1:], series[i:])
	series[i] = f
	byName[f.Name] = series
	return nil
}

func (m *MemStore) ReadLatest(ctx context.Context, token, name string) (*model.Feature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	series := m.features[token][name]
	if len(series) == 0 {
		return nil, ErrNotFound
	}
	f := series[len(series)-1]
	return &f, nil
}

func (m *MemStore) ReadHistory(ctx context.Context, token, name string, limit int) ([]model.Feature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	series := m.features[token][name]
	out := make([]model.Feature, 0, minInt(limit, len(series)))
	for i := len(series) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, series[i])
	}
	return out, nil
}

func (m *MemStore) WriteSnapshot(ctx context.Context, s model.GemScoreSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	series := m.snapshots[s.Token]
	i := len(series)
	for i > 0 && series[i-1].Timestamp.After(s.Timestamp) {
		i--
	}
	series = append(series, model.GemScoreSnapshot{})
	copy(series[i+1:], series[i:])
	series[i] = s
	m.snapshots[s.Token] = series
	return nil
}

func (m *MemStore) ReadSnapshotHistory(ctx context.Context, token string, limit int) ([]model.GemScoreSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	series := m.snapshots[token]
	out := make([]model.GemScoreSnapshot, 0, minInt(limit, len(series)))
	for i := len(series) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, series[i])
	}
	return out, nil
}

// ComputeScoreDelta compares the two most recent snapshots for token. The
// read happens under the same lock WriteSnapshot takes, so a delta is never
// computed against a partially-applied write.
func (m *MemStore) ComputeScoreDelta(ctx context.Context, token string) (*model.ScoreDelta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	series := m.snapshots[token]
	if len(series) < 2 {
		return nil, nil
	}
	current := series[len(series)-1]
	previous := series[len(series)-2]
	return buildScoreDelta(token, previous, current), nil
}

func (m *MemStore) ClearOld(ctx context.Context, maxAge time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)

	for token, byName := range m.features {
		for name, series := range byName {
			kept := series[:0]
			for _, f := range series {
				if f.Timestamp.After(cutoff) {
					kept = append(kept, f)
				}
			}
			byName[name] = kept
		}
		m.features[token] = byName
	}

	for token, series := range m.snapshots {
		kept := series[:0]
		for _, s := range series {
			if s.Timestamp.After(cutoff) {
				kept = append(kept, s)
			}
		}
		m.snapshots[token] = kept
	}

	return nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
