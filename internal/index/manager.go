// Package index maintains one in-memory semantic index per dataset.
// Fragment texts are embedded through an external embedding capability
// and ranked by cosine similarity at query time; tag filters narrow the
// candidate set before scoring.
package index

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
)

// ErrNotFound marks queries against datasets with no index store.
var ErrNotFound = errors.New("index store not found")

// Embedder is the external embedding capability.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type entry struct {
	fragment Fragment
	vector   []float32
}

type datasetStore struct {
	entries []entry
}

// Manager routes index operations to per-dataset stores. Safe for
// concurrent use; one store's lifetime matches its dataset's.
type Manager struct {
	mu       sync.RWMutex
	stores   map[string]*datasetStore
	embedder Embedder
}

func NewManager(embedder Embedder) *Manager {
	return &Manager{
		stores:   make(map[string]*datasetStore),
		embedder: embedder,
	}
}

// CreateStore embeds the fragments and installs them as the dataset's
// index, replacing any existing store for the same id. Embedding
// happens before the old store is swapped out, so in-flight queries
// keep reading the previous entries until the replacement is complete.
func (m *Manager) CreateStore(ctx context.Context, datasetID string, fragments []Fragment) error {
	m.mu.RLock()
	_, existed := m.stores[datasetID]
	m.mu.RUnlock()
	if existed {
		log.Printf("Index store for dataset %s already exists, replacing", datasetID)
	}

	entries := make([]entry, 0, len(fragments))
	for _, f := range fragments {
		vec, err := m.embedder.Embed(ctx, f.Text)
		if err != nil {
			return fmt.Errorf("failed to embed fragment for dataset %s: %w", datasetID, err)
		}
		entries = append(entries, entry{fragment: f, vector: vec})
	}

	m.mu.Lock()
	m.stores[datasetID] = &datasetStore{entries: entries}
	m.mu.Unlock()
	log.Printf("Index store created for dataset %s with %d fragments", datasetID, len(entries))
	return nil
}

// Query embeds the text and returns up to k fragments ranked by cosine
// similarity, restricted to those matching the filter (nil = all).
func (m *Manager) Query(ctx context.Context, datasetID, text string, k int, filter *TagFilter) ([]Fragment, error) {
	m.mu.RLock()
	ds, ok := m.stores[datasetID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("dataset %s: %w (upload the dataset first)", datasetID, ErrNotFound)
	}
	if k <= 0 {
		return nil, nil
	}

	queryVec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	type scored struct {
		fragment Fragment
		score    float32
	}
	var candidates []scored
	for _, e := range ds.entries {
		if filter != nil && !filter.matches(e.fragment.Tags) {
			continue
		}
		score, err := cosineSimilarity(queryVec, e.vector)
		if err != nil {
			log.Printf("Skipping fragment with incompatible embedding: %v", err)
			continue
		}
		candidates = append(candidates, scored{fragment: e.fragment, score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	out := make([]Fragment, len(candidates))
	for i, c := range candidates {
		out[i] = c.fragment
	}
	return out, nil
}

// ColumnInfo retrieves column-info fragments, optionally for one
// specific column.
func (m *Manager) ColumnInfo(ctx context.Context, datasetID, columnName string, k int) ([]Fragment, error) {
	query := "all columns information"
	filter := &TagFilter{Kind: KindColumnInfo}
	if columnName != "" {
		query = "column " + columnName
		filter.ColumnName = columnName
	}
	return m.Query(ctx, datasetID, query, k, filter)
}

// SheetSummary retrieves the summary fragment for one sheet, if any.
func (m *Manager) SheetSummary(ctx context.Context, datasetID, sheetName string) ([]Fragment, error) {
	return m.Query(ctx, datasetID, "summary of sheet "+sheetName, 1, &TagFilter{
		Kind:      KindSheetSummary,
		SheetName: sheetName,
	})
}

// DeleteStore removes the dataset's index.
func (m *Manager) DeleteStore(datasetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.stores[datasetID]; !ok {
		return fmt.Errorf("dataset %s: %w", datasetID, ErrNotFound)
	}
	delete(m.stores, datasetID)
	log.Printf("Index store deleted for dataset %s", datasetID)
	return nil
}

func (m *Manager) Exists(datasetID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.stores[datasetID]
	return ok
}

// List returns the ids of every dataset with an index store.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.stores))
	for id := range m.stores {
		ids = append(ids, id)
	}
	return ids
}
