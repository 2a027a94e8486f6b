package store

import (
	"errors"
	"fmt"
	"log"
	"sync"
)

// ErrNotFound marks lookups against datasets or sheets that are not in
// the store. Callers match it with errors.Is; the message always names
// what is available so the caller can self-correct.
var ErrNotFound = errors.New("not found")

type dataset struct {
	sheets []*Sheet // insertion order
	meta   DatasetMeta
}

// TabularStore holds parsed sheet data in memory, keyed by dataset id.
// It is safe for concurrent readers; mutations are serialized. All
// reads return independent copies, never aliases of stored state.
type TabularStore struct {
	mu       sync.RWMutex
	datasets map[string]*dataset
}

func NewTabularStore() *TabularStore {
	return &TabularStore{datasets: make(map[string]*dataset)}
}

// Put stores a dataset's sheets together with its metadata record,
// replacing any previous entry under the same id.
func (s *TabularStore) Put(datasetID string, sheets []*Sheet, meta DatasetMeta) {
	copied := make([]*Sheet, len(sheets))
	for i, sh := range sheets {
		copied[i] = sh.Clone()
	}
	meta.DatasetID = datasetID

	s.mu.Lock()
	s.datasets[datasetID] = &dataset{sheets: copied, meta: meta}
	s.mu.Unlock()
	log.Printf("Dataset %s added to store with %d sheets", datasetID, len(sheets))
}

// Get returns a copy of the named sheet. An empty sheetName selects the
// first sheet in insertion order.
func (s *TabularStore) Get(datasetID, sheetName string) (*Sheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ds, ok := s.datasets[datasetID]
	if !ok {
		return nil, fmt.Errorf("dataset %s: %w", datasetID, ErrNotFound)
	}
	if sheetName == "" {
		if len(ds.sheets) == 0 {
			return nil, fmt.Errorf("dataset %s has no sheets: %w", datasetID, ErrNotFound)
		}
		return ds.sheets[0].Clone(), nil
	}
	for _, sh := range ds.sheets {
		if sh.Name == sheetName {
			return sh.Clone(), nil
		}
	}
	return nil, fmt.Errorf("sheet %q: %w (available sheets: %v)", sheetName, ErrNotFound, sheetNames(ds))
}

// SheetNames returns the dataset's sheet names in insertion order.
func (s *TabularStore) SheetNames(datasetID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ds, ok := s.datasets[datasetID]
	if !ok {
		return nil, fmt.Errorf("dataset %s: %w", datasetID, ErrNotFound)
	}
	return sheetNames(ds), nil
}

// Meta returns a copy of the dataset's metadata record.
func (s *TabularStore) Meta(datasetID string) (DatasetMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ds, ok := s.datasets[datasetID]
	if !ok {
		return DatasetMeta{}, fmt.Errorf("dataset %s: %w", datasetID, ErrNotFound)
	}
	return copyMeta(ds.meta), nil
}

// List returns metadata records for every stored dataset.
func (s *TabularStore) List() []DatasetMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]DatasetMeta, 0, len(s.datasets))
	for _, ds := range s.datasets {
		out = append(out, copyMeta(ds.meta))
	}
	return out
}

// Remove deletes the dataset's sheets and metadata record together.
func (s *TabularStore) Remove(datasetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.datasets[datasetID]; !ok {
		return fmt.Errorf("dataset %s: %w", datasetID, ErrNotFound)
	}
	delete(s.datasets, datasetID)
	log.Printf("Dataset %s deleted from store", datasetID)
	return nil
}

func (s *TabularStore) Exists(datasetID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.datasets[datasetID]
	return ok
}

func sheetNames(ds *dataset) []string {
	names := make([]string, len(ds.sheets))
	for i, sh := range ds.sheets {
		names[i] = sh.Name
	}
	return names
}

func copyMeta(m DatasetMeta) DatasetMeta {
	out := m
	out.Sheets = append([]string(nil), m.Sheets...)
	out.RowCounts = make(map[string]int, len(m.RowCounts))
	for k, v := range m.RowCounts {
		out.RowCounts[k] = v
	}
	out.Columns = make(map[string][]string, len(m.Columns))
	for k, v := range m.Columns {
		out.Columns[k] = append([]string(nil), v...)
	}
	return out
}
