package store

import (
	"sort"
	"sync"

	"github.com/pavelanni/quizcraft/internal/model"
)

// MemStore is an in-memory HistoryStore. It backs tests and serves as the
// degraded fallback when the database file cannot be opened, so a storage
// fault never takes down the quiz session.
type MemStore struct {
	mu      sync.Mutex
	nextID  int64
	entries map[int64]model.HistoryEntry

	// Err, when set, is returned by every operation. Tests use it to
	// simulate quota exhaustion or a corrupted store.
	Err error
}

func NewMemStore() *MemStore {
	return &MemStore{nextID: 1, entries: make(map[int64]model.HistoryEntry)}
}

func (m *MemStore) Add(entry model.HistoryEntry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	entry.ID = m.nextID
	m.nextID++
	m.entries[entry.ID] = entry
	return entry.ID, nil
}

func (m *MemStore) GetAll() ([]model.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	entries := make([]model.HistoryEntry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

func (m *MemStore) Update(id int64, fields UpdateFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	e, ok := m.entries[id]
	if !ok {
		return ErrNotFound
	}
	if fields.Timestamp != nil {
		e.Timestamp = *fields.Timestamp
	}
	if fields.Score != nil {
		e.Score = *fields.Score
	}
	if fields.LastScore != nil {
		e.LastScore = fields.LastScore
	}
	if fields.Attempt != nil {
		e.Attempt = *fields.Attempt
	}
	if fields.Answers != nil {
		e.Answers = fields.Answers
	}
	m.entries[id] = e
	return nil
}

func (m *MemStore) DeleteOne(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.entries[id]; !ok {
		return ErrNotFound
	}
	delete(m.entries, id)
	return nil
}

func (m *MemStore) DeleteAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.entries = make(map[int64]model.HistoryEntry)
	return nil
}

func (m *MemStore) FindByTopicAndDifficulty(topic, difficulty string) (*model.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var ids []int64
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		e := m.entries[id]
		if e.Topic == topic && e.Difficulty == difficulty {
			return &e, nil
		}
	}
	return nil, nil
}
