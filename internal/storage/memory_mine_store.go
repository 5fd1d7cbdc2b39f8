package storage

import (
	"context"
	"sync"

	"github.com/annel0/plotmines/internal/mine"
)

// MemoryMineStore реализует MineStore в памяти.
// Используется в тестах и когда постоянное хранилище не настроено.
// ВНИМАНИЕ: Данные теряются при перезапуске сервера!
type MemoryMineStore struct {
	mu      sync.RWMutex
	records []mine.Record
	saves   int
	failErr error
}

// NewMemoryMineStore создает новое хранилище шахт в памяти
func NewMemoryMineStore() *MemoryMineStore {
	return &MemoryMineStore{}
}

// Load возвращает копию сохранённого набора
func (s *MemoryMineStore) Load(ctx context.Context) ([]mine.Record, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedRecords(s.records), nil
}

// SaveAll заменяет набор
func (s *MemoryMineStore) SaveAll(ctx context.Context, records []mine.Record) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failErr != nil {
		return s.failErr
	}
	s.records = sortedRecords(records)
	s.saves++
	return nil
}

// Saves количество успешных SaveAll (для тестов)
func (s *MemoryMineStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// FailWith заставляет следующие SaveAll возвращать err (nil отключает)
func (s *MemoryMineStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

// Close ничего не делает
func (s *MemoryMineStore) Close() error {
	return nil
}
