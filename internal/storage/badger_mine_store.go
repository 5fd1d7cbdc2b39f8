package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/annel0/plotmines/internal/mine"
	"github.com/dgraph-io/badger/v3"
)

const badgerMinePrefix = "mine:"

// BadgerMineStore хранит каждую шахту под ключом "mine:<id>" в BadgerDB
type BadgerMineStore struct {
	db      *badger.DB
	dbPath  string
	mutex   sync.RWMutex
	isReady bool
}

// NewBadgerMineStore открывает BadgerDB в <dataPath>/mines
func NewBadgerMineStore(dataPath string) (*BadgerMineStore, error) {
	dbPath := filepath.Join(dataPath, "mines")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	return &BadgerMineStore{
		db:      db,
		dbPath:  dbPath,
		isReady: true,
	}, nil
}

// Load читает все ключи с префиксом mine:
func (s *BadgerMineStore) Load(ctx context.Context) ([]mine.Record, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return nil, fmt.Errorf("хранилище не готово")
	}

	var records []mine.Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerMinePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.KeyCopy(nil))
			err := item.Value(func(val []byte) error {
				r, err := decodeRecord(key, val)
				if err != nil {
					return err
				}
				records = append(records, r)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}

	return records, nil
}

// SaveAll в одной транзакции удаляет старые записи и пишет новые
func (s *BadgerMineStore) SaveAll(ctx context.Context, records []mine.Record) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return fmt.Errorf("хранилище не готово")
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerMinePrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		var stale [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}

		for _, r := range records {
			data, err := encodeRecord(r)
			if err != nil {
				return err
			}
			if err := txn.Set([]byte(badgerMinePrefix+r.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}
	return nil
}

// Close закрывает хранилище данных
func (s *BadgerMineStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isReady {
		return nil
	}

	s.isReady = false
	return s.db.Close()
}
