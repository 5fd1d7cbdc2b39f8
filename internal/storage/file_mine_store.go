package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/annel0/plotmines/internal/mine"
	"github.com/klauspost/compress/zstd"
)

// FileMineStore хранит реестр одним JSON-документом (mines.json).
// Файл с расширением .zst сжимается zstd.
type FileMineStore struct {
	path       string
	compressed bool
	mu         sync.Mutex
}

// NewFileMineStore создаёт файловое хранилище; каталог создаётся при необходимости
func NewFileMineStore(path string) (*FileMineStore, error) {
	if path == "" {
		return nil, fmt.Errorf("не задан путь к файлу шахт")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию %s: %w", filepath.Dir(path), err)
	}

	return &FileMineStore{
		path:       path,
		compressed: strings.HasSuffix(path, ".zst"),
	}, nil
}

// Path путь к файлу
func (s *FileMineStore) Path() string {
	return s.path
}

// Load читает файл. Отсутствующий файл означает пустой реестр.
func (s *FileMineStore) Load(ctx context.Context) ([]mine.Record, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла шахт %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	if s.compressed {
		data, err = decompress(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptState, s.path, err)
		}
	}

	return decodeRecords(data)
}

// SaveAll атомарно перезаписывает файл (запись во временный файл и rename)
func (s *FileMineStore) SaveAll(ctx context.Context, records []mine.Record) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	data, err := encodeRecords(records)
	if err != nil {
		return err
	}
	if s.compressed {
		data, err = compress(data)
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("ошибка записи файла шахт %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ошибка замены файла шахт %s: %w", s.path, err)
	}
	return nil
}

// Close ничего не делает: файл не держится открытым
func (s *FileMineStore) Close() error {
	return nil
}

func compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}
