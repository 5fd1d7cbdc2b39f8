package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/annel0/plotmines/internal/mine"
)

// ErrCorruptState сохранённое состояние не удалось разобрать
var ErrCorruptState = errors.New("persisted mine state is corrupt")

// MineStore шлюз хранения реестра шахт.
// Реестр всегда перезаписывается целиком, без инкрементальных изменений.
type MineStore interface {
	// Load загружает все шахты. Нечитаемые данные дают ошибку, оборачивающую ErrCorruptState.
	Load(ctx context.Context) ([]mine.Record, error)

	// SaveAll заменяет сохранённый набор шахт переданным.
	SaveAll(ctx context.Context, records []mine.Record) error

	// Close закрывает хранилище
	Close() error
}

// registryFile формат документа с полным реестром (файловое хранилище)
type registryFile struct {
	Version int           `json:"version"`
	Mines   []mine.Record `json:"mines"`
}

const registryFileVersion = 1

// encodeRecords сериализует набор шахт в один JSON-документ
func encodeRecords(records []mine.Record) ([]byte, error) {
	doc := registryFile{Version: registryFileVersion, Mines: sortedRecords(records)}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации шахт: %w", err)
	}
	return data, nil
}

// decodeRecords разбирает документ encodeRecords
func decodeRecords(data []byte) ([]mine.Record, error) {
	var doc registryFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if doc.Version > registryFileVersion {
		return nil, fmt.Errorf("%w: неизвестная версия формата %d", ErrCorruptState, doc.Version)
	}
	return doc.Mines, nil
}

// encodeRecord сериализует одну шахту (хранилища ключ-значение)
func encodeRecord(r mine.Record) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации шахты %s: %w", r.ID, err)
	}
	return data, nil
}

// decodeRecord разбирает одну шахту
func decodeRecord(key string, data []byte) (mine.Record, error) {
	var r mine.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return mine.Record{}, fmt.Errorf("%w: запись %s: %v", ErrCorruptState, key, err)
	}
	if r.ID == "" {
		return mine.Record{}, fmt.Errorf("%w: запись %s без id", ErrCorruptState, key)
	}
	return r, nil
}

// sortedRecords копия набора, упорядоченная по id
func sortedRecords(records []mine.Record) []mine.Record {
	out := make([]mine.Record, len(records))
	copy(out, records)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
