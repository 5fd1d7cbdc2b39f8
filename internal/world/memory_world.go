package world

import (
	"sync"

	"github.com/annel0/plotmines/internal/vec"
)

type blockKey struct {
	region string
	pos    vec.Vec3
}

// MemoryWorld разреженный мир в памяти. Отсутствующие блоки считаются воздухом.
// Используется хостом по умолчанию и в тестах.
type MemoryWorld struct {
	mu     sync.RWMutex
	blocks map[blockKey]Material
	writes uint64
}

// NewMemoryWorld создаёт пустой мир
func NewMemoryWorld() *MemoryWorld {
	return &MemoryWorld{
		blocks: make(map[blockKey]Material),
	}
}

// SetBlock устанавливает материал блока. Воздух удаляет запись.
func (w *MemoryWorld) SetBlock(pos Position, material Material) {
	key := blockKey{region: pos.Region, pos: pos.Block()}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.writes++
	if material.IsAir() {
		delete(w.blocks, key)
		return
	}
	w.blocks[key] = material
}

// GetBlockMaterial возвращает материал блока
func (w *MemoryWorld) GetBlockMaterial(pos Position) Material {
	key := blockKey{region: pos.Region, pos: pos.Block()}

	w.mu.RLock()
	defer w.mu.RUnlock()

	if m, ok := w.blocks[key]; ok {
		return m
	}
	return Air
}

// Writes общее количество записей блоков (для тестов и статуса)
func (w *MemoryWorld) Writes() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.writes
}

// NonAirCount количество непустых блоков в мире
func (w *MemoryWorld) NonAirCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.blocks)
}
