package composition

import (
	"math/rand"
	"sync"
	"time"

	"github.com/annel0/plotmines/internal/geometry"
	"github.com/annel0/plotmines/internal/metrics"
	"github.com/annel0/plotmines/internal/world"
)

// Engine записывает материалы в объёмы через примитив мира.
// Вызовы синхронные: заполнение либо выполняется целиком, либо не начинается.
type Engine struct {
	writer world.BlockWriter
	mu     sync.Mutex
	rng    *rand.Rand
}

// NewEngine создаёт движок с заданным сидом генератора
func NewEngine(writer world.BlockWriter, seed int64) *Engine {
	return &Engine{
		writer: writer,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// NewRandomEngine движок с сидом от текущего времени
func NewRandomEngine(writer world.BlockWriter) *Engine {
	return NewEngine(writer, time.Now().UnixNano())
}

// Fill заполняет каждую клетку объёма материалом, выбранным независимым
// взвешенным розыгрышем по рецепту. Пропорции сходятся к весам рецепта
// только статистически.
func (e *Engine) Fill(v geometry.Volume, r Recipe) error {
	table, err := newCumulativeTable(r)
	if err != nil {
		return err
	}
	if v.IsEmpty() {
		return nil
	}

	if len(table.materials) == 1 {
		e.FillUniform(v, table.materials[0])
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	written := 0
	v.ForEach(func(pos world.Position) {
		draw := e.rng.Float64() * table.total
		e.writer.SetBlock(pos, table.pick(draw))
		written++
	})
	metrics.BlocksWritten.WithLabelValues(metrics.KindFill).Add(float64(written))
	return nil
}

// FillUniform заполняет объём одним материалом без обращения к генератору
func (e *Engine) FillUniform(v geometry.Volume, m world.Material) {
	written := 0
	v.ForEach(func(pos world.Position) {
		e.writer.SetBlock(pos, m)
		written++
	})
	metrics.BlocksWritten.WithLabelValues(metrics.KindUniform).Add(float64(written))
}

// FillFaces заполняет одним материалом только шесть граней объёма
func (e *Engine) FillFaces(v geometry.Volume, m world.Material) {
	written := 0
	v.ForEachFace(func(pos world.Position) {
		e.writer.SetBlock(pos, m)
		written++
	})
	metrics.BlocksWritten.WithLabelValues(metrics.KindBorder).Add(float64(written))
}
