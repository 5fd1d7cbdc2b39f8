package composition

import (
	"errors"
	"fmt"
	"sort"

	"github.com/annel0/plotmines/internal/world"
)

// ErrEmptyRecipe суммарный вес рецепта равен нулю
var ErrEmptyRecipe = errors.New("composition recipe has zero total weight")

// Recipe материал -> процентный вес. Веса задают относительные пропорции
// и не обязаны давать в сумме 100.
type Recipe map[world.Material]float64

// Single рецепт из одного материала
func Single(m world.Material) Recipe {
	return Recipe{m: 100}
}

// TotalWeight сумма весов
func (r Recipe) TotalWeight() float64 {
	total := 0.0
	for _, w := range r {
		total += w
	}
	return total
}

// Validate проверяет инварианты рецепта
func (r Recipe) Validate() error {
	if len(r) == 0 {
		return fmt.Errorf("%w: no entries", ErrEmptyRecipe)
	}
	for m, w := range r {
		if w < 0 {
			return fmt.Errorf("%w: negative weight %.2f for %s", ErrEmptyRecipe, w, m)
		}
	}
	if r.TotalWeight() <= 0 {
		return ErrEmptyRecipe
	}
	return nil
}

// Materials материалы рецепта в детерминированном порядке
func (r Recipe) Materials() []world.Material {
	out := make([]world.Material, 0, len(r))
	for m := range r {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone копия рецепта
func (r Recipe) Clone() Recipe {
	out := make(Recipe, len(r))
	for m, w := range r {
		out[m] = w
	}
	return out
}

// ToMap рецепт в виде map со строковыми ключами (формат хранения)
func (r Recipe) ToMap() map[string]float64 {
	out := make(map[string]float64, len(r))
	for m, w := range r {
		out[string(m)] = w
	}
	return out
}

// FromMap обратное преобразование к ToMap
func FromMap(m map[string]float64) Recipe {
	out := make(Recipe, len(m))
	for k, w := range m {
		out[world.Material(k)] = w
	}
	return out
}

// cumulativeTable таблица накопленных весов, строится один раз на вызов Fill
type cumulativeTable struct {
	materials  []world.Material
	cumulative []float64
	total      float64
}

func newCumulativeTable(r Recipe) (*cumulativeTable, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	materials := r.Materials()
	t := &cumulativeTable{
		materials:  materials,
		cumulative: make([]float64, len(materials)),
	}
	for i, m := range materials {
		t.total += r[m]
		t.cumulative[i] = t.total
	}
	return t, nil
}

// pick первый материал, чей накопленный вес больше draw; draw в [0, total)
func (t *cumulativeTable) pick(draw float64) world.Material {
	i := sort.Search(len(t.cumulative), func(i int) bool {
		return t.cumulative[i] > draw
	})
	if i == len(t.cumulative) {
		i = len(t.cumulative) - 1
	}
	return t.materials[i]
}
