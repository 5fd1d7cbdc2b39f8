package mine

import (
	"fmt"

	"github.com/annel0/plotmines/internal/composition"
	"github.com/annel0/plotmines/internal/geometry"
	"github.com/annel0/plotmines/internal/world"
)

// Template описание шахты, задаваемое администратором. После загрузки не меняется.
type Template struct {
	Name             string             // ключ шаблона в конфигурации
	Label            string             // отображаемое имя ("DIAMOND_MINE" -> "Diamond Mine")
	Width            int                // размер плана по X
	Depth            int                // размер плана по Z
	ResetPercent     float64            // порог истощения для сброса, 0-100
	Border           world.Material     // материал стен и пола
	Composition      composition.Recipe // состав внутренней части
	InteractionBlock world.Material     // блок активации над точкой создания
}

// Validate проверяет шаблон
func (t Template) Validate() error {
	if t.Width <= 0 || t.Depth <= 0 {
		return fmt.Errorf("шаблон %q: %w: width=%d depth=%d", t.Name, geometry.ErrInvalidTemplate, t.Width, t.Depth)
	}
	if t.ResetPercent < 0 || t.ResetPercent > 100 {
		return fmt.Errorf("шаблон %q: reset_percent %.1f вне диапазона 0-100", t.Name, t.ResetPercent)
	}
	if err := t.Composition.Validate(); err != nil {
		return fmt.Errorf("шаблон %q: %w", t.Name, err)
	}
	return nil
}
