package mine

import (
	"fmt"

	"github.com/annel0/plotmines/internal/composition"
	"github.com/annel0/plotmines/internal/geometry"
	"github.com/annel0/plotmines/internal/world"
	"github.com/google/uuid"
)

// OwnerRecord владелец в формате хранения
type OwnerRecord struct {
	ID   string `json:"id" bson:"id"`
	Name string `json:"name" bson:"name"`
}

// Record одна шахта в формате хранения. Реестр целиком сохраняется
// как набор таких записей.
type Record struct {
	ID            string             `json:"id" bson:"_id"`
	Owner         OwnerRecord        `json:"owner" bson:"owner"`
	Template      string             `json:"template" bson:"template"`
	DisplayName   string             `json:"display_name" bson:"display_name"`
	Minimum       world.Position     `json:"minimum" bson:"minimum"`
	Maximum       world.Position     `json:"maximum" bson:"maximum"`
	ResetPercent  float64            `json:"reset_percent" bson:"reset_percent"`
	ResetTeleport world.Position     `json:"reset_teleport" bson:"reset_teleport"`
	Composition   map[string]float64 `json:"composition" bson:"composition"`
	TotalBlocks   int                `json:"total_blocks" bson:"total_blocks"`
}

// Record снимок шахты для сохранения
func (m *Mine) Record() Record {
	return Record{
		ID:            m.id.String(),
		Owner:         OwnerRecord{ID: m.owner.ID.String(), Name: m.owner.Name},
		Template:      m.template,
		DisplayName:   m.displayName,
		Minimum:       m.volume.Min,
		Maximum:       m.volume.Max,
		ResetPercent:  m.resetPercent,
		ResetTeleport: m.resetTeleport,
		Composition:   m.composition.ToMap(),
		TotalBlocks:   m.totalBlocks,
	}
}

// FromRecord восстанавливает шахту из записи.
// Счётчик истощения не хранится и начинается с нуля.
func FromRecord(r Record) (*Mine, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("некорректный id шахты %q: %w", r.ID, err)
	}

	var ownerID uuid.UUID
	if r.Owner.ID != "" {
		ownerID, err = uuid.Parse(r.Owner.ID)
		if err != nil {
			return nil, fmt.Errorf("шахта %s: некорректный id владельца %q: %w", r.ID, r.Owner.ID, err)
		}
	}

	volume, err := geometry.Normalize(r.Minimum, r.Maximum)
	if err != nil {
		return nil, fmt.Errorf("шахта %s: %w", r.ID, err)
	}

	recipe := composition.FromMap(r.Composition)
	if err := recipe.Validate(); err != nil {
		return nil, fmt.Errorf("шахта %s: %w", r.ID, err)
	}

	m := New(Params{
		ID:            id,
		Owner:         Owner{ID: ownerID, Name: r.Owner.Name},
		Template:      r.Template,
		DisplayName:   r.DisplayName,
		Volume:        volume,
		ResetPercent:  r.ResetPercent,
		ResetTeleport: r.ResetTeleport,
		Composition:   recipe,
	})
	if r.TotalBlocks > 0 && r.TotalBlocks != m.totalBlocks {
		return nil, fmt.Errorf("шахта %s: total_blocks %d не совпадает с объёмом (%d)", r.ID, r.TotalBlocks, m.totalBlocks)
	}
	return m, nil
}
