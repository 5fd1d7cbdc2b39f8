package mine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/annel0/plotmines/internal/composition"
	"github.com/annel0/plotmines/internal/geometry"
	"github.com/annel0/plotmines/internal/world"
	"github.com/google/uuid"
)

// ErrDeleted операция над удалённой шахтой
var ErrDeleted = errors.New("mine is deleted")

// State состояние жизненного цикла шахты
type State int

const (
	StateActive State = iota
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Owner идентичность владельца
type Owner struct {
	ID   uuid.UUID
	Name string
}

// Filler движок заполнения объёмов (см. composition.Engine)
type Filler interface {
	Fill(v geometry.Volume, r composition.Recipe) error
	FillUniform(v geometry.Volume, m world.Material)
	FillFaces(v geometry.Volume, m world.Material)
}

// ResetHook вызывается после каждого сброса шахты, вне её блокировки
type ResetHook func(m *Mine)

// Mine одна шахта игрока
type Mine struct {
	mu sync.Mutex

	id            uuid.UUID
	owner         Owner
	template      string
	displayName   string
	volume        geometry.Volume
	resetPercent  float64
	resetTeleport world.Position
	composition   composition.Recipe
	totalBlocks   int

	depleted int
	state    State

	filler  Filler
	onReset ResetHook
}

// Params поля новой шахты
type Params struct {
	ID            uuid.UUID
	Owner         Owner
	Template      string
	DisplayName   string
	Volume        geometry.Volume
	ResetPercent  float64
	ResetTeleport world.Position
	Composition   composition.Recipe
}

// New создаёт шахту в состоянии Active. Количество блоков вычисляется по объёму.
func New(p Params) *Mine {
	id := p.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return &Mine{
		id:            id,
		owner:         p.Owner,
		template:      p.Template,
		displayName:   p.DisplayName,
		volume:        p.Volume,
		resetPercent:  p.ResetPercent,
		resetTeleport: p.ResetTeleport,
		composition:   p.Composition.Clone(),
		totalBlocks:   geometry.BlockCount(p.Volume),
		state:         StateActive,
	}
}

// Attach подключает движок заполнения и хук сброса
func (m *Mine) Attach(f Filler, hook ResetHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filler = f
	m.onReset = hook
}

func (m *Mine) ID() uuid.UUID                   { return m.id }
func (m *Mine) Owner() Owner                    { return m.owner }
func (m *Mine) Template() string                { return m.template }
func (m *Mine) DisplayName() string             { return m.displayName }
func (m *Mine) Volume() geometry.Volume         { return m.volume }
func (m *Mine) ResetPercent() float64           { return m.resetPercent }
func (m *Mine) ResetTeleport() world.Position   { return m.resetTeleport }
func (m *Mine) TotalBlocks() int                { return m.totalBlocks }
func (m *Mine) Composition() composition.Recipe { return m.composition.Clone() }

// InteractionBlock позиция блока активации: на один блок ниже точки телепорта
func (m *Mine) InteractionBlock() world.Position {
	return m.resetTeleport.Offset(0, -1, 0)
}

// Depleted количество добытых блоков с последнего сброса
func (m *Mine) Depleted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.depleted
}

// State текущее состояние
func (m *Mine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Percentage процент истощения
func (m *Mine) Percentage() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.percentageLocked()
}

func (m *Mine) percentageLocked() float64 {
	if m.totalBlocks == 0 {
		return 0
	}
	return float64(m.depleted) / float64(m.totalBlocks) * 100
}

// thresholdReachedLocked depleted/total*100 >= resetPercent без деления
func (m *Mine) thresholdReachedLocked() bool {
	if m.totalBlocks == 0 {
		return false
	}
	return float64(m.depleted)*100 >= m.resetPercent*float64(m.totalBlocks)
}

func (m *Mine) checkLocked() error {
	if m.state == StateDeleted {
		return fmt.Errorf("шахта %s: %w", m.id, ErrDeleted)
	}
	if m.filler == nil {
		return fmt.Errorf("шахта %s: движок заполнения не подключен", m.id)
	}
	return nil
}

// resetLocked перезаполняет внутреннюю часть и обнуляет счётчик
func (m *Mine) resetLocked() error {
	if err := m.filler.Fill(m.volume.Interior(), m.composition); err != nil {
		return fmt.Errorf("сброс шахты %s: %w", m.id, err)
	}
	m.depleted = 0
	return nil
}

func (m *Mine) notifyReset() {
	m.mu.Lock()
	hook := m.onReset
	m.mu.Unlock()

	if hook != nil {
		hook(m)
	}
}

// Reset перезаполняет шахту по рецепту и обнуляет счётчик истощения
func (m *Mine) Reset() error {
	m.mu.Lock()
	if err := m.checkLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	err := m.resetLocked()
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.notifyReset()
	return nil
}

// RecordDepletion учитывает removed добытых блоков. Если процент истощения
// достиг порога (>=), шахта сбрасывается в рамках этого же вызова.
// Возвращает true, если сброс произошёл.
func (m *Mine) RecordDepletion(removed int) (bool, error) {
	if removed <= 0 {
		return false, nil
	}

	m.mu.Lock()
	if err := m.checkLocked(); err != nil {
		m.mu.Unlock()
		return false, err
	}

	m.depleted += removed
	if !m.thresholdReachedLocked() {
		m.mu.Unlock()
		return false, nil
	}

	err := m.resetLocked()
	m.mu.Unlock()
	if err != nil {
		return false, err
	}

	m.notifyReset()
	return true, nil
}

// SetBorder красит шесть граней объёма материалом рамки
func (m *Mine) SetBorder(border world.Material) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(); err != nil {
		return err
	}
	m.filler.FillFaces(m.volume, border)
	return nil
}

// Clear заполняет весь объём пустым материалом и переводит шахту в Deleted
func (m *Mine) Clear(empty world.Material) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked(); err != nil {
		return err
	}
	m.filler.FillUniform(m.volume, empty)
	m.state = StateDeleted
	return nil
}

func (m *Mine) String() string {
	return fmt.Sprintf("%s[%s]", m.displayName, m.id)
}
