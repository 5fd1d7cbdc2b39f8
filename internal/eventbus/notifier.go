package eventbus

import (
	"context"

	"github.com/annel0/plotmines/internal/logging"
	"github.com/annel0/plotmines/internal/mine"
	"github.com/annel0/plotmines/internal/world"
)

// MessagePayload сообщение игроку о действии с шахтой
type MessagePayload struct {
	RecipientID   string `json:"recipient_id"`
	RecipientName string `json:"recipient_name"`
	MineID        string `json:"mine_id,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
	RequestedID   string `json:"requested_id,omitempty"`
}

// HologramPayload состояние голограммы над шахтой
type HologramPayload struct {
	MineID       string         `json:"mine_id"`
	DisplayName  string         `json:"display_name"`
	Position     world.Position `json:"position"`
	Percentage   float64        `json:"percentage"`
	ResetPercent float64        `json:"reset_percent"`
}

// ResetPayload сведения о сбросе шахты
type ResetPayload struct {
	MineID      string  `json:"mine_id"`
	DisplayName string  `json:"display_name"`
	Template    string  `json:"template"`
	TotalBlocks int     `json:"total_blocks"`
	Percentage  float64 `json:"percentage"`
}

// Publisher публикует события шахт от имени одного источника.
// Ошибки публикации только логируются: уведомления не влияют на состояние шахт.
type Publisher struct {
	bus    EventBus
	source string
}

// NewPublisher создаёт публикатора
func NewPublisher(bus EventBus, source string) *Publisher {
	if source == "" {
		source = "plotmines"
	}
	return &Publisher{bus: bus, source: source}
}

func (p *Publisher) publish(ctx context.Context, eventType string, priority int, payload interface{}) {
	ev, err := NewEnvelope(p.source, eventType, priority, payload)
	if err != nil {
		logging.Error("❌ EventBus: %v", err)
		return
	}
	if err := p.bus.Publish(ctx, ev); err != nil {
		logging.Warn("⚠️ EventBus: не удалось опубликовать %s: %v", eventType, err)
	}
}

// MineReset публикует событие сброса
func (p *Publisher) MineReset(ctx context.Context, m *mine.Mine) {
	p.publish(ctx, EventMineReset, 3, ResetPayload{
		MineID:      m.ID().String(),
		DisplayName: m.DisplayName(),
		Template:    m.Template(),
		TotalBlocks: m.TotalBlocks(),
		Percentage:  m.Percentage(),
	})
}

// Messenger доставляет сообщения игрокам через шину
type Messenger struct {
	*Publisher
}

// NewMessenger создаёт мессенджер поверх шины
func NewMessenger(bus EventBus, source string) *Messenger {
	return &Messenger{Publisher: NewPublisher(bus, source)}
}

func messageFor(actor mine.Owner) MessagePayload {
	return MessagePayload{RecipientID: actor.ID.String(), RecipientName: actor.Name}
}

// MineCreated сообщение о созданной шахте
func (m *Messenger) MineCreated(ctx context.Context, actor mine.Owner, mn *mine.Mine) {
	msg := messageFor(actor)
	msg.MineID = mn.ID().String()
	msg.DisplayName = mn.DisplayName()
	m.publish(ctx, EventMineCreated, 5, msg)
}

// MineDeleted сообщение об удалённой шахте
func (m *Messenger) MineDeleted(ctx context.Context, actor mine.Owner, mn *mine.Mine) {
	msg := messageFor(actor)
	msg.MineID = mn.ID().String()
	msg.DisplayName = mn.DisplayName()
	m.publish(ctx, EventMineDeleted, 5, msg)
}

// MineNotFound сообщение о неизвестном id
func (m *Messenger) MineNotFound(ctx context.Context, actor mine.Owner, requestedID string) {
	msg := messageFor(actor)
	msg.RequestedID = requestedID
	m.publish(ctx, EventMineNotFound, 5, msg)
}

// Holograms публикует команды рендереру голограмм
type Holograms struct {
	*Publisher
}

// NewHolograms создаёт публикатора голограмм
func NewHolograms(bus EventBus, source string) *Holograms {
	return &Holograms{Publisher: NewPublisher(bus, source)}
}

// HologramPosition точка голограммы: над блоком активации
func HologramPosition(m *mine.Mine) world.Position {
	return m.InteractionBlock().Offset(0, 2.5, 0)
}

func hologramFor(m *mine.Mine) HologramPayload {
	return HologramPayload{
		MineID:       m.ID().String(),
		DisplayName:  m.DisplayName(),
		Position:     HologramPosition(m),
		Percentage:   m.Percentage(),
		ResetPercent: m.ResetPercent(),
	}
}

// CreateHologram показывает голограмму новой шахты
func (h *Holograms) CreateHologram(ctx context.Context, m *mine.Mine) {
	h.publish(ctx, EventHologramCreate, 4, hologramFor(m))
}

// RemoveHologram убирает голограмму
func (h *Holograms) RemoveHologram(ctx context.Context, m *mine.Mine) {
	h.publish(ctx, EventHologramRemove, 4, hologramFor(m))
}

// RefreshHologram обновляет процент выработки; низкий приоритет, может быть отброшен
func (h *Holograms) RefreshHologram(ctx context.Context, m *mine.Mine) {
	h.publish(ctx, EventHologramRefresh, 1, hologramFor(m))
}
