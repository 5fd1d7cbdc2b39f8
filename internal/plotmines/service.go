// Package plotmines связывает реестр шахт с миром и внешними получателями
// (сообщения игрокам, голограммы, события сброса).
//
// Все методы, меняющие мир, должны вызываться из горутины тиков
// (см. scheduler.Call для внешних горутин).
package plotmines

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/annel0/plotmines/internal/composition"
	"github.com/annel0/plotmines/internal/geometry"
	"github.com/annel0/plotmines/internal/logging"
	"github.com/annel0/plotmines/internal/metrics"
	"github.com/annel0/plotmines/internal/mine"
	"github.com/annel0/plotmines/internal/observability"
	"github.com/annel0/plotmines/internal/registry"
	"github.com/annel0/plotmines/internal/storage"
	"github.com/annel0/plotmines/internal/world"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// ErrUnknownTemplate шаблон с таким именем не настроен
var ErrUnknownTemplate = fmt.Errorf("%w: unknown template", geometry.ErrInvalidTemplate)

// Messenger сообщения игроку о его действиях
type Messenger interface {
	MineCreated(ctx context.Context, actor mine.Owner, m *mine.Mine)
	MineDeleted(ctx context.Context, actor mine.Owner, m *mine.Mine)
	MineNotFound(ctx context.Context, actor mine.Owner, requestedID string)
}

// Holograms отображение голограмм над шахтами
type Holograms interface {
	CreateHologram(ctx context.Context, m *mine.Mine)
	RemoveHologram(ctx context.Context, m *mine.Mine)
	RefreshHologram(ctx context.Context, m *mine.Mine)
}

// ResetListener получает уведомление о каждом сбросе
type ResetListener interface {
	MineReset(ctx context.Context, m *mine.Mine)
}

// Options зависимости сервиса
type Options struct {
	World     world.BlockAccess
	Store     storage.MineStore
	Scheduler registry.Deferrer
	Filler    mine.Filler // nil - composition.NewRandomEngine(World)
	Logger    *logging.Logger

	Messenger Messenger
	Holograms Holograms
	Resets    ResetListener // может быть nil

	Templates         map[string]mine.Template
	HologramsEnabled  bool
	StartupResetDelay int
}

// Service операции над шахтами игроков
type Service struct {
	registry         *registry.Registry
	world            world.BlockAccess
	sched            registry.Deferrer
	log              *logging.Logger
	messenger        Messenger
	holograms        Holograms
	resets           ResetListener
	templates        map[string]mine.Template
	hologramsEnabled bool

	hologramMu sync.Mutex
	shown      map[uuid.UUID]struct{} // шахты с показанной голограммой
}

// BreakResult итог обработки сломанного блока
type BreakResult struct {
	MineID     uuid.UUID `json:"mine_id"`
	Counted    bool      `json:"counted"` // false, если блок уже был пустым
	Reset      bool      `json:"reset"`
	Percentage float64   `json:"percentage"`
}

// New создаёт сервис и его реестр
func New(opts Options) *Service {
	log := opts.Logger
	if log == nil {
		log = logging.Default()
	}
	filler := opts.Filler
	if filler == nil {
		filler = composition.NewRandomEngine(opts.World)
	}

	s := &Service{
		world:            opts.World,
		sched:            opts.Scheduler,
		log:              log,
		messenger:        opts.Messenger,
		holograms:        opts.Holograms,
		resets:           opts.Resets,
		templates:        opts.Templates,
		hologramsEnabled: opts.HologramsEnabled && opts.Holograms != nil,
		shown:            make(map[uuid.UUID]struct{}),
	}
	s.registry = registry.New(registry.Options{
		Store:             opts.Store,
		Filler:            filler,
		Scheduler:         opts.Scheduler,
		Logger:            log,
		StartupResetDelay: opts.StartupResetDelay,
		OnReset:           s.onReset,
	})
	return s
}

// Registry реестр шахт сервиса
func (s *Service) Registry() *registry.Registry {
	return s.registry
}

// Init загружает шахты, показывает их голограммы и планирует стартовый сброс
func (s *Service) Init(ctx context.Context) error {
	err := s.registry.Init(ctx)
	for _, m := range s.registry.All() {
		s.showHologram(ctx, m)
	}
	return err
}

func (s *Service) showHologram(ctx context.Context, m *mine.Mine) {
	if !s.hologramsEnabled {
		return
	}
	s.hologramMu.Lock()
	s.shown[m.ID()] = struct{}{}
	s.hologramMu.Unlock()
	s.holograms.CreateHologram(ctx, m)
}

func (s *Service) hideHologram(ctx context.Context, m *mine.Mine) {
	if !s.hologramsEnabled {
		return
	}
	s.hologramMu.Lock()
	delete(s.shown, m.ID())
	s.hologramMu.Unlock()
	s.holograms.RemoveHologram(ctx, m)
}

// refreshHologram обновляет только уже показанную голограмму.
// Первый сброс при создании шахты происходит до CreateHologram.
func (s *Service) refreshHologram(ctx context.Context, m *mine.Mine) {
	if !s.hologramsEnabled {
		return
	}
	s.hologramMu.Lock()
	_, ok := s.shown[m.ID()]
	s.hologramMu.Unlock()
	if ok {
		s.holograms.RefreshHologram(ctx, m)
	}
}

func (s *Service) onReset(m *mine.Mine) {
	metrics.ResetsTotal.WithLabelValues(m.Template()).Inc()
	s.log.Debug("🔄 Сброс шахты %s", m)

	ctx := context.Background()
	if s.resets != nil {
		s.resets.MineReset(ctx, m)
	}
	s.refreshHologram(ctx, m)
}

// Template шаблон по имени
func (s *Service) Template(name string) (mine.Template, bool) {
	t, ok := s.templates[name]
	return t, ok
}

// TemplateNames отсортированные имена шаблонов
func (s *Service) TemplateNames() []string {
	names := make([]string, 0, len(s.templates))
	for name := range s.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateMine создаёт шахту под точкой origin, ставит блок активации,
// голограмму и сообщает игроку
func (s *Service) CreateMine(ctx context.Context, origin world.Position, templateName string, actor mine.Owner) (_ *mine.Mine, err error) {
	ctx, span := observability.StartSpan(ctx, "plotmines.CreateMine",
		attribute.String("mine.template", templateName),
		attribute.String("mine.owner", actor.Name),
	)
	defer func() { observability.EndSpan(span, err) }()

	t, ok := s.templates[templateName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, templateName)
	}

	m, err := s.registry.Create(ctx, origin, t, actor)
	if err != nil {
		return nil, err
	}

	s.world.SetBlock(m.InteractionBlock(), t.InteractionBlock)

	s.showHologram(ctx, m)
	if s.messenger != nil {
		s.messenger.MineCreated(ctx, actor, m)
	}
	return m, nil
}

// DeleteMine удаляет шахту по id. Неизвестный или некорректный id
// сообщается игроку и возвращается как registry.ErrNotFound.
// Блок активации убирается на следующем тике.
func (s *Service) DeleteMine(ctx context.Context, requestedID string, actor mine.Owner) (err error) {
	ctx, span := observability.StartSpan(ctx, "plotmines.DeleteMine", attribute.String("mine.id", requestedID))
	defer func() { observability.EndSpan(span, err) }()

	id, err := uuid.Parse(requestedID)
	if err != nil {
		s.notFound(ctx, actor, requestedID)
		return fmt.Errorf("%w: %q", registry.ErrNotFound, requestedID)
	}

	m, err := s.registry.Delete(ctx, id)
	if m == nil {
		if errors.Is(err, registry.ErrNotFound) {
			s.notFound(ctx, actor, requestedID)
		}
		return err
	}

	if s.messenger != nil {
		s.messenger.MineDeleted(ctx, actor, m)
	}

	marker := m.InteractionBlock()
	s.sched.Schedule(1, func() {
		s.world.SetBlock(marker, world.Air)
	})

	s.hideHologram(ctx, m)
	return err
}

func (s *Service) notFound(ctx context.Context, actor mine.Owner, requestedID string) {
	s.log.Warn("⚠️ %s: шахта %s не найдена", actor.Name, requestedID)
	if s.messenger != nil {
		s.messenger.MineNotFound(ctx, actor, requestedID)
	}
}

// HandleBlockBreak учитывает добытый блок в шахте, содержащей pos.
// Пустые клетки не считаются. Вне шахт возвращает registry.ErrNotFound.
func (s *Service) HandleBlockBreak(ctx context.Context, pos world.Position) (BreakResult, error) {
	m, ok := s.registry.FindAt(pos)
	if !ok {
		return BreakResult{}, fmt.Errorf("%w: нет шахты в точке %s", registry.ErrNotFound, pos)
	}

	res := BreakResult{MineID: m.ID()}
	if s.world.GetBlockMaterial(pos).IsAir() {
		res.Percentage = m.Percentage()
		return res, nil
	}

	s.world.SetBlock(pos, world.Air)
	reset, err := m.RecordDepletion(1)
	if err != nil {
		return res, err
	}
	res.Counted = true
	res.Reset = reset
	res.Percentage = m.Percentage()

	if !reset {
		s.refreshHologram(ctx, m)
	}
	return res, nil
}

// ResetMine ручной сброс шахты
func (s *Service) ResetMine(ctx context.Context, id uuid.UUID) (err error) {
	_, span := observability.StartSpan(ctx, "plotmines.ResetMine", attribute.String("mine.id", id.String()))
	defer func() { observability.EndSpan(span, err) }()

	m, ok := s.registry.Find(id)
	if !ok {
		return fmt.Errorf("%w: %s", registry.ErrNotFound, id)
	}
	return m.Reset()
}

// Mine шахта по id
func (s *Service) Mine(id uuid.UUID) (*mine.Mine, bool) {
	return s.registry.Find(id)
}

// Mines все шахты, упорядоченные по id
func (s *Service) Mines() []*mine.Mine {
	return s.registry.All()
}
