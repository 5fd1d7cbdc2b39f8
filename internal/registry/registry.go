package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/annel0/plotmines/internal/geometry"
	"github.com/annel0/plotmines/internal/logging"
	"github.com/annel0/plotmines/internal/metrics"
	"github.com/annel0/plotmines/internal/mine"
	"github.com/annel0/plotmines/internal/scheduler"
	"github.com/annel0/plotmines/internal/storage"
	"github.com/annel0/plotmines/internal/world"
	"github.com/google/uuid"
)

// ErrNotFound шахты с таким id нет в реестре
var ErrNotFound = errors.New("mine not found")

// DefaultStartupResetDelay задержка массового сброса после загрузки (1 секунда при 20 TPS)
const DefaultStartupResetDelay = 20

// Deferrer очередь отложенных задач, исполняемых в тиковом цикле
type Deferrer interface {
	Schedule(delay int, task scheduler.Task)
}

// Options зависимости реестра
type Options struct {
	Store             storage.MineStore
	Filler            mine.Filler
	Scheduler         Deferrer
	Logger            *logging.Logger // nil - логгер по умолчанию
	StartupResetDelay int             // в тиках; 0 - DefaultStartupResetDelay

	// OnReset вызывается после каждого сброса любой шахты.
	// При создании шахты вызывается под блокировкой реестра и не должен обращаться к реестру.
	OnReset mine.ResetHook
}

// Registry набор всех шахт. Все изменения проходят через одну блокировку.
type Registry struct {
	mu    sync.RWMutex
	mines map[uuid.UUID]*mine.Mine

	store   storage.MineStore
	filler  mine.Filler
	sched   Deferrer
	log     *logging.Logger
	delay   int
	onReset mine.ResetHook
}

// New создаёт пустой реестр
func New(opts Options) *Registry {
	log := opts.Logger
	if log == nil {
		log = logging.Default()
	}
	delay := opts.StartupResetDelay
	if delay <= 0 {
		delay = DefaultStartupResetDelay
	}

	return &Registry{
		mines:   make(map[uuid.UUID]*mine.Mine),
		store:   opts.Store,
		filler:  opts.Filler,
		sched:   opts.Scheduler,
		log:     log,
		delay:   delay,
		onReset: opts.OnReset,
	}
}

// Init загружает шахты из хранилища и планирует их сброс.
// Повреждённое состояние даёт пустой реестр и ошибку, оборачивающую ErrCorruptState.
func (r *Registry) Init(ctx context.Context) error {
	records, err := r.store.Load(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrCorruptState) {
			r.log.Error("❌ Сохранённые шахты повреждены, реестр пуст: %v", err)
			return err
		}
		return fmt.Errorf("загрузка шахт: %w", err)
	}

	loaded := make(map[uuid.UUID]*mine.Mine, len(records))
	for _, rec := range records {
		m, err := mine.FromRecord(rec)
		if err != nil {
			r.log.Error("❌ Повреждённая запись шахты %s, реестр пуст: %v", rec.ID, err)
			return fmt.Errorf("%w: %v", storage.ErrCorruptState, err)
		}
		m.Attach(r.filler, r.onReset)
		loaded[m.ID()] = m
	}

	r.mu.Lock()
	r.mines = loaded
	r.mu.Unlock()
	metrics.MinesTotal.Set(float64(len(loaded)))

	r.log.Info("⛏️ Загружено шахт: %d, сброс через %d тиков", len(loaded), r.delay)
	r.sched.Schedule(r.delay, r.resetAll)
	return nil
}

// resetAll сбрасывает все шахты; ошибки отдельных шахт не прерывают обход
func (r *Registry) resetAll() {
	mines := r.All()
	failed := 0
	for _, m := range mines {
		if err := m.Reset(); err != nil {
			failed++
			r.log.Warn("⚠️ Сброс шахты %s при запуске: %v", m, err)
		}
	}
	r.log.Info("🔄 Стартовый сброс завершён: %d шахт, ошибок %d", len(mines), failed)
}

// Create создаёт шахту из шаблона в точке origin.
// Порядок: вставка, сохранение, рамка, первичный сброс. При ошибке сохранения вставка откатывается.
func (r *Registry) Create(ctx context.Context, origin world.Position, t mine.Template, owner mine.Owner) (*mine.Mine, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	volume, err := geometry.DeriveVolume(origin, t.Width, t.Depth)
	if err != nil {
		return nil, fmt.Errorf("шаблон %q: %w", t.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m := mine.New(mine.Params{
		Owner:         owner,
		Template:      t.Name,
		DisplayName:   r.displayNameLocked(owner, t),
		Volume:        volume,
		ResetPercent:  t.ResetPercent,
		ResetTeleport: ResetTeleport(origin),
		Composition:   t.Composition,
	})
	m.Attach(r.filler, r.onReset)

	r.mines[m.ID()] = m
	if err := r.persistLocked(ctx); err != nil {
		delete(r.mines, m.ID())
		return nil, err
	}
	metrics.MinesTotal.Set(float64(len(r.mines)))

	if err := m.SetBorder(t.Border); err != nil {
		return nil, err
	}
	if err := m.Reset(); err != nil {
		return nil, err
	}

	r.log.Info("⛏️ Создана шахта %s (%s, %d блоков)", m, m.Volume(), m.TotalBlocks())
	return m, nil
}

// ResetTeleport точка телепорта при сбросе: над точкой создания
func ResetTeleport(origin world.Position) world.Position {
	return origin.Offset(0.5, 2, 0.5)
}

// displayNameLocked "<владелец>'s <метка>" с суффиксом " (n)", где n - число
// существующих имён, содержащих базовое имя как подстроку
func (r *Registry) displayNameLocked(owner mine.Owner, t mine.Template) string {
	base := fmt.Sprintf("%s's %s", owner.Name, t.Label)
	dups := 0
	for _, m := range r.mines {
		if strings.Contains(m.DisplayName(), base) {
			dups++
		}
	}
	if dups > 0 {
		return fmt.Sprintf("%s (%d)", base, dups)
	}
	return base
}

// Delete сохраняет реестр без шахты, затем очищает её объём и удаляет из памяти.
// Для неизвестного id возвращает ErrNotFound, ничего не меняя.
// При ошибке сохранения шахта остаётся в реестре и в мире.
func (r *Registry) Delete(ctx context.Context, id uuid.UUID) (*mine.Mine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.mines[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	records := make([]mine.Record, 0, len(r.mines))
	for other, om := range r.mines {
		if other != id {
			records = append(records, om.Record())
		}
	}
	if err := r.saveLocked(ctx, records); err != nil {
		return nil, err
	}

	delete(r.mines, id)
	metrics.MinesTotal.Set(float64(len(r.mines)))

	if err := m.Clear(world.Air); err != nil {
		return m, err
	}

	r.log.Info("🗑️ Удалена шахта %s", m)
	return m, nil
}

func (r *Registry) persistLocked(ctx context.Context) error {
	records := make([]mine.Record, 0, len(r.mines))
	for _, m := range r.mines {
		records = append(records, m.Record())
	}
	return r.saveLocked(ctx, records)
}

func (r *Registry) saveLocked(ctx context.Context, records []mine.Record) error {
	start := time.Now()
	err := r.store.SaveAll(ctx, records)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.PersistDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())

	if err != nil {
		r.log.Error("❌ Ошибка сохранения шахт: %v", err)
		return fmt.Errorf("сохранение шахт: %w", err)
	}
	return nil
}

// Find шахта по id
func (r *Registry) Find(id uuid.UUID) (*mine.Mine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.mines[id]
	return m, ok
}

// All все шахты, упорядоченные по id
func (r *Registry) All() []*mine.Mine {
	r.mu.RLock()
	out := make([]*mine.Mine, 0, len(r.mines))
	for _, m := range r.mines {
		out = append(out, m)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID().String() < out[j].ID().String() })
	return out
}

// FindAt шахта, объём которой содержит позицию
func (r *Registry) FindAt(pos world.Position) (*mine.Mine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.mines {
		if m.Volume().Contains(pos) {
			return m, true
		}
	}
	return nil, false
}

// Count количество шахт
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.mines)
}
