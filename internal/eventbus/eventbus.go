package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrClosed шина уже закрыта
var ErrClosed = errors.New("event bus closed")

// Типы событий шахт
const (
	EventMineCreated     = "MineCreated"
	EventMineDeleted     = "MineDeleted"
	EventMineNotFound    = "MineNotFound"
	EventMineReset       = "MineReset"
	EventHologramCreate  = "HologramCreate"
	EventHologramRemove  = "HologramRemove"
	EventHologramRefresh = "HologramRefresh"
)

// Envelope описывает универсальный контейнер события.
type Envelope struct {
	ID            string            `json:"id"`                       // UUID события
	Timestamp     time.Time         `json:"timestamp"`                // Время создания (UTC)
	Source        string            `json:"source"`                   // Имя сервиса-источника
	EventType     string            `json:"event_type"`               // MineCreated, HologramRefresh…
	Version       int               `json:"version"`                  // Схема полезной нагрузки
	CorrelationID string            `json:"correlation_id,omitempty"` // Для связывания цепочек
	Priority      int               `json:"priority"`                 // 0=Low … 9=Critical (для backpressure)
	Payload       json.RawMessage   `json:"payload"`                  // JSON полезной нагрузки
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewEnvelope сериализует payload и заполняет служебные поля
func NewEnvelope(source, eventType string, priority int, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("сериализация события %s: %w", eventType, err)
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		EventType: eventType,
		Version:   1,
		Priority:  priority,
		Payload:   data,
	}, nil
}

// Decode разбирает полезную нагрузку в v
func (e *Envelope) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// Filter позволяет подписаться только на нужные события.
type Filter struct {
	Types   []string // Если пусто - все типы.
	Sources []string // Если пусто - все источники.
}

// Subscription возвращается при подписке; позволяет отписаться.
type Subscription interface {
	Unsubscribe()
}

// Handler потребляет события.
type Handler func(ctx context.Context, ev *Envelope)

// Stats агрегированные метрики шины.
type Stats struct {
	Published uint64
	Consumed  uint64
	Dropped   uint64
	InFlight  int
}

// EventBus абстракция шины событий (память или JetStream).
type EventBus interface {
	Publish(ctx context.Context, ev *Envelope) error
	Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error)
	Metrics() Stats
	Close() error
}

//================ In-Memory implementation =================//

type memoryBus struct {
	mu          sync.RWMutex // подписчики
	subscribers map[int]subscriber
	nextID      int

	statsMu sync.Mutex
	stats   Stats

	sendMu sync.RWMutex // закрытие буфера
	closed bool
	buffer chan *Envelope
	done   chan struct{}
}

type subscriber struct {
	filter  Filter
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewMemoryBus создаёт in-memory шину с указанным буфером.
// Подписчики вызываются последовательно из одной горутины доставки.
func NewMemoryBus(capacity int) EventBus {
	if capacity <= 0 {
		capacity = 1024
	}
	mb := &memoryBus{
		subscribers: make(map[int]subscriber),
		buffer:      make(chan *Envelope, capacity),
		done:        make(chan struct{}),
	}
	go mb.dispatchLoop()
	return mb
}

func (mb *memoryBus) Publish(ctx context.Context, ev *Envelope) error {
	mb.sendMu.RLock()
	defer mb.sendMu.RUnlock()
	if mb.closed {
		return ErrClosed
	}

	select {
	case mb.buffer <- ev:
		mb.count(&mb.stats.Published)
		return nil
	default:
		// Буфер заполнен - дропаём низкий приоритет (<5)
		if ev.Priority < 5 {
			mb.count(&mb.stats.Dropped)
			return nil
		}
		// Для High-priority блокируем до освобождения места или отмены контекста
		select {
		case mb.buffer <- ev:
			mb.count(&mb.stats.Published)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (mb *memoryBus) count(counter *uint64) {
	mb.statsMu.Lock()
	*counter++
	mb.statsMu.Unlock()
}

func (mb *memoryBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	mb.sendMu.RLock()
	closed := mb.closed
	mb.sendMu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	mb.mu.Lock()
	id := mb.nextID
	mb.nextID++
	cctx, cancel := context.WithCancel(ctx)
	mb.subscribers[id] = subscriber{filter: f, handler: h, ctx: cctx, cancel: cancel}
	mb.mu.Unlock()

	return &memSub{bus: mb, id: id}, nil
}

func (mb *memoryBus) Metrics() Stats {
	mb.statsMu.Lock()
	s := mb.stats
	mb.statsMu.Unlock()
	s.InFlight = len(mb.buffer)
	return s
}

// Close прекращает приём событий и дожидается доставки уже принятых
func (mb *memoryBus) Close() error {
	mb.sendMu.Lock()
	if mb.closed {
		mb.sendMu.Unlock()
		return nil
	}
	mb.closed = true
	close(mb.buffer)
	mb.sendMu.Unlock()

	<-mb.done
	return nil
}

// dispatchLoop рассылает события подписчикам.
func (mb *memoryBus) dispatchLoop() {
	defer close(mb.done)

	for ev := range mb.buffer {
		mb.mu.RLock()
		subs := make([]subscriber, 0, len(mb.subscribers))
		for _, sub := range mb.subscribers {
			subs = append(subs, sub)
		}
		mb.mu.RUnlock()

		for _, sub := range subs {
			if !matchFilter(ev, sub.filter) {
				continue
			}
			if sub.ctx.Err() != nil {
				continue
			}
			sub.handler(sub.ctx, ev)
			mb.count(&mb.stats.Consumed)
		}
	}
}

func matchFilter(ev *Envelope, f Filter) bool {
	match := func(val string, arr []string) bool {
		if len(arr) == 0 {
			return true
		}
		for _, v := range arr {
			if v == val {
				return true
			}
		}
		return false
	}
	return match(ev.EventType, f.Types) && match(ev.Source, f.Sources)
}

type memSub struct {
	bus *memoryBus
	id  int
}

func (s *memSub) Unsubscribe() {
	s.bus.mu.Lock()
	if sub, ok := s.bus.subscribers[s.id]; ok {
		sub.cancel()
		delete(s.bus.subscribers, s.id)
	}
	s.bus.mu.Unlock()
}
