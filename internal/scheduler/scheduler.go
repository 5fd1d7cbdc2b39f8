package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/annel0/plotmines/internal/logging"
	"github.com/annel0/plotmines/internal/metrics"
)

// DefaultTPS частота тиков хоста
const DefaultTPS = 20

// ErrStopped планировщик остановлен
var ErrStopped = errors.New("scheduler stopped")

// Task единица отложенной работы
type Task func()

type entry struct {
	due  uint64
	seq  uint64
	task Task
}

type taskQueue []*entry

func (q taskQueue) Len() int { return len(q) }
func (q taskQueue) Less(i, j int) bool {
	if q[i].due != q[j].due {
		return q[i].due < q[j].due
	}
	return q[i].seq < q[j].seq
}
func (q taskQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *taskQueue) Push(x interface{}) { *q = append(*q, x.(*entry)) }
func (q *taskQueue) Pop() interface{} {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}

// Scheduler очередь отложенных задач, которую разбирает цикл тиков хоста.
// Все задачи выполняются в горутине, вызывающей Tick, поэтому запись блоков
// из задач не пересекается с другими мутациями мира.
type Scheduler struct {
	mu      sync.Mutex
	tick    uint64
	seq     uint64
	queue   taskQueue
	stopped bool
}

// New создаёт пустой планировщик
func New() *Scheduler {
	return &Scheduler{}
}

// Schedule ставит задачу через delay тиков. Задача никогда не выполняется
// внутри вызова Schedule: delay <= 0 означает следующий тик.
func (s *Scheduler) Schedule(delay int, task Task) {
	if task == nil {
		return
	}
	if delay < 1 {
		delay = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	heap.Push(&s.queue, &entry{due: s.tick + uint64(delay), seq: s.seq, task: task})
	metrics.SchedulerPending.Set(float64(len(s.queue)))
}

// Tick продвигает счётчик тиков и выполняет созревшие задачи в порядке
// постановки. Задачи, поставленные во время выполнения, ждут следующего тика.
// Возвращает количество выполненных задач.
func (s *Scheduler) Tick() int {
	s.mu.Lock()
	s.tick++
	now := s.tick
	var due []Task
	for len(s.queue) > 0 && s.queue[0].due <= now {
		due = append(due, heap.Pop(&s.queue).(*entry).task)
	}
	metrics.SchedulerPending.Set(float64(len(s.queue)))
	s.mu.Unlock()

	for _, task := range due {
		s.runTask(task)
	}
	return len(due)
}

func (s *Scheduler) runTask(task Task) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("❌ Паника в отложенной задаче: %v", r)
		}
	}()
	task()
}

// Call выполняет fn в горутине тиков и ждёт результата.
// Используется внешними горутинами (HTTP), которым нужно мутировать мир.
// Если ctx завершён к моменту тика, fn не выполняется.
func (s *Scheduler) Call(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return ErrStopped
	}

	done := make(chan error, 1)
	s.Schedule(0, func() {
		if err := ctx.Err(); err != nil {
			done <- err
			return
		}
		done <- fn()
	})

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CurrentTick номер текущего тика
func (s *Scheduler) CurrentTick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// Pending количество задач в очереди
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Run крутит цикл тиков с частотой tps до отмены контекста
func (s *Scheduler) Run(ctx context.Context, tps int) {
	if tps <= 0 {
		tps = DefaultTPS
	}
	ticker := time.NewTicker(time.Second / time.Duration(tps))
	defer ticker.Stop()

	logging.Info("⏱️ Цикл тиков запущен (%d TPS)", tps)
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.stopped = true
			s.mu.Unlock()
			logging.Info("⏱️ Цикл тиков остановлен на тике %d", s.CurrentTick())
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}
