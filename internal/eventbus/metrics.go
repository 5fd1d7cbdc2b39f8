package eventbus

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/annel0/plotmines/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsExporter периодически переносит Stats шины в Prometheus
// и при необходимости поднимает HTTP-эндпоинт /metrics.
type MetricsExporter struct {
	bus      EventBus
	interval time.Duration
	quit     chan struct{}
	done     chan struct{}
	server   *http.Server
	started  bool

	published prometheus.Counter
	consumed  prometheus.Counter
	dropped   prometheus.Counter
	inflight  prometheus.Gauge
}

// NewMetricsExporter создаёт экспортер и регистрирует метрики в reg
// (nil означает глобальный регистр). Повторная регистрация переиспользует
// уже зарегистрированные коллекторы.
func NewMetricsExporter(bus EventBus, reg prometheus.Registerer) *MetricsExporter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	me := &MetricsExporter{
		bus:      bus,
		interval: time.Second,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	me.published = registerCounter(reg, "messages_published_total", "Общее число опубликованных событий шахт.")
	me.consumed = registerCounter(reg, "messages_consumed_total", "Общее число доставленных подписчикам событий.")
	me.dropped = registerCounter(reg, "messages_dropped_total", "Событий, отброшенных из-за ошибок или back-pressure.")

	inflight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "plotmines",
		Subsystem: "eventbus",
		Name:      "messages_inflight",
		Help:      "Количество событий в очереди (не доставленных).",
	})
	if err := reg.Register(inflight); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			inflight = are.ExistingCollector.(prometheus.Gauge)
		}
	}
	me.inflight = inflight

	return me
}

func registerCounter(reg prometheus.Registerer, name, help string) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "plotmines",
		Subsystem: "eventbus",
		Name:      name,
		Help:      help,
	})
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector.(prometheus.Counter)
		}
	}
	return c
}

// Start запускает фоновое обновление метрик
func (m *MetricsExporter) Start() {
	if m.started {
		return
	}
	m.started = true
	go m.loop()
}

// StartHTTP запускает HTTP-эндпоинт Prometheus на адресе (например, ":2112")
// и фоновое обновление метрик. Метод неблокирующий.
func (m *MetricsExporter) StartHTTP(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	m.server = &http.Server{Addr: addr, Handler: mux}

	go func() {
		logging.Info("📈 Prometheus /metrics доступен по адресу %s", addr)
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("Ошибка Prometheus HTTP сервера: %v", err)
		}
	}()
	m.Start()
}

// Stop останавливает обновление метрик и HTTP-эндпоинт
func (m *MetricsExporter) Stop() {
	if m.started {
		close(m.quit)
		<-m.done
	}

	if m.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.server.Shutdown(ctx)
	}
}

func (m *MetricsExporter) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	defer close(m.done)

	var prev Stats
	for {
		select {
		case <-ticker.C:
			prev = m.collect(prev)
		case <-m.quit:
			m.collect(prev)
			return
		}
	}
}

// collect переносит приращения счётчиков с прошлого снимка
func (m *MetricsExporter) collect(prev Stats) Stats {
	stats := m.bus.Metrics()

	if d := stats.Published - prev.Published; d > 0 {
		m.published.Add(float64(d))
	}
	if d := stats.Consumed - prev.Consumed; d > 0 {
		m.consumed.Add(float64(d))
	}
	if d := stats.Dropped - prev.Dropped; d > 0 {
		m.dropped.Add(float64(d))
	}
	m.inflight.Set(float64(stats.InFlight))

	return stats
}
