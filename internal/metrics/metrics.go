package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Метрики шахт. Регистрируются в дефолтном регистре Prometheus при импорте пакета.
var (
	MinesTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "plotmines",
		Name:      "mines_total",
		Help:      "Количество активных шахт в реестре.",
	})

	ResetsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "plotmines",
		Name:      "resets_total",
		Help:      "Количество сбросов шахт.",
	}, []string{"template"})

	BlocksWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "plotmines",
		Name:      "blocks_written_total",
		Help:      "Блоков записано движком заполнения.",
	}, []string{"kind"})

	PersistDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "plotmines",
		Name:      "persist_duration_seconds",
		Help:      "Длительность сохранения реестра.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"result"})

	SchedulerPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "plotmines",
		Name:      "scheduler_pending_tasks",
		Help:      "Отложенные задачи, ожидающие своего тика.",
	})
)

// Виды записи для BlocksWritten
const (
	KindFill    = "fill"
	KindUniform = "uniform"
	KindBorder  = "border"
)

func init() {
	prometheus.MustRegister(MinesTotal, ResetsTotal, BlocksWritten, PersistDuration, SchedulerPending)
}
