package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/plotmines/internal/api"
	"github.com/annel0/plotmines/internal/config"
	"github.com/annel0/plotmines/internal/eventbus"
	"github.com/annel0/plotmines/internal/logging"
	"github.com/annel0/plotmines/internal/observability"
	"github.com/annel0/plotmines/internal/plotmines"
	"github.com/annel0/plotmines/internal/scheduler"
	"github.com/annel0/plotmines/internal/storage"
	"github.com/annel0/plotmines/internal/world"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

const serviceName = "plotmines"

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (иначе PLOTMINES_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	// === ЛОГИРОВАНИЕ ===
	level := logging.ParseLevel(cfg.Logging.Level)
	if cfg.Logging.File {
		if err := logging.InitDefaultLogger(serviceName); err != nil {
			log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
		}
		logging.Default().SetLevels(level, logging.TRACE)
	} else {
		logging.SetDefault(logging.NewWriterLogger(serviceName, os.Stdout, level))
	}
	defer logging.CloseDefaultLogger()
	defer func() {
		if err := logging.GetLoggerManager().CloseAll(); err != nil {
			log.Printf("ошибка закрытия логгеров: %v", err)
		}
	}()

	logging.Info("⛏️ Запуск сервиса шахт на участках...")

	if err := run(cfg, level); err != nil {
		logging.Error("❌ %v", err)
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
	logging.Info("👋 Сервис успешно остановлен")
}

func componentLogger(cfg *config.Config, component string, level logging.LogLevel) *logging.Logger {
	if !cfg.Logging.File {
		return logging.NewWriterLogger(component, os.Stdout, level)
	}
	l := logging.GetComponentLogger(component)
	l.SetLevels(level, logging.TRACE)
	return l
}

func run(cfg *config.Config, level logging.LogLevel) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// === ТЕЛЕМЕТРИЯ ===
	shutdownTelemetry, err := observability.InitTelemetry(ctx, serviceName, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("телеметрия: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logging.Warn("⚠️ Ошибка остановки телеметрии: %v", err)
		}
	}()

	// === ХРАНИЛИЩЕ ===
	store, err := storage.Open(cfg.Storage)
	if err != nil {
		return fmt.Errorf("хранилище: %w", err)
	}
	defer store.Close()
	logging.Info("💾 Хранилище шахт: %s", cfg.Storage.Backend)

	templates, err := cfg.MineTemplates()
	if err != nil {
		return err
	}

	// === ШИНА СОБЫТИЙ ===
	bus, err := openBus(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("шина событий: %w", err)
	}
	defer bus.Close()

	if _, err := eventbus.StartLoggingListener(bus); err != nil {
		return err
	}

	exporter := eventbus.NewMetricsExporter(bus, prometheus.DefaultRegisterer)
	metricsAddr := fmt.Sprintf(":%d", cfg.Server.GetMetricsPort())
	exporter.StartHTTP(metricsAddr)
	defer exporter.Stop()

	var webhooks *api.OutboundWebhookManager
	if len(cfg.Webhooks) > 0 {
		webhooks = api.NewOutboundWebhookManager(serverID(), toOutboundWebhooks(cfg.Webhooks))
		if err := webhooks.Attach(bus); err != nil {
			return err
		}
		defer webhooks.Close()
		logging.Info("🔗 Исходящих webhook'ов: %d", len(cfg.Webhooks))
	}

	// === МИР И СЕРВИС ШАХТ ===
	sched := scheduler.New()
	blocks := world.NewMemoryWorld()
	publisher := eventbus.NewPublisher(bus, serviceName)

	svc := plotmines.New(plotmines.Options{
		World:             blocks,
		Store:             store,
		Scheduler:         sched,
		Logger:            componentLogger(cfg, "registry", level),
		Messenger:         eventbus.NewMessenger(bus, serviceName),
		Holograms:         eventbus.NewHolograms(bus, serviceName),
		Resets:            publisher,
		Templates:         templates,
		HologramsEnabled:  cfg.Holograms.Enabled,
		StartupResetDelay: cfg.Server.GetStartupResetTicks(),
	})

	if err := svc.Init(ctx); err != nil {
		// Повреждённое состояние не останавливает сервис: реестр пуст
		if !errors.Is(err, storage.ErrCorruptState) {
			return fmt.Errorf("загрузка шахт: %w", err)
		}
		logging.Error("❌ Состояние шахт повреждено, старт с пустым реестром: %v", err)
	}
	logging.Info("✅ Загружено шахт: %d", svc.Registry().Count())

	// === ЦИКЛ ТИКОВ ===
	tickDone := make(chan struct{})
	go func() {
		defer close(tickDone)
		sched.Run(ctx, cfg.Server.GetTPS())
	}()

	// === REST API ===
	restPort := fmt.Sprintf(":%d", cfg.Server.GetHTTPPort())
	server := api.NewRestServer(api.Config{
		Port:      restPort,
		Service:   svc,
		Tick:      sched,
		JWTSecret: cfg.API.JWTSecret,
		Accounts:  cfg.API.Accounts,
		Webhooks:  webhooks,
		Logger:    componentLogger(cfg, "api", level),
	})

	apiErr := make(chan error, 1)
	go func() {
		apiErr <- server.Start()
	}()

	logging.Info("✅ Все сервисы запущены")
	logging.Info("   🌐 REST API: http://localhost%s", restPort)
	logging.Info("   📊 Метрики: http://localhost%s/metrics", metricsAddr)
	logging.Info("   ❤️  Health check: http://localhost%s/health", restPort)

	select {
	case <-ctx.Done():
		logging.Info("📡 Получен сигнал завершения, остановка...")
	case err := <-apiErr:
		if err != nil {
			logging.Error("❌ REST API остановлен с ошибкой: %v", err)
		}
		stop()
	}

	// === GRACEFUL SHUTDOWN ===
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logging.Debug("Остановка REST API...")
	if err := server.Stop(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}

	<-tickDone
	return nil
}

// openBus выбирает шину: JetStream при заданном URL, иначе в памяти
func openBus(cfg config.EventBusConfig) (eventbus.EventBus, error) {
	if cfg.URL == "" {
		logging.Info("📨 Шина событий в памяти")
		return eventbus.NewMemoryBus(cfg.Capacity), nil
	}
	bus, err := eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, cfg.RetentionDuration())
	if err != nil {
		return nil, err
	}
	logging.Info("📨 Шина событий JetStream: %s", cfg.URL)
	return bus, nil
}

func toOutboundWebhooks(list []config.WebhookConfig) []api.OutboundWebhook {
	out := make([]api.OutboundWebhook, 0, len(list))
	for _, w := range list {
		out = append(out, api.OutboundWebhook{
			Name:       w.Name,
			URL:        w.URL,
			Secret:     w.Secret,
			Events:     w.Events,
			Timeout:    w.Timeout,
			RetryCount: w.RetryCount,
		})
	}
	return out
}

// serverID идентификатор экземпляра для заголовка X-Server-ID
func serverID() string {
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return uuid.NewString()
}
