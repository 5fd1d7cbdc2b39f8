package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/annel0/plotmines/internal/auth"
	"github.com/annel0/plotmines/internal/logging"
	"github.com/annel0/plotmines/internal/middleware"
	"github.com/annel0/plotmines/internal/plotmines"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Caller выполняет функцию в горутине тиков (scheduler.Scheduler)
type Caller interface {
	Call(ctx context.Context, fn func() error) error
}

// RestServer административный REST API шахт
type RestServer struct {
	router     *gin.Engine
	httpServer *http.Server
	service    *plotmines.Service
	tick       Caller
	auth       *auth.Authenticator
	accounts   auth.Accounts
	authOn     bool
	port       string
	metrics    *ServerMetrics
	webhooks   *OutboundWebhookManager
	log        *logging.Logger
	timeout    time.Duration
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port      string             // адрес для запуска сервера (":8090")
	Service   *plotmines.Service // операции над шахтами
	Tick      Caller             // горутина тиков для изменений мира
	JWTSecret string             // пусто - авторизация отключена
	Accounts  []auth.Account     // учётные записи для /api/auth/login
	Webhooks  *OutboundWebhookManager
	Logger    *logging.Logger
	Timeout   time.Duration // ожидание тика для изменяющих запросов
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) *RestServer {
	if config.Port == "" {
		config.Port = ":8090"
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	log := config.Logger
	if log == nil {
		log = logging.Default()
	}

	// Устанавливаем режим релиза для gin
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	router.Use(otelgin.Middleware("plotmines_api"))
	router.Use(middleware.NewRequestLogger(log).Handler())

	promMw := middleware.NewPrometheusMiddleware("plotmines_api")
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router)

	server := &RestServer{
		router:   router,
		service:  config.Service,
		tick:     config.Tick,
		auth:     auth.NewAuthenticator(config.JWTSecret),
		accounts: auth.NewAccounts(config.Accounts),
		authOn:   config.JWTSecret != "",
		port:     config.Port,
		metrics:  NewServerMetrics(),
		webhooks: config.Webhooks,
		log:      log,
		timeout:  config.Timeout,
	}
	if !server.authOn {
		log.Warn("⚠️ REST API: jwt_secret не задан, авторизация отключена")
	}

	server.setupRoutes()
	return server
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	api := rs.router.Group("/api")

	// Эндпоинт для аутентификации (без JWT защиты)
	api.POST("/auth/login", rs.handleLogin)

	protected := api.Group("/")
	protected.Use(rs.jwtMiddleware())
	{
		protected.GET("/status", rs.handleStatus)
		protected.GET("/templates", rs.handleTemplates)
		protected.GET("/mines", rs.handleListMines)
		protected.GET("/mines/:id", rs.handleGetMine)
		protected.POST("/mines", rs.handleCreateMine)
		protected.DELETE("/mines/:id", rs.handleDeleteMine)
		protected.POST("/events/break", rs.handleBlockBreak)

		admin := protected.Group("/")
		admin.Use(rs.adminMiddleware())
		{
			admin.POST("/mines/:id/reset", rs.handleResetMine)
			admin.GET("/webhooks", rs.handleGetWebhooks)
		}
	}

	// Health check
	rs.router.GET("/health", rs.handleHealth)
}

// Handler корневой http.Handler (для тестов и встраивания)
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// Start запускает HTTP сервер (блокирующий вызов)
func (rs *RestServer) Start() error {
	rs.httpServer = &http.Server{
		Addr:              rs.port,
		Handler:           rs.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	rs.log.Info("🌐 REST API запущен на %s", rs.port)
	if err := rs.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("REST API: %w", err)
	}
	return nil
}

// Stop останавливает HTTP сервер
func (rs *RestServer) Stop(ctx context.Context) error {
	if rs.httpServer == nil {
		return nil
	}
	return rs.httpServer.Shutdown(ctx)
}

// handleHealth обрабатывает проверку здоровья
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}
