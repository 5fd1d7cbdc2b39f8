package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/annel0/plotmines/internal/auth"
	"github.com/annel0/plotmines/internal/composition"
	"github.com/annel0/plotmines/internal/mine"
	"github.com/annel0/plotmines/internal/observability"
	"github.com/annel0/plotmines/internal/storage"
	"github.com/annel0/plotmines/internal/world"
	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервиса шахт.
type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Storage   storage.Config            `yaml:"storage"`
	EventBus  EventBusConfig            `yaml:"eventbus"`
	Holograms HologramsConfig           `yaml:"holograms"`
	API       APIConfig                 `yaml:"api"`
	Logging   LoggingConfig             `yaml:"logging"`
	Webhooks  []WebhookConfig           `yaml:"webhooks"`
	Telemetry observability.Config      `yaml:"telemetry"`
	Materials []string                  `yaml:"materials"` // дополнительные материалы сервера
	Templates map[string]TemplateConfig `yaml:"templates"`
}

type ServerConfig struct {
	HTTPPort          int `yaml:"http_port"`
	MetricsPort       int `yaml:"metrics_port"`
	TPS               int `yaml:"tps"`
	StartupResetTicks int `yaml:"startup_reset_ticks"`
}

type EventBusConfig struct {
	URL       string `yaml:"url"` // пусто - шина в памяти
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
	Capacity  int    `yaml:"capacity"`
}

type HologramsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type APIConfig struct {
	JWTSecret string         `yaml:"jwt_secret"` // пусто - маршруты без авторизации
	Accounts  []auth.Account `yaml:"accounts"`
}

// WebhookConfig исходящий webhook для событий шахт
type WebhookConfig struct {
	Name       string   `yaml:"name"`
	URL        string   `yaml:"url"`
	Secret     string   `yaml:"secret"`
	Events     []string `yaml:"events"`
	Timeout    int      `yaml:"timeout"`
	RetryCount int      `yaml:"retry_count"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  bool   `yaml:"file"`
}

// TemplateConfig шаблон шахты в YAML
type TemplateConfig struct {
	Label            string             `yaml:"label"`
	Width            int                `yaml:"width"`
	Depth            int                `yaml:"depth"`
	ResetPercent     float64            `yaml:"reset_percent"`
	Border           string             `yaml:"border"`
	InteractionBlock string             `yaml:"interaction_block"`
	Composition      map[string]float64 `yaml:"composition"`
}

// GetHTTPPort возвращает порт REST API с поддержкой fallback значений
func (s *ServerConfig) GetHTTPPort() int {
	return getPortWithEnvFallback(s.HTTPPort, "PLOTMINES_HTTP_PORT", 8090)
}

// GetMetricsPort возвращает Prometheus метрики порт с поддержкой fallback значений
func (s *ServerConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(s.MetricsPort, "PLOTMINES_METRICS_PORT", 2112)
}

// GetTPS частота тиков планировщика
func (s *ServerConfig) GetTPS() int {
	if s.TPS > 0 {
		return s.TPS
	}
	return 20
}

// GetStartupResetTicks задержка массового сброса после загрузки
func (s *ServerConfig) GetStartupResetTicks() int {
	if s.StartupResetTicks > 0 {
		return s.StartupResetTicks
	}
	return 20
}

// RetentionDuration срок хранения событий в JetStream
func (e *EventBusConfig) RetentionDuration() time.Duration {
	if e.Retention <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(e.Retention) * time.Hour
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	// Если порт задан в конфиге и больше 0, используем его
	if configPort > 0 {
		return configPort
	}

	// Пробуем прочитать из environment variable
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Default конфигурация без файла: файловое хранилище, шина в памяти, один шаблон
func Default() *Config {
	return &Config{
		Storage:   storage.DefaultConfig(),
		Holograms: HologramsConfig{Enabled: true},
		Logging:   LoggingConfig{Level: "INFO"},
		Templates: map[string]TemplateConfig{
			"STONE_MINE": {
				Width:            11,
				Depth:            11,
				ResetPercent:     50,
				Border:           string(world.Bedrock),
				InteractionBlock: string(world.Beacon),
				Composition: map[string]float64{
					string(world.Stone):   80,
					string(world.CoalOre): 15,
					string(world.IronOre): 5,
				},
			},
		},
	}
}

// Load читает YAML файл конфигурации.
// Если path == "", пытается прочитать из ENV PLOTMINES_CONFIG или возвращает Default().
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("PLOTMINES_CONFIG")
		if path == "" {
			return Default(), nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение конфигурации %s: %w", path, err)
	}
	return Parse(data)
}

// Parse разбирает YAML и проверяет шаблоны
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	cfg.Storage = storage.Config{}
	cfg.Templates = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("разбор конфигурации: %w", err)
	}

	for _, name := range cfg.Materials {
		world.RegisterMaterial(world.Material(name))
	}

	if _, err := cfg.MineTemplates(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MineTemplates собирает проверенные шаблоны шахт
func (c *Config) MineTemplates() (map[string]mine.Template, error) {
	out := make(map[string]mine.Template, len(c.Templates))
	for name, tc := range c.Templates {
		t, err := tc.toTemplate(name)
		if err != nil {
			return nil, err
		}
		out[name] = t
	}
	return out, nil
}

// TemplateNames отсортированные имена шаблонов
func (c *Config) TemplateNames() []string {
	names := make([]string, 0, len(c.Templates))
	for name := range c.Templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (tc TemplateConfig) toTemplate(name string) (mine.Template, error) {
	border, err := material(name, "border", tc.Border, world.Bedrock)
	if err != nil {
		return mine.Template{}, err
	}
	marker, err := material(name, "interaction_block", tc.InteractionBlock, world.Beacon)
	if err != nil {
		return mine.Template{}, err
	}

	recipe := make(composition.Recipe, len(tc.Composition))
	for raw, weight := range tc.Composition {
		m, err := material(name, "composition", raw, "")
		if err != nil {
			return mine.Template{}, err
		}
		recipe[m] += weight
	}

	label := tc.Label
	if label == "" {
		label = FormatLabel(name)
	}

	t := mine.Template{
		Name:             name,
		Label:            label,
		Width:            tc.Width,
		Depth:            tc.Depth,
		ResetPercent:     tc.ResetPercent,
		Border:           border,
		Composition:      recipe,
		InteractionBlock: marker,
	}
	if err := t.Validate(); err != nil {
		return mine.Template{}, err
	}
	return t, nil
}

func material(template, field, raw string, fallback world.Material) (world.Material, error) {
	if strings.TrimSpace(raw) == "" && fallback != "" {
		return fallback, nil
	}
	m := world.NormalizeMaterial(world.Material(raw))
	if !world.IsKnownMaterial(m) {
		return "", fmt.Errorf("шаблон %q: %s: неизвестный материал %q", template, field, raw)
	}
	return m, nil
}

// FormatLabel превращает ключ в читаемое имя: "DIAMOND_MINE" -> "Diamond Mine"
func FormatLabel(key string) string {
	words := strings.FieldsFunc(key, func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
	for i, w := range words {
		w = strings.ToLower(w)
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
