package storage

import (
	"fmt"
	"path/filepath"
)

// Backend тип хранилища шахт
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendFile   Backend = "file"
	BackendBadger Backend = "badger"
	BackendMySQL  Backend = "mysql"
	BackendSQLite Backend = "sqlite"
	BackendRedis  Backend = "redis"
	BackendMongo  Backend = "mongo"
)

// Config настройки хранилища шахт
type Config struct {
	Backend Backend     `yaml:"backend"`
	Path    string      `yaml:"path"` // файл (file), каталог (badger) или файл БД (sqlite)
	DSN     string      `yaml:"dsn"`  // mysql
	Redis   RedisConfig `yaml:"redis"`
	Mongo   MongoConfig `yaml:"mongo"`
}

// DefaultConfig хранит шахты в data/mines.json
func DefaultConfig() Config {
	return Config{
		Backend: BackendFile,
		Path:    filepath.Join("data", "mines.json"),
		Redis:   DefaultRedisConfig(),
	}
}

// Open создает хранилище по конфигурации
func Open(cfg Config) (MineStore, error) {
	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryMineStore(), nil
	case BackendFile, "":
		path := cfg.Path
		if path == "" {
			path = DefaultConfig().Path
		}
		return NewFileMineStore(path)
	case BackendBadger:
		path := cfg.Path
		if path == "" {
			path = "data"
		}
		return NewBadgerMineStore(path)
	case BackendMySQL:
		return NewSQLMineStore("mysql", cfg.DSN)
	case BackendSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = cfg.Path
		}
		if dsn == "" {
			dsn = filepath.Join("data", "mines.db")
		}
		return NewSQLMineStore("sqlite", dsn)
	case BackendRedis:
		return NewRedisMineStore(cfg.Redis)
	case BackendMongo:
		return NewMongoMineStore(cfg.Mongo)
	default:
		return nil, fmt.Errorf("неизвестный тип хранилища: %s", cfg.Backend)
	}
}
