package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LogLevel определяет уровни логирования
type LogLevel int

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
)

// String возвращает строковое представление уровня логирования
func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel разбирает уровень из конфигурации. Неизвестное значение даёт INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return TRACE
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Logger пишет в консоль и (опционально) в файл компонента.
type Logger struct {
	component       string
	mu              sync.Mutex
	consoleLogger   *log.Logger
	fileLogger      *log.Logger
	file            *os.File
	minConsoleLevel LogLevel
	minFileLevel    LogLevel
}

// LogsDir каталог для файлов логов
var LogsDir = "logs"

var (
	defaultMu     sync.RWMutex
	defaultLogger = newConsoleLogger("default", os.Stdout)
)

func newConsoleLogger(component string, w io.Writer) *Logger {
	return &Logger{
		component:       component,
		consoleLogger:   log.New(w, "", log.LstdFlags),
		minConsoleLevel: INFO,
		minFileLevel:    ERROR,
	}
}

// NewLogger создаёт логгер компонента с файлом logs/<component>_<timestamp>.log
func NewLogger(component string) (*Logger, error) {
	if err := os.MkdirAll(LogsDir, 0755); err != nil {
		return nil, fmt.Errorf("ошибка создания директории %s: %w", LogsDir, err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	filename := filepath.Join(LogsDir, fmt.Sprintf("%s_%s.log", component, timestamp))

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания файла логов: %w", err)
	}

	l := newConsoleLogger(component, os.Stdout)
	l.fileLogger = log.New(file, "", log.LstdFlags)
	l.file = file
	l.minFileLevel = TRACE
	return l, nil
}

// NewWriterLogger создаёт логгер без файла, пишущий в w (для тестов и встраивания).
func NewWriterLogger(component string, w io.Writer, level LogLevel) *Logger {
	l := newConsoleLogger(component, w)
	l.minConsoleLevel = level
	return l
}

// SetLevels задаёт минимальные уровни для консоли и файла
func (l *Logger) SetLevels(consoleLevel, fileLevel LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minConsoleLevel = consoleLevel
	l.minFileLevel = fileLevel
}

// Close закрывает файл логов, если он есть
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.fileLogger = nil
	return err
}

func (l *Logger) logf(level LogLevel, format string, args ...interface{}) {
	message := fmt.Sprintf("[%s] %s", level.String(), fmt.Sprintf(format, args...))

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fileLogger != nil && level >= l.minFileLevel {
		l.fileLogger.Println(message)
	}
	if level >= l.minConsoleLevel {
		l.consoleLogger.Println(message)
	}
}

func (l *Logger) Trace(format string, args ...interface{}) { l.logf(TRACE, format, args...) }
func (l *Logger) Debug(format string, args ...interface{}) { l.logf(DEBUG, format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.logf(INFO, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.logf(WARN, format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.logf(ERROR, format, args...) }

// InitDefaultLogger инициализирует глобальный логгер с файлом компонента
func InitDefaultLogger(component string) error {
	l, err := NewLogger(component)
	if err != nil {
		return err
	}
	SetDefault(l)
	return nil
}

// SetDefault заменяет глобальный логгер
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// Default возвращает глобальный логгер
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// CloseDefaultLogger закрывает файл глобального логгера
func CloseDefaultLogger() {
	if err := Default().Close(); err != nil {
		log.Printf("ошибка закрытия логгера: %v", err)
	}
}

// Trace логирует сообщение уровня TRACE
func Trace(format string, args ...interface{}) { Default().Trace(format, args...) }

// Debug логирует сообщение уровня DEBUG
func Debug(format string, args ...interface{}) { Default().Debug(format, args...) }

// Info логирует сообщение уровня INFO
func Info(format string, args ...interface{}) { Default().Info(format, args...) }

// Warn логирует сообщение уровня WARN
func Warn(format string, args ...interface{}) { Default().Warn(format, args...) }

// Error логирует сообщение уровня ERROR
func Error(format string, args ...interface{}) { Default().Error(format, args...) }
