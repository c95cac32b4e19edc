package logging

import (
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
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

// ParseLevel разбирает уровень из конфига ("debug", "WARN"...). Неизвестное значение = INFO.
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

// Цвета тегов уровня в консоли. fatih/color сам отключает их, если stdout не терминал.
var levelColors = map[LogLevel]*color.Color{
	TRACE: color.New(color.FgHiBlack),
	DEBUG: color.New(color.FgCyan),
	INFO:  color.New(color.FgGreen),
	WARN:  color.New(color.FgYellow),
	ERROR: color.New(color.FgRed, color.Bold),
}

// Logger логгер одного компонента: консоль + опционально файл
type Logger struct {
	component     string
	consoleLogger *log.Logger
	fileLogger    *log.Logger
	file          *os.File

	mu              sync.RWMutex
	minConsoleLevel LogLevel
	minFileLevel    LogLevel
}

var (
	// logDir задаётся в InitDefaultLogger. Пока он пуст, логгеры пишут только в консоль.
	logDir       string
	consoleLevel = INFO
	dirMu        sync.RWMutex

	defaultLogger = newConsoleLogger("default", os.Stdout)
)

func newConsoleLogger(component string, w io.Writer) *Logger {
	return &Logger{
		component:       component,
		consoleLogger:   log.New(w, "", log.LstdFlags|log.Lmicroseconds),
		minConsoleLevel: consoleLevel,
		minFileLevel:    DEBUG,
	}
}

// NewLogger создаёт логгер компонента. Файл logs/<component>_<время>.log
// открывается только если система логирования инициализирована.
func NewLogger(component string) (*Logger, error) {
	dirMu.RLock()
	dir := logDir
	level := consoleLevel
	dirMu.RUnlock()

	l := newConsoleLogger(component, os.Stdout)
	l.minConsoleLevel = level
	if dir == "" {
		return l, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("ошибка создания директории %s: %w", dir, err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	filename := filepath.Join(dir, fmt.Sprintf("%s_%s.log", component, timestamp))
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания файла логов: %w", err)
	}

	l.file = file
	l.fileLogger = log.New(file, "", log.LstdFlags|log.Lmicroseconds)
	return l, nil
}

// NewWriterLogger создаёт логгер поверх произвольного writer (для тестов)
func NewWriterLogger(component string, w io.Writer, level LogLevel) *Logger {
	l := newConsoleLogger(component, w)
	l.minConsoleLevel = level
	return l
}

// SetLevels меняет пороги вывода в консоль и файл
func (l *Logger) SetLevels(console, file LogLevel) {
	l.mu.Lock()
	l.minConsoleLevel = console
	l.minFileLevel = file
	l.mu.Unlock()
}

// Close закрывает файл логов, если он был открыт
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.fileLogger = nil
	return err
}

func (l *Logger) Trace(format string, args ...interface{}) { l.log(TRACE, format, args...) }
func (l *Logger) Debug(format string, args ...interface{}) { l.log(DEBUG, format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.log(INFO, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.log(WARN, format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.log(ERROR, format, args...) }

func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.mu.RLock()
	toConsole := level >= l.minConsoleLevel
	toFile := l.fileLogger != nil && level >= l.minFileLevel
	l.mu.RUnlock()
	if !toConsole && !toFile {
		return
	}

	msg := fmt.Sprintf(format, args...)
	if toFile {
		l.fileLogger.Printf("[%s] [%s] %s", level, l.component, msg)
	}
	if toConsole {
		tag := levelColors[level].Sprintf("[%s]", level)
		l.consoleLogger.Printf("%s [%s] %s", tag, l.component, msg)
	}
}

// InitDefaultLogger включает запись в файлы logs/ и пересоздаёт логгер по умолчанию
func InitDefaultLogger(component string) error {
	return InitDefaultLoggerWith(component, "logs", INFO)
}

// InitDefaultLoggerWith как InitDefaultLogger, но с явной директорией и уровнем консоли
func InitDefaultLoggerWith(component, dir string, level LogLevel) error {
	dirMu.Lock()
	logDir = dir
	consoleLevel = level
	dirMu.Unlock()

	l, err := NewLogger(component)
	if err != nil {
		return err
	}
	defaultLogger = l
	return nil
}

// CloseDefaultLogger закрывает логгер по умолчанию и все логгеры компонентов
func CloseDefaultLogger() {
	if defaultLogger != nil {
		_ = defaultLogger.Close()
	}
	_ = Components().CloseAll()
}

// Default возвращает логгер по умолчанию
func Default() *Logger { return defaultLogger }

// Trace логирует сообщение уровня TRACE в логгер по умолчанию
func Trace(format string, args ...interface{}) { defaultLogger.Trace(format, args...) }

// Debug логирует сообщение уровня DEBUG
func Debug(format string, args ...interface{}) { defaultLogger.Debug(format, args...) }

// Info логирует сообщение уровня INFO
func Info(format string, args ...interface{}) { defaultLogger.Info(format, args...) }

// Warn логирует сообщение уровня WARN
func Warn(format string, args ...interface{}) { defaultLogger.Warn(format, args...) }

// Error логирует сообщение уровня ERROR
func Error(format string, args ...interface{}) { defaultLogger.Error(format, args...) }

// HexDump создает hex дамп данных (не более 256 байт)
func HexDump(data []byte) string {
	if len(data) == 0 {
		return "No data"
	}
	size := len(data)
	if size > 256 {
		size = 256
	}
	return hex.Dump(data[:size])
}

// LogProtocolError логирует ошибку разбора пакета вместе с его дампом
func LogProtocolError(l *Logger, peer string, err error, data []byte) {
	l.Error("Ошибка протокола от %s: %v", peer, err)
	if len(data) > 0 {
		l.Debug("Сырые данные (%d байт):\n%s", len(data), HexDump(data))
	}
}
