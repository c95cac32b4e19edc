package logging

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Registry держит по одному логгеру на компонент (world, sync, network...)
// и пороги, заданные в конфиге для отдельных компонентов.
type Registry struct {
	mu      sync.RWMutex
	loggers map[string]*Logger
	// levels переживают логгер: порог задаётся до того, как компонент создал свой логгер
	levels map[string]LogLevel
}

var (
	components     *Registry
	componentsOnce sync.Once
)

// Components возвращает общий реестр логгеров процесса
func Components() *Registry {
	componentsOnce.Do(func() {
		components = newRegistry()
	})
	return components
}

func newRegistry() *Registry {
	return &Registry{
		loggers: make(map[string]*Logger),
		levels:  make(map[string]LogLevel),
	}
}

// Get возвращает логгер компонента и создаёт его при первом обращении
func (r *Registry) Get(component string) (*Logger, error) {
	r.mu.RLock()
	l, ok := r.loggers[component]
	r.mu.RUnlock()
	if ok {
		return l, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.loggers[component]; ok {
		return l, nil
	}

	l, err := NewLogger(component)
	if err != nil {
		return nil, fmt.Errorf("логгер компонента %s: %w", component, err)
	}
	if level, ok := r.levels[component]; ok {
		l.SetLevels(level, min(level, DEBUG))
	}
	r.loggers[component] = l
	return l, nil
}

// Logger как Get, но при ошибке файла отдаёт консольный логгер
func (r *Registry) Logger(component string) *Logger {
	l, err := r.Get(component)
	if err == nil {
		return l
	}
	fallback := newConsoleLogger(component, defaultLogger.consoleLogger.Writer())
	fallback.minFileLevel = ERROR
	return fallback
}

// SetLevel задаёт порог компонента. В файл уходит не меньше, чем DEBUG.
func (r *Registry) SetLevel(component string, level LogLevel) {
	r.mu.Lock()
	r.levels[component] = level
	l := r.loggers[component]
	r.mu.Unlock()

	if l != nil {
		l.SetLevels(level, min(level, DEBUG))
	}
}

// ApplyLevels применяет пороги из конфига вида {"sync": "debug", "network": "warn"}
func (r *Registry) ApplyLevels(levels map[string]string) error {
	var bad []string
	for component, raw := range levels {
		level, ok := lookupLevel(raw)
		if !ok {
			bad = append(bad, component+"="+raw)
			continue
		}
		r.SetLevel(component, level)
	}
	if len(bad) > 0 {
		slices.Sort(bad)
		return fmt.Errorf("неизвестный уровень логирования: %s", strings.Join(bad, ", "))
	}
	return nil
}

// Levels описание вида "sync=DEBUG" для каждого созданного логгера
func (r *Registry) Levels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.loggers))
	for name, l := range r.loggers {
		l.mu.RLock()
		out = append(out, name+"="+l.minConsoleLevel.String())
		l.mu.RUnlock()
	}
	slices.Sort(out)
	return out
}

// CloseAll закрывает файлы всех логгеров. Пороги сохраняются.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, l := range r.loggers {
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("закрытие логгера %s: %w", name, err)
		}
	}
	clear(r.loggers)
	return firstErr
}

func lookupLevel(s string) (LogLevel, bool) {
	level := ParseLevel(s)
	if level == INFO && !strings.EqualFold(strings.TrimSpace(s), "info") {
		return INFO, false
	}
	return level, true
}

// GetComponentLogger логгер компонента из общего реестра
func GetComponentLogger(component string) *Logger {
	return Components().Logger(component)
}

func GetWorldLogger() *Logger   { return GetComponentLogger("world") }
func GetMeshLogger() *Logger    { return GetComponentLogger("mesh") }
func GetNetworkLogger() *Logger { return GetComponentLogger("network") }
func GetStorageLogger() *Logger { return GetComponentLogger("storage") }
func GetSyncLogger() *Logger    { return GetComponentLogger("sync") }
