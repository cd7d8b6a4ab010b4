package logging

import (
	"fmt"
	"sort"
	"sync"
)

// LoggerManager управляет логгерами отдельных компонентов. Пороги,
// заданные до создания логгера, применяются при его создании.
type LoggerManager struct {
	mu      sync.RWMutex
	loggers map[string]*Logger
	levels  map[string]LogLevel
}

var (
	globalManager *LoggerManager
	managerOnce   sync.Once
)

// GetLoggerManager возвращает глобальный менеджер логгеров
func GetLoggerManager() *LoggerManager {
	managerOnce.Do(func() {
		globalManager = &LoggerManager{
			loggers: make(map[string]*Logger),
			levels:  make(map[string]LogLevel),
		}
	})
	return globalManager
}

// GetLogger возвращает логгер для компонента, создавая его при необходимости
func (lm *LoggerManager) GetLogger(component string) *Logger {
	lm.mu.RLock()
	if logger, exists := lm.loggers[component]; exists {
		lm.mu.RUnlock()
		return logger
	}
	lm.mu.RUnlock()

	lm.mu.Lock()
	defer lm.mu.Unlock()

	// Проверяем еще раз на случай гонки
	if logger, exists := lm.loggers[component]; exists {
		return logger
	}

	logger := newLogger(component, defaultSink)
	if level, ok := lm.levels[component]; ok {
		logger.SetLevel(level)
	}
	lm.loggers[component] = logger
	return logger
}

// ListComponents возвращает отсортированный список зарегистрированных компонентов
func (lm *LoggerManager) ListComponents() []string {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	components := make([]string, 0, len(lm.loggers))
	for component := range lm.loggers {
		components = append(components, component)
	}
	sort.Strings(components)
	return components
}

// SetLogLevel устанавливает порог для компонента. Компонент может ещё
// не иметь логгера: порог запоминается до его создания.
func (lm *LoggerManager) SetLogLevel(component string, level LogLevel) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.levels[component] = level
	if logger, exists := lm.loggers[component]; exists {
		logger.SetLevel(level)
	}
}

// ApplyLevels разбирает пороги вида component -> "debug" и применяет их.
// При ошибке разбора ни один порог не меняется.
func (lm *LoggerManager) ApplyLevels(levels map[string]string) error {
	parsed := make(map[string]LogLevel, len(levels))
	for component, raw := range levels {
		level, err := ParseLevel(raw)
		if err != nil {
			return fmt.Errorf("component %s: %w", component, err)
		}
		parsed[component] = level
	}
	for component, level := range parsed {
		lm.SetLogLevel(component, level)
	}
	return nil
}

// GetComponentLogger является обёрткой над глобальным менеджером.
func GetComponentLogger(component string) *Logger {
	return GetLoggerManager().GetLogger(component)
}
