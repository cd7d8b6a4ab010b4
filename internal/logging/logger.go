package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
)

// LogLevel определяет уровни логирования
type LogLevel int32

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
	CRITICAL
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
	case CRITICAL:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel разбирает уровень из конфигурации ("debug", "WARN", "warning"...).
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return TRACE, nil
	case "debug":
		return DEBUG, nil
	case "", "info":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error", "err":
		return ERROR, nil
	case "critical", "crit", "fatal":
		return CRITICAL, nil
	default:
		return INFO, fmt.Errorf("unknown log level %q", s)
	}
}

// Options настраивает приёмники логов.
type Options struct {
	ConsoleLevel LogLevel
	FileLevel    LogLevel
	// FilePath: файл, в который дописываются логи. Пусто, если файл не нужен.
	FilePath string
	// Console: куда писать консольный вывод, по умолчанию os.Stdout.
	Console io.Writer
}

// sink хранит общие для всех компонентных логгеров приёмники.
type sink struct {
	mu           sync.RWMutex
	console      *log.Logger
	file         *log.Logger
	fh           *os.File
	consoleLevel atomic.Int32
	fileLevel    atomic.Int32
}

var defaultSink = newSink()

func newSink() *sink {
	s := &sink{console: log.New(os.Stdout, "", log.LstdFlags)}
	s.consoleLevel.Store(int32(INFO))
	s.fileLevel.Store(int32(DEBUG))
	return s
}

func (s *sink) write(level LogLevel, line string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.file != nil && level >= LogLevel(s.fileLevel.Load()) {
		s.file.Println(line)
	}
	if s.console != nil && level >= LogLevel(s.consoleLevel.Load()) {
		s.console.Println(line)
	}
}

// Logger пишет сообщения от имени одного компонента.
type Logger struct {
	component string
	out       *sink
	// minLevel — собственный порог компонента; сообщения ниже него
	// отбрасываются до приёмников.
	minLevel atomic.Int32
}

func newLogger(component string, out *sink) *Logger {
	l := &Logger{component: component, out: out}
	l.minLevel.Store(int32(TRACE))
	return l
}

// Component возвращает имя компонента логгера.
func (l *Logger) Component() string { return l.component }

// SetLevel задаёт порог компонента.
func (l *Logger) SetLevel(level LogLevel) { l.minLevel.Store(int32(level)) }

func (l *Logger) Trace(format string, args ...interface{}) { l.log(TRACE, format, args...) }
func (l *Logger) Debug(format string, args ...interface{}) { l.log(DEBUG, format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.log(INFO, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.log(WARN, format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.log(ERROR, format, args...) }

// Critical логирует нарушение внутренней согласованности. Процесс не
// завершается: решение принимает вызывающий код.
func (l *Logger) Critical(format string, args ...interface{}) { l.log(CRITICAL, format, args...) }

func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	if l == nil || level < LogLevel(l.minLevel.Load()) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if l.component != "" {
		msg = l.component + ": " + msg
	}
	l.out.write(level, fmt.Sprintf("[%s] %s", level.String(), msg))
}

// Init настраивает общие приёмники. Повторный вызов закрывает старый файл.
func Init(opts Options) error {
	var (
		fh   *os.File
		file *log.Logger
	)
	if opts.FilePath != "" {
		if dir := filepath.Dir(opts.FilePath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log file %q: %w", opts.FilePath, err)
		}
		fh = f
		file = log.New(f, "", log.LstdFlags|log.Lmicroseconds)
	}

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	defaultSink.mu.Lock()
	old := defaultSink.fh
	defaultSink.console = log.New(console, "", log.LstdFlags)
	defaultSink.file = file
	defaultSink.fh = fh
	defaultSink.mu.Unlock()

	defaultSink.consoleLevel.Store(int32(opts.ConsoleLevel))
	defaultSink.fileLevel.Store(int32(opts.FileLevel))

	if old != nil {
		return old.Close()
	}
	return nil
}

// Close закрывает файл логов, если он был открыт.
func Close() error {
	defaultSink.mu.Lock()
	defer defaultSink.mu.Unlock()

	if defaultSink.fh == nil {
		return nil
	}
	err := defaultSink.fh.Close()
	defaultSink.fh = nil
	defaultSink.file = nil
	return err
}

// SetOutput перенаправляет консольный вывод; удобно в тестах.
func SetOutput(w io.Writer) {
	defaultSink.mu.Lock()
	defaultSink.console = log.New(w, "", 0)
	defaultSink.mu.Unlock()
}

// SetConsoleLevel меняет порог консольного вывода.
func SetConsoleLevel(level LogLevel) { defaultSink.consoleLevel.Store(int32(level)) }

var defaultLogger = newLogger("", defaultSink)

func Trace(format string, args ...interface{}) { defaultLogger.Trace(format, args...) }
func Debug(format string, args ...interface{}) { defaultLogger.Debug(format, args...) }
func Info(format string, args ...interface{})  { defaultLogger.Info(format, args...) }
func Warn(format string, args ...interface{})  { defaultLogger.Warn(format, args...) }
func Error(format string, args ...interface{}) { defaultLogger.Error(format, args...) }

func Critical(format string, args ...interface{}) { defaultLogger.Critical(format, args...) }
