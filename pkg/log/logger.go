package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var zerologLevels = map[LogLevel]zerolog.Level{
	LevelDebug: zerolog.DebugLevel,
	LevelInfo:  zerolog.InfoLevel,
	LevelWarn:  zerolog.WarnLevel,
	LevelError: zerolog.ErrorLevel,
	LevelFatal: zerolog.FatalLevel,
}

var levelsByName = map[string]LogLevel{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
	"fatal":   LevelFatal,
}

// ParseLevel maps a level name to a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	if level, ok := levelsByName[strings.ToLower(strings.TrimSpace(s))]; ok {
		return level
	}
	return LevelInfo
}

// Logger offers leveled, printf-style logging backed by zerolog.
type Logger struct {
	zl zerolog.Logger
}

func newZerolog(w io.Writer, level LogLevel) zerolog.Logger {
	out := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	return zerolog.New(out).
		Level(zerologLevels[level]).
		With().
		Timestamp().
		CallerWithSkipFrameCount(4).
		Logger()
}

func NewLogger(level LogLevel) *Logger {
	return &Logger{zl: newZerolog(os.Stdout, level)}
}

func (l *Logger) SetLevel(level LogLevel) {
	l.zl = l.zl.Level(zerologLevels[level])
}

func (l *Logger) logf(level zerolog.Level, format string, args []any) {
	l.zl.WithLevel(level).Msgf(format, args...)
}

func (l *Logger) Debug(format string, args ...any) { l.logf(zerolog.DebugLevel, format, args) }
func (l *Logger) Info(format string, args ...any)  { l.logf(zerolog.InfoLevel, format, args) }
func (l *Logger) Warn(format string, args ...any)  { l.logf(zerolog.WarnLevel, format, args) }
func (l *Logger) Error(format string, args ...any) { l.logf(zerolog.ErrorLevel, format, args) }

// Fatal logs the message and exits the process.
func (l *Logger) Fatal(format string, args ...any) {
	l.zl.Fatal().CallerSkipFrame(-1).Msgf(format, args...)
}

// FileLogger writes log entries to a file instead of stdout.
type FileLogger struct {
	*Logger
	file *os.File
}

func NewFileLogger(logFile string, level LogLevel) (*FileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &FileLogger{
		Logger: &Logger{zl: newZerolog(file, level)},
		file:   file,
	}, nil
}

func (l *FileLogger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

var globalLogger *Logger

func InitLogger(level LogLevel) {
	globalLogger = NewLogger(level)
}

func GetLogger() *Logger {
	if globalLogger == nil {
		globalLogger = NewLogger(LevelInfo)
	}
	return globalLogger
}

func Debug(format string, args ...any) { GetLogger().Debug(format, args...) }
func Info(format string, args ...any)  { GetLogger().Info(format, args...) }
func Warn(format string, args ...any)  { GetLogger().Warn(format, args...) }
func Error(format string, args ...any) { GetLogger().Error(format, args...) }
func Fatal(format string, args ...any) { GetLogger().Fatal(format, args...) }

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
