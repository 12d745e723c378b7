package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	defaultLogger zerolog.Logger
	once          sync.Once

	logPath  string
	logLevel = "info"
)

// SetLogPath sets the directory for the rotating log file. Must be called
// before the first call to New or Default to take effect.
func SetLogPath(path string) {
	logPath = path
}

func SetLogLevel(level string) {
	logLevel = level
}

func levelFromString(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func writers() io.Writer {
	console := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	if logPath == "" {
		return console
	}
	file := &lumberjack.Logger{
		Filename:   filepath.Join(logPath, "blackhole.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	return zerolog.MultiLevelWriter(console, file)
}

// New returns a component-tagged logger.
func New(component string) zerolog.Logger {
	return zerolog.New(writers()).
		Level(levelFromString(logLevel)).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

// Default returns the process-wide logger.
func Default() *zerolog.Logger {
	once.Do(func() {
		defaultLogger = New("blackhole")
	})
	return &defaultLogger
}
