package logger

import (
	"fmt"
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
	mu sync.RWMutex

	appLogger   = zerolog.Nop()
	proxyLogger = zerolog.Nop()
	errLogger   = zerolog.Nop()

	logLevel     = "INFO"
	appLogFile   *lumberjack.Logger
	proxyLogFile *lumberjack.Logger
	initialized  bool
)

func parseLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func openRotating(path string) (*lumberjack.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, err
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    20, // megabytes
		MaxBackups: 5,
		MaxAge:     30,
	}, nil
}

// InitGlobalLoggers (re)opens the app and proxy log files. Errors always go to stderr as well.
func InitGlobalLoggers(appLogPath, proxyLogPath, level string) error {
	mu.Lock()
	defer mu.Unlock()

	normalized := strings.ToUpper(level)
	if normalized == "" {
		normalized = "INFO"
	}
	if initialized && appLogFile != nil && appLogFile.Filename == appLogPath &&
		proxyLogFile != nil && proxyLogFile.Filename == proxyLogPath && normalized == logLevel {
		return nil
	}
	closeFilesLocked()
	logLevel = normalized
	lvl := parseLevel(logLevel)

	errLogger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime}).
		With().Timestamp().Str("component", "error").Logger().Level(zerolog.ErrorLevel)

	var appWriter io.Writer = io.Discard
	actualAppLogPath := appLogPath
	if f, err := openRotating(appLogPath); err != nil {
		errLogger.Error().Msgf("Failed to create app log directory for %s: %v. App logs will be discarded.", appLogPath, err)
		actualAppLogPath = "(discarded)"
	} else {
		appLogFile = f
		appWriter = f
	}
	appLogger = zerolog.New(appWriter).With().Timestamp().Str("component", "app").Logger().Level(lvl)

	var proxyWriter io.Writer = io.Discard
	actualProxyLogPath := proxyLogPath
	if f, err := openRotating(proxyLogPath); err != nil {
		errLogger.Error().Msgf("Failed to create proxy log directory for %s: %v. Proxy logs will be discarded.", proxyLogPath, err)
		actualProxyLogPath = "(discarded)"
	} else {
		proxyLogFile = f
		proxyWriter = f
	}
	proxyLogger = zerolog.New(proxyWriter).With().Timestamp().Str("component", "proxy").Logger().Level(lvl)

	if !initialized {
		appLogger.Info().Msgf("App logger initialized. Log level: %s. Output file: %s", logLevel, actualAppLogPath)
		proxyLogger.Info().Msgf("Proxy logger initialized. Log level: %s. Output file: %s", logLevel, actualProxyLogPath)
	}
	initialized = true
	return nil
}

func Info(format string, v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	appLogger.Info().Msgf(format, v...)
}

func Debug(format string, v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	appLogger.Debug().Msgf(format, v...)
}

func Warn(format string, v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	appLogger.Warn().Msgf(format, v...)
}

func Error(format string, v ...interface{}) {
	message := fmt.Sprintf(format, v...)
	mu.RLock()
	defer mu.RUnlock()
	errLogger.Error().Msg(message)
	appLogger.Error().Msg(message)
}

func Fatal(format string, v ...interface{}) {
	message := fmt.Sprintf(format, v...)
	mu.RLock()
	appLogger.Error().Msg(message)
	mu.RUnlock()
	fmt.Fprintln(os.Stderr, "FATAL: "+message)
	os.Exit(1)
}

func ProxyInfo(format string, v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	proxyLogger.Info().Msgf(format, v...)
}

func ProxyDebug(format string, v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	proxyLogger.Debug().Msgf(format, v...)
}

func ProxyError(format string, v ...interface{}) {
	message := fmt.Sprintf(format, v...)
	mu.RLock()
	defer mu.RUnlock()
	errLogger.Error().Msg(message)
	proxyLogger.Error().Msg(message)
}

// ProxyWriter exposes the proxy log as an io.Writer, for libraries that want a *log.Logger.
func ProxyWriter() io.Writer {
	mu.RLock()
	defer mu.RUnlock()
	if proxyLogFile == nil {
		return io.Discard
	}
	return proxyLogFile
}

func closeFilesLocked() {
	if appLogFile != nil {
		appLogFile.Close()
		appLogFile = nil
	}
	if proxyLogFile != nil {
		proxyLogFile.Close()
		proxyLogFile = nil
	}
}

func CloseLogFiles() {
	mu.Lock()
	defer mu.Unlock()
	appLogger.Info().Msg("Closing log files.")
	closeFilesLocked()
	appLogger = zerolog.Nop()
	proxyLogger = zerolog.Nop()
	initialized = false // Allow re-initialization (e.g. tests)
}
