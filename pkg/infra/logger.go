package infra

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/textmend/textmend/internal/config"
)

var (
	logFileMu sync.Mutex
	logFile   *os.File
)

// SetupLogger builds the process logger from config. Output goes to stdout
// and, when the file can be opened, to textmend.log as well.
func SetupLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stdout

	logFileMu.Lock()
	f, err := os.OpenFile("textmend.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		logFile = f
		out = io.MultiWriter(os.Stdout, f)
	}
	logFileMu.Unlock()

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToUpper(cfg.LogFormat) == "JSON" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler)
}

// CloseLogger releases the log file opened by SetupLogger.
func CloseLogger() {
	logFileMu.Lock()
	defer logFileMu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}
