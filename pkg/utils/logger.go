package utils

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

type LogConfig struct {
	Level         string `json:"level" yaml:"level"`
	Format        string `json:"format" yaml:"format"`
	FileLocation  string `json:"file_location" yaml:"file_location"`
	MaxSizeMB     int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups    int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays    int    `json:"max_age_days" yaml:"max_age_days"`
	Compress      bool   `json:"compress" yaml:"compress"`
	EnableConsole bool   `json:"enable_console" yaml:"enable_console"`
}

// Logger wraps logrus with a rotating file sink. Console output goes to
// stderr so rendered reports on stdout stay clean.
type Logger struct {
	*logrus.Logger
	config   LogConfig
	mu       sync.Mutex
	fileSink *lumberjack.Logger
}

func NewLogger(config LogConfig, service, version string) (*Logger, error) {
	config = normalizeConfig(config)
	l := &Logger{Logger: logrus.New(), config: config}

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if config.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "severity",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
			DisableColors:   config.FileLocation != "",
		})
	}

	var writers []io.Writer
	if config.FileLocation != "" {
		if err := os.MkdirAll(filepath.Dir(config.FileLocation), 0o755); err != nil {
			return nil, err
		}
		l.fileSink = &lumberjack.Logger{
			Filename:   config.FileLocation,
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAgeDays,
			Compress:   config.Compress,
		}
		writers = append(writers, l.fileSink)
	}
	if config.EnableConsole || len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}
	l.SetOutput(io.MultiWriter(writers...))

	l.AddHook(&RedactHook{})
	l.AddHook(&ServiceHook{Service: service, Version: version, Hostname: hostname()})
	if level >= logrus.DebugLevel {
		l.AddHook(&CallerHook{})
	}
	return l, nil
}

func normalizeConfig(c LogConfig) LogConfig {
	c.Level = strings.ToLower(strings.TrimSpace(c.Level))
	if c.Level == "" {
		c.Level = "info"
	}
	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	if c.Format == "" {
		c.Format = "json"
	}
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = 50
	}
	if c.MaxBackups < 0 {
		c.MaxBackups = 0
	}
	if c.MaxAgeDays < 0 {
		c.MaxAgeDays = 0
	}
	return c
}

func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fileSink == nil {
		return nil
	}
	return l.fileSink.Rotate()
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fileSink == nil {
		return nil
	}
	return l.fileSink.Close()
}

// sensitiveFields are masked by RedactHook before an entry is written.
var sensitiveFields = []string{"api_key", "apikey", "authorization", "token", "secret", "password"}

// RedactHook keeps credentials out of log sinks. A matched field keeps
// only its first and last four characters.
type RedactHook struct{}

func (h *RedactHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *RedactHook) Fire(entry *logrus.Entry) error {
	for k, v := range entry.Data {
		s, ok := v.(string)
		if !ok || !isSensitiveField(k) {
			continue
		}
		entry.Data[k] = redact(s)
	}
	return nil
}

func isSensitiveField(name string) bool {
	name = strings.ToLower(name)
	for _, f := range sensitiveFields {
		if strings.Contains(name, f) {
			return true
		}
	}
	return false
}

func redact(s string) string {
	r := []rune(s)
	if len(r) <= 8 {
		return strings.Repeat("*", len(r))
	}
	return string(r[:4]) + "..." + string(r[len(r)-4:])
}

type ServiceHook struct {
	Service  string
	Version  string
	Hostname string
}

func (h *ServiceHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *ServiceHook) Fire(entry *logrus.Entry) error {
	entry.Data["service"] = h.Service
	entry.Data["version"] = h.Version
	entry.Data["hostname"] = h.Hostname
	return nil
}

// CallerHook records the first frame outside logrus and this package.
type CallerHook struct{}

func (h *CallerHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel, logrus.DebugLevel, logrus.TraceLevel}
}

func (h *CallerHook) Fire(entry *logrus.Entry) error {
	if _, ok := entry.Data["caller"]; ok {
		return nil
	}
	pcs := make([]uintptr, 25)
	n := runtime.Callers(4, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		if !strings.Contains(f.File, "/sirupsen/logrus") && !strings.HasSuffix(f.File, "/pkg/utils/logger.go") {
			entry.Data["caller"] = filepath.Base(f.File) + ":" + strconv.Itoa(f.Line)
			return nil
		}
		if !more {
			return nil
		}
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
