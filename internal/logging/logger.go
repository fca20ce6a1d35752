// Package logging provides config-driven categorized logging for sitecheck.
// Every category gets its own named zap logger; categories can be switched
// off individually, and nothing is written until Initialize (or UseCore)
// installs a real root logger.
package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup, config loading
	CategorySession  Category = "session"  // Session lifecycle, step state machine
	CategoryProbe    Category = "probe"    // Element detection and polling
	CategoryClassify Category = "classify" // Failure classification decisions
	CategoryBrowser  Category = "browser"  // Browser automation, CDP events
	CategorySuite    Category = "suite"    // Multi-product batch runs
	CategoryReport   Category = "report"   // Report rendering
	CategoryAudit    Category = "audit"    // Step outcome audit trail
)

// loggingConfig mirrors the relevant parts of config.LoggingConfig
// to avoid circular imports
type loggingConfig struct {
	Level      string
	Format     string // json, console
	File       string
	DebugMode  bool
	Categories map[string]bool
}

// Options configures Initialize. Field names follow config.LoggingConfig.
type Options struct {
	Level      string
	Format     string
	File       string
	DebugMode  bool
	Categories map[string]bool
}

// Logger is a category-scoped printf-style logger.
type Logger struct {
	category Category
	base     *zap.Logger
	sugar    *zap.SugaredLogger
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	root      = zap.NewNop()
	config    loggingConfig
	configMu  sync.RWMutex
)

// Initialize builds the root zap logger from opts and resets category
// loggers. Calling it again reconfigures logging.
func Initialize(opts Options) error {
	cfg := loggingConfig(opts)

	level, err := parseLevel(cfg.Level, cfg.DebugMode)
	if err != nil {
		return err
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Sampling = nil
	zc.DisableStacktrace = true
	if strings.EqualFold(cfg.Format, "console") || strings.EqualFold(cfg.Format, "text") {
		zc.Encoding = "console"
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	zc.OutputPaths = []string{"stderr"}
	if cfg.File != "" {
		zc.OutputPaths = []string{cfg.File}
	}

	logger, err := zc.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	install(logger, cfg)

	Get(CategoryBoot).Debug("logging initialized: level=%s format=%s debug=%v", level, zc.Encoding, cfg.DebugMode)
	return nil
}

// UseCore routes all logging through core. Intended for tests and for
// embedding sitecheck in a host that owns its own zap setup.
func UseCore(core zapcore.Core, categories map[string]bool) {
	install(zap.New(core), loggingConfig{DebugMode: true, Categories: categories})
}

func install(logger *zap.Logger, cfg loggingConfig) {
	configMu.Lock()
	config = cfg
	prev := root
	root = logger
	configMu.Unlock()

	loggersMu.Lock()
	loggers = make(map[Category]*Logger)
	loggersMu.Unlock()

	_ = prev.Sync()
}

func parseLevel(level string, debugMode bool) (zapcore.Level, error) {
	if level == "" {
		if debugMode {
			return zapcore.DebugLevel, nil
		}
		return zapcore.InfoLevel, nil
	}
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// IsDebugMode returns whether debug logging is enabled
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled.
// Unlisted categories are enabled.
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if config.Categories == nil {
		return true
	}
	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		nop := zap.NewNop()
		return &Logger{category: category, base: nop, sugar: nop.Sugar()}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}

	configMu.RLock()
	base := root.Named(string(category))
	configMu.RUnlock()

	l := &Logger{category: category, base: base, sugar: base.Sugar()}
	loggers[category] = l
	return l
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) { l.sugar.Infof(format, args...) }

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) { l.sugar.Warnf(format, args...) }

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// With returns the structured zap logger for this category with fields attached.
func (l *Logger) With(fields ...zap.Field) *zap.Logger {
	return l.base.With(fields...)
}

// Zap returns the underlying structured logger.
func (l *Logger) Zap() *zap.Logger { return l.base }

// CloseAll flushes buffered log output.
func CloseAll() {
	configMu.RLock()
	r := root
	configMu.RUnlock()
	if err := r.Sync(); err != nil && !isIgnorableSyncError(err) {
		fmt.Fprintf(os.Stderr, "[logging] sync failed: %v\n", err)
	}
}

// stderr/stdout sync returns EINVAL or ENOTTY on most terminals.
func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "invalid argument") || strings.Contains(msg, "inappropriate ioctl")
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting logger first
// =============================================================================

// Boot logs to boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootWarn logs a warning to boot category
func BootWarn(format string, args ...interface{}) {
	Get(CategoryBoot).Warn(format, args...)
}

// Session logs to session category
func Session(format string, args ...interface{}) {
	Get(CategorySession).Info(format, args...)
}

// SessionDebug logs debug to session category
func SessionDebug(format string, args ...interface{}) {
	Get(CategorySession).Debug(format, args...)
}

// SessionWarn logs a warning to session category
func SessionWarn(format string, args ...interface{}) {
	Get(CategorySession).Warn(format, args...)
}

// Probe logs to probe category
func Probe(format string, args ...interface{}) {
	Get(CategoryProbe).Info(format, args...)
}

// ProbeDebug logs debug to probe category
func ProbeDebug(format string, args ...interface{}) {
	Get(CategoryProbe).Debug(format, args...)
}

// ClassifyDebug logs debug to classify category
func ClassifyDebug(format string, args ...interface{}) {
	Get(CategoryClassify).Debug(format, args...)
}

// Browser logs to browser category
func Browser(format string, args ...interface{}) {
	Get(CategoryBrowser).Info(format, args...)
}

// BrowserDebug logs debug to browser category
func BrowserDebug(format string, args ...interface{}) {
	Get(CategoryBrowser).Debug(format, args...)
}

// BrowserWarn logs a warning to browser category
func BrowserWarn(format string, args ...interface{}) {
	Get(CategoryBrowser).Warn(format, args...)
}

// Suite logs to suite category
func Suite(format string, args ...interface{}) {
	Get(CategorySuite).Info(format, args...)
}

// SuiteDebug logs debug to suite category
func SuiteDebug(format string, args ...interface{}) {
	Get(CategorySuite).Debug(format, args...)
}

// SuiteWarn logs a warning to suite category
func SuiteWarn(format string, args ...interface{}) {
	Get(CategorySuite).Warn(format, args...)
}

// ReportDebug logs debug to report category
func ReportDebug(format string, args ...interface{}) {
	Get(CategoryReport).Debug(format, args...)
}
