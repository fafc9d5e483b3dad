// Package logging provides config-driven categorized file-based logging for ScenePilot.
// Logs are written to .pilot/logs/ with separate files per category.
// Logging is controlled by debug_mode in .pilot/config.json - when false, no logs are written.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/system
type Category string

const (
	// Core pipeline categories
	CategoryBoot       Category = "boot"       // Boot/initialization
	CategoryCore       Category = "core"       // Orchestrator request flow
	CategoryParser     Category = "parser"     // Text -> intent parsing
	CategoryMatcher    Category = "matcher"    // Entity reference resolution
	CategoryValidation Category = "validation" // Intent validation
	CategoryRegistry   Category = "registry"   // Entity registry and spatial index

	// Session categories
	CategorySession   Category = "session"   // Dialog history, scene state
	CategoryRetrieval Category = "retrieval" // Equipment retrieval context
	CategoryStore     Category = "store"     // SQLite persistence

	// AI path categories
	CategoryAgents     Category = "agents"     // Agent pipeline routing
	CategoryPerception Category = "perception" // Completion-service calls
	CategoryTools      Category = "tools"      // Tool execution
)

// loggingConfig mirrors the relevant parts of config.LoggingConfig
// to avoid circular imports
type loggingConfig struct {
	DebugMode  bool            `json:"debug_mode"`
	Categories map[string]bool `json:"categories"`
	Level      string          `json:"level"`
	JSONFormat bool            `json:"json_format"`
}

// configFile structure for reading .pilot/config.json
type configFile struct {
	Logging loggingConfig `json:"logging"`
}

// StructuredLogEntry represents a JSON log entry
type StructuredLogEntry struct {
	Timestamp int64          `json:"ts"`  // Unix milliseconds
	Category  string         `json:"cat"` // Log category
	Level     string         `json:"lvl"` // debug/info/warn/error
	Message   string         `json:"msg"` // Log message
	Fields    map[string]any `json:"fields,omitempty"`
}

// Logger wraps a standard logger with category and file output
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	workspace string
	config    loggingConfig
	configMu  sync.RWMutex
	logLevel  int // 0=debug, 1=info, 2=warn, 3=error
)

// Log levels
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Initialize sets up the logging directory and loads config.
// Should be called once at startup with the workspace path.
func Initialize(ws string) error {
	if ws == "" {
		return fmt.Errorf("workspace path required")
	}

	workspace = ws
	logsDir = filepath.Join(workspace, ".pilot", "logs")

	if err := loadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not load config: %v\n", err)
		config.DebugMode = false
	}

	// Only create logs directory if debug mode is enabled
	if !config.DebugMode {
		return nil // Silent no-op in production mode
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	bootLogger := Get(CategoryBoot)
	bootLogger.Info("=== ScenePilot Logging System Initialized ===")
	bootLogger.Info("Workspace: %s", workspace)
	bootLogger.Info("Logs directory: %s", logsDir)
	bootLogger.Info("Log level: %s", config.Level)

	return nil
}

// loadConfig reads the logging config from .pilot/config.json
func loadConfig() error {
	configMu.Lock()
	defer configMu.Unlock()

	configPath := filepath.Join(workspace, ".pilot", "config.json")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// No config = production mode (no logging)
			config.DebugMode = false
			return nil
		}
		return err
	}

	var cf configFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	config = cf.Logging

	switch config.Level {
	case "debug":
		logLevel = LevelDebug
	case "info":
		logLevel = LevelInfo
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}

	return nil
}

// ReloadConfig reloads the config from disk.
// Call this if config changes at runtime.
func ReloadConfig() error {
	return loadConfig()
}

// IsDebugMode returns whether debug logging is enabled
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if !config.DebugMode {
		return false
	}

	if config.Categories == nil {
		return true // All enabled by default in debug mode
	}

	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true // Enable by default if not specified
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category}
	}

	if logsDir == "" {
		return &Logger{category: category}
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

	// Create log file with date prefix for easy rotation
	date := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s.log", date, category)
	logPath := filepath.Join(logsDir, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l

	return l
}

// Close closes all open log files. Call at shutdown.
func Close() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for cat, l := range loggers {
		if l.file != nil {
			_ = l.file.Close()
		}
		delete(loggers, cat)
	}
}

// logJSON writes a structured JSON log entry
func (l *Logger) logJSON(level, msg string) {
	entry := StructuredLogEntry{
		Timestamp: time.Now().UnixMilli(),
		Category:  string(l.category),
		Level:     level,
		Message:   msg,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		l.logger.Printf("[%s] %s", level, msg) // Fallback to text
		return
	}
	l.logger.Printf("%s", data)
}

// Debug logs a debug message (only if level <= debug)
func (l *Logger) Debug(format string, args ...any) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if config.JSONFormat {
		l.logJSON("debug", msg)
	} else {
		l.logger.Printf("[DEBUG] %s", msg)
	}
}

// Info logs an informational message (only if level <= info)
func (l *Logger) Info(format string, args ...any) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if config.JSONFormat {
		l.logJSON("info", msg)
	} else {
		l.logger.Printf("[INFO] %s", msg)
	}
}

// Warn logs a warning message (only if level <= warn)
func (l *Logger) Warn(format string, args ...any) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if config.JSONFormat {
		l.logJSON("warn", msg)
	} else {
		l.logger.Printf("[WARN] %s", msg)
	}
}

// Error logs an error message (always logged if logger exists)
func (l *Logger) Error(format string, args ...any) {
	if l.logger == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if config.JSONFormat {
		l.logJSON("error", msg)
	} else {
		l.logger.Printf("[ERROR] %s", msg)
	}
}

// StructuredLog writes a fully structured log entry with custom fields
func (l *Logger) StructuredLog(level string, msg string, fields map[string]any) {
	if l.logger == nil {
		return
	}
	entry := StructuredLogEntry{
		Timestamp: time.Now().UnixMilli(),
		Category:  string(l.category),
		Level:     level,
		Message:   msg,
		Fields:    fields,
	}
	if config.JSONFormat {
		data, err := json.Marshal(entry)
		if err == nil {
			l.logger.Printf("%s", data)
			return
		}
	}
	l.logger.Printf("[%s] %s | fields=%v", level, msg, fields)
}

// =============================================================================
// CATEGORY HELPERS - Shorthand for the hot paths
// =============================================================================

func Core(format string, args ...any)            { Get(CategoryCore).Info(format, args...) }
func CoreDebug(format string, args ...any)       { Get(CategoryCore).Debug(format, args...) }
func CoreWarn(format string, args ...any)        { Get(CategoryCore).Warn(format, args...) }
func CoreError(format string, args ...any)       { Get(CategoryCore).Error(format, args...) }
func Parser(format string, args ...any)          { Get(CategoryParser).Info(format, args...) }
func ParserDebug(format string, args ...any)     { Get(CategoryParser).Debug(format, args...) }
func MatcherDebug(format string, args ...any)    { Get(CategoryMatcher).Debug(format, args...) }
func ValidationDebug(format string, args ...any) { Get(CategoryValidation).Debug(format, args...) }
func RegistryDebug(format string, args ...any)   { Get(CategoryRegistry).Debug(format, args...) }
func SessionDebug(format string, args ...any)    { Get(CategorySession).Debug(format, args...) }
func RetrievalDebug(format string, args ...any)  { Get(CategoryRetrieval).Debug(format, args...) }
func StoreDebug(format string, args ...any)      { Get(CategoryStore).Debug(format, args...) }
func StoreError(format string, args ...any)      { Get(CategoryStore).Error(format, args...) }
func Agents(format string, args ...any)          { Get(CategoryAgents).Info(format, args...) }
func AgentsDebug(format string, args ...any)     { Get(CategoryAgents).Debug(format, args...) }
func AgentsWarn(format string, args ...any)      { Get(CategoryAgents).Warn(format, args...) }
func AgentsError(format string, args ...any)     { Get(CategoryAgents).Error(format, args...) }
func Perception(format string, args ...any)      { Get(CategoryPerception).Info(format, args...) }
func PerceptionDebug(format string, args ...any) { Get(CategoryPerception).Debug(format, args...) }
func PerceptionWarn(format string, args ...any)  { Get(CategoryPerception).Warn(format, args...) }
func PerceptionError(format string, args ...any) { Get(CategoryPerception).Error(format, args...) }
func ToolsDebug(format string, args ...any)      { Get(CategoryTools).Debug(format, args...) }
func ToolsError(format string, args ...any)      { Get(CategoryTools).Error(format, args...) }

// =============================================================================
// REQUEST LOGGER - Correlates log lines across one user request
// =============================================================================

// RequestLogger tags every line with a request correlation id.
type RequestLogger struct {
	logger    *Logger
	requestID string
}

// WithRequestID returns a request-scoped logger for the category.
func WithRequestID(category Category, requestID string) *RequestLogger {
	return &RequestLogger{logger: Get(category), requestID: requestID}
}

func (r *RequestLogger) formatMsg(format string, args ...any) string {
	return fmt.Sprintf("[req:%s] %s", r.requestID, fmt.Sprintf(format, args...))
}

func (r *RequestLogger) Debug(format string, args ...any) {
	if r.logger.logger == nil || logLevel > LevelDebug {
		return
	}
	r.logger.logger.Printf("[DEBUG] %s", r.formatMsg(format, args...))
}

func (r *RequestLogger) Info(format string, args ...any) {
	if r.logger.logger == nil || logLevel > LevelInfo {
		return
	}
	r.logger.logger.Printf("[INFO] %s", r.formatMsg(format, args...))
}

func (r *RequestLogger) Warn(format string, args ...any) {
	if r.logger.logger == nil || logLevel > LevelWarn {
		return
	}
	r.logger.logger.Printf("[WARN] %s", r.formatMsg(format, args...))
}

func (r *RequestLogger) Error(format string, args ...any) {
	if r.logger.logger == nil {
		return
	}
	r.logger.logger.Printf("[ERROR] %s", r.formatMsg(format, args...))
}

// =============================================================================
// TIMING HELPERS - For performance logging
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
