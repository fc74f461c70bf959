// Package logging provides structured logging channels for media kit editing
// sessions, with per-channel levels and live streaming to the sysop console.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Channel represents a logical logging channel for different system components
type Channel string

const (
	// System channels
	ChannelSystem   Channel = "system"   // General system operations
	ChannelStartup  Channel = "startup"  // Application startup and initialization
	ChannelShutdown Channel = "shutdown" // Application shutdown and cleanup

	// Engine channels
	ChannelState  Channel = "state"  // State store mutations and persistence
	ChannelRender Channel = "render" // Render coordination and DOM reconciliation
	ChannelSync   Channel = "sync"   // Editor/preview field synchronization
	ChannelBulk   Channel = "bulk"   // Bulk operations and snapshots

	// Infrastructure channels
	ChannelStorage Channel = "storage" // Database operations and queries
	ChannelSSE     Channel = "sse"     // Server-sent events and websockets
	ChannelAuth    Channel = "auth"    // Authentication and authorization

	// Performance and debugging channels
	ChannelPerf      Channel = "performance" // Performance markers
	ChannelSlowQuery Channel = "slow-query"  // Slow database queries
	ChannelDebug     Channel = "debug"       // Debug information
)

var allChannels = []Channel{
	ChannelSystem, ChannelStartup, ChannelShutdown,
	ChannelState, ChannelRender, ChannelSync, ChannelBulk,
	ChannelStorage, ChannelSSE, ChannelAuth,
	ChannelPerf, ChannelSlowQuery, ChannelDebug,
}

// ChanneledLogger provides structured logging with multiple channels
type ChanneledLogger struct {
	channels map[Channel]*slog.Logger
	config   *LoggerConfig
	files    []*os.File
	configMu sync.RWMutex
}

// LoggerConfig contains configuration options for the channeled logger
type LoggerConfig struct {
	OutputToFile    bool   `json:"outputToFile"`    // Whether to write logs to files
	OutputToConsole bool   `json:"outputToConsole"` // Whether to write logs to console
	LogDirectory    string `json:"logDirectory"`    // Directory for log files

	// StreamToBroadcaster forwards every record to the live log broadcaster
	StreamToBroadcaster bool `json:"streamToBroadcaster"`

	// Extra receives a copy of every record; tests use it to capture output
	Extra io.Writer `json:"-"`

	JSONFormat    bool `json:"jsonFormat"`
	IncludeSource bool `json:"includeSource"`

	DefaultLevel  slog.Level             `json:"defaultLevel"`
	ChannelLevels map[Channel]slog.Level `json:"channelLevels"`
}

// DefaultLoggerConfig returns a sensible default configuration
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{
		OutputToFile:        true,
		OutputToConsole:     true,
		LogDirectory:        "logs",
		StreamToBroadcaster: true,
		JSONFormat:          true,
		IncludeSource:       false,
		DefaultLevel:        slog.LevelInfo,
		ChannelLevels:       make(map[Channel]slog.Level),
	}
}

// NewChanneledLogger creates a new channeled logger with the given configuration
func NewChanneledLogger(config *LoggerConfig) (*ChanneledLogger, error) {
	if config == nil {
		config = DefaultLoggerConfig()
	}
	if config.ChannelLevels == nil {
		config.ChannelLevels = make(map[Channel]slog.Level)
	}

	logger := &ChanneledLogger{
		channels: make(map[Channel]*slog.Logger),
		config:   config,
	}

	if config.OutputToFile {
		if err := os.MkdirAll(config.LogDirectory, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	for _, channel := range allChannels {
		channelLogger, err := logger.createChannelLogger(channel)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger for channel %s: %w", channel, err)
		}
		logger.channels[channel] = channelLogger
	}

	return logger, nil
}

// NewDiscardLogger returns a logger that drops everything, or copies records
// to w when it is non-nil.
func NewDiscardLogger(w io.Writer) *ChanneledLogger {
	logger, err := NewChanneledLogger(&LoggerConfig{
		Extra:        w,
		JSONFormat:   true,
		DefaultLevel: slog.LevelDebug,
	})
	if err != nil {
		// unreachable without file output
		panic(err)
	}
	return logger
}

// ParseLevel maps a level name onto slog.Level, defaulting to INFO.
func ParseLevel(name string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (cl *ChanneledLogger) createChannelLogger(channel Channel) (*slog.Logger, error) {
	level := cl.config.DefaultLevel
	if channelLevel, exists := cl.config.ChannelLevels[channel]; exists {
		level = channelLevel
	}

	var writers []io.Writer

	if cl.config.OutputToConsole {
		writers = append(writers, os.Stdout)
	}

	if cl.config.OutputToFile {
		path := filepath.Join(cl.config.LogDirectory, fmt.Sprintf("%s.log", string(channel)))
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
		}
		cl.files = append(cl.files, file)
		writers = append(writers, file)
	}

	if cl.config.StreamToBroadcaster {
		writers = append(writers, NewSSEWriter())
	}

	if cl.config.Extra != nil {
		writers = append(writers, cl.config.Extra)
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = io.MultiWriter(writers...)
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cl.config.IncludeSource,
	}

	var handler slog.Handler
	if cl.config.JSONFormat {
		handler = slog.NewJSONHandler(writer, handlerOpts)
	} else {
		handler = slog.NewTextHandler(writer, handlerOpts)
	}

	return slog.New(handler).With(slog.String("channel", string(channel))), nil
}

func (cl *ChanneledLogger) get(channel Channel) *slog.Logger {
	cl.configMu.RLock()
	defer cl.configMu.RUnlock()
	if logger, exists := cl.channels[channel]; exists {
		return logger
	}
	return cl.channels[ChannelSystem]
}

func (cl *ChanneledLogger) System() *slog.Logger    { return cl.get(ChannelSystem) }
func (cl *ChanneledLogger) Startup() *slog.Logger   { return cl.get(ChannelStartup) }
func (cl *ChanneledLogger) Shutdown() *slog.Logger  { return cl.get(ChannelShutdown) }
func (cl *ChanneledLogger) State() *slog.Logger     { return cl.get(ChannelState) }
func (cl *ChanneledLogger) Render() *slog.Logger    { return cl.get(ChannelRender) }
func (cl *ChanneledLogger) Sync() *slog.Logger      { return cl.get(ChannelSync) }
func (cl *ChanneledLogger) Bulk() *slog.Logger      { return cl.get(ChannelBulk) }
func (cl *ChanneledLogger) Storage() *slog.Logger   { return cl.get(ChannelStorage) }
func (cl *ChanneledLogger) SSE() *slog.Logger       { return cl.get(ChannelSSE) }
func (cl *ChanneledLogger) Auth() *slog.Logger      { return cl.get(ChannelAuth) }
func (cl *ChanneledLogger) Perf() *slog.Logger      { return cl.get(ChannelPerf) }
func (cl *ChanneledLogger) SlowQuery() *slog.Logger { return cl.get(ChannelSlowQuery) }
func (cl *ChanneledLogger) Debug() *slog.Logger     { return cl.get(ChannelDebug) }

// GetChannel returns a logger for a specific channel
func (cl *ChanneledLogger) GetChannel(channel Channel) *slog.Logger {
	return cl.get(channel)
}

// WithKit returns a logger scoped to one media kit
func (cl *ChanneledLogger) WithKit(channel Channel, kitID string) *slog.Logger {
	return cl.get(channel).With(slog.String("kitId", kitID))
}

// WithOperation returns a logger with operation context
func (cl *ChanneledLogger) WithOperation(channel Channel, operation string) *slog.Logger {
	return cl.get(channel).With(slog.String("operation", operation))
}

// LogSlowQuery logs a slow database query
func (cl *ChanneledLogger) LogSlowQuery(query string, duration time.Duration, kitID string) {
	cl.SlowQuery().Warn("Slow query detected",
		slog.String("query", cl.sanitizeQuery(query)),
		slog.Duration("duration", duration),
		slog.String("kitId", kitID),
	)
}

// LogError logs an error with appropriate context and channel
func (cl *ChanneledLogger) LogError(channel Channel, operation string, err error, kitID string, metadata map[string]any) {
	logger := cl.get(channel).With(
		slog.String("operation", operation),
		slog.String("kitId", kitID),
		slog.String("error", err.Error()),
	)
	for key, value := range metadata {
		logger = logger.With(slog.Any(key, value))
	}
	logger.Error("Operation failed")
}

// LogStartupPhase logs application startup phases
func (cl *ChanneledLogger) LogStartupPhase(phase string, duration time.Duration, success bool) {
	logger := cl.Startup().With(
		slog.String("phase", phase),
		slog.Duration("duration", duration),
		slog.Bool("success", success),
	)
	if success {
		logger.Info("Startup phase completed")
	} else {
		logger.Error("Startup phase failed")
	}
}

func (cl *ChanneledLogger) sanitizeQuery(query string) string {
	query = strings.ReplaceAll(query, "\n", " ")
	query = strings.ReplaceAll(query, "\t", " ")
	if len(query) > 500 {
		query = query[:500] + "..."
	}
	return query
}

// Close closes all file handles
func (cl *ChanneledLogger) Close() error {
	cl.System().Info("Channeled logger shutting down")
	var firstErr error
	for _, f := range cl.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SetChannelLevel dynamically sets the log level for a specific channel
func (cl *ChanneledLogger) SetChannelLevel(channel Channel, level slog.Level) error {
	cl.configMu.Lock()
	defer cl.configMu.Unlock()

	if _, exists := cl.channels[channel]; !exists {
		return fmt.Errorf("channel %s does not exist", channel)
	}

	cl.config.ChannelLevels[channel] = level

	newLogger, err := cl.createChannelLogger(channel)
	if err != nil {
		return fmt.Errorf("failed to recreate logger for channel %s: %w", channel, err)
	}
	cl.channels[channel] = newLogger

	return nil
}

// GetChannelLevels returns the current log levels for all channels.
func (cl *ChanneledLogger) GetChannelLevels() map[string]string {
	cl.configMu.RLock()
	defer cl.configMu.RUnlock()

	levels := make(map[string]string)
	for channel := range cl.channels {
		if level, ok := cl.config.ChannelLevels[channel]; ok {
			levels[string(channel)] = level.String()
		} else {
			levels[string(channel)] = cl.config.DefaultLevel.String()
		}
	}
	return levels
}
