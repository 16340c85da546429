// Package logging provides structured logging functionality.
package logging

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"crypto-trader/internal/models"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       true,
		FilePath:   filepath.Join(home, ".config", "crypto-trader", "logs", "trader.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	}
}

// NewLoggerWithConfig creates a new logger with the specified configuration.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	return newLogger(cfg, os.Stderr)
}

func newLogger(cfg LogConfig, console io.Writer) zerolog.Logger {
	var writers []io.Writer

	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:         console,
			TimeFormat:  time.RFC3339,
			FormatLevel: formatLevel,
		})
	}

	// File writer with rotation
	if cfg.File && cfg.FilePath != "" {
		logDir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(logDir, 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	return zerolog.New(writer).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()
}

func formatLevel(i interface{}) string {
	if ll, ok := i.(string); ok {
		switch ll {
		case "debug":
			return "\033[36mDBG\033[0m"
		case "info":
			return "\033[32mINF\033[0m"
		case "warn":
			return "\033[33mWRN\033[0m"
		case "error":
			return "\033[31mERR\033[0m"
		default:
			return ll
		}
	}
	return "???"
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetDebugLevel sets the global log level to debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// ContextKey is the type for context keys.
type ContextKey string

const (
	// LoggerKey is the context key for the logger.
	LoggerKey ContextKey = "logger"
)

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from context.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		return logger
	}
	return zerolog.Nop()
}

// WithSymbol adds a symbol to the logger context.
func WithSymbol(logger zerolog.Logger, symbol string) zerolog.Logger {
	return logger.With().Str("symbol", symbol).Logger()
}

// WithOperation adds an operation name to the logger context.
func WithOperation(logger zerolog.Logger, operation string) zerolog.Logger {
	return logger.With().Str("operation", operation).Logger()
}

// LogTrade logs an executed trade.
func LogTrade(logger zerolog.Logger, trade *models.Trade) {
	event := logger.Info().
		Str("event", "trade").
		Str("trade_id", trade.ID).
		Str("symbol", trade.Symbol).
		Str("side", string(trade.Side)).
		Str("quantity", trade.Quantity.String()).
		Str("price", trade.Price.String()).
		Str("commission", trade.Commission.String())
	if trade.RealizedPnL != nil {
		event = event.Str("realized_pnl", trade.RealizedPnL.String())
	}
	event.Msg("Trade executed")
}

// LogRejection logs a trade request the ledger refused.
func LogRejection(logger zerolog.Logger, req models.TradeRequest, err error) {
	logger.Warn().
		Str("event", "rejection").
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Str("quantity", req.Quantity.String()).
		Str("price", req.Price.String()).
		Err(err).
		Msg("Trade rejected")
}

// LogPrediction logs a scoring result.
func LogPrediction(logger zerolog.Logger, p *models.Prediction) {
	logger.Debug().
		Str("event", "prediction").
		Str("symbol", p.Symbol).
		Str("profile", p.Profile).
		Str("direction", string(p.Direction)).
		Float64("confidence", p.Confidence).
		Float64("combined", p.Components.Combined).
		Float64("target", p.TargetPrice).
		Msg("Prediction")
}

// LogSignal logs a generated trade signal.
func LogSignal(logger zerolog.Logger, s *models.Signal) {
	logger.Info().
		Str("event", "signal").
		Str("symbol", s.Symbol).
		Str("type", string(s.Type)).
		Float64("confidence", s.Confidence).
		Float64("entry", s.EntryPrice).
		Float64("target", s.TargetPrice).
		Float64("stop_loss", s.StopLoss).
		Float64("risk_reward", s.RiskRewardRatio).
		Str("reasoning", s.Reasoning).
		Msg("Trade signal")
}
