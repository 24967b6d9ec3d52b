// Package logging provides structured logging using uber/zap.
//
// This package offers two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components receive a named child logger (logger.Named("relay")) so every
// entry carries the component that wrote it.
//
// Example Usage:
//
//	logger := logging.NewFor(cfg.Logging.Level, cfg.Logging.Development)
//	logger.Info("Server starting", zap.String("addr", cfg.Address()))
//	logger.Error("Failed to open storage", zap.Error(err))
package logging
