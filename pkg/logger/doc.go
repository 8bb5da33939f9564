// Package logger provides a structured logging interface for the engine.
//
// It wraps the zerolog library to provide a clean, easy-to-use API with support for:
// - Multiple log levels (Debug, Info, Warn, Error, Fatal)
// - Structured logging with fields
// - Colored console output when stderr is a terminal, JSON otherwise
// - Optional additional file output
// - Global logger instance for easy access
//
// Basic Usage:
//
//	import "tierup/pkg/logger"
//
//	// Initialize the global logger
//	cfg := &config.LoggingConfig{
//	    Level:  "info",
//	    Format: "console",
//	}
//	err := logger.Initialize(cfg)
//
//	// Use the global logger
//	logger.Info("Run started")
//	logger.WithField("url", libraryURL).Info("Navigating to library")
//	logger.WithError(err).Error("Failed to download image")
//
// Advanced Usage:
//
//	// Create a logger instance with fields
//	log := logger.GetLogger().
//	    WithField("component", "collector").
//	    WithField("run_id", runID)
//
//	// Use structured logging
//	log.InfoWithFields("Download completed", map[string]interface{}{
//	    "file": "half_life_2.jpg",
//	    "size": 1024000,
//	    "attempts": 1,
//	})
//
// The logger supports the following configuration options:
// - Level: Log level (debug, info, warn, error, fatal, disabled)
// - Format: "console", "json", or "auto" (terminal detection)
// - File: Path to an additional log file (empty for stderr only)
package logger
