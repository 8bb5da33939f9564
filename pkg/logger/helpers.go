package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LogDownload logs the outcome of a single image download
func LogDownload(log Logger, title, url string, size int64, attempts int, err error) {
	if log == nil {
		log = GetLogger()
	}
	log = log.WithFields(map[string]interface{}{
		"title":    title,
		"url":      url,
		"attempts": attempts,
	})

	if err != nil {
		log.WithError(err).Error("Download failed")
		return
	}
	log.WithField("size", size).Info("Download completed")
}

// LogUpload logs the outcome of a single image upload
func LogUpload(log Logger, title, path string, attempts int, err error) {
	if log == nil {
		log = GetLogger()
	}
	log = log.WithFields(map[string]interface{}{
		"title":    title,
		"path":     path,
		"attempts": attempts,
	})

	if err != nil {
		log.WithError(err).Error("Upload failed")
		return
	}
	log.Info("Upload confirmed")
}

// LogScrollProgress logs one scroll-and-settle iteration
func LogScrollProgress(log Logger, iteration int, height int64, stableCount int) {
	if log == nil {
		log = GetLogger()
	}
	log.WithFields(map[string]interface{}{
		"iteration": iteration,
		"height":    height,
		"stable":    stableCount,
	}).Debug("Scroll iteration")
}

// LogLoginWait logs one poll of the login wall wait
func LogLoginWait(log Logger, elapsed, remaining time.Duration) {
	if log == nil {
		log = GetLogger()
	}
	log.WithFields(map[string]interface{}{
		"elapsed":   elapsed,
		"remaining": remaining,
	}).Debug("Still waiting for login in the browser window")
}

// LogComponentStart logs when a component starts
func LogComponentStart(log Logger, component string, config map[string]interface{}) {
	if log == nil {
		log = GetLogger()
	}
	log = log.WithField("component", component)

	if len(config) > 0 {
		log = log.WithFields(config)
	}

	log.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(log Logger, component string, reason string) {
	if log == nil {
		log = GetLogger()
	}
	log.WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

// nopLogger is a logger that does nothing (useful for testing)
type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
