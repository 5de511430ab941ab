// Package logging provides structured logging for mysa-core.
//
// It wraps log/slog so every component logs the same way: JSON in
// production, text for development, with service and version attached to
// every entry.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	rt := logger.Component("realtime")
//	rt.Info("subscribed", "topics", 12)
//
// # Security
//
// Never log tokens, passwords, or signed broker URLs. The signed URL carries
// a live session token in its query string.
package logging
