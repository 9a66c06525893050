// Package logging provides structured logging for lidarlink.
//
// It wraps log/slog with a fixed set of default fields (service, version)
// and configuration-driven level, format and destination.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("session state changed", "from", "connecting", "to", "connected")
//
// When the operator console owns the terminal, build the logger with
// NewWithWriter and the console's Stdout so log lines do not corrupt the
// prompt.
//
// Never log the InfluxDB token or MQTT password.
package logging
