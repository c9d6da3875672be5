// Package logging provides structured logging for the supervisor.
//
// It wraps log/slog so every component logs with the same fields.
// Operators watching a night's run rely on these entries together with the
// broadcast stream, so state transitions are logged at info level and every
// failure at warn or error.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "file"     # stdout, stderr, file
//	  file:
//	    path: "/var/log/chimera/supervisor.log"
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	defer logger.Close()
//	logger.Info("supervisor starting", "freq_hz", cfg.Supervisor.Freq)
package logging
