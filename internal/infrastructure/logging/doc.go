// Package logging builds the daemon's zap logger from config.LogConfig.
//
// Each subsystem gets a named child (transport, memory, orchestrator, api),
// written to the "component" field so lines can be filtered by it:
//
//	logger, err := logging.New(cfg.Logging)
//	log := logger.Component("transport")
//	log.Info("Connected to app", zap.String("session", id))
package logging
