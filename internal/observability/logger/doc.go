// Package logger provides a singleton Zap logger with context-based scoping.
//
// Initialization (once, in main):
//
//	logger.Init(logger.Config{Env: "prod", Level: "info"})
//	defer logger.Sync()
//
// In handlers/services (with context):
//
//	log := logger.From(ctx)
//	log.Info("callback resolved", logger.Provider(name), logger.AccountID(id))
//
// Without context (fallback to the singleton):
//
//	logger.L().Info("application started")
package logger
