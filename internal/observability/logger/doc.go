// Package logger expone un logger Zap global con scoping por contexto.
//
// Inicialización (una vez, en main):
//
//	logger.Init(logger.Config{Env: cfg.Log.Env, Level: cfg.Log.Level})
//	defer logger.Sync()
//
// En services y controllers:
//
//	log := logger.From(ctx).With(logger.Component("linking"), logger.Op("CompleteLink"))
//	log.Info("account linked", logger.Platform(p), logger.AccountID(id))
//
// Tokens OAuth y valores de state no se loguean nunca; usar StateRef.
package logger
