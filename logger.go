package main

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logger is the package-wide structured logger. It defaults to a no-op so
// library code and tests can log unconditionally; initLogger swaps in the
// real logger once the environment has been loaded.
var (
	logger     = zap.NewNop()
	loggerOnce sync.Once
)

func initLogger() {
	loggerOnce.Do(func() {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		if envBool("DEBUG", false) {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}

		l, err := cfg.Build()
		if err != nil {
			panic(fmt.Sprintf("failed to create logger: %+v", err))
		}
		logger = l.Named("restcheck")
	})
}
