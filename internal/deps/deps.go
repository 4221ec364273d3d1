package deps

import (
	"time"

	"github.com/and161185/imagify/internal/auth"
	"go.uber.org/zap"
)

type Deps struct {
	Logger       *zap.SugaredLogger
	TokenManager *auth.TokenManager
}

// NewDependencies builds the production logger and the token manager.
// With no outputs the logger writes to stdout only.
func NewDependencies(secretKey string, tokenTTL time.Duration, logOutputs []string) (*Deps, error) {
	logCfg := zap.NewProductionConfig()
	logCfg.OutputPaths = []string{"stdout"}
	if len(logOutputs) > 0 {
		logCfg.OutputPaths = logOutputs
	}

	logger, err := logCfg.Build()
	if err != nil {
		return nil, err
	}

	return &Deps{
		Logger:       logger.Sugar(),
		TokenManager: auth.NewTokenManager(secretKey, tokenTTL),
	}, nil
}
