//go:build wireinject

package main

import (
	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/cory-johannsen/battlebus/internal/config"
)

func initializeApp(cfg config.Config, logger *zap.Logger) (*App, func(), error) {
	wire.Build(provideEngine, provideScripts, provideModifiers, NewApp)
	return nil, nil, nil
}
