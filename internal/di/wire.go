//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"storefront-backend/internal/config"
)

// InitializeContainer builds the application for cfg.
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil
}
