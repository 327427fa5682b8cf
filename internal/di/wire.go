package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/riskdecomp/internal/config"
	"github.com/aristath/riskdecomp/internal/database"
)

// Wire initializes all dependencies and returns a fully configured container.
// The caller owns the container and must Close it.
func Wire(cfg *config.Config, profile database.DatabaseProfile, log zerolog.Logger) (*Container, error) {
	container, err := InitializeDatabases(cfg, profile, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	InitializeServices(container, cfg, log)

	log.Debug().Msg("Dependency injection wiring completed successfully")

	return container, nil
}
