package di

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/riskdecomp/internal/config"
	"github.com/aristath/riskdecomp/internal/database"
)

// InitializeDatabases opens history.db and applies its schema
func InitializeDatabases(cfg *config.Config, profile database.DatabaseProfile, log zerolog.Logger) (*Container, error) {
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}

	historyDB, err := database.New(database.Config{
		Path:    cfg.HistoryDBPath(),
		Driver:  cfg.DBDriver,
		Profile: profile,
		Name:    "history",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize history database: %w", err)
	}

	if err := historyDB.Migrate(); err != nil {
		historyDB.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := historyDB.QuickCheck(ctx); err != nil {
		historyDB.Close()
		return nil, fmt.Errorf("history database not reachable: %w", err)
	}

	log.Debug().
		Str("path", historyDB.Path()).
		Str("driver", historyDB.Driver()).
		Str("profile", string(profile)).
		Msg("History database ready")

	return &Container{HistoryDB: historyDB}, nil
}
