package di

import (
	"github.com/rs/zerolog"

	"github.com/aristath/riskdecomp/internal/config"
	"github.com/aristath/riskdecomp/internal/modules/analysis"
	"github.com/aristath/riskdecomp/internal/modules/marketdata"
)

// InitializeServices builds the repositories and services on top of the
// container's databases
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) {
	container.MarketData = marketdata.NewHistoryDB(container.HistoryDB.Conn(), log)
	container.Importer = marketdata.NewCSVImporter(container.MarketData, log)
	container.Analysis = analysis.NewService(container.MarketData, cfg.BucketPercent, log)
}
