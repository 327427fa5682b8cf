// Package di provides dependency injection type definitions.
package di

import (
	"github.com/aristath/riskdecomp/internal/database"
	"github.com/aristath/riskdecomp/internal/modules/analysis"
	"github.com/aristath/riskdecomp/internal/modules/marketdata"
)

// Container holds the wired dependencies of one CLI invocation
type Container struct {
	// Databases
	HistoryDB *database.DB

	// Repositories
	MarketData *marketdata.HistoryDB

	// Services
	Importer *marketdata.CSVImporter
	Analysis *analysis.Service
}

// Close releases the databases held by the container
func (c *Container) Close() error {
	if c == nil || c.HistoryDB == nil {
		return nil
	}
	return c.HistoryDB.Close()
}
