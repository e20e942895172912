package commands

import (
	"database/sql"

	"github.com/oneprompt/agentd/config"
	"github.com/oneprompt/agentd/db"
	"github.com/oneprompt/agentd/errors"
	"github.com/oneprompt/agentd/logger"
)

// openDatabase opens and migrates the database at the given path.
// An empty path resolves through the config system.
func openDatabase(dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, errors.Wrap(err, "failed to load configuration")
		}
		dbPath = cfg.Database.Path
	}

	database, err := db.OpenWithMigrations(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}
	return database, nil
}
