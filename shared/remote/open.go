package remote

import (
	"fmt"

	"github.com/pavitra93/care-intake-portal/shared/config"
	"github.com/pavitra93/care-intake-portal/shared/utils"
)

// Open returns the data driver named by cfg.Driver. The Postgres driver
// connects with the DB_* settings and migrates the tables first.
func Open(cfg config.RemoteConfig, breaker *utils.CircuitBreaker) (Remote, error) {
	if cfg.Driver != config.DriverPostgres {
		return NewRESTClient(cfg, breaker), nil
	}

	db, err := config.ConnectDatabase()
	if err != nil {
		return nil, err
	}
	pg := NewPostgresClient(db)
	if err := pg.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate remote tables: %w", err)
	}
	return pg, nil
}
