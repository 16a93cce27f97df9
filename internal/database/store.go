package database

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/iliyamo/egfr-calculator/internal/config"
	"github.com/iliyamo/egfr-calculator/internal/docstore"
)

// OpenStore opens the configured backend.  SQL backends get their documents
// table created when missing.
func OpenStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (docstore.Store, error) {
	log = log.With().Str("driver", cfg.StoreDriver).Logger()
	switch cfg.StoreDriver {
	case config.DriverMongo:
		db, err := OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		log.Info().Str("database", cfg.MongoDatabase).Msg("connected to mongodb")
		return docstore.NewMongo(db), nil

	case config.DriverMySQL:
		db, err := OpenMySQL(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return nil, err
		}
		s := docstore.NewMySQL(db)
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate mysql: %w", err)
		}
		log.Info().Str("host", cfg.DBHost).Msg("connected to mysql")
		return s, nil

	case config.DriverPostgres:
		pool, err := OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s := docstore.NewPostgres(pool)
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		log.Info().Msg("connected to postgres")
		return s, nil

	case config.DriverMemory:
		log.Warn().Msg("using in-memory store, data is lost on exit")
		return docstore.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
