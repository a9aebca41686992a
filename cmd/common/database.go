package common

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/projektkollen/collector/internal/config"
	"github.com/projektkollen/collector/internal/database"
)

// OpenDatabase connects to PostgreSQL and applies the schema. The schema
// statements are idempotent, so every command can run them on startup.
func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := database.NewPostgresConnection(database.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		DBName:          cfg.DBName,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}

	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}
