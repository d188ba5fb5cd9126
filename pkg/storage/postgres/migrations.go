package postgres

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/rhuss/trianswer/pkg/storage"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// migrate applies embedded migrations that are not yet recorded in
// schema_migrations. The first migration creates that table.
func (s *Store) migrate(ctx context.Context) error {
	migrations, err := storage.ListMigrations(migrationFiles)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		var exists bool
		err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)",
			m.Version,
		).Scan(&exists)
		// Fails before schema_migrations exists; treat as not applied.
		if err != nil {
			exists = false
		}
		if exists {
			continue
		}

		content, err := migrationFiles.ReadFile("migrations/" + m.Name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", m.Name, err)
		}

		slog.Info("applying migration", "file", m.Name, "version", m.Version)

		if _, err := s.pool.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("applying migration %s: %w", m.Name, err)
		}
		if _, err := s.pool.Exec(ctx,
			"INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING",
			m.Version,
		); err != nil {
			return fmt.Errorf("recording migration %s: %w", m.Name, err)
		}
	}
	return nil
}
