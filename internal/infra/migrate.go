package infra

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// RunMigrations brings the players, provider_transactions and event_outbox
// schema up to date. dir may be empty, in which case db/migrations is looked
// up from the working directory towards the root.
func RunMigrations(dsn, dir string, logger *slog.Logger) error {
	migrationDir, err := resolveMigrationDir(dir)
	if err != nil {
		return err
	}

	m, err := migrate.New("file://"+migrationDir, dsn)
	if err != nil {
		return fmt.Errorf("open migrations %s: %w", migrationDir, err)
	}
	defer m.Close()

	from, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("schema is dirty at version %d; repair it and force the version before starting", from)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("schema up to date", "version", from, "dir", migrationDir)
			return nil
		}
		return fmt.Errorf("migrate up from version %d: %w", from, err)
	}

	to, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	logger.Info("migrations applied", "from", from, "to", to, "dir", migrationDir)
	return nil
}

func resolveMigrationDir(configured string) (string, error) {
	if configured != "" {
		if info, err := os.Stat(configured); err != nil || !info.IsDir() {
			return "", fmt.Errorf("MIGRATIONS_DIR %s is not a directory", configured)
		}
		return filepath.Abs(configured)
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("locate migrations: %w", err)
	}
	for {
		candidate := filepath.Join(dir, "db", "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("locate migrations: no db/migrations above the working directory")
		}
		dir = parent
	}
}
