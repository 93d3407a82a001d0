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

// RunMigrations brings the schema up to the newest file in dir. An empty dir
// is located with LocateMigrations from the working directory. A dirty schema
// left by an interrupted run is reported instead of being migrated over.
func RunMigrations(dsn, dir string, logger *slog.Logger) (err error) {
	if dir == "" {
		wd, wdErr := os.Getwd()
		if wdErr != nil {
			return fmt.Errorf("locate migrations: %w", wdErr)
		}
		if dir, err = LocateMigrations(wd); err != nil {
			return err
		}
	}

	m, err := migrate.New("file://"+filepath.ToSlash(dir), dsn)
	if err != nil {
		return fmt.Errorf("open migrations %s: %w", dir, err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if err == nil {
			err = errors.Join(srcErr, dbErr)
		}
	}()

	from, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		from = 0
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case dirty:
		return fmt.Errorf("schema version %d is dirty; fix it and force the version before migrating", from)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up from %d: %w", from, err)
	}

	to, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if to == from {
		logger.Info("schema up to date", "version", to)
	} else {
		logger.Info("schema migrated", "dir", dir, "from", from, "to", to)
	}
	return nil
}

// LocateMigrations walks up from start to the first db/migrations directory.
func LocateMigrations(start string) (string, error) {
	dir := filepath.Clean(start)
	for {
		candidate := filepath.Join(dir, "db", "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no db/migrations directory above %s", start)
		}
		dir = parent
	}
}
