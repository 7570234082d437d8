package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"

	"github.com/RezaEskandarii/hostfire/internal/constants"
	"github.com/RezaEskandarii/hostfire/internal/lock"
	"github.com/RezaEskandarii/hostfire/types/config"
)

//go:embed migrations
var migrations embed.FS

// Migrate creates the hostfire schema and tables when they are missing.
// Only one server runs the scripts at a time; the others wait on the
// migration lock and then find every object already in place.
//
// The scripts are idempotent, so running them on every start is safe.
func Migrate(ctx context.Context, conn *sql.DB, driver config.StorageDriver, distributedLock lock.DistributedLockManager) (err error) {
	scripts, err := readSQLScripts(driver)
	if err != nil {
		return err
	}

	if err = conn.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", driver, err)
	}

	if err = distributedLock.Acquire(ctx, constants.MigrationLock); err != nil {
		return err
	}
	defer func() {
		if releaseErr := distributedLock.Release(context.WithoutCancel(ctx), constants.MigrationLock); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()

	for _, script := range scripts {
		slog.Debug("running migration", "script", script.name, "driver", driver.String())
		if _, err := conn.ExecContext(ctx, script.body); err != nil {
			return fmt.Errorf("migration %s: %w", script.name, err)
		}
	}

	slog.Info("storage schema is up to date", "driver", driver.String(), "scripts", len(scripts))
	return nil
}

type sqlScript struct {
	name string
	body string
}

func readSQLScripts(driver config.StorageDriver) ([]sqlScript, error) {
	dir := path.Join("migrations", driver.String())
	entries, err := fs.ReadDir(migrations, dir)
	if err != nil {
		return nil, fmt.Errorf("no migrations for driver %s: %w", driver, err)
	}

	var scripts []sqlScript
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}

		content, err := fs.ReadFile(migrations, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		scripts = append(scripts, sqlScript{name: entry.Name(), body: string(content)})
	}
	sort.Slice(scripts, func(i, j int) bool { return scripts[i].name < scripts[j].name })

	return scripts, nil
}
