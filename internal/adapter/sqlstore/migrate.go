package sqlstore

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrations embed.FS

// migrationsTable keeps the migrate bookkeeping apart from the field tables.
const migrationsTable = "nwp_schema_migrations"

// migrateUp applies every pending migration of the dialect. It opens its own
// connection because closing the migrator closes the database handle.
func migrateUp(d dialect, dsn string, logger *slog.Logger) error {
	src, err := iofs.New(migrations, "migrations/"+d.name)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	db, err := sql.Open(d.name, dsn)
	if err != nil {
		return fmt.Errorf("open %s for migrations: %w", d.name, err)
	}

	var driver database.Driver
	switch d.name {
	case DriverMySQL:
		driver, err = migratemysql.WithInstance(db, &migratemysql.Config{MigrationsTable: migrationsTable})
	case DriverPostgres:
		driver, err = migratepostgres.WithInstance(db, &migratepostgres.Config{MigrationsTable: migrationsTable})
	}
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, d.name, driver)
	if err != nil {
		_ = driver.Close()
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug("schema up to date")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, _, _ := m.Version()
	logger.Info("schema migrated", "version", version)
	return nil
}
