package main

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/fastprodman/coinsync/internal/infra/logging"
	"github.com/fastprodman/coinsync/pkg/envconf"
)

//go:embed migrations/*.sql
var schemaFS embed.FS

//go:embed test_data/*.sql
var seedFS embed.FS

type migratorConfig struct {
	DSN      string     `env:"PG_DSN"`
	LogLevel slog.Level `env:"APP_LOG_LEVEL" default:"info"`
	AppEnv   string     `env:"APP_ENV" default:"PROD"`
	// Steps > 0 migrates that many versions up, < 0 that many down, 0 all the way up.
	Steps int `env:"MIGRATE_STEPS" default:"0"`
}

// migrationSet is one embedded directory tracked in its own version table,
// so the seed set never interleaves with schema versions.
type migrationSet struct {
	name  string
	fsys  fs.FS
	dir   string
	table string
}

var (
	schemaSet = migrationSet{name: "schema", fsys: schemaFS, dir: "migrations", table: postgres.DefaultMigrationsTable}
	seedSet   = migrationSet{name: "dev seed", fsys: seedFS, dir: "test_data", table: "seed_migrations"}
)

func main() {
	err := run()
	if err != nil {
		slog.Error("migration run failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg migratorConfig

	err := envconf.Load(&cfg)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.SetupJSON(cfg.LogLevel)

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	//nolint:errcheck
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	sets := []migrationSet{schemaSet}
	if strings.EqualFold(cfg.AppEnv, "DEV") {
		sets = append(sets, seedSet)
	}

	// going down, seeds must be reverted before the schema under them
	if cfg.Steps < 0 {
		for i, j := 0, len(sets)-1; i < j; i, j = i+1, j-1 {
			sets[i], sets[j] = sets[j], sets[i]
		}
	}

	for _, set := range sets {
		err = set.apply(db, cfg.Steps)
		if err != nil {
			return fmt.Errorf("%s migrations: %w", set.name, err)
		}
	}

	slog.Info("migration run finished")

	return nil
}

func (s migrationSet) apply(db *sql.DB, steps int) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: s.table})
	if err != nil {
		return fmt.Errorf("postgres driver: %w", err)
	}

	src, err := iofs.New(s.fsys, s.dir)
	if err != nil {
		return fmt.Errorf("iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}

	if steps == 0 {
		err = m.Up()
	} else {
		err = m.Steps(steps)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate: %w", err)
	}

	version, dirty, err := m.Version()

	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		slog.Info("migrations applied", "set", s.name, "version", "none")
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		slog.Info("migrations applied", "set", s.name, "version", version, "dirty", dirty)
	}

	return nil
}
