package database

import (
	"embed"

	"github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migration directions accepted by Migrate.
const (
	Up   = "up"
	Down = "down"
)

// Migrate applies (or rolls back by one step) the embedded schema.
func Migrate(dsn, direction string) error {
	url, err := migrationURL(dsn)
	if err != nil {
		return err
	}

	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return errors.Wrap(err, "migrate: load embedded files")
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return errors.Wrap(err, "migrate: init")
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			log.WithFields(log.Fields{"source_error": srcErr, "db_error": dbErr}).Warn("migrate: close")
		}
	}()

	switch direction {
	case Up:
		err = m.Up()
	case Down:
		err = m.Steps(-1)
	default:
		return errors.Errorf("migrate: unknown direction %q", direction)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrapf(err, "migrate %s", direction)
	}

	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return errors.Wrap(verr, "migrate: read version")
	}
	log.WithFields(log.Fields{"direction": direction, "version": version, "dirty": dirty}).Info("schema migrated")
	return nil
}

// migrationURL rewrites an application DSN into the migrate driver URL.
// Migration files hold several statements, so multiStatements is forced on.
func migrationURL(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", errors.Wrap(err, "migrate: parse dsn")
	}
	cfg.MultiStatements = true
	return "mysql://" + cfg.FormatDSN(), nil
}
