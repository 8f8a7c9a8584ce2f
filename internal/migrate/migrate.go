// Package migrate はデータベーススキーマのマイグレーションを提供します。
package migrate

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
)

//go:embed sql/*.sql
var files embed.FS

// Source は埋め込まれたマイグレーションファイルを返します。
func Source() (source.Driver, error) {
	return iofs.New(files, "sql")
}

// Up は未適用のマイグレーションをすべて適用します。
func Up(databaseURL string, logger logrus.FieldLogger) error {
	return run(databaseURL, logger, func(m *migrate.Migrate) error { return m.Up() })
}

// Down はすべてのマイグレーションを取り消します。
func Down(databaseURL string, logger logrus.FieldLogger) error {
	return run(databaseURL, logger, func(m *migrate.Migrate) error { return m.Down() })
}

func run(databaseURL string, logger logrus.FieldLogger, step func(*migrate.Migrate) error) error {
	if databaseURL == "" {
		return errors.New("DATABASE_URL が設定されていません")
	}
	src, err := Source()
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil || dbErr != nil {
			logger.WithFields(logrus.Fields{"source_error": srcErr, "database_error": dbErr}).Warn("failed to close migrate")
		}
	}()
	m.Log = &migrateLogger{logger: logger}

	if err := step(m); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("schema already up to date")
			return nil
		}
		return err
	}
	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		logger.Info("all migrations reverted")
	case err != nil:
		return err
	default:
		logger.WithFields(logrus.Fields{"version": version, "dirty": dirty}).Info("migrations applied")
	}
	return nil
}

// migrateLogger は migrate.Logger を logrus に橋渡しします。
type migrateLogger struct {
	logger logrus.FieldLogger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debugf(format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}
