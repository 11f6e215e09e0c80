// Package migrations 提供資料庫遷移功能
package migrations

import (
	"embed"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed all:migrations
var migrationsFS embed.FS

// Migrator 管理資料庫遷移
type Migrator struct {
	migrate *migrate.Migrate
	logger  *slog.Logger
}

// New 建立新的遷移管理器
func New(databaseURL string, logger *slog.Logger) (*Migrator, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("建立遷移源失敗: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("建立遷移實例失敗: %w", err)
	}

	return &Migrator{
		migrate: m,
		logger:  logger,
	}, nil
}

// Up 執行所有待處理的遷移
func (m *Migrator) Up() error {
	m.logger.Info("開始執行資料庫遷移")

	if err := m.migrate.Up(); err != nil {
		if err == migrate.ErrNoChange {
			m.logger.Info("資料庫已是最新版本")
			return nil
		}
		return fmt.Errorf("執行遷移失敗: %w", err)
	}

	version, _, _ := m.migrate.Version()
	m.logger.Info("資料庫遷移成功", "version", version)

	return nil
}

// Down 回滾一個版本
func (m *Migrator) Down() error {
	if err := m.migrate.Steps(-1); err != nil {
		if err == migrate.ErrNoChange {
			m.logger.Info("沒有可回滾的版本")
			return nil
		}
		return fmt.Errorf("回滾失敗: %w", err)
	}
	return nil
}

// Close 關閉遷移管理器
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()
	if sourceErr != nil {
		return fmt.Errorf("關閉源失敗: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("關閉資料庫連線失敗: %w", dbErr)
	}
	return nil
}
