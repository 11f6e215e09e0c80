// Package testutils 提供測試用的共用工具
//
// 本套件管理 PostgreSQL 測試容器（testcontainers），
// 啟動容器、執行遷移，並在測試結束時自動清理。
package testutils

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/koopa0/system-design/14-chat-system/internal/migrations"
)

// TestEnvironment 封裝測試環境
type TestEnvironment struct {
	Pool        *pgxpool.Pool
	PostgresDSN string
	Logger      *slog.Logger
}

// SetupPostgres 啟動 PostgreSQL 容器並執行遷移
//
// 使用範例：
//
//	func TestSomething(t *testing.T) {
//	    env := testutils.SetupPostgres(t)
//	    // 使用 env.Pool
//	}
func SetupPostgres(t testing.TB) *TestEnvironment {
	t.Helper()

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelWarn, // 測試時減少日誌噪音
	}))

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("chat_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	// 執行遷移
	migrator, err := migrations.New(dsn, logger)
	if err != nil {
		t.Fatalf("failed to create migrator: %v", err)
	}
	if err := migrator.Up(); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	if err := migrator.Close(); err != nil {
		t.Logf("failed to close migrator: %v", err)
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("failed to parse pool config: %v", err)
	}
	poolCfg.MaxConns = 5
	poolCfg.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		t.Fatalf("failed to create pgx pool: %v", err)
	}
	t.Cleanup(pool.Close)

	// 等待資料庫可用
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		t.Fatalf("failed to ping postgres: %v", err)
	}

	return &TestEnvironment{
		Pool:        pool,
		PostgresDSN: dsn,
		Logger:      logger,
	}
}
