package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koopa0/system-design/14-chat-system/internal"
	"github.com/koopa0/system-design/14-chat-system/internal/migrations"
)

func main() {
	// 解析命令行參數
	var (
		configPath = flag.String("config", "", "配置檔路徑（空值使用預設配置）")
		port       = flag.Int("port", 0, "服務器端口（覆蓋配置檔）")
		logLevel   = flag.String("log-level", "", "日誌級別 (debug, info, warn, error)")
		logFormat  = flag.String("log-format", "", "日誌格式 (text, json)")
	)
	flag.Parse()

	cfg, err := internal.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "載入配置失敗: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}

	// 設置日誌
	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)

	// 資料庫遷移
	dsn := cfg.PostgresDSN()
	migrator, err := migrations.New(migrateURL(cfg), logger)
	if err != nil {
		logger.Error("建立遷移管理器失敗", "error", err)
		os.Exit(1)
	}
	if err := migrator.Up(); err != nil {
		logger.Error("資料庫遷移失敗", "error", err)
		os.Exit(1)
	}
	if err := migrator.Close(); err != nil {
		logger.Warn("關閉遷移管理器失敗", "error", err)
	}

	// 建立資料庫連接池
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		logger.Error("解析資料庫配置失敗", "error", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = cfg.Postgres.MaxConns
	poolCfg.MinConns = cfg.Postgres.MinConns

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		logger.Error("建立資料庫連接池失敗", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 組裝核心：註冊表由這裡顯式建構並傳入路由器，
	// 服務啟動時建立、關閉時丟棄，不使用行程級單例
	registry := internal.NewRegistry()
	rooms := internal.NewDirectory(cfg.Chat.SeedRooms)
	store := internal.NewPostgresStore(pool, cfg.Chat.HistoryLimit, logger)
	auth := internal.NewAuthService(pool, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, logger)

	hub := internal.NewHub(logger)
	router := internal.NewRouter(registry, rooms, store, hub, logger)
	hub.Bind(router)

	handler := internal.NewHandler(router, store, auth, logger)

	// 設置路由
	mux := http.NewServeMux()
	mux.Handle("/", handler.Routes())
	mux.HandleFunc("/ws", hub.ServeWS)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 啟動服務器
	go func() {
		logger.Info("聊天服務器啟動",
			"port", cfg.Server.Port,
			"seed_rooms", len(cfg.Chat.SeedRooms))

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("服務器啟動失敗", "error", err)
			os.Exit(1)
		}
	}()

	// 等待中斷信號
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("收到關閉信號，開始優雅關閉...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("服務器關閉失敗", "error", err)
	}

	hub.Stop()

	logger.Info("服務器已關閉")
}

// migrateURL 組出 golang-migrate 需要的 postgres:// URL
func migrateURL(cfg *internal.Config) string {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.DBName,
	)
}

// setupLogger 設置日誌
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: level == "debug",
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
