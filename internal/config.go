package internal

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// defaultSeedRooms 預設種子房間（組織部門）
var defaultSeedRooms = []string{
	"Jobers",
	"Ventas",
	"Coordinacion",
	"Gestion",
	"Marketing",
	"Contabilidad",
	"RRHH",
}

// Config 整個應用的配置
type Config struct {
	Server struct {
		Port         int           `yaml:"port"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		IdleTimeout  time.Duration `yaml:"idle_timeout"`
	} `yaml:"server"`

	Postgres struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		DBName   string `yaml:"dbname"`
		MaxConns int32  `yaml:"max_conns"`
		MinConns int32  `yaml:"min_conns"`
	} `yaml:"postgres"`

	Chat struct {
		SeedRooms    []string `yaml:"seed_rooms"`
		HistoryLimit int      `yaml:"history_limit"`
	} `yaml:"chat"`

	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// LoadConfig 讀取 YAML 配置檔並套用預設值
//
// path 為空時直接回傳預設配置，方便測試與本地啟動。
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		// #nosec G304 - path 來自命令行參數，非使用者請求輸入
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("讀取配置檔失敗: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置檔失敗: %w", err)
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults 套用預設值
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}

	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.User == "" {
		c.Postgres.User = "postgres"
	}
	if c.Postgres.DBName == "" {
		c.Postgres.DBName = "chat_db"
	}
	if c.Postgres.MaxConns == 0 {
		c.Postgres.MaxConns = 10
	}
	if c.Postgres.MinConns == 0 {
		c.Postgres.MinConns = 2
	}

	if len(c.Chat.SeedRooms) == 0 {
		c.Chat.SeedRooms = defaultSeedRooms
	}
	if c.Chat.HistoryLimit == 0 {
		c.Chat.HistoryLimit = defaultHistoryLimit
	}

	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = time.Hour
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// PostgresDSN 生成 PostgreSQL 連線字串
func (c *Config) PostgresDSN() string {
	// 支援環境變數覆蓋（生產環境常用）
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}

	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Postgres.Host,
		c.Postgres.Port,
		c.Postgres.User,
		c.Postgres.Password,
		c.Postgres.DBName,
	)
}
