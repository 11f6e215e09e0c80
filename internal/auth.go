package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// 身份發放是核心外圍的黏合層：註冊與登入只負責發 JWT，
// 傳輸層與路由核心不驗證 token（沿用既有行為）。

var (
	// ErrUsernameTaken 使用者名稱已存在
	ErrUsernameTaken = errors.New("使用者名稱已存在")
	// ErrInvalidCredentials 帳號或密碼錯誤
	ErrInvalidCredentials = errors.New("帳號或密碼錯誤")
)

// AuthService 帳號註冊與登入
type AuthService struct {
	pool     *pgxpool.Pool
	secret   []byte
	tokenTTL time.Duration
	logger   *slog.Logger
}

// NewAuthService 建立認證服務
func NewAuthService(pool *pgxpool.Pool, secret string, tokenTTL time.Duration, logger *slog.Logger) *AuthService {
	return &AuthService{
		pool:     pool,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		logger:   logger,
	}
}

// Register 註冊新帳號並回傳 JWT
func (a *AuthService) Register(ctx context.Context, username, password string) (string, error) {
	if username == "" || password == "" {
		return "", ErrInvalidCredentials
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("密碼雜湊失敗: %w", err)
	}

	// ON CONFLICT DO NOTHING：以資料庫唯一鍵處理重複註冊，
	// 避免先查再寫的競態
	tag, err := a.pool.Exec(ctx,
		`INSERT INTO users (username, hashed_password)
		 VALUES ($1, $2)
		 ON CONFLICT (username) DO NOTHING`,
		username, hashed,
	)
	if err != nil {
		return "", fmt.Errorf("寫入帳號失敗: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", ErrUsernameTaken
	}

	a.logger.Info("帳號註冊成功", "username", username)
	return a.issueToken(username)
}

// Login 驗證帳號密碼並回傳 JWT
func (a *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	var hashed []byte
	err := a.pool.QueryRow(ctx,
		`SELECT hashed_password FROM users WHERE username = $1`,
		username,
	).Scan(&hashed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("查詢帳號失敗: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword(hashed, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	return a.issueToken(username)
}

// VerifyToken 驗證 JWT 並取出使用者名稱
func (a *AuthService) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("非預期的簽名方法: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidCredentials
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidCredentials
	}
	username, _ := claims["username"].(string)
	if username == "" {
		return "", ErrInvalidCredentials
	}
	return username, nil
}

// issueToken 簽發 HS256 JWT
func (a *AuthService) issueToken(username string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": username,
		"exp":      time.Now().Add(a.tokenTTL).Unix(),
	})

	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("簽發 token 失敗: %w", err)
	}
	return signed, nil
}
