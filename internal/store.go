package internal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// defaultHistoryLimit 歷史查詢預設回傳筆數
const defaultHistoryLimit = 50

// PostgresStore PostgreSQL 訊息持久層
//
// 實作 Store 介面：追加訊息、讀取單一房間最近的非系統訊息。
// 路由層對持久化失敗一律 log-and-continue，因此這裡只負責
// 回傳顯式錯誤，不做重試。
type PostgresStore struct {
	pool         *pgxpool.Pool
	historyLimit int
	logger       *slog.Logger
}

// NewPostgresStore 建立訊息持久層
func NewPostgresStore(pool *pgxpool.Pool, historyLimit int, logger *slog.Logger) *PostgresStore {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &PostgresStore{
		pool:         pool,
		historyLimit: historyLimit,
		logger:       logger,
	}
}

// Append 追加一筆訊息
func (s *PostgresStore) Append(ctx context.Context, msg *Message) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (kind, room, username, recipient, text, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		string(msg.Kind),
		nullable(msg.Room),
		msg.Username,
		nullable(msg.Recipient),
		msg.Text,
		msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("追加訊息失敗: %w", err)
	}
	return nil
}

// RecentHistory 讀取房間最近的訊息
//
// 取最近 N 筆非系統訊息，回傳時間順序（最舊在前）。
// 先以 created_at DESC 取尾端再反轉，id 作為同時間戳的決勝鍵。
func (s *PostgresStore) RecentHistory(ctx context.Context, room string) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT kind, COALESCE(room, ''), username, COALESCE(recipient, ''), text, created_at
		 FROM messages
		 WHERE room = $1 AND kind <> $2
		 ORDER BY created_at DESC, id DESC
		 LIMIT $3`,
		room, string(KindSystem), s.historyLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("查詢房間歷史失敗: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var kind string
		if err := rows.Scan(&kind, &m.Room, &m.Username, &m.Recipient, &m.Text, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("讀取訊息列失敗: %w", err)
		}
		m.Kind = MessageKind(kind)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍歷訊息列失敗: %w", err)
	}

	// DESC 查詢結果反轉為時間順序
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// nullable 空字串以 NULL 寫入
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
