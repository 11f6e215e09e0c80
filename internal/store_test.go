package internal_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/14-chat-system/internal"
	"github.com/koopa0/system-design/14-chat-system/internal/testutils"
)

// TestPostgresStore_History 持久層整合測試
//
// 驗證歷史查詢的三個約束：只取最近 N 筆、時間順序回傳、
// 排除系統訊息與其他房間的訊息。
func TestPostgresStore_History(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	env := testutils.SetupPostgres(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := internal.NewPostgresStore(env.Pool, 50, logger)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour).Truncate(time.Microsecond)

	// Ventas 寫入 60 筆房間訊息，超出查詢上限
	for i := 0; i < 60; i++ {
		msg := &internal.Message{
			Kind:      internal.KindRoom,
			Room:      "Ventas",
			Username:  "Alice",
			Text:      fmt.Sprintf("mensaje %02d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, store.Append(ctx, msg))
	}

	// 雜訊：系統訊息、其他房間、私訊（room 為 NULL）
	require.NoError(t, store.Append(ctx, &internal.Message{
		Kind: internal.KindSystem, Room: "Ventas", Username: "system",
		Text: "maintenance", Timestamp: base.Add(30 * time.Second),
	}))
	require.NoError(t, store.Append(ctx, &internal.Message{
		Kind: internal.KindRoom, Room: "Marketing", Username: "Bob",
		Text: "otro canal", Timestamp: base.Add(30 * time.Second),
	}))
	require.NoError(t, store.Append(ctx, &internal.Message{
		Kind: internal.KindDirect, Username: "Alice", Recipient: "Bob",
		Text: "privado", Timestamp: base.Add(30 * time.Second),
	}))

	messages, err := store.RecentHistory(ctx, "Ventas")
	require.NoError(t, err)

	// 恰好 50 筆，是最近的 50 筆（10..59），時間順序
	require.Len(t, messages, 50)
	assert.Equal(t, "mensaje 10", messages[0].Text)
	assert.Equal(t, "mensaje 59", messages[49].Text)
	for i := 1; i < len(messages); i++ {
		assert.False(t, messages[i].Timestamp.Before(messages[i-1].Timestamp),
			"歷史必須按時間順序回傳")
	}
	for _, m := range messages {
		assert.Equal(t, internal.KindRoom, m.Kind)
		assert.Equal(t, "Ventas", m.Room)
	}
}

// TestPostgresStore_EmptyRoom 測試無歷史的房間
func TestPostgresStore_EmptyRoom(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	env := testutils.SetupPostgres(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := internal.NewPostgresStore(env.Pool, 50, logger)

	messages, err := store.RecentHistory(context.Background(), "SalaVacia")
	require.NoError(t, err)
	assert.Empty(t, messages)
}
