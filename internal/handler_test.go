package internal_test

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/14-chat-system/internal"
)

// newTestHandler 建立不依賴資料庫的 HTTP 處理器
//
// auth 傳 nil：帳號端點的輸入驗證在觸及 AuthService 之前完成，
// 需要真實帳號流程的測試在 auth_test.go（整合測試）。
func newTestHandler(store *fakeStore) (*internal.Handler, *internal.Router) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := internal.NewRegistry()
	rooms := internal.NewDirectory(seedRooms)
	router := internal.NewRouter(registry, rooms, store, &fakeBroadcaster{}, logger)
	return internal.NewHandler(router, store, nil, logger), router
}

// TestHandler_ListRooms 測試房間列表端點
func TestHandler_ListRooms(t *testing.T) {
	handler, router := newTestHandler(&fakeStore{})
	srv := handler.Routes()

	t.Run("seed rooms only", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var rooms []string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&rooms))
		assert.Equal(t, []string{"Marketing", "RRHH", "Ventas"}, rooms)
	})

	t.Run("dynamic rooms appear after join", func(t *testing.T) {
		router.HandleJoin("Alice", "conn-1", "TempRoom")

		req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)

		var rooms []string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&rooms))
		assert.Contains(t, rooms, "TempRoom")
	})
}

// TestHandler_RoomHistory 測試房間歷史端點
func TestHandler_RoomHistory(t *testing.T) {
	t.Run("returns stored messages", func(t *testing.T) {
		store := &fakeStore{
			history: []internal.Message{
				{Kind: internal.KindRoom, Room: "Ventas", Username: "Alice", Text: "hola", Timestamp: time.Now()},
			},
		}
		handler, _ := newTestHandler(store)

		req := httptest.NewRequest(http.MethodGet, "/api/messages/Ventas", nil)
		w := httptest.NewRecorder()
		handler.Routes().ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var messages []internal.Message
		require.NoError(t, json.NewDecoder(w.Body).Decode(&messages))
		require.Len(t, messages, 1)
		assert.Equal(t, "hola", messages[0].Text)
	})

	t.Run("empty history yields empty array not null", func(t *testing.T) {
		handler, _ := newTestHandler(&fakeStore{})

		req := httptest.NewRequest(http.MethodGet, "/api/messages/Ventas", nil)
		w := httptest.NewRecorder()
		handler.Routes().ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
	})

	t.Run("store failure returns 500", func(t *testing.T) {
		handler, _ := newTestHandler(&fakeStore{historyErr: errors.New("db down")})

		req := httptest.NewRequest(http.MethodGet, "/api/messages/Ventas", nil)
		w := httptest.NewRecorder()
		handler.Routes().ServeHTTP(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

// TestHandler_RegisterValidation 測試註冊輸入驗證
func TestHandler_RegisterValidation(t *testing.T) {
	handler, _ := newTestHandler(&fakeStore{})
	srv := handler.Routes()

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed JSON", body: `{not json`},
		{name: "missing username", body: `{"password":"pw"}`},
		{name: "missing password", body: `{"username":"alice"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			srv.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)

			var resp map[string]any
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Contains(t, resp, "error")
		})
	}
}

// TestHandler_Health 測試健康檢查端點
func TestHandler_Health(t *testing.T) {
	handler, _ := newTestHandler(&fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handler.Routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp["status"])
}

// TestHandler_MethodNotAllowed 測試路由方法限制
func TestHandler_MethodNotAllowed(t *testing.T) {
	handler, _ := newTestHandler(&fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/register", nil)
	w := httptest.NewRecorder()
	handler.Routes().ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
