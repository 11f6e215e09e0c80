package internal

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Handler HTTP 請求處理器
//
// 唯讀查詢面（房間列表、歷史）直接讀 Directory / Store，
// 不經過路由核心，也不做任何狀態異動。
type Handler struct {
	router *Router
	store  Store
	auth   *AuthService
	logger *slog.Logger
}

// NewHandler 建立 HTTP 處理器
func NewHandler(router *Router, store Store, auth *AuthService, logger *slog.Logger) *Handler {
	return &Handler{
		router: router,
		store:  store,
		auth:   auth,
		logger: logger,
	}
}

// Routes 設定路由
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// 中間件鏈
	wrap := func(handler http.HandlerFunc) http.HandlerFunc {
		return h.recoverer(h.loggerMiddleware(handler))
	}

	// 帳號 API
	mux.HandleFunc("POST /register", wrap(h.register))
	mux.HandleFunc("POST /login", wrap(h.login))

	// 唯讀查詢面
	mux.HandleFunc("GET /api/rooms", wrap(h.listRooms))
	mux.HandleFunc("GET /api/messages/{room}", wrap(h.roomHistory))

	// 健康檢查
	mux.HandleFunc("GET /health", wrap(h.health))

	return mux
}

// 請求結構
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// register 註冊帳號
func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, "無效的請求格式", http.StatusBadRequest)
		return
	}

	if req.Username == "" || req.Password == "" {
		h.errorResponse(w, "帳號與密碼為必填", http.StatusBadRequest)
		return
	}

	token, err := h.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			h.errorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("註冊失敗", "username", req.Username, "error", err)
		h.errorResponse(w, "內部伺服器錯誤", http.StatusInternalServerError)
		return
	}

	h.jsonResponse(w, map[string]any{"token": token}, http.StatusOK)
}

// login 登入
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, "無效的請求格式", http.StatusBadRequest)
		return
	}

	token, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			h.errorResponse(w, err.Error(), http.StatusUnauthorized)
			return
		}
		h.logger.Error("登入失敗", "username", req.Username, "error", err)
		h.errorResponse(w, "內部伺服器錯誤", http.StatusInternalServerError)
		return
	}

	h.jsonResponse(w, map[string]any{"token": token}, http.StatusOK)
}

// listRooms 列出活躍房間（種子房間永遠包含在內）
func (h *Handler) listRooms(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, h.router.ListActiveRooms(), http.StatusOK)
}

// roomHistory 查詢房間歷史
//
// 回傳最近 N 筆非系統訊息，時間順序（最舊在前）。
func (h *Handler) roomHistory(w http.ResponseWriter, r *http.Request) {
	room := r.PathValue("room")
	if room == "" {
		h.errorResponse(w, "缺少房間名稱", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	messages, err := h.store.RecentHistory(ctx, room)
	if err != nil {
		h.logger.Error("查詢房間歷史失敗", "room", room, "error", err)
		h.errorResponse(w, "內部伺服器錯誤", http.StatusInternalServerError)
		return
	}

	if messages == nil {
		messages = []Message{}
	}
	h.jsonResponse(w, messages, http.StatusOK)
}

// health 健康檢查
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, map[string]any{
		"status": "healthy",
		"time":   time.Now().Unix(),
	}, http.StatusOK)
}

// jsonResponse 返回 JSON 響應
func (h *Handler) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("編碼 JSON 失敗", "error", err)
	}
}

// errorResponse 返回錯誤響應
func (h *Handler) errorResponse(w http.ResponseWriter, message string, status int) {
	h.jsonResponse(w, map[string]any{
		"error": message,
	}, status)
}

// loggerMiddleware 日誌中間件
func (h *Handler) loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// 包裝 ResponseWriter 以獲取狀態碼
		ww := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next(ww, r)

		h.logger.Info("HTTP 請求",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration", time.Since(start))
	}
}

// recoverer panic 恢復中間件
func (h *Handler) recoverer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.logger.Error("處理請求時發生 panic",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path)

				h.errorResponse(w, "內部伺服器錯誤", http.StatusInternalServerError)
			}
		}()

		next(w, r)
	}
}

// responseWriter 包裝 ResponseWriter 以獲取狀態碼
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
