package internal

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// 系統設計問題：
//   如何把 WebSocket 連接管理（升級、心跳、斷線）與路由核心解耦？
//
// 設計方案：
//   ✅ Hub 模式 - 集中管理所有連接，實作 Broadcaster 介面
//   ✅ Ping/Pong 心跳 - 檢測死連接（54s/60s）
//   ✅ 緩衝 channel - 異步發送（慢客戶端不阻塞廣播）
//   ✅ 逐事件解碼驗證 - 單一畸形封包不影響其他連接與房間

// Hub WebSocket 連接中心
//
// 連接層的房間成員資格（哪些連接訂閱哪個房間的廣播）記在
// Conn.rooms，與 Directory 的身份級成員名單是兩回事：被同
// 身份新連接覆蓋的舊連接仍留在其已加入的房間，持續收到房間
// 廣播，只是不再能以身份位址收到私訊。
type Hub struct {
	router   *Router
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[ConnID]*Conn
}

// Conn 單一 WebSocket 連接
type Conn struct {
	ID   ConnID
	sock *websocket.Conn
	send chan []byte
	hub  *Hub

	mu        sync.Mutex
	rooms     map[string]struct{}
	closeOnce sync.Once
}

// NewHub 建立 WebSocket Hub
//
// Hub 與 Router 互相引用（Hub 收事件呼叫 Router，Router 廣播
// 經過 Hub），因此 Router 在 Hub 之後建構，再以 Bind 注入。
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// 在生產環境應該檢查來源
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns: make(map[ConnID]*Conn),
	}
}

// Bind 注入路由器
func (h *Hub) Bind(router *Router) {
	h.router = router
}

// ServeWS 處理 WebSocket 連接
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	conn := &Conn{
		ID:    ConnID(uuid.NewString()),
		sock:  sock,
		send:  make(chan []byte, 256),
		hub:   h,
		rooms: make(map[string]struct{}),
	}

	h.mu.Lock()
	h.conns[conn.ID] = conn
	h.mu.Unlock()

	go conn.writePump()
	go conn.readPump()

	h.logger.Info("WebSocket 連接建立", "conn_id", conn.ID)
}

// ToConn 投遞事件到單一連接
func (h *Hub) ToConn(id ConnID, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("序列化事件失敗", "event", event.Type, "error", err)
		return
	}

	h.mu.RLock()
	conn, exists := h.conns[id]
	h.mu.RUnlock()
	if exists {
		conn.enqueue(data)
	}
}

// ToRoom 投遞事件到房間內所有連接
func (h *Hub) ToRoom(room string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("序列化事件失敗", "event", event.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conn := range h.conns {
		if conn.inRoom(room) {
			conn.enqueue(data)
		}
	}
}

// ToAll 投遞事件到所有連接
func (h *Hub) ToAll(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("序列化事件失敗", "event", event.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conn := range h.conns {
		conn.enqueue(data)
	}
}

// unregister 移除連接
func (h *Hub) unregister(conn *Conn) {
	h.mu.Lock()
	delete(h.conns, conn.ID)
	h.mu.Unlock()

	conn.closeOnce.Do(func() {
		close(conn.send)
	})
}

// Stop 關閉所有連接
func (h *Hub) Stop() {
	h.mu.Lock()
	for _, conn := range h.conns {
		conn.closeOnce.Do(func() {
			close(conn.send)
		})
		conn.sock.Close()
	}
	h.conns = make(map[ConnID]*Conn)
	h.mu.Unlock()

	h.logger.Info("WebSocket Hub 已停止")
}

// ConnCount 目前的連接數
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// enqueue 非阻塞投遞
func (c *Conn) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		// 連接緩衝區滿，丟棄這筆（慢客戶端不拖累整個房間）
		c.hub.logger.Warn("連接緩衝區滿", "conn_id", c.ID)
	}
}

// inRoom 連接是否訂閱該房間
func (c *Conn) inRoom(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, exists := c.rooms[room]
	return exists
}

// joinRoom 訂閱房間廣播（傳輸層成員資格）
func (c *Conn) joinRoom(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[room] = struct{}{}
}

// leaveRoom 取消訂閱
func (c *Conn) leaveRoom(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, room)
}

// 入站事件封包與各事件內容
type inboundEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type joinRoomPayload struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

type sendMessagePayload struct {
	Username string `json:"username"`
	Room     string `json:"room"`
	Message  string `json:"message"`
}

type directMessagePayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Message string `json:"message"`
}

type leaveRoomPayload struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

// readPump 讀取客戶端訊息
//
// 心跳：60 秒內沒有任何訊息（含 Pong）就關閉連接，
// 配合 writePump 的 54 秒 Ping（留 6 秒余量）。
func (c *Conn) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.sock.Close()
		// 傳輸層關閉即視為 disconnect 事件
		c.hub.router.HandleDisconnect(c.ID)
	}()

	if err := c.sock.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		c.hub.logger.Error("設置讀取期限失敗", "error", err)
	}

	c.sock.SetPongHandler(func(string) error {
		if err := c.sock.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			c.hub.logger.Error("設置讀取期限失敗", "error", err)
		}
		return nil
	})

	for {
		messageType, message, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("WebSocket 讀取錯誤",
					"error", err,
					"conn_id", c.ID)
			}
			break
		}

		if messageType == websocket.TextMessage {
			c.dispatch(message)
		}
	}
}

// writePump 寫入訊息到客戶端
func (c *Conn) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.sock.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.sock.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// Hub 關閉了通道，優雅關閉連接
				_ = c.sock.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.sock.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量發送隊列中的訊息
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.sock.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			if err := c.sock.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch 解碼並分派入站事件
//
// 逐事件驗證必填欄位：畸形封包記日誌後丟棄，連接的讀取
// 循環照常繼續，不影響其他連接與房間。
func (c *Conn) dispatch(raw []byte) {
	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.hub.logger.Warn("解析入站封包失敗", "conn_id", c.ID, "error", err)
		return
	}

	ctx := context.Background()

	switch env.Event {
	case "joinRoom":
		var p joinRoomPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.Username == "" || p.Room == "" {
			c.hub.logger.Warn("joinRoom 內容不完整", "conn_id", c.ID)
			return
		}
		c.joinRoom(p.Room)
		c.hub.router.HandleJoin(p.Username, c.ID, p.Room)

	case "sendMessage":
		var p sendMessagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.Username == "" || p.Room == "" || p.Message == "" {
			c.hub.logger.Warn("sendMessage 內容不完整", "conn_id", c.ID)
			return
		}
		c.hub.router.HandleSend(ctx, p.Username, p.Room, p.Message)

	case "directMessage":
		var p directMessagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.From == "" || p.To == "" || p.Message == "" {
			c.hub.logger.Warn("directMessage 內容不完整", "conn_id", c.ID)
			return
		}
		c.hub.router.HandleDirect(ctx, p.From, c.ID, p.To, p.Message)

	case "leaveRoom":
		var p leaveRoomPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.Username == "" || p.Room == "" {
			c.hub.logger.Warn("leaveRoom 內容不完整", "conn_id", c.ID)
			return
		}
		c.leaveRoom(p.Room)
		c.hub.router.HandleLeave(p.Username, p.Room)

	default:
		c.hub.logger.Debug("收到未知事件", "event", env.Event, "conn_id", c.ID)
	}
}
