package internal

import (
	"context"
	"log/slog"
	"sync"
)

// 系統設計問題：
//   如何在單一節點上協調「在線名單異動 → 廣播」與「訊息持久化 → 廣播」
//   兩類事件，讓名單異動對讀者呈現原子性？
//
// 核心挑戰：
//   1. 原子性：join/leave 的「改名單 → 廣播名單」不能被其他事件插隊，
//      否則讀者可能收到過期的成員快照
//   2. 持久化是慢路徑：資料庫寫入不能持有註冊表的鎖
//   3. 盡力而為語義：持久化失敗只記錄日誌，不回報給任何使用者
//
// 設計方案：
//   ✅ 單一互斥鎖序列化所有名單異動事件（mutate-then-broadcast 原子）
//   ✅ 持久化在鎖外等待（訊息事件可與名單事件交錯）
//   ✅ Store 回傳顯式錯誤，每個呼叫點明確決定 log-and-continue

// Store 訊息持久化協作者
//
// 只有兩個操作：追加一筆訊息、讀取單一房間最近的非系統訊息
// （時間順序，最舊在前）。沒有超時與重試策略——失敗對該筆
// 訊息而言是終局的。
type Store interface {
	Append(ctx context.Context, msg *Message) error
	RecentHistory(ctx context.Context, room string) ([]Message, error)
}

// Broadcaster 在線廣播協作者（傳輸層實作）
//
// 三種投遞範圍：單一連接、單一房間的所有連接、所有連接。
type Broadcaster interface {
	ToConn(conn ConnID, event Event)
	ToRoom(room string, event Event)
	ToAll(event Event)
}

// Router 訊息路由核心
//
// 狀態機隱含在兩個註冊表裡；Router 本身是一組事件處理器，
// 每個處理器執行到底並產生零或多個廣播指令。
//
// 併發模型：
//   - mu 序列化所有會改動註冊表的事件（join/leave/disconnect），
//     保證廣播反映的是異動「之後」的成員集合
//   - HandleSend / HandleDirect 的持久化等待不持有 mu，
//     因此兩筆送往同一房間的訊息，其「持久化→廣播」的完成
//     順序不保證等於提交順序（較慢的 A 可能晚於較快的 B 廣播）。
//     這是沿用的既有行為；要修正需要逐房間的線性化佇列。
type Router struct {
	mu       sync.Mutex
	registry *Registry
	rooms    *Directory
	store    Store
	bc       Broadcaster
	logger   *slog.Logger
}

// NewRouter 建立訊息路由器
//
// 註冊表由呼叫者顯式建構並傳入（服務啟動時建立、關閉時丟棄），
// 不使用行程級單例——測試可以各自建立隔離的實例。
func NewRouter(registry *Registry, rooms *Directory, store Store, bc Broadcaster, logger *slog.Logger) *Router {
	return &Router{
		registry: registry,
		rooms:    rooms,
		store:    store,
		bc:       bc,
		logger:   logger,
	}
}

// HandleJoin 處理 joinRoom 事件
//
// 登記身份 → 加入房間 → 對該房間廣播異動後的成員名單。
// 若這次建立了新的臨時房間，另對所有連接廣播活躍房間列表。
func (r *Router) HandleJoin(identity string, conn ConnID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.registry.Register(identity, conn)
	members, created := r.rooms.Join(room, identity)

	r.bc.ToRoom(room, Event{
		Type: EventRoomUsers,
		Data: RoomUsersPayload{Room: room, Users: members},
	})

	if created {
		r.bc.ToAll(Event{
			Type: EventRoomsUpdated,
			Data: r.rooms.ListActive(),
		})
	}

	r.logger.Info("身份加入房間",
		"identity", identity,
		"room", room,
		"members", len(members))
}

// HandleSend 處理 sendMessage 事件
//
// 先持久化、成功才廣播——持久化失敗時廣播整個跳過，
// 只記日誌，不向發送者回報（訊息在 UI 上看似已送出）。
// 持久化等待期間不持鎖，名單事件可自由交錯。
func (r *Router) HandleSend(ctx context.Context, identity, room, text string) {
	msg := NewRoomMessage(room, identity, text)

	if err := r.store.Append(ctx, msg); err != nil {
		r.logger.Error("房間訊息持久化失敗，跳過廣播",
			"room", room,
			"sender", identity,
			"error", err)
		return
	}

	r.bc.ToRoom(room, Event{
		Type: EventMessage,
		Data: MessagePayload{
			Username:  msg.Username,
			Text:      msg.Text,
			Timestamp: msg.Timestamp,
			Type:      string(KindRoom),
		},
	})
}

// HandleDirect 處理 directMessage 事件
//
// 收件者必須目前有註冊，否則訊息靜默丟棄（不回報、不持久化
// ——離線收件者會無痕遺失這筆訊息，這是沿用的既有行為）。
// 投遞不以持久化成功為前提：先送達雙方，再盡力寫入。
func (r *Router) HandleDirect(ctx context.Context, from string, fromConn ConnID, to, text string) {
	toConn, ok := r.registry.Lookup(to)
	if !ok {
		return
	}

	msg := NewDirectMessage(from, to, text)
	payload := MessagePayload{
		Username:  msg.Username,
		Text:      msg.Text,
		Timestamp: msg.Timestamp,
		IsDirect:  true,
	}

	// 送達收件者並回送發送者（以觸發事件的連接為準）
	r.bc.ToConn(toConn, Event{Type: EventMessage, Data: payload})
	r.bc.ToConn(fromConn, Event{Type: EventMessage, Data: payload})

	// 投遞已完成，持久化失敗只會讓歷史缺這一筆
	if err := r.store.Append(ctx, msg); err != nil {
		r.logger.Error("私訊持久化失敗（訊息已送達雙方）",
			"from", from,
			"to", to,
			"error", err)
	}
}

// HandleLeave 處理 leaveRoom 事件
//
// 成員異動：對該房間廣播剩餘名單。
// 臨時房間被刪除：改對所有連接廣播活躍房間列表。
func (r *Router) HandleLeave(identity, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	outcome := r.rooms.Leave(room, identity)

	if outcome.RoomDeleted {
		r.bc.ToAll(Event{
			Type: EventRoomsUpdated,
			Data: r.rooms.ListActive(),
		})
		r.logger.Info("臨時房間已清空移除", "room", room)
		return
	}

	if outcome.Members != nil {
		r.bc.ToRoom(room, Event{
			Type: EventRoomUsers,
			Data: RoomUsersPayload{Room: room, Users: outcome.Members},
		})
	}
}

// HandleDisconnect 處理連接關閉
//
// 由連接反查身份並移除註冊條目，再將該身份移出所有房間，
// 對每個受影響房間廣播更新後的名單。若清理過程刪除了臨時
// 房間，另對所有連接廣播活躍房間列表。
//
// 同身份的新連接覆蓋舊條目後，舊連接斷線不會解析出身份，
// 因此不會誤清新連接的房間成員資格。
func (r *Router) HandleDisconnect(conn ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.registry.UnregisterByConn(conn)
	if !ok {
		return
	}

	affected := r.rooms.RemoveIdentityEverywhere(identity)

	roomDeleted := false
	for room, outcome := range affected {
		if outcome.RoomDeleted {
			roomDeleted = true
			continue
		}
		r.bc.ToRoom(room, Event{
			Type: EventRoomUsers,
			Data: RoomUsersPayload{Room: room, Users: outcome.Members},
		})
	}

	if roomDeleted {
		r.bc.ToAll(Event{
			Type: EventRoomsUpdated,
			Data: r.rooms.ListActive(),
		})
	}

	r.logger.Info("身份斷線清理完成",
		"identity", identity,
		"rooms", len(affected))
}

// ListActiveRooms 唯讀查詢：目前活躍的房間列表
func (r *Router) ListActiveRooms() []string {
	return r.rooms.ListActive()
}
