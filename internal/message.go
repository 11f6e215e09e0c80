package internal

import "time"

// MessageKind 訊息種類
//
// 三種訊息：
//   - room：房間廣播訊息
//   - direct：一對一私訊
//   - system：系統訊息（預留，路由層不產生）
type MessageKind string

const (
	KindRoom   MessageKind = "room"
	KindDirect MessageKind = "direct"
	KindSystem MessageKind = "system"
)

// Message 聊天訊息
//
// 訊息建立後不可變；持久層只依插入順序與時間戳排序，
// 不額外賦予業務識別。路由層不在記憶體保留任何歷史。
type Message struct {
	Kind      MessageKind `json:"kind"`
	Room      string      `json:"room,omitempty"`      // room 訊息專用
	Username  string      `json:"username"`            // 發送者
	Recipient string      `json:"recipient,omitempty"` // direct 訊息專用
	Text      string      `json:"text"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewRoomMessage 建立房間訊息
func NewRoomMessage(room, username, text string) *Message {
	return &Message{
		Kind:      KindRoom,
		Room:      room,
		Username:  username,
		Text:      text,
		Timestamp: time.Now(),
	}
}

// NewDirectMessage 建立私訊
func NewDirectMessage(from, to, text string) *Message {
	return &Message{
		Kind:      KindDirect,
		Username:  from,
		Recipient: to,
		Text:      text,
		Timestamp: time.Now(),
	}
}

// Event WebSocket 外送事件封包
type Event struct {
	Type string `json:"event"`
	Data any    `json:"data"`
}

// 外送事件名稱
const (
	EventRoomUsers    = "roomUsers"    // 單一房間的成員列表
	EventMessage      = "message"      // 聊天訊息（房間或私訊）
	EventRoomsUpdated = "roomsUpdated" // 全量活躍房間列表（發給所有連接）
)

// RoomUsersPayload roomUsers 事件內容
type RoomUsersPayload struct {
	Room  string   `json:"room"`
	Users []string `json:"users"`
}

// MessagePayload message 事件內容
//
// 與原始前端協議對齊：房間訊息帶 type="room"，
// 私訊帶 isDirect=true。
type MessagePayload struct {
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type,omitempty"`
	IsDirect  bool      `json:"isDirect,omitempty"`
}
