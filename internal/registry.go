package internal

import "sync"

// ConnID 連接句柄
//
// 對傳輸層會話的不透明引用；一個 ConnID 同一時間只對應
// 一條底層 WebSocket 連接。
type ConnID string

// Registry 身份與連接的雙向註冊表
//
// 系統設計考量：
//
//  1. 雙向索引：
//     問題：斷線清理需要由連接反查身份，單向 map 只能線性掃描
//     方案：同時維護 identity → conn 與 conn → identity
//     效果：UnregisterByConn 由 O(所有身份) 降為 O(1)
//
//  2. 覆蓋式註冊（last-registered wins）：
//     同一身份重複註冊時直接覆蓋舊條目。舊連接不會被強制斷開，
//     也不會收到通知——它仍留在已加入的房間，但不再能以身份
//     位址收到私訊。這是沿用的既有行為，不是理想化設計。
//
//  3. 所有操作皆為全函數，沒有錯誤情況。
type Registry struct {
	mu         sync.RWMutex
	byIdentity map[string]ConnID
	byConn     map[ConnID]string
}

// NewRegistry 建立連接註冊表
func NewRegistry() *Registry {
	return &Registry{
		byIdentity: make(map[string]ConnID),
		byConn:     make(map[ConnID]string),
	}
}

// Register 無條件登記（upsert）
//
// 若身份已存在則覆蓋；先前的連接從此無法以身份位址送達。
func (r *Registry) Register(identity string, conn ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// 清掉舊連接的反向索引，避免舊連接斷線時誤刪新條目
	if old, exists := r.byIdentity[identity]; exists && old != conn {
		delete(r.byConn, old)
	}

	r.byIdentity[identity] = conn
	r.byConn[conn] = identity
}

// Lookup 查詢身份目前的連接
func (r *Registry) Lookup(identity string) (ConnID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.byIdentity[identity]
	return conn, exists
}

// UnregisterByConn 以連接反查並移除條目
//
// 回傳被移除的身份（斷線清理用）。若該連接已被同身份的
// 新連接覆蓋，則不移除任何條目。
func (r *Registry) UnregisterByConn(conn ConnID) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, exists := r.byConn[conn]
	if !exists {
		return "", false
	}

	delete(r.byConn, conn)

	// 只在正向條目仍指向這條連接時才移除，
	// 覆蓋式註冊後舊連接斷線不能影響新條目
	if current, ok := r.byIdentity[identity]; ok && current == conn {
		delete(r.byIdentity, identity)
	}

	return identity, true
}

// Count 目前註冊的身份數量
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIdentity)
}
