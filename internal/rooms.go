package internal

import (
	"sort"
	"sync"
)

// 系統設計問題：
//   如何管理一組「固定部門房間 + 任意臨時房間」的生命週期與成員名單？
//
// 核心挑戰：
//   1. 種子房間必須永遠出現在房間列表（即使沒有成員）
//   2. 臨時房間只在有成員時存在（避免房間集合無界增長）
//   3. 成員異動與刪除必須是同一個邏輯步驟（不可觀察到「零成員但仍活躍」的中間態）
//
// 設計方案：
//   ✅ 房間種類顯式標記（seed / dynamic），不靠集合是否為空來推斷
//   ✅ 成員以 set 表示（同一身份不重複）
//   ✅ 反向遍歷僅在斷線清理使用，成本 O(房間數 × 平均成員數)

// RoomKind 房間種類
//
// 三種狀態中「Dynamic-Empty」是瞬時的：臨時房間成員歸零的
// 同一步就從目錄刪除，因此結構裡只需要兩個種類。
type RoomKind int

const (
	// RoomSeed 種子房間：固定部門房間，無論成員多寡永遠活躍
	RoomSeed RoomKind = iota
	// RoomDynamic 臨時房間：只在有成員時存在
	RoomDynamic
)

// roomEntry 單一房間的目錄條目
type roomEntry struct {
	kind    RoomKind
	members map[string]struct{}
}

// LeaveOutcome 離開房間的結果
//
// RoomDeleted 為 true 表示臨時房間因成員歸零已被刪除，
// 此時 Members 為空；否則 Members 是異動後的剩餘成員。
type LeaveOutcome struct {
	RoomDeleted bool
	Members     []string
}

// Directory 活躍房間目錄
//
// 活躍房間集合的不變式：
//   房間出現在列表 ⟺ 它是種子房間，或它有 ≥1 位成員。
type Directory struct {
	mu    sync.RWMutex
	rooms map[string]*roomEntry
}

// NewDirectory 建立房間目錄
//
// seedRooms 為固定房間名單；空的種子房間永不刪除，
// 因為它們代表組織部門，必須永遠出現在房間選單。
func NewDirectory(seedRooms []string) *Directory {
	d := &Directory{
		rooms: make(map[string]*roomEntry, len(seedRooms)),
	}
	for _, name := range seedRooms {
		d.rooms[name] = &roomEntry{
			kind:    RoomSeed,
			members: make(map[string]struct{}),
		}
	}
	return d
}

// ListActive 列出活躍房間名稱
func (d *Directory) ListActive() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.rooms))
	for name := range d.rooms {
		names = append(names, name)
	}
	// 排序讓列表輸出可重現（map 遍歷順序不穩定）
	sort.Strings(names)
	return names
}

// Join 將身份加入房間
//
// 冪等：重複加入沒有額外效果。房間不存在時自動建立為臨時房間。
// 回傳異動後的成員名單（供廣播）以及這次是否建立了新房間。
func (d *Directory) Join(room, identity string) (members []string, created bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, exists := d.rooms[room]
	if !exists {
		entry = &roomEntry{
			kind:    RoomDynamic,
			members: make(map[string]struct{}),
		}
		d.rooms[room] = entry
		created = true
	}

	entry.members[identity] = struct{}{}
	return memberList(entry), created
}

// Leave 將身份移出房間
//
// 臨時房間成員歸零時，房間在同一步從目錄刪除並回報
// RoomDeleted。房間不存在或身份不在房內時是 no-op，不是錯誤。
func (d *Directory) Leave(room, identity string) LeaveOutcome {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.leaveLocked(room, identity)
}

// leaveLocked 實際的離開邏輯（呼叫者需持有寫鎖）
func (d *Directory) leaveLocked(room, identity string) LeaveOutcome {
	entry, exists := d.rooms[room]
	if !exists {
		return LeaveOutcome{}
	}

	delete(entry.members, identity)

	if len(entry.members) == 0 && entry.kind == RoomDynamic {
		delete(d.rooms, room)
		return LeaveOutcome{RoomDeleted: true}
	}

	return LeaveOutcome{Members: memberList(entry)}
}

// RemoveIdentityEverywhere 斷線清理：將身份移出所有房間
//
// 回傳每個受影響房間的結果（臨時房間歸零同樣被刪除）。
// 成本 O(房間數 × 平均成員數)；部門級聊天規模下可接受，
// 更大規模應維護 identity → rooms 的反向索引。
func (d *Directory) RemoveIdentityEverywhere(identity string) map[string]LeaveOutcome {
	d.mu.Lock()
	defer d.mu.Unlock()

	affected := make(map[string]LeaveOutcome)
	for room, entry := range d.rooms {
		if _, isMember := entry.members[identity]; !isMember {
			continue
		}
		affected[room] = d.leaveLocked(room, identity)
	}
	return affected
}

// Members 查詢單一房間目前的成員名單
func (d *Directory) Members(room string) ([]string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entry, exists := d.rooms[room]
	if !exists {
		return nil, false
	}
	return memberList(entry), true
}

// memberList 匯出成員 set 為排序過的切片
func memberList(entry *roomEntry) []string {
	members := make([]string, 0, len(entry.members))
	for m := range entry.members {
		members = append(members, m)
	}
	sort.Strings(members)
	return members
}
