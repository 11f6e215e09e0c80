package internal_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/14-chat-system/internal"
)

var seedRooms = []string{"Ventas", "Marketing", "RRHH"}

// TestDirectory_ListActive 測試活躍房間列表
func TestDirectory_ListActive(t *testing.T) {
	d := internal.NewDirectory(seedRooms)

	// 種子房間即使沒有成員也永遠在列表中
	assert.ElementsMatch(t, seedRooms, d.ListActive())

	// 加入臨時房間後列表擴大
	d.Join("TempRoom", "Alice")
	assert.ElementsMatch(t, append([]string{"TempRoom"}, seedRooms...), d.ListActive())
}

// TestDirectory_JoinIdempotent 測試加入的冪等性
func TestDirectory_JoinIdempotent(t *testing.T) {
	d := internal.NewDirectory(seedRooms)

	members, created := d.Join("Ventas", "Alice")
	assert.False(t, created, "種子房間不應被視為新建")
	assert.Equal(t, []string{"Alice"}, members)

	// 重複加入沒有額外效果
	members, created = d.Join("Ventas", "Alice")
	assert.False(t, created)
	assert.Equal(t, []string{"Alice"}, members)

	members, _ = d.Join("Ventas", "Bob")
	assert.Equal(t, []string{"Alice", "Bob"}, members)
}

// TestDirectory_DynamicRoomCreation 測試臨時房間建立
func TestDirectory_DynamicRoomCreation(t *testing.T) {
	d := internal.NewDirectory(seedRooms)

	_, created := d.Join("TempRoom", "Alice")
	assert.True(t, created)

	// 已存在的臨時房間不重複建立
	_, created = d.Join("TempRoom", "Bob")
	assert.False(t, created)
}

// TestDirectory_Leave 測試離開房間
func TestDirectory_Leave(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(d *internal.Directory)
		room     string
		identity string
		validate func(t *testing.T, outcome internal.LeaveOutcome, d *internal.Directory)
	}{
		{
			name: "membership changed",
			setup: func(d *internal.Directory) {
				d.Join("Ventas", "Alice")
				d.Join("Ventas", "Bob")
			},
			room:     "Ventas",
			identity: "Alice",
			validate: func(t *testing.T, outcome internal.LeaveOutcome, d *internal.Directory) {
				assert.False(t, outcome.RoomDeleted)
				assert.Equal(t, []string{"Bob"}, outcome.Members)
			},
		},
		{
			name: "seed room survives draining to zero members",
			setup: func(d *internal.Directory) {
				d.Join("Ventas", "Alice")
			},
			room:     "Ventas",
			identity: "Alice",
			validate: func(t *testing.T, outcome internal.LeaveOutcome, d *internal.Directory) {
				assert.False(t, outcome.RoomDeleted, "種子房間不可刪除")
				assert.Empty(t, outcome.Members)
				assert.Contains(t, d.ListActive(), "Ventas")
			},
		},
		{
			name: "dynamic room deleted when last member leaves",
			setup: func(d *internal.Directory) {
				d.Join("TempRoom", "Alice")
			},
			room:     "TempRoom",
			identity: "Alice",
			validate: func(t *testing.T, outcome internal.LeaveOutcome, d *internal.Directory) {
				assert.True(t, outcome.RoomDeleted)
				assert.NotContains(t, d.ListActive(), "TempRoom")

				// 刪除與成員歸零是同一邏輯步驟，不存在零成員仍活躍的中間態
				_, exists := d.Members("TempRoom")
				assert.False(t, exists)
			},
		},
		{
			name:     "leaving an absent room is a no-op",
			setup:    func(d *internal.Directory) {},
			room:     "Nowhere",
			identity: "Alice",
			validate: func(t *testing.T, outcome internal.LeaveOutcome, d *internal.Directory) {
				assert.False(t, outcome.RoomDeleted)
				assert.Nil(t, outcome.Members)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := internal.NewDirectory(seedRooms)
			tt.setup(d)

			outcome := d.Leave(tt.room, tt.identity)
			tt.validate(t, outcome, d)
		})
	}
}

// TestDirectory_RemoveIdentityEverywhere 測試斷線清理
func TestDirectory_RemoveIdentityEverywhere(t *testing.T) {
	d := internal.NewDirectory(seedRooms)

	d.Join("Ventas", "Alice")
	d.Join("Ventas", "Bob")
	d.Join("TempRoom", "Alice")

	affected := d.RemoveIdentityEverywhere("Alice")
	require.Len(t, affected, 2)

	// 種子房間只是名單異動
	ventas := affected["Ventas"]
	assert.False(t, ventas.RoomDeleted)
	assert.Equal(t, []string{"Bob"}, ventas.Members)

	// 唯一成員離開的臨時房間被刪除
	temp := affected["TempRoom"]
	assert.True(t, temp.RoomDeleted)
	assert.NotContains(t, d.ListActive(), "TempRoom")

	// 不相干的身份不受影響
	members, exists := d.Members("Ventas")
	require.True(t, exists)
	assert.Equal(t, []string{"Bob"}, members)
}
