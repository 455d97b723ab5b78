package models

import (
	"time"

	"gorm.io/gorm"
)

// DeviceState 设备运行状态
type DeviceState string

const (
	DeviceStateEnabled  DeviceState = "enabled"  // 已使能
	DeviceStateDisabled DeviceState = "disabled" // 已禁用
	DeviceStateTimeout  DeviceState = "timeout"  // 命中过频临时禁用
	DeviceStateError    DeviceState = "error"    // 故障
)

// DeviceStatus 设备运行状态快照
// 每次使能/禁用状态变化时更新，诊断界面展示整机设备一览。
type DeviceStatus struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `gorm:"index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name       string      `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"` // 设备名称
	DeviceType string      `gorm:"type:varchar(30);index;not null" json:"device_type"` // coil/switch/autofire/kickback/servo
	State      DeviceState `gorm:"type:varchar(20);index;default:disabled" json:"state"`

	// 统计
	HitCount     int64      `gorm:"default:0" json:"hit_count"`     // 累计命中次数
	TimeoutCount int64      `gorm:"default:0" json:"timeout_count"` // 命中过频禁用次数
	LastHitAt    *time.Time `json:"last_hit_at,omitempty"`          // 最近命中时间

	Extra JSONMap `gorm:"type:json" json:"extra,omitempty"` // 附加信息
}

// TableName 指定表名
func (DeviceStatus) TableName() string {
	return "device_status"
}
