package models

import (
	"time"

	"gorm.io/gorm"
)

// HardwareLogType 硬件日志类型
type HardwareLogType string

const (
	HardwareLogTypeRuleArm    HardwareLogType = "RULE_ARM"    // 武装规则
	HardwareLogTypeRuleClear  HardwareLogType = "RULE_CLEAR"  // 解除规则
	HardwareLogTypeDriver     HardwareLogType = "DRIVER"      // 驱动器动作
	HardwareLogTypeSwitch     HardwareLogType = "SWITCH"      // 开关变化
	HardwareLogTypeBallSearch HardwareLogType = "BALL_SEARCH" // 球搜索
	HardwareLogTypeServo      HardwareLogType = "SERVO"       // 舵机动作
)

// HardwareLogLevel 日志级别
type HardwareLogLevel string

const (
	HardwareLogLevelInfo  HardwareLogLevel = "INFO"
	HardwareLogLevelDebug HardwareLogLevel = "DEBUG"
	HardwareLogLevelWarn  HardwareLogLevel = "WARN"
	HardwareLogLevelError HardwareLogLevel = "ERROR"
)

// HardwareLog 硬件动作日志
// 规则武装/解除、驱动器动作和球搜索都会落库，用于故障排查。
type HardwareLog struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `gorm:"index;not null" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Type  HardwareLogType  `gorm:"type:varchar(20);index;not null" json:"type"`
	Level HardwareLogLevel `gorm:"type:varchar(10);default:INFO" json:"level"`

	// 关联对象
	SwitchName string `gorm:"type:varchar(100);index" json:"switch_name,omitempty"`
	DriverName string `gorm:"type:varchar(100);index" json:"driver_name,omitempty"`
	RuleType   string `gorm:"type:varchar(60)" json:"rule_type,omitempty"`

	// 内容
	Message string  `gorm:"type:varchar(500)" json:"message,omitempty"`
	Detail  JSONMap `gorm:"type:json" json:"detail,omitempty"`
}

// TableName 指定表名
func (HardwareLog) TableName() string {
	return "hardware_logs"
}
