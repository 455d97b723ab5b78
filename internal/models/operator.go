package models

import (
	"time"

	"gorm.io/gorm"
)

// Operator 运维账号
// 诊断API使用JWT鉴权，密码存argon2id哈希。
type Operator struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Username string `gorm:"type:varchar(50);uniqueIndex;not null" json:"username"`
	Password string `gorm:"type:varchar(255);not null" json:"-"` // argon2id哈希
	Role     string `gorm:"type:varchar(20);default:operator" json:"role"`

	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	LoginCount  int64      `gorm:"default:0" json:"login_count"`
}

// TableName 指定表名
func (Operator) TableName() string {
	return "operators"
}
