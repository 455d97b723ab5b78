package repository

import (
	"context"
	"time"

	"github.com/wfunc/pinball-game/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeviceStatusRepository 设备状态仓储接口
type DeviceStatusRepository interface {
	BaseRepository
	Upsert(ctx context.Context, status *models.DeviceStatus) error
	UpdateState(ctx context.Context, name string, state models.DeviceState) error
	RecordHit(ctx context.Context, name string) error
	RecordTimeout(ctx context.Context, name string) error
	FindByName(ctx context.Context, name string) (*models.DeviceStatus, error)
	FindByType(ctx context.Context, deviceType string) ([]*models.DeviceStatus, error)
	FindAll(ctx context.Context) ([]*models.DeviceStatus, error)
}

// deviceStatusRepo 设备状态仓储实现
type deviceStatusRepo struct {
	*BaseRepo
}

// NewDeviceStatusRepository 创建设备状态仓储
func NewDeviceStatusRepository(db *gorm.DB) DeviceStatusRepository {
	return &deviceStatusRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Upsert 按名称插入或更新设备状态
func (r *deviceStatusRepo) Upsert(ctx context.Context, status *models.DeviceStatus) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"device_type", "state", "extra", "updated_at"}),
		}).
		Create(status).Error
}

// UpdateState 更新设备运行状态
func (r *deviceStatusRepo) UpdateState(ctx context.Context, name string, state models.DeviceState) error {
	return r.db.WithContext(ctx).
		Model(&models.DeviceStatus{}).
		Where("name = ?", name).
		Update("state", state).Error
}

// RecordHit 记录一次命中
func (r *deviceStatusRepo) RecordHit(ctx context.Context, name string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&models.DeviceStatus{}).
		Where("name = ?", name).
		Updates(map[string]interface{}{
			"hit_count":   gorm.Expr("hit_count + 1"),
			"last_hit_at": now,
		}).Error
}

// RecordTimeout 记录一次命中过频禁用
func (r *deviceStatusRepo) RecordTimeout(ctx context.Context, name string) error {
	return r.db.WithContext(ctx).
		Model(&models.DeviceStatus{}).
		Where("name = ?", name).
		Updates(map[string]interface{}{
			"timeout_count": gorm.Expr("timeout_count + 1"),
			"state":         models.DeviceStateTimeout,
		}).Error
}

// FindByName 按名称查找
func (r *deviceStatusRepo) FindByName(ctx context.Context, name string) (*models.DeviceStatus, error) {
	var status models.DeviceStatus
	err := r.db.WithContext(ctx).
		Where("name = ?", name).
		First(&status).Error
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// FindByType 按设备类型查找
func (r *deviceStatusRepo) FindByType(ctx context.Context, deviceType string) ([]*models.DeviceStatus, error) {
	var list []*models.DeviceStatus
	err := r.db.WithContext(ctx).
		Where("device_type = ?", deviceType).
		Order("name").
		Find(&list).Error
	return list, err
}

// FindAll 全部设备状态
func (r *deviceStatusRepo) FindAll(ctx context.Context) ([]*models.DeviceStatus, error) {
	var list []*models.DeviceStatus
	err := r.db.WithContext(ctx).
		Order("device_type, name").
		Find(&list).Error
	return list, err
}
