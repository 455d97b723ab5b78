package repository

import (
	"context"
	"time"

	"github.com/wfunc/pinball-game/internal/models"
	"gorm.io/gorm"
)

// HardwareLogRepository 硬件日志仓储接口
type HardwareLogRepository interface {
	BaseRepository
	Create(ctx context.Context, log *models.HardwareLog) error
	FindByType(ctx context.Context, logType models.HardwareLogType, p *Pagination) ([]*models.HardwareLog, error)
	FindByDevice(ctx context.Context, switchName, driverName string, p *Pagination) ([]*models.HardwareLog, error)
	FindRecent(ctx context.Context, limit int) ([]*models.HardwareLog, error)
	CountByLevel(ctx context.Context, since time.Time) (map[string]int64, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// hardwareLogRepo 硬件日志仓储实现
type hardwareLogRepo struct {
	*BaseRepo
}

// NewHardwareLogRepository 创建硬件日志仓储
func NewHardwareLogRepository(db *gorm.DB) HardwareLogRepository {
	return &hardwareLogRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Create 写入一条硬件日志
func (r *hardwareLogRepo) Create(ctx context.Context, log *models.HardwareLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// FindByType 按类型分页查询
func (r *hardwareLogRepo) FindByType(ctx context.Context, logType models.HardwareLogType,
	p *Pagination) ([]*models.HardwareLog, error) {

	var list []*models.HardwareLog
	query := r.db.WithContext(ctx).
		Model(&models.HardwareLog{}).
		Where("type = ?", logType)

	if err := query.Count(&p.Total).Error; err != nil {
		return nil, err
	}

	err := query.
		Order("created_at DESC").
		Scopes(Paginate(p)).
		Find(&list).Error
	return list, err
}

// FindByDevice 按关联设备分页查询，空参数表示不过滤
func (r *hardwareLogRepo) FindByDevice(ctx context.Context, switchName, driverName string,
	p *Pagination) ([]*models.HardwareLog, error) {

	query := r.db.WithContext(ctx).Model(&models.HardwareLog{})
	if switchName != "" {
		query = query.Where("switch_name = ?", switchName)
	}
	if driverName != "" {
		query = query.Where("driver_name = ?", driverName)
	}

	if err := query.Count(&p.Total).Error; err != nil {
		return nil, err
	}

	var list []*models.HardwareLog
	err := query.
		Order("created_at DESC").
		Scopes(Paginate(p)).
		Find(&list).Error
	return list, err
}

// FindRecent 最近N条日志
func (r *hardwareLogRepo) FindRecent(ctx context.Context, limit int) ([]*models.HardwareLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var list []*models.HardwareLog
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

// CountByLevel 按级别统计指定时间之后的日志数
func (r *hardwareLogRepo) CountByLevel(ctx context.Context, since time.Time) (map[string]int64, error) {
	type row struct {
		Level string
		Count int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&models.HardwareLog{}).
		Select("level, count(*) as count").
		Where("created_at >= ?", since).
		Group("level").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make(map[string]int64, len(rows))
	for _, r := range rows {
		result[r.Level] = r.Count
	}
	return result, nil
}

// DeleteBefore 清理指定时间之前的日志，返回删除条数
func (r *hardwareLogRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Unscoped().
		Where("created_at < ?", before).
		Delete(&models.HardwareLog{})
	return result.RowsAffected, result.Error
}
