package repository

import (
	"context"
	"time"

	"github.com/wfunc/pinball-game/internal/models"
	"gorm.io/gorm"
)

// OperatorRepository 运维账号仓储接口
type OperatorRepository interface {
	BaseRepository
	Create(ctx context.Context, operator *models.Operator) error
	FindByUsername(ctx context.Context, username string) (*models.Operator, error)
	RecordLogin(ctx context.Context, id uint) error
	Count(ctx context.Context) (int64, error)
}

// operatorRepo 运维账号仓储实现
type operatorRepo struct {
	*BaseRepo
}

// NewOperatorRepository 创建运维账号仓储
func NewOperatorRepository(db *gorm.DB) OperatorRepository {
	return &operatorRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Create 创建账号
func (r *operatorRepo) Create(ctx context.Context, operator *models.Operator) error {
	return r.db.WithContext(ctx).Create(operator).Error
}

// FindByUsername 按用户名查找
func (r *operatorRepo) FindByUsername(ctx context.Context, username string) (*models.Operator, error) {
	var operator models.Operator
	err := r.db.WithContext(ctx).
		Where("username = ?", username).
		First(&operator).Error
	if err != nil {
		return nil, err
	}
	return &operator, nil
}

// RecordLogin 记录一次登录
func (r *operatorRepo) RecordLogin(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).
		Model(&models.Operator{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_login_at": time.Now(),
			"login_count":   gorm.Expr("login_count + 1"),
		}).Error
}

// Count 账号总数
func (r *operatorRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Operator{}).
		Count(&count).Error
	return count, err
}
