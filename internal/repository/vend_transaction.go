package repository

import (
	"context"
	"time"

	"github.com/wfunc/soap-vend/internal/models"
	"gorm.io/gorm"
)

// VendTransactionRepository 售卖会话记录仓库
type VendTransactionRepository struct {
	db *gorm.DB
}

// NewVendTransactionRepository 创建售卖会话记录仓库
func NewVendTransactionRepository(db *gorm.DB) *VendTransactionRepository {
	return &VendTransactionRepository{
		db: db,
	}
}

// Create 创建会话记录（含明细）
func (r *VendTransactionRepository) Create(ctx context.Context, tx *models.VendTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

// GetBySessionID 根据会话ID获取记录
func (r *VendTransactionRepository) GetBySessionID(ctx context.Context, sessionID string) (*models.VendTransaction, error) {
	var tx models.VendTransaction
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("session_id = ?", sessionID).
		First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// Latest 获取最近一笔记录
func (r *VendTransactionRepository) Latest(ctx context.Context) (*models.VendTransaction, error) {
	var tx models.VendTransaction
	err := r.db.WithContext(ctx).
		Preload("Items").
		Order("created_at DESC").
		First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// List 分页查询记录，按时间倒序
func (r *VendTransactionRepository) List(ctx context.Context, p *Pagination) ([]*models.VendTransaction, error) {
	db := r.db.WithContext(ctx).Model(&models.VendTransaction{})

	if err := db.Count(&p.Total).Error; err != nil {
		return nil, err
	}

	var txs []*models.VendTransaction
	err := db.Preload("Items").
		Order("created_at DESC").
		Scopes(Paginate(p)).
		Find(&txs).Error
	return txs, err
}

// ListByOutcome 根据会话结果查询记录
func (r *VendTransactionRepository) ListByOutcome(ctx context.Context, outcome string, p *Pagination) ([]*models.VendTransaction, error) {
	db := r.db.WithContext(ctx).Model(&models.VendTransaction{}).
		Where("outcome = ?", outcome)

	if err := db.Count(&p.Total).Error; err != nil {
		return nil, err
	}

	var txs []*models.VendTransaction
	err := db.Preload("Items").
		Order("created_at DESC").
		Scopes(Paginate(p)).
		Find(&txs).Error
	return txs, err
}

// CountByOutcome 统计各结果的会话数量
func (r *VendTransactionRepository) CountByOutcome(ctx context.Context, outcome string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.VendTransaction{}).
		Where("outcome = ?", outcome).
		Count(&count).Error
	return count, err
}

// SumCompletedCents 统计已结算会话的总金额（分）
func (r *VendTransactionRepository) SumCompletedCents(ctx context.Context, since time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.VendTransaction{}).
		Where("outcome = ? AND created_at >= ?", "complete", since).
		Select("COALESCE(SUM(total_cents), 0)").
		Scan(&total).Error
	return total, err
}
