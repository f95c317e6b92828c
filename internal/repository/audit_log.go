package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/arvense/authtrail/internal/models"
)

// AuditLogRepository defines data operations on the append-only audit
// trail. There is deliberately no update method.
type AuditLogRepository interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	GetByID(ctx context.Context, id string) (*models.AuditLog, error)
	List(ctx context.Context, filter models.AuditFilter, page, limit int) ([]models.AuditLog, int64, error)
	ListByEntity(ctx context.Context, entity, entityID string, page, limit int) ([]models.AuditLog, int64, error)
	ListByUser(ctx context.Context, userID string, page, limit int) ([]models.AuditLog, int64, error)
	Stats(ctx context.Context, filter models.AuditFilter) ([]models.AuditStat, error)
	Export(ctx context.Context, filter models.AuditFilter, cap int) ([]models.AuditLog, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type auditLogRepository struct {
	db *gorm.DB
}

// NewAuditLogRepository creates a new AuditLogRepository instance.
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepository{db: db}
}

func (r *auditLogRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create audit log entry: %w", err)
	}
	return nil
}

func (r *auditLogRepository) GetByID(ctx context.Context, id string) (*models.AuditLog, error) {
	var entry models.AuditLog
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error; err != nil {
		return nil, fmt.Errorf("failed to find audit log %s: %w", id, err)
	}
	return &entry, nil
}

func applyFilter(q *gorm.DB, filter models.AuditFilter) *gorm.DB {
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if filter.Entity != "" {
		q = q.Where("entity = ?", filter.Entity)
	}
	if filter.EntityID != "" {
		q = q.Where("entity_id = ?", filter.EntityID)
	}
	if filter.StartDate != nil {
		q = q.Where("created_at >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		q = q.Where("created_at <= ?", *filter.EndDate)
	}
	return q
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

func (r *auditLogRepository) List(ctx context.Context, filter models.AuditFilter, page, limit int) ([]models.AuditLog, int64, error) {
	page, limit = normalizePage(page, limit)

	q := applyFilter(r.db.WithContext(ctx).Model(&models.AuditLog{}), filter)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	var entries []models.AuditLog
	err := q.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return entries, total, nil
}

func (r *auditLogRepository) ListByEntity(ctx context.Context, entity, entityID string, page, limit int) ([]models.AuditLog, int64, error) {
	return r.List(ctx, models.AuditFilter{Entity: entity, EntityID: entityID}, page, limit)
}

func (r *auditLogRepository) ListByUser(ctx context.Context, userID string, page, limit int) ([]models.AuditLog, int64, error) {
	return r.List(ctx, models.AuditFilter{UserID: userID}, page, limit)
}

func (r *auditLogRepository) Stats(ctx context.Context, filter models.AuditFilter) ([]models.AuditStat, error) {
	var stats []models.AuditStat
	q := applyFilter(r.db.WithContext(ctx).Model(&models.AuditLog{}), filter)
	// One flat row per (entity, action) pair, busiest first; entity and
	// action break count ties so the output is stable.
	err := q.
		Select("entity, action, COUNT(*) AS count, MAX(created_at) AS last_activity").
		Group("entity, action").
		Order("count DESC, entity, action").
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate audit stats: %w", err)
	}
	return stats, nil
}

func (r *auditLogRepository) Export(ctx context.Context, filter models.AuditFilter, cap int) ([]models.AuditLog, error) {
	if cap < 1 {
		cap = 10000
	}
	var entries []models.AuditLog
	q := applyFilter(r.db.WithContext(ctx).Model(&models.AuditLog{}), filter)
	err := q.Order("created_at DESC").Limit(cap).Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to export audit logs: %w", err)
	}
	return entries, nil
}

func (r *auditLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.AuditLog{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune audit logs: %w", res.Error)
	}
	return res.RowsAffected, nil
}
