package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/BenTyson/evercraft-sub001/pkg/db/models"
	"github.com/BenTyson/evercraft-sub001/pkg/pagination"
)

// Repository persists shop notifications. Every read and write except
// retention is scoped to one shop.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateMany(ctx context.Context, rows []models.Notification) error
	List(ctx context.Context, q listQuery) ([]models.Notification, *pagination.Cursor, error)
	CountUnread(ctx context.Context, shopID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, shopID, id uuid.UUID, at time.Time) (bool, error)
	MarkAllRead(ctx context.Context, shopID uuid.UUID, at time.Time) (int64, error)
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type listQuery struct {
	ShopID     uuid.UUID
	Limit      int
	Cursor     *pagination.Cursor
	UnreadOnly bool
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &gormRepository{db: tx}
}

func (r *gormRepository) shop(ctx context.Context, shopID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Notification{}).Where("shop_id = ?", shopID)
}

func (r *gormRepository) CreateMany(ctx context.Context, rows []models.Notification) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

// List returns one page newest first, plus the cursor of the next page when
// there is one.
func (r *gormRepository) List(ctx context.Context, q listQuery) ([]models.Notification, *pagination.Cursor, error) {
	query := r.shop(ctx, q.ShopID)
	if q.UnreadOnly {
		query = query.Where("read_at IS NULL")
	}
	if q.Cursor != nil {
		clause, args := q.Cursor.Clause("created_at", "id")
		query = query.Where(clause, args...)
	}

	var rows []models.Notification
	err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(q.Limit)).Find(&rows).Error
	if err != nil {
		return nil, nil, err
	}
	page, next := pagination.Split(rows, q.Limit, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})
	return page, next, nil
}

func (r *gormRepository) CountUnread(ctx context.Context, shopID uuid.UUID) (int64, error) {
	var n int64
	err := r.shop(ctx, shopID).Where("read_at IS NULL").Count(&n).Error
	return n, err
}

// MarkRead reports whether the notification exists for the shop. Marking an
// already read row keeps its original read_at.
func (r *gormRepository) MarkRead(ctx context.Context, shopID, id uuid.UUID, at time.Time) (bool, error) {
	res := r.shop(ctx, shopID).Where("id = ? AND read_at IS NULL", id).UpdateColumn("read_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	var n int64
	if err := r.shop(ctx, shopID).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *gormRepository) MarkAllRead(ctx context.Context, shopID uuid.UUID, at time.Time) (int64, error) {
	res := r.shop(ctx, shopID).Where("read_at IS NULL").UpdateColumn("read_at", at)
	return res.RowsAffected, res.Error
}

// DeleteReadBefore purges rows read before cutoff across all shops. Unread
// rows are kept regardless of age.
func (r *gormRepository) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("read_at IS NOT NULL AND read_at < ?", cutoff).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
