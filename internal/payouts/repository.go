package payouts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/BenTyson/evercraft-sub001/pkg/db"
	"github.com/BenTyson/evercraft-sub001/pkg/db/models"
	"github.com/BenTyson/evercraft-sub001/pkg/enums"
)

// Repository covers seller payouts, their member payments and nonprofit
// payouts. Lock* methods take row locks on Postgres.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockEligiblePayments(ctx context.Context, shopID uuid.UUID, paymentIDs []uuid.UUID, periodStart, periodEnd time.Time) ([]models.Payment, error)
	ListEligiblePaymentIDs(ctx context.Context, shopID uuid.UUID, periodStart, periodEnd time.Time) ([]uuid.UUID, error)
	ListShopsWithEligiblePayments(ctx context.Context, before time.Time) ([]uuid.UUID, error)
	OldestEligiblePayment(ctx context.Context, shopID uuid.UUID, before time.Time) (*models.Payment, error)
	CreatePayout(ctx context.Context, payout *models.SellerPayout) error
	LinkPayments(ctx context.Context, payoutID uuid.UUID, paymentIDs []uuid.UUID) (int64, error)
	ReleasePayments(ctx context.Context, payoutID uuid.UUID) error
	LockPayout(ctx context.Context, id uuid.UUID) (*models.SellerPayout, error)
	FindPayout(ctx context.Context, id uuid.UUID) (*models.SellerPayout, error)
	FindPayoutByExternalID(ctx context.Context, externalID string) (*models.SellerPayout, error)
	UpdatePayout(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ListPayouts(ctx context.Context, shopID uuid.UUID, status *enums.PayoutStatus) ([]models.SellerPayout, error)
	LockPendingDonations(ctx context.Context, nonprofitID uuid.UUID, donationIDs []uuid.UUID) ([]models.Donation, error)
	CreateNonprofitPayout(ctx context.Context, payout *models.NonprofitPayout) error
	MarkDonationsPaid(ctx context.Context, donationIDs []uuid.UUID, payoutID uuid.UUID, at time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payouts repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) eligible(ctx context.Context, shopID uuid.UUID, periodStart, periodEnd time.Time) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("shop_id = ? AND status = ? AND payout_id IS NULL", shopID, enums.PaymentStatusPaid).
		Where("created_at >= ? AND created_at < ?", periodStart, periodEnd)
}

func (r *repository) LockEligiblePayments(ctx context.Context, shopID uuid.UUID, paymentIDs []uuid.UUID, periodStart, periodEnd time.Time) ([]models.Payment, error) {
	var rows []models.Payment
	if err := db.ForUpdate(r.eligible(ctx, shopID, periodStart, periodEnd)).
		Where("id IN ?", paymentIDs).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListEligiblePaymentIDs(ctx context.Context, shopID uuid.UUID, periodStart, periodEnd time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.eligible(ctx, shopID, periodStart, periodEnd).Order("created_at ASC").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// ListShopsWithEligiblePayments ignores any lower bound so payments released
// by failed payouts or held back below the minimum are never stranded.
func (r *repository) ListShopsWithEligiblePayments(ctx context.Context, before time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Distinct("shop_id").
		Where("status = ? AND payout_id IS NULL", enums.PaymentStatusPaid).
		Where("created_at < ?", before).
		Pluck("shop_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) OldestEligiblePayment(ctx context.Context, shopID uuid.UUID, before time.Time) (*models.Payment, error) {
	var row models.Payment
	if err := r.db.WithContext(ctx).
		Where("shop_id = ? AND status = ? AND payout_id IS NULL", shopID, enums.PaymentStatusPaid).
		Where("created_at < ?", before).
		Order("created_at ASC").
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) CreatePayout(ctx context.Context, payout *models.SellerPayout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *repository) LinkPayments(ctx context.Context, payoutID uuid.UUID, paymentIDs []uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id IN ? AND payout_id IS NULL", paymentIDs).
		Update("payout_id", payoutID)
	return res.RowsAffected, res.Error
}

func (r *repository) ReleasePayments(ctx context.Context, payoutID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("payout_id = ?", payoutID).
		Update("payout_id", nil).Error
}

func (r *repository) LockPayout(ctx context.Context, id uuid.UUID) (*models.SellerPayout, error) {
	var payout models.SellerPayout
	if err := db.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) FindPayout(ctx context.Context, id uuid.UUID) (*models.SellerPayout, error) {
	var payout models.SellerPayout
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) FindPayoutByExternalID(ctx context.Context, externalID string) (*models.SellerPayout, error) {
	var payout models.SellerPayout
	if err := r.db.WithContext(ctx).Where("external_payout_id = ?", externalID).First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) UpdatePayout(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.SellerPayout{}).Where("id = ?", id).Updates(updates).Error
}

func (r *repository) ListPayouts(ctx context.Context, shopID uuid.UUID, status *enums.PayoutStatus) ([]models.SellerPayout, error) {
	q := r.db.WithContext(ctx).Where("shop_id = ?", shopID)
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	var rows []models.SellerPayout
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) LockPendingDonations(ctx context.Context, nonprofitID uuid.UUID, donationIDs []uuid.UUID) ([]models.Donation, error) {
	var rows []models.Donation
	if err := db.ForUpdate(r.db.WithContext(ctx)).
		Where("id IN ? AND nonprofit_id = ? AND status = ?", donationIDs, nonprofitID, enums.DonationStatusPending).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CreateNonprofitPayout(ctx context.Context, payout *models.NonprofitPayout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *repository) MarkDonationsPaid(ctx context.Context, donationIDs []uuid.UUID, payoutID uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Donation{}).
		Where("id IN ? AND status = ?", donationIDs, enums.DonationStatusPending).
		Updates(map[string]any{
			"status":              enums.DonationStatusPaid,
			"nonprofit_payout_id": payoutID,
			"paid_at":             at,
		})
	return res.RowsAffected, res.Error
}
