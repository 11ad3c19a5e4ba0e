package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/courtclub/internal/funding"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (store *Store) InsertDeposit(ctx context.Context, deposit funding.Deposit) error {
	row := Deposit{
		DepositID:   deposit.DepositID,
		UserID:      deposit.UserID,
		AmountCents: deposit.AmountCents,
		Status:      deposit.Status.String(),
		CreatedBy:   deposit.CreatedBy,
		CreatedAt:   time.Unix(deposit.CreatedUnixUTC, 0).UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return wrapStoreError(errorSubjectDeposit, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetDepositForUpdate(ctx context.Context, depositID string) (funding.Deposit, error) {
	var row Deposit
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("deposit_id = ?", depositID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return funding.Deposit{}, wrapStoreError(errorSubjectDeposit, errorCodeGet, funding.ErrDepositNotFound)
		}
		return funding.Deposit{}, wrapStoreError(errorSubjectDeposit, errorCodeGet, err)
	}
	return mapDeposit(row)
}

func (store *Store) UpdateDepositStatus(ctx context.Context, depositID string, from funding.DepositStatus, to funding.DepositStatus, refundedBy string, refundedAtUnixUTC int64) (bool, error) {
	refundedAt := time.Unix(refundedAtUnixUTC, 0).UTC()
	result := store.db.WithContext(ctx).
		Model(&Deposit{}).
		Where("deposit_id = ? AND status = ?", depositID, from.String()).
		Updates(map[string]interface{}{
			"status":      to.String(),
			"refunded_by": refundedBy,
			"refunded_at": refundedAt,
		})
	if result.Error != nil {
		return false, wrapStoreError(errorSubjectDeposit, errorCodeUpdateStatus, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (store *Store) ListDeposits(ctx context.Context, userID string) ([]funding.Deposit, error) {
	var rows []Deposit
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectDeposit, errorCodeList, err)
	}
	deposits := make([]funding.Deposit, 0, len(rows))
	for _, row := range rows {
		deposit, err := mapDeposit(row)
		if err != nil {
			return nil, err
		}
		deposits = append(deposits, deposit)
	}
	return deposits, nil
}

func mapDeposit(row Deposit) (funding.Deposit, error) {
	status, err := funding.ParseDepositStatus(row.Status)
	if err != nil {
		return funding.Deposit{}, wrapStoreError(errorSubjectDeposit, errorCodeInvalid, err)
	}
	return funding.Deposit{
		DepositID:      row.DepositID,
		UserID:         row.UserID,
		AmountCents:    row.AmountCents,
		Status:         status,
		CreatedBy:      row.CreatedBy,
		CreatedUnixUTC: row.CreatedAt.Unix(),
		RefundedBy:     stringOrEmpty(row.RefundedBy),
		RefundedAtUTC:  timeOrZero(row.RefundedAt),
	}, nil
}
