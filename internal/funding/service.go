package funding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/courtclub/pkg/ledger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	descriptionDepositCharge = "seasonal deposit"
	descriptionDepositRefund = "seasonal deposit refund"
	descriptionDonation      = "donation"
	descriptionTopUp         = "wallet top-up"
)

// Service manages the auxiliary ledger-affecting entities: refundable
// deposits, one-way donations, admin adjustments, and payment-provider
// top-ups. Everything funnels through the same ledger append path.
type Service struct {
	store  Store
	nowFn  func() int64
	logger *zap.Logger
}

// NewService wires a Service.
func NewService(store Store, now func() int64, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, nowFn: now, logger: logger}, nil
}

// CreateDeposit charges the wallet and opens an active deposit. The charge is
// admin-initiated and may intentionally push the balance negative, so no
// affordability floor applies here.
func (service *Service) CreateDeposit(ctx context.Context, userID string, amountCents int64, adminID string) (Deposit, error) {
	if amountCents <= 0 {
		return Deposit{}, fmt.Errorf("%w: deposit amount must be positive", ErrInvalidAmount)
	}
	now := service.nowFn()
	deposit := Deposit{
		DepositID:      uuid.NewString(),
		UserID:         userID,
		AmountCents:    amountCents,
		Status:         DepositStatusActive,
		CreatedBy:      adminID,
		CreatedUnixUTC: now,
	}
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore TxStore) error {
		charge := ledger.AppendInput{
			UserID:         userID,
			Type:           ledger.EntryDepositCharge,
			AmountCents:    ledger.AmountCents(-amountCents),
			Description:    descriptionDepositCharge,
			CreatedBy:      adminID,
			DepositID:      deposit.DepositID,
			IdempotencyKey: fmt.Sprintf("deposit:%s", deposit.DepositID),
		}
		if _, _, err := ledger.AppendWithinTx(ctx, transactionStore, charge, now); err != nil {
			return err
		}
		return transactionStore.InsertDeposit(ctx, deposit)
	})
	if err != nil {
		return Deposit{}, err
	}
	return deposit, nil
}

// RefundDeposit credits back the original amount and flips the deposit to
// refunded. Refunding is terminal; a second call fails and leaves the ledger
// untouched.
func (service *Service) RefundDeposit(ctx context.Context, depositID string, adminID string) (Deposit, error) {
	var refunded Deposit
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore TxStore) error {
		deposit, err := transactionStore.GetDepositForUpdate(ctx, depositID)
		if err != nil {
			return err
		}
		if deposit.Status != DepositStatusActive {
			return ErrDepositNotActive
		}
		now := service.nowFn()
		changed, err := transactionStore.UpdateDepositStatus(ctx, depositID, DepositStatusActive, DepositStatusRefunded, adminID, now)
		if err != nil {
			return err
		}
		if !changed {
			return ErrDepositNotActive
		}
		credit := ledger.AppendInput{
			UserID:         deposit.UserID,
			Type:           ledger.EntryDepositRefund,
			AmountCents:    ledger.AmountCents(deposit.AmountCents),
			Description:    descriptionDepositRefund,
			CreatedBy:      adminID,
			DepositID:      deposit.DepositID,
			IdempotencyKey: fmt.Sprintf("deposit-refund:%s", deposit.DepositID),
		}
		if _, _, err := ledger.AppendWithinTx(ctx, transactionStore, credit, now); err != nil {
			return err
		}
		refunded = deposit
		refunded.Status = DepositStatusRefunded
		refunded.RefundedBy = adminID
		refunded.RefundedAtUTC = now
		return nil
	})
	if err != nil {
		return Deposit{}, err
	}
	return refunded, nil
}

// ListDeposits returns a user's deposits, newest first.
func (service *Service) ListDeposits(ctx context.Context, userID string) ([]Deposit, error) {
	return service.store.ListDeposits(ctx, userID)
}

// CreateDonation debits the wallet one-way. Unlike event charges, a donation
// must never push the balance negative.
func (service *Service) CreateDonation(ctx context.Context, userID string, amountCents int64) (ledger.AmountCents, error) {
	if amountCents <= 0 {
		return 0, fmt.Errorf("%w: donation amount must be positive", ErrInvalidAmount)
	}
	var newBalance ledger.AmountCents
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore TxStore) error {
		// Lock before the balance read; two concurrent donations must not
		// both pass the floor check against the same balance.
		if err := transactionStore.LockUser(ctx, userID); err != nil {
			return err
		}
		balance, err := transactionStore.SumEntries(ctx, userID)
		if err != nil {
			return err
		}
		if balance.Int64() < amountCents {
			return ErrInsufficientBalance
		}
		donation := ledger.AppendInput{
			UserID:         userID,
			Type:           ledger.EntryDonation,
			AmountCents:    ledger.AmountCents(-amountCents),
			Description:    descriptionDonation,
			CreatedBy:      userID,
			IdempotencyKey: fmt.Sprintf("donation:%s", uuid.NewString()),
		}
		newBalance, _, err = ledger.AppendWithinTx(ctx, transactionStore, donation, service.nowFn())
		return err
	})
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

// ManualAdjustment appends an unconstrained signed entry. This is the one
// operation allowed to credit or debit without a corresponding business
// event, used for administrative top-ups and corrections.
func (service *Service) ManualAdjustment(ctx context.Context, userID string, amountCents int64, description string, adminID string) (ledger.AmountCents, error) {
	var newBalance ledger.AmountCents
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore TxStore) error {
		adjustment := ledger.AppendInput{
			UserID:         userID,
			Type:           ledger.EntryManualAdjustment,
			AmountCents:    ledger.AmountCents(amountCents),
			Description:    description,
			CreatedBy:      adminID,
			IdempotencyKey: fmt.Sprintf("adjust:%s", uuid.NewString()),
		}
		var err error
		newBalance, _, err = ledger.AppendWithinTx(ctx, transactionStore, adjustment, service.nowFn())
		return err
	})
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

// TopUp credits a confirmed payment. The external transaction key is the
// idempotency key: a retried webhook reports success without crediting twice.
func (service *Service) TopUp(ctx context.Context, userID string, amountCents int64, externalKey string) (ledger.AmountCents, error) {
	if amountCents <= 0 {
		return 0, fmt.Errorf("%w: top-up amount must be positive", ErrInvalidAmount)
	}
	if strings.TrimSpace(externalKey) == "" {
		return 0, fmt.Errorf("%w: empty value", ledger.ErrInvalidIdempotencyKey)
	}
	var newBalance ledger.AmountCents
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore TxStore) error {
		topUp := ledger.AppendInput{
			UserID:         userID,
			Type:           ledger.EntryTopUp,
			AmountCents:    ledger.AmountCents(amountCents),
			Description:    descriptionTopUp,
			CreatedBy:      createdByPaymentProvider,
			IdempotencyKey: fmt.Sprintf("topup:%s", externalKey),
		}
		var err error
		newBalance, _, err = ledger.AppendWithinTx(ctx, transactionStore, topUp, service.nowFn())
		return err
	})
	if errors.Is(err, ledger.ErrDuplicateIdempotencyKey) {
		service.logger.Info("top-up replayed, ignoring duplicate",
			zap.String("user_id", userID),
			zap.String("external_key", externalKey),
		)
		return service.store.SumEntries(ctx, userID)
	}
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

const createdByPaymentProvider = "payment_provider"
