package funding

import (
	"context"
	"fmt"

	"github.com/MarkoPoloResearchLab/courtclub/pkg/ledger"
)

// DepositStatus defines the deposit lifecycle. Refunded is terminal.
type DepositStatus string

const (
	DepositStatusActive   DepositStatus = "active"
	DepositStatusRefunded DepositStatus = "refunded"
)

// ParseDepositStatus validates a deposit status string.
func ParseDepositStatus(raw string) (DepositStatus, error) {
	switch DepositStatus(raw) {
	case DepositStatusActive, DepositStatusRefunded:
		return DepositStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDepositStatus, raw)
}

// String returns the status name.
func (status DepositStatus) String() string {
	return string(status)
}

// Deposit is a refundable season-level hold, charged against the wallet when
// created and credited back once when refunded.
type Deposit struct {
	DepositID      string
	UserID         string
	AmountCents    int64
	Status         DepositStatus
	CreatedBy      string
	CreatedUnixUTC int64
	RefundedBy     string
	RefundedAtUTC  int64
}

// TxStore is the row-level persistence contract for deposits plus the ledger
// rows the funding flows write.
type TxStore interface {
	ledger.TxStore
	InsertDeposit(ctx context.Context, deposit Deposit) error
	// GetDepositForUpdate locks the deposit row for the transaction.
	GetDepositForUpdate(ctx context.Context, depositID string) (Deposit, error)
	// UpdateDepositStatus transitions only when the current status matches
	// from, reporting whether a row changed.
	UpdateDepositStatus(ctx context.Context, depositID string, from DepositStatus, to DepositStatus, refundedBy string, refundedAtUnixUTC int64) (bool, error)
	ListDeposits(ctx context.Context, userID string) ([]Deposit, error)
}

// Store is the persistence contract used by Service.
type Store interface {
	TxStore
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore TxStore) error) error
}
