package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// AmountCents is an integer currency amount in cents. Debits are negative,
// credits are positive; balances may legitimately go below zero.
type AmountCents int64

// Int64 returns the raw cent value.
func (amount AmountCents) Int64() int64 {
	return int64(amount)
}

// Negated flips the sign of the amount.
func (amount AmountCents) Negated() AmountCents {
	return -amount
}

// Role classifies a user for authorization performed by the calling layer.
type Role string

const (
	RoleMember     Role = "member"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// ParseRole validates a role string.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleMember, RoleAdmin, RoleSuperAdmin:
		return Role(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
}

// String returns the role name.
func (role Role) String() string {
	return string(role)
}

// User is a balance owner. Balance is never stored on the row; it is always
// the sum of the user's ledger entries.
type User struct {
	UserID         string
	Role           Role
	CreatedUnixUTC int64
}

// EntryType enumerates ledger entry kinds.
type EntryType string

const (
	EntryRegistrationCharge  EntryType = "registration_charge"
	EntryCancellationRefund  EntryType = "cancellation_refund"
	EntryEventFinalizeCharge EntryType = "event_finalize_charge"
	EntryTopUp               EntryType = "topup"
	EntryManualAdjustment    EntryType = "manual_adjustment"
	EntryDepositCharge       EntryType = "deposit_charge"
	EntryDepositRefund       EntryType = "deposit_refund"
	EntryDonation            EntryType = "donation"
)

// ParseEntryType validates an entry type string.
func ParseEntryType(raw string) (EntryType, error) {
	switch EntryType(raw) {
	case EntryRegistrationCharge, EntryCancellationRefund, EntryEventFinalizeCharge,
		EntryTopUp, EntryManualAdjustment, EntryDepositCharge, EntryDepositRefund, EntryDonation:
		return EntryType(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEntryType, raw)
}

// String returns the entry type name.
func (entryType EntryType) String() string {
	return string(entryType)
}

// ValidateAmountSign checks that an amount carries the sign its entry type
// requires. Manual adjustments are the one type allowed either sign.
func (entryType EntryType) ValidateAmountSign(amount AmountCents) error {
	if amount == 0 {
		return fmt.Errorf("%w: must be non-zero", ErrInvalidAmountCents)
	}
	switch entryType {
	case EntryRegistrationCharge, EntryEventFinalizeCharge, EntryDepositCharge, EntryDonation:
		if amount > 0 {
			return fmt.Errorf("%w: %s must be a debit", ErrInvalidAmountCents, entryType)
		}
	case EntryCancellationRefund, EntryDepositRefund, EntryTopUp:
		if amount < 0 {
			return fmt.Errorf("%w: %s must be a credit", ErrInvalidAmountCents, entryType)
		}
	case EntryManualAdjustment:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidEntryType, entryType)
	}
	return nil
}

// IsEventCharge reports whether the type debits a user for an event seat.
func (entryType EntryType) IsEventCharge() bool {
	return entryType == EntryRegistrationCharge || entryType == EntryEventFinalizeCharge
}

// Entry is a single immutable line in the ledger.
type Entry struct {
	EntryID        string
	UserID         string
	Type           EntryType
	AmountCents    AmountCents
	Description    string
	CreatedBy      string
	EventID        string
	DepositID      string
	IdempotencyKey string
	MetadataJSON   string
	CorrectedBy    string
	CorrectedAtUTC int64
	CreatedUnixUTC int64
}

// AppendInput describes one entry to append.
type AppendInput struct {
	UserID         string
	Type           EntryType
	AmountCents    AmountCents
	Description    string
	CreatedBy      string
	EventID        string
	DepositID      string
	IdempotencyKey string
	MetadataJSON   string
}

// Validate normalizes and checks an append input.
func (input *AppendInput) Validate() error {
	input.UserID = strings.TrimSpace(input.UserID)
	if input.UserID == "" {
		return fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	if _, err := ParseEntryType(input.Type.String()); err != nil {
		return err
	}
	if err := input.Type.ValidateAmountSign(input.AmountCents); err != nil {
		return err
	}
	input.IdempotencyKey = strings.TrimSpace(input.IdempotencyKey)
	if input.IdempotencyKey == "" {
		return fmt.Errorf("%w: empty value", ErrInvalidIdempotencyKey)
	}
	if input.MetadataJSON == "" {
		input.MetadataJSON = "{}"
	}
	if !json.Valid([]byte(input.MetadataJSON)) {
		return fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return nil
}

// EntryFilter narrows ListEntries results.
type EntryFilter struct {
	Types         []EntryType
	FromUnixUTC   int64
	BeforeUnixUTC int64
	Limit         int
}

// TxStore is the row-level persistence contract. The same methods are usable
// inside and outside a transaction.
type TxStore interface {
	GetOrCreateUser(ctx context.Context, userID string, role Role) (User, error)
	UserExists(ctx context.Context, userID string) (bool, error)
	// LockUser takes the user row lock for the rest of the transaction,
	// serializing ledger mutations per user. Returns ErrUserNotFound when no
	// such user exists. Callers that check a balance before appending must
	// lock first, or two transactions can both pass the check.
	LockUser(ctx context.Context, userID string) error
	InsertEntry(ctx context.Context, entry Entry) error
	SumEntries(ctx context.Context, userID string) (AmountCents, error)
	GetEntry(ctx context.Context, entryID string) (Entry, error)
	UpdateEntryAmount(ctx context.Context, entryID string, amount AmountCents, correctedBy string, correctedAtUnixUTC int64) error
	ListEntries(ctx context.Context, userID string, filter EntryFilter) ([]Entry, error)
	// ListEventEntries returns event-scoped entries; an empty userID selects
	// entries for every user of the event.
	ListEventEntries(ctx context.Context, eventID string, userID string) ([]Entry, error)
}

// Store is the persistence contract used by Service.
type Store interface {
	TxStore
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore TxStore) error) error
}
