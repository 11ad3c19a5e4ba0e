package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Service contains the wallet domain logic over a Store. It is the only
// write path to a user's balance: every balance change is an appended entry,
// and the balance itself is always recomputed as the sum of entries.
type Service struct {
	store  Store
	nowFn  func() int64
	logger OperationLogger
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// EnsureUser gets or creates the balance owner for an authenticated identity.
// The auth layer is the source of truth for identity and role.
func (service *Service) EnsureUser(ctx context.Context, userID string, role Role) (User, error) {
	if _, err := ParseRole(role.String()); err != nil {
		return User{}, err
	}
	user, operationError := service.store.GetOrCreateUser(ctx, userID, role)
	service.logOperation(ctx, OperationLog{
		Operation: operationEnsureUser,
		UserID:    userID,
		Error:     operationError,
	})
	return user, operationError
}

// Balance returns the sum of all ledger entries for the user.
func (service *Service) Balance(ctx context.Context, userID string) (AmountCents, error) {
	exists, err := service.store.UserExists(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrUserNotFound
	}
	return service.store.SumEntries(ctx, userID)
}

// Append inserts one immutable entry and returns the new balance. It never
// rejects a negative resulting balance; affordability policy belongs to the
// caller.
func (service *Service) Append(ctx context.Context, input AppendInput) (AmountCents, error) {
	var newBalance AmountCents
	var entryID string
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore TxStore) error {
		balance, entry, err := AppendWithinTx(ctx, transactionStore, input, service.nowFn())
		if err != nil {
			return err
		}
		newBalance = balance
		entryID = entry.EntryID
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationAppend,
		UserID:    input.UserID,
		EntryID:   entryID,
		EntryType: input.Type,
		Amount:    input.AmountCents,
		CreatedBy: input.CreatedBy,
		Error:     operationError,
	})
	return newBalance, operationError
}

// AppendWithinTx performs the append contract against an open transaction.
// Orchestrating services use it to keep roster and ledger writes atomic. The
// user row is locked before the insert, so concurrent appends for the same
// user serialize; callers that gate the append on a balance read must take
// the same lock before reading.
func AppendWithinTx(ctx context.Context, transactionStore TxStore, input AppendInput, nowUnixUTC int64) (AmountCents, Entry, error) {
	if err := input.Validate(); err != nil {
		return 0, Entry{}, err
	}
	if err := transactionStore.LockUser(ctx, input.UserID); err != nil {
		return 0, Entry{}, err
	}
	entry := Entry{
		EntryID:        uuid.NewString(),
		UserID:         input.UserID,
		Type:           input.Type,
		AmountCents:    input.AmountCents,
		Description:    input.Description,
		CreatedBy:      input.CreatedBy,
		EventID:        input.EventID,
		DepositID:      input.DepositID,
		IdempotencyKey: input.IdempotencyKey,
		MetadataJSON:   input.MetadataJSON,
		CreatedUnixUTC: nowUnixUTC,
	}
	if err := transactionStore.InsertEntry(ctx, entry); err != nil {
		return 0, Entry{}, err
	}
	newBalance, err := transactionStore.SumEntries(ctx, input.UserID)
	if err != nil {
		return 0, Entry{}, err
	}
	return newBalance, entry, nil
}

// ListEntries lists a user's entries, newest first.
func (service *Service) ListEntries(ctx context.Context, userID string, filter EntryFilter) ([]Entry, error) {
	exists, err := service.store.UserExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrUserNotFound
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}
	return service.store.ListEntries(ctx, userID, filter)
}

// CorrectEntry rewrites the amount of an existing entry in place. This is a
// privileged reconciliation operation, not a business event: the edit is
// stamped on the entry and reported through the operation log, and the
// balance stays consistent because it is always the sum of entries.
func (service *Service) CorrectEntry(ctx context.Context, entryID string, newAmount AmountCents, correctedBy string) (Entry, error) {
	var corrected Entry
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore TxStore) error {
		entry, err := transactionStore.GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if err := entry.Type.ValidateAmountSign(newAmount); err != nil {
			return err
		}
		if err := transactionStore.LockUser(ctx, entry.UserID); err != nil {
			return err
		}
		correctedAt := service.nowFn()
		if err := transactionStore.UpdateEntryAmount(ctx, entryID, newAmount, correctedBy, correctedAt); err != nil {
			return err
		}
		corrected = entry
		corrected.AmountCents = newAmount
		corrected.CorrectedBy = correctedBy
		corrected.CorrectedAtUTC = correctedAt
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationCorrectEntry,
		UserID:    corrected.UserID,
		EntryID:   entryID,
		EntryType: corrected.Type,
		Amount:    newAmount,
		CreatedBy: correctedBy,
		Error:     operationError,
	})
	if operationError != nil {
		return Entry{}, operationError
	}
	return corrected, nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}
