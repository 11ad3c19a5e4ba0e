package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/courtclub/internal/booking"
	"github.com/MarkoPoloResearchLab/courtclub/internal/funding"
	"github.com/MarkoPoloResearchLab/courtclub/pkg/ledger"
	"github.com/MarkoPoloResearchLab/courtclub/pkg/roster"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	constraintIdempotencyKey = "uniq_ledger_idempotency_key"
	defaultMetadataJSON      = "{}"
	pgUniqueViolationCode    = "23505"
	sqliteConstraintCode     = 19

	errorOperationStore      = "store"
	errorSubjectUser         = "user"
	errorSubjectEvent        = "event"
	errorSubjectRegistration = "registration"
	errorSubjectEntry        = "entry"
	errorSubjectDeposit      = "deposit"
	errorCodeCreate          = "create"
	errorCodeDuplicate       = "duplicate"
	errorCodeGet             = "get"
	errorCodeInsert          = "insert"
	errorCodeInvalid         = "invalid"
	errorCodeList            = "list"
	errorCodeLookup          = "lookup"
	errorCodeSum             = "sum"
	errorCodeCount           = "count"
	errorCodeUpdate          = "update"
	errorCodeUpdateStatus    = "update_status"
)

// Store implements every row-level store contract using GORM. The WithTx
// wrappers below scope it to one service's transactional interface.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// LedgerStore adapts Store to ledger.Store.
type LedgerStore struct {
	*Store
}

// NewLedger returns the ledger-scoped store.
func NewLedger(db *gorm.DB) *LedgerStore {
	return &LedgerStore{Store: New(db)}
}

// WithTx executes fn within a transaction.
func (store *LedgerStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.TxStore) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

// RosterStore adapts Store to roster.Store.
type RosterStore struct {
	*Store
}

// NewRoster returns the roster-scoped store.
func NewRoster(db *gorm.DB) *RosterStore {
	return &RosterStore{Store: New(db)}
}

// WithTx executes fn within a transaction.
func (store *RosterStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore roster.TxStore) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

// BookingStore adapts Store to booking.Store.
type BookingStore struct {
	*Store
}

// NewBooking returns the booking-scoped store.
func NewBooking(db *gorm.DB) *BookingStore {
	return &BookingStore{Store: New(db)}
}

// WithTx executes fn within a transaction.
func (store *BookingStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore booking.TxStore) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

// FundingStore adapts Store to funding.Store.
type FundingStore struct {
	*Store
}

// NewFunding returns the funding-scoped store.
func NewFunding(db *gorm.DB) *FundingStore {
	return &FundingStore{Store: New(db)}
}

// WithTx executes fn within a transaction.
func (store *FundingStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore funding.TxStore) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

type sqlSum struct {
	Total int64
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func timeOrZero(value *time.Time) int64 {
	if value == nil {
		return 0
	}
	return value.Unix()
}

func stringOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func isIdempotencyConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintIdempotencyKey
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
