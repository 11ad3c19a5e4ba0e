package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User represents the users table. Identity comes from the auth layer; no
// balance column exists on purpose, the balance is always derived from the
// ledger_entries rows.
type User struct {
	UserID    string    `gorm:"primaryKey"`
	Role      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (User) TableName() string { return "users" }

// Event represents the events table.
type Event struct {
	EventID       string     `gorm:"type:uuid;primaryKey"`
	Name          string     `gorm:"not null"`
	Status        string     `gorm:"not null;index"`
	StartsAt      time.Time  `gorm:"not null"`
	MaxPlayers    int        `gorm:"not null"`
	CourtCount    int        `gorm:"not null"`
	PriceCents    int64      `gorm:"not null"`
	CutoffSeconds int64      `gorm:"not null"`
	FloorCents    *int64     `gorm:""`
	ChargeOnEntry bool       `gorm:"not null"`
	CreatedBy     string     `gorm:"not null"`
	CreatedAt     time.Time  `gorm:"not null"`
}

func (Event) TableName() string { return "events" }

func (event *Event) BeforeCreate(tx *gorm.DB) error {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	return nil
}

// Registration mirrors the registrations table. Canceled rows are retained;
// the table is a transition log, not a mutable current-state row.
type Registration struct {
	RegistrationID  string    `gorm:"type:uuid;primaryKey"`
	EventID         string    `gorm:"type:uuid;not null;index:idx_registrations_event_user,priority:1"`
	UserID          string    `gorm:"not null;index:idx_registrations_event_user,priority:2"`
	Status          string    `gorm:"not null"`
	Position        int       `gorm:"not null"`
	RegisteredAt    time.Time `gorm:"not null"`
	StatusChangedAt time.Time `gorm:"not null"`
}

func (Registration) TableName() string { return "registrations" }

func (registration *Registration) BeforeCreate(tx *gorm.DB) error {
	if registration.RegistrationID == "" {
		registration.RegistrationID = uuid.NewString()
	}
	return nil
}

// LedgerEntry mirrors the ledger_entries table. The auto-increment ID fixes
// arrival order; CreatedAt has whole-second resolution, so entries written in
// the same second would otherwise sort nondeterministically.
type LedgerEntry struct {
	ID             uint64         `gorm:"primaryKey;autoIncrement"`
	EntryID        string         `gorm:"type:uuid;not null;uniqueIndex"`
	UserID         string         `gorm:"not null;index:idx_ledger_user_created,priority:1"`
	Type           string         `gorm:"not null"`
	AmountCents    int64          `gorm:"not null"`
	Description    string         `gorm:"not null"`
	CreatedBy      string         `gorm:"not null"`
	EventID        *string        `gorm:"type:uuid;index"`
	DepositID      *string        `gorm:"type:uuid"`
	IdempotencyKey string         `gorm:"not null;uniqueIndex:uniq_ledger_idempotency_key"`
	Metadata       datatypes.JSON `gorm:"not null"`
	CorrectedBy    *string        `gorm:""`
	CorrectedAt    *time.Time     `gorm:""`
	CreatedAt      time.Time      `gorm:"not null;index:idx_ledger_user_created,priority:2"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (entry *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}

// Deposit mirrors the deposits table.
type Deposit struct {
	DepositID   string     `gorm:"type:uuid;primaryKey"`
	UserID      string     `gorm:"not null;index"`
	AmountCents int64      `gorm:"not null"`
	Status      string     `gorm:"not null"`
	CreatedBy   string     `gorm:"not null"`
	CreatedAt   time.Time  `gorm:"not null"`
	RefundedBy  *string    `gorm:""`
	RefundedAt  *time.Time `gorm:""`
}

func (Deposit) TableName() string { return "deposits" }

func (deposit *Deposit) BeforeCreate(tx *gorm.DB) error {
	if deposit.DepositID == "" {
		deposit.DepositID = uuid.NewString()
	}
	return nil
}

// Migrate creates or updates the schema for every table the store owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&User{}, &Event{}, &Registration{}, &LedgerEntry{}, &Deposit{})
}
