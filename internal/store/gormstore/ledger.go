package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/courtclub/pkg/ledger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (store *Store) GetOrCreateUser(ctx context.Context, userID string, role ledger.Role) (ledger.User, error) {
	var user User
	err := store.db.WithContext(ctx).
		Where(User{UserID: userID}).
		Attrs(User{Role: role.String(), CreatedAt: time.Now().UTC()}).
		FirstOrCreate(&user).Error
	if err != nil {
		return ledger.User{}, wrapStoreError(errorSubjectUser, errorCodeLookup, err)
	}
	parsedRole, err := ledger.ParseRole(user.Role)
	if err != nil {
		return ledger.User{}, wrapStoreError(errorSubjectUser, errorCodeInvalid, err)
	}
	return ledger.User{
		UserID:         user.UserID,
		Role:           parsedRole,
		CreatedUnixUTC: user.CreatedAt.Unix(),
	}, nil
}

// LockUser takes the users row FOR UPDATE, serializing ledger mutations per
// user for the rest of the transaction. The sqlite dialector drops the
// locking clause; sqlite serializes writers on its own.
func (store *Store) LockUser(ctx context.Context, userID string) error {
	var user User
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		Take(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return wrapStoreError(errorSubjectUser, errorCodeLookup, ledger.ErrUserNotFound)
		}
		return wrapStoreError(errorSubjectUser, errorCodeLookup, err)
	}
	return nil
}

func (store *Store) UserExists(ctx context.Context, userID string) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&User{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	if err != nil {
		return false, wrapStoreError(errorSubjectUser, errorCodeLookup, err)
	}
	return count > 0, nil
}

func (store *Store) InsertEntry(ctx context.Context, entry ledger.Entry) error {
	row := LedgerEntry{
		EntryID:        entry.EntryID,
		UserID:         entry.UserID,
		Type:           entry.Type.String(),
		AmountCents:    entry.AmountCents.Int64(),
		Description:    entry.Description,
		CreatedBy:      entry.CreatedBy,
		EventID:        optionalString(entry.EventID),
		DepositID:      optionalString(entry.DepositID),
		IdempotencyKey: entry.IdempotencyKey,
		Metadata:       datatypesJSON(entry.MetadataJSON),
		CreatedAt:      time.Unix(entry.CreatedUnixUTC, 0).UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	err := store.db.WithContext(ctx).Create(&row).Error
	if isIdempotencyConflict(err) {
		return wrapStoreError(errorSubjectEntry, errorCodeDuplicate, ledger.ErrDuplicateIdempotencyKey)
	}
	if err != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) SumEntries(ctx context.Context, userID string) (ledger.AmountCents, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&LedgerEntry{}).
		Select("coalesce(sum(amount_cents),0) as total").
		Where("user_id = ?", userID).
		Scan(&sum).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectEntry, errorCodeSum, err)
	}
	return ledger.AmountCents(sum.Total), nil
}

func (store *Store) GetEntry(ctx context.Context, entryID string) (ledger.Entry, error) {
	var row LedgerEntry
	err := store.db.WithContext(ctx).
		Where("entry_id = ?", entryID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeGet, ledger.ErrEntryNotFound)
		}
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeGet, err)
	}
	entry, err := mapLedgerEntry(row)
	if err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return entry, nil
}

func (store *Store) UpdateEntryAmount(ctx context.Context, entryID string, amount ledger.AmountCents, correctedBy string, correctedAtUnixUTC int64) error {
	correctedAt := time.Unix(correctedAtUnixUTC, 0).UTC()
	result := store.db.WithContext(ctx).
		Model(&LedgerEntry{}).
		Where("entry_id = ?", entryID).
		Updates(map[string]interface{}{
			"amount_cents": amount.Int64(),
			"corrected_by": correctedBy,
			"corrected_at": correctedAt,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectEntry, errorCodeUpdate, ledger.ErrEntryNotFound)
	}
	return nil
}

func (store *Store) ListEntries(ctx context.Context, userID string, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	query := store.db.WithContext(ctx).
		Where("user_id = ?", userID)
	if len(filter.Types) > 0 {
		types := make([]string, 0, len(filter.Types))
		for _, entryType := range filter.Types {
			types = append(types, entryType.String())
		}
		query = query.Where("type in ?", types)
	}
	if filter.FromUnixUTC > 0 {
		query = query.Where("created_at >= ?", time.Unix(filter.FromUnixUTC, 0).UTC())
	}
	before := time.Now().UTC().Add(time.Second)
	if filter.BeforeUnixUTC > 0 {
		before = time.Unix(filter.BeforeUnixUTC, 0).UTC()
	}
	query = query.Where("created_at < ?", before)
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []LedgerEntry
	if err := query.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	return mapLedgerEntries(rows)
}

func (store *Store) ListEventEntries(ctx context.Context, eventID string, userID string) ([]ledger.Entry, error) {
	query := store.db.WithContext(ctx).
		Where("event_id = ?", eventID)
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	var rows []LedgerEntry
	// Arrival order must be exact; charge and refund pairing depends on it.
	if err := query.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	return mapLedgerEntries(rows)
}

func mapLedgerEntries(rows []LedgerEntry) ([]ledger.Entry, error) {
	entries := make([]ledger.Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapLedgerEntry(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func mapLedgerEntry(row LedgerEntry) (ledger.Entry, error) {
	entryType, err := ledger.ParseEntryType(row.Type)
	if err != nil {
		return ledger.Entry{}, err
	}
	return ledger.Entry{
		EntryID:        row.EntryID,
		UserID:         row.UserID,
		Type:           entryType,
		AmountCents:    ledger.AmountCents(row.AmountCents),
		Description:    row.Description,
		CreatedBy:      row.CreatedBy,
		EventID:        stringOrEmpty(row.EventID),
		DepositID:      stringOrEmpty(row.DepositID),
		IdempotencyKey: row.IdempotencyKey,
		MetadataJSON:   string(row.Metadata),
		CorrectedBy:    stringOrEmpty(row.CorrectedBy),
		CorrectedAtUTC: timeOrZero(row.CorrectedAt),
		CreatedUnixUTC: row.CreatedAt.Unix(),
	}, nil
}
