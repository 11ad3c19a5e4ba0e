package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/courtclub/pkg/roster"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (store *Store) InsertEvent(ctx context.Context, event roster.Event) error {
	row := Event{
		EventID:       event.EventID,
		Name:          event.Name,
		Status:        event.Status.String(),
		StartsAt:      time.Unix(event.StartsAtUTC, 0).UTC(),
		MaxPlayers:    event.MaxPlayers,
		CourtCount:    event.CourtCount,
		PriceCents:    event.PriceCents,
		CutoffSeconds: event.CutoffSeconds,
		FloorCents:    event.FloorCents,
		ChargeOnEntry: event.ChargeOnEntry,
		CreatedBy:     event.CreatedBy,
		CreatedAt:     time.Unix(event.CreatedUnixUTC, 0).UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return wrapStoreError(errorSubjectEvent, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetEvent(ctx context.Context, eventID string) (roster.Event, error) {
	return store.getEvent(ctx, eventID, false)
}

func (store *Store) GetEventForUpdate(ctx context.Context, eventID string) (roster.Event, error) {
	return store.getEvent(ctx, eventID, true)
}

func (store *Store) getEvent(ctx context.Context, eventID string, forUpdate bool) (roster.Event, error) {
	query := store.db.WithContext(ctx)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row Event
	err := query.Where("event_id = ?", eventID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return roster.Event{}, wrapStoreError(errorSubjectEvent, errorCodeGet, roster.ErrEventNotFound)
		}
		return roster.Event{}, wrapStoreError(errorSubjectEvent, errorCodeGet, err)
	}
	return mapEvent(row)
}

func (store *Store) UpdateEventStatus(ctx context.Context, eventID string, from roster.EventStatus, to roster.EventStatus) (bool, error) {
	result := store.db.WithContext(ctx).
		Model(&Event{}).
		Where("event_id = ? AND status = ?", eventID, from.String()).
		Update("status", to.String())
	if result.Error != nil {
		return false, wrapStoreError(errorSubjectEvent, errorCodeUpdateStatus, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (store *Store) ListEvents(ctx context.Context) ([]roster.Event, error) {
	var rows []Event
	err := store.db.WithContext(ctx).
		Order("starts_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEvent, errorCodeList, err)
	}
	events := make([]roster.Event, 0, len(rows))
	for _, row := range rows {
		event, err := mapEvent(row)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

func (store *Store) ActiveRegistration(ctx context.Context, eventID string, userID string) (roster.Registration, bool, error) {
	var row Registration
	err := store.db.WithContext(ctx).
		Where("event_id = ? AND user_id = ? AND status in ?", eventID, userID, activeStatuses()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return roster.Registration{}, false, nil
	}
	if err != nil {
		return roster.Registration{}, false, wrapStoreError(errorSubjectRegistration, errorCodeGet, err)
	}
	registration, err := mapRegistration(row)
	if err != nil {
		return roster.Registration{}, false, err
	}
	return registration, true, nil
}

func (store *Store) CountActiveRegistrations(ctx context.Context, eventID string) (int, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&Registration{}).
		Where("event_id = ? AND status in ?", eventID, activeStatuses()).
		Count(&count).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectRegistration, errorCodeCount, err)
	}
	return int(count), nil
}

func (store *Store) InsertRegistration(ctx context.Context, registration roster.Registration) error {
	row := Registration{
		RegistrationID:  registration.RegistrationID,
		EventID:         registration.EventID,
		UserID:          registration.UserID,
		Status:          registration.Status.String(),
		Position:        registration.Position,
		RegisteredAt:    time.Unix(registration.RegisteredAt, 0).UTC(),
		StatusChangedAt: time.Unix(registration.StatusChanged, 0).UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return wrapStoreError(errorSubjectRegistration, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) TransitionRegistration(ctx context.Context, registrationID string, to roster.RegistrationStatus, position int, atUnixUTC int64) error {
	result := store.db.WithContext(ctx).
		Model(&Registration{}).
		Where("registration_id = ?", registrationID).
		Updates(map[string]interface{}{
			"status":            to.String(),
			"position":          position,
			"status_changed_at": time.Unix(atUnixUTC, 0).UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectRegistration, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectRegistration, errorCodeUpdateStatus, roster.ErrNotRegistered)
	}
	return nil
}

func (store *Store) ShiftPositionsAfter(ctx context.Context, eventID string, freedPosition int) error {
	err := store.db.WithContext(ctx).
		Model(&Registration{}).
		Where("event_id = ? AND status in ? AND position > ?", eventID, activeStatuses(), freedPosition).
		UpdateColumn("position", gorm.Expr("position - 1")).Error
	if err != nil {
		return wrapStoreError(errorSubjectRegistration, errorCodeUpdate, err)
	}
	return nil
}

func (store *Store) EarliestWaitlisted(ctx context.Context, eventID string) (roster.Registration, bool, error) {
	var row Registration
	err := store.db.WithContext(ctx).
		Where("event_id = ? AND status = ?", eventID, roster.StatusWaitlisted.String()).
		Order("position ASC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return roster.Registration{}, false, nil
	}
	if err != nil {
		return roster.Registration{}, false, wrapStoreError(errorSubjectRegistration, errorCodeGet, err)
	}
	registration, err := mapRegistration(row)
	if err != nil {
		return roster.Registration{}, false, err
	}
	return registration, true, nil
}

func (store *Store) ListActiveByPosition(ctx context.Context, eventID string) ([]roster.Registration, error) {
	var rows []Registration
	err := store.db.WithContext(ctx).
		Where("event_id = ? AND status in ?", eventID, activeStatuses()).
		Order("position ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectRegistration, errorCodeList, err)
	}
	return mapRegistrations(rows)
}

func (store *Store) ListRegistrationHistory(ctx context.Context, eventID string) ([]roster.Registration, error) {
	var rows []Registration
	err := store.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("registered_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectRegistration, errorCodeList, err)
	}
	return mapRegistrations(rows)
}

func activeStatuses() []string {
	return []string{roster.StatusRegistered.String(), roster.StatusWaitlisted.String()}
}

func mapEvent(row Event) (roster.Event, error) {
	status, err := roster.ParseEventStatus(row.Status)
	if err != nil {
		return roster.Event{}, wrapStoreError(errorSubjectEvent, errorCodeInvalid, err)
	}
	return roster.Event{
		EventID:        row.EventID,
		Name:           row.Name,
		Status:         status,
		StartsAtUTC:    row.StartsAt.Unix(),
		MaxPlayers:     row.MaxPlayers,
		CourtCount:     row.CourtCount,
		PriceCents:     row.PriceCents,
		CutoffSeconds:  row.CutoffSeconds,
		FloorCents:     row.FloorCents,
		ChargeOnEntry:  row.ChargeOnEntry,
		CreatedBy:      row.CreatedBy,
		CreatedUnixUTC: row.CreatedAt.Unix(),
	}, nil
}

func mapRegistrations(rows []Registration) ([]roster.Registration, error) {
	registrations := make([]roster.Registration, 0, len(rows))
	for _, row := range rows {
		registration, err := mapRegistration(row)
		if err != nil {
			return nil, err
		}
		registrations = append(registrations, registration)
	}
	return registrations, nil
}

func mapRegistration(row Registration) (roster.Registration, error) {
	switch roster.RegistrationStatus(row.Status) {
	case roster.StatusRegistered, roster.StatusWaitlisted, roster.StatusCanceled:
	default:
		return roster.Registration{}, wrapStoreError(errorSubjectRegistration, errorCodeInvalid, roster.ErrInvalidEventStatus)
	}
	return roster.Registration{
		RegistrationID: row.RegistrationID,
		EventID:        row.EventID,
		UserID:         row.UserID,
		Status:         roster.RegistrationStatus(row.Status),
		Position:       row.Position,
		RegisteredAt:   row.RegisteredAt.Unix(),
		StatusChanged:  row.StatusChangedAt.Unix(),
	}, nil
}
