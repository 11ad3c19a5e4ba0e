package booking

import (
	"context"
	"fmt"

	"github.com/MarkoPoloResearchLab/courtclub/pkg/ledger"
	"github.com/MarkoPoloResearchLab/courtclub/pkg/roster"
	"go.uber.org/zap"
)

const (
	descriptionRegistrationCharge = "event registration charge"
	descriptionCancellationRefund = "registration cancellation refund"
	descriptionFinalizeCharge     = "event finalization charge"
	descriptionEventCancelRefund  = "event cancellation refund"

	createdBySystem = "system"
)

// Service orchestrates registration, cancellation, and finalization across
// the roster and the ledger. Every operation runs in one store transaction
// with the event row locked first and ledger rows touched after, so roster
// mutations serialize per event and the two stores commit or fail together.
type Service struct {
	store      Store
	nowFn      func() int64
	logger     *zap.Logger
	floorCents int64
}

// NewService wires a Service. floorCents is the default negative balance
// limit applied when an event carries no override.
func NewService(store Store, now func() int64, logger *zap.Logger, floorCents int64) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, nowFn: now, logger: logger, floorCents: floorCents}, nil
}

// Register admits the user into the event, charging the seat price when the
// seat is confirmed and the event charges at registration time. Waitlisted
// registrations are never charged. Affordability is checked before the roster
// is touched.
func (service *Service) Register(ctx context.Context, eventID string, userID string) (roster.Registration, error) {
	var registration roster.Registration
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore TxStore) error {
		event, err := transactionStore.GetEventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		now := service.nowFn()
		if err := event.EnsureMutable(now); err != nil {
			return err
		}
		// Event row first, user row second, everywhere. The user lock must
		// precede the balance read or two concurrent registrations could both
		// pass the affordability check.
		if err := transactionStore.LockUser(ctx, userID); err != nil {
			return err
		}
		if event.PriceCents > 0 {
			balance, err := transactionStore.SumEntries(ctx, userID)
			if err != nil {
				return err
			}
			if balance.Int64()-event.PriceCents < service.effectiveFloor(event) {
				return ErrInsufficientBalance
			}
		}
		registration, err = roster.Admit(ctx, transactionStore, event, userID, now)
		if err != nil {
			return err
		}
		if registration.Status == roster.StatusRegistered && event.ChargeOnEntry && event.PriceCents > 0 {
			if _, err := service.chargeIfUncharged(ctx, transactionStore, event, registration, ledger.EntryRegistrationCharge, now); err != nil {
				return service.consistencyFailure(ctx, "register", event.EventID, userID, err)
			}
		}
		return nil
	})
	return registration, err
}

// Cancel withdraws the user's registration and refunds exactly the amount of
// the outstanding charge, if one was collected. A waitlisted user promoted by
// this cancellation is not charged; promotion before finalize is speculative.
func (service *Service) Cancel(ctx context.Context, eventID string, userID string) (roster.Vacated, error) {
	var vacated roster.Vacated
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore TxStore) error {
		event, err := transactionStore.GetEventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		now := service.nowFn()
		if err := event.EnsureMutable(now); err != nil {
			return err
		}
		vacated, err = roster.Vacate(ctx, transactionStore, event, userID, now)
		if err != nil {
			return err
		}
		charge, outstanding, err := service.outstandingCharge(ctx, transactionStore, event.EventID, userID)
		if err != nil {
			return service.consistencyFailure(ctx, "cancel", event.EventID, userID, err)
		}
		if !outstanding {
			return nil
		}
		refund := ledger.AppendInput{
			UserID:         userID,
			Type:           ledger.EntryCancellationRefund,
			AmountCents:    charge.AmountCents.Negated(),
			Description:    descriptionCancellationRefund,
			CreatedBy:      createdBySystem,
			EventID:        event.EventID,
			IdempotencyKey: fmt.Sprintf("refund:%s", vacated.Canceled.RegistrationID),
		}
		if _, _, err := ledger.AppendWithinTx(ctx, transactionStore, refund, now); err != nil {
			return service.consistencyFailure(ctx, "cancel", event.EventID, userID, err)
		}
		return nil
	})
	return vacated, err
}

// FinalizeResult reports what a finalization charged.
type FinalizeResult struct {
	ChargedCount int
	TotalCents   int64
}

// Finalize closes the event and settles every confirmed seat that has not
// been charged yet. The status flips to closed first, under the event row
// lock, so the roster is frozen before any charge is written. A second call
// is rejected, never double-charged.
func (service *Service) Finalize(ctx context.Context, eventID string, adminID string) (FinalizeResult, error) {
	var result FinalizeResult
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore TxStore) error {
		event, err := transactionStore.GetEventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		if event.Status == roster.EventStatusClosed {
			return ErrEventAlreadyFinalized
		}
		if event.Status != roster.EventStatusOpen {
			return roster.ErrEventNotOpen
		}
		changed, err := transactionStore.UpdateEventStatus(ctx, eventID, roster.EventStatusOpen, roster.EventStatusClosed)
		if err != nil {
			return err
		}
		if !changed {
			return ErrEventAlreadyFinalized
		}
		if event.PriceCents <= 0 {
			return nil
		}
		now := service.nowFn()
		active, err := transactionStore.ListActiveByPosition(ctx, eventID)
		if err != nil {
			return err
		}
		for _, registration := range active {
			if !registration.Confirmed(event.MaxPlayers) {
				continue
			}
			charged, err := service.chargeIfUncharged(ctx, transactionStore, event, registration, ledger.EntryEventFinalizeCharge, now)
			if err != nil {
				return service.consistencyFailure(ctx, "finalize", eventID, registration.UserID, err)
			}
			if charged {
				result.ChargedCount++
				result.TotalCents += event.PriceCents
			}
		}
		service.logger.Info("event finalized",
			zap.String("event_id", eventID),
			zap.String("admin_id", adminID),
			zap.Int("charged_count", result.ChargedCount),
			zap.Int64("total_cents", result.TotalCents),
		)
		return nil
	})
	if err != nil {
		return FinalizeResult{}, err
	}
	return result, nil
}

// CancelEvent voids an open event without finalize charges. Charges already
// collected from register-time flows are refunded in full; cancellation of
// the occasion never leaves anyone paying for it.
func (service *Service) CancelEvent(ctx context.Context, eventID string, adminID string) error {
	return service.store.WithTx(ctx, func(ctx context.Context, transactionStore TxStore) error {
		event, err := transactionStore.GetEventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		if event.Status == roster.EventStatusClosed {
			return ErrEventAlreadyFinalized
		}
		if event.Status != roster.EventStatusOpen {
			return roster.ErrEventNotOpen
		}
		changed, err := transactionStore.UpdateEventStatus(ctx, eventID, roster.EventStatusOpen, roster.EventStatusCanceled)
		if err != nil {
			return err
		}
		if !changed {
			return roster.ErrEventNotOpen
		}
		now := service.nowFn()
		entries, err := transactionStore.ListEventEntries(ctx, eventID, "")
		if err != nil {
			return err
		}
		for _, charge := range outstandingCharges(entries) {
			refund := ledger.AppendInput{
				UserID:         charge.UserID,
				Type:           ledger.EntryCancellationRefund,
				AmountCents:    charge.AmountCents.Negated(),
				Description:    descriptionEventCancelRefund,
				CreatedBy:      adminID,
				EventID:        eventID,
				IdempotencyKey: fmt.Sprintf("event-cancel:%s", charge.EntryID),
			}
			if _, _, err := ledger.AppendWithinTx(ctx, transactionStore, refund, now); err != nil {
				return service.consistencyFailure(ctx, "cancel_event", eventID, charge.UserID, err)
			}
		}
		service.logger.Info("event canceled",
			zap.String("event_id", eventID),
			zap.String("admin_id", adminID),
		)
		return nil
	})
}

func (service *Service) effectiveFloor(event roster.Event) int64 {
	if event.FloorCents != nil {
		return *event.FloorCents
	}
	return service.floorCents
}

// chargeIfUncharged is the idempotent charge primitive shared by the
// register-time and finalize-time paths: a seat already carrying an
// outstanding charge is left alone regardless of which path admitted it.
func (service *Service) chargeIfUncharged(ctx context.Context, transactionStore TxStore, event roster.Event, registration roster.Registration, entryType ledger.EntryType, nowUnixUTC int64) (bool, error) {
	_, outstanding, err := service.outstandingCharge(ctx, transactionStore, event.EventID, registration.UserID)
	if err != nil {
		return false, err
	}
	if outstanding {
		return false, nil
	}
	description := descriptionRegistrationCharge
	keyPrefix := "reg"
	if entryType == ledger.EntryEventFinalizeCharge {
		description = descriptionFinalizeCharge
		keyPrefix = "finalize"
	}
	charge := ledger.AppendInput{
		UserID:         registration.UserID,
		Type:           entryType,
		AmountCents:    ledger.AmountCents(-event.PriceCents),
		Description:    description,
		CreatedBy:      createdBySystem,
		EventID:        event.EventID,
		IdempotencyKey: fmt.Sprintf("%s:%s", keyPrefix, registration.RegistrationID),
	}
	if _, _, err := ledger.AppendWithinTx(ctx, transactionStore, charge, nowUnixUTC); err != nil {
		return false, err
	}
	return true, nil
}

// outstandingCharge returns the latest event charge for the user that has no
// matching refund yet.
func (service *Service) outstandingCharge(ctx context.Context, transactionStore TxStore, eventID string, userID string) (ledger.Entry, bool, error) {
	entries, err := transactionStore.ListEventEntries(ctx, eventID, userID)
	if err != nil {
		return ledger.Entry{}, false, err
	}
	charges := outstandingCharges(entries)
	if len(charges) == 0 {
		return ledger.Entry{}, false, nil
	}
	return charges[len(charges)-1], true, nil
}

// outstandingCharges pairs event charges against cancellation refunds per
// user, in arrival order, and returns the charges still unmatched.
func outstandingCharges(entries []ledger.Entry) []ledger.Entry {
	chargesByUser := map[string][]ledger.Entry{}
	refundsByUser := map[string]int{}
	order := []string{}
	for _, entry := range entries {
		switch {
		case entry.Type.IsEventCharge():
			if _, seen := chargesByUser[entry.UserID]; !seen {
				order = append(order, entry.UserID)
			}
			chargesByUser[entry.UserID] = append(chargesByUser[entry.UserID], entry)
		case entry.Type == ledger.EntryCancellationRefund:
			refundsByUser[entry.UserID]++
		}
	}
	outstanding := []ledger.Entry{}
	for _, userID := range order {
		charges := chargesByUser[userID]
		refunded := refundsByUser[userID]
		if refunded >= len(charges) {
			continue
		}
		outstanding = append(outstanding, charges[refunded:]...)
	}
	return outstanding
}

func (service *Service) consistencyFailure(ctx context.Context, operation string, eventID string, userID string, err error) error {
	service.logger.Error("ledger write failed after roster mutation, rolling back",
		zap.String("operation", operation),
		zap.String("event_id", eventID),
		zap.String("user_id", userID),
		zap.Error(err),
	)
	return fmt.Errorf("%w: %s: %v", ErrConsistencyFailure, operation, err)
}
