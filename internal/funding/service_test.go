package funding

import (
	"context"
	"errors"
	"testing"

	"github.com/MarkoPoloResearchLab/courtclub/pkg/ledger"
	"go.uber.org/zap"
)

// stubStore is an in-memory Store for the funding service tests.
type stubStore struct {
	users       map[string]ledger.User
	entries     []ledger.Entry
	idempotency map[string]struct{}
	deposits    map[string]Deposit
	// callOrder records the ledger calls whose relative order the tests
	// assert on.
	callOrder []string
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		users:       map[string]ledger.User{},
		idempotency: map[string]struct{}{},
		deposits:    map[string]Deposit{},
	}
}

func (store *stubStore) addUser(test *testing.T, userID string, balanceCents int64) {
	test.Helper()
	store.users[userID] = ledger.User{UserID: userID, Role: ledger.RoleMember, CreatedUnixUTC: 1}
	if balanceCents != 0 {
		store.entries = append(store.entries, ledger.Entry{
			EntryID:        "seed-" + userID,
			UserID:         userID,
			Type:           ledger.EntryManualAdjustment,
			AmountCents:    ledger.AmountCents(balanceCents),
			IdempotencyKey: "seed:" + userID,
			CreatedUnixUTC: 1,
		})
	}
}

func (store *stubStore) balance(test *testing.T, userID string) int64 {
	test.Helper()
	total, err := store.SumEntries(context.Background(), userID)
	if err != nil {
		test.Fatalf("sum entries: %v", err)
	}
	return total.Int64()
}

func (store *stubStore) GetOrCreateUser(_ context.Context, userID string, role ledger.Role) (ledger.User, error) {
	if user, ok := store.users[userID]; ok {
		return user, nil
	}
	user := ledger.User{UserID: userID, Role: role, CreatedUnixUTC: 1}
	store.users[userID] = user
	return user, nil
}

func (store *stubStore) UserExists(_ context.Context, userID string) (bool, error) {
	_, ok := store.users[userID]
	return ok, nil
}

func (store *stubStore) LockUser(_ context.Context, userID string) error {
	store.callOrder = append(store.callOrder, "lock_user:"+userID)
	if _, ok := store.users[userID]; !ok {
		return ledger.ErrUserNotFound
	}
	return nil
}

func (store *stubStore) InsertEntry(_ context.Context, entry ledger.Entry) error {
	if _, taken := store.idempotency[entry.IdempotencyKey]; taken {
		return ledger.ErrDuplicateIdempotencyKey
	}
	store.idempotency[entry.IdempotencyKey] = struct{}{}
	store.entries = append(store.entries, entry)
	return nil
}

func (store *stubStore) SumEntries(_ context.Context, userID string) (ledger.AmountCents, error) {
	store.callOrder = append(store.callOrder, "sum_entries:"+userID)
	var total ledger.AmountCents
	for _, entry := range store.entries {
		if entry.UserID == userID {
			total += entry.AmountCents
		}
	}
	return total, nil
}

func (store *stubStore) GetEntry(_ context.Context, entryID string) (ledger.Entry, error) {
	for _, entry := range store.entries {
		if entry.EntryID == entryID {
			return entry, nil
		}
	}
	return ledger.Entry{}, ledger.ErrEntryNotFound
}

func (store *stubStore) UpdateEntryAmount(_ context.Context, entryID string, amount ledger.AmountCents, correctedBy string, correctedAtUnixUTC int64) error {
	for index := range store.entries {
		if store.entries[index].EntryID == entryID {
			store.entries[index].AmountCents = amount
			store.entries[index].CorrectedBy = correctedBy
			store.entries[index].CorrectedAtUTC = correctedAtUnixUTC
			return nil
		}
	}
	return ledger.ErrEntryNotFound
}

func (store *stubStore) ListEntries(_ context.Context, userID string, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	matched := []ledger.Entry{}
	for _, entry := range store.entries {
		if entry.UserID == userID {
			matched = append(matched, entry)
		}
	}
	return matched, nil
}

func (store *stubStore) ListEventEntries(_ context.Context, eventID string, userID string) ([]ledger.Entry, error) {
	matched := []ledger.Entry{}
	for _, entry := range store.entries {
		if entry.EventID != eventID {
			continue
		}
		if userID != "" && entry.UserID != userID {
			continue
		}
		matched = append(matched, entry)
	}
	return matched, nil
}

func (store *stubStore) InsertDeposit(_ context.Context, deposit Deposit) error {
	store.deposits[deposit.DepositID] = deposit
	return nil
}

func (store *stubStore) GetDepositForUpdate(_ context.Context, depositID string) (Deposit, error) {
	deposit, ok := store.deposits[depositID]
	if !ok {
		return Deposit{}, ErrDepositNotFound
	}
	return deposit, nil
}

func (store *stubStore) UpdateDepositStatus(_ context.Context, depositID string, from DepositStatus, to DepositStatus, refundedBy string, refundedAtUnixUTC int64) (bool, error) {
	deposit, ok := store.deposits[depositID]
	if !ok || deposit.Status != from {
		return false, nil
	}
	deposit.Status = to
	deposit.RefundedBy = refundedBy
	deposit.RefundedAtUTC = refundedAtUnixUTC
	store.deposits[depositID] = deposit
	return true, nil
}

func (store *stubStore) ListDeposits(_ context.Context, userID string) ([]Deposit, error) {
	deposits := []Deposit{}
	for _, deposit := range store.deposits {
		if deposit.UserID == userID {
			deposits = append(deposits, deposit)
		}
	}
	return deposits, nil
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore TxStore) error) error {
	return fn(ctx, store)
}

func mustNewService(test *testing.T, store Store) *Service {
	test.Helper()
	service, err := NewService(store, func() int64 { return 1700000000 }, zap.NewNop())
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func TestCreateDepositChargesWallet(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	store.addUser(test, "user-1", 1000)
	service := mustNewService(test, store)

	deposit, err := service.CreateDeposit(context.Background(), "user-1", 4000, "admin-1")
	if err != nil {
		test.Fatalf("create deposit: %v", err)
	}
	if deposit.Status != DepositStatusActive {
		test.Fatalf("expected active deposit, got %s", deposit.Status)
	}
	// Deposits may push the balance negative; no floor applies.
	if got := store.balance(test, "user-1"); got != -3000 {
		test.Fatalf("expected balance -3000, got %d", got)
	}
}

func TestCreateDepositRejectsNonPositiveAmount(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	store.addUser(test, "user-1", 1000)
	service := mustNewService(test, store)

	if _, err := service.CreateDeposit(context.Background(), "user-1", 0, "admin-1"); !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestRefundDepositIsTerminal(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	store.addUser(test, "user-1", 5000)
	service := mustNewService(test, store)

	deposit, err := service.CreateDeposit(context.Background(), "user-1", 4000, "admin-1")
	if err != nil {
		test.Fatalf("create deposit: %v", err)
	}

	refunded, err := service.RefundDeposit(context.Background(), deposit.DepositID, "admin-2")
	if err != nil {
		test.Fatalf("refund deposit: %v", err)
	}
	if refunded.Status != DepositStatusRefunded {
		test.Fatalf("expected refunded status, got %s", refunded.Status)
	}
	if refunded.RefundedBy != "admin-2" {
		test.Fatalf("expected refunder stamp, got %q", refunded.RefundedBy)
	}
	if got := store.balance(test, "user-1"); got != 5000 {
		test.Fatalf("expected full round trip to 5000, got %d", got)
	}

	_, err = service.RefundDeposit(context.Background(), deposit.DepositID, "admin-2")
	if !errors.Is(err, ErrDepositNotActive) {
		test.Fatalf("expected ErrDepositNotActive, got %v", err)
	}
	if got := store.balance(test, "user-1"); got != 5000 {
		test.Fatalf("expected ledger untouched by second refund, got %d", got)
	}
}

func TestRefundUnknownDeposit(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)

	_, err := service.RefundDeposit(context.Background(), "missing", "admin-1")
	if !errors.Is(err, ErrDepositNotFound) {
		test.Fatalf("expected ErrDepositNotFound, got %v", err)
	}
}

func TestDonationNeverPushesBalanceNegative(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	store.addUser(test, "user-1", 300)
	service := mustNewService(test, store)

	if _, err := service.CreateDonation(context.Background(), "user-1", 500); !errors.Is(err, ErrInsufficientBalance) {
		test.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	newBalance, err := service.CreateDonation(context.Background(), "user-1", 300)
	if err != nil {
		test.Fatalf("donation: %v", err)
	}
	if newBalance != 0 {
		test.Fatalf("expected balance 0 after donating everything, got %d", newBalance)
	}
}

func TestDonationLocksUserBeforeBalanceRead(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	store.addUser(test, "user-1", 5000)
	service := mustNewService(test, store)

	if _, err := service.CreateDonation(context.Background(), "user-1", 1000); err != nil {
		test.Fatalf("donation: %v", err)
	}

	lockIndex, sumIndex := -1, -1
	for index, call := range store.callOrder {
		switch call {
		case "lock_user:user-1":
			if lockIndex < 0 {
				lockIndex = index
			}
		case "sum_entries:user-1":
			if sumIndex < 0 {
				sumIndex = index
			}
		}
	}
	if lockIndex < 0 || sumIndex < 0 {
		test.Fatalf("expected both lock and balance read, got %v", store.callOrder)
	}
	if lockIndex > sumIndex {
		test.Fatalf("expected user lock before the balance read, got %v", store.callOrder)
	}
}

func TestManualAdjustmentAllowsEitherSign(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	store.addUser(test, "user-1", 0)
	service := mustNewService(test, store)

	newBalance, err := service.ManualAdjustment(context.Background(), "user-1", 2500, "season credit", "admin-1")
	if err != nil {
		test.Fatalf("credit adjustment: %v", err)
	}
	if newBalance != 2500 {
		test.Fatalf("expected 2500, got %d", newBalance)
	}

	newBalance, err = service.ManualAdjustment(context.Background(), "user-1", -4000, "damage fee", "admin-1")
	if err != nil {
		test.Fatalf("debit adjustment: %v", err)
	}
	if newBalance != -1500 {
		test.Fatalf("expected -1500, got %d", newBalance)
	}
}

func TestTopUpReplayIsIdempotent(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	store.addUser(test, "user-1", 0)
	service := mustNewService(test, store)

	first, err := service.TopUp(context.Background(), "user-1", 2000, "txn-42")
	if err != nil {
		test.Fatalf("top-up: %v", err)
	}
	if first != 2000 {
		test.Fatalf("expected 2000, got %d", first)
	}

	replayed, err := service.TopUp(context.Background(), "user-1", 2000, "txn-42")
	if err != nil {
		test.Fatalf("replayed top-up: %v", err)
	}
	if replayed != 2000 {
		test.Fatalf("expected replay to report current balance 2000, got %d", replayed)
	}
	if len(store.entries) != 1 {
		test.Fatalf("expected single top-up entry, got %d", len(store.entries))
	}
}

func TestTopUpRequiresExternalKey(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	store.addUser(test, "user-1", 0)
	service := mustNewService(test, store)

	if _, err := service.TopUp(context.Background(), "user-1", 2000, "  "); !errors.Is(err, ledger.ErrInvalidIdempotencyKey) {
		test.Fatalf("expected ErrInvalidIdempotencyKey, got %v", err)
	}
}
