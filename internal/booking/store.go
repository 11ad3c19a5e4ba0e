package booking

import (
	"context"

	"github.com/MarkoPoloResearchLab/courtclub/pkg/ledger"
	"github.com/MarkoPoloResearchLab/courtclub/pkg/roster"
)

// TxStore joins the roster and ledger row contracts so register, cancel, and
// finalize can touch both inside one transaction.
type TxStore interface {
	roster.TxStore
	ledger.TxStore
}

// Store is the persistence contract used by Service.
type Store interface {
	TxStore
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore TxStore) error) error
}
