package ledger

const (
	operationAppend       = "append"
	operationCorrectEntry = "correct_entry"
	operationEnsureUser   = "ensure_user"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	// DefaultListLimit bounds ListEntries when no limit is supplied.
	DefaultListLimit = 50
	// MaxListLimit is the hard cap for a single ListEntries page.
	MaxListLimit = 200
)
