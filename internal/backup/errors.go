package backup

import "errors"

// Failure taxonomy for the produce-and-persist critical path and the
// best-effort stages. Critical-path errors abort the job; the rest are
// logged and recovered locally.
var (
	// ErrSourceRead indicates a data-source adapter could not produce a
	// payload. Fatal to the job; no artifact is written.
	ErrSourceRead = errors.New("source read failure")

	// ErrEncoding indicates compression or encryption failed. Fatal; no
	// artifact is written.
	ErrEncoding = errors.New("encoding failure")

	// ErrLedgerWrite indicates the descriptor could not be appended.
	// Fatal; the artifact file from this attempt is orphaned and cleaned
	// up by a later maintenance pass.
	ErrLedgerWrite = errors.New("ledger write failure")

	// ErrRetention indicates a per-entry retention failure. Non-fatal,
	// logged and skipped.
	ErrRetention = errors.New("retention failure")
)
