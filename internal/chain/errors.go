package chain

import "errors"

// Taxonomy errors returned by the ChainClient adapter and the pipeline built
// on top of it. Callers should match against these with errors.Is rather
// than string comparisons.
var (
	// ErrTransport signals an RPC I/O failure or timeout. The indexer
	// driver retries with backoff; exhausted retries fail the tick without
	// advancing the cursor.
	ErrTransport = errors.New("chain: transport error")

	// ErrRangeTooLarge signals the RPC endpoint rejected a log query
	// because the requested block range was too wide. The scheduler
	// shrinks its speed and retries the same window.
	ErrRangeTooLarge = errors.New("chain: requested range too large")

	// ErrNotFound signals a missing block header.
	ErrNotFound = errors.New("chain: not found")

	// ErrRevert signals a view call reverted on-chain.
	ErrRevert = errors.New("chain: call reverted")

	// ErrMalformed signals a log failed to decode against its event spec.
	// This is fatal for the tick: it indicates ABI drift.
	ErrMalformed = errors.New("chain: malformed log")

	// ErrDanglingNominee signals a ContenderAdded or vote event referenced
	// a proposal neither seen in this tick's window nor present in the
	// checkpoint store.
	ErrDanglingNominee = errors.New("chain: nominee references unknown proposal")
)
