package chain

// Outcome is the result of one payout attempt. Exactly one is produced
// per run. The closed set of variants forces callers to handle the
// dry-run and failure cases explicitly instead of inspecting a bare
// string.
type Outcome interface {
	isOutcome()
}

// Success means the transfer was mined and its receipt reports success.
type Success struct {
	TxHash string
}

// DryRun means the executor short-circuited before any network call and
// returned a placeholder hash.
type DryRun struct {
	TxHash string
}

// Failure covers everything else: invalid inputs, submission errors, and
// reverted transactions. Err carries the underlying cause when there is
// one; Reason is operator-readable.
type Failure struct {
	Reason string
	Err    error
}

func (Success) isOutcome() {}
func (DryRun) isOutcome()  {}
func (Failure) isOutcome() {}
