package txmanager

import "context"

// AutoCommitTransaction commits its work in one phase as soon as the caller
// asks. Work cannot be enlisted once the commit has started.
type AutoCommitTransaction struct {
	*participant
}

// Commit drives the one-phase commit protocol.
func (t *AutoCommitTransaction) Commit(ctx context.Context) error {
	return t.commitOnePhase(ctx)
}
