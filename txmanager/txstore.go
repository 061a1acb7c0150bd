package txmanager

import (
	"context"

	"msgtx/component"
	"msgtx/tranid"
)

// PersistentTransaction is what a PersistenceManager sees of a transaction.
type PersistentTransaction interface {
	component.Transaction
	TransactionType() TransactionType
	// WorkList returns the enlisted work in enlistment order
	WorkList() []component.WorkItem
}

// PersistenceManager makes transactions durable. Every call may block on I/O.
// Failures wrapped with Severe are treated as unrecoverable; anything else is
// an ordinary failure the coordinator recovers from by rolling back.
type PersistenceManager interface {
	// BeforeCompletion is called once all work items have pre-committed
	BeforeCompletion(ctx context.Context, tx PersistentTransaction) error
	// Prepare hardens the transaction so that a later Commit(false) cannot fail for lack of resources
	Prepare(ctx context.Context, tx PersistentTransaction) error
	// Commit makes the transaction durable; onePhase is set when no Prepare preceded it
	Commit(ctx context.Context, tx PersistentTransaction, onePhase bool) error
	// Rollback discards whatever was hardened for the transaction
	Rollback(ctx context.Context, tx PersistentTransaction) error
	// AfterCompletion is called once the outcome is final
	AfterCompletion(ctx context.Context, tx PersistentTransaction, committed bool) error
	// Supports1PCOptimisation reports whether local transactions may offer
	// synchronization-driven one-phase commit
	Supports1PCOptimisation() bool
}

// InDoubtReader is implemented by persistence managers that can list the
// transactions left prepared by a previous run.
type InDoubtReader interface {
	ReadIndoubtXids(ctx context.Context) ([]tranid.PersistentTranID, error)
}
