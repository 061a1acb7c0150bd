package component

import (
	"context"

	"msgtx/tranid"
)

// Transaction is the view of the owning transaction handed to work items and
// callbacks. Items never keep it beyond the call.
type Transaction interface {
	// PersistentTranID returns the id of the transaction
	PersistentTranID() tranid.PersistentTranID
	// IsAutoCommit reports whether the transaction commits implicitly in one phase
	IsAutoCommit() bool
	// AddWork enlists more work; only legal while ACTIVE, or from PreCommit
	// of a local or global transaction
	AddWork(item WorkItem) error
	// IncrementCurrentSize counts one more unit against the maximum transaction size
	IncrementCurrentSize() error
}

// WorkItem is one piece of enlisted work, driven through the completion phases
// in enlistment order.
type WorkItem interface {
	// PreCommit runs before anything is made durable; the last chance to veto
	PreCommit(ctx context.Context, tx Transaction) error
	// CommitInternal applies in-memory state before the persistence manager commits
	CommitInternal(ctx context.Context, tx Transaction) error
	// CommitExternal publishes the change once the persistence manager committed
	CommitExternal(ctx context.Context, tx Transaction) error
	// PostCommit releases whatever the item held for the transaction
	PostCommit(ctx context.Context, tx Transaction) error
	// Abort undoes in-memory changes
	Abort(ctx context.Context, tx Transaction) error
	// PostAbort releases whatever the item held after an abort
	PostAbort(ctx context.Context, tx Transaction) error
}

// Callback observes completion of a transaction independently of work items.
type Callback interface {
	// BeforeCompletion is called before any work item phase runs
	BeforeCompletion(ctx context.Context, tx Transaction) error
	// AfterCompletion is called once the outcome is known
	AfterCompletion(ctx context.Context, tx Transaction, committed bool)
}

// Persistable is implemented by work items that carry data the persistence
// manager should store with the transaction.
type Persistable interface {
	Payload() []byte
}

// NopWorkItem implements every phase as a no-op. Embed it to override only the
// phases an item cares about.
type NopWorkItem struct{}

func (NopWorkItem) PreCommit(context.Context, Transaction) error      { return nil }
func (NopWorkItem) CommitInternal(context.Context, Transaction) error { return nil }
func (NopWorkItem) CommitExternal(context.Context, Transaction) error { return nil }
func (NopWorkItem) PostCommit(context.Context, Transaction) error     { return nil }
func (NopWorkItem) Abort(context.Context, Transaction) error          { return nil }
func (NopWorkItem) PostAbort(context.Context, Transaction) error      { return nil }
