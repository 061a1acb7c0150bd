package txmanager

import (
	"context"
	"time"

	"msgtx/component"
	"msgtx/log"
	"msgtx/tranid"
)

// LocalTransaction is a reusable one-phase transaction scoped to a single
// session. After it completes, Begin starts a fresh unit of work on the same
// object under a new id.
type LocalTransaction struct {
	*participant
	sync bool
}

// Begin starts a new unit of work. It is a no-op on an ACTIVE transaction that
// has nothing enlisted yet.
func (t *LocalTransaction) Begin(ctx context.Context) error {
	t.mu.Lock()
	if t.busy {
		state := t.state
		t.mu.Unlock()
		return newError(KindIllegalState, "begin", t.id, nil, "operation in progress in state %s", state)
	}
	if t.state == StateActive {
		n := len(t.items)
		id := t.id
		t.mu.Unlock()
		if n > 0 {
			return newError(KindProtocol, "begin", id, nil, "transaction already has %d work items", n)
		}
		return nil
	}
	next, ok := transition(t.state, evBegin)
	if !ok {
		state := t.state
		t.mu.Unlock()
		return newError(KindProtocol, "begin", t.id, nil, "not allowed in state %s", state)
	}
	t.state = next
	t.id = tranid.Generate()
	t.items = nil
	t.callbacks = nil
	t.size = 0
	t.rollbackOnly = false
	t.lastActive = time.Now()
	t.mu.Unlock()

	t.f.opts.Metrics.Started(t.txType.String())
	return nil
}

// Commit drives the one-phase commit protocol.
func (t *LocalTransaction) Commit(ctx context.Context) error {
	return t.commitOnePhase(ctx)
}

// SupportsSynchronization reports whether the persistence manager lets this
// transaction be completed through Synchronization.
func (t *LocalTransaction) SupportsSynchronization() bool {
	return t.sync
}

// Synchronization returns a callback pair that completes this transaction as
// part of an enclosing one: BeforeCompletion commits it, and AfterCompletion
// with committed=false rolls it back if it is still ACTIVE.
func (t *LocalTransaction) Synchronization() (*Synchronization, error) {
	if !t.sync {
		return nil, newError(KindProtocol, "synchronization", t.PersistentTranID(), nil, "persistence manager does not support one-phase optimisation")
	}
	return &Synchronization{tx: t}, nil
}

// Synchronization completes a LocalTransaction from the callbacks of an
// enclosing transaction.
type Synchronization struct {
	tx *LocalTransaction
}

var _ component.Callback = (*Synchronization)(nil)

func (s *Synchronization) BeforeCompletion(ctx context.Context, _ component.Transaction) error {
	return s.tx.Commit(ctx)
}

func (s *Synchronization) AfterCompletion(ctx context.Context, _ component.Transaction, committed bool) {
	if committed || s.tx.State() != StateActive {
		return
	}
	if err := s.tx.Rollback(ctx); err != nil {
		log.ErrorContextf(ctx, "rollback of local transaction %s after failed completion: %v", s.tx.PersistentTranID(), err)
	}
}
