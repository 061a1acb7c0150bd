package txmanager

import (
	"sync/atomic"

	"msgtx/tranid"
)

// Factory creates transactions backed by one PersistenceManager and enforces
// the maximum transaction size for all of them.
type Factory struct {
	pm      PersistenceManager
	opts    *Options
	maxSize atomic.Int64
	xids    *XidManager
}

func NewFactory(pm PersistenceManager, opts ...Option) *Factory {
	f := &Factory{
		pm:   pm,
		opts: &Options{},
	}
	for _, opt := range opts {
		opt(f.opts)
	}
	repair(f.opts)

	f.maxSize.Store(int64(f.opts.MaxTransactionSize))
	f.xids = newXidManager(f)
	return f
}

// CreateAutoCommitTransaction returns a single-use one-phase transaction.
func (f *Factory) CreateAutoCommitTransaction() *AutoCommitTransaction {
	t := &AutoCommitTransaction{}
	t.participant = newParticipant(f, AutoCommit, tranid.Generate(), capabilities{})
	t.self = t
	f.opts.Metrics.Started(AutoCommit.String())
	return t
}

// CreateLocalTransaction returns an ACTIVE local transaction. Synchronization
// is offered only when the persistence manager supports the one-phase
// optimisation.
func (f *Factory) CreateLocalTransaction() *LocalTransaction {
	t := &LocalTransaction{sync: f.pm.Supports1PCOptimisation()}
	t.participant = newParticipant(f, Local, tranid.Generate(), capabilities{lateEnlist: true})
	t.self = t
	f.opts.Metrics.Started(Local.String())
	return t
}

// CreateXAResource returns a resource bound to this factory's XidManager.
func (f *Factory) CreateXAResource() *XAResource {
	return &XAResource{xids: f.xids}
}

func (f *Factory) newXidParticipant(id tranid.PersistentTranID) *XidParticipant {
	t := &XidParticipant{}
	t.participant = newParticipant(f, Global, id, capabilities{lateEnlist: true})
	t.self = t
	return t
}

// SetMaximumTransactionSize changes the limit for every transaction created by
// f, including ones already in flight. A negative n means unlimited.
func (f *Factory) SetMaximumTransactionSize(n int) {
	f.maxSize.Store(int64(n))
}

func (f *Factory) MaximumTransactionSize() int {
	return int(f.maxSize.Load())
}

func (f *Factory) XidManager() *XidManager {
	return f.xids
}

func (f *Factory) PersistenceManager() PersistenceManager {
	return f.pm
}
