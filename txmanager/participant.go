package txmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"

	"msgtx/component"
	"msgtx/log"
	"msgtx/metrics"
	"msgtx/tranid"
)

// Transaction is implemented by exactly the three variants of this package:
// *AutoCommitTransaction, *LocalTransaction and *XidParticipant.
type Transaction interface {
	PersistentTransaction
	RegisterCallback(cb component.Callback) error
	State() TransactionState
	CurrentSize() int
	Rollback(ctx context.Context) error

	transaction()
}

var (
	errRollbackOnly      = errors.New("transaction is marked rollback-only")
	errRollbackRequested = errors.New("rollback requested while in flight")
)

// capabilities distinguish the variants on top of the shared state machine.
type capabilities struct {
	// lateEnlist allows AddWork from inside a PreCommit callback
	lateEnlist bool
}

// participant carries the state machine and protocol shared by all variants.
//
// mu guards every field below it. It is never held while calling out to work
// items, callbacks or the persistence manager; busy marks the participant as
// owned by an in-flight prepare, commit or rollback instead.
type participant struct {
	mu           sync.Mutex
	state        TransactionState
	busy         bool
	inPreCommit  bool
	rollbackOnly bool
	associated   bool
	suspended    bool
	lastActive   time.Time
	// deferred is the single slot for a rollback that arrived while a prepare
	// or one-phase commit was in flight; the caller waits on it.
	deferred  chan error
	id        tranid.PersistentTranID
	items     []component.WorkItem
	callbacks []component.Callback
	size      int

	txType TransactionType
	caps   capabilities
	f      *Factory
	self   Transaction
	// onComplete runs once the participant reaches COMMITTED or ROLLEDBACK
	onComplete func()
}

func newParticipant(f *Factory, txType TransactionType, id tranid.PersistentTranID, caps capabilities) *participant {
	return &participant{
		state:      StateActive,
		lastActive: time.Now(),
		id:         id,
		txType:     txType,
		caps:       caps,
		f:          f,
	}
}

func (p *participant) transaction() {}

func (p *participant) PersistentTranID() tranid.PersistentTranID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id
}

func (p *participant) TransactionType() TransactionType { return p.txType }

func (p *participant) IsAutoCommit() bool { return p.txType == AutoCommit }

func (p *participant) State() TransactionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *participant) WorkList() []component.WorkItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]component.WorkItem(nil), p.items...)
}

func (p *participant) CurrentSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// AddWork enlists item at the end of the work list. It is only legal while the
// transaction is ACTIVE; work items enlist more work from PreCommit through
// the transaction handed to them.
func (p *participant) AddWork(item component.WorkItem) error {
	return p.addWork(item, false)
}

func (p *participant) addWork(item component.WorkItem, fromPreCommit bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if item == nil {
		return newError(KindProtocol, "add work", p.id, nil, "nil work item")
	}
	late := fromPreCommit && p.inPreCommit && p.caps.lateEnlist
	if p.state != StateActive && !late {
		return newError(KindProtocol, "add work", p.id, nil, "cannot enlist work in state %s", p.state)
	}
	p.items = append(p.items, item)
	return nil
}

func (p *participant) RegisterCallback(cb component.Callback) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cb == nil {
		return newError(KindProtocol, "register callback", p.id, nil, "nil callback")
	}
	p.callbacks = append(p.callbacks, cb)
	return nil
}

// IncrementCurrentSize counts one unit against the factory's maximum size.
func (p *participant) IncrementCurrentSize() error {
	limit := p.f.MaximumTransactionSize()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.IsTerminal() {
		return newError(KindProtocol, "increment size", p.id, nil, "transaction is %s", p.state)
	}
	if limit >= 0 && p.size >= limit {
		p.f.opts.Metrics.SizeRejected()
		return newError(KindResourceExhausted, "increment size", p.id, nil, "maximum transaction size %d reached", limit)
	}
	p.size++
	return nil
}

// begin moves the state machine for op and takes ownership of the participant.
func (p *participant) begin(op string, ev event) (tranid.PersistentTranID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.associated {
		return p.id, newError(KindXidStillAssociated, op, p.id, nil, "end must be called first")
	}
	if p.busy {
		return p.id, newError(KindIllegalState, op, p.id, nil, "another operation is in progress in state %s", p.state)
	}
	if p.suspended {
		return p.id, newError(KindProtocol, op, p.id, nil, "branch is suspended")
	}
	next, ok := transition(p.state, ev)
	if !ok {
		return p.id, newError(KindProtocol, op, p.id, nil, "not allowed in state %s", p.state)
	}
	p.state = next
	p.busy = true
	return p.id, nil
}

func (p *participant) itemAt(i int) component.WorkItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < len(p.items) {
		return p.items[i]
	}
	return nil
}

func (p *participant) callbackList() []component.Callback {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]component.Callback(nil), p.callbacks...)
}

func (p *participant) setInPreCommit(v bool) {
	p.mu.Lock()
	p.inPreCommit = v
	p.mu.Unlock()
}

func (p *participant) isRollbackOnly() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rollbackOnly
}

// preCommitAll runs PreCommit in enlistment order. Items enlisted by an earlier
// PreCommit are picked up in the same pass.
func (p *participant) preCommitAll(ctx context.Context) error {
	p.setInPreCommit(true)
	defer p.setInPreCommit(false)

	for i := 0; ; i++ {
		item := p.itemAt(i)
		if item == nil {
			return nil
		}
		if err := phasePreCommit.call(ctx, item, enlister{p}); err != nil {
			return fmt.Errorf("%s of work item %d: %w", phasePreCommit, i, err)
		}
	}
}

// beforeCompletion is the common first half of prepare and one-phase commit.
func (p *participant) beforeCompletion(ctx context.Context) error {
	for _, cb := range p.callbackList() {
		if err := cb.BeforeCompletion(ctx, p.self); err != nil {
			return err
		}
	}
	if err := p.preCommitAll(ctx); err != nil {
		return err
	}
	if p.isRollbackOnly() {
		return errRollbackOnly
	}
	return p.f.pm.BeforeCompletion(ctx, p.self)
}

// afterCompletion notifies the persistence manager and the callbacks of the
// final outcome.
func (p *participant) afterCompletion(ctx context.Context, committed bool) {
	if err := p.f.pm.AfterCompletion(ctx, p.self, committed); err != nil {
		log.WarnContextf(ctx, "persistence manager afterCompletion(committed=%v) failed: %v", committed, err)
	}
	for _, cb := range p.callbackList() {
		cb.AfterCompletion(ctx, p.self, committed)
	}
}

// abortAll undoes the work list: Abort, persistence rollback, PostAbort.
func (p *participant) abortAll(ctx context.Context) error {
	items := p.WorkList()
	err := runAll(ctx, items, phaseAbort, p.self)
	err = multierr.Append(err, p.f.pm.Rollback(ctx, p.self))
	return multierr.Append(err, runAll(ctx, items, phasePostAbort, p.self))
}

func (p *participant) trace(ctx context.Context, op string) (context.Context, func(error)) {
	start := time.Now()
	id := p.PersistentTranID()
	ctx, span := p.f.opts.Tracer.Start(ctx, "msgtx."+op, trace.WithAttributes(
		attribute.String("msgtx.tran_id", id.String()),
		attribute.String("msgtx.type", p.txType.String()),
	))
	ctx = log.WithTranID(ctx, id)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		p.f.opts.Metrics.Observe(op, start)
	}
}

// prepare is the first phase of two-phase commit.
func (p *participant) prepare(ctx context.Context) (err error) {
	ctx, finish := p.trace(ctx, "prepare")
	defer func() { finish(err) }()

	id, err := p.begin("prepare", evPrepare)
	if err != nil {
		return err
	}

	cause := p.beforeCompletion(ctx)
	if cause == nil {
		cause = p.f.pm.Prepare(ctx, p.self)
	}
	if IsSevere(cause) {
		return p.severe(ctx, "prepare", id, cause)
	}

	p.mu.Lock()
	if cause == nil && p.deferred != nil {
		cause = errRollbackRequested
	}
	if cause == nil && p.rollbackOnly {
		cause = errRollbackOnly
	}
	if cause == nil {
		p.state, _ = transition(p.state, evPrepared)
		p.busy = false
		p.mu.Unlock()
		log.DebugContextf(ctx, "prepared with %d work items", len(p.WorkList()))
		return nil
	}
	p.state, _ = transition(p.state, evAbortInFlight)
	p.mu.Unlock()

	return p.rollbackInFlight(ctx, "prepare", id, cause, false)
}

// commitOnePhase commits from ACTIVE without a separate prepare.
func (p *participant) commitOnePhase(ctx context.Context) (err error) {
	ctx, finish := p.trace(ctx, "commit")
	defer func() { finish(err) }()

	id, err := p.begin("commit", evCommit1PC)
	if err != nil {
		return err
	}

	cause := p.beforeCompletion(ctx)
	if cause == nil {
		cause = runUntilError(ctx, p.WorkList(), phaseCommitInternal, p.self)
	}
	if cause == nil {
		cause = p.f.pm.Commit(ctx, p.self, true)
	}
	if IsSevere(cause) {
		return p.severe(ctx, "commit", id, cause)
	}
	if cause != nil {
		p.mu.Lock()
		p.state, _ = transition(p.state, evAbortInFlight)
		p.mu.Unlock()
		return p.rollbackInFlight(ctx, "commit", id, cause, true)
	}
	return p.finishCommit(ctx, id)
}

// commitTwoPhase is the second phase of two-phase commit.
func (p *participant) commitTwoPhase(ctx context.Context) (err error) {
	ctx, finish := p.trace(ctx, "commit")
	defer func() { finish(err) }()

	id, err := p.begin("commit", evCommit2PC)
	if err != nil {
		return err
	}

	cause := runUntilError(ctx, p.WorkList(), phaseCommitInternal, p.self)
	if cause == nil {
		cause = p.f.pm.Commit(ctx, p.self, false)
	}
	if IsSevere(cause) {
		return p.severe(ctx, "commit", id, cause)
	}
	if cause != nil {
		// nothing was made durable yet; stay prepared so the commit can be retried
		p.mu.Lock()
		p.state, _ = transition(p.state, evCommitRetry)
		p.busy = false
		p.mu.Unlock()
		log.ErrorContextf(ctx, "commit of prepared transaction failed, left prepared: %v", cause)
		p.f.opts.Metrics.Completed(p.txType.String(), metrics.OutcomeFailed)
		return newError(KindTransaction, "commit", id, cause, "commit failed, transaction is still prepared")
	}
	return p.finishCommit(ctx, id)
}

// finishCommit runs once the persistence manager has committed. Failures past
// this point cannot be undone and are reported with the transaction COMMITTED.
func (p *participant) finishCommit(ctx context.Context, id tranid.PersistentTranID) error {
	items := p.WorkList()
	errs := runAll(ctx, items, phaseCommitExternal, p.self)
	errs = multierr.Append(errs, runAll(ctx, items, phasePostCommit, p.self))

	p.mu.Lock()
	p.state, _ = transition(p.state, evCommitted)
	p.busy = false
	deferred := p.takeDeferred()
	p.mu.Unlock()

	p.complete()
	reply(deferred, newError(KindProtocol, "rollback", id, nil, "transaction was committed"))
	p.afterCompletion(ctx, true)
	p.f.opts.Metrics.Completed(p.txType.String(), metrics.OutcomeCommitted)

	if errs != nil {
		log.ErrorContextf(ctx, "transaction committed but work items failed to complete: %v", errs)
		return newError(KindTransaction, "commit", id, errs, "committed, but work items failed after the commit")
	}
	log.DebugContextf(ctx, "committed")
	return nil
}

// rollbackInFlight rolls back a prepare or one-phase commit that failed or was
// asked to roll back, then answers the deferred rollback if one is queued.
func (p *participant) rollbackInFlight(ctx context.Context, op string, id tranid.PersistentTranID, cause error, onePhase bool) error {
	log.InfoContextf(ctx, "%s failed, rolling back: %v", op, cause)
	rbErr := p.abortAll(ctx)

	p.mu.Lock()
	p.busy = false
	if rbErr == nil {
		p.state, _ = transition(p.state, evRolledBack)
	}
	deferred := p.takeDeferred()
	p.mu.Unlock()

	if rbErr != nil {
		kind := KindTransaction
		if IsSevere(rbErr) {
			kind = KindSevere
		}
		reply(deferred, newError(kind, "rollback", id, rbErr, "rollback did not complete"))
		log.ErrorContextf(ctx, "rollback after failed %s did not complete: %v", op, rbErr)
		p.f.opts.Metrics.Completed(p.txType.String(), metrics.OutcomeFailed)
		return newError(kind, op, id, multierr.Append(cause, rbErr), "rollback after failed %s did not complete", op)
	}

	p.complete()
	if onePhase {
		// a one-phase commit owns the outcome; a queued rollback does not get to claim it
		reply(deferred, newError(KindIllegalState, "rollback", id, nil, "one-phase commit completed the transaction"))
	} else {
		reply(deferred, nil)
	}
	p.afterCompletion(ctx, false)
	p.f.opts.Metrics.Completed(p.txType.String(), metrics.OutcomeRolledBack)
	return newError(KindRollback, op, id, cause, "transaction rolled back")
}

// severe leaves the state where the failure interrupted it.
func (p *participant) severe(ctx context.Context, op string, id tranid.PersistentTranID, cause error) error {
	p.mu.Lock()
	p.busy = false
	state := p.state
	deferred := p.takeDeferred()
	p.mu.Unlock()

	err := newError(KindSevere, op, id, cause, "left in state %s", state)
	reply(deferred, err)
	log.ErrorContextf(ctx, "severe failure during %s, state left at %s: %v", op, state, cause)
	p.f.opts.Metrics.Completed(p.txType.String(), metrics.OutcomeSevere)
	return err
}

// Rollback rolls the transaction back from ACTIVE or PREPARED.
//
// A rollback that arrives while a prepare or one-phase commit is in flight is
// queued in the single deferred slot and waits for that operation to finish;
// any further concurrent rollback fails immediately.
func (p *participant) Rollback(ctx context.Context) (err error) {
	ctx, finish := p.trace(ctx, "rollback")
	defer func() { finish(err) }()

	p.mu.Lock()
	id := p.id
	if p.associated {
		p.mu.Unlock()
		return newError(KindXidStillAssociated, "rollback", id, nil, "end must be called first")
	}
	if p.busy {
		state := p.state
		if (state == StatePreparing || state == StateCommitting1PC) && p.deferred == nil {
			ch := make(chan error, 1)
			p.deferred = ch
			p.mu.Unlock()

			p.f.opts.Metrics.DeferredRollback()
			log.DebugContextf(ctx, "rollback deferred behind in-flight %s", state)
			select {
			case err := <-ch:
				return err
			case <-ctx.Done():
				return newError(KindIllegalState, "rollback", id, ctx.Err(), "gave up waiting for %s", state)
			}
		}
		p.mu.Unlock()
		return newError(KindIllegalState, "rollback", id, nil, "operation in progress in state %s", state)
	}
	next, ok := transition(p.state, evRollback)
	if !ok {
		state := p.state
		p.mu.Unlock()
		return newError(KindProtocol, "rollback", id, nil, "not allowed in state %s", state)
	}
	p.state = next
	p.busy = true
	p.mu.Unlock()

	rbErr := p.abortAll(ctx)

	p.mu.Lock()
	p.busy = false
	if rbErr == nil {
		p.state, _ = transition(p.state, evRolledBack)
	}
	p.mu.Unlock()

	if rbErr != nil {
		kind := KindTransaction
		if IsSevere(rbErr) {
			kind = KindSevere
		}
		log.ErrorContextf(ctx, "rollback did not complete, left rolling back: %v", rbErr)
		p.f.opts.Metrics.Completed(p.txType.String(), metrics.OutcomeFailed)
		return newError(kind, "rollback", id, rbErr, "rollback did not complete")
	}
	p.complete()
	p.afterCompletion(ctx, false)
	p.f.opts.Metrics.Completed(p.txType.String(), metrics.OutcomeRolledBack)
	log.DebugContextf(ctx, "rolled back")
	return nil
}

func (p *participant) complete() {
	if p.onComplete != nil {
		p.onComplete()
	}
}

// enlister is the view of the transaction handed to PreCommit. Only through it
// may work be enlisted once the transaction has left ACTIVE.
type enlister struct {
	*participant
}

func (e enlister) AddWork(item component.WorkItem) error {
	return e.addWork(item, true)
}

// takeDeferred empties the deferred slot. Must be called with mu held.
func (p *participant) takeDeferred() chan error {
	ch := p.deferred
	p.deferred = nil
	return ch
}

func reply(ch chan error, err error) {
	if ch != nil {
		ch <- err
	}
}
