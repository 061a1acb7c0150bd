package txtest

import (
	"context"
	"sync"

	"msgtx/txmanager"
)

// Checkpoints of the persistence manager, as recorded and as accepted by
// FailOn and PauseOn.
const (
	PMBeforeCompletion = "pm.beforeCompletion"
	PMPrepare          = "pm.prepare"
	PMCommit1PC        = "pm.commit(1pc)"
	PMCommit2PC        = "pm.commit(2pc)"
	PMRollback         = "pm.rollback"
	PMAfterCompletion  = "pm.afterCompletion"
)

// PersistenceManager records its calls into Rec and can fail or pause at any
// checkpoint.
type PersistenceManager struct {
	Rec         *Recorder
	Supports1PC bool

	mu      sync.Mutex
	fail    map[string]error
	pauseAt string
	entered chan struct{}
	resume  chan error
}

var _ txmanager.PersistenceManager = (*PersistenceManager)(nil)

func NewPersistenceManager(rec *Recorder) *PersistenceManager {
	return &PersistenceManager{Rec: rec, fail: make(map[string]error)}
}

// FailOn makes every call at checkpoint return err. A nil err clears it.
func (pm *PersistenceManager) FailOn(checkpoint string, err error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if err == nil {
		delete(pm.fail, checkpoint)
		return
	}
	pm.fail[checkpoint] = err
}

// PauseOn blocks the next call at checkpoint until Resume. The returned
// channel is closed once that call has been entered.
func (pm *PersistenceManager) PauseOn(checkpoint string) <-chan struct{} {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.pauseAt = checkpoint
	pm.entered = make(chan struct{})
	pm.resume = make(chan error, 1)
	return pm.entered
}

// Resume releases the paused call, which then returns err.
func (pm *PersistenceManager) Resume(err error) {
	pm.mu.Lock()
	ch := pm.resume
	pm.mu.Unlock()
	ch <- err
}

func (pm *PersistenceManager) check(checkpoint string) error {
	pm.Rec.Record(checkpoint)

	pm.mu.Lock()
	if pm.pauseAt == checkpoint {
		pm.pauseAt = ""
		entered, resume := pm.entered, pm.resume
		pm.mu.Unlock()
		close(entered)
		return <-resume
	}
	err := pm.fail[checkpoint]
	pm.mu.Unlock()
	return err
}

func (pm *PersistenceManager) BeforeCompletion(context.Context, txmanager.PersistentTransaction) error {
	return pm.check(PMBeforeCompletion)
}

func (pm *PersistenceManager) Prepare(context.Context, txmanager.PersistentTransaction) error {
	return pm.check(PMPrepare)
}

func (pm *PersistenceManager) Commit(_ context.Context, _ txmanager.PersistentTransaction, onePhase bool) error {
	if onePhase {
		return pm.check(PMCommit1PC)
	}
	return pm.check(PMCommit2PC)
}

func (pm *PersistenceManager) Rollback(context.Context, txmanager.PersistentTransaction) error {
	return pm.check(PMRollback)
}

func (pm *PersistenceManager) AfterCompletion(context.Context, txmanager.PersistentTransaction, bool) error {
	return pm.check(PMAfterCompletion)
}

func (pm *PersistenceManager) Supports1PCOptimisation() bool {
	return pm.Supports1PC
}
