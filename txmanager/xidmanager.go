package txmanager

import (
	"context"

	"msgtx/log"
	"msgtx/tranid"
)

// StartFlag qualifies XidManager.Start.
type StartFlag int

const (
	// StartNoFlags begins a new branch; the id must not be known yet.
	StartNoFlags StartFlag = iota
	// StartJoin associates with a known ACTIVE branch.
	StartJoin
	// StartResume re-associates a branch suspended by EndSuspend. A suspended
	// branch cannot be prepared or committed until it is resumed.
	StartResume
)

// EndFlag qualifies XidManager.End.
type EndFlag int

const (
	EndSuccess EndFlag = iota
	// EndFail marks the branch rollback-only.
	EndFail
	EndSuspend
)

// XidManager is the authoritative map from distributed transaction id to its
// live participant. Structural changes happen under the registry lock; the
// protocol calls themselves run outside it.
type XidManager struct {
	f   *Factory
	reg *registry
}

func newXidManager(f *Factory) *XidManager {
	return &XidManager{f: f, reg: newRegistry()}
}

// Start associates the caller with the branch id, creating it unless flags
// ask to join or resume an existing one.
func (m *XidManager) Start(id tranid.PersistentTranID, flags StartFlag) (*XidParticipant, error) {
	if id.IsZero() {
		return nil, newError(KindXidInvalid, "start", id, nil, "empty xid")
	}
	if p, ok := m.reg.lookup(id); ok {
		if p.IsEnlisted() {
			return nil, newError(KindXidStillAssociated, "start", id, nil, "end must be called first")
		}
		if flags == StartNoFlags {
			return nil, newError(KindProtocol, "start", id, nil, "duplicate xid")
		}
		if err := p.associate(flags); err != nil {
			return nil, err
		}
		return p, nil
	}
	if flags != StartNoFlags {
		return nil, newError(KindXidUnknown, "start", id, nil, "nothing to join or resume")
	}

	p := m.newParticipant(id)
	p.associated = true
	if !m.reg.insert(id, p) {
		// lost a race with another Start for the same id
		return nil, newError(KindProtocol, "start", id, nil, "duplicate xid")
	}
	m.f.opts.Metrics.Started(Global.String())
	return p, nil
}

// End dissociates the caller from the branch. Commit state is unchanged.
func (m *XidManager) End(id tranid.PersistentTranID, flags EndFlag) error {
	p, ok := m.reg.lookup(id)
	if !ok {
		return newError(KindXidUnknown, "end", id, nil, "")
	}
	return p.disassociate(flags)
}

func (m *XidManager) Prepare(ctx context.Context, id tranid.PersistentTranID) error {
	p, ok := m.reg.lookup(id)
	if !ok {
		return newError(KindXidUnknown, "prepare", id, nil, "")
	}
	return p.Prepare(ctx)
}

func (m *XidManager) Commit(ctx context.Context, id tranid.PersistentTranID, onePhase bool) error {
	p, ok := m.reg.lookup(id)
	if !ok {
		return newError(KindXidUnknown, "commit", id, nil, "")
	}
	return p.Commit(ctx, onePhase)
}

func (m *XidManager) Rollback(ctx context.Context, id tranid.PersistentTranID) error {
	p, ok := m.reg.lookup(id)
	if !ok {
		return newError(KindXidUnknown, "rollback", id, nil, "")
	}
	return p.Rollback(ctx)
}

// IsTranIDKnown is true from Start until a commit or rollback completes the
// branch, through this manager or directly on the participant.
func (m *XidManager) IsTranIDKnown(id tranid.PersistentTranID) bool {
	_, ok := m.reg.lookup(id)
	return ok
}

// ListRemoteInDoubts returns the PREPARED branches, sorted by id text.
func (m *XidManager) ListRemoteInDoubts() []tranid.PersistentTranID {
	var ids []tranid.PersistentTranID
	for _, p := range m.reg.snapshot() {
		if p.State() == StatePrepared {
			ids = append(ids, p.PersistentTranID())
		}
	}
	return ids
}

// Restart registers a PREPARED participant for every in-doubt id the store
// reports, so that a transaction manager can resolve them after a restart.
func (m *XidManager) Restart(ctx context.Context, r InDoubtReader) (int, error) {
	ids, err := r.ReadIndoubtXids(ctx)
	if err != nil {
		return 0, newError(KindTransaction, "restart", tranid.PersistentTranID{}, err, "reading in-doubt transactions")
	}
	n := 0
	for _, id := range ids {
		p := m.newParticipant(id)
		p.state = StatePrepared
		p.recovered = true
		if !m.reg.insert(id, p) {
			log.WarnContextf(ctx, "in-doubt transaction %s is already known, skipped", id)
			continue
		}
		m.f.opts.Metrics.Started(Global.String())
		n++
	}
	log.InfoContextf(ctx, "recovered %d in-doubt transactions", n)
	return n, nil
}

// CommitPrepared commits the in-doubt branch named by its text form.
func (m *XidManager) CommitPrepared(ctx context.Context, text string) error {
	id, err := tranid.Parse(text)
	if err != nil {
		return newError(KindXidInvalid, "commit", id, err, "")
	}
	return m.Commit(ctx, id, false)
}

// RollbackPrepared rolls back the in-doubt branch named by its text form.
func (m *XidManager) RollbackPrepared(ctx context.Context, text string) error {
	id, err := tranid.Parse(text)
	if err != nil {
		return newError(KindXidInvalid, "rollback", id, err, "")
	}
	return m.Rollback(ctx, id)
}

// newParticipant creates a branch that leaves the registry as soon as it
// completes, whichever handle drove it there.
func (m *XidManager) newParticipant(id tranid.PersistentTranID) *XidParticipant {
	p := m.f.newXidParticipant(id)
	p.onComplete = func() { m.reg.remove(id, p) }
	return p
}
