package txmanager

import (
	"context"
	"sync"

	"msgtx/tranid"
)

// XAResource is the resource-manager face of a Factory handed to an external
// transaction manager. It remembers the branch the caller is associated with
// so that work can be enlisted through Current.
type XAResource struct {
	xids *XidManager

	mu      sync.Mutex
	current *XidParticipant
}

func toTranID(op string, xid tranid.Xid) (tranid.PersistentTranID, error) {
	if xid == nil {
		return tranid.PersistentTranID{}, newError(KindXidInvalid, op, tranid.PersistentTranID{}, nil, "nil xid")
	}
	id, err := tranid.FromXid(xid)
	if err != nil {
		return id, newError(KindXidInvalid, op, id, err, "")
	}
	return id, nil
}

func (r *XAResource) Start(xid tranid.Xid, flags StartFlag) error {
	id, err := toTranID("start", xid)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		return newError(KindProtocol, "start", id, nil, "resource is already associated with %s", r.current.PersistentTranID())
	}
	p, err := r.xids.Start(id, flags)
	if err != nil {
		return err
	}
	r.current = p
	return nil
}

func (r *XAResource) End(xid tranid.Xid, flags EndFlag) error {
	id, err := toTranID("end", xid)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.xids.End(id, flags); err != nil {
		return err
	}
	if r.current != nil && r.current.PersistentTranID() == id {
		r.current = nil
	}
	return nil
}

func (r *XAResource) Prepare(ctx context.Context, xid tranid.Xid) error {
	id, err := toTranID("prepare", xid)
	if err != nil {
		return err
	}
	return r.xids.Prepare(ctx, id)
}

func (r *XAResource) Commit(ctx context.Context, xid tranid.Xid, onePhase bool) error {
	id, err := toTranID("commit", xid)
	if err != nil {
		return err
	}
	return r.xids.Commit(ctx, id, onePhase)
}

func (r *XAResource) Rollback(ctx context.Context, xid tranid.Xid) error {
	id, err := toTranID("rollback", xid)
	if err != nil {
		return err
	}
	return r.xids.Rollback(ctx, id)
}

// Recover lists the PREPARED branches known to the resource manager.
func (r *XAResource) Recover() []tranid.PersistentTranID {
	return r.xids.ListRemoteInDoubts()
}

// IsSameRM reports whether other is backed by the same XidManager.
func (r *XAResource) IsSameRM(other *XAResource) bool {
	return other != nil && other.xids == r.xids
}

// Current returns the branch the resource is associated with, or nil.
func (r *XAResource) Current() *XidParticipant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}
