package txmanager

import (
	"context"
	"time"
)

// XidParticipant is the branch of a distributed transaction addressed by an
// externally supplied Xid. It is driven through XidManager, which owns the
// Xid to participant mapping.
type XidParticipant struct {
	*participant
	recovered bool
}

// Prepare runs the first phase of two-phase commit.
func (t *XidParticipant) Prepare(ctx context.Context) error {
	return t.prepare(ctx)
}

// Commit commits a PREPARED participant, or an ACTIVE one when onePhase is set.
func (t *XidParticipant) Commit(ctx context.Context, onePhase bool) error {
	if onePhase {
		return t.commitOnePhase(ctx)
	}
	return t.commitTwoPhase(ctx)
}

// IsEnlisted reports whether a thread of control is currently associated.
func (t *XidParticipant) IsEnlisted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.associated
}

// Recovered reports whether the participant was rebuilt from the store by
// XidManager.Restart rather than started in this process.
func (t *XidParticipant) Recovered() bool { return t.recovered }

func (t *XidParticipant) associate(flags StartFlag) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.associated {
		return newError(KindXidStillAssociated, "start", t.id, nil, "already associated")
	}
	switch {
	case flags == StartResume && !t.suspended:
		return newError(KindProtocol, "start", t.id, nil, "branch is not suspended")
	case flags == StartJoin && t.suspended:
		return newError(KindProtocol, "start", t.id, nil, "branch is suspended, resume it instead")
	case t.state != StateActive:
		return newError(KindProtocol, "start", t.id, nil, "cannot join in state %s", t.state)
	}
	t.associated = true
	t.suspended = false
	t.lastActive = time.Now()
	return nil
}

func (t *XidParticipant) disassociate(flags EndFlag) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.associated {
		return newError(KindProtocol, "end", t.id, nil, "not associated")
	}
	t.associated = false
	t.lastActive = time.Now()
	switch flags {
	case EndFail:
		t.rollbackOnly = true
	case EndSuspend:
		t.suspended = true
	}
	return nil
}

// IsSuspended reports whether the branch was ended with EndSuspend and not
// resumed since.
func (t *XidParticipant) IsSuspended() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.suspended
}

// idleSince reports whether the participant is ACTIVE, unowned and untouched
// since before cutoff.
func (t *XidParticipant) idleSince(cutoff time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == StateActive && !t.associated && !t.busy && t.lastActive.Before(cutoff)
}
