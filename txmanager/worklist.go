package txmanager

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"msgtx/component"
)

// phase is one of the callbacks every enlisted item receives.
type phase int

const (
	phasePreCommit phase = iota
	phaseCommitInternal
	phaseCommitExternal
	phasePostCommit
	phaseAbort
	phasePostAbort
)

func (ph phase) String() string {
	switch ph {
	case phasePreCommit:
		return "preCommit"
	case phaseCommitInternal:
		return "commitInternal"
	case phaseCommitExternal:
		return "commitExternal"
	case phasePostCommit:
		return "postCommit"
	case phaseAbort:
		return "abort"
	case phasePostAbort:
		return "postAbort"
	}
	return "unknown"
}

func (ph phase) call(ctx context.Context, item component.WorkItem, tx component.Transaction) error {
	switch ph {
	case phasePreCommit:
		return item.PreCommit(ctx, tx)
	case phaseCommitInternal:
		return item.CommitInternal(ctx, tx)
	case phaseCommitExternal:
		return item.CommitExternal(ctx, tx)
	case phasePostCommit:
		return item.PostCommit(ctx, tx)
	case phaseAbort:
		return item.Abort(ctx, tx)
	case phasePostAbort:
		return item.PostAbort(ctx, tx)
	}
	return fmt.Errorf("unknown phase %d", ph)
}

// runUntilError drives ph over items in order and stops at the first failure.
func runUntilError(ctx context.Context, items []component.WorkItem, ph phase, tx component.Transaction) error {
	for i, item := range items {
		if err := ph.call(ctx, item, tx); err != nil {
			return fmt.Errorf("%s of work item %d: %w", ph, i, err)
		}
	}
	return nil
}

// runAll drives ph over every item, failures included, and combines the errors.
func runAll(ctx context.Context, items []component.WorkItem, ph phase, tx component.Transaction) error {
	var errs error
	for i, item := range items {
		if err := ph.call(ctx, item, tx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s of work item %d: %w", ph, i, err))
		}
	}
	return errs
}
