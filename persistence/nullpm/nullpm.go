// Package nullpm is a persistence manager that keeps nothing. It stands in for
// a store when transactions only need in-memory semantics.
package nullpm

import (
	"context"

	"msgtx/tranid"
	"msgtx/txmanager"
)

type PersistenceManager struct {
	supports1PC bool
}

var _ txmanager.PersistenceManager = (*PersistenceManager)(nil)

func New(supports1PC bool) *PersistenceManager {
	return &PersistenceManager{supports1PC: supports1PC}
}

func (*PersistenceManager) BeforeCompletion(context.Context, txmanager.PersistentTransaction) error {
	return nil
}

func (*PersistenceManager) Prepare(context.Context, txmanager.PersistentTransaction) error {
	return nil
}

func (*PersistenceManager) Commit(context.Context, txmanager.PersistentTransaction, bool) error {
	return nil
}

func (*PersistenceManager) Rollback(context.Context, txmanager.PersistentTransaction) error {
	return nil
}

func (*PersistenceManager) AfterCompletion(context.Context, txmanager.PersistentTransaction, bool) error {
	return nil
}

func (pm *PersistenceManager) Supports1PCOptimisation() bool { return pm.supports1PC }

// ReadIndoubtXids always reports nothing in doubt.
func (*PersistenceManager) ReadIndoubtXids(context.Context) ([]tranid.PersistentTranID, error) {
	return nil, nil
}
