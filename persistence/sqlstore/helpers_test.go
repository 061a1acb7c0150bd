package sqlstore_test

import (
	"msgtx/component"
	"msgtx/tranid"
	"msgtx/txmanager"
)

// fakeTx is a bare PersistentTransaction for calling the store directly.
type fakeTx struct {
	id    tranid.PersistentTranID
	typ   txmanager.TransactionType
	items []component.WorkItem
}

func (t fakeTx) PersistentTranID() tranid.PersistentTranID  { return t.id }
func (t fakeTx) IsAutoCommit() bool                         { return false }
func (t fakeTx) AddWork(component.WorkItem) error           { return nil }
func (t fakeTx) IncrementCurrentSize() error                { return nil }
func (t fakeTx) TransactionType() txmanager.TransactionType { return t.typ }
func (t fakeTx) WorkList() []component.WorkItem             { return t.items }
