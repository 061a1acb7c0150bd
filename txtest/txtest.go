// Package txtest provides work items, callbacks and persistence managers for
// exercising the coordinator in tests.
package txtest

import (
	"context"
	"sync"

	"msgtx/component"
)

// Recorder collects "<name>.<phase>" events in the order they happened.
type Recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *Recorder) Record(event string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// Phase names as recorded by WorkItem.
const (
	PreCommit      = "preCommit"
	CommitInternal = "commitInternal"
	CommitExternal = "commitExternal"
	PostCommit     = "postCommit"
	Abort          = "abort"
	PostAbort      = "postAbort"
)

// WorkItem records every phase it receives and fails the phases listed in Fail.
type WorkItem struct {
	Name string
	Rec  *Recorder
	Fail map[string]error
	// OnPreCommit runs after PreCommit was recorded; its error is returned
	OnPreCommit func(ctx context.Context, tx component.Transaction) error
}

var _ component.WorkItem = (*WorkItem)(nil)

func NewWorkItem(name string, rec *Recorder) *WorkItem {
	return &WorkItem{Name: name, Rec: rec}
}

// NewBreaker returns an item that fails phase with err.
func NewBreaker(name string, rec *Recorder, phase string, err error) *WorkItem {
	return &WorkItem{Name: name, Rec: rec, Fail: map[string]error{phase: err}}
}

// NewEnlister returns an item that enlists extra from its PreCommit and keeps
// the outcome of that AddWork in *result.
func NewEnlister(name string, rec *Recorder, extra component.WorkItem, result *error) *WorkItem {
	return &WorkItem{
		Name: name,
		Rec:  rec,
		OnPreCommit: func(_ context.Context, tx component.Transaction) error {
			*result = tx.AddWork(extra)
			return nil
		},
	}
}

func (w *WorkItem) step(phase string) error {
	w.Rec.Record(w.Name + "." + phase)
	return w.Fail[phase]
}

func (w *WorkItem) PreCommit(ctx context.Context, tx component.Transaction) error {
	if err := w.step(PreCommit); err != nil {
		return err
	}
	if w.OnPreCommit != nil {
		return w.OnPreCommit(ctx, tx)
	}
	return nil
}

func (w *WorkItem) CommitInternal(context.Context, component.Transaction) error {
	return w.step(CommitInternal)
}

func (w *WorkItem) CommitExternal(context.Context, component.Transaction) error {
	return w.step(CommitExternal)
}

func (w *WorkItem) PostCommit(context.Context, component.Transaction) error {
	return w.step(PostCommit)
}

func (w *WorkItem) Abort(context.Context, component.Transaction) error {
	return w.step(Abort)
}

func (w *WorkItem) PostAbort(context.Context, component.Transaction) error {
	return w.step(PostAbort)
}

// Message is a work item carrying a payload for the persistence manager.
type Message struct {
	component.NopWorkItem
	Body []byte
}

func (m *Message) Payload() []byte { return m.Body }

// Callback records BeforeCompletion and AfterCompletion.
type Callback struct {
	Name      string
	Rec       *Recorder
	BeforeErr error

	mu        sync.Mutex
	completed []bool
}

var _ component.Callback = (*Callback)(nil)

func NewCallback(name string, rec *Recorder) *Callback {
	return &Callback{Name: name, Rec: rec}
}

func (c *Callback) BeforeCompletion(context.Context, component.Transaction) error {
	c.Rec.Record(c.Name + ".beforeCompletion")
	return c.BeforeErr
}

func (c *Callback) AfterCompletion(_ context.Context, _ component.Transaction, committed bool) {
	if committed {
		c.Rec.Record(c.Name + ".afterCompletion(committed)")
	} else {
		c.Rec.Record(c.Name + ".afterCompletion(rolledback)")
	}
	c.mu.Lock()
	c.completed = append(c.completed, committed)
	c.mu.Unlock()
}

// Outcomes returns the committed flag of every AfterCompletion received.
func (c *Callback) Outcomes() []bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bool(nil), c.completed...)
}
