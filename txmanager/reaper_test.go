package txmanager_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"msgtx/txmanager"
)

func TestReaperRollsBackIdleBranches(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t,
		txmanager.WithTimeout(50*time.Millisecond),
		txmanager.WithMonitorTick(10*time.Millisecond))
	xids := e.f.XidManager()

	idle, idleP := e.startGlobal(t, "idle", e.items("A")...)
	prepared, preparedP := e.startGlobal(t, "prepared", e.items("B")...)
	require.NoError(t, xids.Prepare(ctx, prepared))
	busy := xid(t, "associated")
	busyP, err := xids.Start(busy, txmanager.StartNoFlags)
	require.NoError(t, err)

	r := xids.StartReaper(ctx)
	defer r.Stop()

	require.Eventually(t, func() bool {
		return !xids.IsTranIDKnown(idle)
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, txmanager.StateRolledBack, idleP.State())
	assert.Contains(t, e.rec.Events(), "A.abort")

	// prepared branches belong to the transaction manager; associated ones are in use
	assert.Equal(t, txmanager.StatePrepared, preparedP.State())
	assert.Equal(t, txmanager.StateActive, busyP.State())
	assert.True(t, xids.IsTranIDKnown(busy))
}

func TestReaperStop(t *testing.T) {
	e := newEnv(t, txmanager.WithMonitorTick(time.Hour))
	r := e.f.XidManager().StartReaper(context.Background())

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("reaper did not stop")
	}
}
