package txmanager_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"msgtx/metrics"
	"msgtx/txmanager"
)

func TestMaximumTransactionSize(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := newEnv(t, txmanager.WithMetrics(metrics.New(reg)))
	e.f.SetMaximumTransactionSize(2)
	assert.Equal(t, 2, e.f.MaximumTransactionSize())

	local := e.f.CreateLocalTransaction()
	require.NoError(t, local.IncrementCurrentSize())
	require.NoError(t, local.IncrementCurrentSize())
	err := local.IncrementCurrentSize()
	assert.ErrorIs(t, err, txmanager.ErrResourceExhausted)
	assert.Equal(t, 2, local.CurrentSize())

	xa := e.f.CreateXAResource()
	id := xid(t, "sized")
	require.NoError(t, xa.Start(id, txmanager.StartNoFlags))
	p := xa.Current()
	require.NoError(t, p.IncrementCurrentSize())
	require.NoError(t, p.IncrementCurrentSize())
	assert.ErrorIs(t, p.IncrementCurrentSize(), txmanager.ErrResourceExhausted)

	assert.Equal(t, 2.0, metricValue(t, reg, "msgtx_size_limit_rejections_total", nil))
}

func TestMaximumTransactionSizeAppliesToLiveTransactions(t *testing.T) {
	e := newEnv(t, txmanager.WithMaxTransactionSize(1))
	tx := e.f.CreateAutoCommitTransaction()
	require.NoError(t, tx.IncrementCurrentSize())
	assert.ErrorIs(t, tx.IncrementCurrentSize(), txmanager.ErrResourceExhausted)

	e.f.SetMaximumTransactionSize(-1)
	for i := 0; i < 1000; i++ {
		require.NoError(t, tx.IncrementCurrentSize())
	}
}

func TestFactoryDefaults(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, txmanager.DefaultMaxTransactionSize, e.f.MaximumTransactionSize())

	auto := e.f.CreateAutoCommitTransaction()
	local := e.f.CreateLocalTransaction()
	assert.True(t, auto.IsAutoCommit())
	assert.False(t, local.IsAutoCommit())
	assert.Equal(t, txmanager.AutoCommit, auto.TransactionType())
	assert.Equal(t, txmanager.Local, local.TransactionType())
	assert.NotEqual(t, auto.PersistentTranID(), local.PersistentTranID())
	assert.True(t, auto.PersistentTranID().IsLocal())
	assert.Equal(t, txmanager.StateActive, local.State())
}

func TestTransactionVariants(t *testing.T) {
	e := newEnv(t)
	_, p := e.startGlobal(t, "variant")
	for _, tx := range []txmanager.Transaction{
		e.f.CreateAutoCommitTransaction(),
		e.f.CreateLocalTransaction(),
		p,
	} {
		assert.Equal(t, txmanager.StateActive, tx.State())
	}
}

func TestMetricsTrackOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := newEnv(t, txmanager.WithMetrics(metrics.New(reg)))

	committed := e.f.CreateLocalTransaction()
	require.NoError(t, committed.Commit(t.Context()))
	rolledBack := e.f.CreateLocalTransaction()
	require.NoError(t, rolledBack.Rollback(t.Context()))
	e.f.CreateLocalTransaction()

	assert.Equal(t, 1.0, metricValue(t, reg, "msgtx_transactions_completed_total", map[string]string{"type": "LOCAL", "outcome": metrics.OutcomeCommitted}))
	assert.Equal(t, 1.0, metricValue(t, reg, "msgtx_transactions_completed_total", map[string]string{"type": "LOCAL", "outcome": metrics.OutcomeRolledBack}))
	assert.Equal(t, 1.0, metricValue(t, reg, "msgtx_transactions_in_flight", map[string]string{"type": "LOCAL"}))
}
