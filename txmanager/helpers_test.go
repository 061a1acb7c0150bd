package txmanager_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"msgtx/component"
	"msgtx/log"
	"msgtx/tranid"
	"msgtx/txmanager"
	"msgtx/txtest"
)

type env struct {
	rec *txtest.Recorder
	pm  *txtest.PersistenceManager
	f   *txmanager.Factory
}

func newEnv(t *testing.T, opts ...txmanager.Option) *env {
	t.Helper()
	prev := log.L()
	log.Set(zaptest.NewLogger(t))
	t.Cleanup(func() { log.Set(prev) })

	rec := &txtest.Recorder{}
	pm := txtest.NewPersistenceManager(rec)
	pm.Supports1PC = true
	return &env{rec: rec, pm: pm, f: txmanager.NewFactory(pm, opts...)}
}

func xid(t *testing.T, gtrid string) tranid.PersistentTranID {
	t.Helper()
	id, err := tranid.New(0x1234, []byte(gtrid), []byte("branch"))
	require.NoError(t, err)
	return id
}

// startGlobal starts a branch, enlists items and ends the association.
func (e *env) startGlobal(t *testing.T, gtrid string, items ...component.WorkItem) (tranid.PersistentTranID, *txmanager.XidParticipant) {
	t.Helper()
	id := xid(t, gtrid)
	xa := e.f.CreateXAResource()
	require.NoError(t, xa.Start(id, txmanager.StartNoFlags))
	p := xa.Current()
	require.NotNil(t, p)
	for _, item := range items {
		require.NoError(t, p.AddWork(item))
	}
	require.NoError(t, xa.End(id, txmanager.EndSuccess))
	return id, p
}

func (e *env) items(names ...string) []component.WorkItem {
	out := make([]component.WorkItem, 0, len(names))
	for _, n := range names {
		out = append(out, txtest.NewWorkItem(n, e.rec))
	}
	return out
}

// metricValue returns the value of the counter or gauge name with labels.
func metricValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	return 0
}
