package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)
	require.NotNil(t, m)

	assert.NotNil(t, m.InstallsTotal)
	assert.NotNil(t, m.DispatchTotal)
	assert.NotNil(t, m.ContractViolationsTotal)
	assert.NotNil(t, m.NLPParseTotal)
	assert.NotNil(t, m.TalkRequestsTotal)
	assert.NotNil(t, m.SnapshotJobsTotal)
}

func TestNew_SeparateRegistries(t *testing.T) {
	// Each registry gets its own collectors, so two instances must not panic.
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}

func TestRecordInstall(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordInstall("rest", "created")
	m.RecordInstall("rest", "created")
	m.RecordInstall("none", "preserved")
	m.RecordConnectorRegistered("rest")

	assert.InDelta(t, 2, testutil.ToFloat64(m.InstallsTotal.WithLabelValues("rest", "created")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.InstallsTotal.WithLabelValues("none", "preserved")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ConnectorsRegistered.WithLabelValues("rest")), 0)
}

func TestRecordDispatch(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordDispatch("line", "success", 0.2)
	m.RecordDispatch("line", "error", 1.5)
	m.RecordContractViolation("support", "greetings")

	assert.InDelta(t, 1, testutil.ToFloat64(m.DispatchTotal.WithLabelValues("line", "error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ContractViolationsTotal.WithLabelValues("support", "greetings")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.DispatchDurationSeconds))
}

func TestRecordMisc(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordNLPParse("sentence", "success", 0.001)
	m.RecordTalk("degraded")
	m.RecordHTTPError("invalid_signature", "line")
	m.RecordRateLimiterDrop("user")
	m.RecordSingleflightDedup("talk")
	m.RecordSnapshot("upload", "success", 3)
	m.RecordSnapshot("restore", "error", 0)
	m.RecordNLPApplication("error")
	m.RecordInstallDuration(0.3)

	assert.InDelta(t, 1, testutil.ToFloat64(m.TalkRequestsTotal.WithLabelValues("degraded")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SnapshotJobsTotal.WithLabelValues("restore", "error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.NLPApplicationsTotal.WithLabelValues("error")), 0)
}
