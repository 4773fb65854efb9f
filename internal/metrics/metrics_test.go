package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegister_IsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))
}

func TestOutcome(t *testing.T) {
	require.Equal(t, "ok", Outcome(""))
	require.Equal(t, "invalid_grant", Outcome("invalid_grant"))
}

func TestSyncResultsCounter(t *testing.T) {
	before := testutil.ToFloat64(SyncResults.WithLabelValues("youtube", "ok"))
	SyncResults.WithLabelValues("youtube", "ok").Inc()
	require.Equal(t, before+1, testutil.ToFloat64(SyncResults.WithLabelValues("youtube", "ok")))
}
