package infra

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_ObserveOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveOperation("sbo", "bet", "OK", 10*time.Millisecond)
	m.ObserveOperation("sbo", "bet", "OK", 20*time.Millisecond)
	m.ObserveOperation("sbo", "bet", "INSUFFICIENT_FUND", time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.operations.WithLabelValues("sbo", "bet", "OK")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.operations.WithLabelValues("sbo", "bet", "INSUFFICIENT_FUND")))
}

func TestMetrics_ObserveWalletAndHTTP(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveWallet("wager", "ok", time.Millisecond)
	m.ObserveHTTP("POST", "/sbo/Deduct", 200, time.Millisecond)
	m.ObserveHTTP("POST", "/sbo/Deduct", 503, time.Millisecond)
	m.ObservePublished(3)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.walletRequests.WithLabelValues("wager", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "/sbo/Deduct", "5xx")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.outboxPublished))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "2xx", statusLabel(200))
	assert.Equal(t, "3xx", statusLabel(302))
	assert.Equal(t, "4xx", statusLabel(404))
	assert.Equal(t, "5xx", statusLabel(502))
}
