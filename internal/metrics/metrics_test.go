package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarketCounters(t *testing.T) {
	m := New()
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(m.operations))

	m.ObserveOperation("create_loan", "ok")
	m.ObserveOperation("create_loan", "ok")
	m.ObserveOperation("place_bid", "bid_too_low")
	m.ObserveLoanCreated(1000)
	m.ObserveLoanCreated(500)
	m.ObserveBid(42)
	m.SetSSEClients(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("create_loan", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("place_bid", "bid_too_low")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.loans))
	assert.Equal(t, 1500.0, testutil.ToFloat64(m.loanVolume))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bids))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.bidVolume))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.sseClients))
	assert.Equal(t, 2, testutil.CollectAndCount(reg))
}

func TestDefaultRegistersOnce(t *testing.T) {
	a := Default()
	b := Default()
	assert.Same(t, a, b)
}
