package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouletteCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRoulette(reg)

	m.WagersPlaced.Inc()
	m.WagersSettled.WithLabelValues("won").Inc()
	m.OnError("settle")
	m.OnError("settle")
	m.OnRateLimited("getAccountInfo")
	m.OnSubmitted("place_bet", 800*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.WagersPlaced))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WagersSettled.WithLabelValues("won")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Failures.WithLabelValues("settle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimited.WithLabelValues("getAccountInfo")))

	n, err := testutil.GatherAndCount(reg, "roulette_submit_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
