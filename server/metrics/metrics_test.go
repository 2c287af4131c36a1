package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestCountersByLabel(t *testing.T) {
	before := testutil.ToFloat64(USGSLookupsTotal.WithLabelValues("skipped"))
	USGSLookupsTotal.WithLabelValues("skipped").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(USGSLookupsTotal.WithLabelValues("skipped")))

	AnalysisDurationSeconds.Observe(0.3)
	assert.Equal(t, 1, testutil.CollectAndCount(AnalysisDurationSeconds))
}
