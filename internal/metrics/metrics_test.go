package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dto "github.com/prometheus/client_model/go"
)

func TestRecordDispatchPhaseIncrementsCounter(t *testing.T) {
	c := New()
	c.RecordDispatchPhase(PhaseGeneral)
	c.RecordDispatchPhase(PhaseGeneral)
	c.RecordDispatchPhase(PhaseIdle)

	families, err := c.Registry.Gather()
	require.NoError(t, err)

	var found *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "eevdf_dispatch_phase_hits_total" {
			found = f
		}
	}
	require.NotNil(t, found)

	var generalCount float64
	for _, m := range found.Metric {
		for _, l := range m.Label {
			if l.GetName() == "phase" && l.GetValue() == string(PhaseGeneral) {
				generalCount = m.Counter.GetValue()
			}
		}
	}
	assert.Equal(t, float64(2), generalCount)
}

func TestRecordStealUpdatesAttemptAndOutcomeCounters(t *testing.T) {
	c := New()
	c.RecordSteal(true)
	c.RecordSteal(false)

	assert.Equal(t, float64(2), testCounterValue(t, c.StealsAttempted))
	assert.Equal(t, float64(1), testCounterValue(t, c.StealsSucceeded))
	assert.Equal(t, float64(1), testCounterValue(t, c.StealsFailed))
}

func testCounterValue(t *testing.T, c interface {
	Write(*dto.Metric) error
}) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.Counter.GetValue()
}

func TestHandlerServesExpositionFormat(t *testing.T) {
	c := New()
	c.MigrationsTotal.Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "eevdf_balance_migrations_total")
}
