package introspect

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonestone57/eevdf-scheduler/internal/metrics"
)

type fakeTopology struct{ val string }

func (f fakeTopology) DumpTopology() interface{} { return map[string]string{"topology": f.val} }

type fakeRunQueue struct{}

func (fakeRunQueue) DumpRunQueue(cpu int) (interface{}, bool) {
	if cpu != 0 {
		return nil, false
	}
	return map[string]int{"cpu": cpu, "depth": 3}, true
}

type fakeTeams struct{}

func (fakeTeams) DumpTeams() interface{} { return []string{"team-a", "team-b"} }

type fakeLoad struct{}

func (fakeLoad) DumpLoad() interface{} { return map[string]float64{"core0": 0.5} }

func TestDumpTopologyServesJSON(t *testing.T) {
	s := NewServer(metrics.New(), fakeTopology{val: "ok"}, nil, nil, nil)
	req := httptest.NewRequest("GET", "/dump/topology", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "\"topology\":\"ok\"")
}

func TestDumpRunQueueUnknownCPUReturns404(t *testing.T) {
	s := NewServer(metrics.New(), nil, fakeRunQueue{}, nil, nil)
	req := httptest.NewRequest("GET", "/dump/runqueue/7", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, 404, rec.Code)
}

func TestDumpRunQueueKnownCPU(t *testing.T) {
	s := NewServer(metrics.New(), nil, fakeRunQueue{}, nil, nil)
	req := httptest.NewRequest("GET", "/dump/runqueue/0", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)
}

func TestUnwiredDumperReturns503(t *testing.T) {
	s := NewServer(metrics.New(), nil, nil, nil, nil)
	req := httptest.NewRequest("GET", "/dump/teams", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, 503, rec.Code)
}

func TestMetricsRouteServed(t *testing.T) {
	s := NewServer(metrics.New(), nil, nil, nil, nil)
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)
}
