package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingBackend struct {
	infos, warns, errors, debugs int
}

func (c *countingBackend) Name() string         { return "counting" }
func (c *countingBackend) Enabled(Level) bool   { return true }
func (c *countingBackend) Info(string)          { c.infos++ }
func (c *countingBackend) Warn(string)          { c.warns++ }
func (c *countingBackend) Error(string)         { c.errors++ }
func (c *countingBackend) Debug(string)         { c.debugs++ }

func TestLoggerDebugGate(t *testing.T) {
	backend := &countingBackend{}
	SetBackend(backend)
	defer SetBackend(&fmtBackend{})

	l := Get("test-debug-gate")
	assert.False(t, l.DebugEnabled())
	l.Debug("hidden")
	assert.Equal(t, 0, backend.debugs)

	SetDebug(true)
	defer SetDebug(false)
	l2 := Get("test-debug-gate")
	assert.True(t, l2.DebugEnabled())
	l2.Debug("visible")
	assert.Equal(t, 1, backend.debugs)
}

func TestRateLimitSuppressesBursts(t *testing.T) {
	backend := &countingBackend{}
	SetBackend(backend)
	defer SetBackend(&fmtBackend{})

	base := Get("test-ratelimit")
	limited := RateLimit(base, Rate{Limit: Every(time.Hour), Burst: 1})

	for i := 0; i < 5; i++ {
		limited.Warn("pool exhausted on cpu %d", 0)
	}
	assert.Equal(t, 1, backend.warns, "only the first of a burst of identical warnings should pass")
}
