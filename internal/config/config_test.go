package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleFlagsAndYAMLOverride(t *testing.T) {
	c := New("test")
	m := c.RegisterModule("eevdf", "EEVDF parameter machine tunables")

	minGranularity := m.Int("min-granularity-us", 1000, "floor for computed slices, in microseconds")
	var cooldown Duration
	m.Var(&cooldown, "migration-cooldown", "minimum interval between migrations of one thread")

	require.NoError(t, c.Parse([]string{"-min-granularity-us=2000"}))
	assert.Equal(t, 2000, *minGranularity)

	yamlDoc := []byte(`
eevdf:
  migration-cooldown: 50ms
`)
	require.NoError(t, c.LoadYAML(yamlDoc))
	assert.Equal(t, 50*time.Millisecond, cooldown.Duration())
}

func TestLoadYAMLRejectsUnknownModule(t *testing.T) {
	c := New("test")
	c.RegisterModule("eevdf", "")

	err := c.LoadYAML([]byte("balance:\n  foo: 1\n"))
	assert.Error(t, err)
}
