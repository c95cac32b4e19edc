package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel(" warning "))
	assert.Equal(t, INFO, ParseLevel("что-то"))
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger("test", &buf, WARN)

	l.Info("не должно попасть")
	l.Warn("предупреждение %d", 42)

	out := buf.String()
	assert.NotContains(t, out, "не должно попасть")
	assert.Contains(t, out, "предупреждение 42")
	assert.Contains(t, out, "[test]")
}

func TestRegistryReturnsSameLogger(t *testing.T) {
	r := newRegistry()
	a := r.Logger("world")
	b := r.Logger("world")
	require.Same(t, a, b, "реестр должен кешировать логгеры")
	assert.Equal(t, []string{"world=INFO"}, r.Levels())
}

func TestLevelsApplyToExistingAndFutureLoggers(t *testing.T) {
	r := newRegistry()
	existing := r.Logger("network")

	require.NoError(t, r.ApplyLevels(map[string]string{"network": "warn", "sync": "debug"}))
	created := r.Logger("sync")

	assert.Equal(t, WARN, existing.minConsoleLevel)
	assert.Equal(t, DEBUG, existing.minFileLevel)
	assert.Equal(t, DEBUG, created.minConsoleLevel, "порог задан до создания логгера")
	assert.Equal(t, []string{"network=WARN", "sync=DEBUG"}, r.Levels())

	require.NoError(t, r.CloseAll())
	assert.Empty(t, r.Levels())
	assert.Equal(t, DEBUG, r.Logger("sync").minConsoleLevel, "пороги переживают CloseAll")
}

func TestApplyLevelsRejectsUnknownLevel(t *testing.T) {
	r := newRegistry()
	err := r.ApplyLevels(map[string]string{"mesh": "громко", "world": "Info"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mesh=громко")
	assert.Equal(t, INFO, r.Logger("world").minConsoleLevel)
}
