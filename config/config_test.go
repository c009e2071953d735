package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	cfg, err := Decode(strings.NewReader(`
port: /dev/ttyACM0
power: 800
samples_per_unit: 10
homing_fallback: 2s
stream_delay: 5ms
`))
	require.NoError(t, err)

	exp := Default()
	exp.Port = "/dev/ttyACM0"
	exp.Power = 800
	exp.SamplesPerUnit = 10
	exp.HomingFallback = 2 * time.Second
	exp.StreamDelay = 5 * time.Millisecond
	assert.Equal(t, exp, cfg)
}

func TestDecode_Empty(t *testing.T) {
	cfg, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestDecode_UnknownField(t *testing.T) {
	_, err := Decode(strings.NewReader("speed: 10\n"))
	assert.Error(t, err)
}

func TestDecode_Invalid(t *testing.T) {
	for _, doc := range []string{
		"baud: 0\n",
		"feed: -1\n",
		"power: -5\n",
		"samples_per_unit: 0\n",
		"settle: -1s\n",
		"homing_fallback: soon\n",
	} {
		_, err := Decode(strings.NewReader(doc))
		assert.Error(t, err, doc)
	}
}

func TestLoad(t *testing.T) {
	name := filepath.Join(t.TempDir(), "lasermx.yaml")
	require.NoError(t, os.WriteFile(name, []byte("simulate: true\nlog_level: debug\n"), 0644))

	cfg, err := Load(name)
	require.NoError(t, err)
	assert.True(t, cfg.Simulate)
	assert.Equal(t, "debug", cfg.LogLevel)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, os.WriteFile(name, []byte("baud: fast\n"), 0644))
	_, err = Load(name)
	require.Error(t, err)
	assert.Contains(t, err.Error(), name)
}
