package main

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/lasermx/config"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Simulate = true
	cfg.Settle = 0
	return cfg
}

func runCLI(args ...string) (code int, stdout, stderr string) {
	var out, errOut bytes.Buffer
	code = run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func writeTemp(t *testing.T, name, data string) string {
	t.Helper()
	fullName := filepath.Join(t.TempDir(), name)
	require.NoError(t, ioutil.WriteFile(fullName, []byte(data), 0644))
	return fullName
}

const squareSVG = `<svg><rect x="0" y="0" width="4" height="3"/></svg>`

func TestRun_Usage(t *testing.T) {
	for _, args := range [][]string{
		{},
		{"-cmd", "$I"},
		{"-home"},
		{"-run"},
		{"-simulate", "-run"},
		{"-to-gcode", "out.nc"},
		{"-file", "drawing.pdf"},
		{"-bogus"},
		{"-simulate", "-home", "extra"},
		{"-log-level", "loud", "-simulate", "-home"},
		{"-feed", "0", "-file", "a.svg"},
	} {
		code, _, stderr := runCLI(args...)
		assert.Equal(t, exitUsage, code, "%v", args)
		assert.NotEmpty(t, stderr, "%v", args)
	}
}

func TestRun_Help(t *testing.T) {
	code, _, stderr := runCLI("-h")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stderr, "-to-gcode")
}

func TestRun_ToGcode(t *testing.T) {
	svg := writeTemp(t, "square.svg", squareSVG)
	out := filepath.Join(t.TempDir(), "square.nc")

	code, stdout, stderr := runCLI("-file", svg, "-to-gcode", out, "-power", "800")
	require.Equal(t, exitOK, code, stderr)
	assert.Equal(t, "G-code saved to "+out+"\n", stdout)

	data, err := ioutil.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{
		"G90",
		"G21",
		"G0 X0.000 Y0.000",
		"M3 S800",
		"G1 X4.000 Y0.000 F1000.00",
		"G1 X4.000 Y3.000 F1000.00",
		"G1 X0.000 Y3.000 F1000.00",
		"G1 X0.000 Y0.000 F1000.00",
		"M5",
	}, "\n")+"\n", string(data))
}

func TestRun_MissingFile(t *testing.T) {
	code, _, stderr := runCLI("-file", filepath.Join(t.TempDir(), "nope.svg"), "-to-gcode", "x.nc")
	assert.Equal(t, exitFail, code)
	assert.Contains(t, stderr, "nope.svg")
}

func TestRun_ConnectFailure(t *testing.T) {
	code, _, stderr := runCLI("-port", filepath.Join(t.TempDir(), "ttyNone"), "-cmd", "$I")
	assert.Equal(t, exitFail, code)
	assert.Contains(t, stderr, "ttyNone")
}

func TestRun_Cmd(t *testing.T) {
	code, stdout, stderr := runCLI("-simulate", "-cmd", "$I")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "< Grbl 1.1h ['$' for help]\n")
	assert.Contains(t, stdout, "> $I\n")
	assert.Contains(t, stdout, "< [VER:1.1h.2025:FAKE]\n< ok\n")
}

func TestRun_RunFile(t *testing.T) {
	svg := writeTemp(t, "square.svg", squareSVG)

	for _, buffered := range []bool{false, true} {
		args := []string{"-simulate", "-file", svg, "-run"}
		if buffered {
			args = append(args, "-buffered")
		}
		code, stdout, stderr := runCLI(args...)
		require.Equal(t, exitOK, code, stderr)
		assert.Contains(t, stdout, "> G1 X4.000 Y3.000 F1000.00\n")
		assert.Contains(t, stdout, "> M5\n")
		assert.NotContains(t, stdout, "error")
	}
}

func TestRun_Home(t *testing.T) {
	code, stdout, stderr := runCLI("-simulate", "-home")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "> $H\n")
	assert.Contains(t, stdout, "< [Homing|Pull-off]\n")
	assert.Contains(t, stdout, "Homing finished: ok\n")
}

func TestParseArgs_Config(t *testing.T) {
	name := writeTemp(t, "lasermx.yaml", "port: /dev/ttyACM0\npower: 600\nfeed: 1500\nsettle: 0s\n")

	_, cfg, err := parseArgs([]string{"-config", name, "-power", "900"}, ioutil.Discard)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM0", cfg.Port)
	assert.Equal(t, 900, cfg.Power)
	assert.Equal(t, 1500.0, cfg.Feed)
	assert.Zero(t, cfg.Settle)

	_, _, err = parseArgs([]string{"-config", filepath.Join(t.TempDir(), "none.yaml")}, ioutil.Discard)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
