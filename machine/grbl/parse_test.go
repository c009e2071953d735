package grbl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/lasermx/coord"
)

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(Status{}, "<Run|MPos:10.000,5.500,0.000|FS:1000,800|WCO:1.000,0.500,0.000>")
	require.NoError(t, err)
	assert.Equal(t, "Run", s.State)
	assert.Equal(t, coord.Pt(10, 5.5), s.MPos)
	assert.Equal(t, coord.Pt(1, 0.5), s.WCO)
	assert.Equal(t, coord.Pt(9, 5), s.WPos)
	assert.Equal(t, 1000.0, s.Feed)
	assert.Equal(t, 800.0, s.Power)

	// WCO is only reported occasionally
	s, err = ParseStatus(s, "<Idle|WPos:0.000,0.000|F:500>")
	require.NoError(t, err)
	assert.Equal(t, "Idle", s.State)
	assert.Equal(t, coord.Pt(1, 0.5), s.MPos)
	assert.Equal(t, 500.0, s.Feed)
}

func TestParseStatus_Error(t *testing.T) {
	prev := Status{State: "Idle"}
	s, err := ParseStatus(prev, "<Run|MPos:a,b,c>")
	assert.Error(t, err)
	assert.Equal(t, prev, s)

	_, err = ParseStatus(prev, "ok")
	assert.Error(t, err)
}

func TestParsePush(t *testing.T) {
	p, err := ParsePush("[MSG:LaserMX Simulator]")
	require.NoError(t, err)
	assert.Equal(t, Push{Kind: "MSG", Value: "LaserMX Simulator"}, p)

	p, err = ParsePush("[Homing|Pull-off]")
	require.NoError(t, err)
	assert.Equal(t, Push{Kind: "Homing", Value: "Pull-off"}, p)

	p, err = ParsePush("[VER:1.1h.20190825:]")
	require.NoError(t, err)
	assert.Equal(t, Push{Kind: "VER", Value: "1.1h.20190825:"}, p)

	_, err = ParsePush("ok")
	assert.Error(t, err)
}

func TestHomingStage(t *testing.T) {
	stage, ok := HomingStage("[Homing|Seek]")
	assert.True(t, ok)
	assert.Equal(t, "Seek", stage)

	stage, ok = HomingStage("<Home|MPos:0.000,0.000,0.000>")
	assert.True(t, ok)
	assert.Equal(t, "Home", stage)

	_, ok = HomingStage("[MSG:Homing]")
	assert.False(t, ok)
	_, ok = HomingStage("ok")
	assert.False(t, ok)
}

func TestLineKinds(t *testing.T) {
	assert.True(t, IsAck("ok"))
	assert.False(t, IsAck("okay"))
	assert.True(t, IsError("error:20"))
	assert.True(t, IsError("error: Unsupported command in FAKE mode"))
	assert.True(t, IsBanner("Grbl 1.1h ['$' for help]"))
	assert.True(t, IsStatus("<Idle>"))
	assert.False(t, IsStatus("<Idle"))
}
