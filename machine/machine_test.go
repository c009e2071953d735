package machine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/lasermx/coord"
	"github.com/mastercactapus/lasermx/machine/grbl"
	"github.com/mastercactapus/lasermx/toolpath"
)

func newSimMachine(t *testing.T, homingStep time.Duration, opt Options) (*Machine, chan string) {
	t.Helper()
	d := grbl.NewDriver(grbl.SimulatorOpener(homingStep))
	d.Settle = 0
	d.JoinTimeout = 50 * time.Millisecond
	m := New(d, opt)
	lines := make(chan string, 1000)
	m.OnLine(func(s string) { lines <- s })
	require.NoError(t, m.Connect("sim", grbl.DefaultBaud))
	t.Cleanup(func() { m.Disconnect() })
	return m, lines
}

func waitLine(t *testing.T, lines chan string, want string) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case l := <-lines:
			if l == want {
				return
			}
		case <-timeout:
			t.Fatalf("timeout waiting for '%s'", want)
		}
	}
}

func TestMachine_Home(t *testing.T) {
	m, _ := newSimMachine(t, 5*time.Millisecond, Options{})

	ch, err := m.Home()
	require.NoError(t, err)
	assert.Equal(t, ExitAck, reason(t, ch))
	assert.Equal(t, "Pull-off", m.Homing().Stage())
	assert.Equal(t, HomingIdle, m.Homing().State())
}

func TestMachine_Busy(t *testing.T) {
	m, _ := newSimMachine(t, 100*time.Millisecond, Options{})

	ch, err := m.Home()
	require.NoError(t, err)
	_, err = m.Run([]string{"G0 X1 Y1"})
	assert.ErrorIs(t, err, ErrBusy)
	_, err = m.RunBuffered([]string{"G0 X1 Y1"})
	assert.ErrorIs(t, err, ErrBusy)
	_, err = m.Home()
	assert.ErrorIs(t, err, ErrHomingInProgress)

	assert.Equal(t, ExitAck, reason(t, ch))
}

func TestMachine_Disconnect_Homing(t *testing.T) {
	m, _ := newSimMachine(t, time.Hour, Options{HomingFallback: time.Hour})

	ch, err := m.Home()
	require.NoError(t, err)
	require.NoError(t, m.Disconnect())
	assert.Equal(t, ExitCanceled, reason(t, ch))
	assert.Equal(t, HomingIdle, m.Homing().State())
	assert.False(t, m.Connected())

	assert.NoError(t, m.Disconnect())
}

func TestMachine_RunBuffered(t *testing.T) {
	m, lines := newSimMachine(t, 5*time.Millisecond, Options{})

	prog := toolpath.Compile([]coord.Polyline{
		{coord.Pt(0, 0), coord.Pt(5, 0), coord.Pt(5, 5)},
		{coord.Pt(10, 10), coord.Pt(12, 10)},
	}, toolpath.DefaultOptions)
	n, err := m.RunBuffered(prog)
	require.NoError(t, err)
	assert.Equal(t, len(prog), n)

	require.NoError(t, m.Send("?"))
	waitLine(t, lines, "<Idle|MPos:12.000,10.000,0.000|FS:0,0>")

	assert.Eventually(t, func() bool {
		stat, ok := m.CurrentState()
		return ok && stat.MPos == coord.Pt(12, 10)
	}, time.Second, time.Millisecond)
}

func TestMachine_RunBuffered_Error(t *testing.T) {
	m, _ := newSimMachine(t, 5*time.Millisecond, Options{})

	_, err := m.RunBuffered([]string{"G90", "G2 X1 Y1 I1", "M5"})
	assert.EqualError(t, err, grbl.ErrUnsupportedSim)
}

func TestMachine_Connect_WhileRunning(t *testing.T) {
	m, _ := newSimMachine(t, 50*time.Millisecond, Options{})

	// keep the simulator busy so the buffered run is still waiting for acks
	require.NoError(t, m.Send("$H"))
	ch := make(chan error, 1)
	go func() {
		_, err := m.RunBuffered([]string{"G90", "G0 X1 Y1"})
		ch <- err
	}()
	time.Sleep(20 * time.Millisecond)

	assert.ErrorIs(t, m.Connect("sim", grbl.DefaultBaud), grbl.ErrAlreadyConnected)
	select {
	case err := <-ch:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("buffered run did not finish")
	}
}

func TestMachine_Run(t *testing.T) {
	m, lines := newSimMachine(t, 5*time.Millisecond, Options{StreamDelay: time.Millisecond})

	n, err := m.Run([]string{"G90", "G0 X3 Y4"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	waitLine(t, lines, "ok")
	waitLine(t, lines, "ok")

	require.NoError(t, m.Send("?"))
	waitLine(t, lines, "<Idle|MPos:3.000,4.000,0.000|FS:0,0>")
}

func TestMachine_StatusPoll(t *testing.T) {
	m, _ := newSimMachine(t, 5*time.Millisecond, Options{StatusInterval: 5 * time.Millisecond})

	assert.Eventually(t, func() bool {
		_, ok := m.CurrentState()
		return ok
	}, time.Second, time.Millisecond)
	require.NoError(t, m.Disconnect())
}

func TestMachine_NotConnected(t *testing.T) {
	m := New(grbl.NewDriver(grbl.SimulatorOpener(0)), Options{})
	_, err := m.RunBuffered([]string{"G90"})
	assert.ErrorIs(t, err, grbl.ErrNotConnected)
	_, err = m.Run([]string{"G90"})
	assert.ErrorIs(t, err, grbl.ErrNotConnected)
	_, err = m.Home()
	assert.ErrorIs(t, err, grbl.ErrNotConnected)
	assert.Equal(t, HomingIdle, m.Homing().State())
}
