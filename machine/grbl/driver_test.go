package grbl

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriver_Connect_Error(t *testing.T) {
	openErr := errors.New("no such device")
	d, _ := newTestDriver(func(string, int, time.Duration) (Stream, error) { return nil, openErr })

	err := d.Connect("/dev/ttyUSB9", DefaultBaud)
	var ce *ConnectionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "/dev/ttyUSB9", ce.Endpoint)
	assert.ErrorIs(t, err, openErr)
	assert.False(t, d.Connected())

	assert.ErrorIs(t, d.SendCommand("?"), ErrNotConnected)
}

func TestDriver_Connect_Twice(t *testing.T) {
	fs := newFakeStream()
	d, _ := newTestDriver(fs.opener())
	require.NoError(t, d.Connect("a", DefaultBaud))
	defer d.Disconnect()

	assert.ErrorIs(t, d.Connect("a", DefaultBaud), ErrAlreadyConnected)
	assert.Equal(t, "a", d.Endpoint())
}

func TestDriver_Lines(t *testing.T) {
	fs := newFakeStream()
	d, sink := newTestDriver(fs.opener())
	require.NoError(t, d.Connect("a", DefaultBaud))
	defer d.Disconnect()

	fs.device(t, "Grbl 1.1h ['$' for help]\r\n\r\n")
	fs.device(t, "o")
	fs.device(t, "k\n<Idle|MPos:0.000,0.000,0.000|FS:0,0>\n")
	sink.expect(t, "Grbl 1.1h ['$' for help]", "ok", "<Idle|MPos:0.000,0.000,0.000|FS:0,0>")
	sink.expectNone(t, 20*time.Millisecond)
}

func TestDriver_SendCommand(t *testing.T) {
	fs := newFakeStream()
	d, _ := newTestDriver(fs.opener())
	var sent []string
	d.Sent(func(s string) { sent = append(sent, s) })
	require.NoError(t, d.Connect("a", DefaultBaud))
	defer d.Disconnect()

	require.NoError(t, d.SendCommand("  G0 X1 \t"))
	require.NoError(t, d.SendCommand("G1 X1é"))
	require.NoError(t, d.SendCommand("$H\n"))
	assert.Equal(t, "G0 X1\nG1 X1\n$H\n", fs.written())
	assert.Equal(t, []string{"G0 X1", "G1 X1", "$H"}, sent)
	assert.Equal(t, "$H", d.LastCommand())
}

func TestDriver_Disconnect(t *testing.T) {
	fs := newFakeStream()
	d, sink := newTestDriver(fs.opener())

	// before any connect
	assert.NoError(t, d.Disconnect())
	assert.NoError(t, d.Disconnect())

	require.NoError(t, d.Connect("a", DefaultBaud))
	fs.device(t, "ok\n")
	sink.expect(t, "ok")

	assert.NoError(t, d.Disconnect())
	assert.NoError(t, d.Disconnect())
	assert.False(t, d.Connected())
	assert.ErrorIs(t, d.SendCommand("?"), ErrNotConnected)

	select {
	case <-d.Done():
	default:
		t.Fatal("done not closed after disconnect")
	}
	assert.NoError(t, d.Err())
	sink.expectNone(t, 20*time.Millisecond)
}

func TestDriver_Reconnect(t *testing.T) {
	var streams []*fakeStream
	d, sink := newTestDriver(func(string, int, time.Duration) (Stream, error) {
		fs := newFakeStream()
		streams = append(streams, fs)
		return fs, nil
	})

	require.NoError(t, d.Connect("a", DefaultBaud))
	require.NoError(t, d.Disconnect())
	require.NoError(t, d.Connect("b", DefaultBaud))
	defer d.Disconnect()

	require.Len(t, streams, 2)
	streams[1].device(t, "ok\n")
	sink.expect(t, "ok")
}

func TestDriver_ConnectionLost(t *testing.T) {
	fs := newFakeStream()
	d, sink := newTestDriver(fs.opener())
	require.NoError(t, d.Connect("a", DefaultBaud))
	defer d.Disconnect()

	unplugged := errors.New("unplugged")
	fs.device(t, "ok\n")
	fs.pw.CloseWithError(unplugged)

	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("done not closed after read error")
	}
	// lines read before the failure are still delivered
	sink.expect(t, "ok")

	assert.ErrorIs(t, d.Err(), unplugged)
	err := d.SendCommand("?")
	assert.ErrorIs(t, err, ErrConnectionLost)
	assert.ErrorIs(t, err, unplugged)
}

func TestDriver_Stream(t *testing.T) {
	fs := newFakeStream()
	d, _ := newTestDriver(fs.opener())
	require.NoError(t, d.Connect("a", DefaultBaud))
	defer d.Disconnect()

	n, err := d.Stream([]string{"G90", "G21", "G0 X1.000 Y1.000"}, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "G90\nG21\nG0 X1.000 Y1.000\n", fs.written())
}

func TestDriver_Stream_Error(t *testing.T) {
	fs := newFakeStream()
	fs.failAfter = 1
	d, _ := newTestDriver(fs.opener())
	require.NoError(t, d.Connect("a", DefaultBaud))
	defer d.Disconnect()

	n, err := d.Stream([]string{"G90", "G21", "M5"}, 0)
	assert.Equal(t, 1, n)
	var se *StreamError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 1, se.Index)
	assert.Equal(t, "G21", se.Command)
	assert.Equal(t, "G90\n", fs.written())

	_, err = (&Driver{}).Stream([]string{"G90"}, 0)
	assert.ErrorIs(t, err, ErrNotConnected)
}
