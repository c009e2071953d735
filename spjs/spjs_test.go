package spjs

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer answers list, open and sendjson the way SPJS does, replying
// "ok" to every line queued on an open port.
type fakeServer struct {
	*httptest.Server

	mx    sync.Mutex
	cmds  []string
	conns []*websocket.Conn
}

func newFakeServer(t *testing.T) *fakeServer {
	srv := &fakeServer{}
	up := websocket.Upgrader{}
	srv.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ws, err := up.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		srv.mx.Lock()
		srv.conns = append(srv.conns, ws)
		srv.mx.Unlock()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			cmd := string(data)
			srv.mx.Lock()
			srv.cmds = append(srv.cmds, cmd)
			srv.mx.Unlock()

			// echo, ignored by clients
			ws.WriteMessage(websocket.TextMessage, data)
			switch {
			case cmd == "list":
				ws.WriteJSON(SerialPortList{SerialPorts: []SerialPort{
					{Name: "/dev/ttyUSB1"},
					{Name: "/dev/ttyACM0", IsOpen: true},
				}})
			case strings.HasPrefix(cmd, "open "):
				ws.WriteMessage(websocket.TextMessage, []byte(`{"Cmd":"Open","Desc":"Got register/open on port."}`))
			case strings.HasPrefix(cmd, "sendjson "):
				var j JSON
				if json.Unmarshal([]byte(strings.TrimPrefix(cmd, "sendjson ")), &j) != nil {
					ws.WriteJSON(ErrorMessage{Error: "bad json"})
					continue
				}
				for range j.Data {
					ws.WriteJSON(DataFrame{Port: "/dev/other", Data: "error:9\n"})
					ws.WriteJSON(DataFrame{Port: j.Port, Data: "o"})
					ws.WriteJSON(DataFrame{Port: j.Port, Data: "k\r\n"})
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (srv *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func (srv *fakeServer) drop() {
	srv.mx.Lock()
	defer srv.mx.Unlock()
	for _, ws := range srv.conns {
		ws.Close()
	}
}

func (srv *fakeServer) commands() []string {
	srv.mx.Lock()
	defer srv.mx.Unlock()
	return append([]string(nil), srv.cmds...)
}

func TestLister(t *testing.T) {
	srv := newFakeServer(t)

	ports, err := Lister{URL: srv.url(), Timeout: time.Second}.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"/dev/ttyACM0", "/dev/ttyUSB1"}, ports)
}

func TestLister_DialError(t *testing.T) {
	_, err := Lister{URL: "ws://127.0.0.1:1/ws"}.List()
	assert.Error(t, err)
}

func TestStream(t *testing.T) {
	srv := newFakeServer(t)

	s, err := Open(srv.url(), "/dev/ttyACM0", 0)
	require.NoError(t, err)

	n, err := s.Write([]byte("G0 X"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	_, err = s.Write([]byte("1\n"))
	require.NoError(t, err)

	buf := make([]byte, 0, 16)
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(string(buf), "ok\r\n") && time.Now().Before(deadline) {
		tmp := make([]byte, 16)
		n, err := s.Read(tmp)
		require.NoError(t, err)
		buf = append(buf, tmp[:n]...)
	}
	assert.Equal(t, "ok\r\n", string(buf))

	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())

	cmds := srv.commands()
	require.GreaterOrEqual(t, len(cmds), 2)
	assert.Equal(t, "open /dev/ttyACM0 115200 grbl", cmds[0])

	var j JSON
	require.True(t, strings.HasPrefix(cmds[1], "sendjson "))
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(cmds[1], "sendjson ")), &j))
	assert.Equal(t, "/dev/ttyACM0", j.Port)
	require.Len(t, j.Data, 1)
	assert.Equal(t, "G0 X1\n", j.Data[0].Data)
	assert.True(t, strings.HasPrefix(j.Data[0].ID, "cmd_"))
}

func TestStream_ServerGone(t *testing.T) {
	srv := newFakeServer(t)

	s, err := Opener(srv.url())("/dev/ttyACM0", 9600, time.Second)
	require.NoError(t, err)
	defer s.Close()

	srv.drop()

	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 16)
		for {
			if _, err := s.Read(buf); err != nil {
				done <- err
				return
			}
		}
	}()
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("read did not fail after server closed")
	}
}

func TestStream_ReadTimeout(t *testing.T) {
	srv := newFakeServer(t)

	gs, err := Opener(srv.url())("/dev/ttyACM0", 0, 20*time.Millisecond)
	require.NoError(t, err)
	s := gs.(*Stream)
	assert.Equal(t, 20*time.Millisecond, s.ReadTimeout)

	buf := make([]byte, 16)
	start := time.Now()
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Less(t, time.Since(start), time.Second)

	require.NoError(t, s.Close())
	_, err = s.Read(buf)
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestParseSPJSMessage(t *testing.T) {
	check := func(data string, exp interface{}) {
		t.Helper()
		var msg map[string]json.RawMessage
		require.NoError(t, json.Unmarshal([]byte(data), &msg))
		val, err := parseSPJSMessage([]byte(data), msg)
		require.NoError(t, err)
		assert.Equal(t, exp, val)
	}
	check(`{"Error":"nope"}`, &ErrorMessage{Error: "nope"})
	check(`{"P":"COM3","D":"ok\n"}`, &DataFrame{Port: "COM3", Data: "ok\n"})
	check(`{"Cmd":"Queued","QCnt":2,"Type":["Buf"],"D":["G0"],"Id":"cmd_1"}`,
		&CmdStatus{Cmd: "Queued", QueueCount: 2, Type: []string{"Buf"}, Data: []string{"G0"}, ID: "cmd_1"})

	var msg map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(`{"Cmd":"Open"}`), &msg))
	_, err := parseSPJSMessage([]byte(`{"Cmd":"Open"}`), msg)
	assert.Error(t, err)
}
