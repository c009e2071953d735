package grbl

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeStream is a Stream whose device side is driven by the test.
type fakeStream struct {
	pr *io.PipeReader
	pw *io.PipeWriter

	mx        sync.Mutex
	wrote     bytes.Buffer
	writes    int
	failAfter int
	closed    bool
}

func newFakeStream() *fakeStream {
	pr, pw := io.Pipe()
	return &fakeStream{pr: pr, pw: pw, failAfter: -1}
}

func (f *fakeStream) Read(p []byte) (int, error) { return f.pr.Read(p) }

func (f *fakeStream) Write(p []byte) (int, error) {
	f.mx.Lock()
	defer f.mx.Unlock()
	if f.closed {
		return 0, io.ErrClosedPipe
	}
	if f.failAfter >= 0 && f.writes >= f.failAfter {
		return 0, errors.New("write failed")
	}
	f.writes++
	return f.wrote.Write(p)
}

func (f *fakeStream) Close() error {
	f.mx.Lock()
	f.closed = true
	f.mx.Unlock()
	f.pw.Close()
	return f.pr.Close()
}

func (f *fakeStream) device(t *testing.T, data string) {
	t.Helper()
	_, err := io.WriteString(f.pw, data)
	require.NoError(t, err)
}

func (f *fakeStream) written() string {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.wrote.String()
}

func (f *fakeStream) opener() Opener {
	return func(string, int, time.Duration) (Stream, error) { return f, nil }
}

// lineSink collects delivered lines.
type lineSink chan string

func (s lineSink) add(line string) { s <- line }

func (s lineSink) expect(t *testing.T, lines ...string) {
	t.Helper()
	for _, exp := range lines {
		select {
		case line := <-s:
			require.Equal(t, exp, line)
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for line '%s'", exp)
		}
	}
}

func (s lineSink) expectNone(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case line := <-s:
		t.Fatalf("unexpected line '%s'", line)
	case <-time.After(wait):
	}
}

func newTestDriver(open Opener) (*Driver, lineSink) {
	d := NewDriver(open)
	d.Settle = 0
	d.JoinTimeout = 50 * time.Millisecond
	sink := make(lineSink, 100)
	d.OnLine(sink.add)
	return d, sink
}
