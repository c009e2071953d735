// Package grbl talks to GRBL style motion controllers over a line based
// serial protocol.
package grbl

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultBaud        = 115200
	DefaultReadTimeout = 250 * time.Millisecond
	DefaultSettle      = 100 * time.Millisecond

	// DefaultJoinTimeout leaves the reader several read timeouts to
	// notice a stop request.
	DefaultJoinTimeout = 4 * DefaultReadTimeout

	readBufSize = 1024
)

var (
	// ErrNotConnected is returned by operations that need an open connection.
	ErrNotConnected = errors.New("not connected")

	// ErrAlreadyConnected is returned by Connect if a connection is open.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrConnectionLost is returned after the background reader stopped
	// because of a read error.
	ErrConnectionLost = errors.New("connection lost")
)

// A Stream is the raw byte transport to a controller.
//
// Read may return (0, nil) when no data is available; it must fail once
// Close has been called.
type Stream interface {
	io.ReadWriteCloser
}

// An Opener opens a Stream to the named endpoint.
type Opener func(endpoint string, baud int, timeout time.Duration) (Stream, error)

// A Sender can issue a single command line.
type Sender interface {
	SendCommand(cmd string) error
}

// ConnectionError is returned when an endpoint cannot be opened.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect '%s': %v", e.Endpoint, e.Err)
}
func (e *ConnectionError) Unwrap() error { return e.Err }

// StreamError reports the command that failed during Stream. Index is also
// the number of commands that were written successfully.
type StreamError struct {
	Index   int
	Command string
	Err     error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("command %d '%s': %v", e.Index, e.Command, e.Err)
}
func (e *StreamError) Unwrap() error { return e.Err }

// Driver maintains a line based conversation with a controller.
//
// Received lines are read on a background goroutine and delivered, in order,
// to the OnLine listener from a second goroutine. Empty lines are skipped.
type Driver struct {
	open Opener

	// Settle is how long Connect waits after opening for the startup banner.
	Settle time.Duration

	// ReadTimeout is passed to the Opener.
	ReadTimeout time.Duration

	// JoinTimeout bounds how long Disconnect waits for the reader.
	JoinTimeout time.Duration

	onLine func(string)
	sent   func(string)

	mx       sync.Mutex
	wMx      sync.Mutex
	s        Stream
	endpoint string
	last     string
	err      error

	stopCh   chan struct{}
	readDone chan struct{}
	done     chan struct{}
}

var _ Sender = &Driver{}

// NewDriver creates a Driver that opens its Stream with open.
func NewDriver(open Opener) *Driver {
	return &Driver{
		open:        open,
		Settle:      DefaultSettle,
		ReadTimeout: DefaultReadTimeout,
		JoinTimeout: DefaultJoinTimeout,
	}
}

// OnLine registers the listener for received lines. It must be set
// before Connect and must not call Disconnect.
func (d *Driver) OnLine(fn func(string)) { d.onLine = fn }

// Sent registers an optional hook called with every written command.
func (d *Driver) Sent(fn func(string)) { d.sent = fn }

// Connected reports if a connection is open.
func (d *Driver) Connected() bool {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.s != nil
}

// Endpoint returns the endpoint of the current connection.
func (d *Driver) Endpoint() string {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.endpoint
}

// LastCommand returns the last command written.
func (d *Driver) LastCommand() string {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.last
}

// Done returns a channel that is closed once the current connection stops
// delivering lines, either after Disconnect or because the stream failed.
func (d *Driver) Done() <-chan struct{} {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.done
}

// Err returns the read error that ended the last connection, if any.
func (d *Driver) Err() error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.err
}

// Connect opens the endpoint and starts reading. It blocks for the
// settle window; lines received meanwhile are delivered normally.
func (d *Driver) Connect(endpoint string, baud int) error {
	d.mx.Lock()
	if d.s != nil {
		d.mx.Unlock()
		return ErrAlreadyConnected
	}

	s, err := d.open(endpoint, baud, d.ReadTimeout)
	if err != nil {
		d.mx.Unlock()
		return &ConnectionError{Endpoint: endpoint, Err: err}
	}

	d.s = s
	d.endpoint = endpoint
	d.err = nil
	d.stopCh = make(chan struct{})
	d.readDone = make(chan struct{})
	d.done = make(chan struct{})
	lines := make(chan string, 64)
	go d.readLoop(s, lines, d.stopCh, d.readDone)
	go d.dispatch(lines, d.stopCh, d.done)
	d.mx.Unlock()

	log.Debug().Str("endpoint", endpoint).Int("baud", baud).Msg("connected")
	if d.Settle > 0 {
		time.Sleep(d.Settle)
	}
	return nil
}

func (d *Driver) readLoop(s Stream, lines chan<- string, stop, readDone chan struct{}) {
	// lines is closed last so Done never fires before readDone
	defer close(lines)
	defer close(readDone)

	var f Framer
	buf := make([]byte, readBufSize)
	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := s.Read(buf)
		for _, line := range f.Feed(buf[:n]) {
			if line == "" {
				continue
			}
			select {
			case lines <- line:
			case <-stop:
				return
			}
		}
		if err != nil {
			select {
			case <-stop:
				// closed by Disconnect
			default:
				log.Debug().Err(err).Msg("read loop stopped")
				d.mx.Lock()
				d.err = err
				d.mx.Unlock()
			}
			return
		}
	}
}

func (d *Driver) dispatch(lines <-chan string, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			select {
			case <-stop:
				return
			default:
			}
			if d.onLine != nil {
				d.onLine(line)
			}
		}
	}
}

func asciiOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r > 127 {
			return -1
		}
		return r
	}, s)
}

// SendCommand writes the trimmed command and a newline. It does not wait
// for a reply. Non-ASCII characters are dropped.
func (d *Driver) SendCommand(cmd string) error {
	d.mx.Lock()
	s, readDone, readErr := d.s, d.readDone, d.err
	d.mx.Unlock()
	if s == nil {
		return ErrNotConnected
	}
	select {
	case <-readDone:
		if readErr != nil {
			return fmt.Errorf("%w: %w", ErrConnectionLost, readErr)
		}
		return ErrConnectionLost
	default:
	}

	line := asciiOnly(strings.TrimSpace(cmd))
	d.wMx.Lock()
	_, err := io.WriteString(s, line+"\n")
	d.wMx.Unlock()
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}

	d.mx.Lock()
	d.last = line
	d.mx.Unlock()
	if d.sent != nil {
		d.sent(line)
	}
	return nil
}

// Stream sends each command in order, sleeping delay between them.
// The first failure aborts the rest and is returned as a *StreamError.
func (d *Driver) Stream(commands []string, delay time.Duration) (int, error) {
	for i, cmd := range commands {
		if err := d.SendCommand(cmd); err != nil {
			return i, &StreamError{Index: i, Command: cmd, Err: err}
		}
		if delay > 0 && i < len(commands)-1 {
			time.Sleep(delay)
		}
	}
	return len(commands), nil
}

// Disconnect stops the reader and closes the stream. It is a no-op when
// not connected. After it returns no further lines are delivered.
func (d *Driver) Disconnect() error {
	d.mx.Lock()
	s := d.s
	if s == nil {
		d.mx.Unlock()
		return nil
	}
	d.s = nil
	stop, readDone, done := d.stopCh, d.readDone, d.done
	d.mx.Unlock()

	close(stop)
	t := time.NewTimer(d.JoinTimeout)
	select {
	case <-readDone:
		t.Stop()
	case <-t.C:
		log.Warn().Str("endpoint", d.Endpoint()).Msg("reader did not stop in time, closing stream")
	}

	err := s.Close()
	<-done
	log.Debug().Msg("disconnected")
	if err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}
