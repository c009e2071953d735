package grbl

import (
	"errors"
	"io"
	"strings"
	"sync"
)

const bufferSize = 128

// ErrGrblReset will be returned from Run if a reset is encountered
// before all commands are run.
var ErrGrblReset = errors.New("grbl reset")

// Streamer runs programs using character counting flow control.
//
// It keeps the controller's serial RX buffer full without overflowing it:
// a line is only sent once the acknowledged lines leave room for it.
// Received lines must be passed to HandleLine.
type Streamer struct {
	s Sender

	ackCh   chan error
	resetCh chan struct{}
	closeCh chan struct{}
	once    sync.Once

	mx  sync.Mutex
	wMx sync.Mutex

	deviceBuf int
	lineSize  []int
	queued    int

	// acked is set by the first reply; a banner before it is the connect banner
	acked bool

	wroteLines int64
	readLines  int64
}

// NewStreamer creates a Streamer that writes through s.
func NewStreamer(s Sender) *Streamer {
	return &Streamer{
		s:       s,
		ackCh:   make(chan error, bufferSize),
		resetCh: make(chan struct{}, 1),
		closeCh: make(chan struct{}),
	}
}

// Close will abort any in-progress Run.
func (st *Streamer) Close() error {
	st.once.Do(func() { close(st.closeCh) })
	return nil
}

// InFlight returns the number of bytes sent but not yet acknowledged.
func (st *Streamer) InFlight() int {
	st.mx.Lock()
	defer st.mx.Unlock()
	return st.deviceBuf
}

// HandleLine processes a line received from the controller. Acknowledgments
// that do not belong to a streamed line are ignored, as is a banner received
// before the first reply.
func (st *Streamer) HandleLine(line string) {
	st.mx.Lock()
	defer st.mx.Unlock()
	switch {
	case IsAck(line):
		st.acked = true
		st.ack(nil)
	case IsError(line):
		st.acked = true
		st.ack(errors.New(line))
	case IsBanner(line):
		if !st.acked || len(st.lineSize) == 0 {
			return
		}
		select {
		case st.resetCh <- struct{}{}:
		default:
		}
	}
}

// ack must be called with mx held.
func (st *Streamer) ack(err error) {
	if st.queued >= len(st.lineSize) {
		return
	}
	st.queued++
	st.ackCh <- err
}

func (st *Streamer) reset() {
	st.mx.Lock()
	defer st.mx.Unlock()
	st.deviceBuf = 0
	st.lineSize = nil
	st.readLines = st.wroteLines
	st.queued = 0
	for {
		select {
		case <-st.ackCh:
		default:
			return
		}
	}
}

func (st *Streamer) recordBufferSpace(n int) int64 {
	st.mx.Lock()
	defer st.mx.Unlock()
	st.deviceBuf += n
	st.wroteLines++
	st.lineSize = append(st.lineSize, n)
	return st.wroteLines
}

func (st *Streamer) dropLast() {
	st.mx.Lock()
	defer st.mx.Unlock()
	if len(st.lineSize) == 0 {
		return
	}
	st.deviceBuf -= st.lineSize[len(st.lineSize)-1]
	st.lineSize = st.lineSize[:len(st.lineSize)-1]
	st.wroteLines--
}

func (st *Streamer) hasSpace(n int) bool {
	st.mx.Lock()
	defer st.mx.Unlock()
	// a line longer than the buffer is sent once everything else is acknowledged
	return st.deviceBuf+n <= bufferSize || len(st.lineSize) == 0
}

func (st *Streamer) waitForBufferSpace(n int) error {
	for !st.hasSpace(n) {
		err := st.next()
		if err != nil {
			return err
		}
	}

	return nil
}

func (st *Streamer) next() error {
	select {
	case <-st.closeCh:
		return io.ErrClosedPipe
	default:
	}

	select {
	case <-st.resetCh:
		st.reset()
		return ErrGrblReset
	default:
	}

	select {
	case <-st.closeCh:
		return io.ErrClosedPipe
	case <-st.resetCh:
		st.reset()
		return ErrGrblReset
	case e := <-st.ackCh:
		st.mx.Lock()
		st.queued--
		st.readLines++
		st.deviceBuf -= st.lineSize[0]
		st.lineSize = st.lineSize[1:]
		st.mx.Unlock()
		return e
	}
}

func (st *Streamer) done(id int64) bool {
	st.mx.Lock()
	defer st.mx.Unlock()
	return st.readLines >= id
}

func (st *Streamer) waitForLine(id int64) (err error) {
	for !st.done(id) {
		e := st.next()
		if err == nil {
			err = e
		}
		if errors.Is(e, ErrGrblReset) || errors.Is(e, io.ErrClosedPipe) {
			return e
		}
	}
	return err
}

// writeLine will block until there is room for line in the device buffer.
//
// It returns the line index.
func (st *Streamer) writeLine(line string) (id int64, err error) {
	n := len(line) + 1
	err = st.waitForBufferSpace(n)
	if err != nil {
		return 0, err
	}
	// recorded first, the ack may arrive before SendCommand returns
	id = st.recordBufferSpace(n)
	err = st.s.SendCommand(line)
	if err != nil {
		st.dropLast()
		return 0, err
	}
	return id, nil
}

// Run returns after all commands have been sent and acknowledged. Blank
// commands are skipped. n is the number of commands sent.
func (st *Streamer) Run(commands []string) (n int, err error) {
	st.wMx.Lock()
	defer st.wMx.Unlock()
	select {
	case <-st.closeCh:
		return 0, io.ErrClosedPipe
	default:
	}

	var lastID int64
	for _, c := range commands {
		line := strings.TrimSpace(c)
		if line == "" {
			continue
		}
		lastID, err = st.writeLine(line)
		if err != nil {
			return n, err
		}
		n++
	}
	if n == 0 {
		return 0, nil
	}

	return n, st.waitForLine(lastID)
}
