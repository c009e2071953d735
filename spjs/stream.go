package spjs

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mastercactapus/lasermx/machine/grbl"
)

// DefaultTimeout bounds how long List waits for the server.
const DefaultTimeout = 5 * time.Second

var lastID int64

func nextID() string {
	id := atomic.AddInt64(&lastID, 1)
	return "cmd_" + strconv.FormatInt(id, 36)
}

// Stream is a grbl.Stream to a serial port opened on an SPJS server.
type Stream struct {
	c    *Client
	port string

	// ReadTimeout bounds how long Read waits for data before
	// returning (0, nil).
	ReadTimeout time.Duration

	data chan []byte
	err  error // set before data is closed

	rMx  sync.Mutex
	rbuf []byte

	wMx  sync.Mutex
	wbuf []byte

	once    sync.Once
	closeCh chan struct{}
	done    chan struct{}
}

var _ grbl.Stream = &Stream{}

// Open connects to url and opens port on the server.
func Open(url, port string, baud int) (*Stream, error) {
	if baud <= 0 {
		baud = grbl.DefaultBaud
	}
	c, err := Dial(url)
	if err != nil {
		return nil, err
	}
	err = c.WriteString(fmt.Sprintf("open %s %d grbl", port, baud))
	if err != nil {
		c.Close()
		return nil, err
	}

	s := &Stream{
		c:           c,
		port:        port,
		ReadTimeout: grbl.DefaultReadTimeout,
		data:        make(chan []byte, 100),
		closeCh:     make(chan struct{}),
		done:        make(chan struct{}),
	}
	go s.loop()
	return s, nil
}

// Opener returns a grbl.Opener that opens ports through the server at url.
func Opener(url string) grbl.Opener {
	return func(endpoint string, baud int, timeout time.Duration) (grbl.Stream, error) {
		s, err := Open(url, endpoint, baud)
		if err != nil {
			return nil, err
		}
		if timeout > 0 {
			s.ReadTimeout = timeout
		}
		return s, nil
	}
}

func (s *Stream) loop() {
	defer close(s.done)
	for msg := range s.c.Messages() {
		switch m := msg.(type) {
		case *DataFrame:
			if m.Port != s.port || m.Data == "" {
				continue
			}
			// keep draining after Close so the client can shut down
			select {
			case s.data <- []byte(m.Data):
			case <-s.closeCh:
			}
		case *ErrorMessage:
			log.Warn().Str("port", s.port).Str("error", m.Error).Msg("spjs error")
		case *CmdStatus:
			if m.Cmd == "WipedQueue" {
				log.Warn().Str("port", s.port).Msg("spjs wiped queue")
			}
		}
	}
	err := s.c.Err()
	if err == nil {
		err = io.EOF
	}
	s.err = err
	close(s.data)
}

// Read returns (0, nil) when nothing arrives within ReadTimeout. Once the
// session ends it returns the client error, or io.EOF.
func (s *Stream) Read(p []byte) (int, error) {
	s.rMx.Lock()
	defer s.rMx.Unlock()

	select {
	case <-s.closeCh:
		return 0, os.ErrClosed
	default:
	}
	if len(s.rbuf) == 0 {
		t := time.NewTimer(s.ReadTimeout)
		defer t.Stop()
		select {
		case data, ok := <-s.data:
			if !ok {
				return 0, s.err
			}
			s.rbuf = data
		case <-s.closeCh:
			return 0, os.ErrClosed
		case <-t.C:
			return 0, nil
		}
	}
	n := copy(p, s.rbuf)
	s.rbuf = s.rbuf[n:]
	return n, nil
}

// Write sends every complete line in p as one sendjson command.
func (s *Stream) Write(p []byte) (int, error) {
	s.wMx.Lock()
	defer s.wMx.Unlock()

	s.wbuf = append(s.wbuf, p...)
	i := strings.LastIndexByte(string(s.wbuf), '\n')
	if i < 0 {
		return len(p), nil
	}
	lines := strings.Split(string(s.wbuf[:i]), "\n")
	s.wbuf = append([]byte(nil), s.wbuf[i+1:]...)

	j := JSON{Port: s.port}
	for _, l := range lines {
		j.Data = append(j.Data, Data{Data: strings.TrimSpace(l) + "\n", ID: nextID()})
	}
	if err := s.c.SendJSON(j); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close closes the port on the server and ends the session.
func (s *Stream) Close() error {
	var err error
	s.once.Do(func() {
		s.c.WriteString("close " + s.port)
		close(s.closeCh)
		err = s.c.Close()
		<-s.done
	})
	return err
}

// Lister lists the serial ports known to an SPJS server.
type Lister struct {
	URL     string
	Timeout time.Duration
}

var _ grbl.Lister = Lister{}

func (l Lister) List() ([]string, error) {
	c, err := Dial(l.URL)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	timeout := l.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	ports, err := c.List(timeout)
	if err != nil {
		return nil, err
	}
	res := make([]string, len(ports))
	for i, p := range ports {
		res[i] = p.Name
	}
	sort.Strings(res)
	return res, nil
}
