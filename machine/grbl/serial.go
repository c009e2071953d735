package grbl

import (
	"errors"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/tarm/serial"
	bugst "go.bug.st/serial"
)

type serialStream struct {
	port *serial.Port

	once   sync.Once
	closed chan struct{}
}

// OpenSerial opens a local serial port. It is the default Opener.
func OpenSerial(endpoint string, baud int, timeout time.Duration) (Stream, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	p, err := serial.OpenPort(&serial.Config{
		Name:        endpoint,
		Baud:        baud,
		ReadTimeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	return &serialStream{port: p, closed: make(chan struct{})}, nil
}

// Read returns (0, nil) when the read timeout expires without data.
func (s *serialStream) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	if n == 0 && errors.Is(err, io.EOF) {
		select {
		case <-s.closed:
			return 0, os.ErrClosed
		default:
			return 0, nil
		}
	}
	return n, err
}

func (s *serialStream) Write(p []byte) (int, error) { return s.port.Write(p) }

func (s *serialStream) Close() error {
	err := os.ErrClosed
	s.once.Do(func() {
		close(s.closed)
		err = s.port.Close()
	})
	return err
}

// A Lister enumerates available endpoints.
type Lister interface {
	List() ([]string, error)
}

// SerialLister lists the local serial ports.
type SerialLister struct{}

var _ Lister = SerialLister{}

func (SerialLister) List() ([]string, error) {
	ports, err := bugst.GetPortsList()
	if err != nil {
		return nil, err
	}
	sort.Strings(ports)
	return ports, nil
}
