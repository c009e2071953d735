// Package machine runs a laser session on top of a grbl.Driver.
package machine

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mastercactapus/lasermx/machine/grbl"
)

// ErrBusy is returned when homing and a program would overlap.
var ErrBusy = errors.New("machine busy")

// Options configure a Machine.
type Options struct {
	// HomingFallback ends a homing cycle without a reply, zero disables it.
	HomingFallback time.Duration

	// StreamDelay is the pause between commands for Run.
	StreamDelay time.Duration

	// StatusInterval polls `?` while connected, zero disables polling.
	StatusInterval time.Duration
}

// Machine owns a driver and fans received lines out to status tracking,
// homing, buffered streaming and any registered listeners.
type Machine struct {
	d      *grbl.Driver
	homing *Homing
	opt    Options

	sinks []func(string)

	// runMx serializes starting programs and homing cycles
	runMx   sync.Mutex
	running bool

	mx        sync.Mutex
	streamer  *grbl.Streamer
	status    grbl.Status
	hasStatus bool
	pollStop  chan struct{}
	pollDone  chan struct{}
}

// New creates a Machine. It takes over the driver's line listener.
func New(d *grbl.Driver, opt Options) *Machine {
	m := &Machine{
		d:      d,
		opt:    opt,
		homing: NewHoming(d, opt.HomingFallback),
	}
	d.OnLine(m.handleLine)
	return m
}

// OnLine adds a listener for received lines. It must be called before Connect.
func (m *Machine) OnLine(fn func(string)) { m.sinks = append(m.sinks, fn) }

func (m *Machine) Driver() *grbl.Driver { return m.d }
func (m *Machine) Homing() *Homing      { return m.homing }
func (m *Machine) Connected() bool      { return m.d.Connected() }

// CurrentState returns the last status report, ok is false if none was received.
func (m *Machine) CurrentState() (stat grbl.Status, ok bool) {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.status, m.hasStatus
}

// Connect opens the endpoint and starts status polling if enabled.
func (m *Machine) Connect(endpoint string, baud int) error {
	if err := m.d.Connect(endpoint, baud); err != nil {
		return err
	}

	m.mx.Lock()
	m.streamer = grbl.NewStreamer(m.d)
	m.hasStatus = false
	m.status = grbl.Status{}
	m.mx.Unlock()

	if m.opt.StatusInterval > 0 {
		m.mx.Lock()
		m.pollStop = make(chan struct{})
		m.pollDone = make(chan struct{})
		go m.poll(m.opt.StatusInterval, m.pollStop, m.pollDone)
		m.mx.Unlock()
	}
	return nil
}

func (m *Machine) poll(interval time.Duration, stop, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-m.d.Done():
			return
		case <-t.C:
			if err := m.d.SendCommand("?"); err != nil {
				log.Debug().Err(err).Msg("status poll")
				return
			}
		}
	}
}

// Disconnect resets homing, aborts a buffered run and closes the driver.
// It is a no-op when not connected.
func (m *Machine) Disconnect() error {
	m.homing.Reset()

	m.mx.Lock()
	st := m.streamer
	m.streamer = nil
	stop, done := m.pollStop, m.pollDone
	m.pollStop, m.pollDone = nil, nil
	m.mx.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	if st != nil {
		st.Close()
	}
	return m.d.Disconnect()
}

// Send writes a single command.
func (m *Machine) Send(cmd string) error { return m.d.SendCommand(cmd) }

func (m *Machine) begin() error {
	m.runMx.Lock()
	defer m.runMx.Unlock()
	if m.running || m.homing.State() == HomingInProgress {
		return ErrBusy
	}
	m.running = true
	return nil
}

func (m *Machine) end() {
	m.runMx.Lock()
	m.running = false
	m.runMx.Unlock()
}

// Run streams commands without waiting for acknowledgments.
func (m *Machine) Run(commands []string) (int, error) {
	if err := m.begin(); err != nil {
		return 0, err
	}
	defer m.end()

	n, err := m.d.Stream(commands, m.opt.StreamDelay)
	log.Info().Int("sent", n).Int("total", len(commands)).Err(err).Msg("run finished")
	return n, err
}

// RunBuffered streams commands with flow control and returns once every
// command was acknowledged.
func (m *Machine) RunBuffered(commands []string) (int, error) {
	if !m.d.Connected() {
		return 0, grbl.ErrNotConnected
	}
	if err := m.begin(); err != nil {
		return 0, err
	}
	defer m.end()

	m.mx.Lock()
	st := m.streamer
	m.mx.Unlock()
	if st == nil {
		return 0, grbl.ErrNotConnected
	}

	n, err := st.Run(commands)
	log.Info().Int("sent", n).Int("total", len(commands)).Err(err).Msg("buffered run finished")
	return n, err
}

// Home starts a homing cycle; see Homing.Start.
func (m *Machine) Home() (<-chan ExitReason, error) {
	m.runMx.Lock()
	defer m.runMx.Unlock()
	if m.running {
		return nil, ErrBusy
	}
	return m.homing.Start()
}

func (m *Machine) handleLine(line string) {
	if grbl.IsStatus(line) {
		m.mx.Lock()
		stat, err := grbl.ParseStatus(m.status, line)
		if err == nil {
			m.status = stat
			m.hasStatus = true
		}
		m.mx.Unlock()
		if err != nil {
			log.Error().Err(err).Str("line", line).Msg("parse status")
		}
	}

	m.homing.HandleLine(line)

	m.mx.Lock()
	st := m.streamer
	m.mx.Unlock()
	if st != nil {
		st.HandleLine(line)
	}

	for _, fn := range m.sinks {
		fn(line)
	}
}
