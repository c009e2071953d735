package grbl

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mastercactapus/lasermx/coord"
	"github.com/mastercactapus/lasermx/gcode"
)

const (
	// SimulatorBanner is sent when a Simulator is opened.
	SimulatorBanner = "Grbl 1.1h ['$' for help]"

	// ErrUnsupportedSim is the reply to commands the Simulator does not know.
	ErrUnsupportedSim = "error: Unsupported command in FAKE mode"

	DefaultHomingStep = 200 * time.Millisecond
)

// simSupported lists the first words of blocks that are acknowledged.
var simSupported = map[string]bool{
	"G0":  true,
	"G1":  true,
	"G21": true,
	"G90": true,
	"G91": true,
	"M3":  true,
	"M5":  true,
	"F":   true,
}

var simReplies = map[string][]string{
	"$": {
		"$0=10  (step pulse, usec)",
		"$1=25  (step idle delay, msec)",
		"$10=1  (status report mask)",
		"ok",
	},
	"$$": {
		"$0=10",
		"$1=25",
		"$100=80.000 (x, step/mm)",
		"$101=80.000 (y, step/mm)",
		"$102=400.000 (z, step/mm)",
		"ok",
	},
	"$I": {
		"[MSG:LaserMX Fake Driver]",
		"[VER:1.1h.2025:FAKE]",
		"ok",
	},
}

var homingStages = []string{"[Homing|Start]", "[Homing|Seek]", "[Homing|Pull-off]"}

// Simulator is an in-process controller implementing Stream.
//
// Commands are processed in order on a worker goroutine. Motion commands
// are tracked with a gcode.VM so status reports follow the program.
type Simulator struct {
	homingStep time.Duration

	// ReadTimeout bounds how long Read waits for a reply before
	// returning (0, nil).
	ReadTimeout time.Duration

	vm      *gcode.VM
	counter int

	wMx    sync.Mutex
	framer Framer

	rMx  sync.Mutex
	rbuf []byte

	cmds    chan string
	out     chan []byte
	closeCh chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

var _ Stream = &Simulator{}

// NewSimulator starts a Simulator. homingStep is the delay between
// homing stage messages.
func NewSimulator(homingStep time.Duration) *Simulator {
	sim := &Simulator{
		homingStep:  homingStep,
		ReadTimeout: DefaultReadTimeout,
		vm:          gcode.NewVM(),
		cmds:        make(chan string, bufferSize),
		out:         make(chan []byte, bufferSize),
		closeCh:     make(chan struct{}),
	}
	sim.wg.Add(1)
	go sim.loop()
	return sim
}

// SimulatorOpener returns an Opener that ignores the endpoint and opens
// a new Simulator.
func SimulatorOpener(homingStep time.Duration) Opener {
	return func(_ string, _ int, timeout time.Duration) (Stream, error) {
		sim := NewSimulator(homingStep)
		if timeout > 0 {
			sim.ReadTimeout = timeout
		}
		return sim, nil
	}
}

// Read returns (0, nil) when no reply arrives within ReadTimeout.
func (sim *Simulator) Read(p []byte) (int, error) {
	sim.rMx.Lock()
	defer sim.rMx.Unlock()

	select {
	case <-sim.closeCh:
		return 0, os.ErrClosed
	default:
	}
	if len(sim.rbuf) == 0 {
		t := time.NewTimer(sim.ReadTimeout)
		defer t.Stop()
		select {
		case sim.rbuf = <-sim.out:
		case <-sim.closeCh:
			return 0, os.ErrClosed
		case <-t.C:
			return 0, nil
		}
	}
	n := copy(p, sim.rbuf)
	sim.rbuf = sim.rbuf[n:]
	return n, nil
}

func (sim *Simulator) Write(p []byte) (int, error) {
	select {
	case <-sim.closeCh:
		return 0, io.ErrClosedPipe
	default:
	}

	sim.wMx.Lock()
	defer sim.wMx.Unlock()
	for _, line := range sim.framer.Feed(p) {
		if line == "" {
			continue
		}
		select {
		case sim.cmds <- line:
		case <-sim.closeCh:
			return 0, io.ErrClosedPipe
		}
	}
	return len(p), nil
}

func (sim *Simulator) Close() error {
	sim.once.Do(func() { close(sim.closeCh) })
	sim.wg.Wait()
	return nil
}

func (sim *Simulator) reply(lines ...string) bool {
	for _, l := range lines {
		select {
		case sim.out <- []byte(l + "\n"):
		case <-sim.closeCh:
			return false
		}
	}
	return true
}

func (sim *Simulator) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-sim.closeCh:
		return false
	}
}

func (sim *Simulator) loop() {
	defer sim.wg.Done()
	if !sim.reply(SimulatorBanner) {
		return
	}
	for {
		select {
		case <-sim.closeCh:
			return
		case cmd := <-sim.cmds:
			if !sim.handle(cmd) {
				return
			}
		}
	}
}

func (sim *Simulator) status() string {
	state := "Idle"
	if sim.counter%10 >= 5 {
		state = "Run"
	}
	sim.counter++
	p := sim.vm.MPos()
	return fmt.Sprintf("<%s|MPos:%.3f,%.3f,0.000|FS:0,0>", state, p.X, p.Y)
}

func (sim *Simulator) handle(cmd string) bool {
	if cmd == "?" {
		return sim.reply(sim.status())
	}
	if r, ok := simReplies[cmd]; ok {
		return sim.reply(r...)
	}
	if cmd == "$H" {
		for _, s := range homingStages {
			if !sim.reply(s) || !sim.sleep(sim.homingStep) {
				return false
			}
		}
		sim.vm.SetMPos(coord.Point{})
		return sim.reply("ok")
	}

	b, err := gcode.ParseLine(cmd)
	if err != nil || len(b) == 0 {
		return sim.reply(ErrUnsupportedSim)
	}
	key := b[0].String()
	if b[0].W == 'F' {
		key = "F"
	}
	if !simSupported[key] {
		return sim.reply(ErrUnsupportedSim)
	}
	if err := sim.vm.Run(b); err != nil {
		log.Debug().Err(err).Str("cmd", cmd).Msg("simulator ignored block")
	}
	return sim.reply("ok")
}
