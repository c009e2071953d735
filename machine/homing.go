package machine

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mastercactapus/lasermx/machine/grbl"
)

// HomingCommand starts a homing cycle.
const HomingCommand = "$H"

// DefaultHomingFallback is used for controllers that may not acknowledge homing.
const DefaultHomingFallback = 1500 * time.Millisecond

// ErrHomingInProgress is returned when a homing cycle is already running.
var ErrHomingInProgress = errors.New("homing in progress")

type HomingState int

const (
	HomingIdle HomingState = iota
	HomingInProgress
)

func (s HomingState) String() string {
	if s == HomingInProgress {
		return "InProgress"
	}
	return "Idle"
}

// ExitReason describes how a homing cycle ended.
type ExitReason int

const (
	// ExitAck means the controller acknowledged the command.
	ExitAck ExitReason = iota + 1

	// ExitError means the controller reported an error.
	ExitError

	// ExitFallback means no reply arrived before the fallback timer.
	ExitFallback

	// ExitCanceled means the cycle was reset, e.g. by a disconnect.
	ExitCanceled
)

func (r ExitReason) String() string {
	switch r {
	case ExitAck:
		return "ok"
	case ExitError:
		return "error"
	case ExitFallback:
		return "fallback"
	case ExitCanceled:
		return "canceled"
	}
	return "unknown"
}

// Homing tracks the homing handshake with a controller.
//
// A cycle ends exactly once: on the first `ok` or `error` line received while
// it is in progress, or when the fallback timer fires. Replies arriving after
// the cycle ended are ignored.
type Homing struct {
	s grbl.Sender

	// Fallback ends a cycle without a reply; zero waits for a reply forever.
	Fallback time.Duration

	onExit func(ExitReason)

	mx      sync.Mutex
	state   HomingState
	cycle   uint64
	last    string
	stage   string
	started time.Time
	timer   *time.Timer
	wait    chan ExitReason
}

// NewHoming creates a Homing that issues commands through s.
func NewHoming(s grbl.Sender, fallback time.Duration) *Homing {
	return &Homing{s: s, Fallback: fallback}
}

// OnExit registers fn to be called after every cycle ends.
func (h *Homing) OnExit(fn func(ExitReason)) { h.onExit = fn }

func (h *Homing) State() HomingState {
	h.mx.Lock()
	defer h.mx.Unlock()
	return h.state
}

// Stage returns the last reported homing stage of the current or last cycle.
func (h *Homing) Stage() string {
	h.mx.Lock()
	defer h.mx.Unlock()
	return h.stage
}

// LastCommand returns the command that started the cycle in progress. It is
// empty while idle.
func (h *Homing) LastCommand() string {
	h.mx.Lock()
	defer h.mx.Unlock()
	return h.last
}

// Start begins a homing cycle. The returned channel receives the exit reason
// and is then closed.
func (h *Homing) Start() (<-chan ExitReason, error) {
	h.mx.Lock()
	if h.state == HomingInProgress {
		h.mx.Unlock()
		log.Warn().Msg("homing already in progress, ignoring request")
		return nil, ErrHomingInProgress
	}
	h.cycle++
	id := h.cycle
	h.state = HomingInProgress
	h.last = HomingCommand
	h.stage = ""
	h.started = time.Now()
	ch := make(chan ExitReason, 1)
	h.wait = ch
	h.mx.Unlock()

	// the reply may arrive before SendCommand returns
	if err := h.s.SendCommand(HomingCommand); err != nil {
		h.finish(id, ExitCanceled)
		return nil, err
	}

	h.mx.Lock()
	if h.Fallback > 0 && h.cycle == id && h.state == HomingInProgress {
		h.timer = time.AfterFunc(h.Fallback, func() { h.finish(id, ExitFallback) })
	}
	h.mx.Unlock()
	log.Info().Str("cmd", HomingCommand).Msg("homing started")

	return ch, nil
}

// HandleLine processes a line received from the controller.
func (h *Homing) HandleLine(line string) {
	if stage, ok := grbl.HomingStage(line); ok {
		h.mx.Lock()
		if h.state == HomingInProgress {
			h.stage = stage
		}
		h.mx.Unlock()
		return
	}

	var r ExitReason
	switch {
	case grbl.IsAck(line):
		r = ExitAck
	case grbl.IsError(line):
		r = ExitError
	default:
		return
	}

	h.mx.Lock()
	id := h.cycle
	h.mx.Unlock()
	h.finish(id, r)
}

// Reset ends a cycle in progress and cancels its fallback timer.
func (h *Homing) Reset() {
	h.mx.Lock()
	id := h.cycle
	h.mx.Unlock()
	h.finish(id, ExitCanceled)
}

// finish ends cycle id with r. Only the first call for a cycle has an effect.
func (h *Homing) finish(id uint64, r ExitReason) bool {
	h.mx.Lock()
	if h.state != HomingInProgress || h.cycle != id {
		h.mx.Unlock()
		return false
	}
	h.state = HomingIdle
	h.last = ""
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	ch := h.wait
	h.wait = nil
	dur := time.Since(h.started)
	h.mx.Unlock()

	ev := log.Info()
	if r != ExitAck {
		ev = log.Warn()
	}
	ev.Stringer("reason", r).Dur("elapsed", dur).Msg("homing finished")

	if h.onExit != nil {
		h.onExit(r)
	}
	ch <- r
	close(ch)
	return true
}
