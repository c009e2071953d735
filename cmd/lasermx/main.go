// Command lasermx compiles vector drawings to G-code and drives GRBL laser
// controllers over serial, SPJS, or a built-in simulator.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mastercactapus/lasermx/config"
	"github.com/mastercactapus/lasermx/machine"
	"github.com/mastercactapus/lasermx/machine/grbl"
	"github.com/mastercactapus/lasermx/spjs"
	"github.com/mastercactapus/lasermx/toolpath"
	"github.com/mastercactapus/lasermx/vector"
)

const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2

	// simulatorEndpoint is used when simulating without a port.
	simulatorEndpoint = "simulator"

	cmdWait = 500 * time.Millisecond
	runWait = 200 * time.Millisecond
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, colorable.NewColorableStderr()))
}

type actions struct {
	configFile string
	list       bool
	cmd        string
	file       string
	toGcode    string
	runFile    bool
	buffered   bool
	home       bool
	serve      string
}

func (a actions) needsMachine() bool {
	return a.cmd != "" || a.runFile || a.home || a.serve != ""
}

func parseArgs(args []string, stderr io.Writer) (actions, config.Config, error) {
	var act actions
	cfg := config.Default()

	fs := flag.NewFlagSet("lasermx", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&act.configFile, "config", "", "YAML config file.")
	fs.BoolVar(&act.list, "list", false, "List available ports and exit.")
	fs.StringVar(&cfg.Port, "port", cfg.Port, "Port path (or name if using SPJS).")
	fs.IntVar(&cfg.Baud, "baud", cfg.Baud, "Baud rate.")
	fs.BoolVar(&cfg.Simulate, "simulate", cfg.Simulate, "Use the built-in simulated controller.")
	fs.StringVar(&cfg.SPJS, "spjs", cfg.SPJS, "Websocket URL of the SPJS server to use, e.g. ws://cnc-bridge:8989/ws.")
	fs.StringVar(&act.cmd, "cmd", "", "Send a single command.")
	fs.StringVar(&act.file, "file", "", "SVG or DXF file to compile.")
	fs.StringVar(&act.toGcode, "to-gcode", "", "Write the compiled G-code to this file.")
	fs.BoolVar(&act.runFile, "run", false, "Stream the compiled G-code to the controller.")
	fs.BoolVar(&act.buffered, "buffered", false, "Wait for controller buffer space while running.")
	fs.BoolVar(&act.home, "home", false, "Run a homing cycle.")
	fs.Float64Var(&cfg.Feed, "feed", cfg.Feed, "Feed rate for cutting moves.")
	fs.IntVar(&cfg.Power, "power", cfg.Power, "Laser power (S value).")
	fs.StringVar(&act.serve, "serve", "", "Address to bind the HTTP control server to, e.g. :9091.")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error).")
	err := fs.Parse(args)
	if err != nil {
		return act, cfg, err
	}
	if fs.NArg() > 0 {
		return act, cfg, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if act.configFile == "" {
		return act, cfg, cfg.Validate()
	}

	fileCfg, err := config.Load(act.configFile)
	if err != nil {
		return act, cfg, err
	}
	override := map[string]func(){
		"port":      func() { fileCfg.Port = cfg.Port },
		"baud":      func() { fileCfg.Baud = cfg.Baud },
		"simulate":  func() { fileCfg.Simulate = cfg.Simulate },
		"spjs":      func() { fileCfg.SPJS = cfg.SPJS },
		"feed":      func() { fileCfg.Feed = cfg.Feed },
		"power":     func() { fileCfg.Power = cfg.Power },
		"log-level": func() { fileCfg.LogLevel = cfg.LogLevel },
	}
	fs.Visit(func(f *flag.Flag) {
		if fn, ok := override[f.Name]; ok {
			fn()
		}
	})
	return act, fileCfg, fileCfg.Validate()
}

func setupLogging(level string, w io.Writer) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger().
		Level(lvl)
	return nil
}

// syncWriter serializes output from the reader, the sender and the logger.
type syncWriter struct {
	mx sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.w.Write(p)
}

func (s *syncWriter) printf(format string, args ...interface{}) {
	fmt.Fprintf(s, format, args...)
}

func newOpener(cfg config.Config) grbl.Opener {
	switch {
	case cfg.Simulate:
		return grbl.SimulatorOpener(grbl.DefaultHomingStep)
	case cfg.SPJS != "":
		return spjs.Opener(cfg.SPJS)
	}
	return grbl.OpenSerial
}

func newLister(cfg config.Config) grbl.Lister {
	if cfg.SPJS != "" {
		return spjs.Lister{URL: cfg.SPJS}
	}
	return grbl.SerialLister{}
}

func run(args []string, stdout, stderr io.Writer) int {
	out := &syncWriter{w: stdout}
	stderr = &syncWriter{w: stderr}
	act, cfg, err := parseArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitUsage
	}
	if err := setupLogging(cfg.LogLevel, stderr); err != nil {
		fmt.Fprintln(stderr, "Error: log-level:", err)
		return exitUsage
	}

	if act.list {
		ports, err := newLister(cfg).List()
		if err != nil {
			fmt.Fprintln(stderr, "Error: list ports:", err)
			return exitFail
		}
		for _, p := range ports {
			fmt.Fprintln(out, p)
		}
		return exitOK
	}

	endpoint := cfg.Port
	if endpoint == "" && cfg.Simulate {
		endpoint = simulatorEndpoint
	}
	switch {
	case !act.needsMachine() && act.file == "":
		fmt.Fprintln(stderr, "Error: nothing to do, use -cmd, -file, -home or -serve")
		return exitUsage
	case act.needsMachine() && endpoint == "":
		fmt.Fprintln(stderr, "Error: no port given, use -port or -simulate")
		return exitUsage
	case (act.runFile || act.toGcode != "") && act.file == "":
		fmt.Fprintln(stderr, "Error: -run and -to-gcode require -file")
		return exitUsage
	}

	var program []string
	if act.file != "" {
		polys, err := vector.Load(act.file, cfg.SamplesPerUnit)
		var uErr vector.UnsupportedFormatError
		if errors.As(err, &uErr) {
			fmt.Fprintln(stderr, "Error:", err)
			return exitUsage
		}
		if err != nil {
			fmt.Fprintln(stderr, "Error:", err)
			return exitFail
		}
		program = toolpath.Compile(polys, toolpath.Options{Feed: cfg.Feed, Power: cfg.Power})
		log.Info().Str("file", act.file).Int("polylines", len(polys)).Int("commands", len(program)).Msg("compiled")

		if act.toGcode != "" {
			if err := toolpath.WriteFile(act.toGcode, program); err != nil {
				fmt.Fprintln(stderr, "Error:", err)
				return exitFail
			}
			fmt.Fprintln(out, "G-code saved to", act.toGcode)
		}
	}

	if !act.needsMachine() {
		return exitOK
	}
	return runSession(act, cfg, endpoint, program, out, stderr)
}

func newMachine(cfg config.Config) *machine.Machine {
	d := grbl.NewDriver(newOpener(cfg))
	d.Settle = cfg.Settle

	opt := machine.Options{
		StreamDelay:    cfg.StreamDelay,
		StatusInterval: cfg.StatusInterval,
	}
	// only the simulator is known to drop homing acknowledgments
	if cfg.Simulate || cfg.ForceFallback {
		opt.HomingFallback = cfg.HomingFallback
	}
	return machine.New(d, opt)
}

func runSession(act actions, cfg config.Config, endpoint string, program []string, out *syncWriter, stderr io.Writer) int {
	m := newMachine(cfg)

	m.OnLine(func(line string) { out.printf("< %s\n", line) })
	m.Driver().Sent(func(cmd string) { out.printf("> %s\n", cmd) })

	var a *api
	if act.serve != "" {
		a = newAPI(session{m}, cfg.DataDir, toolpath.Options{Feed: cfg.Feed, Power: cfg.Power}, cfg.SamplesPerUnit)
		m.OnLine(a.lineEvent)
		m.Homing().OnExit(a.homingEvent)
	}

	err := m.Connect(endpoint, cfg.Baud)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitFail
	}
	defer m.Disconnect()

	if act.cmd != "" {
		if err := m.Send(act.cmd); err != nil {
			fmt.Fprintln(stderr, "Error: send:", err)
			return exitFail
		}
		time.Sleep(cmdWait)
	}

	if act.runFile {
		runFn := m.Run
		if act.buffered {
			runFn = m.RunBuffered
		}
		n, err := runFn(program)
		if err != nil {
			fmt.Fprintln(stderr, "Error: run:", err)
			return exitFail
		}
		log.Info().Int("sent", n).Msg("program sent")
		time.Sleep(runWait)
	}

	if act.home {
		ch, err := m.Home()
		if err != nil {
			fmt.Fprintln(stderr, "Error: home:", err)
			return exitFail
		}
		r := <-ch
		out.printf("Homing finished: %s\n", r)
		if r != machine.ExitAck && r != machine.ExitFallback {
			return exitFail
		}
	}

	if act.serve != "" {
		return serve(act.serve, a)
	}
	return exitOK
}

func serve(addr string, a *api) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	srv := &http.Server{
		Addr: addr,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "*")
			log.Debug().Str("method", req.Method).Str("path", req.URL.Path).Str("remote", req.RemoteAddr).Msg("request")
			a.ServeHTTP(w, req)
		}),
	}
	go func() {
		<-ctx.Done()
		a.Close()
		srv.Shutdown(context.Background())
	}()

	log.Info().Str("addr", addr).Msg("serving")
	err := srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("serve")
		return exitFail
	}
	return exitOK
}
