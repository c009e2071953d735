package main

import (
	"encoding/json"
	"errors"
	"io"
	"io/ioutil"
	stdlog "log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/mastercactapus/lasermx/gcode"
	"github.com/mastercactapus/lasermx/machine"
	"github.com/mastercactapus/lasermx/machine/grbl"
	"github.com/mastercactapus/lasermx/toolpath"
	"github.com/mastercactapus/lasermx/vector"
)

type api struct {
	http.Handler
	m       Machine
	dataDir string
	opt     toolpath.Options
	spu     float64
	sse     *sse.Server

	mx     sync.RWMutex
	closed bool
}

func newAPI(m Machine, dir string, opt toolpath.Options, samplesPerUnit float64) *api {
	r := mux.NewRouter()

	a := &api{
		Handler: r,
		m:       m,
		dataDir: dir,
		opt:     opt,
		spu:     samplesPerUnit,
		sse: sse.NewServer(&sse.Options{
			Logger: stdlog.New(ioutil.Discard, "", 0),
		}),
	}

	fs := http.StripPrefix("/data", http.FileServer(http.Dir(dir)))
	r.PathPrefix("/data/").Methods("GET").Handler(fs)
	r.PathPrefix("/data/").Methods("PUT").HandlerFunc(a.putFile)
	r.PathPrefix("/data/").Methods("DELETE").HandlerFunc(a.deleteFile)

	r.HandleFunc("/api/command", a.command).Methods("POST")
	r.HandleFunc("/api/run", a.run).Methods("POST")
	r.HandleFunc("/api/home", a.home).Methods("POST")
	r.HandleFunc("/api/status", a.status).Methods("GET")

	r.PathPrefix("/events/").Handler(a.sse)

	return a
}

// Close disconnects all event clients. Events sent afterwards are dropped.
func (a *api) Close() {
	a.mx.Lock()
	defer a.mx.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	a.sse.Shutdown()
}

func (a *api) send(channel, data string) {
	a.mx.RLock()
	defer a.mx.RUnlock()
	if a.closed {
		return
	}
	a.sse.SendMessage(channel, sse.SimpleMessage(data))
}

func (a *api) lineEvent(line string) { a.send("/events/lines", line) }

func (a *api) homingEvent(r machine.ExitReason) {
	data, err := json.Marshal(struct {
		Reason string `json:"reason"`
	}{r.String()})
	if err != nil {
		log.Error().Err(err).Msg("marshal homing event")
		return
	}
	a.send("/events/homing", string(data))
}

func safePath(base, name string) (bool, string) {
	if filepath.Separator != '/' && strings.ContainsRune(name, filepath.Separator) {
		log.Warn().Str("name", name).Msg("invalid path")
		return false, ""
	}
	dir := string(base)
	if dir == "" {
		dir = "."
	}
	fullName := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+name)))
	return true, fullName
}

func httpStatus(err error) int {
	var uErr vector.UnsupportedFormatError
	var lErr *gcode.LineError
	switch {
	case errors.Is(err, machine.ErrBusy), errors.Is(err, machine.ErrHomingInProgress):
		return http.StatusConflict
	case errors.Is(err, grbl.ErrNotConnected), errors.Is(err, grbl.ErrConnectionLost):
		return http.StatusServiceUnavailable
	case errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.As(err, &uErr), errors.As(err, &lErr):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		log.Error().Err(err).Msg("encode")
	}
}

func (a *api) command(w http.ResponseWriter, req *http.Request) {
	data, err := ioutil.ReadAll(req.Body)
	if err != nil {
		return
	}
	cmd := strings.TrimSpace(string(data))
	if cmd == "" || strings.ContainsAny(cmd, "\r\n") {
		http.Error(w, "body must be a single command", http.StatusBadRequest)
		return
	}
	err = a.m.Send(cmd)
	if err != nil {
		log.Error().Err(err).Str("cmd", cmd).Msg("send")
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// program returns the commands to run: the compiled `file` from the data
// directory if given, otherwise the non-empty lines of the body.
func (a *api) program(req *http.Request) ([]string, error) {
	if name := req.FormValue("file"); name != "" {
		ok, fullName := safePath(a.dataDir, name)
		if !ok {
			return nil, os.ErrNotExist
		}
		polys, err := vector.Load(fullName, a.spu)
		if err != nil {
			return nil, err
		}
		return toolpath.Compile(polys, a.opt), nil
	}

	return gcode.Lines(req.Body)
}

func (a *api) run(w http.ResponseWriter, req *http.Request) {
	p, err := a.program(req)
	if err != nil {
		log.Error().Err(err).Msg("run: load program")
		http.Error(w, err.Error(), httpStatus(err))
		return
	}

	run := a.m.Run
	if req.FormValue("buffered") == "1" {
		run = a.m.RunBuffered
	}
	n, err := run(p)
	if err != nil {
		log.Error().Err(err).Int("sent", n).Msg("run")
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	writeJSON(w, struct {
		Sent int `json:"sent"`
	}{n})
}

func (a *api) home(w http.ResponseWriter, req *http.Request) {
	ch, err := a.m.Home()
	if err != nil {
		log.Error().Err(err).Msg("home")
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
	if req.FormValue("wait") != "1" {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	select {
	case r := <-ch:
		writeJSON(w, struct {
			Reason string `json:"reason"`
		}{r.String()})
	case <-req.Context().Done():
	}
}

func (a *api) status(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, a.m.State())
}

func (a *api) putFile(w http.ResponseWriter, req *http.Request) {
	ok, name := safePath(a.dataDir, strings.TrimPrefix(req.URL.Path, "/data"))
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	os.MkdirAll(filepath.Dir(name), 0755)
	f, err := os.Create(name)
	if err != nil {
		log.Error().Err(err).Str("name", name).Msg("create")
		http.Error(w, err.Error(), 500)
		return
	}
	defer f.Close()
	_, err = io.Copy(f, req.Body)
	if err != nil {
		log.Error().Err(err).Str("name", name).Msg("write")
		http.Error(w, err.Error(), 500)
		return
	}
}

func (a *api) deleteFile(w http.ResponseWriter, req *http.Request) {
	ok, name := safePath(a.dataDir, strings.TrimPrefix(req.URL.Path, "/data"))
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	err := os.Remove(name)
	if err != nil {
		log.Error().Err(err).Str("name", name).Msg("delete")
		http.Error(w, err.Error(), httpStatus(err))
		return
	}
}
