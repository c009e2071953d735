package main

import (
	"github.com/mastercactapus/lasermx/coord"
	"github.com/mastercactapus/lasermx/machine"
)

// Machine is the part of a session the HTTP API drives.
type Machine interface {
	Send(cmd string) error
	Run([]string) (int, error)
	RunBuffered([]string) (int, error)
	Home() (<-chan machine.ExitReason, error)

	State() MachineState
}

type MachineState struct {
	Connected bool        `json:"connected"`
	Homing    string      `json:"homing"`
	Stage     string      `json:"stage,omitempty"`
	Status    string      `json:"status,omitempty"`
	MPos      coord.Point `json:"mpos"`
	WPos      coord.Point `json:"wpos"`
	Feed      float64     `json:"feed"`
	Power     float64     `json:"power"`
}

type session struct {
	*machine.Machine
}

func (s session) State() MachineState {
	st := MachineState{
		Connected: s.Connected(),
		Homing:    s.Homing().State().String(),
		Stage:     s.Homing().Stage(),
	}
	if stat, ok := s.CurrentState(); ok {
		st.Status = stat.State
		st.MPos = stat.MPos
		st.WPos = stat.WPos
		st.Feed = stat.Feed
		st.Power = stat.Power
	}
	return st
}
