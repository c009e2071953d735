package grbl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mastercactapus/lasermx/coord"
)

// Status is a parsed real-time status report.
type Status struct {
	State string
	MPos  coord.Point
	WPos  coord.Point
	WCO   coord.Point

	Feed  float64
	Power float64
}

// Push is a bracketed push message such as `[MSG:Reset to continue]`
// or `[Homing|Seek]`.
type Push struct {
	Kind  string
	Value string
}

// IsAck reports if line acknowledges a command.
func IsAck(line string) bool { return line == "ok" }

// IsError reports if line is an error response.
func IsError(line string) bool { return strings.HasPrefix(line, "error") }

// IsBanner reports if line is the startup banner sent after a reset.
func IsBanner(line string) bool { return strings.HasPrefix(line, "Grbl") }

// IsStatus reports if line is a status report frame.
func IsStatus(line string) bool { return strings.HasPrefix(line, "<") && strings.HasSuffix(line, ">") }

// IsPush reports if line is a push message.
func IsPush(line string) bool { return strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") }

func parseCoords(data string) (p coord.Point, err error) {
	parts := strings.Split(data, ",")
	if len(parts) < 2 {
		return p, errors.New("invalid number of elements")
	}
	p.X, err = strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return p, err
	}
	p.Y, err = strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return p, err
	}
	return p, nil
}

// ParseStatus parses a status frame. Fields missing from the frame keep
// their value from prev, which is how controllers report WCO.
func ParseStatus(prev Status, line string) (Status, error) {
	if !IsStatus(line) {
		return prev, fmt.Errorf("not a status report: %s", line)
	}
	data := strings.TrimSuffix(strings.TrimPrefix(line, "<"), ">")
	parts := strings.Split(data, "|")
	stat := prev
	stat.State = parts[0]

	var hasM, hasW bool
	var err error
	for _, s := range parts[1:] {
		kv := strings.SplitN(s, ":", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "MPos":
			stat.MPos, err = parseCoords(kv[1])
			hasM = true
		case "WPos":
			stat.WPos, err = parseCoords(kv[1])
			hasW = true
		case "WCO":
			stat.WCO, err = parseCoords(kv[1])
		case "FS":
			var fs coord.Point
			fs, err = parseCoords(kv[1])
			stat.Feed, stat.Power = fs.X, fs.Y
		case "F":
			stat.Feed, err = strconv.ParseFloat(kv[1], 64)
		}
		if err != nil {
			return prev, fmt.Errorf("parse status field %s: %w", kv[0], err)
		}
	}

	switch {
	case hasM && !hasW:
		stat.WPos = stat.MPos.Sub(stat.WCO)
	case hasW && !hasM:
		stat.MPos = stat.WPos.Add(stat.WCO)
	}
	return stat, nil
}

// ParsePush parses a push message. Both `[KIND:value]` and `[KIND|value]`
// forms are accepted.
func ParsePush(line string) (Push, error) {
	if !IsPush(line) {
		return Push{}, fmt.Errorf("not a push message: %s", line)
	}
	data := strings.TrimSuffix(strings.TrimPrefix(line, "["), "]")
	i := strings.IndexAny(data, ":|")
	if i < 0 {
		return Push{Kind: data}, nil
	}
	return Push{Kind: data[:i], Value: data[i+1:]}, nil
}

// HomingStage returns the homing stage reported by line, if any.
func HomingStage(line string) (string, bool) {
	switch {
	case IsPush(line):
		p, err := ParsePush(line)
		if err != nil || p.Kind != "Homing" {
			return "", false
		}
		return p.Value, true
	case strings.HasPrefix(line, "<Home"):
		return "Home", true
	}
	return "", false
}
