package gcode

import (
	"fmt"
	"io"
	"strings"
)

// LineError reports the program line a parse or validation failure
// happened on. Line is 1-based.
type LineError struct {
	Line int
	Text string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d '%s': %v", e.Line, e.Text, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// IsSystemCommand reports whether s is addressed to the controller itself
// ($ commands and the realtime characters) rather than being G-code.
func IsSystemCommand(s string) bool {
	if s == "" {
		return false
	}
	switch s[0] {
	case '$', '?', '~', '!', 0x18:
		return true
	}
	return false
}

// Parse parses every non-empty line of data. Blocks are not validated.
func Parse(data string) ([]Block, error) {
	r := NewParser(strings.NewReader(data))
	var b []Block
	for {
		bl, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		b = append(b, bl)
	}
	return b, nil
}

func MustParse(data string) []Block {
	b, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return b
}

// Lines reads a program to be sent line by line. Blank and comment-only
// lines are dropped, system commands pass through as is and every other
// line must parse to a valid block. Lines are returned trimmed.
func Lines(r io.Reader) ([]string, error) {
	p := NewParser(r)
	var res []string
	for {
		s, err := p.readLine()
		if err == io.EOF {
			return res, nil
		}
		if err != nil {
			return nil, err
		}
		s = strings.TrimSpace(s)
		if IsSystemCommand(s) {
			res = append(res, s)
			continue
		}

		b, err := ParseLine(s)
		if err == ErrEmptyLine {
			continue
		}
		if err == nil {
			err = b.Validate()
		}
		if err != nil {
			return nil, &LineError{Line: p.line, Text: s, Err: err}
		}
		res = append(res, s)
	}
}
