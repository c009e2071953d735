package gcode

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

type Parser struct {
	br   *bufio.Reader
	line int
}

func NewParser(r io.Reader) *Parser {
	if br, ok := r.(*bufio.Reader); ok {
		return &Parser{br: br}
	}

	return &Parser{br: bufio.NewReader(r)}
}

var (
	rx        = regexp.MustCompile(`^([A-Z][0-9.\-+]+)+$`)
	rxSplit   = regexp.MustCompile(`[A-Z][0-9.\-+]+`)
	rxComment = regexp.MustCompile(`\([^)]*\)`)
)

// ErrEmptyLine is returned by ParseLine for blank or comment-only lines.
var ErrEmptyLine = errors.New("empty line")

// ParseLine parses a single line of gcode into a Block.
func ParseLine(s string) (Block, error) {
	s = strings.SplitN(s, ";", 2)[0]
	s = rxComment.ReplaceAllString(s, "")
	s = strings.Replace(s, " ", "", -1)
	s = strings.TrimSpace(s)
	s = strings.ToUpper(s)

	if s == "" {
		return nil, ErrEmptyLine
	}

	if !rx.MatchString(s) {
		return nil, errors.New("invalid or unhandled line: " + s)
	}

	codes := rxSplit.FindAllString(s, -1)
	res := make(Block, len(codes))

	for i, c := range codes {
		_, err := fmt.Sscanf(c, "%c%f", &res[i].W, &res[i].Arg)
		if err != nil {
			return nil, err
		}
	}

	return res, nil
}

func (p *Parser) readLine() (string, error) {
	s, err := p.br.ReadString('\n')
	if err == io.EOF && s != "" {
		err = nil
	}
	if err != nil {
		return "", err
	}
	p.line++
	return s, nil
}

// Read returns the next non-empty block. Parse failures are returned as
// a *LineError.
func (p *Parser) Read() (Block, error) {
	for {
		s, err := p.readLine()
		if err != nil {
			return nil, err
		}

		b, err := ParseLine(s)
		if err == ErrEmptyLine {
			continue
		}
		if err != nil {
			return nil, &LineError{Line: p.line, Text: strings.TrimSpace(s), Err: err}
		}
		return b, nil
	}
}
