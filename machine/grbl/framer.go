package grbl

import (
	"bytes"
	"strings"
)

// Framer splits a byte stream into newline terminated lines.
//
// Partial data is kept until the terminator arrives, so Feed may be called
// with arbitrary chunk boundaries. Emitted lines have surrounding whitespace
// (including CR) removed and invalid UTF-8 dropped; empty lines are emitted
// as well so the caller decides whether to skip them.
type Framer struct {
	buf []byte
}

// Feed appends p and returns every completed line.
func (f *Framer) Feed(p []byte) []string {
	f.buf = append(f.buf, p...)

	var lines []string
	for {
		i := bytes.IndexByte(f.buf, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, cleanLine(f.buf[:i]))
		f.buf = f.buf[i+1:]
	}
	if len(f.buf) == 0 {
		f.buf = nil
	}
	return lines
}

// Pending returns the buffered, unterminated remainder.
func (f *Framer) Pending() []byte { return f.buf }

// Reset discards any buffered data.
func (f *Framer) Reset() { f.buf = nil }

func cleanLine(b []byte) string {
	return strings.TrimSpace(strings.ToValidUTF8(string(b), ""))
}
