package vector

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/mastercactapus/lasermx/coord"
	"github.com/mastercactapus/lasermx/curve"
)

// ErrPathSyntax is returned for malformed path data.
var ErrPathSyntax = errors.New("invalid path data")

type pathLexer struct {
	s string
	i int
}

func (l *pathLexer) skipSep() {
	for l.i < len(l.s) {
		switch l.s[l.i] {
		case ' ', '\t', '\r', '\n', '\f', ',':
			l.i++
		default:
			return
		}
	}
}

func (l *pathLexer) done() bool {
	l.skipSep()
	return l.i >= len(l.s)
}

func isPathCommand(c byte) bool {
	switch c | 0x20 {
	case 'm', 'l', 'h', 'v', 'c', 's', 'q', 't', 'a', 'z':
		return true
	}
	return false
}

func (l *pathLexer) command() (byte, bool) {
	l.skipSep()
	if l.i < len(l.s) && isPathCommand(l.s[l.i]) {
		c := l.s[l.i]
		l.i++
		return c, true
	}
	return 0, false
}

func (l *pathLexer) hasNumber() bool {
	l.skipSep()
	if l.i >= len(l.s) {
		return false
	}
	c := l.s[l.i]
	return c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9')
}

func (l *pathLexer) number() (float64, error) {
	l.skipSep()
	start := l.i
	if l.i < len(l.s) && (l.s[l.i] == '-' || l.s[l.i] == '+') {
		l.i++
	}
	digits := 0
	for l.i < len(l.s) && l.s[l.i] >= '0' && l.s[l.i] <= '9' {
		l.i++
		digits++
	}
	if l.i < len(l.s) && l.s[l.i] == '.' {
		l.i++
		for l.i < len(l.s) && l.s[l.i] >= '0' && l.s[l.i] <= '9' {
			l.i++
			digits++
		}
	}
	if digits > 0 && l.i < len(l.s) && (l.s[l.i] == 'e' || l.s[l.i] == 'E') {
		j := l.i + 1
		if j < len(l.s) && (l.s[j] == '-' || l.s[j] == '+') {
			j++
		}
		if j < len(l.s) && l.s[j] >= '0' && l.s[j] <= '9' {
			for j < len(l.s) && l.s[j] >= '0' && l.s[j] <= '9' {
				j++
			}
			l.i = j
		}
	}
	if digits == 0 {
		return 0, fmt.Errorf("%w: expected number at offset %d", ErrPathSyntax, start)
	}
	return strconv.ParseFloat(l.s[start:l.i], 64)
}

// flag reads a single arc flag; flags may be written without separators.
func (l *pathLexer) flag() (bool, error) {
	l.skipSep()
	if l.i < len(l.s) {
		switch l.s[l.i] {
		case '0':
			l.i++
			return false, nil
		case '1':
			l.i++
			return true, nil
		}
	}
	return false, fmt.Errorf("%w: expected flag at offset %d", ErrPathSyntax, l.i)
}

func (l *pathLexer) numbers(n int) ([]float64, error) {
	res := make([]float64, n)
	for i := range res {
		v, err := l.number()
		if err != nil {
			return nil, err
		}
		res[i] = v
	}
	return res, nil
}

type pathBuilder struct {
	subpaths [][]curve.Curve
	segs     []curve.Curve

	cur, start coord.Point
	ctrl       coord.Point
	prev       byte
}

func (b *pathBuilder) flush() {
	if len(b.segs) > 0 {
		b.subpaths = append(b.subpaths, b.segs)
	}
	b.segs = nil
}

func (b *pathBuilder) add(c curve.Curve) {
	if c != nil {
		b.segs = append(b.segs, c)
	}
}

// reflect returns the implied first control point for S and T.
func (b *pathBuilder) reflect(prevKinds string) coord.Point {
	for i := 0; i < len(prevKinds); i++ {
		if b.prev == prevKinds[i] {
			return b.cur.Mul(2).Sub(b.ctrl)
		}
	}
	return b.cur
}

// parsePathData splits SVG path data into subpaths of curve segments.
func parsePathData(d string) ([][]curve.Curve, error) {
	l := &pathLexer{s: d}
	b := &pathBuilder{}

	var cmd byte
	for !l.done() {
		if c, ok := l.command(); ok {
			if cmd == 0 && c != 'M' && c != 'm' {
				return nil, fmt.Errorf("%w: must start with a moveto, got '%c'", ErrPathSyntax, c)
			}
			cmd = c
		} else if cmd == 0 {
			return nil, fmt.Errorf("%w: must start with a moveto", ErrPathSyntax)
		} else if !l.hasNumber() {
			return nil, fmt.Errorf("%w: unexpected '%c' at offset %d", ErrPathSyntax, l.s[l.i], l.i)
		} else {
			// implicit repeat; extra moveto pairs are lineto
			switch cmd {
			case 'M':
				cmd = 'L'
			case 'm':
				cmd = 'l'
			case 'Z', 'z':
				return nil, fmt.Errorf("%w: number after closepath", ErrPathSyntax)
			}
		}

		if err := b.apply(l, cmd); err != nil {
			return nil, err
		}
	}
	b.flush()
	return b.subpaths, nil
}

func (b *pathBuilder) apply(l *pathLexer, cmd byte) error {
	rel := cmd >= 'a'
	up := cmd &^ 0x20
	pt := func(x, y float64) coord.Point {
		if rel {
			return coord.Pt(b.cur.X+x, b.cur.Y+y)
		}
		return coord.Pt(x, y)
	}

	switch up {
	case 'Z':
		if len(b.segs) > 0 && !b.cur.Equal(b.start) {
			b.add(curve.Line{P0: b.cur, P1: b.start})
		}
		b.flush()
		b.cur = b.start
	case 'M':
		v, err := l.numbers(2)
		if err != nil {
			return err
		}
		b.flush()
		b.cur = pt(v[0], v[1])
		b.start = b.cur
	case 'L':
		v, err := l.numbers(2)
		if err != nil {
			return err
		}
		p := pt(v[0], v[1])
		b.add(curve.Line{P0: b.cur, P1: p})
		b.cur = p
	case 'H', 'V':
		v, err := l.number()
		if err != nil {
			return err
		}
		p := b.cur
		switch {
		case up == 'H' && rel:
			p.X += v
		case up == 'H':
			p.X = v
		case rel:
			p.Y += v
		default:
			p.Y = v
		}
		b.add(curve.Line{P0: b.cur, P1: p})
		b.cur = p
	case 'C':
		v, err := l.numbers(6)
		if err != nil {
			return err
		}
		c1, c2, p := pt(v[0], v[1]), pt(v[2], v[3]), pt(v[4], v[5])
		b.add(curve.CubicBez{P0: b.cur, P1: c1, P2: c2, P3: p})
		b.ctrl, b.cur = c2, p
	case 'S':
		v, err := l.numbers(4)
		if err != nil {
			return err
		}
		c1 := b.reflect("CS")
		c2, p := pt(v[0], v[1]), pt(v[2], v[3])
		b.add(curve.CubicBez{P0: b.cur, P1: c1, P2: c2, P3: p})
		b.ctrl, b.cur = c2, p
	case 'Q':
		v, err := l.numbers(4)
		if err != nil {
			return err
		}
		c, p := pt(v[0], v[1]), pt(v[2], v[3])
		b.add(curve.QuadBez{P0: b.cur, P1: c, P2: p})
		b.ctrl, b.cur = c, p
	case 'T':
		v, err := l.numbers(2)
		if err != nil {
			return err
		}
		c := b.reflect("QT")
		p := pt(v[0], v[1])
		b.add(curve.QuadBez{P0: b.cur, P1: c, P2: p})
		b.ctrl, b.cur = c, p
	case 'A':
		r, err := l.numbers(3)
		if err != nil {
			return err
		}
		large, err := l.flag()
		if err != nil {
			return err
		}
		sweep, err := l.flag()
		if err != nil {
			return err
		}
		v, err := l.numbers(2)
		if err != nil {
			return err
		}
		p := pt(v[0], v[1])
		b.add(curve.EndpointArc(b.cur, r[0], r[1], r[2], large, sweep, p))
		b.cur = p
	}
	b.prev = up
	return nil
}
