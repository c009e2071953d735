package vector

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/mastercactapus/lasermx/coord"
	"github.com/mastercactapus/lasermx/curve"
)

// SplineSegments is the number of segments a DXF SPLINE is approximated with.
const SplineSegments = 100

// ErrBinaryDXF is returned for binary DXF files, only ASCII is supported.
var ErrBinaryDXF = errors.New("binary DXF is not supported")

var binarySentinel = []byte("AutoCAD Binary DXF")

type dxfGroup struct {
	Code  int
	Value string
}

func (g dxfGroup) asFloat() float64 {
	v, _ := strconv.ParseFloat(g.Value, 64)
	return v
}

func (g dxfGroup) asInt() int {
	v, _ := strconv.Atoi(g.Value)
	return v
}

// dxfEntity is the group list of one entity, starting after its 0 group.
type dxfEntity struct {
	Type   string
	Groups []dxfGroup
}

func (e dxfEntity) num(code int) float64 {
	for _, g := range e.Groups {
		if g.Code == code {
			return g.asFloat()
		}
	}
	return 0
}

func (e dxfEntity) intVal(code int) int {
	for _, g := range e.Groups {
		if g.Code == code {
			return g.asInt()
		}
	}
	return 0
}

func (e dxfEntity) nums(code int) []float64 {
	var res []float64
	for _, g := range e.Groups {
		if g.Code == code {
			res = append(res, g.asFloat())
		}
	}
	return res
}

// points collects repeated x/y pairs with the given x code (y is x+10).
func (e dxfEntity) points(xCode int) coord.Polyline {
	var res coord.Polyline
	for _, g := range e.Groups {
		switch g.Code {
		case xCode:
			res = append(res, coord.Pt(g.asFloat(), 0))
		case xCode + 10:
			if len(res) > 0 {
				res[len(res)-1].Y = g.asFloat()
			}
		}
	}
	return res
}

// mirrored reports an extrusion direction of (0,0,-1), where OCS x is flipped.
func (e dxfEntity) mirrored() bool {
	for _, g := range e.Groups {
		if g.Code == 230 {
			return g.asFloat() < 0
		}
	}
	return false
}

// paperSpace reports entities that are not part of model space.
func (e dxfEntity) paperSpace() bool { return e.intVal(67) == 1 }

func readGroups(r io.Reader) ([]dxfGroup, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(len(binarySentinel))
	if bytes.Equal(head, binarySentinel) {
		return nil, ErrBinaryDXF
	}

	s := bufio.NewScanner(br)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var res []dxfGroup
	line := 0
	for s.Scan() {
		line++
		codeStr := strings.TrimSpace(s.Text())
		if codeStr == "" {
			continue
		}
		code, err := strconv.Atoi(codeStr)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid group code '%s'", line, codeStr)
		}
		if !s.Scan() {
			return nil, fmt.Errorf("line %d: missing value for group %d", line, code)
		}
		line++
		res = append(res, dxfGroup{Code: code, Value: strings.TrimSpace(s.Text())})
	}
	return res, s.Err()
}

// entities returns the entities of the ENTITIES section.
func entities(groups []dxfGroup) []dxfEntity {
	var res []dxfEntity
	inSection := false
	var cur *dxfEntity
	for i := 0; i < len(groups); i++ {
		g := groups[i]
		if g.Code != 0 {
			if cur != nil {
				cur.Groups = append(cur.Groups, g)
			}
			continue
		}

		if cur != nil {
			res = append(res, *cur)
			cur = nil
		}
		switch {
		case g.Value == "SECTION":
			inSection = i+1 < len(groups) && groups[i+1].Code == 2 && groups[i+1].Value == "ENTITIES"
			if inSection {
				i++
			}
		case g.Value == "ENDSEC" || g.Value == "EOF":
			inSection = false
		case inSection:
			cur = &dxfEntity{Type: g.Value}
		}
	}
	if cur != nil {
		res = append(res, *cur)
	}
	return res
}

func mirrorX(pts coord.Polyline) coord.Polyline {
	for i := range pts {
		pts[i].X = -pts[i].X
	}
	return pts
}

// LoadDXF reads an ASCII DXF document and converts its model space
// entities to polylines. Arcs and circles are sampled at samplesPerUnit.
// Unknown entities are ignored.
func LoadDXF(r io.Reader, samplesPerUnit float64) ([]coord.Polyline, error) {
	groups, err := readGroups(r)
	if err != nil {
		return nil, fmt.Errorf("parse dxf: %w", err)
	}

	ents := entities(groups)
	var res []coord.Polyline
	add := func(pts coord.Polyline) {
		if len(pts) > 0 {
			res = append(res, pts)
		}
	}

	for i := 0; i < len(ents); i++ {
		e := ents[i]
		if e.paperSpace() {
			continue
		}
		switch e.Type {
		case "LINE":
			add(coord.Polyline{
				coord.Pt(e.num(10), e.num(20)),
				coord.Pt(e.num(11), e.num(21)),
			})
		case "LWPOLYLINE":
			pts := e.points(10)
			if e.intVal(70)&1 != 0 && len(pts) > 1 && !pts.Closed() {
				pts = append(pts, pts[0])
			}
			if e.mirrored() {
				pts = mirrorX(pts)
			}
			add(pts)
		case "POLYLINE":
			closed := e.intVal(70)&1 != 0
			var pts coord.Polyline
			for i+1 < len(ents) && ents[i+1].Type == "VERTEX" {
				i++
				v := ents[i]
				// spline frame control points are not on the curve
				if v.intVal(70)&16 != 0 {
					continue
				}
				pts = append(pts, coord.Pt(v.num(10), v.num(20)))
			}
			if i+1 < len(ents) && ents[i+1].Type == "SEQEND" {
				i++
			}
			if closed && len(pts) > 1 && !pts.Closed() {
				pts = append(pts, pts[0])
			}
			add(pts)
		case "SPLINE":
			add(dxfSpline(e))
		case "ARC":
			a := curve.Arc{
				Center: coord.Pt(e.num(10), e.num(20)),
				Radii:  coord.Pt(e.num(40), e.num(40)),
			}
			start, end := e.num(50), e.num(51)
			sweep := math.Mod(end-start, 360)
			if sweep <= 0 {
				sweep += 360
			}
			a.Start = start * math.Pi / 180
			a.Sweep = sweep * math.Pi / 180
			pts := curve.Sample(a, samplesPerUnit)
			if e.mirrored() {
				pts = mirrorX(pts)
			}
			add(pts)
		case "CIRCLE":
			r := e.num(40)
			if r <= 0 {
				continue
			}
			pts := curve.Sample(curve.Circle(coord.Pt(e.num(10), e.num(20)), r), samplesPerUnit)
			if e.mirrored() {
				pts = mirrorX(pts)
			}
			add(pts)
		}
	}

	return res, nil
}

func dxfSpline(e dxfEntity) coord.Polyline {
	ctrl := e.points(10)
	if len(ctrl) == 0 {
		// fit point only splines
		return e.points(11)
	}
	s := curve.Spline{
		Degree:  e.intVal(71),
		Control: ctrl,
		Knots:   e.nums(40),
		Weights: e.nums(41),
	}
	if s.Degree == 0 {
		s.Degree = 3
	}
	return curve.SampleN(s, SplineSegments)
}
