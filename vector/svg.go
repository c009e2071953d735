package vector

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/mastercactapus/lasermx/coord"
	"github.com/mastercactapus/lasermx/curve"
)

// containers whose children are never drawn directly
var svgSkip = map[string]bool{
	"defs":     true,
	"clipPath": true,
	"mask":     true,
	"symbol":   true,
	"pattern":  true,
	"marker":   true,
	"metadata": true,
	"title":    true,
	"desc":     true,
	"style":    true,
	"text":     true,
}

// LoadSVG reads an SVG document and flattens every drawable element
// into polylines. Each subpath of a <path> becomes its own polyline.
func LoadSVG(r io.Reader, samplesPerUnit float64) ([]coord.Polyline, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false

	var res []coord.Polyline
	stack := []coord.Affine{coord.Identity}
	seenRoot := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse svg: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			if name == "svg" {
				seenRoot = true
			}
			if svgSkip[name] {
				if err := dec.Skip(); err != nil {
					return nil, fmt.Errorf("parse svg: %w", err)
				}
				continue
			}
			attr := attrMap(t.Attr)
			m := stack[len(stack)-1]
			if tr, ok := attr["transform"]; ok {
				own, err := parseTransform(tr)
				if err != nil {
					return nil, fmt.Errorf("parse svg <%s>: %w", name, err)
				}
				m = m.Mul(own)
			}
			stack = append(stack, m)

			curves, err := elementCurves(name, attr)
			if err != nil {
				return nil, fmt.Errorf("parse svg <%s>: %w", name, err)
			}
			for _, c := range curves {
				pts := curve.Sample(curve.Transform(c, m), samplesPerUnit)
				if len(pts) > 0 {
					res = append(res, pts)
				}
			}
		case xml.EndElement:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if !seenRoot {
		return nil, errors.New("parse svg: no <svg> element")
	}

	return res, nil
}

func attrMap(attrs []xml.Attr) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[a.Name.Local] = strings.TrimSpace(a.Value)
	}
	return m
}

// parseLength reads a plain or px suffixed number; a missing value is 0.
func parseLength(s string) (float64, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "px")
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func lengths(attr map[string]string, names ...string) ([]float64, error) {
	res := make([]float64, len(names))
	for i, n := range names {
		v, err := parseLength(attr[n])
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", n, err)
		}
		res[i] = v
	}
	return res, nil
}

func isListSep(r rune) bool {
	switch r {
	case ',', ' ', '\t', '\n', '\r':
		return true
	}
	return false
}

func parseNumbers(s string) ([]float64, error) {
	fields := strings.FieldsFunc(s, isListSep)
	res := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		res[i] = v
	}
	return res, nil
}

func parsePoints(s string) (coord.Polyline, error) {
	v, err := parseNumbers(s)
	if err != nil {
		return nil, err
	}
	// an odd trailing coordinate is ignored, like browsers do
	res := make(coord.Polyline, 0, len(v)/2)
	for i := 0; i+1 < len(v); i += 2 {
		res = append(res, coord.Pt(v[i], v[i+1]))
	}
	return res, nil
}

func elementCurves(name string, attr map[string]string) ([]curve.Curve, error) {
	switch name {
	case "path":
		subs, err := parsePathData(attr["d"])
		if err != nil {
			return nil, err
		}
		res := make([]curve.Curve, len(subs))
		for i, s := range subs {
			res[i] = curve.NewPath(s...)
		}
		return res, nil
	case "line":
		v, err := lengths(attr, "x1", "y1", "x2", "y2")
		if err != nil {
			return nil, err
		}
		return []curve.Curve{curve.Line{P0: coord.Pt(v[0], v[1]), P1: coord.Pt(v[2], v[3])}}, nil
	case "polyline", "polygon":
		pts, err := parsePoints(attr["points"])
		if err != nil {
			return nil, fmt.Errorf("attribute points: %w", err)
		}
		if len(pts) == 0 {
			return nil, nil
		}
		if name == "polygon" && !pts.Closed() {
			pts = append(pts, pts[0])
		}
		return []curve.Curve{curve.Vertices(pts)}, nil
	case "rect":
		v, err := lengths(attr, "x", "y", "width", "height")
		if err != nil {
			return nil, err
		}
		x, y, w, h := v[0], v[1], v[2], v[3]
		if w <= 0 || h <= 0 {
			return nil, nil
		}
		return []curve.Curve{curve.Vertices{
			coord.Pt(x, y), coord.Pt(x+w, y), coord.Pt(x+w, y+h), coord.Pt(x, y+h), coord.Pt(x, y),
		}}, nil
	case "circle":
		v, err := lengths(attr, "cx", "cy", "r")
		if err != nil {
			return nil, err
		}
		if v[2] <= 0 {
			return nil, nil
		}
		return []curve.Curve{curve.Circle(coord.Pt(v[0], v[1]), v[2])}, nil
	case "ellipse":
		v, err := lengths(attr, "cx", "cy", "rx", "ry")
		if err != nil {
			return nil, err
		}
		if v[2] <= 0 || v[3] <= 0 {
			return nil, nil
		}
		return []curve.Curve{curve.Arc{
			Center: coord.Pt(v[0], v[1]),
			Radii:  coord.Pt(v[2], v[3]),
			Sweep:  2 * math.Pi,
		}}, nil
	}
	return nil, nil
}

var transformRx = regexp.MustCompile(`([a-zA-Z]+)\s*\(([^)]*)\)`)

// parseTransform parses an SVG transform list into a single matrix.
func parseTransform(s string) (coord.Affine, error) {
	m := coord.Identity
	for _, match := range transformRx.FindAllStringSubmatch(s, -1) {
		v, err := parseNumbers(match[2])
		if err != nil {
			return m, fmt.Errorf("transform %s: %w", match[1], err)
		}
		n := len(v)

		var t coord.Affine
		switch {
		case match[1] == "matrix" && n == 6:
			copy(t[:], v)
		case match[1] == "translate" && n == 1:
			t = coord.Translate(v[0], 0)
		case match[1] == "translate" && n == 2:
			t = coord.Translate(v[0], v[1])
		case match[1] == "scale" && n == 1:
			t = coord.Scale(v[0], v[0])
		case match[1] == "scale" && n == 2:
			t = coord.Scale(v[0], v[1])
		case match[1] == "rotate" && n == 1:
			t = coord.Rotate(v[0])
		case match[1] == "rotate" && n == 3:
			t = coord.Translate(v[1], v[2]).Mul(coord.Rotate(v[0])).Mul(coord.Translate(-v[1], -v[2]))
		case match[1] == "skewX" && n == 1:
			t = coord.SkewX(v[0])
		case match[1] == "skewY" && n == 1:
			t = coord.SkewY(v[0])
		default:
			return m, fmt.Errorf("unsupported transform %s with %d arguments", match[1], n)
		}
		m = m.Mul(t)
	}
	return m, nil
}
