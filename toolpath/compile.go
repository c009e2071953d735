// Package toolpath turns polylines into a laser G-code program.
package toolpath

import (
	"github.com/mastercactapus/lasermx/coord"
	"github.com/mastercactapus/lasermx/gcode"
)

// Options configure the generated program.
type Options struct {
	// Feed is the cutting feed rate in mm/min.
	Feed float64

	// Power is the laser power (S word) used while cutting.
	Power int
}

// DefaultOptions are the settings used when none are given.
var DefaultOptions = Options{Feed: 1000, Power: 1000}

// precision is fixed by what the controller parser accepts.
var precision = gcode.Precision{
	'G': 0,
	'M': 0,
	'S': 0,
	'X': 3,
	'Y': 3,
	'F': 2,
}

// Setup is emitted once at the start of every program: absolute positioning, millimeters.
var Setup = []gcode.Block{
	{{W: 'G', Arg: 90}},
	{{W: 'G', Arg: 21}},
}

// Compile converts polylines into an ordered list of commands.
//
// Each non-empty polyline becomes a rapid move to its first point, tool on,
// one cut per distinct point and tool off. Consecutive duplicate points are
// compared exactly and produce no move.
func Compile(polys []coord.Polyline, opt Options) []string {
	blocks := Blocks(polys, opt)
	res := make([]string, len(blocks))
	for i, b := range blocks {
		res[i] = b.Format(precision)
	}
	return res
}

// Blocks is like Compile but returns the unformatted blocks.
func Blocks(polys []coord.Polyline, opt Options) []gcode.Block {
	res := make([]gcode.Block, 0, len(Setup)+len(polys)*4)
	for _, b := range Setup {
		res = append(res, b.Clone())
	}

	for _, pts := range polys {
		if len(pts) == 0 {
			continue
		}
		first := pts[0]
		res = append(res,
			gcode.Block{{W: 'G', Arg: 0}, {W: 'X', Arg: first.X}, {W: 'Y', Arg: first.Y}},
			gcode.Block{{W: 'M', Arg: 3}, {W: 'S', Arg: float64(opt.Power)}},
		)

		last := first
		for _, p := range pts[1:] {
			if p.Equal(last) {
				continue
			}
			res = append(res, gcode.Block{
				{W: 'G', Arg: 1},
				{W: 'X', Arg: p.X},
				{W: 'Y', Arg: p.Y},
				{W: 'F', Arg: opt.Feed},
			})
			last = p
		}

		res = append(res, gcode.Block{{W: 'M', Arg: 5}})
	}

	return res
}
