package gcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/lasermx/coord"
)

func runAll(t *testing.T, vm *VM, src string) {
	t.Helper()
	for _, b := range MustParse(src) {
		require.NoError(t, vm.Run(b))
	}
}

func TestVM_Run(t *testing.T) {
	vm := NewVM()
	runAll(t, vm, `
		G90
		G21
		G0 X1.5 Y2
		M3 S800
		G1 X10 Y-4 F1000
	`)

	assert.Equal(t, coord.Pt(10, -4), vm.MPos())
	assert.True(t, vm.ToolOn())
	assert.Equal(t, 800.0, vm.Power())
	assert.Equal(t, 1000.0, vm.Feed())

	runAll(t, vm, "M5")
	assert.False(t, vm.ToolOn())
}

func TestVM_Relative(t *testing.T) {
	vm := NewVM()
	runAll(t, vm, `
		G0 X1 Y1
		G91
		G0 X1 Y1
		G1 X-3
	`)
	assert.Equal(t, coord.Pt(-1, 2), vm.MPos())
}

func TestVM_Inches(t *testing.T) {
	vm := NewVM()
	runAll(t, vm, "G20\nG0 X1 Y2")
	assert.InDelta(t, 25.4, vm.MPos().X, 1e-9)
	assert.InDelta(t, 50.8, vm.MPos().Y, 1e-9)
}

func TestVM_Unsupported(t *testing.T) {
	vm := NewVM()
	assert.Error(t, vm.Run(MustParse("G2 X1 Y1 I1 J0")[0]))
	assert.Error(t, vm.Run(Block{{W: 'X', Arg: 1}, {W: 'X', Arg: 2}}))
}
