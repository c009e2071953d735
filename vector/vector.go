// Package vector loads 2-D geometry from vector drawing files.
package vector

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mastercactapus/lasermx/coord"
)

// UnsupportedFormatError is returned by Load for unknown file extensions.
type UnsupportedFormatError struct {
	Path string
	Ext  string
}

func (e UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file format '%s' for '%s'", e.Ext, e.Path)
}

// Load reads polylines from an .svg or .dxf file, selected by extension.
//
// The format is checked before the file is opened.
func Load(path string, samplesPerUnit float64) ([]coord.Polyline, error) {
	ext := strings.ToLower(filepath.Ext(path))
	var load func(io.Reader, float64) ([]coord.Polyline, error)
	switch ext {
	case ".svg":
		load = LoadSVG
	case ".dxf":
		load = LoadDXF
	default:
		return nil, UnsupportedFormatError{Path: path, Ext: ext}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	res, err := load(f, samplesPerUnit)
	if err != nil {
		return nil, fmt.Errorf("load '%s': %w", path, err)
	}
	return res, nil
}
