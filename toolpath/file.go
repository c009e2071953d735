package toolpath

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Write writes one command per line, right-trimmed and newline terminated.
func Write(w io.Writer, commands []string) error {
	bw := bufio.NewWriter(w)
	for _, c := range commands {
		if _, err := bw.WriteString(strings.TrimRight(c, " \t\r\n") + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes commands to the named file, replacing it.
func WriteFile(name string, commands []string) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	err = Write(f, commands)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write gcode '%s': %w", name, err)
	}
	return nil
}
