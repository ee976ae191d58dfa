package groundmotion

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"
)

// Parse reads a two-column record of time in seconds and acceleration in g,
// converting accelerations to m/s² with gravity. Columns may be separated by
// whitespace or commas. Blank lines and lines starting with # are skipped.
func Parse(r io.Reader, gravity float64) (*Record, error) {
	var time, accel []float64

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || unicode.IsSpace(r)
		})
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: expected time and acceleration, got %q", lineNo, line)
		}

		t, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid time %q: %w", lineNo, fields[0], err)
		}
		a, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid acceleration %q: %w", lineNo, fields[1], err)
		}
		time = append(time, t)
		accel = append(accel, a)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading record: %w", err)
	}

	return FromG(time, accel, gravity)
}

// ParseFile opens path and parses it with Parse.
func ParseFile(path string, gravity float64) (*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open record: %w", err)
	}
	defer f.Close()

	rec, err := Parse(f, gravity)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rec, nil
}
