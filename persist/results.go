// Package persist reads and writes simulation results and obstacle layouts as
// whitespace-delimited text.
package persist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/example/walker_sim/core"
)

var (
	// ErrInvalidSize is returned when a declared world size is not positive or exceeds
	// core.MaxGridSize.
	ErrInvalidSize = errors.New("persist: invalid world size")
	// ErrSizeMismatch is returned when matrix dimensions disagree with the declared size.
	ErrSizeMismatch = errors.New("persist: matrix does not match declared size")
	// ErrMalformed is returned for unparsable or missing values.
	ErrMalformed = errors.New("persist: malformed file")
)

// maxLine bounds a single line; a statistics row holds 2×size integers.
const maxLine = 64 << 20

// Results is everything needed to resume a simulation.
type Results struct {
	// Replications is the number of completed replications the statistics cover.
	Replications  int
	MaxSteps      int
	Probabilities core.Probabilities
	UseObstacles  bool
	Grid          *core.Grid
}

// Size returns the world dimension.
func (r *Results) Size() int {
	if r == nil || r.Grid == nil {
		return 0
	}
	return r.Grid.Size
}

// Save writes r to path through a temporary file so a failed save never leaves a
// truncated result behind.
func Save(path string, r *Results) error {
	if r == nil || r.Grid == nil {
		return fmt.Errorf("persist: nothing to save")
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if err := Encode(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("save %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("save %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// Encode writes the text form of r.
func Encode(w io.Writer, r *Results) error {
	bw := bufio.NewWriter(w)
	n := r.Grid.Size
	p := r.Probabilities
	fmt.Fprintf(bw, "%d\n%d\n%d\n", n, r.Replications, r.MaxSteps)
	fmt.Fprintf(bw, "%s %s %s %s\n", formatFloat(p.Up), formatFloat(p.Down), formatFloat(p.Left), formatFloat(p.Right))
	fmt.Fprintf(bw, "%d\n", boolInt(r.UseObstacles))

	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			if x > 0 {
				bw.WriteByte(' ')
			}
			bw.WriteString(strconv.Itoa(boolInt(r.Grid.At(x, y).Obstacle)))
		}
		bw.WriteByte('\n')
	}
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			if x > 0 {
				bw.WriteByte(' ')
			}
			c := r.Grid.At(x, y)
			bw.WriteString(strconv.FormatInt(c.TotalSteps, 10))
			bw.WriteByte(' ')
			bw.WriteString(strconv.FormatInt(c.Successes, 10))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// Load reads a results file. Nothing is returned unless the whole file validates.
func Load(path string) (*Results, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	defer f.Close()
	r, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return r, nil
}

// Decode parses the text form produced by Encode.
func Decode(rd io.Reader) (*Results, error) {
	lines := newLineReader(rd)

	size, err := lines.int("world size")
	if err != nil {
		return nil, err
	}
	if size <= 0 || size > core.MaxGridSize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, size)
	}
	reps, err := lines.int("replications")
	if err != nil {
		return nil, err
	}
	if reps < 0 || reps > math.MaxInt32 {
		return nil, fmt.Errorf("%w: replications %d out of range", ErrMalformed, reps)
	}
	maxSteps, err := lines.int("max steps")
	if err != nil {
		return nil, err
	}
	if maxSteps <= 0 {
		return nil, fmt.Errorf("%w: max steps must be positive, got %d", ErrMalformed, maxSteps)
	}

	probFields, err := lines.fields("probabilities")
	if err != nil {
		return nil, err
	}
	if len(probFields) != 4 {
		return nil, fmt.Errorf("%w: expected 4 probabilities, got %d", ErrMalformed, len(probFields))
	}
	var pv [4]float64
	for i, f := range probFields {
		if pv[i], err = strconv.ParseFloat(f, 64); err != nil {
			return nil, fmt.Errorf("%w: probability %q", ErrMalformed, f)
		}
	}
	useObstacles, err := lines.int("obstacles flag")
	if err != nil {
		return nil, err
	}

	grid, err := core.NewGrid(size)
	if err != nil {
		return nil, err
	}
	for y := 0; y < size; y++ {
		row, err := lines.ints(fmt.Sprintf("obstacle row %d", y))
		if err != nil {
			return nil, err
		}
		if len(row) != size {
			return nil, fmt.Errorf("%w: obstacle row %d has %d columns, want %d", ErrSizeMismatch, y, len(row), size)
		}
		for x, v := range row {
			grid.SetObstacle(x, y, v != 0)
		}
	}
	for y := 0; y < size; y++ {
		row, err := lines.ints(fmt.Sprintf("statistics row %d", y))
		if err != nil {
			return nil, err
		}
		if len(row) != 2*size {
			return nil, fmt.Errorf("%w: statistics row %d has %d values, want %d", ErrSizeMismatch, y, len(row), 2*size)
		}
		for x := 0; x < size; x++ {
			total, hits := row[2*x], row[2*x+1]
			if total < 0 || hits < 0 {
				return nil, fmt.Errorf("%w: negative statistics at (%d,%d)", ErrMalformed, x, y)
			}
			c := grid.At(x, y)
			c.TotalSteps = total
			c.Successes = hits
		}
	}

	return &Results{
		Replications:  reps,
		MaxSteps:      maxSteps,
		Probabilities: core.Probabilities{Up: pv[0], Down: pv[1], Left: pv[2], Right: pv[3]},
		UseObstacles:  useObstacles != 0,
		Grid:          grid,
	}, nil
}

type lineReader struct {
	sc *bufio.Scanner
}

func newLineReader(rd io.Reader) *lineReader {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	return &lineReader{sc: sc}
}

// fields returns the next non-blank line split on whitespace.
func (l *lineReader) fields(what string) ([]string, error) {
	for l.sc.Scan() {
		f := strings.Fields(l.sc.Text())
		if len(f) > 0 {
			return f, nil
		}
	}
	if err := l.sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrMalformed, what, err)
	}
	if strings.Contains(what, "row") {
		return nil, fmt.Errorf("%w: missing %s", ErrSizeMismatch, what)
	}
	return nil, fmt.Errorf("%w: missing %s", ErrMalformed, what)
}

func (l *lineReader) ints(what string) ([]int64, error) {
	f, err := l.fields(what)
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(f))
	for i, s := range f {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s value %q", ErrMalformed, what, s)
		}
		out[i] = v
	}
	return out, nil
}

func (l *lineReader) int(what string) (int, error) {
	vs, err := l.ints(what)
	if err != nil {
		return 0, err
	}
	if len(vs) != 1 {
		return 0, fmt.Errorf("%w: %s should be a single value", ErrMalformed, what)
	}
	return int(vs[0]), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
