package persist

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/example/walker_sim/core"
)

// LoadObstacles reads an obstacles input file: the world size followed by size×size
// integers in row order, any non-zero value marking an obstacle. Line breaks are not
// significant.
func LoadObstacles(path string) (*core.Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("obstacles %s: %w", path, err)
	}
	defer f.Close()
	g, err := DecodeObstacles(f)
	if err != nil {
		return nil, fmt.Errorf("obstacles %s: %w", path, err)
	}
	return g, nil
}

// DecodeObstacles parses the obstacles format from rd.
func DecodeObstacles(rd io.Reader) (*core.Grid, error) {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	sc.Split(bufio.ScanWords)

	next := func() (int, bool, error) {
		if !sc.Scan() {
			return 0, false, sc.Err()
		}
		v, err := strconv.Atoi(sc.Text())
		if err != nil {
			return 0, false, fmt.Errorf("%w: token %q", ErrMalformed, sc.Text())
		}
		return v, true, nil
	}

	size, ok, err := next()
	if err != nil {
		return nil, err
	}
	if !ok || size <= 0 || size > core.MaxGridSize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, size)
	}
	g, err := core.NewGrid(size)
	if err != nil {
		return nil, err
	}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v, ok, err := next()
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("%w: matrix ends at [%d][%d] of %dx%d", ErrSizeMismatch, y, x, size, size)
			}
			g.SetObstacle(x, y, v != 0)
		}
	}
	return g, nil
}
