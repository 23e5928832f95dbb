package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// CSV layout: s0..s{n-1}, a0..a{m-1}, ns0..ns{n-1}, reward, terminal[, timeout]

func loadCSV(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()
	return readCSV(f)
}

func readCSV(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	cols, err := parseHeader(header)
	if err != nil {
		return nil, err
	}

	d := &Dataset{ObservationDim: len(cols.obs), ActionDim: len(cols.act)}
	if cols.timeout >= 0 {
		d.Timeouts = []bool{}
	}

	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}

		vals := make([]float64, len(rec))
		for i, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: csv line %d column %q: %v", ErrInvalid, line, header[i], err)
			}
			vals[i] = v
		}

		d.Observations = append(d.Observations, pick(vals, cols.obs))
		d.Actions = append(d.Actions, pick(vals, cols.act))
		d.NextObservations = append(d.NextObservations, pick(vals, cols.next))
		d.Rewards = append(d.Rewards, vals[cols.reward])
		d.Terminals = append(d.Terminals, vals[cols.terminal] != 0)
		if cols.timeout >= 0 {
			d.Timeouts = append(d.Timeouts, vals[cols.timeout] != 0)
		}
	}
	return d, nil
}

// csvColumns maps each field to its column in the file. obs[i] is the
// column of s<i>, and so on.
type csvColumns struct {
	obs, act, next            []int
	reward, terminal, timeout int
}

func parseHeader(header []string) (csvColumns, error) {
	cols := csvColumns{reward: -1, terminal: -1, timeout: -1}
	obs, act, next := map[int]int{}, map[int]int{}, map[int]int{}
	for i, col := range header {
		col = strings.TrimSpace(col)
		var (
			group map[int]int
			idx   string
		)
		switch {
		case col == "reward":
			cols.reward = i
			continue
		case col == "terminal":
			cols.terminal = i
			continue
		case col == "timeout":
			cols.timeout = i
			continue
		case strings.HasPrefix(col, "ns"):
			group, idx = next, col[2:]
		case strings.HasPrefix(col, "s"):
			group, idx = obs, col[1:]
		case strings.HasPrefix(col, "a"):
			group, idx = act, col[1:]
		default:
			return cols, fmt.Errorf("%w: unknown csv column %q", ErrInvalid, col)
		}
		n, err := strconv.Atoi(idx)
		if err != nil || n < 0 {
			return cols, fmt.Errorf("%w: unknown csv column %q", ErrInvalid, col)
		}
		if _, dup := group[n]; dup {
			return cols, fmt.Errorf("%w: duplicate csv column %q", ErrInvalid, col)
		}
		group[n] = i
	}

	var err error
	if cols.obs, err = ordered(obs, "s"); err != nil {
		return cols, err
	}
	if cols.act, err = ordered(act, "a"); err != nil {
		return cols, err
	}
	if cols.next, err = ordered(next, "ns"); err != nil {
		return cols, err
	}
	if len(cols.obs) == 0 || len(cols.act) == 0 || len(cols.obs) != len(cols.next) || cols.reward < 0 || cols.terminal < 0 {
		return cols, fmt.Errorf("%w: csv header %v", ErrInvalid, header)
	}
	return cols, nil
}

// ordered turns an index->column map into a slice, requiring indices 0..n-1.
func ordered(group map[int]int, prefix string) ([]int, error) {
	out := make([]int, len(group))
	for i := range out {
		col, ok := group[i]
		if !ok {
			return nil, fmt.Errorf("%w: csv column %s%d missing", ErrInvalid, prefix, i)
		}
		out[i] = col
	}
	return out, nil
}

func pick(vals []float64, cols []int) []float64 {
	out := make([]float64, len(cols))
	for i, c := range cols {
		out[i] = vals[c]
	}
	return out
}

// SaveCSV writes the dataset in the layout Load accepts.
func (d *Dataset) SaveCSV(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create dataset directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dataset file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := make([]string, 0, 2*d.ObservationDim+d.ActionDim+3)
	for i := 0; i < d.ObservationDim; i++ {
		header = append(header, "s"+strconv.Itoa(i))
	}
	for i := 0; i < d.ActionDim; i++ {
		header = append(header, "a"+strconv.Itoa(i))
	}
	for i := 0; i < d.ObservationDim; i++ {
		header = append(header, "ns"+strconv.Itoa(i))
	}
	header = append(header, "reward", "terminal", "timeout")
	if err := w.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))
	for i := 0; i < d.Len(); i++ {
		row = row[:0]
		for _, v := range d.Observations[i] {
			row = append(row, formatFloat(v))
		}
		for _, v := range d.Actions[i] {
			row = append(row, formatFloat(v))
		}
		for _, v := range d.NextObservations[i] {
			row = append(row, formatFloat(v))
		}
		row = append(row, formatFloat(d.Rewards[i]), formatBool(d.Terminals[i]), formatBool(d.Timeouts != nil && d.Timeouts[i]))
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
