package dataset

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/exp/rand"

	"dynamics-pretrain/env"
)

// ErrInvalid marks malformed dataset files and inconsistent columns.
var ErrInvalid = errors.New("invalid dataset")

// Dataset is a fixed set of environment transitions stored column-wise.
type Dataset struct {
	Env              string
	ObservationDim   int
	ActionDim        int
	Observations     [][]float64
	Actions          [][]float64
	NextObservations [][]float64
	Rewards          []float64
	Terminals        []bool
	Timeouts         []bool
}

// Len returns the number of transitions.
func (d *Dataset) Len() int {
	return len(d.Observations)
}

// Validate checks that every column has one row per transition and that
// rows have the declared dimensions.
func (d *Dataset) Validate() error {
	n := d.Len()
	if n == 0 {
		return fmt.Errorf("%w: no transitions", ErrInvalid)
	}
	if d.ObservationDim <= 0 || d.ActionDim <= 0 {
		return fmt.Errorf("%w: dims %d/%d", ErrInvalid, d.ObservationDim, d.ActionDim)
	}
	for name, l := range map[string]int{
		"actions":           len(d.Actions),
		"next_observations": len(d.NextObservations),
		"rewards":           len(d.Rewards),
		"terminals":         len(d.Terminals),
	} {
		if l != n {
			return fmt.Errorf("%w: %s has %d rows, want %d", ErrInvalid, name, l, n)
		}
	}
	if d.Timeouts != nil && len(d.Timeouts) != n {
		return fmt.Errorf("%w: timeouts has %d rows, want %d", ErrInvalid, len(d.Timeouts), n)
	}
	for i := 0; i < n; i++ {
		if len(d.Observations[i]) != d.ObservationDim || len(d.NextObservations[i]) != d.ObservationDim {
			return fmt.Errorf("%w: row %d observation width", ErrInvalid, i)
		}
		if len(d.Actions[i]) != d.ActionDim {
			return fmt.Errorf("%w: row %d action width", ErrInvalid, i)
		}
	}
	return nil
}

// Path returns the gob file that holds the dataset for envID under dir.
func Path(dir, envID string) string {
	return filepath.Join(dir, envID+".gob")
}

// CSVPath returns the csv file for envID under dir.
func CSVPath(dir, envID string) string {
	return filepath.Join(dir, envID+".csv")
}

// Find returns the dataset file for envID under dir, preferring gob over
// csv. The error wraps fs.ErrNotExist when neither exists.
func Find(dir, envID string) (string, error) {
	for _, path := range []string{Path(dir, envID), CSVPath(dir, envID)} {
		_, err := os.Stat(path)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("no dataset for %s in %s: %w", envID, dir, fs.ErrNotExist)
}

// Save writes the dataset as gob, creating the parent directory.
func (d *Dataset) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create dataset directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dataset file: %w", err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(d); err != nil {
		return fmt.Errorf("failed to encode dataset: %w", err)
	}
	return f.Close()
}

// Load reads a dataset from a .gob or .csv file and validates it.
func Load(path string) (*Dataset, error) {
	var (
		d   *Dataset
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gob":
		d, err = loadGob(path)
	case ".csv":
		d, err = loadCSV(path)
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q", ErrInvalid, filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	if d.Env == "" {
		d.Env = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

func loadGob(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	var d Dataset
	if err := gob.NewDecoder(f).Decode(&d); err != nil {
		return nil, fmt.Errorf("failed to decode dataset: %w", err)
	}
	return &d, nil
}

// Collect rolls out p in e until size transitions are recorded. Episodes
// that hit the time limit are marked as timeouts, not terminals.
func Collect(e env.Env, p env.Policy, size int) *Dataset {
	spec := e.Spec()
	d := &Dataset{
		Env:              spec.ID,
		ObservationDim:   spec.ObservationDim,
		ActionDim:        spec.ActionDim,
		Observations:     make([][]float64, 0, size),
		Actions:          make([][]float64, 0, size),
		NextObservations: make([][]float64, 0, size),
		Rewards:          make([]float64, 0, size),
		Terminals:        make([]bool, 0, size),
		Timeouts:         make([]bool, 0, size),
	}

	obs := e.Reset()
	steps := 0
	for d.Len() < size {
		action := p.Act(obs)
		next, reward, terminal := e.Step(action)
		steps++
		timeout := !terminal && steps >= spec.MaxEpisodeSteps

		d.Observations = append(d.Observations, obs)
		d.Actions = append(d.Actions, action)
		d.NextObservations = append(d.NextObservations, next)
		d.Rewards = append(d.Rewards, reward)
		d.Terminals = append(d.Terminals, terminal)
		d.Timeouts = append(d.Timeouts, timeout)

		if terminal || timeout {
			obs = e.Reset()
			steps = 0
		} else {
			obs = next
		}
	}
	return d
}

// EpisodeReturns sums rewards per episode. A trailing unfinished episode
// is included.
func (d *Dataset) EpisodeReturns() []float64 {
	var returns []float64
	total := 0.0
	open := false
	for i, r := range d.Rewards {
		total += r
		open = true
		if d.Terminals[i] || (d.Timeouts != nil && d.Timeouts[i]) {
			returns = append(returns, total)
			total = 0
			open = false
		}
	}
	if open {
		returns = append(returns, total)
	}
	return returns
}

// Generate makes the environment and behaviour policy for envID from seed
// and collects size transitions.
func Generate(envID string, size int, seed uint64) (*Dataset, error) {
	rng := rand.New(rand.NewSource(seed))
	e, err := env.Make(envID, rng)
	if err != nil {
		return nil, err
	}
	p, err := env.NewPolicy(envID, rng)
	if err != nil {
		return nil, err
	}
	return Collect(e, p, size), nil
}
