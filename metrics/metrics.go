package metrics

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	EventsFile = "metrics.jsonl"
	PlotFile   = "curves.png"
	ChartFile  = "curves.html"
)

// Scalar is one recorded metric value.
type Scalar struct {
	Tag      string    `json:"tag"`
	Step     int       `json:"step"`
	Value    float64   `json:"value"`
	WallTime time.Time `json:"wall_time"`
}

// Writer appends scalars to a JSON lines file and keeps them in memory
// for the learning-curve charts rendered on Close.
type Writer struct {
	dir   string
	runID string
	f     *os.File
	w     *bufio.Writer
	enc   *json.Encoder

	scalars map[string][]Scalar
	mutex   sync.Mutex
}

// NewWriter opens <dir>/metrics.jsonl for appending.
func NewWriter(dir, runID string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create metrics directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, EventsFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open metrics file: %w", err)
	}
	w := bufio.NewWriter(f)
	return &Writer{
		dir:     dir,
		runID:   runID,
		f:       f,
		w:       w,
		enc:     json.NewEncoder(w),
		scalars: make(map[string][]Scalar),
	}, nil
}

// AddScalar records value for tag at step.
func (w *Writer) AddScalar(tag string, value float64, step int) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	s := Scalar{Tag: tag, Step: step, Value: value, WallTime: time.Now()}
	w.scalars[tag] = append(w.scalars[tag], s)
	if err := w.enc.Encode(s); err != nil {
		return fmt.Errorf("failed to write scalar: %w", err)
	}
	return w.w.Flush()
}

// Scalars returns the values recorded for tag in insertion order.
func (w *Writer) Scalars(tag string) []Scalar {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return append([]Scalar(nil), w.scalars[tag]...)
}

// Tags returns every recorded tag, sorted.
func (w *Writer) Tags() []string {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	tags := make([]string, 0, len(w.scalars))
	for tag := range w.scalars {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Close flushes the events file and renders the learning curves.
func (w *Writer) Close() error {
	if err := w.w.Flush(); err != nil {
		w.f.Close()
		return err
	}
	if err := w.f.Close(); err != nil {
		return err
	}

	series := make(map[string][]Scalar)
	for _, tag := range w.Tags() {
		series[tag] = w.Scalars(tag)
	}
	if len(series) == 0 {
		return nil
	}
	if err := savePlot(filepath.Join(w.dir, PlotFile), series); err != nil {
		return fmt.Errorf("failed to render plot: %w", err)
	}
	if err := saveChart(filepath.Join(w.dir, ChartFile), w.runID, series); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

// ReadEvents loads every scalar from a metrics.jsonl file.
func ReadEvents(path string) ([]Scalar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Scalar
	dec := json.NewDecoder(f)
	for dec.More() {
		var s Scalar
		if err := dec.Decode(&s); err != nil {
			return nil, fmt.Errorf("failed to decode scalar: %w", err)
		}
		out = append(out, s)
	}
	return out, nil
}
