package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Config is the run configuration. Field tags are the keys written to
// args.json.
type Config struct {
	Env         string  `json:"env"`
	Seed        int64   `json:"seed"`
	NumIters    int     `json:"num_iters"`
	BatchSize   int     `json:"batch_size"`
	LR          float64 `json:"lr"`
	NoNormalize bool    `json:"no_normalize"`
	EvalData    float64 `json:"eval_data"`

	Hidden        []int  `json:"hidden"`
	LogInterval   int    `json:"log_interval"`
	DataDir       string `json:"data_dir"`
	DatasetSize   int    `json:"dataset_size"`
	RunRoot       string `json:"run_root"`
	CheckpointDir string `json:"checkpoint_dir"`
	SrcDir        string `json:"src_dir"`
	RunID         string `json:"run_id"`
}

// DefaultConfig mirrors the flag defaults.
func DefaultConfig() Config {
	return Config{
		Env:           "pendulum-medium-v0",
		Seed:          0,
		NumIters:      500000,
		BatchSize:     256,
		LR:            1e-3,
		EvalData:      0.0,
		Hidden:        []int{256, 256},
		LogInterval:   5000,
		DataDir:       "data",
		DatasetSize:   100000,
		RunRoot:       "runs",
		CheckpointDir: "SCAS_dynamics",
		SrcDir:        ".",
	}
}

// Normalize reports whether states are rescaled.
func (c Config) Normalize() bool {
	return !c.NoNormalize
}

// Validate rejects values the trainer cannot run with.
func (c Config) Validate() error {
	if c.Env == "" {
		return errors.New("env is required")
	}
	if c.NumIters < 0 {
		return fmt.Errorf("num_iters must not be negative, got %d", c.NumIters)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.LR <= 0 {
		return fmt.Errorf("lr must be positive, got %v", c.LR)
	}
	if c.EvalData < 0 || c.EvalData >= 1 {
		return fmt.Errorf("eval_data must be in [0, 1), got %v", c.EvalData)
	}
	if c.LogInterval <= 0 {
		return fmt.Errorf("log_interval must be positive, got %d", c.LogInterval)
	}
	if c.DatasetSize <= 0 {
		return fmt.Errorf("dataset_size must be positive, got %d", c.DatasetSize)
	}
	if len(c.Hidden) == 0 {
		return errors.New("at least one hidden layer is required")
	}
	for _, h := range c.Hidden {
		if h <= 0 {
			return fmt.Errorf("hidden sizes must be positive, got %v", c.Hidden)
		}
	}
	return nil
}

// intList is a flag.Value for comma separated integers.
type intList []int

func (l *intList) String() string {
	parts := make([]string, len(*l))
	for i, v := range *l {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func (l *intList) Set(s string) error {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return fmt.Errorf("invalid layer size %q", part)
		}
		out = append(out, v)
	}
	*l = out
	return nil
}
