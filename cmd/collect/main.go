// Command collect rolls out a behaviour policy and writes an offline
// dataset that the pretrainer can load.
package main

import (
	"flag"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"dynamics-pretrain/dataset"
	"dynamics-pretrain/env"
)

func main() {
	envID := flag.String("env", "pendulum-medium-v0", "Dataset id ("+strings.Join(env.IDs(), ", ")+")")
	size := flag.Int("size", 100000, "Number of transitions to collect")
	seed := flag.Uint64("seed", 0, "Seed for the environment and the behaviour policy")
	dataDir := flag.String("data_dir", "data", "Output directory")
	out := flag.String("out", "", "Output file (overrides data_dir)")
	format := flag.String("format", "gob", "Output format: gob or csv")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	path, err := outputPath(*out, *dataDir, *envID, *format)
	if err != nil {
		logger.WithError(err).Fatal("Invalid output")
	}
	if *size <= 0 {
		logger.WithField("size", *size).Fatal("Size must be positive")
	}

	d, err := dataset.Generate(*envID, *size, *seed)
	if err != nil {
		logger.WithError(err).Fatal("Collection failed")
	}

	if *format == "csv" {
		err = d.SaveCSV(path)
	} else {
		err = d.Save(path)
	}
	if err != nil {
		logger.WithError(err).Fatal("Failed to save dataset")
	}

	fields := logrus.Fields{
		"env":         d.Env,
		"transitions": d.Len(),
		"path":        path,
	}
	for k, v := range returnStats(d.EpisodeReturns()) {
		fields[k] = v
	}
	logger.WithFields(fields).Info("Dataset written")
}

// returnStats summarizes episode returns. The spread is the population
// std, so a single episode reports 0.
func returnStats(returns []float64) logrus.Fields {
	if len(returns) == 0 {
		return logrus.Fields{}
	}
	mean, std := returns[0], 0.0
	if len(returns) > 1 {
		mean, std = stat.PopMeanStdDev(returns, nil)
	}
	return logrus.Fields{
		"episodes":    len(returns),
		"return_mean": mean,
		"return_std":  std,
		"return_min":  floats.Min(returns),
		"return_max":  floats.Max(returns),
	}
}

// outputPath resolves where the dataset goes, defaulting to
// <data_dir>/<env>.<format>.
func outputPath(out, dataDir, envID, format string) (string, error) {
	if format != "gob" && format != "csv" {
		return "", fmt.Errorf("unknown format %q", format)
	}
	if out == "" {
		if format == "gob" {
			return dataset.Path(dataDir, envID), nil
		}
		return dataset.CSVPath(dataDir, envID), nil
	}
	if ext := strings.TrimPrefix(filepath.Ext(out), "."); ext != format {
		return "", fmt.Errorf("output %s does not match format %s", out, format)
	}
	return out, nil
}
