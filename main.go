package main

import (
	"flag"
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	cfg := DefaultConfig()
	hidden := intList(cfg.Hidden)

	flag.StringVar(&cfg.Env, "env", cfg.Env, "Environment and dataset id, e.g. pendulum-medium-v0")
	flag.Int64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed")
	flag.IntVar(&cfg.NumIters, "num_iters", cfg.NumIters, "Number of training iterations")
	flag.IntVar(&cfg.BatchSize, "batch_size", cfg.BatchSize, "Mini-batch size")
	flag.Float64Var(&cfg.LR, "lr", cfg.LR, "Adam learning rate")
	flag.BoolVar(&cfg.NoNormalize, "no_normalize", cfg.NoNormalize, "Disable state normalization")
	flag.Float64Var(&cfg.EvalData, "eval_data", cfg.EvalData, "Proportion of data used for evaluation")
	flag.Var(&hidden, "hidden", "Comma separated hidden layer sizes")
	flag.IntVar(&cfg.LogInterval, "log_interval", cfg.LogInterval, "Steps between metric logs")
	flag.StringVar(&cfg.DataDir, "data_dir", cfg.DataDir, "Directory holding <env>.gob datasets")
	flag.IntVar(&cfg.DatasetSize, "dataset_size", cfg.DatasetSize, "Transitions to collect when a dataset is missing")
	flag.StringVar(&cfg.RunRoot, "run_root", cfg.RunRoot, "Root directory for run outputs")
	flag.StringVar(&cfg.CheckpointDir, "checkpoint_dir", cfg.CheckpointDir, "Directory for the final checkpoint")
	flag.StringVar(&cfg.SrcDir, "src_dir", cfg.SrcDir, "Source tree to snapshot into the run directory (empty to skip)")
	logLevel := flag.String("log_level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()
	cfg.Hidden = hidden

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(os.Stderr)
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logger.WithError(err).Fatal("Invalid log level")
	}
	logger.SetLevel(level)

	if _, err := Train(cfg, logger); err != nil {
		logger.WithError(err).Fatal("Pretraining failed")
	}
}
