package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"dynamics-pretrain/buffer"
	"dynamics-pretrain/dataset"
	"dynamics-pretrain/dynamics"
	"dynamics-pretrain/env"
	"dynamics-pretrain/metrics"
	"dynamics-pretrain/rundir"
)

const (
	tagTrainLoss = "pretrain/train_loss"
	tagEvalLoss  = "pretrain/eval_loss"
	logFile      = "train.log"
)

// Result summarizes a finished run.
type Result struct {
	WorkDir        string
	CheckpointPath string
	TrainSize      int
	EvalSize       int
	NumParams      int
	TrainLoss      []metrics.Scalar
	EvalLoss       []metrics.Scalar
}

// Train runs dynamics pretraining for cfg and writes the run directory and
// the final checkpoint. base receives console logs; the same entries also
// go to train.log in the run directory.
func Train(cfg Config, base *logrus.Logger) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	spec, err := env.Lookup(cfg.Env)
	if err != nil {
		return nil, err
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.New().String()
	}

	// Run directory, log file and metrics sink
	workDir := rundir.WorkDir(cfg.RunRoot, "pretrain", cfg.Env, cfg.Normalize(), cfg.Seed)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(workDir, logFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()
	logger := teeLogger(base, f)

	writer, err := metrics.NewWriter(workDir, cfg.RunID)
	if err != nil {
		return nil, err
	}
	closed := false
	defer func() {
		if !closed {
			writer.Close()
		}
	}()

	if err := rundir.WriteArgs(workDir, cfg); err != nil {
		return nil, err
	}
	if cfg.SrcDir != "" {
		n, err := rundir.SnapshotSource(cfg.SrcDir, filepath.Join(workDir, rundir.SourceDir), ".gitignore",
			cfg.RunRoot, cfg.DataDir, cfg.CheckpointDir)
		if err != nil {
			return nil, err
		}
		logger.WithField("files", n).Debug("Source snapshot written")
	}

	rng := seedAll(cfg.Seed)

	// Dataset -> replay buffer -> split -> normalization
	data, err := loadOrCollect(cfg, logger)
	if err != nil {
		return nil, err
	}
	replay := buffer.NewReplayBuffer(spec.ObservationDim, spec.ActionDim, buffer.DefaultCapacity)
	if err := replay.ConvertDataset(data); err != nil {
		return nil, err
	}

	train, eval, err := replay.Split(rng, cfg.EvalData)
	if err != nil {
		return nil, err
	}
	if cfg.EvalData > 0 && eval == nil {
		logger.WithField("eval_data", cfg.EvalData).Warn("Eval split rounds to zero rows, evaluation disabled")
	}

	var norm buffer.Normalizer
	if cfg.Normalize() {
		if norm, err = train.NormalizeStates(); err != nil {
			return nil, err
		}
		if eval != nil {
			if err := norm.Apply(eval); err != nil {
				return nil, err
			}
		}
	} else {
		logger.Info("No normalize")
	}

	model, err := dynamics.New(dynamics.Config{
		StateDim:     spec.ObservationDim,
		ActionDim:    spec.ActionDim,
		Hidden:       cfg.Hidden,
		BatchSize:    cfg.BatchSize,
		LearningRate: cfg.LR,
	}, rng)
	if err != nil {
		return nil, err
	}

	res := &Result{
		WorkDir:   workDir,
		TrainSize: train.Size(),
		NumParams: model.NumParams(),
	}
	if eval != nil {
		res.EvalSize = eval.Size()
	}

	logger.WithFields(logrus.Fields{
		"run_id":     cfg.RunID,
		"env":        cfg.Env,
		"seed":       cfg.Seed,
		"train_size": res.TrainSize,
		"eval_size":  res.EvalSize,
		"params":     res.NumParams,
		"work_dir":   workDir,
	}).Info("Starting pretraining")

	start := time.Now()
	for step := 0; step <= cfg.NumIters; step++ {
		batch, err := train.Sample(rng, cfg.BatchSize)
		if err != nil {
			return nil, err
		}
		loss, err := model.TrainStep(batch.States, batch.Actions, batch.NextStates)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", step, err)
		}

		if step%cfg.LogInterval != 0 {
			continue
		}
		fields := logrus.Fields{"step": step, "train_loss": loss}
		if err := writer.AddScalar(tagTrainLoss, loss, step); err != nil {
			return nil, err
		}
		if eval != nil {
			all := eval.All()
			evalLoss, err := model.Evaluate(all.States, all.Actions, all.NextStates)
			if err != nil {
				return nil, fmt.Errorf("step %d eval: %w", step, err)
			}
			fields["eval_loss"] = evalLoss
			if err := writer.AddScalar(tagEvalLoss, evalLoss, step); err != nil {
				return nil, err
			}
		}
		if step > 0 {
			fields["steps_per_sec"] = float64(step) / time.Since(start).Seconds()
		}
		if usage, err := metrics.ResourceUsage(); err == nil {
			fields["rss_mb"] = usage.RSSMB
			fields["cpu_pct"] = usage.CPUPercent
		}
		logger.WithFields(fields).Info("pretrain")
	}

	res.CheckpointPath = dynamics.CheckpointPath(cfg.CheckpointDir, cfg.Env, cfg.Normalize())
	ck := model.Checkpoint(cfg.Env, cfg.Normalize(), norm.Mean, norm.Std)
	if err := dynamics.SaveCheckpoint(res.CheckpointPath, ck); err != nil {
		return nil, err
	}

	res.TrainLoss = writer.Scalars(tagTrainLoss)
	res.EvalLoss = writer.Scalars(tagEvalLoss)
	closed = true
	if err := writer.Close(); err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"checkpoint": res.CheckpointPath,
		"elapsed":    time.Since(start).Round(time.Millisecond),
	}).Info("Pretraining finished")
	return res, nil
}

// loadOrCollect reads the gob or csv dataset for cfg.Env, collecting and
// saving a gob first when neither exists yet.
func loadOrCollect(cfg Config, logger *logrus.Logger) (*dataset.Dataset, error) {
	path, err := dataset.Find(cfg.DataDir, cfg.Env)
	if err == nil {
		data, err := dataset.Load(path)
		if err != nil {
			return nil, err
		}
		if data.Env != cfg.Env {
			logger.WithFields(logrus.Fields{"file": path, "dataset_env": data.Env}).Warn("Dataset was recorded for another env")
		}
		logger.WithFields(logrus.Fields{"file": path, "transitions": data.Len()}).Info("Dataset loaded")
		return data, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	path = dataset.Path(cfg.DataDir, cfg.Env)
	logger.WithFields(logrus.Fields{
		"env":  cfg.Env,
		"size": cfg.DatasetSize,
		"path": path,
	}).Info("Dataset not found, collecting")
	data, err := dataset.Generate(cfg.Env, cfg.DatasetSize, datasetSeed)
	if err != nil {
		return nil, err
	}
	if err := data.Save(path); err != nil {
		return nil, err
	}
	return data, nil
}

// teeLogger copies base's settings into a logger that also writes to out.
func teeLogger(base *logrus.Logger, out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(base.Formatter)
	l.SetLevel(base.GetLevel())
	l.SetOutput(io.MultiWriter(base.Out, out))
	return l
}
