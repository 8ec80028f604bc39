package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ironsheep/shape-classifier/internal/config"
	"github.com/ironsheep/shape-classifier/internal/logging"
	"github.com/ironsheep/shape-classifier/internal/metrics"
	"github.com/ironsheep/shape-classifier/internal/model"
	"github.com/ironsheep/shape-classifier/internal/model/onnx"
	"github.com/ironsheep/shape-classifier/internal/model/tflite"
	"github.com/ironsheep/shape-classifier/internal/pipeline"
)

// bindFlags binds each flag to its config key.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for flag, key := range keys {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("binding flag %s: %v", flag, err))
		}
	}
}

// app holds what every command builds from the configuration.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

func newApp(v *viper.Viper) (*app, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	logger.Debug("shape-classifier starting",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("preset", cfg.Preset))

	registry := metrics.NewRegistry()
	m, err := metrics.New(registry)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, registry: registry, metrics: m}, nil
}

// openExecutor loads the configured model with the backend the config
// selects.
func (a *app) openExecutor() (model.Executor, error) {
	spec, err := a.cfg.TensorSpec()
	if err != nil {
		return nil, err
	}

	opts := model.Options{
		Path:        a.cfg.Model.Path,
		Threads:     a.cfg.Model.Threads,
		InputShape:  spec.Shape(),
		OutputSize:  len(a.cfg.Labels),
		InputName:   a.cfg.Model.InputName,
		OutputName:  a.cfg.Model.OutputName,
		LibraryPath: a.cfg.Model.LibraryPath,
	}

	logger := a.logger.Named("model")
	switch a.cfg.Model.Backend {
	case "onnx":
		return onnx.New(opts, logger)
	default:
		return tflite.New(opts, logger)
	}
}

// newClassifier loads the model and builds the classifier around it. The
// returned executor must be closed by the caller.
func (a *app) newClassifier(topN int) (*pipeline.Classifier, model.Executor, error) {
	exec, err := a.openExecutor()
	if err != nil {
		return nil, nil, err
	}

	mode, _ := a.cfg.FrameMode()
	spec, _ := a.cfg.TensorSpec()
	c, err := pipeline.New(exec, pipeline.Options{
		Mode:          mode,
		Spec:          spec,
		Labels:        a.cfg.Labels,
		TopN:          topN,
		SnapshotDir:   a.cfg.Debug.SnapshotDir,
		SnapshotEvery: a.cfg.Debug.SnapshotEvery,
		Metrics:       a.metrics,
		Logger:        a.logger.Named("classifier"),
	})
	if err != nil {
		exec.Close()
		return nil, nil, err
	}
	return c, exec, nil
}
