package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/shape-classifier/internal/metrics"
	"github.com/ironsheep/shape-classifier/internal/pipeline"
	"github.com/ironsheep/shape-classifier/internal/sink"
	"github.com/ironsheep/shape-classifier/internal/source"
)

func runCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Classify a stream of frames",
		Long: `Read frames from the configured source, classify the newest frame whenever
the classifier is free and deliver every label to the configured outputs.
Frames arriving while a frame is being classified replace each other;
only the latest is kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(v)
			if err != nil {
				return err
			}
			defer a.logger.Sync()
			return a.run(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.String("source", "images", "Frame source: images, raw")
	flags.StringP("input", "i", "", "Image file or directory, raw frame file, or - for stdin")
	flags.Bool("loop", false, "Repeat the images forever")
	flags.Duration("interval", 0, "Pause between frames (default from config)")
	flags.Int("width", 0, "Raw frame width")
	flags.Int("height", 0, "Raw frame height")
	flags.String("format", "nv21", "Raw frame format: gray, i420, nv21, nv12")
	flags.StringSlice("output", []string{"log"}, "Result outputs: log, json, mqtt")
	flags.Int("top-n", 3, "Ranked scores attached to each result (0 disables)")
	flags.String("mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883")
	flags.String("mqtt-topic", "shape-classifier/label", "MQTT topic for results")
	flags.String("metrics-listen", "", "Serve Prometheus metrics on this address, e.g. :9090")
	flags.String("snapshot-dir", "", "Save every n-th packed input image to this directory")
	bindFlags(v, flags, map[string]string{
		"source":         "source.kind",
		"input":          "source.path",
		"loop":           "source.loop",
		"interval":       "source.interval",
		"width":          "source.width",
		"height":         "source.height",
		"format":         "source.format",
		"output":         "sink.outputs",
		"mqtt-broker":    "sink.mqtt.broker",
		"mqtt-topic":     "sink.mqtt.topic",
		"metrics-listen": "metrics.listen",
		"snapshot-dir":   "debug.snapshot_dir",
	})
	// top-n is shared with classify, so it binds when the command runs
	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		bindFlags(v, cmd.Flags(), map[string]string{"top-n": "sink.top_n"})
	}
	return cmd
}

func (a *app) run(ctx context.Context) (err error) {
	c, exec, err := a.newClassifier(a.cfg.Sink.TopN)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, exec.Close()) }()

	src, err := a.newSource()
	if err != nil {
		return err
	}

	out, err := a.newSinks()
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, out.Close()) }()

	worker := pipeline.NewWorker(c, out, a.logger.Named("worker"))

	g, ctx := errgroup.WithContext(ctx)
	if addr := a.cfg.Metrics.Listen; addr != "" {
		metricsCtx, stopMetrics := context.WithCancel(ctx)
		defer stopMetrics()
		g.Go(func() error {
			return metrics.Serve(metricsCtx, addr, a.registry, a.logger.Named("metrics"))
		})
		g.Go(func() error {
			defer stopMetrics()
			return pipeline.Run(ctx, src, worker)
		})
	} else {
		g.Go(func() error {
			return pipeline.Run(ctx, src, worker)
		})
	}

	a.logger.Info("classifying frames",
		zap.String("source", a.cfg.Source.Kind),
		zap.String("preset", a.cfg.Preset),
		zap.Strings("outputs", a.cfg.Sink.Outputs))

	err = g.Wait()
	stats := worker.Stats()
	a.logger.Info("stopped",
		zap.Uint64("received", stats.Received),
		zap.Uint64("processed", stats.Processed),
		zap.Uint64("dropped", stats.Dropped),
		zap.Uint64("malformed", stats.Malformed),
		zap.Uint64("failed", stats.Failed))
	return err
}

func (a *app) newSource() (pipeline.Source, error) {
	mode, _ := a.cfg.FrameMode()
	logger := a.logger.Named("source")
	sc := a.cfg.Source

	switch sc.Kind {
	case "raw":
		format, _ := a.cfg.RawFormat()
		return source.OpenRaw(source.RawOptions{
			Path:     sc.Path,
			Format:   format,
			Width:    sc.Width,
			Height:   sc.Height,
			Interval: sc.Interval,
		}, logger)
	case "images":
		return source.NewImages(source.ImagesOptions{
			Path:     sc.Path,
			Mode:     mode,
			Loop:     sc.Loop,
			Interval: sc.Interval,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown source %q", sc.Kind)
	}
}

func (a *app) newSinks() (*sink.Multi, error) {
	var sinks []sink.Named
	for _, name := range a.cfg.Sink.Outputs {
		switch name {
		case "log":
			sinks = append(sinks, sink.Named{Name: name, Sink: sink.NewLog(a.logger.Named("result"))})
		case "json":
			sinks = append(sinks, sink.Named{Name: name, Sink: sink.NewJSON(os.Stdout)})
		case "mqtt":
			m, err := sink.NewMQTT(a.cfg.Sink.MQTT, a.logger.Named("sink.mqtt"))
			if err != nil {
				multierr.AppendInto(&err, sink.NewMulti(nil, sinks...).Close())
				return nil, err
			}
			sinks = append(sinks, sink.Named{Name: name, Sink: m})
		default:
			return nil, fmt.Errorf("unknown output %q", name)
		}
	}
	return sink.NewMulti(a.metrics, sinks...), nil
}
