package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ironsheep/shape-classifier/internal/pipeline"
	"github.com/ironsheep/shape-classifier/internal/source"
)

// imageResult is one line of classify output.
type imageResult struct {
	Path   string          `json:"path"`
	Result pipeline.Result `json:"result"`
}

func classifyCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify <image>...",
		Short: "Classify image files",
		Long: `Classify each image with the configured preset and model and print one JSON
object per image to stdout.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := newApp(v)
			if err != nil {
				return err
			}
			defer a.logger.Sync()

			c, exec, err := a.newClassifier(a.cfg.Sink.TopN)
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, exec.Close()) }()

			return classifyImages(c, args, cmd.OutOrStdout(), a.logger)
		},
	}

	cmd.Flags().Int("top-n", 3, "Ranked scores attached to each result (0 disables)")
	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		bindFlags(v, cmd.Flags(), map[string]string{"top-n": "sink.top_n"})
	}
	return cmd
}

// classifyImages writes a result line for every path. A path that fails to
// load or classify is logged and reported in the returned error; the rest
// are still classified.
func classifyImages(c *pipeline.Classifier, paths []string, w io.Writer, logger *zap.Logger) error {
	cache := source.NewCache()
	enc := json.NewEncoder(w)

	var errs error
	for _, path := range paths {
		img, err := cache.Load(path)
		if err != nil {
			logger.Error("skipping image", zap.String("path", path), zap.Error(err))
			errs = multierr.Append(errs, err)
			continue
		}
		res, err := c.ClassifyImage(img)
		if err != nil {
			logger.Error("classification failed", zap.String("path", path), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		if err := enc.Encode(imageResult{Path: path, Result: res}); err != nil {
			return multierr.Append(errs, fmt.Errorf("failed to write result: %w", err))
		}
	}
	return errs
}
