package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ironsheep/shape-classifier/internal/config"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCommand(config.New()).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func rootCommand(v *viper.Viper) *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:   "shape-classifier",
		Short: "Classify geometric shapes in camera frames",
		Long: `shape-classifier decodes camera frames, packs them into the input tensor of a
pre-trained shape network and reports the most likely of its labels
(Circle, Square, Rectangle, Kite, Parallelogram, Rhombus, Trapezoid,
Triangle by default).

Configuration is read from defaults, the selected preset, the YAML file
given with --config, SHAPECLS_* environment variables and flags, in
increasing precedence.`,
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.ReadFile(v, configFile)
		},
	}
	root.SetVersionTemplate(versionText())

	flags := root.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "Path to a YAML config file")
	flags.String("preset", config.DefaultPreset, fmt.Sprintf("Preprocessing preset %v", config.PresetNames()))
	flags.String("backend", "tflite", "Inference backend: tflite, onnx")
	flags.StringP("model", "m", "shape_classification_model.tflite", "Path to the model file")
	flags.Int("threads", 0, "Inference threads (0 lets the backend decide)")
	flags.String("labels-file", "", "Label table, one label per line in model output order")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-format", "console", "Log format: console, json")
	bindFlags(v, flags, map[string]string{
		"preset":      "preset",
		"backend":     "model.backend",
		"model":       "model.path",
		"threads":     "model.threads",
		"labels-file": "labels_file",
		"log-level":   "log.level",
		"log-format":  "log.format",
	})

	root.AddCommand(
		runCommand(v),
		classifyCommand(v),
		serveCommand(v),
		versionCommand(),
	)
	return root
}

func versionText() string {
	return fmt.Sprintf("shape-classifier %s\n  Build time: %s\n  Git commit: %s\n", Version, BuildTime, GitCommit)
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), versionText())
		},
	}
}
