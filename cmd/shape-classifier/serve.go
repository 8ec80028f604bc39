package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/ironsheep/shape-classifier/internal/server"
)

func serveCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP tool server on stdio",
		Long: `Serve the shape_classify, shape_rank, shape_classify_frame and pipeline_info
tools to an MCP client over stdin/stdout. Logs go to stderr.`,
		Args: cobra.NoArgs,
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

			return server.New(c, Version, a.logger.Named("server")).Run()
		},
	}
}
