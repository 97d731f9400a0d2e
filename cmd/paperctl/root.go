package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"paperpedia/api/internal/config"
	"paperpedia/api/internal/logging"
)

type options struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "paperctl",
		Short:         "PaperPedia operator tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (PAPERPEDIA_* variables override it)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output")

	root.AddCommand(
		newMigrateCmd(opts),
		newReindexCmd(opts),
		newTagsCmd(),
	)
	return root
}

func (o *options) load() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if cfg.DatabaseURL == "" {
		return config.Config{}, fmt.Errorf("database_url is required")
	}
	return cfg, nil
}

func (o *options) logger(cfg config.Config) *logrus.Logger {
	level := cfg.LogLevel
	if o.verbose {
		level = "debug"
	}
	return logging.New(level, "text")
}
