package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRenderCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render NAME",
		Short: "Render a template",
		Long: `Render the template NAME (for example site.pages.index) with the data
from --data and write the result to --out or standard output.

The data file holds a YAML or JSON mapping.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			out, _ := cmd.Flags().GetString("out")
			return renderTo(cmd.OutOrStdout(), cfg, logger, args[0], out)
		},
	}

	cmd.Flags().StringP("data", "d", "", "YAML or JSON file with template data")
	cmd.Flags().StringP("out", "o", "", "write output to this file instead of stdout")

	return cmd
}

// renderTo loads all templates, renders name and writes the result to the
// file at out, or to w when out is empty.
func renderTo(w io.Writer, cfg *Config, logger *zap.Logger, name, out string) error {
	env, err := newEnvironment(cfg, logger)
	if err != nil {
		return err
	}
	data, err := readData(cfg.Data)
	if err != nil {
		return err
	}

	result, err := env.Render(name, data)
	if err != nil {
		return err
	}

	if out == "" {
		_, err = io.WriteString(w, result)
		return err
	}
	if err := os.WriteFile(out, []byte(result), 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	logger.Debug("output written", zap.String("template", name), zap.String("path", out))
	return nil
}
