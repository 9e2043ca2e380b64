package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	soy "github.com/archimag/soy-go"
	"github.com/archimag/soy-go/loader"
)

func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Parse every template file and report errors",
		Long: `Parse every .soy file below the templates directory. Each file is
reported on its own line; the command fails when any file does not parse.`,
		Args: cobra.NoArgs,
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

			failed, err := checkDir(cmd.OutOrStdout(), cfg.Templates, logger)
			if err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d file(s) failed to parse", failed)
			}
			return nil
		},
	}
}

// checkDir parses every file below dir, writing one line per file to w. It
// returns the number of files that failed.
func checkDir(w io.Writer, dir string, logger *zap.Logger) (int, error) {
	fsys := os.DirFS(dir)
	files, err := loader.Files(fsys, ".")
	if err != nil {
		return 0, err
	}

	ok := color.New(color.FgGreen, color.Bold)
	bad := color.New(color.FgRed, color.Bold)
	dim := color.New(color.Faint)

	env := soy.NewEnvironment()
	env.SetLogger(logger)

	failed := 0
	for _, file := range files {
		path := filepath.Join(dir, filepath.FromSlash(file))
		source, err := fs.ReadFile(fsys, file)
		if err != nil {
			return failed, fmt.Errorf("failed to read %s: %w", path, err)
		}

		names, err := env.AddFile(path, string(source))
		if err != nil {
			failed++
			bad.Fprint(w, "FAIL ")
			fmt.Fprintln(w, path)
			fmt.Fprintf(w, "     %v\n", err)
			continue
		}
		ok.Fprint(w, "ok   ")
		fmt.Fprint(w, path)
		dim.Fprintf(w, " (%d templates)\n", len(names))
	}

	if len(files) == 0 {
		dim.Fprintf(w, "no %s files in %s\n", loader.Ext, dir)
	}
	return failed, nil
}
