package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/archimag/soy-go/loader"
)

const watchDebounce = 100 * time.Millisecond

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch NAME",
		Short: "Re-render a template whenever templates or data change",
		Long: `Render NAME like the render command, then keep watching the templates
directory and the data file. Every change re-loads all templates and
renders again. Render errors are reported without stopping the watch.

Press Ctrl+C to stop.`,
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

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out, _ := cmd.Flags().GetString("out")
			w := cmd.OutOrStdout()
			errw := cmd.ErrOrStderr()
			rerender := func() {
				if err := renderTo(w, cfg, logger, args[0], out); err != nil {
					fmt.Fprintf(errw, "%s %+v\n", color.RedString("error:"), err)
					return
				}
				if out != "" {
					fmt.Fprintf(errw, "%s %s\n", color.GreenString("rendered"), out)
				}
			}

			rerender()
			return watchFiles(ctx, cfg.Templates, cfg.Data, logger, rerender)
		},
	}

	cmd.Flags().StringP("data", "d", "", "YAML or JSON file with template data")
	cmd.Flags().StringP("out", "o", "", "write output to this file instead of stdout")

	return cmd
}

// watchFiles calls onChange once per burst of changes to template files
// below dir or to dataFile. It returns when ctx is done.
func watchFiles(ctx context.Context, dir, dataFile string, logger *zap.Logger, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := addTree(watcher, dir); err != nil {
		return err
	}
	if dataFile != "" {
		dataFile = filepath.Clean(dataFile)
		if err := watcher.Add(filepath.Dir(dataFile)); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dataFile, err)
		}
	}

	relevant := func(name string) bool {
		if strings.HasPrefix(filepath.Base(name), ".") {
			return false
		}
		return filepath.Ext(name) == loader.Ext || filepath.Clean(name) == dataFile
	}

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addTree(watcher, event.Name); err != nil {
						logger.Warn("cannot watch new directory", zap.String("dir", event.Name), zap.Error(err))
					}
					continue
				}
			}
			if event.Op == fsnotify.Chmod || !relevant(event.Name) {
				continue
			}
			logger.Debug("file changed", zap.String("path", event.Name), zap.Stringer("op", event.Op))
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			fire = timer.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", zap.Error(err))

		case <-fire:
			fire = nil
			onChange()
		}
	}
}

// addTree watches dir and every non-hidden directory below it.
func addTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", path, err)
		}
		return nil
	})
}

