package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gantrybuild/gantry/internal/config"
	"github.com/gantrybuild/gantry/internal/constants"
	"github.com/gantrybuild/gantry/internal/domain"
	"github.com/gantrybuild/gantry/internal/errors"
	"github.com/gantrybuild/gantry/internal/signal"
	"github.com/gantrybuild/gantry/internal/tui"
)

// AddWatchCommand adds the watch command to the root command.
func AddWatchCommand(root *cobra.Command) {
	root.AddCommand(newWatchCmd())
}

// watchOptions contains all options for the watch command.
type watchOptions struct {
	paths     []string
	envFile   string
	noHistory bool
}

// newWatchCmd creates the watch command.
func newWatchCmd() *cobra.Command {
	var (
		paths     []string
		envFile   string
		noHistory bool
	)

	cmd := &cobra.Command{
		Use:   "watch [pipeline]",
		Short: "Re-run a pipeline whenever source files change",
		Long: `Run a pipeline, then watch the project sources and run it again after
every change.

By default the configured SDK and app module directories are watched.
Filesystem events are debounced, so a burst of saves triggers a single
run. Build output directories are never watched.

Publication steps do not run in watch mode. A failing run does not stop
the watch; fix the source and save to try again.

Examples:
  gantry watch
  gantry watch smoke
  gantry watch --path sdk/src --path app/src
  gantry watch --no-history`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := constants.DefaultPipelineName
			if len(args) > 0 {
				name = args[0]
			}
			return runWatch(cmd.Context(), cmd, cmd.OutOrStdout(), name, watchOptions{
				paths:     paths,
				envFile:   envFile,
				noHistory: noHistory,
			})
		},
	}

	cmd.Flags().StringSliceVar(&paths, "path", nil,
		"Directory to watch instead of the configured module directories (repeatable)")
	cmd.Flags().StringVar(&envFile, "env-file", "",
		"Dotenv file loaded into the environment before each run")
	cmd.Flags().BoolVar(&noHistory, "no-history", false,
		"Skip recording watch runs in the history database")

	return cmd
}

// runWatch executes the watch command.
func runWatch(ctx context.Context, cmd *cobra.Command, w io.Writer, name string, opts watchOptions) error {
	// Check context cancellation at entry
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// Create signal handler so Ctrl+C stops the loop and interrupts an
	// in-flight run
	sigHandler := signal.NewHandler(ctx)
	defer sigHandler.Stop()
	ctx = sigHandler.Context()

	logger := GetLogger()
	outputFormat := cmd.Flag("output").Value.String()
	verbose := cmd.Flag("verbose").Value.String() == "true"
	quiet := cmd.Flag("quiet").Value.String() == "true"

	// Respect NO_COLOR environment variable
	tui.CheckNoColor()

	out := tui.NewOutput(w, outputFormat)

	// The watch loop is a long-lived text session; a single JSON
	// document cannot represent it.
	if outputFormat == OutputJSON {
		err := fmt.Errorf("%w: watch supports text output only", errors.ErrInvalidOutputFormat)
		out.Error(err)
		return err
	}

	rc := &runContext{
		w:            w,
		out:          out,
		outputFormat: outputFormat,
		logger:       logger,
	}

	// Watch runs are unattended by definition, so prompts stay off and
	// publication is never enabled.
	runOpts := runOptions{envFile: opts.envFile, noInput: true, noHistory: opts.noHistory}

	cfg, err := loadRunConfig(ctx, cmd, runOpts)
	if err != nil {
		return err
	}

	projectDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to determine working directory: %w", err)
	}

	if err = applyRunEnvFile(cfg, projectDir); err != nil {
		return err
	}

	p, err := resolveRunPipeline(cfg, projectDir, name)
	if err != nil {
		return err
	}

	roots, err := watchRoots(projectDir, cfg, opts.paths)
	if err != nil {
		return err
	}

	if err = checkPrerequisites(ctx, projectDir, cfg.Build.Wrapper); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	for _, root := range roots {
		watchRecursive(watcher, root, logger)
	}

	out.Info(fmt.Sprintf("Watching %s (pipeline: %s). Press Ctrl+C to stop.",
		strings.Join(displayWatchRoots(projectDir, roots), ", "), p.Name))

	// Buffered to one request: changes arriving while a run is in
	// flight coalesce into a single follow-up run.
	runReq := make(chan struct{}, 1)
	runReq <- struct{}{}
	trigger := newWatchDebouncer(constants.WatchDebounce, runReq)

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		watchWorker(ctx, rc, sigHandler, cfg, p, projectDir, verbose, quiet, runOpts, runReq)
	}()

	for {
		select {
		case <-ctx.Done():
			<-workerDone
			out.Info("")
			out.Info("Watch stopped.")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				<-workerDone
				return nil
			}
			handleWatchEvent(watcher, event, logger, trigger)
		case werr, ok := <-watcher.Errors:
			if !ok {
				<-workerDone
				return nil
			}
			logger.Warn().Err(werr).Msg("file watcher error")
		}
	}
}

// watchWorker serializes pipeline runs triggered by the watch loop.
func watchWorker(ctx context.Context, rc *runContext, sigHandler *signal.Handler, cfg *config.Config, p *domain.Pipeline, projectDir string, verbose, quiet bool, opts runOptions, runReq <-chan struct{}) {
	cycle := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-runReq:
		}

		cycle++
		if cycle > 1 {
			rc.out.Info("")
			rc.out.Info("Change detected.")
		}

		err := executePipeline(ctx, rc, sigHandler, cfg, p, projectDir, verbose, quiet, opts)
		reportWatchRunError(rc, err)

		if ctx.Err() == nil {
			rc.out.Info("")
			rc.out.Info("Waiting for changes. Press Ctrl+C to stop.")
		}
	}
}

// reportWatchRunError surfaces setup failures from a watch cycle. Step
// failures and interrupts are already covered by the run summary.
func reportWatchRunError(rc *runContext, err error) {
	if err == nil {
		return
	}
	if stderrors.Is(err, errors.ErrStepFailed) || stderrors.Is(err, errors.ErrInterrupted) {
		return
	}
	rc.out.Error(err)
}

// watchRoots resolves the directories to watch. Explicit paths replace
// the configured module directories. Candidates that do not exist are
// dropped; a watch with nothing left to watch is an error.
func watchRoots(projectDir string, cfg *config.Config, explicit []string) ([]string, error) {
	candidates := explicit
	if len(candidates) == 0 {
		candidates = []string{cfg.Build.SDKModule, cfg.Build.AppModule}
	}

	seen := make(map[string]struct{}, len(candidates))
	roots := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		path := candidate
		if !filepath.IsAbs(path) {
			path = filepath.Join(projectDir, path)
		}
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			continue
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		roots = append(roots, path)
	}

	if len(roots) == 0 {
		return nil, fmt.Errorf("%w: checked %s", errors.ErrWatchNothingToWatch, strings.Join(candidates, ", "))
	}
	return roots, nil
}

// displayWatchRoots renders watch roots relative to the project for the
// startup message.
func displayWatchRoots(projectDir string, roots []string) []string {
	display := make([]string, 0, len(roots))
	for _, root := range roots {
		rel, err := filepath.Rel(projectDir, root)
		if err != nil || strings.HasPrefix(rel, "..") {
			display = append(display, root)
			continue
		}
		display = append(display, rel)
	}
	return display
}

// watchRecursive registers root and every subdirectory with the
// watcher. Ignored directories are pruned from the walk entirely, so
// nothing under them ever produces an event.
func watchRecursive(watcher *fsnotify.Watcher, root string, logger zerolog.Logger) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // unreadable entries are skipped, not fatal
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && shouldIgnoreWatchDir(d.Name()) {
			return filepath.SkipDir
		}
		if addErr := watcher.Add(path); addErr != nil {
			logger.Warn().Err(addErr).Str("dir", path).Msg("failed to watch directory")
		}
		return nil
	})
}

// shouldIgnoreWatchDir reports whether a directory's contents must not
// trigger runs. Build outputs change on every cycle and would otherwise
// re-trigger the watch forever.
func shouldIgnoreWatchDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "build"
}

// shouldIgnoreWatchEvent filters events for hidden files, editor
// scratch files, and ignored directory entries. Only the final path
// element needs checking: ignored directories are never watched, so no
// event can originate inside one.
func shouldIgnoreWatchEvent(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, "#") ||
		strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".tmp") {
		return true
	}
	return shouldIgnoreWatchDir(base)
}

// handleWatchEvent filters one filesystem event and schedules a run.
// Newly created directories join the watch set.
func handleWatchEvent(watcher *fsnotify.Watcher, event fsnotify.Event, logger zerolog.Logger, trigger func()) {
	if shouldIgnoreWatchEvent(event.Name) {
		return
	}
	// Chmod-only events carry no content change
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			watchRecursive(watcher, event.Name, logger)
		}
	}
	logger.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("source change detected")
	trigger()
}

// newWatchDebouncer returns a trigger that schedules a run request once
// the debounce window passes without another trigger.
func newWatchDebouncer(delay time.Duration, runReq chan<- struct{}) func() {
	var mu sync.Mutex
	var timer *time.Timer
	return func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(delay, func() {
			select {
			case runReq <- struct{}{}:
			default:
			}
		})
	}
}
