// Command findfoci detects intensity foci in an image or image stack.
//
// Each positional argument is one z slice. Results are written to the
// output directory as a tab-delimited table and, optionally, as charts and
// a label image. With -db the result set is also stored for later matching.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/banshee-data/findfoci/internal/config"
	"github.com/banshee-data/findfoci/internal/findfoci"
	"github.com/banshee-data/findfoci/internal/pipeline"
	"github.com/banshee-data/findfoci/internal/raster"
	"github.com/banshee-data/findfoci/internal/results"
	"github.com/banshee-data/findfoci/internal/version"
)

var (
	paramsPath  = flag.String("params", "", "Parameter file (.json, .yaml or .yml); built-in defaults when empty")
	maskPath    = flag.String("mask", "", "Optional mask image; non-zero pixels are inside")
	outDir      = flag.String("out", ".", "Output directory")
	setName     = flag.String("name", "", "Result set name (defaults to the first image's base name)")
	dbPath      = flag.String("db", "", "SQLite results database; the result set is saved when set")
	histogram   = flag.Bool("histogram", false, "Write a PNG histogram of foci max values")
	scatter     = flag.Bool("scatter", false, "Write an HTML scatter chart of foci positions")
	labels      = flag.Bool("labels", false, "Write the focus label map as 16-bit PNG")
	watch       = flag.Bool("watch", false, "Re-run whenever the parameter file changes")
	poll        = flag.Duration("poll", time.Second, "Parameter file poll interval in watch mode")
	verbose     = flag.Bool("v", false, "Enable diagnostic logging")
	trace       = flag.Bool("trace", false, "Enable per-stage trace logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	os.Exit(realMain())
}

// realMain returns the process exit code so deferred cleanup, including
// closing the results database, runs before the process exits.
func realMain() int {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] image [image...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("findfoci"))
		return 0
	}
	if flag.NArg() == 0 {
		flag.Usage()
		return 2
	}
	if *watch && *paramsPath == "" {
		log.Print("-watch requires -params")
		return 2
	}
	setupLogging(os.Stderr, *verbose, *trace)

	img, err := raster.Load(flag.Args()...)
	if err != nil {
		log.Printf("failed to load image: %v", err)
		return 1
	}
	var mask *raster.Mask
	if *maskPath != "" {
		if mask, err = raster.LoadMask(*maskPath); err != nil {
			log.Printf("failed to load mask: %v", err)
			return 1
		}
	}
	params, err := loadParams(*paramsPath)
	if err != nil {
		log.Printf("failed to load parameters: %v", err)
		return 1
	}

	name := *setName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(flag.Arg(0)), filepath.Ext(flag.Arg(0)))
	}
	out := outputs{
		dir:       *outDir,
		name:      name,
		histogram: *histogram,
		scatter:   *scatter,
		labels:    *labels,
		stdout:    os.Stdout,
	}
	if err := os.MkdirAll(out.dir, 0o755); err != nil {
		log.Printf("failed to create output directory: %v", err)
		return 1
	}
	if *dbPath != "" {
		store, err := results.OpenSQLStore(*dbPath)
		if err != nil {
			log.Printf("failed to open results database: %v", err)
			return 1
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Printf("failed to close results database: %v", err)
			}
		}()
		out.store = store
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var w *watchOptions
	if *watch {
		w = &watchOptions{path: *paramsPath, poll: *poll}
	}
	if err := run(ctx, img, mask, params, out, w); err != nil {
		log.Printf("findfoci: %v", err)
		return 1
	}
	return 0
}

func setupLogging(w io.Writer, verbose, trace bool) {
	var diag, tr io.Writer
	if verbose || trace {
		diag = w
	}
	if trace {
		tr = w
	}
	findfoci.SetLogWriters(w, diag, tr)
	pipeline.SetLogWriters(w, diag, tr)
	results.SetLogWriters(w, diag, tr)
}

func loadParams(path string) (findfoci.Params, error) {
	if path == "" {
		return findfoci.DefaultParams(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return findfoci.Params{}, err
	}
	return cfg.Params()
}

// watchOptions re-posts the parameter file whenever its mtime advances.
type watchOptions struct {
	path string
	poll time.Duration
}

// run drives a Worker until the first run completes, or when w is set until
// ctx is cancelled.
func run(ctx context.Context, img *raster.Stack, mask *raster.Mask, params findfoci.Params, out outputs, w *watchOptions) error {
	notifier := &pipeline.Notifier{}
	msgs := make(chan pipeline.Message, 16)
	notifier.Add(pipeline.ListenerFunc(func(m pipeline.Message) {
		switch m.Kind {
		case pipeline.Done, pipeline.Failed, pipeline.Error:
			msgs <- m
		case pipeline.BackgroundLevel:
			log.Printf("background level %g", m.Value)
		case pipeline.SortIndexSensitiveToNegativeValues:
			log.Printf("warning: sort index %s is unreliable for images with negative values", m.SortIndex)
		}
	}))

	ctrl := pipeline.NewController(nil, notifier)
	ctrl.SetSource(img, mask)
	worker := pipeline.NewWorker(pipeline.WorkerConfig{Controller: ctrl, Notifier: notifier})
	go worker.Run(ctx)
	defer worker.Finish()

	if err := worker.Post(params); err != nil {
		return err
	}

	var (
		tick    <-chan time.Time
		modTime time.Time
	)
	if w != nil {
		if fi, err := os.Stat(w.path); err == nil {
			modTime = fi.ModTime()
		}
		ticker := time.NewTicker(w.poll)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			fi, err := os.Stat(w.path)
			if err != nil || !fi.ModTime().After(modTime) {
				continue
			}
			modTime = fi.ModTime()
			p, err := loadParams(w.path)
			if err != nil {
				log.Printf("ignoring %s: %v", w.path, err)
				continue
			}
			if err := worker.Post(p); err != nil {
				return err
			}
		case m := <-msgs:
			var err error
			switch m.Kind {
			case pipeline.Done:
				log.Printf("%d foci (resumed at %s)", len(m.Result.Foci), m.Result.Resumed)
				err = out.write(ctx, m.Result)
			default:
				err = m.Err
			}
			if w == nil {
				return err
			}
			if err != nil {
				log.Printf("run failed: %v", err)
			}
		}
	}
}
