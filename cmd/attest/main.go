package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joseph-ayodele/invoice-attestor/internal/app"
	"github.com/joseph-ayodele/invoice-attestor/internal/async"
	"github.com/joseph-ayodele/invoice-attestor/internal/common"
	"github.com/joseph-ayodele/invoice-attestor/internal/ingest"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		configPath = flag.String("config", "", "optional env-format config file")
		file       = flag.String("file", "", "invoice document to attest")
		dir        = flag.String("dir", "", "directory of invoice documents to attest (requires -yes)")
		watch      = flag.String("watch", "", "directory to watch for new invoice documents (requires -yes)")
		yes        = flag.Bool("yes", false, "record without asking for confirmation")
		skipHidden = flag.Bool("skip-hidden", true, "skip hidden files and directories")
		debounce   = flag.Duration("debounce", 2*time.Second, "quiet period before a watched file is processed")
		initial    = flag.Bool("initial-scan", false, "in -watch mode, also attest files already present")
		workers    = flag.Int("workers", 1, "concurrent attestations in -watch mode")
	)
	flag.Parse()

	modes := 0
	for _, s := range []string{*file, *dir, *watch} {
		if s != "" {
			modes++
		}
	}
	if modes != 1 {
		printError("Error: exactly one of -file, -dir or -watch is required\n")
		os.Exit(2)
	}
	if (*dir != "" || *watch != "") && !*yes {
		printError("Error: -dir and -watch run unattended and require -yes\n")
		os.Exit(2)
	}

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	logger := common.NewLogger(os.Stderr, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	r := &runner{
		loader:      a.Loader,
		newWorkflow: a.NewWorkflow,
		in:          bufio.NewReader(os.Stdin),
		out:         os.Stdout,
		yes:         *yes,
	}

	switch {
	case *file != "":
		if err := r.run(ctx, *file); err != nil {
			if errors.Is(err, errDeclined) {
				fmt.Println("Not recorded.")
				return
			}
			printError("Error: %v\n", err)
			os.Exit(1)
		}

	case *dir != "":
		results, stats, err := ingest.WalkDirectory(ctx, *dir, *skipHidden, r.run)
		for _, res := range results {
			if res.Err != nil {
				printError("FAILED %s: %v\n", res.Path, res.Err)
			}
		}
		fmt.Printf("\nscanned=%d matched=%d recorded=%d duplicates=%d failed=%d\n",
			stats.Scanned, stats.Matched, stats.Succeeded, stats.Duplicates, stats.Failed)
		if err != nil {
			logger.Error("directory run aborted", "error", err)
			os.Exit(1)
		}
		if stats.Failed > 0 {
			os.Exit(1)
		}

	case *watch != "":
		events, errs, err := ingest.Watch(ctx, ingest.WatchConfig{
			Roots:       []string{*watch},
			InitialScan: *initial,
			SkipHidden:  *skipHidden,
			Debounce:    *debounce,
			Logger:      logger,
		})
		if err != nil {
			logger.Error("failed to start watcher", "error", err)
			os.Exit(1)
		}
		q := async.NewQueue(func(ctx context.Context, job async.Job) error {
			return r.run(ctx, job.Path)
		}, logger, async.WithWorkers(*workers), async.WithProcessTimeout(a.Config.Extract.Timeout+a.Config.Submit.Timeout+time.Minute))
		defer q.Shutdown(context.Background())

		logger.Info("watching for invoices", "root", *watch, "workers", *workers)
		for {
			select {
			case path, ok := <-events:
				if !ok {
					return
				}
				if err := q.Enqueue(ctx, async.Job{Path: path}); err != nil {
					printError("FAILED %s: %v\n", path, err)
				}
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				logger.Warn("watcher error", "error", err)
			case <-ctx.Done():
				return
			}
		}
	}
}
