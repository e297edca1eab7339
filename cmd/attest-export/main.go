package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/joseph-ayodele/invoice-attestor/internal/app"
	"github.com/joseph-ayodele/invoice-attestor/internal/common"
	"github.com/joseph-ayodele/invoice-attestor/internal/export"
)

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return &t, nil
}

func main() {
	var (
		configPath = flag.String("config", "", "optional env-format config file")
		out        = flag.String("out", "attestations.xlsx", "output workbook path")
		fromStr    = flag.String("from", "", "first day to include (YYYY-MM-DD)")
		toStr      = flag.String("to", "", "last day to include (YYYY-MM-DD)")
	)
	flag.Parse()

	from, err := parseDate(*fromStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	to, err := parseDate(*toStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	from, to = export.Window(from, to, time.Now())

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger := common.NewLogger(os.Stderr, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := app.New(ctx, cfg, logger, app.Options{JournalOnly: true})
	if err != nil {
		logger.Error("failed to open journal", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	data, err := a.Exporter.ExportAttestationsXLSX(ctx, from, to)
	if err != nil {
		logger.Error("export failed", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		logger.Error("write workbook", "path", *out, "error", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s (%d bytes)\n", *out, len(data))
}
