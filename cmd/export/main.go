package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/facturalab/invoice-engine/internal/common"
	"github.com/facturalab/invoice-engine/internal/export"
	"github.com/facturalab/invoice-engine/internal/repository"
)

func main() {
	_ = godotenv.Load()

	var (
		out     = flag.String("out", "", "output XLSX file path (default: EXPORT_DIR/invoices.xlsx)")
		fromStr = flag.String("from", "", "from issue date YYYY-MM-DD")
		toStr   = flag.String("to", "", "to issue date YYYY-MM-DD")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var from, to *time.Time
	if *fromStr != "" {
		parsed, err := time.Parse("2006-01-02", *fromStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid --from date, use YYYY-MM-DD: %v\n", err)
			os.Exit(1)
		}
		from = &parsed
	}
	if *toStr != "" {
		parsed, err := time.Parse("2006-01-02", *toStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid --to date, use YYYY-MM-DD: %v\n", err)
			os.Exit(1)
		}
		to = &parsed
	}

	ctx := context.Background()
	cfg := common.LoadConfig()

	if *out == "" {
		*out = filepath.Join(cfg.Paths.ExportDir, "invoices.xlsx")
	}

	dbr, err := common.InitDatabase(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer dbr.Cleanup()

	invoices := repository.NewInvoiceRepository(dbr.Store, logger)
	svc := export.NewService(invoices, logger)

	data, err := svc.ExportInvoicesXLSX(ctx, from, to)
	if err != nil {
		logger.Error("export failed", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		logger.Error("failed to create export directory", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		logger.Error("failed to write output file", "error", err)
		os.Exit(1)
	}
	logger.Info("export written", "output", *out)
}
