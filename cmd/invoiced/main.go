package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/facturalab/invoice-engine/internal/common"
	"github.com/facturalab/invoice-engine/internal/extract"
	"github.com/facturalab/invoice-engine/internal/learning"
	"github.com/facturalab/invoice-engine/internal/ocr"
	"github.com/facturalab/invoice-engine/internal/pipeline"
	"github.com/facturalab/invoice-engine/internal/repository"
)

func main() {
	_ = godotenv.Load()

	interval := flag.Duration("interval", 0, "rescan the inbox at this interval; 0 runs a single pass")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	dbr, err := common.InitDatabase(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer dbr.Cleanup()

	invoices := repository.NewInvoiceRepository(dbr.Store, logger)
	corrections := repository.NewCorrectionRepository(dbr.Store, logger)
	patterns := learning.NewPatternStore(cfg.Paths.PatternsFile, logger)
	feedback := learning.NewFeedbackLoop(corrections, patterns, cfg.Extraction.LearnThreshold, logger)

	ocrCfg := ocr.Config{
		Pdftotext: cfg.OCR.PDFToTextBin,
		Pdftoppm:  cfg.OCR.PDFToPPMBin,
		Tesseract: cfg.OCR.TesseractBin,
		Language:  cfg.OCR.Language,
		DPI:       cfg.OCR.DPI,
		MaxPages:  cfg.OCR.MaxPages,
		Timeout:   cfg.OCR.Timeout,
	}

	detectors, err := ocr.TableDetectors(cfg.OCR.TableDetectors, cfg.OCR.Timeout, logger)
	if err != nil {
		logger.Error("invalid table detector configuration", "error", err)
		os.Exit(2)
	}

	batch := pipeline.NewBatch(pipeline.BatchDeps{
		Config:   cfg,
		Invoices: invoices,
		Feedback: feedback,
		Patterns: patterns,
		Tables:   extract.NewTableLineItems(detectors, logger),
		PDFText:  ocr.NewPDFTextSource(ocrCfg, logger),
		OCRText:  ocr.NewTesseractSource(ocrCfg, logger),
		Logger:   logger,
	})

	anyFailed := false
	for {
		processed, failed, err := batch.Run(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			logger.Error("batch run aborted", "error", err)
			os.Exit(1)
		}
		logger.Info("batch run complete", "processed", processed, "failed", failed)
		if failed > 0 {
			anyFailed = true
		}

		if *interval <= 0 {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(*interval):
			continue
		}
		break
	}
	if anyFailed {
		os.Exit(1)
	}
}
