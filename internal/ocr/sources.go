package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/facturalab/invoice-engine/constants"
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	Language string        // default "spa"
	DPI      int           // rasterization DPI for scanned PDFs, default 300
	MaxPages int           // 0 = no limit
	Timeout  time.Duration // per-document cap on external commands, 0 = none
}

func (c Config) withDefaults() Config {
	if c.Pdftotext == "" {
		c.Pdftotext = "pdftotext"
	}
	if c.Pdftoppm == "" {
		c.Pdftoppm = "pdftoppm"
	}
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if c.Language == "" {
		c.Language = "spa"
	}
	if c.DPI <= 0 {
		c.DPI = 300
	}
	return c
}

// PDFTextSource reads the embedded text layer of a PDF via pdftotext.
// Digitally generated invoices resolve here without rasterization.
type PDFTextSource struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewPDFTextSource(cfg Config, logger *slog.Logger) *PDFTextSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFTextSource{cfg: cfg.withDefaults(), runner: execRunner{}, logger: logger}
}

func (s *PDFTextSource) Name() string { return string(constants.SourcePDFDirect) }

func (s *PDFTextSource) Text(ctx context.Context, path string) (string, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := s.runner.Run(ctx, s.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		s.logger.Warn("pdftotext failed", "path", path, "stderr", truncate(string(errb), 2<<10))
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return Normalize(string(out)), nil
}

// TesseractSource rasterizes PDF pages with pdftoppm and OCRs each page with
// tesseract. Used for scanned invoices whose text layer is empty.
type TesseractSource struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewTesseractSource(cfg Config, logger *slog.Logger) *TesseractSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &TesseractSource{cfg: cfg.withDefaults(), runner: execRunner{}, logger: logger}
}

func (s *TesseractSource) Name() string { return string(constants.SourceOCR) }

func (s *TesseractSource) Text(ctx context.Context, path string) (string, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	tmpDir, err := os.MkdirTemp("", "ie-ocr-*")
	if err != nil {
		return "", err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			s.logger.Warn("failed to remove temp dir", "path", tmpDir, "error", err)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r <dpi> -png <in.pdf> <tmp/page>
	_, errb, err := s.runner.Run(ctx, s.cfg.Pdftoppm, "-r", fmt.Sprintf("%d", s.cfg.DPI), "-png", path, prefix)
	if err != nil {
		s.logger.Warn("pdftoppm failed", "path", path, "stderr", truncate(string(errb), 2<<10))
		return "", fmt.Errorf("pdftoppm: %w", err)
	}

	// generated pngs are prefix-1.png, prefix-2.png, ...
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if s.cfg.MaxPages > 0 && len(matches) > s.cfg.MaxPages {
		matches = matches[:s.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("pdftoppm rendered no pages for %q", path)
	}

	var b strings.Builder
	for _, img := range matches {
		txt, err := s.tesseractOCR(ctx, img)
		if err != nil {
			// one bad page does not abort the document
			s.logger.Warn("tesseract failed on page", "image", img, "error", err)
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n")
		}
		b.WriteString(txt)
	}
	return Normalize(b.String()), nil
}

func (s *TesseractSource) tesseractOCR(ctx context.Context, path string) (string, error) {
	// tesseract <file> stdout -l <lang>
	out, errb, err := s.runner.Run(ctx, s.cfg.Tesseract, path, "stdout", "-l", s.cfg.Language)
	if err != nil {
		return "", fmt.Errorf("tesseract: %s: %w", truncate(string(errb), 512), err)
	}
	return string(out), nil
}
