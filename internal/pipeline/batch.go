package pipeline

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/facturalab/invoice-engine/constants"
	"github.com/facturalab/invoice-engine/internal/common"
	"github.com/facturalab/invoice-engine/internal/extract"
	"github.com/facturalab/invoice-engine/internal/learning"
	"github.com/facturalab/invoice-engine/internal/repository"
)

// Batch drives a full processing cycle over the inbox directory. Documents
// are handled one at a time; a failed document moves to the error directory
// and never stops the cycle.
type Batch struct {
	cfg      *common.Config
	invoices repository.InvoiceRepository
	feedback *learning.FeedbackLoop
	patterns *learning.PatternStore
	tables   *extract.TableLineItems
	pdfText  extract.TextSource
	ocrText  extract.TextSource
	logger   *slog.Logger
}

type BatchDeps struct {
	Config   *common.Config
	Invoices repository.InvoiceRepository
	Feedback *learning.FeedbackLoop
	Patterns *learning.PatternStore
	Tables   *extract.TableLineItems
	PDFText  extract.TextSource
	OCRText  extract.TextSource
	Logger   *slog.Logger
}

func NewBatch(deps BatchDeps) *Batch {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Batch{
		cfg:      deps.Config,
		invoices: deps.Invoices,
		feedback: deps.Feedback,
		patterns: deps.Patterns,
		tables:   deps.Tables,
		pdfText:  deps.PDFText,
		ocrText:  deps.OCRText,
		logger:   logger,
	}
}

// Run executes one cycle: refresh learned patterns from the correction
// history, build the extractors against the fresh artifact, then process
// every PDF in the inbox. Returns processed and failed counts.
func (b *Batch) Run(ctx context.Context) (processed, failed int, err error) {
	if _, lerr := b.feedback.LearnFromCorrections(ctx); lerr != nil {
		// run with the previous artifact rather than aborting the cycle
		b.logger.Error("learning cycle failed, using stored patterns", "error", lerr)
	}
	learned := b.patterns.Load()

	fieldEx := extract.NewFieldExtractor(extract.Config{
		DefaultCurrency:   b.cfg.Extraction.DefaultCurrency,
		SubjectSimilarity: b.cfg.Extraction.SubjectSimilarity,
	}, learned, b.logger)

	proc := NewProcessor(ProcessorDeps{
		Invoices:   b.invoices,
		Feedback:   b.feedback,
		Fields:     fieldEx,
		Tables:     b.tables,
		Recognizer: extract.NewTermRecognizer(learned.NLPTerms),
		Combiner:   extract.NewCombiner(b.logger),
		PDFText:    b.pdfText,
		OCRText:    b.ocrText,
		Logger:     b.logger,
	})

	for _, dir := range []string{b.cfg.Paths.InboxDir, b.cfg.Paths.ProcessedDir, b.cfg.Paths.ErrorDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, 0, common.WrapError(err, "preparing directories")
		}
	}

	entries, err := os.ReadDir(b.cfg.Paths.InboxDir)
	if err != nil {
		return 0, 0, common.WrapError(err, "reading inbox")
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return processed, failed, ctx.Err()
		}
		if entry.IsDir() || constants.NormalizeExt(filepath.Ext(entry.Name())) != constants.DocumentExt {
			continue
		}
		path := filepath.Join(b.cfg.Paths.InboxDir, entry.Name())
		meta := DocumentMeta{UBLSidecar: b.findSidecar(path)}

		if _, perr := proc.ProcessDocument(ctx, path, meta); perr != nil {
			b.logger.Error("document failed", "path", path, "error", perr)
			failed++
			b.moveTo(path, b.cfg.Paths.ErrorDir, meta.UBLSidecar)
			continue
		}
		processed++
		b.moveTo(path, b.cfg.Paths.ProcessedDir, meta.UBLSidecar)
	}

	b.logger.Info("batch cycle finished", "processed", processed, "failed", failed)
	return processed, failed, nil
}

// findSidecar locates a same-named .xml next to the PDF.
func (b *Batch) findSidecar(pdfPath string) string {
	base := strings.TrimSuffix(pdfPath, filepath.Ext(pdfPath))
	for _, candidate := range []string{
		base + "." + constants.SidecarExt,
		base + "." + strings.ToUpper(constants.SidecarExt),
	} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func (b *Batch) moveTo(path, dir, sidecar string) {
	move := func(src string) {
		if src == "" {
			return
		}
		dst := filepath.Join(dir, filepath.Base(src))
		if err := moveFile(src, dst); err != nil {
			b.logger.Error("failed to move file", "from", src, "to", dst, "error", err)
		}
	}
	move(path)
	move(sidecar)
}

// moveFile renames, falling back to copy+remove across filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
