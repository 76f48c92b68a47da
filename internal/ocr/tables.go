package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/facturalab/invoice-engine/internal/extract"
)

// CommandTableDetector runs an external table-extraction command over a
// document. The configured command line gets the document path appended as
// its last argument and must print a JSON array of tables on stdout, each
// table a row-major array of string cells with the header row first:
//
//	[[["Descripcion","Cantidad","Vr.Unitario","Vr.Total"],["Cemento","10","100.000,00","1.000.000,00"]]]
//
// This is the seam for camelot-style engines: any wrapper script that speaks
// the JSON shape plugs in without code changes.
type CommandTableDetector struct {
	name    string
	argv    []string
	timeout time.Duration
	runner  Runner
	logger  *slog.Logger
}

// NewCommandTableDetector parses a shell-free command line ("camelot-lattice
// --pages all"). The detector is named after the command's base name.
func NewCommandTableDetector(command string, timeout time.Duration, logger *slog.Logger) (*CommandTableDetector, error) {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty table detector command")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandTableDetector{
		name:    filepath.Base(argv[0]),
		argv:    argv,
		timeout: timeout,
		runner:  execRunner{},
		logger:  logger,
	}, nil
}

func (d *CommandTableDetector) Name() string { return d.name }

func (d *CommandTableDetector) DetectTables(ctx context.Context, path string) ([]extract.Table, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	args := append(append([]string{}, d.argv[1:]...), path)
	out, errb, err := d.runner.Run(ctx, d.argv[0], args...)
	if err != nil {
		d.logger.Warn("table detector failed", "strategy", d.name, "path", path, "stderr", truncate(string(errb), 2<<10))
		return nil, fmt.Errorf("%s: %w", d.name, err)
	}

	var grids [][][]string
	if err := json.Unmarshal(out, &grids); err != nil {
		return nil, fmt.Errorf("%s: decoding tables: %w", d.name, err)
	}
	tables := make([]extract.Table, 0, len(grids))
	for _, rows := range grids {
		if len(rows) == 0 {
			continue
		}
		tables = append(tables, extract.Table{Rows: rows})
	}
	return tables, nil
}

// TableDetectors builds one detector per configured command, preserving the
// configured trial order.
func TableDetectors(commands []string, timeout time.Duration, logger *slog.Logger) ([]extract.TableDetector, error) {
	var detectors []extract.TableDetector
	for _, cmd := range commands {
		d, err := NewCommandTableDetector(cmd, timeout, logger)
		if err != nil {
			return nil, err
		}
		detectors = append(detectors, d)
	}
	return detectors, nil
}
