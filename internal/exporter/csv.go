package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"cinepulse/pkg/contracts/domain"
)

// utf8BOM lets spreadsheet tools recognize UTF-8 content
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// WriteOptions configures CSV writing behavior
type WriteOptions struct {
	BOMPrefix bool
	// OmitHeader skips the column row
	OmitHeader bool
}

// WriteFrame writes f as CSV. Ragged rows are padded to the header width.
func WriteFrame(w io.Writer, f *domain.Frame, opts WriteOptions) error {
	if f == nil {
		return fmt.Errorf("nil frame")
	}
	if opts.BOMPrefix {
		if _, err := w.Write(utf8BOM); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(w)
	if !opts.OmitHeader && len(f.Columns) > 0 {
		if err := writer.Write(f.Columns); err != nil {
			return fmt.Errorf("failed to write headers: %w", err)
		}
	}

	width := len(f.Columns)
	for i, row := range f.Rows {
		if len(row) < width {
			padded := make([]string, width)
			copy(padded, row)
			row = padded
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// Writer persists frames and artifacts below a base directory
type Writer struct {
	baseDir string
	logger  *slog.Logger
}

// NewWriter creates a writer rooted at baseDir
func NewWriter(baseDir string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{baseDir: baseDir, logger: logger.With(slog.String("component", "exporter"))}
}

// WriteFrame writes f as a BOM-prefixed CSV file and returns its full path
func (w *Writer) WriteFrame(name string, f *domain.Frame) (string, error) {
	fullPath, file, err := w.create(name)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if err := WriteFrame(file, f, WriteOptions{BOMPrefix: true}); err != nil {
		return "", err
	}
	w.logger.Info("Wrote CSV file",
		slog.String("file_path", fullPath),
		slog.Int("record_count", len(f.Rows)))
	return fullPath, file.Close()
}

// WriteArtifact writes a rendered blob and returns its full path
func (w *Writer) WriteArtifact(name string, data []byte) (string, error) {
	fullPath, file, err := w.create(name)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if _, err := file.Write(data); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	w.logger.Info("Wrote artifact",
		slog.String("file_path", fullPath),
		slog.Int("size", len(data)))
	return fullPath, file.Close()
}

func (w *Writer) create(name string) (string, *os.File, error) {
	fullPath, err := w.resolvePath(name)
	if err != nil {
		return "", nil, err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", nil, fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(fullPath)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create file: %w", err)
	}
	return fullPath, file, nil
}

// resolvePath keeps relative names inside the base directory
func (w *Writer) resolvePath(name string) (string, error) {
	if filepath.IsAbs(name) {
		return name, nil
	}
	clean := filepath.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the export directory", name)
	}
	return filepath.Join(w.baseDir, clean), nil
}
