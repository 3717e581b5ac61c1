// Package report renders tabular job output as CSV files.
package report

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// ErrEmptyName is returned for a report without a file name.
var ErrEmptyName = errors.New("report: empty report name")

// Report is one named table.
type Report struct {
	Name   string
	Header []string
	Rows   [][]string
}

// Writer persists reports.
type Writer interface {
	WriteReport(ctx context.Context, r Report) error
}

// FileName builds "<kind>_<from>.csv" with from as a compact UTC date.
func FileName(kind string, from time.Time) string {
	return fmt.Sprintf("%s_%s.csv", kind, from.UTC().Format("20060102"))
}

// CSVWriter writes each report to Dir/<Name>. Files are written to a
// temporary name and renamed into place so readers never see a partial
// report.
type CSVWriter struct {
	Dir string
}

// NewCSVWriter creates a CSV writer rooted at dir.
func NewCSVWriter(dir string) *CSVWriter {
	return &CSVWriter{Dir: dir}
}

func (w *CSVWriter) WriteReport(ctx context.Context, r Report) (err error) {
	if r.Name == "" {
		return ErrEmptyName
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return fmt.Errorf("report: create directory: %w", err)
	}

	tmp, err := os.CreateTemp(w.Dir, "."+r.Name+".*")
	if err != nil {
		return fmt.Errorf("report: create file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	cw := csv.NewWriter(tmp)
	if len(r.Header) > 0 {
		if err := cw.Write(r.Header); err != nil {
			return fmt.Errorf("report: write header: %w", err)
		}
	}
	if err := cw.WriteAll(r.Rows); err != nil {
		return fmt.Errorf("report: write rows: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("report: close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(w.Dir, r.Name)); err != nil {
		return fmt.Errorf("report: rename file: %w", err)
	}
	return nil
}

// MemoryWriter keeps reports in memory, keyed by name.
type MemoryWriter struct {
	mu      sync.Mutex
	reports map[string]Report
}

func (w *MemoryWriter) WriteReport(ctx context.Context, r Report) error {
	if r.Name == "" {
		return ErrEmptyName
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.reports == nil {
		w.reports = make(map[string]Report)
	}
	rows := make([][]string, len(r.Rows))
	for i, row := range r.Rows {
		rows[i] = append([]string(nil), row...)
	}
	w.reports[r.Name] = Report{Name: r.Name, Header: append([]string(nil), r.Header...), Rows: rows}
	return nil
}

// Get returns the report stored under name.
func (w *MemoryWriter) Get(name string) (Report, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.reports[name]
	return r, ok
}

// Names returns stored report names, sorted.
func (w *MemoryWriter) Names() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	names := make([]string, 0, len(w.reports))
	for name := range w.reports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
