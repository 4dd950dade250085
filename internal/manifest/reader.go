package manifest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"clipharvest/internal/config"
	"clipharvest/internal/services"
)

// Header column names recognized by the "header" format.
const (
	ColumnIdentifier = "identifier"
	ColumnStart      = "start_seconds"
	ColumnEnd        = "end_seconds"
	ColumnLabels     = "positive_labels"
)

var columnAliases = map[string]string{
	"ytid":   ColumnIdentifier,
	"id":     ColumnIdentifier,
	"start":  ColumnStart,
	"end":    ColumnEnd,
	"labels": ColumnLabels,
}

// Reader streams rows from a manifest.
type Reader struct {
	csv     *csv.Reader
	format  string
	columns map[string]int
	closer  io.Closer
}

// Open opens the manifest at path. A missing or unreadable file is a
// manifest-level failure wrapped with services.ErrManifestParse.
func Open(path, format string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrManifestParse, "manifest", "open", path, err)
	}
	reader, err := NewReader(file, format)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	reader.closer = file
	return reader, nil
}

// NewReader wraps r. format is config.ManifestFormatRows or config.ManifestFormatHeader.
func NewReader(r io.Reader, format string) (*Reader, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = config.ManifestFormatRows
	}
	if format != config.ManifestFormatRows && format != config.ManifestFormatHeader {
		return nil, services.Wrap(services.ErrConfiguration, "manifest", "format", fmt.Sprintf("unsupported format %q", format), nil)
	}
	cr := csv.NewReader(r)
	// Header manifests may carry the column names on a "#" line, so comments
	// are filtered by the reader itself in that format.
	if format == config.ManifestFormatRows {
		cr.Comment = '#'
	}
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	cr.ReuseRecord = false
	return &Reader{csv: cr, format: format}, nil
}

// Next returns the next row. It returns io.EOF when the manifest is
// exhausted, a *ParseError for a malformed row (the reader stays usable), or
// another error when the underlying input fails.
func (r *Reader) Next() (Row, error) {
	if r.format == config.ManifestFormatHeader && r.columns == nil {
		if err := r.readHeader(); err != nil {
			return Row{}, err
		}
	}

	record, err := r.csv.Read()
	for err == nil && r.format == config.ManifestFormatHeader && isComment(record) {
		record, err = r.csv.Read()
	}
	if err != nil {
		var csvErr *csv.ParseError
		if errors.As(err, &csvErr) {
			return Row{}, &ParseError{Line: csvErr.StartLine, Reason: csvErr.Err.Error()}
		}
		return Row{}, err
	}
	line, _ := r.csv.FieldPos(0)

	if r.format == config.ManifestFormatHeader {
		return r.rowFromColumns(line, record)
	}
	if len(record) < 3 {
		return Row{}, &ParseError{Line: line, Reason: fmt.Sprintf("expected at least 3 columns, got %d", len(record))}
	}
	return newRow(line, record[0], record[1], record[2], splitLabels(record[3:]))
}

// Close releases the underlying file when the reader was created by Open.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// readHeader consumes records up to the header. Leading "#" records are
// skipped unless they name the required columns, as the AudioSet
// "# YTID, start_seconds, ..." line does.
func (r *Reader) readHeader() error {
	for {
		record, err := r.csv.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.EOF
			}
			return services.Wrap(services.ErrManifestParse, "manifest", "header", "unreadable header row", err)
		}
		columns, missing := headerColumns(record)
		if missing == "" {
			r.columns = columns
			return nil
		}
		if !isComment(record) {
			return services.Wrap(services.ErrManifestParse, "manifest", "header", fmt.Sprintf("missing column %q", missing), nil)
		}
	}
}

// headerColumns maps column names to indexes and reports the first required
// column that is absent.
func headerColumns(record []string) (map[string]int, string) {
	columns := make(map[string]int, len(record))
	for idx, name := range record {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(name), "#")))
		if alias, ok := columnAliases[key]; ok {
			key = alias
		}
		if _, exists := columns[key]; !exists {
			columns[key] = idx
		}
	}
	for _, required := range []string{ColumnIdentifier, ColumnStart, ColumnEnd} {
		if _, ok := columns[required]; !ok {
			return nil, required
		}
	}
	return columns, ""
}

func isComment(record []string) bool {
	return len(record) > 0 && strings.HasPrefix(strings.TrimSpace(record[0]), "#")
}

func (r *Reader) rowFromColumns(line int, record []string) (Row, error) {
	cell := func(name string) (string, bool) {
		idx, ok := r.columns[name]
		if !ok || idx >= len(record) {
			return "", false
		}
		return record[idx], true
	}
	identifier, ok := cell(ColumnIdentifier)
	if !ok {
		return Row{}, &ParseError{Line: line, Reason: "missing identifier column"}
	}
	start, ok := cell(ColumnStart)
	if !ok {
		return Row{}, &ParseError{Line: line, Reason: "missing start_seconds column"}
	}
	end, ok := cell(ColumnEnd)
	if !ok {
		return Row{}, &ParseError{Line: line, Reason: "missing end_seconds column"}
	}
	var labels []string
	if raw, ok := cell(ColumnLabels); ok {
		labels = splitLabels([]string{raw})
	}
	return newRow(line, identifier, start, end, labels)
}

// splitLabels flattens label cells, splitting comma-joined cells so that
// "Speech,Music" and "Speech","Music" yield the same sequence.
func splitLabels(cells []string) []string {
	var out []string
	for _, cell := range cells {
		out = append(out, strings.Split(cell, ",")...)
	}
	return out
}
