package manifest_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"clipharvest/internal/manifest"
	"clipharvest/internal/services"
)

func readAll(t *testing.T, r *manifest.Reader) ([]manifest.Row, []*manifest.ParseError) {
	t.Helper()
	var rows []manifest.Row
	var parseErrs []*manifest.ParseError
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			return rows, parseErrs
		}
		if err != nil {
			var pe *manifest.ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("unexpected reader error: %v", err)
			}
			parseErrs = append(parseErrs, pe)
			continue
		}
		rows = append(rows, row)
	}
}

func TestReaderRowsFormat(t *testing.T) {
	input := strings.Join([]string{
		"# Segments csv created Sun Mar  5 10:54:31 2017",
		"# YTID, start_seconds, end_seconds, positive_labels",
		`abc123, 10.0, 15.0, "Speech,Music"`,
		"def456,3.9,8.2,Dog",
	}, "\n")
	r, err := manifest.NewReader(strings.NewReader(input), "rows")
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	rows, parseErrs := readAll(t, r)
	if len(parseErrs) != 0 {
		t.Fatalf("unexpected parse errors: %v", parseErrs)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	first := rows[0]
	if first.Identifier != "abc123" || first.Start != 10 || first.End != 15 {
		t.Fatalf("unexpected first row: %+v", first)
	}
	if !reflect.DeepEqual(first.Labels, []string{"Speech", "Music"}) {
		t.Fatalf("unexpected labels: %v", first.Labels)
	}
	if first.Window() != 5 {
		t.Fatalf("expected 5 second window, got %d", first.Window())
	}
	second := rows[1]
	if second.Start != 3 || second.End != 8 {
		t.Fatalf("expected truncated seconds 3..8, got %d..%d", second.Start, second.End)
	}
	if second.Line != 4 {
		t.Fatalf("expected line 4, got %d", second.Line)
	}
}

func TestReaderSplitLabelCellsMatchJoined(t *testing.T) {
	r, err := manifest.NewReader(strings.NewReader("abc123,10.0,15.0,Speech,Music\n"), "rows")
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	rows, _ := readAll(t, r)
	if len(rows) != 1 || !reflect.DeepEqual(rows[0].Labels, []string{"Speech", "Music"}) {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestReaderRejectsMalformedRowsAndContinues(t *testing.T) {
	input := strings.Join([]string{
		"bad1,abc,15",
		"bad2,20,10",
		"bad3,5,5",
		"short,1",
		",1,2",
		"../escape,1,2",
		"good, 1 0 , 2 0",
	}, "\n")
	r, err := manifest.NewReader(strings.NewReader(input), "")
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	rows, parseErrs := readAll(t, r)
	if len(parseErrs) != 6 {
		t.Fatalf("expected 6 parse errors, got %d: %v", len(parseErrs), parseErrs)
	}
	if len(rows) != 1 || rows[0].Identifier != "good" || rows[0].Start != 10 || rows[0].End != 20 {
		t.Fatalf("expected whitespace-stripped good row, got %+v", rows)
	}
	for _, pe := range parseErrs {
		if !errors.Is(pe, services.ErrManifestParse) {
			t.Fatalf("expected parse error to match ErrManifestParse: %v", pe)
		}
	}
	if parseErrs[1].Line != 2 {
		t.Fatalf("expected end<=start failure on line 2, got %d", parseErrs[1].Line)
	}
}

func TestReaderHeaderFormat(t *testing.T) {
	input := "end_seconds,identifier,start_seconds,positive_labels\n15,abc123,10,\"Speech,Music\"\n"
	r, err := manifest.NewReader(strings.NewReader(input), "header")
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	rows, parseErrs := readAll(t, r)
	if len(parseErrs) != 0 || len(rows) != 1 {
		t.Fatalf("unexpected result rows=%v errs=%v", rows, parseErrs)
	}
	if rows[0].Identifier != "abc123" || rows[0].Start != 10 || rows[0].End != 15 {
		t.Fatalf("unexpected row: %+v", rows[0])
	}
	if !reflect.DeepEqual(rows[0].Labels, []string{"Speech", "Music"}) {
		t.Fatalf("unexpected labels: %v", rows[0].Labels)
	}
}

func TestReaderHeaderMissingColumn(t *testing.T) {
	r, err := manifest.NewReader(strings.NewReader("identifier,start_seconds\nabc,1\n"), "header")
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	_, err = r.Next()
	if err == nil || !errors.Is(err, services.ErrManifestParse) {
		t.Fatalf("expected manifest parse error, got %v", err)
	}
	var pe *manifest.ParseError
	if errors.As(err, &pe) {
		t.Fatalf("expected header failure to be manifest-level, not row-scoped")
	}
}

func TestReaderRejectsUnknownFormat(t *testing.T) {
	if _, err := manifest.NewReader(strings.NewReader(""), "parquet"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, err := manifest.Open(filepath.Join(t.TempDir(), "missing.csv"), "rows")
	if !errors.Is(err, services.ErrManifestParse) {
		t.Fatalf("expected ErrManifestParse, got %v", err)
	}
}

func TestOpenReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eval.csv")
	if err := os.WriteFile(path, []byte("abc123,0,10,Speech\n"), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	r, err := manifest.Open(path, "rows")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	rows, _ := readAll(t, r)
	if len(rows) != 1 || rows[0].Identifier != "abc123" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestReaderHeaderFromCommentLine(t *testing.T) {
	input := strings.Join([]string{
		"# Segments csv created Sun Mar  5 10:54:31 2017",
		"# num_ytids=22160, num_segs=22160, num_unique_labels=527, num_positive_labels=52882",
		"# YTID, start_seconds, end_seconds, positive_labels",
		`abc123, 10.0, 15.0, "Speech,Music"`,
		"# trailing note",
		`def456, 0.000, 10.000, "Dog"`,
	}, "\n")
	r, err := manifest.NewReader(strings.NewReader(input), "header")
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	rows, parseErrs := readAll(t, r)
	if len(parseErrs) != 0 || len(rows) != 2 {
		t.Fatalf("unexpected result rows=%+v errs=%v", rows, parseErrs)
	}
	if rows[0].Identifier != "abc123" || rows[0].Start != 10 || rows[0].End != 15 || rows[0].Line != 4 {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
	if !reflect.DeepEqual(rows[0].Labels, []string{"Speech", "Music"}) {
		t.Fatalf("unexpected labels: %v", rows[0].Labels)
	}
	if rows[1].Identifier != "def456" || rows[1].End != 10 {
		t.Fatalf("unexpected second row: %+v", rows[1])
	}
}

func TestReaderHeaderOnlyComments(t *testing.T) {
	r, err := manifest.NewReader(strings.NewReader("# nothing here\n# still nothing\n"), "header")
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}
