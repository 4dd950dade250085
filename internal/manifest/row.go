package manifest

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"clipharvest/internal/services"
)

// Row is one parsed manifest entry. End is always greater than Start.
type Row struct {
	Line       int
	Identifier string
	Start      int
	End        int
	Labels     []string
}

// Window returns the requested clip duration in seconds.
func (r Row) Window() int {
	return r.End - r.Start
}

// ParseError reports a malformed manifest row.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("manifest line %d: %s", e.Line, e.Reason)
}

// Unwrap lets errors.Is match services.ErrManifestParse.
func (e *ParseError) Unwrap() error { return services.ErrManifestParse }

// parseSeconds strips all whitespace, parses the value as a float, and
// truncates toward zero.
func parseSeconds(raw string) (int, error) {
	cleaned := strings.Join(strings.Fields(raw), "")
	if cleaned == "" {
		return 0, fmt.Errorf("empty value")
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", raw)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("invalid number %q", raw)
	}
	return int(math.Trunc(value)), nil
}

func newRow(line int, identifier, start, end string, labels []string) (Row, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return Row{}, &ParseError{Line: line, Reason: "identifier is empty"}
	}
	if strings.ContainsAny(identifier, `/\`) || identifier == "." || identifier == ".." {
		return Row{}, &ParseError{Line: line, Reason: fmt.Sprintf("identifier %q is not a valid file name", identifier)}
	}
	startSec, err := parseSeconds(start)
	if err != nil {
		return Row{}, &ParseError{Line: line, Reason: "start: " + err.Error()}
	}
	endSec, err := parseSeconds(end)
	if err != nil {
		return Row{}, &ParseError{Line: line, Reason: "end: " + err.Error()}
	}
	if startSec < 0 {
		return Row{}, &ParseError{Line: line, Reason: fmt.Sprintf("start %d is negative", startSec)}
	}
	if endSec <= startSec {
		return Row{}, &ParseError{Line: line, Reason: fmt.Sprintf("end %d must be greater than start %d", endSec, startSec)}
	}
	return Row{
		Line:       line,
		Identifier: identifier,
		Start:      startSec,
		End:        endSec,
		Labels:     cleanLabels(labels),
	}, nil
}

func cleanLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, label := range labels {
		label = strings.TrimSpace(strings.Trim(strings.TrimSpace(label), `"`))
		if label == "" {
			continue
		}
		out = append(out, label)
	}
	return out
}
