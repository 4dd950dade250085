package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrWorkspace     = errors.New("workspace error")
	ErrManifestParse = errors.New("manifest parse error")
	ErrFetch         = errors.New("fetch failure")
	ErrTranscode     = errors.New("transcode failure")
	ErrTrim          = errors.New("trim failure")
	ErrRecord        = errors.New("record failure")
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrTimeout       = errors.New("timeout")
	// ErrPanic marks a recovered panic inside a stage or a manifest unit.
	ErrPanic         = errors.New("internal panic")
)

var markers = []error{
	ErrWorkspace,
	ErrManifestParse,
	ErrFetch,
	ErrTranscode,
	ErrTrim,
	ErrRecord,
	ErrValidation,
	ErrConfiguration,
	ErrTimeout,
	ErrPanic,
	ErrExternalTool,
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ErrorDetails is the structured view of a wrapped error used for logging.
type ErrorDetails struct {
	Kind    string
	Message string
	Cause   error
}

// Details classifies err by the first matching marker and returns the
// innermost message for log output.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Message: strings.TrimSpace(err.Error()), Cause: err}
	for _, marker := range markers {
		if errors.Is(err, marker) {
			details.Kind = marker.Error()
			details.Message = strings.TrimSpace(strings.TrimPrefix(details.Message, marker.Error()+":"))
			break
		}
	}
	if details.Kind == "" {
		details.Kind = "unclassified"
	}
	return details
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
