package stage

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Label renders a stage or state name for display ("trim" -> "Trim",
// "row_skipped" -> "Row Skipped").
func Label(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "_", " "))
	if name == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.ToLower(name))
}
