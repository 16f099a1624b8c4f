// Package tabular moves campaign data in and out of CSV and XLSX files.
package tabular

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Format is a spreadsheet file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatXLSX:
		return f, nil
	default:
		return "", eris.Errorf("tabular: unsupported format %q (want csv or xlsx)", s)
	}
}

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", eris.Errorf("tabular: cannot infer format of %q", path)
	}
	return ParseFormat(ext)
}
