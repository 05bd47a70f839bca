// Package tabular decodes uploaded spreadsheet and text exports into a
// uniform header-plus-rows form and writes grids back out as workbooks.
// All cell values stay strings; parsing belongs to the consumers.
package tabular

import (
	"errors"
	"io"
	"path/filepath"
	"strings"
)

var (
	// ErrEmptySource indicates a decoded file without a header row.
	ErrEmptySource = errors.New("tabular: source has no header row")
	// ErrUnsupportedFormat indicates a file extension without a decoder.
	ErrUnsupportedFormat = errors.New("tabular: unsupported file format")
)

// Source is an immutable decoded input: one header row plus data rows.
// Rows are not guaranteed to match the header length.
type Source struct {
	Header []string
	Rows   [][]string
}

// Grid is a mutable header-plus-rows structure owned by a count session.
// It serializes to JSON for storage.
type Grid struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// Source converts the grid into an immutable source view.
func (g Grid) Source() Source {
	return Source{Header: g.Header, Rows: g.Rows}
}

// Format identifies a supported file encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Detect maps a filename to its format by extension.
func Detect(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt", ".tsv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Decode reads r using the decoder for the given format.
func Decode(format Format, r io.Reader) (Source, error) {
	switch format {
	case FormatCSV:
		return DecodeCSV(r)
	case FormatXLSX:
		return DecodeXLSX(r)
	default:
		return Source{}, ErrUnsupportedFormat
	}
}
