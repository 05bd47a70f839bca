package tabular

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DecodeCSV reads a delimited text export. Byte-order marks are honoured:
// UTF-16 content (the "Unicode Text" flavour spreadsheet tools emit) is
// transformed to UTF-8 before parsing, a UTF-8 BOM is stripped. The
// delimiter is detected from the header line out of comma, semicolon and
// tab. Rows may be ragged; cells are kept verbatim.
func DecodeCSV(r io.Reader) (Source, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Source{}, fmt.Errorf("tabular: read input: %w", err)
	}

	text, err := toUTF8(raw)
	if err != nil {
		return Source{}, fmt.Errorf("tabular: decode text: %w", err)
	}
	if len(bytes.TrimSpace(text)) == 0 {
		return Source{}, ErrEmptySource
	}

	reader := csv.NewReader(bytes.NewReader(text))
	reader.Comma = detectDelimiter(text)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return Source{}, fmt.Errorf("tabular: parse csv: %w", err)
	}
	if len(records) == 0 {
		return Source{}, ErrEmptySource
	}
	return Source{Header: records[0], Rows: records[1:]}, nil
}

func toUTF8(raw []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(raw, []byte{0xFF, 0xFE}):
		dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		return io.ReadAll(transform.NewReader(bytes.NewReader(raw), dec))
	case bytes.HasPrefix(raw, []byte{0xFE, 0xFF}):
		dec := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder()
		return io.ReadAll(transform.NewReader(bytes.NewReader(raw), dec))
	case bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}):
		return raw[3:], nil
	default:
		return raw, nil
	}
}

// detectDelimiter inspects the header line. Comma wins ties so plain CSV
// stays the default.
func detectDelimiter(text []byte) rune {
	line := string(text)
	if idx := strings.IndexAny(line, "\r\n"); idx >= 0 {
		line = line[:idx]
	}
	best := ','
	bestCount := strings.Count(line, ",")
	if c := strings.Count(line, ";"); c > bestCount {
		best, bestCount = ';', c
	}
	if c := strings.Count(line, "\t"); c > bestCount {
		best = '\t'
	}
	return best
}
