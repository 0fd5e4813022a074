// Package manifest reads the CSV description of the videos to traffic and
// writes the two report files produced by a run.
package manifest

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

const (
	ColumnFilename     = "Filename"
	ColumnFileURL      = "File URL"
	ColumnCreativeName = "Creative name"
	ColumnZIP          = "ZIP"
	ColumnLandingURL   = "Landing URL"
)

// VideoExtension is appended to every creative name before sanitization.
const VideoExtension = ".mp4"

var forbiddenChars = regexp.MustCompile(`[^0-9a-zA-Z.=_-]+`)

// Row is one manifest entry. Filename and FileURL are alternatives: a row
// must carry at least one of them.
type Row struct {
	Filename     string
	FileURL      string
	CreativeName string
	ZIP          string
	LandingURL   string
}

// Source reports the video origin of the row, preferring the local file.
func (r Row) Source() string {
	if r.Filename != "" {
		return r.Filename
	}
	return r.FileURL
}

// SanitizeCreativeName replaces every run of characters the platform rejects
// in creative names with a single underscore. Idempotent.
func SanitizeCreativeName(name string) string {
	return forbiddenChars.ReplaceAllString(name, "_")
}

// NormalizeZIP parses a ZIP code as an integer and reformats it as a 5-digit
// zero-padded string.
func NormalizeZIP(zip string) (string, error) {
	n, err := strconv.Atoi(strings.TrimSpace(zip))
	if err != nil {
		return "", fmt.Errorf("ZIP %q is not an integer", zip)
	}
	return fmt.Sprintf("%05d", n), nil
}

// Reader streams manifest rows. Columns are located by header name, so column
// order in the file does not matter and unknown columns are ignored.
type Reader struct {
	csv     *csv.Reader
	columns map[string]int
}

func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(r)
	// Ragged rows are handled per field; a short record just yields empty
	// values, which the row pipeline reports as a row-level failure.
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read manifest header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}

	return &Reader{csv: cr, columns: columns}, nil
}

// Read returns the next row, or io.EOF when the manifest is exhausted.
func (r *Reader) Read() (Row, error) {
	record, err := r.csv.Read()
	if err != nil {
		return Row{}, err
	}

	return Row{
		Filename:     r.field(record, ColumnFilename),
		FileURL:      r.field(record, ColumnFileURL),
		CreativeName: r.field(record, ColumnCreativeName),
		ZIP:          r.field(record, ColumnZIP),
		LandingURL:   r.field(record, ColumnLandingURL),
	}, nil
}

func (r *Reader) field(record []string, column string) string {
	i, ok := r.columns[column]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
