package manifest

import (
	"encoding/csv"
	"io"
	"strconv"
)

// Failure describes one video that could not be trafficked.
type Failure struct {
	CreativeName string
	ZIP          string
	Source       string
	LandingURL   string
	Err          error
}

// SuccessWriter records activated ad IDs, one per line. Every write is
// flushed immediately so partial progress survives a failed run.
type SuccessWriter struct {
	w *csv.Writer
}

func NewSuccessWriter(w io.Writer) *SuccessWriter {
	return &SuccessWriter{w: csv.NewWriter(w)}
}

func (s *SuccessWriter) Write(adID int64) error {
	if err := s.w.Write([]string{strconv.FormatInt(adID, 10)}); err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

// FailureWriter records failed rows with enough context to retry them by
// hand. Flushed per record, like SuccessWriter.
type FailureWriter struct {
	w *csv.Writer
}

func NewFailureWriter(w io.Writer) *FailureWriter {
	return &FailureWriter{w: csv.NewWriter(w)}
}

func (f *FailureWriter) Write(rec Failure) error {
	msg := ""
	if rec.Err != nil {
		msg = rec.Err.Error()
	}
	if err := f.w.Write([]string{rec.CreativeName, rec.ZIP, rec.Source, rec.LandingURL, msg}); err != nil {
		return err
	}
	f.w.Flush()
	return f.w.Error()
}
