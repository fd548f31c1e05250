package export

import (
	"encoding/csv"
	"io"

	"github.com/maltedev/amazon-review-scraper/internal/models"
)

type CSVWriter struct{}

// Write emits a header and one row per review. No records means an empty file.
func (CSVWriter) Write(w io.Writer, records []models.ResultRecord) error {
	rows, err := Rows(records)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}
