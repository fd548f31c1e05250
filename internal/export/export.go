// Package export writes result records as JSON, NDJSON, CSV or Excel.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/maltedev/amazon-review-scraper/internal/models"
)

var ErrUnknownFormat = errors.New("unknown export format")

type Format string

const (
	FormatJSON   Format = "json"
	FormatNDJSON Format = "ndjson"
	FormatCSV    Format = "csv"
	FormatExcel  Format = "excel"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatNDJSON, FormatCSV, FormatExcel:
		return f, nil
	case "xlsx":
		return FormatExcel, nil
	case "jsonl":
		return FormatNDJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

func (f Format) Extension() string {
	switch f {
	case FormatNDJSON:
		return ".ndjson"
	case FormatCSV:
		return ".csv"
	case FormatExcel:
		return ".xlsx"
	default:
		return ".json"
	}
}

// Writer serializes a batch of records. Records are written unmodified.
type Writer interface {
	Write(w io.Writer, records []models.ResultRecord) error
}

func WriterFor(f Format) (Writer, error) {
	switch f {
	case FormatJSON:
		return JSONWriter{Indent: "  "}, nil
	case FormatNDJSON:
		return NDJSONWriter{}, nil
	case FormatCSV:
		return CSVWriter{}, nil
	case FormatExcel:
		return ExcelWriter{SheetName: "reviews"}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

// WriteFile creates path and writes records to it in format f.
func WriteFile(path string, f Format, records []models.ResultRecord) (err error) {
	writer, err := WriterFor(f)
	if err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := writer.Write(file, records); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

type JSONWriter struct {
	Indent string
}

func (j JSONWriter) Write(w io.Writer, records []models.ResultRecord) error {
	if records == nil {
		records = []models.ResultRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if j.Indent != "" {
		enc.SetIndent("", j.Indent)
	}
	return enc.Encode(records)
}

type NDJSONWriter struct{}

func (NDJSONWriter) Write(w io.Writer, records []models.ResultRecord) error {
	enc := NewNDJSONEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// NDJSONEncoder writes one record per line, for streaming results as they finish.
type NDJSONEncoder struct {
	enc *json.Encoder
}

func NewNDJSONEncoder(w io.Writer) *NDJSONEncoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &NDJSONEncoder{enc: enc}
}

func (e *NDJSONEncoder) Encode(record models.ResultRecord) error {
	return e.enc.Encode(record)
}

// Columns of the flat review table, one row per review. Record level fields
// repeat on every row of that record.
var Columns = []string{
	"asin",
	"countRatings",
	"countReviews",
	"currentPage",
	"date",
	"domainCode",
	"filters",
	"imageUrlList",
	"numberOfHelpful",
	"productRating",
	"productTitle",
	"rating",
	"reviewId",
	"reviewSummary",
	"sortStrategy",
	"statusCode",
	"statusMessage",
	"text",
	"title",
	"userName",
	"variationId",
	"variationList",
	"verified",
	"videoUrlList",
	"vine",
}

// Rows flattens records into table rows in Columns order. A record without
// reviews still gets one row so its status is visible.
func Rows(records []models.ResultRecord) ([][]string, error) {
	var rows [][]string
	for _, rec := range records {
		base, err := recordCells(rec)
		if err != nil {
			return nil, err
		}
		if len(rec.Reviews) == 0 {
			rows = append(rows, toRow(base))
			continue
		}
		for _, review := range rec.Reviews {
			cells, err := reviewCells(review)
			if err != nil {
				return nil, err
			}
			for k, v := range base {
				cells[k] = v
			}
			rows = append(rows, toRow(cells))
		}
	}
	return rows, nil
}

func recordCells(r models.ResultRecord) (map[string]string, error) {
	filters, err := jsonCell(r.Filters)
	if err != nil {
		return nil, err
	}
	summary := ""
	if r.ReviewSummary != nil {
		if summary, err = jsonCell(r.ReviewSummary); err != nil {
			return nil, err
		}
	}
	return map[string]string{
		"asin":          r.ASIN,
		"countRatings":  strconv.Itoa(r.CountRatings),
		"countReviews":  strconv.Itoa(r.CountReviews),
		"currentPage":   strconv.Itoa(r.CurrentPage),
		"domainCode":    r.DomainCode,
		"filters":       filters,
		"productRating": r.ProductRating,
		"productTitle":  r.ProductTitle,
		"reviewSummary": summary,
		"sortStrategy":  r.SortStrategy,
		"statusCode":    strconv.Itoa(r.StatusCode),
		"statusMessage": r.StatusMessage,
	}, nil
}

func reviewCells(r models.Review) (map[string]string, error) {
	images, err := mediaCell(r.ImageURLList)
	if err != nil {
		return nil, err
	}
	videos, err := mediaCell(r.VideoURLList)
	if err != nil {
		return nil, err
	}
	variations, err := jsonCell(r.VariationList)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"date":            r.Date,
		"imageUrlList":    images,
		"numberOfHelpful": strconv.Itoa(r.NumberOfHelpful),
		"rating":          r.Rating,
		"reviewId":        r.ReviewID,
		"text":            r.Text,
		"title":           r.Title,
		"userName":        r.UserName,
		"variationId":     r.VariationID,
		"variationList":   variations,
		"verified":        strconv.FormatBool(r.Verified),
		"videoUrlList":    videos,
		"vine":            strconv.FormatBool(r.Vine),
	}, nil
}

func toRow(cells map[string]string) []string {
	row := make([]string, len(Columns))
	for i, c := range Columns {
		row[i] = cells[c]
	}
	return row
}

func mediaCell(m models.MediaList) (string, error) {
	if !m.Valid {
		return "", nil
	}
	return jsonCell(m)
}

func jsonCell(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
