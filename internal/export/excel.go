package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/maltedev/amazon-review-scraper/internal/models"
)

// DefaultExcelMaxCellLength is the maximum characters in a single Excel cell.
const DefaultExcelMaxCellLength = 32767

type ExcelWriter struct {
	SheetName string
}

func (x ExcelWriter) Write(w io.Writer, records []models.ResultRecord) error {
	rows, err := Rows(records)
	if err != nil {
		return err
	}

	sheet := x.SheetName
	if sheet == "" {
		sheet = "reviews"
	}

	file := excelize.NewFile()
	defer file.Close()

	if defaultSheet := file.GetSheetName(0); defaultSheet != sheet {
		if err := file.SetSheetName(defaultSheet, sheet); err != nil {
			return err
		}
	}

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := file.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	style, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	lastCol, err := excelize.ColumnNumberToName(len(Columns))
	if err != nil {
		return err
	}
	if err := file.SetCellStyle(sheet, "A1", lastCol+"1", style); err != nil {
		return err
	}

	for i, row := range rows {
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = truncateCell(v)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := file.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := file.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}
	if len(rows) > 0 {
		if err := file.AutoFilter(sheet, fmt.Sprintf("A1:%s%d", lastCol, len(rows)+1), nil); err != nil {
			return err
		}
	}

	_, err = file.WriteTo(w)
	return err
}

func truncateCell(v string) string {
	if len(v) <= DefaultExcelMaxCellLength {
		return v
	}
	r := []rune(v)
	if len(r) <= DefaultExcelMaxCellLength {
		return v
	}
	return string(r[:DefaultExcelMaxCellLength])
}
