package export

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/xuri/excelize/v2"

	"stockmaster/backend/internal/money"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	defaultSheet    = "Items"
	maxSheetName    = 31
	// numFmtAmount is the built-in "#,##0.00" format.
	numFmtAmount = 4
)

// WriteXLSX writes the source as a single-sheet workbook. The first record is
// styled as a header; body cells that read as numbers are stored as numbers.
// A nil source writes nothing.
func WriteXLSX(w io.Writer, sheet string, source GridSource) error {
	if source == nil {
		return nil
	}
	f, err := buildWorkbook(sheet, source.Grid())
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return f.Write(w)
}

// ServeXLSX sends the source as an .xlsx attachment. A nil source is a no-op.
func ServeXLSX(w http.ResponseWriter, filename string, sheet string, source GridSource) error {
	if source == nil {
		return nil
	}
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, sheet, source); err != nil {
		return err
	}
	setDownloadHeaders(w, xlsxContentType, SanitizeFilename(filename, DefaultXLSXFilename), buf.Len())
	_, err := w.Write(buf.Bytes())
	return err
}

func buildWorkbook(sheet string, rows [][]string) (*excelize.File, error) {
	sheet = sheetName(sheet)
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		_ = f.Close()
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: numFmtAmount})
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	widths := map[int]int{}
	for r, record := range rows {
		for c, text := range record {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				_ = f.Close()
				return nil, err
			}
			text = strings.TrimSpace(text)
			if len(text)+4 > widths[c] {
				widths[c] = len(text) + 4
			}

			if r == 0 {
				err = f.SetCellValue(sheet, cell, text)
				if err == nil {
					err = f.SetCellStyle(sheet, cell, cell, headerStyle)
				}
			} else if parsed := money.Parse(text); parsed.Valid {
				err = f.SetCellValue(sheet, cell, parsed.Value.InexactFloat64())
				if err == nil {
					err = f.SetCellStyle(sheet, cell, cell, amountStyle)
				}
			} else {
				err = f.SetCellValue(sheet, cell, text)
			}
			if err != nil {
				_ = f.Close()
				return nil, err
			}
		}
	}

	for c, width := range widths {
		col, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		if err := f.SetColWidth(sheet, col, col, float64(max(width, 12))); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return f, nil
}

func sheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return -1
		}
		return r
	}, strings.TrimSpace(name))
	if name == "" {
		return defaultSheet
	}
	if runes := []rune(name); len(runes) > maxSheetName {
		name = string(runes[:maxSheetName])
	}
	return name
}
