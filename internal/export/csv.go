// Package export turns an on-screen table into a downloadable file.
package export

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"unicode"
)

const (
	DefaultCSVFilename  = "export.csv"
	DefaultXLSXFilename = "export.xlsx"

	// BOM lets spreadsheet tools detect UTF-8.
	BOM = "\uFEFF"
)

// GridSource is anything that can be read as rows of cell text, header first.
type GridSource interface {
	Grid() [][]string
}

// Rows adapts a plain slice to GridSource.
type Rows [][]string

func (r Rows) Grid() [][]string { return r }

// EncodeCSV renders rows as BOM-prefixed CSV. Every cell is trimmed and
// double-quoted with inner quotes doubled; records are joined by "\n".
func EncodeCSV(rows [][]string) []byte {
	var buf bytes.Buffer
	buf.WriteString(BOM)
	for i, row := range rows {
		if i > 0 {
			buf.WriteByte('\n')
		}
		for j, cell := range row {
			if j > 0 {
				buf.WriteByte(',')
			}
			buf.WriteByte('"')
			buf.WriteString(strings.ReplaceAll(strings.TrimSpace(cell), `"`, `""`))
			buf.WriteByte('"')
		}
	}
	return buf.Bytes()
}

// WriteCSV writes the source as CSV. A nil source writes nothing.
func WriteCSV(w io.Writer, source GridSource) error {
	if source == nil {
		return nil
	}
	_, err := w.Write(EncodeCSV(source.Grid()))
	return err
}

// ServeCSV sends the source as a CSV attachment. A nil source is a no-op.
func ServeCSV(w http.ResponseWriter, filename string, source GridSource) error {
	if source == nil {
		return nil
	}
	body := EncodeCSV(source.Grid())
	setDownloadHeaders(w, "text/csv; charset=utf-8", SanitizeFilename(filename, DefaultCSVFilename), len(body))
	_, err := w.Write(body)
	return err
}

// SanitizeFilename keeps the base name, drops characters that would break a
// Content-Disposition header and ensures the fallback's extension.
func SanitizeFilename(name string, fallback string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	name = strings.Map(func(r rune) rune {
		if r == '"' || r == ';' || unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == "/" {
		return fallback
	}
	ext := path.Ext(fallback)
	if !strings.EqualFold(path.Ext(name), ext) {
		name += ext
	}
	return name
}

func setDownloadHeaders(w http.ResponseWriter, contentType string, filename string, size int) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", size))
}
