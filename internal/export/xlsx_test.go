package export

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestWriteXLSX_ReadsBack(t *testing.T) {
	rows := Rows{
		{"Product", "Quantity", "Unit Price", "Amount"},
		{"W-01 - Widget", "2", "10.00", "20.00"},
		{"G-02 - Gadget", "abc", "5.50", "0.00"},
	}

	var buf bytes.Buffer
	if err := WriteXLSX(&buf, "Purchase", rows); err != nil {
		t.Fatalf("write xlsx: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	if name := f.GetSheetName(0); name != "Purchase" {
		t.Fatalf("expected sheet Purchase, got %q", name)
	}

	header, err := f.GetCellValue("Purchase", "A1")
	if err != nil || header != "Product" {
		t.Fatalf("expected header Product, got %q (%v)", header, err)
	}
	label, _ := f.GetCellValue("Purchase", "A2")
	if label != "W-01 - Widget" {
		t.Fatalf("unexpected label %q", label)
	}
	raw, _ := f.GetCellValue("Purchase", "D2", excelize.Options{RawCellValue: true})
	if raw != "20" {
		t.Fatalf("expected numeric amount 20, got %q", raw)
	}
	cellType, _ := f.GetCellType("Purchase", "D2")
	if cellType == excelize.CellTypeSharedString || cellType == excelize.CellTypeInlineString {
		t.Fatalf("expected numeric cell, got type %v", cellType)
	}
	qty, _ := f.GetCellValue("Purchase", "B3")
	if qty != "abc" {
		t.Fatalf("non-numeric text must be kept, got %q", qty)
	}

	headerStyle, _ := f.GetCellStyle("Purchase", "A1")
	bodyStyle, _ := f.GetCellStyle("Purchase", "A2")
	if headerStyle == bodyStyle {
		t.Fatalf("header row should carry its own style")
	}
}

func TestWriteXLSX_NilSourceIsNoop(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, "x", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected nothing written, got %d bytes", buf.Len())
	}
}

func TestServeXLSX_Headers(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := ServeXLSX(rec, "purchase", "", Rows{{"a"}, {"1"}}); err != nil {
		t.Fatalf("serve xlsx: %v", err)
	}
	if ct := rec.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="purchase.xlsx"` {
		t.Fatalf("unexpected content disposition %q", cd)
	}
	// xlsx is a zip container.
	if !strings.HasPrefix(rec.Body.String(), "PK") {
		t.Fatalf("body is not a zip archive")
	}
}

func TestSheetName(t *testing.T) {
	long := strings.Repeat("x", 40)
	tests := map[string]string{
		"":      defaultSheet,
		"Items": "Items",
		"a/b:c": "abc",
		long:    long[:maxSheetName],
	}
	for in, want := range tests {
		if got := sheetName(in); got != want {
			t.Errorf("sheetName(%q) = %q, want %q", in, got, want)
		}
	}
}
