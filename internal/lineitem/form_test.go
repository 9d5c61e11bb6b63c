package lineitem

import (
	"bytes"
	"errors"
	"net/url"
	"strings"
	"testing"

	"stockmaster/backend/internal/validation"
)

func TestRenderBodyUsesFormFieldNames(t *testing.T) {
	tbl := NewTable(WithExpiryColumn(), sequentialIDs())
	tbl.AddRow(widget, PriceFieldSell)

	var buf bytes.Buffer
	if err := tbl.RenderBody(&buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	html := buf.String()

	for _, want := range []string{
		`name="item_product_id[]" value="7"`,
		`name="item_quantity[]"`,
		`value="10.00"`,
		`name="item_expiry_date[]"`,
		`<td class="row-amount">10.00</td>`,
		`W-01 - Widget`,
		`data-remove-row="row-1"`,
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("expected %q in rendered body:\n%s", want, html)
		}
	}
}

func TestRenderBodyOmitsExpiryWithoutColumn(t *testing.T) {
	tbl := NewTable(sequentialIDs())
	tbl.AddRow(widget, PriceFieldSell)

	var buf bytes.Buffer
	if err := tbl.RenderBody(&buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(buf.String(), "item_expiry_date[]") {
		t.Fatalf("did not expect expiry input:\n%s", buf.String())
	}
}

func TestRenderBodyEscapesProductText(t *testing.T) {
	tbl := NewTable(sequentialIDs())
	product := widget
	product.Name = `<script>alert("x")</script>`
	tbl.AddRow(product, PriceFieldSell)

	var buf bytes.Buffer
	if err := tbl.RenderBody(&buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(buf.String(), "<script>") {
		t.Fatalf("expected product name to be escaped:\n%s", buf.String())
	}
}

func TestGridHasHeaderRowsAndFooter(t *testing.T) {
	tbl := NewTable(WithExpiryColumn(), sequentialIDs())
	row := tbl.AddRow(widget, PriceFieldSell)
	if _, err := tbl.UpdateField(row.ID, FieldExpiryDate, "2030-12-31"); err != nil {
		t.Fatalf("update expiry: %v", err)
	}

	grid := tbl.Grid()
	if len(grid) != 3 {
		t.Fatalf("expected header, one row and footer, got %d records", len(grid))
	}
	if strings.Join(grid[0], "|") != "Product|Quantity|Unit Price|Expiry Date|Amount" {
		t.Fatalf("unexpected header %v", grid[0])
	}
	if strings.Join(grid[1], "|") != "W-01 - Widget|1|10.00|2030-12-31|10.00" {
		t.Fatalf("unexpected row %v", grid[1])
	}
	if grid[2][0] != "Total" || grid[2][4] != "10.00" {
		t.Fatalf("unexpected footer %v", grid[2])
	}
}

func TestFormValuesRoundTripThroughParseForm(t *testing.T) {
	tbl := NewTable(WithExpiryColumn(), sequentialIDs())
	first := tbl.AddRow(widget, PriceFieldSell)
	tbl.AddRow(gadget, "cost")
	if _, err := tbl.UpdateField(first.ID, FieldQuantity, "2.5"); err != nil {
		t.Fatalf("update: %v", err)
	}

	items := ParseForm(tbl.FormValues())
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ProductIDValue() != 7 || items[0].Quantity != "2.5" || items[0].UnitPrice != "10.00" {
		t.Fatalf("unexpected first item %+v", items[0])
	}
	if items[1].UnitPrice != "4.00" {
		t.Fatalf("expected cost price on second item, got %+v", items[1])
	}
	if got := items[0].Amount().StringFixed(2); got != "25.00" {
		t.Fatalf("expected amount 25.00, got %s", got)
	}
}

func TestParseFormSkipsIncompleteEntries(t *testing.T) {
	values := url.Values{
		FormProductID: {"1", "", "3", "4"},
		FormQuantity:  {"2", "5", "", "1"},
		FormUnitPrice: {"3.00", "1.00", "9.00"},
	}

	items := ParseForm(values)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d (%+v)", len(items), items)
	}
	if items[0].ProductID != "1" || items[0].UnitPrice != "3.00" {
		t.Fatalf("unexpected first item %+v", items[0])
	}
	if items[1].ProductID != "4" || items[1].UnitPrice != "0" {
		t.Fatalf("expected missing price to default to 0, got %+v", items[1])
	}
}

func TestValidateItems(t *testing.T) {
	ok := []Item{{ProductID: "1", Quantity: "0.01", UnitPrice: "0", ExpiryDate: "2030-01-31"}}
	if err := ValidateItems(ok); err != nil {
		t.Fatalf("expected valid items, got %v", err)
	}

	bad := []Item{
		{ProductID: "1", Quantity: "1", UnitPrice: "1"},
		{ProductID: "x", Quantity: "0", UnitPrice: "-2", ExpiryDate: "31/01/2030"},
	}
	err := ValidateItems(bad)
	var errs validation.Errors
	if !errors.As(err, &errs) {
		t.Fatalf("expected validation.Errors, got %v", err)
	}
	if len(errs) != 4 {
		t.Fatalf("expected 4 field errors, got %d (%v)", len(errs), errs)
	}
	for _, fe := range errs {
		if !strings.HasPrefix(fe.Field, "items[1].") {
			t.Fatalf("expected errors on second item only, got %+v", fe)
		}
	}
}
