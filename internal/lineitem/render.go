package lineitem

import (
	"html/template"
	"io"

	"stockmaster/backend/internal/money"
)

// bodyTmpl renders the <tr> rows of a line-item table. The input names are
// read by the server-side form handlers.
var bodyTmpl = template.Must(template.New("line-items").Parse(`{{range .Rows}}<tr data-row-id="{{.ID}}">
  <td><input type="hidden" name="item_product_id[]" value="{{.ProductID}}">{{.Label}}</td>
  <td><input type="number" name="item_quantity[]" class="form-control form-control-sm" value="{{.Quantity}}" min="0.01" step="0.01" required></td>
  <td><input type="number" name="item_unit_price[]" class="form-control form-control-sm" value="{{.UnitPrice}}" min="0" step="0.01"></td>
{{- if $.HasExpiry}}
  <td><input type="date" name="item_expiry_date[]" class="form-control form-control-sm" value="{{.ExpiryDate}}"></td>
{{- end}}
  <td class="row-amount">{{.Amount}}</td>
  <td><button type="button" class="btn btn-sm btn-outline-danger" data-remove-row="{{.ID}}">X</button></td>
</tr>
{{end}}`))

// RenderBody writes the table body markup for the current rows.
func (t *Table) RenderBody(w io.Writer) error {
	return bodyTmpl.Execute(w, t.View())
}

// Grid returns the header, one record per row and a total footer, as the
// cells would read on screen.
func (t *Table) Grid() [][]string {
	view := t.View()

	header := []string{"Product", "Quantity", "Unit Price"}
	if view.HasExpiry {
		header = append(header, "Expiry Date")
	}
	header = append(header, "Amount")

	grid := make([][]string, 0, len(view.Rows)+2)
	grid = append(grid, header)
	for _, row := range view.Rows {
		record := []string{row.Label, row.Quantity, row.UnitPrice}
		if view.HasExpiry {
			record = append(record, row.ExpiryDate)
		}
		record = append(record, row.Amount)
		grid = append(grid, record)
	}

	footer := make([]string, len(header))
	footer[0] = "Total"
	footer[len(footer)-1] = view.Total
	grid = append(grid, footer)
	return grid
}

// TotalText is the grand total as displayed.
func (t *Table) TotalText() string {
	return money.Format(t.Total())
}
