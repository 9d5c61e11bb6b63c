package lineitem

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"stockmaster/backend/internal/money"
	"stockmaster/backend/internal/validation"
)

// Form field names posted by line-item forms.
const (
	FormProductID  = "item_product_id[]"
	FormQuantity   = "item_quantity[]"
	FormUnitPrice  = "item_unit_price[]"
	FormExpiryDate = "item_expiry_date[]"
)

// Item is one submitted line as posted by the browser.
type Item struct {
	ProductID  string `validate:"required,number"`
	Quantity   string `validate:"required,dgte=0.01"`
	UnitPrice  string `validate:"required,dgte=0"`
	ExpiryDate string `validate:"omitempty,datetime=2006-01-02"`
}

func (it Item) ProductIDValue() int64 {
	id, _ := strconv.ParseInt(it.ProductID, 10, 64)
	return id
}

func (it Item) Amount() decimal.Decimal {
	return money.RowAmount(money.ParseOrZero(it.Quantity), money.ParseOrZero(it.UnitPrice))
}

// FormValues encodes the rows the way the rendered form would post them.
func (t *Table) FormValues() url.Values {
	values := url.Values{}
	for _, row := range t.Rows() {
		values.Add(FormProductID, strconv.FormatInt(row.ProductID, 10))
		values.Add(FormQuantity, row.Quantity)
		values.Add(FormUnitPrice, row.UnitPrice)
		if t.hasExpiry {
			values.Add(FormExpiryDate, row.ExpiryDate)
		}
	}
	return values
}

// ParseForm extracts submitted items. Entries without a product id or a
// quantity are skipped; a missing or blank price reads as "0".
func ParseForm(values url.Values) []Item {
	ids := values[FormProductID]
	quantities := values[FormQuantity]
	prices := values[FormUnitPrice]
	expiries := values[FormExpiryDate]

	items := make([]Item, 0, len(ids))
	for i := range ids {
		id := strings.TrimSpace(ids[i])
		qty := at(quantities, i)
		if id == "" || qty == "" {
			continue
		}
		price := at(prices, i)
		if price == "" {
			price = "0"
		}
		items = append(items, Item{
			ProductID:  id,
			Quantity:   qty,
			UnitPrice:  price,
			ExpiryDate: at(expiries, i),
		})
	}
	return items
}

// ValidateItems applies the submission rules: quantity ≥ 0.01, price ≥ 0 and
// an ISO expiry date when one is given.
func ValidateItems(items []Item) error {
	var errs validation.Errors
	for i, item := range items {
		errs = append(errs, validation.Struct(fmt.Sprintf("items[%d]", i), item)...)
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func at(values []string, i int) string {
	if i < len(values) {
		return strings.TrimSpace(values[i])
	}
	return ""
}
