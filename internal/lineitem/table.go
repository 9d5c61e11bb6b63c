// Package lineitem models the dynamic line-item table of order, purchase and
// sales forms: rows seeded from a selected product, per-row amounts and a
// grand total that always equals the sum of the rows currently in the table.
package lineitem

import (
	"errors"
	"slices"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"

	"stockmaster/backend/internal/domain"
	"stockmaster/backend/internal/money"
	"stockmaster/backend/internal/xid"
)

var (
	ErrRowNotFound    = errors.New("row not found")
	ErrUnknownField   = errors.New("unknown row field")
	ErrNoExpiryColumn = errors.New("table has no expiry column")
)

const (
	// PriceFieldSell selects the product's sell price when seeding a row. Any
	// other value selects the cost price.
	PriceFieldSell = "sell"

	defaultQuantity = "1"
)

func defaultIDGenerator() string {
	return xid.New("row")
}

type Field int

const (
	FieldQuantity Field = iota + 1
	FieldUnitPrice
	FieldExpiryDate
)

func (f Field) String() string {
	switch f {
	case FieldQuantity:
		return "quantity"
	case FieldUnitPrice:
		return "unit_price"
	case FieldExpiryDate:
		return "expiry_date"
	default:
		return "field(" + strconv.Itoa(int(f)) + ")"
	}
}

// Row is one line item. Quantity, UnitPrice and ExpiryDate hold the text as
// typed; Amount is the value computed at the last recomputation.
type Row struct {
	ID         string
	ProductID  int64
	Code       string
	Name       string
	Quantity   string
	UnitPrice  string
	ExpiryDate string
	Amount     decimal.Decimal
}

func (r Row) Label() string {
	return r.Code + " - " + r.Name
}

func (r Row) View() domain.RowView {
	return domain.RowView{
		ID:         r.ID,
		ProductID:  r.ProductID,
		Label:      r.Label(),
		Quantity:   r.Quantity,
		UnitPrice:  r.UnitPrice,
		ExpiryDate: r.ExpiryDate,
		Amount:     money.Format(r.Amount),
	}
}

type EventKind string

const (
	EventRowAdded   EventKind = "row_added"
	EventRowUpdated EventKind = "row_updated"
	EventRowRemoved EventKind = "row_removed"
	// EventTableClosed is the last event a table delivers.
	EventTableClosed EventKind = "table_closed"
)

// Event describes a settled mutation. Total is the grand total after it.
// Seq increases by one per event on a table; observers run outside the
// table lock, so concurrent mutations may arrive out of Seq order.
type Event struct {
	Kind  EventKind
	Seq   uint64
	Row   Row
	Total decimal.Decimal
}

type Option func(*Table)

// WithExpiryColumn declares an expiry-date column; rows then carry an expiry field.
func WithExpiryColumn() Option {
	return func(t *Table) { t.hasExpiry = true }
}

func WithIDGenerator(fn func() string) Option {
	return func(t *Table) {
		if fn != nil {
			t.newID = fn
		}
	}
}

type observer struct {
	id int
	fn func(Event)
}

// Table is the in-memory model behind a line-item form. It is safe for
// concurrent use; observers run after the table lock is released.
type Table struct {
	mu         sync.Mutex
	hasExpiry  bool
	newID      func() string
	rows       []*Row
	total      decimal.Decimal
	seq        uint64
	closed     bool
	observers  []observer
	observerID int
}

func NewTable(opts ...Option) *Table {
	t := &Table{newID: defaultIDGenerator, total: decimal.Zero}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Table) HasExpiry() bool {
	return t.hasExpiry
}

// SelectPrice returns the sell price for PriceFieldSell and the cost price otherwise.
func SelectPrice(product domain.Product, priceField string) decimal.Decimal {
	if priceField == PriceFieldSell {
		return money.FromFloat(product.SellPrice)
	}
	return money.FromFloat(product.UnitPrice)
}

// AddRow appends a row for product with quantity 1 and the selected price,
// then recomputes the total.
func (t *Table) AddRow(product domain.Product, priceField string) Row {
	price := SelectPrice(product, priceField)

	t.mu.Lock()
	row := &Row{
		ID:        t.newID(),
		ProductID: product.ID,
		Code:      product.Code,
		Name:      product.Name,
		Quantity:  defaultQuantity,
		UnitPrice: money.Format(price),
		Amount:    price.Round(money.Places),
	}
	t.rows = append(t.rows, row)
	t.recomputeLocked()
	evt := t.eventLocked(EventRowAdded, *row)
	observers := t.snapshotObserversLocked()
	t.mu.Unlock()

	notify(observers, evt)
	return evt.Row
}

// UpdateField stores the edited text and, for quantity and price, recomputes
// the row amount and the total. Text that does not parse counts as zero.
func (t *Table) UpdateField(rowID string, field Field, value string) (Row, error) {
	t.mu.Lock()
	row := t.findLocked(rowID)
	if row == nil {
		t.mu.Unlock()
		return Row{}, ErrRowNotFound
	}

	switch field {
	case FieldQuantity:
		row.Quantity = value
	case FieldUnitPrice:
		row.UnitPrice = value
	case FieldExpiryDate:
		if !t.hasExpiry {
			t.mu.Unlock()
			return Row{}, ErrNoExpiryColumn
		}
		row.ExpiryDate = value
	default:
		t.mu.Unlock()
		return Row{}, ErrUnknownField
	}

	if field != FieldExpiryDate {
		row.Amount = money.RowAmount(money.ParseOrZero(row.Quantity), money.ParseOrZero(row.UnitPrice))
		t.recomputeLocked()
	}
	evt := t.eventLocked(EventRowUpdated, *row)
	observers := t.snapshotObserversLocked()
	t.mu.Unlock()

	notify(observers, evt)
	return evt.Row, nil
}

// RemoveRow detaches the row and recomputes the total.
func (t *Table) RemoveRow(rowID string) error {
	t.mu.Lock()
	idx := slices.IndexFunc(t.rows, func(r *Row) bool { return r.ID == rowID })
	if idx < 0 {
		t.mu.Unlock()
		return ErrRowNotFound
	}
	removed := *t.rows[idx]
	t.rows = slices.Delete(t.rows, idx, idx+1)
	t.recomputeLocked()
	evt := t.eventLocked(EventRowRemoved, removed)
	observers := t.snapshotObserversLocked()
	t.mu.Unlock()

	notify(observers, evt)
	return nil
}

// Recompute sums the current row amounts into the total and returns it.
func (t *Table) Recompute() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recomputeLocked()
	return t.total
}

func (t *Table) Total() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rows)
}

func (t *Table) Row(rowID string) (Row, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	row := t.findLocked(rowID)
	if row == nil {
		return Row{}, false
	}
	return *row, true
}

// Rows returns copies of the rows in display order.
func (t *Table) Rows() []Row {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Row, 0, len(t.rows))
	for _, row := range t.rows {
		out = append(out, *row)
	}
	return out
}

// Close delivers EventTableClosed to every observer and detaches them all.
// Later subscriptions receive nothing. Calling Close again is a no-op.
func (t *Table) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	evt := t.eventLocked(EventTableClosed, Row{})
	observers := t.snapshotObserversLocked()
	t.observers = nil
	t.mu.Unlock()

	notify(observers, evt)
}

// Subscribe registers fn for every settled mutation. The caller owns the
// returned func and must call it to stop receiving events.
func (t *Table) Subscribe(fn func(Event)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return func() {}
	}
	t.observerID++
	id := t.observerID
	t.observers = append(t.observers, observer{id: id, fn: fn})
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			t.observers = slices.DeleteFunc(t.observers, func(o observer) bool { return o.id == id })
			t.mu.Unlock()
		})
	}
}

func (t *Table) View() domain.TableView {
	t.mu.Lock()
	defer t.mu.Unlock()
	rows := make([]domain.RowView, 0, len(t.rows))
	for _, row := range t.rows {
		rows = append(rows, row.View())
	}
	return domain.TableView{
		HasExpiry: t.hasExpiry,
		Rows:      rows,
		Total:     money.Format(t.total),
		Seq:       t.seq,
	}
}

func (t *Table) eventLocked(kind EventKind, row Row) Event {
	t.seq++
	return Event{Kind: kind, Seq: t.seq, Row: row, Total: t.total}
}

func (t *Table) recomputeLocked() {
	amounts := make([]decimal.Decimal, 0, len(t.rows))
	for _, row := range t.rows {
		amounts = append(amounts, row.Amount)
	}
	t.total = money.Sum(amounts)
}

func (t *Table) findLocked(rowID string) *Row {
	for _, row := range t.rows {
		if row.ID == rowID {
			return row
		}
	}
	return nil
}

func (t *Table) snapshotObserversLocked() []func(Event) {
	if len(t.observers) == 0 {
		return nil
	}
	fns := make([]func(Event), 0, len(t.observers))
	for _, o := range t.observers {
		fns = append(fns, o.fn)
	}
	return fns
}

func notify(observers []func(Event), evt Event) {
	for _, fn := range observers {
		fn(evt)
	}
}
