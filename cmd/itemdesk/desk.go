package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"stockmaster/backend/internal/domain"
	"stockmaster/backend/internal/export"
	"stockmaster/backend/internal/lineitem"
	"stockmaster/backend/internal/money"
	"stockmaster/backend/internal/search"
	"stockmaster/backend/internal/validation"
)

const helpText = `commands:
  search <text>         look up products by name, code or barcode
  pick <n>              add the n-th search result as a row
  rows                  show the table
  qty <row> <value>     set a row quantity
  price <row> <value>   set a row unit price
  expiry <row> <date>   set a row expiry date (YYYY-MM-DD)
  rm <row>              remove a row
  total                 show the grand total
  export <file>         write the table as .csv or .xlsx
  submit                post the table to the server
  quit`

// Submitter posts a line-item form and returns the priced items.
type Submitter interface {
	Submit(ctx context.Context, form url.Values) (domain.SubmissionResponse, error)
}

// syncWriter serializes writes from the command loop, the search timer and
// table observers.
type syncWriter struct {
	mu  sync.Mutex
	out io.Writer
}

func (w *syncWriter) printf(format string, args ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.out, format, args...)
}

type lineInput struct {
	mu    sync.Mutex
	value string
}

func (i *lineInput) Value() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.value
}

func (i *lineInput) Clear() {
	i.set("")
}

func (i *lineInput) set(value string) {
	i.mu.Lock()
	i.value = value
	i.mu.Unlock()
}

// terminalResults prints the search panel as a numbered list.
type terminalResults struct {
	out *syncWriter
}

func (r terminalResults) Render(p search.Panel) {
	if p.State != search.PanelResults {
		r.out.printf("  %s\n", p.Message)
		return
	}
	for i, entry := range p.Entries {
		r.out.printf("  [%d] %s\n", i+1, entry.Label)
	}
}

func (terminalResults) Hide() {}

type deskOptions struct {
	HasExpiry  bool
	PriceField string
	Debounce   time.Duration
	Logger     *slog.Logger
}

// desk is the interactive line-item editor: a search widget feeding a local
// table that can be exported or submitted.
type desk struct {
	out        *syncWriter
	input      *lineInput
	widget     *search.Widget
	table      *lineitem.Table
	submitter  Submitter
	priceField string
	stopEvents func()
}

func newDesk(ctx context.Context, out io.Writer, fetcher search.Fetcher, submitter Submitter, opts deskOptions) *desk {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	tableOpts := []lineitem.Option{}
	if opts.HasExpiry {
		tableOpts = append(tableOpts, lineitem.WithExpiryColumn())
	}

	d := &desk{
		out:        &syncWriter{out: out},
		input:      &lineInput{},
		table:      lineitem.NewTable(tableOpts...),
		submitter:  submitter,
		priceField: opts.PriceField,
	}
	d.stopEvents = d.table.Subscribe(d.onTableEvent)

	logger := opts.Logger
	d.widget = search.Init(d.input, terminalResults{out: d.out}, fetcher, d.addProduct,
		search.WithContext(ctx),
		search.WithDebounce(opts.Debounce),
		search.WithStaleHook(func(query string) {
			logger.Debug("stale search dropped", "query", query)
		}),
	)
	return d
}

func (d *desk) Close() {
	d.widget.Close()
	d.stopEvents()
}

func (d *desk) addProduct(product domain.Product) {
	d.table.AddRow(product, d.priceField)
}

func (d *desk) onTableEvent(evt lineitem.Event) {
	switch evt.Kind {
	case lineitem.EventRowAdded:
		d.out.printf("added %s, total %s\n", evt.Row.Label(), money.Format(evt.Total))
	case lineitem.EventRowRemoved:
		d.out.printf("removed %s, total %s\n", evt.Row.Label(), money.Format(evt.Total))
	case lineitem.EventTableClosed:
		d.out.printf("table closed, total %s\n", money.Format(evt.Total))
	default:
		d.out.printf("%s amount %s, total %s\n", evt.Row.Label(), money.Format(evt.Row.Amount), money.Format(evt.Total))
	}
}

// run reads commands until quit, end of input or ctx is done.
func (d *desk) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if quit := d.execute(ctx, line); quit {
				return nil
			}
		}
	}
}

// execute runs one command line and reports whether the session should end.
func (d *desk) execute(ctx context.Context, line string) bool {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	var err error
	switch strings.ToLower(cmd) {
	case "":
	case "quit", "exit":
		return true
	case "help":
		d.out.printf("%s\n", helpText)
	case "search":
		d.input.set(rest)
		d.widget.OnInput()
	case "pick":
		err = d.pick(rest)
	case "rows":
		d.printRows()
	case "qty":
		err = d.edit(lineitem.FieldQuantity, rest)
	case "price":
		err = d.edit(lineitem.FieldUnitPrice, rest)
	case "expiry":
		err = d.edit(lineitem.FieldExpiryDate, rest)
	case "rm":
		err = d.remove(rest)
	case "total":
		d.out.printf("total %s\n", d.table.TotalText())
	case "export":
		err = d.export(rest)
	case "submit":
		err = d.submit(ctx)
	default:
		err = fmt.Errorf("unknown command %q, try help", cmd)
	}
	if err != nil {
		d.out.printf("error: %v\n", err)
	}
	return false
}

func (d *desk) pick(arg string) error {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return errors.New("pick needs a result number")
	}
	if !d.widget.Select(n - 1) {
		return fmt.Errorf("no search result %d", n)
	}
	return nil
}

// rowAt resolves a 1-based row number.
func (d *desk) rowAt(arg string) (lineitem.Row, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return lineitem.Row{}, fmt.Errorf("row number expected, got %q", arg)
	}
	rows := d.table.Rows()
	if n < 1 || n > len(rows) {
		return lineitem.Row{}, fmt.Errorf("no row %d", n)
	}
	return rows[n-1], nil
}

func (d *desk) edit(field lineitem.Field, args string) error {
	rowArg, value, ok := strings.Cut(args, " ")
	if !ok {
		return fmt.Errorf("usage: %s <row> <value>", field)
	}
	row, err := d.rowAt(rowArg)
	if err != nil {
		return err
	}
	_, err = d.table.UpdateField(row.ID, field, strings.TrimSpace(value))
	return err
}

func (d *desk) remove(arg string) error {
	row, err := d.rowAt(arg)
	if err != nil {
		return err
	}
	return d.table.RemoveRow(row.ID)
}

func (d *desk) printRows() {
	grid := d.table.Grid()
	for i, record := range grid {
		prefix := "   "
		if i > 0 && i < len(grid)-1 {
			prefix = fmt.Sprintf("%2d ", i)
		}
		d.out.printf("%s%s\n", prefix, strings.Join(record, " | "))
	}
}

func (d *desk) export(path string) error {
	if path == "" {
		return errors.New("usage: export <file.csv|file.xlsx>")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		err = export.WriteXLSX(f, "Items", d.table)
	} else {
		err = export.WriteCSV(f, d.table)
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	d.out.printf("exported %d rows to %s\n", d.table.Len(), path)
	return nil
}

func (d *desk) submit(ctx context.Context) error {
	if d.submitter == nil {
		return errors.New("submitting is not configured")
	}
	if d.table.Len() == 0 {
		return errors.New("table is empty")
	}

	resp, err := d.submitter.Submit(ctx, d.table.FormValues())
	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			d.out.printf("  %s: %s\n", fe.Field, fe.Tag)
		}
		return errors.New("submission rejected")
	}
	if err != nil {
		return err
	}
	d.out.printf("submitted %d items, total %s\n", len(resp.Items), resp.Total)
	return nil
}
