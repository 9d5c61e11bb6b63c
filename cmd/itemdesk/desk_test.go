package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"stockmaster/backend/internal/domain"
	"stockmaster/backend/internal/export"
	"stockmaster/backend/internal/httpapi"
	"stockmaster/backend/internal/lineitem"
	"stockmaster/backend/internal/search"
	"stockmaster/backend/internal/service"
	"stockmaster/backend/internal/store/memory"
	"stockmaster/backend/internal/validation"
)

var catalog = []domain.Product{
	{ID: 1, Code: "PCT-500", Name: "Paracetamol 500mg", Unit: "strip", UnitPrice: 2.75, SellPrice: 3.50},
	{ID: 2, Code: "AMX-250", Name: "Amoxicillin 250mg", Unit: "box", UnitPrice: 11.20, SellPrice: 14.90},
}

type catalogFetcher struct {
	calls atomic.Int32
	err   error
}

func (f *catalogFetcher) Fetch(_ context.Context, text string) ([]domain.Product, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Product
	for _, p := range catalog {
		if strings.Contains(strings.ToLower(p.Name), strings.ToLower(text)) {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeSubmitter struct {
	form url.Values
	resp domain.SubmissionResponse
	err  error
}

func (s *fakeSubmitter) Submit(_ context.Context, form url.Values) (domain.SubmissionResponse, error) {
	s.form = form
	return s.resp, s.err
}

func newTestDesk(t *testing.T, fetcher search.Fetcher, submitter Submitter, opts deskOptions) (*desk, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	d := newDesk(t.Context(), &out, fetcher, submitter, opts)
	t.Cleanup(d.Close)
	return d, &out
}

func output(d *desk, buf *bytes.Buffer) string {
	d.out.mu.Lock()
	defer d.out.mu.Unlock()
	return buf.String()
}

func waitForPanel(t *testing.T, d *desk, want search.PanelState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if d.widget.Panel().State == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("panel never reached %s, last %s", want, d.widget.Panel().State)
}

func TestDeskSearchPickAndEdit(t *testing.T) {
	d, buf := newTestDesk(t, &catalogFetcher{}, nil, deskOptions{PriceField: lineitem.PriceFieldSell})

	d.execute(t.Context(), "search amox")
	waitForPanel(t, d, search.PanelResults)
	if !strings.Contains(output(d, buf), "[1] AMX-250 - Amoxicillin 250mg (box)") {
		t.Fatalf("expected numbered result, got:\n%s", output(d, buf))
	}

	d.execute(t.Context(), "pick 1")
	if d.table.Len() != 1 || d.table.TotalText() != "14.90" {
		t.Fatalf("expected one row worth 14.90, got %d rows, total %s", d.table.Len(), d.table.TotalText())
	}
	if d.input.Value() != "" || d.widget.Panel().Visible() {
		t.Fatalf("selection should clear the input and hide the panel")
	}

	steps := []struct {
		line  string
		total string
	}{
		{"qty 1 2", "29.80"},
		{"qty 1 1", "14.90"},
		{"price 1 10.005", "10.01"},
		{"qty 1 lots", "0.00"},
		{"qty 1 3", "30.02"},
	}
	for _, step := range steps {
		d.execute(t.Context(), step.line)
		if got := d.table.TotalText(); got != step.total {
			t.Fatalf("after %q expected total %s, got %s", step.line, step.total, got)
		}
	}

	d.execute(t.Context(), "rm 1")
	if d.table.Len() != 0 || d.table.TotalText() != "0.00" {
		t.Fatalf("expected empty table after rm, got %d rows", d.table.Len())
	}
	if !strings.Contains(output(d, buf), "removed AMX-250 - Amoxicillin 250mg, total 0.00") {
		t.Fatalf("expected removal notice, got:\n%s", output(d, buf))
	}
}

func TestDeskReportsErrors(t *testing.T) {
	fetcher := &catalogFetcher{err: search.ErrUnavailable}
	d, buf := newTestDesk(t, fetcher, nil, deskOptions{})

	d.execute(t.Context(), "search para")
	waitForPanel(t, d, search.PanelUnavailable)

	for _, line := range []string{"pick 1", "qty 1 2", "qty", "rm x", "expiry 1 2030-01-01", "export", "submit", "dance"} {
		d.execute(t.Context(), line)
	}

	got := output(d, buf)
	for _, want := range []string{
		search.UnavailableMessage,
		"error: no search result 1",
		"error: no row 1",
		"error: usage: quantity <row> <value>",
		`error: row number expected, got "x"`,
		"error: usage: export",
		"error: submitting is not configured",
		`error: unknown command "dance"`,
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in output:\n%s", want, got)
		}
	}
}

func TestDeskExpiryColumn(t *testing.T) {
	d, buf := newTestDesk(t, &catalogFetcher{}, nil, deskOptions{})
	d.addProduct(catalog[0])
	d.execute(t.Context(), "expiry 1 2030-01-31")
	if !strings.Contains(output(d, buf), "error: table has no expiry column") {
		t.Fatalf("expected expiry rejection, got:\n%s", output(d, buf))
	}

	withExpiry, _ := newTestDesk(t, &catalogFetcher{}, nil, deskOptions{HasExpiry: true})
	withExpiry.addProduct(catalog[0])
	withExpiry.execute(t.Context(), "expiry 1 2030-01-31")
	form := withExpiry.table.FormValues()
	if form.Get(lineitem.FormExpiryDate) != "2030-01-31" {
		t.Fatalf("expected expiry in form values, got %v", form)
	}
}

func TestDeskExport(t *testing.T) {
	d, buf := newTestDesk(t, &catalogFetcher{}, nil, deskOptions{})
	d.addProduct(catalog[0])
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "items.csv")
	d.execute(t.Context(), "export "+csvPath)
	raw, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	want := export.BOM + `"Product","Quantity","Unit Price","Amount"` + "\n" +
		`"PCT-500 - Paracetamol 500mg","1","2.75","2.75"` + "\n" +
		`"Total","","","2.75"`
	if string(raw) != want {
		t.Fatalf("unexpected csv %q", raw)
	}

	xlsxPath := filepath.Join(dir, "items.xlsx")
	d.execute(t.Context(), "export "+xlsxPath)
	f, err := excelize.OpenFile(xlsxPath)
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()
	label, err := f.GetCellValue("Items", "A2")
	if err != nil || label != "PCT-500 - Paracetamol 500mg" {
		t.Fatalf("unexpected A2 %q (%v)", label, err)
	}
	if !strings.Contains(output(d, buf), "exported 1 rows to "+xlsxPath) {
		t.Fatalf("expected export notice, got:\n%s", output(d, buf))
	}
}

func TestDeskSubmit(t *testing.T) {
	submitter := &fakeSubmitter{resp: domain.SubmissionResponse{Items: make([]domain.SubmittedItem, 1), Total: "2.75"}}
	d, buf := newTestDesk(t, &catalogFetcher{}, submitter, deskOptions{})

	d.execute(t.Context(), "submit")
	if !strings.Contains(output(d, buf), "error: table is empty") {
		t.Fatalf("expected empty-table error, got:\n%s", output(d, buf))
	}

	d.addProduct(catalog[0])
	d.execute(t.Context(), "submit")
	if submitter.form.Get(lineitem.FormProductID) != "1" {
		t.Fatalf("unexpected submitted form %v", submitter.form)
	}
	if !strings.Contains(output(d, buf), "submitted 1 items, total 2.75") {
		t.Fatalf("expected submission notice, got:\n%s", output(d, buf))
	}

	submitter.err = validation.Errors{{Field: "items[0].Quantity", Tag: "dgte"}}
	d.execute(t.Context(), "submit")
	if !strings.Contains(output(d, buf), "items[0].Quantity: dgte") {
		t.Fatalf("expected field failure, got:\n%s", output(d, buf))
	}
}

func TestDeskRunStopsAtQuit(t *testing.T) {
	fetcher := &catalogFetcher{}
	d, buf := newTestDesk(t, fetcher, nil, deskOptions{})

	script := strings.NewReader("help\nrows\ntotal\nquit\nsearch para\n")
	if err := d.run(t.Context(), script); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := output(d, buf)
	if !strings.Contains(got, "commands:") || !strings.Contains(got, "total 0.00") {
		t.Fatalf("unexpected output:\n%s", got)
	}
	if fetcher.calls.Load() != 0 {
		t.Fatalf("commands after quit must not run")
	}
}

func TestDeskAgainstServer(t *testing.T) {
	repo := memory.NewSeeded()
	svc := service.New(repo, nil, service.Options{})
	auth := httpapi.NewAuthManager("itemdesk-test-secret-0123456789abcdef", time.Hour, repo)
	srv := httptest.NewServer(httpapi.New(svc, auth, "*").Handler())
	defer srv.Close()

	client := search.NewClient(srv.URL)
	if _, err := client.Login(t.Context(), "clerk", "clerk123"); err != nil {
		t.Fatalf("login: %v", err)
	}
	submitter := httpSubmitter{baseURL: srv.URL, httpClient: srv.Client(), token: client.Token}
	d, buf := newTestDesk(t, client, submitter, deskOptions{PriceField: lineitem.PriceFieldSell})

	d.execute(t.Context(), "search vitamin")
	waitForPanel(t, d, search.PanelResults)
	d.execute(t.Context(), "pick 1")
	d.execute(t.Context(), "qty 1 4")
	d.execute(t.Context(), "submit")
	if !strings.Contains(output(d, buf), "submitted 1 items, total 33.00") {
		t.Fatalf("expected server-priced submission, got:\n%s", output(d, buf))
	}

	d.execute(t.Context(), "qty 1 0")
	d.execute(t.Context(), "submit")
	if !strings.Contains(output(d, buf), "items[0].Quantity: dgte") {
		t.Fatalf("expected server validation failure, got:\n%s", output(d, buf))
	}
}

func TestHTTPSubmitterReportsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == csrfPath {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"csrf_token":"tok"}`))
			return
		}
		if r.Header.Get("X-CSRF-Token") != "tok" || r.Header.Get("Authorization") != "Bearer abc" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
	}))
	defer srv.Close()

	submitter := httpSubmitter{baseURL: srv.URL, httpClient: srv.Client(), token: func() string { return "abc" }}
	_, err := submitter.Submit(t.Context(), url.Values{lineitem.FormProductID: {"1"}})
	if err == nil || !strings.Contains(err.Error(), "internal server error") {
		t.Fatalf("expected server error, got %v", err)
	}
}
