// Package search implements the product search box of the line-item forms:
// debounced lookups against the listing endpoint, a results panel and
// selection of a product into the caller's table.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"stockmaster/backend/internal/domain"
)

const (
	DefaultDebounce = 300 * time.Millisecond

	EmptyMessage       = "No products found"
	UnavailableMessage = "Search unavailable"
)

// Input is the text box the user types into.
type Input interface {
	Value() string
	Clear()
}

// Results is the region under the input that displays the panel. Its methods
// are called with the widget lock held and must not call back into the widget.
type Results interface {
	Render(Panel)
	Hide()
}

type PanelState int

const (
	PanelHidden PanelState = iota
	PanelResults
	PanelEmpty
	PanelUnavailable
)

func (s PanelState) String() string {
	switch s {
	case PanelHidden:
		return "hidden"
	case PanelResults:
		return "results"
	case PanelEmpty:
		return "empty"
	case PanelUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Entry is one selectable result.
type Entry struct {
	Label   string
	Product domain.Product
}

// Panel is what the results region shows. Message is set for the empty and
// unavailable states.
type Panel struct {
	State   PanelState
	Query   string
	Entries []Entry
	Message string
}

func (p Panel) Visible() bool {
	return p.State != PanelHidden
}

// EntryLabel formats a product as "<code> - <name> (<unit>)".
func EntryLabel(p domain.Product) string {
	return p.Code + " - " + p.Name + " (" + p.Unit + ")"
}

// Target identifies where a document click landed.
type Target int

const (
	TargetOutside Target = iota
	TargetInput
	TargetResults
)

type timer interface {
	Stop() bool
}

type afterFunc func(time.Duration, func()) timer

func realAfterFunc(d time.Duration, fn func()) timer {
	return time.AfterFunc(d, fn)
}

type Option func(*Widget)

// WithDebounce sets the quiet period between the last keystroke and the fetch.
func WithDebounce(d time.Duration) Option {
	return func(w *Widget) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithStaleHook registers fn to be told about every discarded response.
func WithStaleHook(fn func(query string)) Option {
	return func(w *Widget) { w.onStale = fn }
}

// WithContext sets the parent of every fetch context.
func WithContext(ctx context.Context) Option {
	return func(w *Widget) {
		if ctx != nil {
			w.parent = ctx
		}
	}
}

func withAfterFunc(fn afterFunc) Option {
	return func(w *Widget) { w.afterFunc = fn }
}

// Widget binds an input and a results region to a Fetcher. A nil *Widget is
// valid and does nothing.
type Widget struct {
	input    Input
	results  Results
	fetcher  Fetcher
	onSelect func(domain.Product)
	onStale  func(string)

	debounce  time.Duration
	afterFunc afterFunc
	parent    context.Context

	mu       sync.Mutex
	ctx      context.Context
	stop     context.CancelFunc
	seq      uint64
	pending  timer
	inflight context.CancelFunc
	panel    Panel
	closed   bool
}

// Init wires the widget. It returns nil when the input, the results region
// or the fetcher is missing.
func Init(input Input, results Results, fetcher Fetcher, onSelect func(domain.Product), opts ...Option) *Widget {
	if input == nil || results == nil || fetcher == nil {
		return nil
	}
	w := &Widget{
		input:     input,
		results:   results,
		fetcher:   fetcher,
		onSelect:  onSelect,
		debounce:  DefaultDebounce,
		afterFunc: realAfterFunc,
		parent:    context.Background(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.ctx, w.stop = context.WithCancel(w.parent)
	return w
}

// OnInput reacts to a change of the input text. Any pending or in-flight
// lookup is abandoned; blank text hides the panel at once, anything else
// schedules a lookup after the debounce period.
func (w *Widget) OnInput() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	w.seq++
	w.abandonLocked()

	text := strings.TrimSpace(w.input.Value())
	if text == "" {
		w.hideLocked()
		return
	}

	seq := w.seq
	w.pending = w.afterFunc(w.debounce, func() { w.lookup(seq, text) })
}

func (w *Widget) lookup(seq uint64, text string) {
	w.mu.Lock()
	if w.closed || seq != w.seq {
		w.mu.Unlock()
		return
	}
	w.pending = nil
	ctx, cancel := context.WithCancel(w.ctx)
	w.inflight = cancel
	w.mu.Unlock()

	products, err := w.fetcher.Fetch(ctx, text)
	cancel()

	w.mu.Lock()
	if w.closed || seq != w.seq {
		hook := w.onStale
		w.mu.Unlock()
		if hook != nil {
			hook(text)
		}
		return
	}
	w.inflight = nil

	switch {
	case err != nil:
		w.showLocked(Panel{State: PanelUnavailable, Query: text, Message: UnavailableMessage})
	case len(products) == 0:
		w.showLocked(Panel{State: PanelEmpty, Query: text, Message: EmptyMessage})
	default:
		entries := make([]Entry, 0, len(products))
		for _, p := range products {
			entries = append(entries, Entry{Label: EntryLabel(p), Product: p})
		}
		w.showLocked(Panel{State: PanelResults, Query: text, Entries: entries})
	}
	w.mu.Unlock()
}

// Select picks the i-th result: the input and panel are cleared and the
// selection callback receives the product. It reports false when no result
// has that index.
func (w *Widget) Select(i int) bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	if w.closed || w.panel.State != PanelResults || i < 0 || i >= len(w.panel.Entries) {
		w.mu.Unlock()
		return false
	}
	product := w.panel.Entries[i].Product
	onSelect := w.onSelect

	w.seq++
	w.abandonLocked()
	w.input.Clear()
	w.hideLocked()
	w.mu.Unlock()

	if onSelect != nil {
		onSelect(product)
	}
	return true
}

// OnDocumentClick hides the panel when the click landed outside both the
// input and the results region.
func (w *Widget) OnDocumentClick(target Target) {
	if w == nil || target != TargetOutside {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.hideLocked()
}

// Panel returns a copy of what the results region currently shows.
func (w *Widget) Panel() Panel {
	if w == nil {
		return Panel{}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	p := w.panel
	p.Entries = append([]Entry(nil), w.panel.Entries...)
	return p
}

// Close stops the pending timer and any in-flight lookup and detaches the
// selection callback. Later calls are no-ops.
func (w *Widget) Close() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	w.seq++
	w.abandonLocked()
	w.stop()
	w.onSelect = nil
}

func (w *Widget) abandonLocked() {
	if w.pending != nil {
		w.pending.Stop()
		w.pending = nil
	}
	if w.inflight != nil {
		w.inflight()
		w.inflight = nil
	}
}

func (w *Widget) hideLocked() {
	w.panel = Panel{State: PanelHidden}
	w.results.Hide()
}

func (w *Widget) showLocked(p Panel) {
	w.panel = p
	w.results.Render(p)
}

// IsUnavailable reports whether err came from a failed lookup rather than a
// canceled one.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
