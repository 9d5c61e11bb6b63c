package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stockmaster/backend/internal/catalog"
	"stockmaster/backend/internal/domain"
	"stockmaster/backend/internal/lineitem"
	"stockmaster/backend/internal/metrics"
	"stockmaster/backend/internal/money"
	"stockmaster/backend/internal/store"
	"stockmaster/backend/internal/validation"
	"stockmaster/backend/internal/xid"
)

var (
	ErrTableNotFound = errors.New("table not found")
	ErrForbidden     = errors.New("admin role required")
	ErrTooManyTables = errors.New("too many open tables")
)

const (
	defaultMaxTables = 1000
	defaultTableIdle = 2 * time.Hour
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	MaxTables int
	TableIdle time.Duration
}

// tableSession is one open line-item table. owner is the username that
// opened it; only the owner and admins can reach it.
type tableSession struct {
	id          string
	owner       string
	table       *lineitem.Table
	unsubscribe func()

	mu      sync.Mutex
	touched time.Time
}

// close detaches the metrics observer and ends every event stream.
func (t *tableSession) close() {
	t.unsubscribe()
	t.table.Close()
}

func (t *tableSession) touch(now time.Time) {
	t.mu.Lock()
	t.touched = now
	t.mu.Unlock()
}

func (t *tableSession) idleSince(now time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return now.Sub(t.touched)
}

type Service struct {
	repo     store.Repository
	searcher *catalog.Searcher
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	maxTables int
	tableIdle time.Duration

	mu     sync.RWMutex
	tables map[string]*tableSession
}

func New(repo store.Repository, searcher *catalog.Searcher, opts Options) *Service {
	if searcher == nil {
		searcher = catalog.NewSearcher(repo, nil, 0, opts.Metrics)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxTables <= 0 {
		opts.MaxTables = defaultMaxTables
	}
	if opts.TableIdle <= 0 {
		opts.TableIdle = defaultTableIdle
	}

	return &Service{
		repo:      repo,
		searcher:  searcher,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		now:       func() time.Time { return time.Now().UTC() },
		maxTables: opts.MaxTables,
		tableIdle: opts.TableIdle,
		tables:    make(map[string]*tableSession),
	}
}

// SearchProducts serves the product listing used by the search widget.
func (s *Service) SearchProducts(ctx context.Context, text string) ([]domain.Product, error) {
	return s.searcher.Search(ctx, text)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Product{}, ErrForbidden
	}

	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	req.Name = strings.TrimSpace(req.Name)
	req.Unit = strings.TrimSpace(req.Unit)
	req.Barcode = strings.TrimSpace(req.Barcode)
	if errs := validation.Struct("", req); errs != nil {
		return domain.Product{}, errs
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Code:      req.Code,
		Name:      req.Name,
		Unit:      req.Unit,
		Barcode:   req.Barcode,
		UnitPrice: money.FromFloat(req.UnitPrice).Round(money.Places).InexactFloat64(),
		SellPrice: money.FromFloat(req.SellPrice).Round(money.Places).InexactFloat64(),
		Active:    true,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logger.Info("product created", "id", created.ID, "code", created.Code, "by", actor.Username)
	return *created, nil
}

// OpenTable starts a line-item table session owned by the calling actor.
func (s *Service) OpenTable(ctx context.Context, req domain.TableCreateRequest) (domain.TableView, error) {
	actor, _ := ActorFromContext(ctx)

	var opts []lineitem.Option
	if req.HasExpiry {
		opts = append(opts, lineitem.WithExpiryColumn())
	}
	session := &tableSession{
		id:      xid.New("tbl"),
		owner:   actor.Username,
		table:   lineitem.NewTable(opts...),
		touched: s.now(),
	}
	session.unsubscribe = session.table.Subscribe(func(evt lineitem.Event) {
		s.metrics.TableEvent(string(evt.Kind))
	})

	s.mu.Lock()
	if len(s.tables) >= s.maxTables {
		s.mu.Unlock()
		session.unsubscribe()
		return domain.TableView{}, ErrTooManyTables
	}
	s.tables[session.id] = session
	s.mu.Unlock()

	s.metrics.TableOpened()
	s.logger.Debug("table opened", "table_id", session.id, "owner", session.owner, "has_expiry", req.HasExpiry)
	return s.view(session), nil
}

func (s *Service) GetTable(ctx context.Context, tableID string) (domain.TableView, error) {
	session, err := s.session(ctx, tableID)
	if err != nil {
		return domain.TableView{}, err
	}
	return s.view(session), nil
}

// Table returns the live table model for rendering, export and event streaming.
func (s *Service) Table(ctx context.Context, tableID string) (*lineitem.Table, error) {
	session, err := s.session(ctx, tableID)
	if err != nil {
		return nil, err
	}
	return session.table, nil
}

func (s *Service) CloseTable(ctx context.Context, tableID string) error {
	if _, err := s.session(ctx, tableID); err != nil {
		return err
	}

	s.mu.Lock()
	session, ok := s.tables[tableID]
	delete(s.tables, tableID)
	s.mu.Unlock()
	if !ok {
		return ErrTableNotFound
	}

	session.close()
	s.metrics.TableClosed()
	s.logger.Debug("table closed", "table_id", tableID)
	return nil
}

// AddRow seeds a row from the catalog product. Inactive products cannot be added.
func (s *Service) AddRow(ctx context.Context, tableID string, req domain.RowAddRequest) (domain.TableView, error) {
	session, err := s.session(ctx, tableID)
	if err != nil {
		return domain.TableView{}, err
	}

	product, err := s.repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		return domain.TableView{}, err
	}
	if !product.Active {
		return domain.TableView{}, store.ErrNotFound
	}

	session.table.AddRow(*product, req.PriceField)
	return s.view(session), nil
}

// UpdateRow applies the edited fields in quantity, price, expiry order.
func (s *Service) UpdateRow(ctx context.Context, tableID string, rowID string, req domain.RowUpdateRequest) (domain.TableView, error) {
	session, err := s.session(ctx, tableID)
	if err != nil {
		return domain.TableView{}, err
	}
	if req.Quantity == nil && req.UnitPrice == nil && req.ExpiryDate == nil {
		return domain.TableView{}, fmt.Errorf("%w: no fields to update", store.ErrInvalidInput)
	}
	if req.ExpiryDate != nil && !session.table.HasExpiry() {
		return domain.TableView{}, lineitem.ErrNoExpiryColumn
	}
	if _, ok := session.table.Row(rowID); !ok {
		return domain.TableView{}, lineitem.ErrRowNotFound
	}

	edits := []struct {
		field lineitem.Field
		value *string
	}{
		{lineitem.FieldQuantity, req.Quantity},
		{lineitem.FieldUnitPrice, req.UnitPrice},
		{lineitem.FieldExpiryDate, req.ExpiryDate},
	}
	for _, edit := range edits {
		if edit.value == nil {
			continue
		}
		if _, err := session.table.UpdateField(rowID, edit.field, *edit.value); err != nil {
			return domain.TableView{}, err
		}
	}
	return s.view(session), nil
}

func (s *Service) RemoveRow(ctx context.Context, tableID string, rowID string) (domain.TableView, error) {
	session, err := s.session(ctx, tableID)
	if err != nil {
		return domain.TableView{}, err
	}
	if err := session.table.RemoveRow(rowID); err != nil {
		return domain.TableView{}, err
	}
	return s.view(session), nil
}

// Subscribe streams table events to fn until the returned func is called.
// The last event of a closed table has kind table_closed and no row; the
// caller still owns the returned func.
func (s *Service) Subscribe(ctx context.Context, tableID string, fn func(domain.TableEvent)) (func(), error) {
	session, err := s.session(ctx, tableID)
	if err != nil {
		return nil, err
	}
	return session.table.Subscribe(func(evt lineitem.Event) {
		out := domain.TableEvent{
			TableID: session.id,
			Kind:    string(evt.Kind),
			Seq:     evt.Seq,
			Total:   money.Format(evt.Total),
		}
		if evt.Kind != lineitem.EventTableClosed {
			row := evt.Row.View()
			out.Row = &row
		}
		fn(out)
	}), nil
}

// SubmitItems validates a posted line-item form and prices it. Every item
// must name an existing, active product.
func (s *Service) SubmitItems(ctx context.Context, form url.Values) (domain.SubmissionResponse, error) {
	items := lineitem.ParseForm(form)
	if len(items) == 0 {
		s.metrics.Submitted(false)
		return domain.SubmissionResponse{}, validation.Errors{{Field: "items", Tag: "required"}}
	}
	if err := lineitem.ValidateItems(items); err != nil {
		s.metrics.Submitted(false)
		return domain.SubmissionResponse{}, err
	}

	out := make([]domain.SubmittedItem, 0, len(items))
	amounts := make([]decimal.Decimal, 0, len(items))
	var missing validation.Errors
	for i, item := range items {
		product, err := s.repo.GetProduct(ctx, item.ProductIDValue())
		if errors.Is(err, store.ErrNotFound) || (err == nil && !product.Active) {
			missing = append(missing, validation.FieldError{Field: fmt.Sprintf("items[%d].ProductID", i), Tag: "exists"})
			continue
		}
		if err != nil {
			return domain.SubmissionResponse{}, err
		}

		amount := item.Amount()
		amounts = append(amounts, amount)
		out = append(out, domain.SubmittedItem{
			ProductID:  product.ID,
			Code:       product.Code,
			Name:       product.Name,
			Quantity:   money.Format(money.ParseOrZero(item.Quantity)),
			UnitPrice:  money.Format(money.ParseOrZero(item.UnitPrice)),
			ExpiryDate: item.ExpiryDate,
			Amount:     money.Format(amount),
		})
	}
	if len(missing) > 0 {
		s.metrics.Submitted(false)
		return domain.SubmissionResponse{}, missing
	}

	s.metrics.Submitted(true)
	return domain.SubmissionResponse{Items: out, Total: money.Format(money.Sum(amounts))}, nil
}

// PruneIdle closes sessions untouched for longer than the idle limit and
// reports how many it closed.
func (s *Service) PruneIdle() int {
	now := s.now()

	s.mu.Lock()
	var expired []*tableSession
	for id, session := range s.tables {
		if session.idleSince(now) > s.tableIdle {
			expired = append(expired, session)
			delete(s.tables, id)
		}
	}
	s.mu.Unlock()

	for _, session := range expired {
		session.close()
		s.metrics.TableClosed()
	}
	if len(expired) > 0 {
		s.logger.Info("pruned idle tables", "count", len(expired))
	}
	return len(expired)
}

// RunJanitor prunes idle tables every interval until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.PruneIdle()
		}
	}
}

func (s *Service) OpenTables() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables)
}

func (s *Service) session(ctx context.Context, tableID string) (*tableSession, error) {
	s.mu.RLock()
	session, ok := s.tables[tableID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrTableNotFound
	}

	actor, _ := ActorFromContext(ctx)
	if session.owner != "" && actor.Username != session.owner && actor.Role != domain.RoleAdmin {
		return nil, ErrTableNotFound
	}
	session.touch(s.now())
	return session, nil
}

func (s *Service) view(session *tableSession) domain.TableView {
	view := session.table.View()
	view.ID = session.id
	return view
}
