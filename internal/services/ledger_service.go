package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"fintraka/internal/amqp"
	"fintraka/internal/core"
	"fintraka/internal/storage"
)

// EventPublisher announces committed transaction mutations.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, kind amqp.EventKind, t core.Transaction) error
}

// LedgerService scopes every category and transaction operation to the
// requesting user and computes the reports.
type LedgerService struct {
	store  storage.Store
	events EventPublisher
	now    func() time.Time
	loc    *time.Location
}

type Option func(*LedgerService)

// WithEvents enables publishing; a nil publisher leaves it disabled.
func WithEvents(p EventPublisher) Option {
	return func(s *LedgerService) { s.events = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) { s.now = now }
}

// WithLocation sets the zone whose calendar defines "today".
func WithLocation(loc *time.Location) Option {
	return func(s *LedgerService) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func NewLedgerService(store storage.Store, opts ...Option) *LedgerService {
	s := &LedgerService{store: store, now: time.Now, loc: time.Local}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today is the current calendar date in the configured location.
func (s *LedgerService) Today() core.Date {
	return core.DateOf(s.now().In(s.loc))
}

func requireUser(requester int64) error {
	if requester <= 0 {
		return core.Unauthorized("authentication required")
	}
	return nil
}

// storeErr maps a store failure to a caller-facing error.
func storeErr(op, entity string, err error) error {
	if errors.Is(err, core.ErrNotFound) {
		return core.NotFound(entity)
	}
	return core.OperationFailed(op, err)
}

// Categories

func (s *LedgerService) ListCategories(ctx context.Context, requester int64) ([]core.Category, error) {
	if err := requireUser(requester); err != nil {
		return nil, err
	}
	cats, err := s.store.ListCategories(ctx, requester)
	if err != nil {
		return nil, core.OperationFailed("list categories", err)
	}
	return cats, nil
}

func (s *LedgerService) GetCategory(ctx context.Context, requester, id int64) (core.Category, error) {
	if err := requireUser(requester); err != nil {
		return core.Category{}, err
	}
	c, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return core.Category{}, storeErr("get category", "category", err)
	}
	if !c.VisibleTo(requester) {
		return core.Category{}, core.NotFound("category")
	}
	return c, nil
}

// ownedCategory loads a category the requester may mutate. Global and
// foreign categories both read as missing.
func (s *LedgerService) ownedCategory(ctx context.Context, requester, id int64) (core.Category, error) {
	c, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return core.Category{}, storeErr("get category", "category", err)
	}
	if !c.OwnedBy(requester) {
		return core.Category{}, core.NotFound("category")
	}
	return c, nil
}

// GetOwnedCategory returns a category in requester's mutation scope; global
// and other users' categories are NotFound.
func (s *LedgerService) GetOwnedCategory(ctx context.Context, requester, id int64) (core.Category, error) {
	if err := requireUser(requester); err != nil {
		return core.Category{}, err
	}
	return s.ownedCategory(ctx, requester, id)
}

// CreateCategory always creates a private category owned by requester.
func (s *LedgerService) CreateCategory(ctx context.Context, requester int64, name string) (core.Category, error) {
	if err := requireUser(requester); err != nil {
		return core.Category{}, err
	}
	owner := requester
	c := core.Category{Name: strings.TrimSpace(name), OwnerID: &owner}
	if err := c.Validate(); err != nil {
		return core.Category{}, core.Invalid(err)
	}
	created, err := s.store.CreateCategory(ctx, c)
	if err != nil {
		return core.Category{}, core.OperationFailed("create category", err)
	}
	slog.InfoContext(ctx, "Category created", "id", created.ID, "owner_id", requester)
	return created, nil
}

func (s *LedgerService) RenameCategory(ctx context.Context, requester, id int64, name string) (core.Category, error) {
	if err := requireUser(requester); err != nil {
		return core.Category{}, err
	}
	c, err := s.ownedCategory(ctx, requester, id)
	if err != nil {
		return core.Category{}, err
	}
	c.Name = strings.TrimSpace(name)
	if err := c.Validate(); err != nil {
		return core.Category{}, core.Invalid(err)
	}
	renamed, err := s.store.RenameCategory(ctx, id, c.Name)
	if err != nil {
		return core.Category{}, storeErr("rename category", "category", err)
	}
	return renamed, nil
}

// DeleteCategory removes an owned category; transactions that used it
// survive with no category and are republished as updated.
func (s *LedgerService) DeleteCategory(ctx context.Context, requester, id int64) error {
	if err := requireUser(requester); err != nil {
		return err
	}
	if _, err := s.ownedCategory(ctx, requester, id); err != nil {
		return err
	}

	// A private category is only ever referenced by its owner's rows.
	var affected []core.Transaction
	if s.events != nil {
		var err error
		affected, err = s.store.ListTransactions(ctx, core.Predicate{OwnerID: requester}.
			And(core.Cond{Field: core.FieldCategory, Op: core.OpEq, Value: id}))
		if err != nil {
			return core.OperationFailed("delete category", err)
		}
	}
	if err := s.store.DeleteCategory(ctx, id); err != nil {
		return storeErr("delete category", "category", err)
	}
	slog.InfoContext(ctx, "Category deleted", "id", id, "owner_id", requester, "uncategorized", len(affected))

	for _, t := range affected {
		t.CategoryID = nil
		t.CategoryName = ""
		s.publish(ctx, amqp.EventUpdated, t)
	}
	return nil
}

// EnsureGlobalCategories provisions the default global categories.
func (s *LedgerService) EnsureGlobalCategories(ctx context.Context) (int, error) {
	n, err := s.store.EnsureGlobalCategories(ctx, core.DefaultGlobalCategories)
	if err != nil {
		return 0, core.OperationFailed("seed categories", err)
	}
	return n, nil
}

// Transactions

// TransactionInput is a complete set of client-writable fields.
type TransactionInput struct {
	Amount      core.Money
	Type        core.TransactionType
	CategoryID  *int64
	Date        core.Date
	Description string
}

// OptionalID distinguishes "not supplied" from "explicitly cleared".
type OptionalID struct {
	Set bool
	ID  *int64
}

// TransactionPatch updates only the supplied fields.
type TransactionPatch struct {
	Amount      *core.Money
	Type        *core.TransactionType
	Category    OptionalID
	Date        *core.Date
	Description *string
}

// Patch converts a full input into a patch that replaces every field.
func (in TransactionInput) Patch() TransactionPatch {
	amount, typ, date, desc := in.Amount, in.Type, in.Date, in.Description
	return TransactionPatch{
		Amount:      &amount,
		Type:        &typ,
		Category:    OptionalID{Set: true, ID: in.CategoryID},
		Date:        &date,
		Description: &desc,
	}
}

// checkCategory requires a referenced category to be in the requester's
// read scope.
func (s *LedgerService) checkCategory(ctx context.Context, requester int64, id *int64) error {
	if id == nil {
		return nil
	}
	c, err := s.store.GetCategory(ctx, *id)
	if errors.Is(err, core.ErrNotFound) || (err == nil && !c.VisibleTo(requester)) {
		return core.Invalidf("category: category does not exist")
	}
	if err != nil {
		return core.OperationFailed("get category", err)
	}
	return nil
}

func (s *LedgerService) ListTransactions(ctx context.Context, requester int64, params core.FilterParams) ([]core.Transaction, error) {
	if err := requireUser(requester); err != nil {
		return nil, err
	}
	f, err := core.NewTransactionFilter(params)
	if err != nil {
		return nil, err
	}
	txs, err := s.store.ListTransactions(ctx, f.Predicate(requester))
	if err != nil {
		return nil, core.OperationFailed("list transactions", err)
	}
	return txs, nil
}

func (s *LedgerService) GetTransaction(ctx context.Context, requester, id int64) (core.Transaction, error) {
	if err := requireUser(requester); err != nil {
		return core.Transaction{}, err
	}
	t, err := s.store.GetTransaction(ctx, requester, id)
	if err != nil {
		return core.Transaction{}, storeErr("get transaction", "transaction", err)
	}
	return t, nil
}

// CreateTransaction stores a transaction owned by requester regardless of
// any owner the client may have named.
func (s *LedgerService) CreateTransaction(ctx context.Context, requester int64, in TransactionInput) (core.Transaction, error) {
	if err := requireUser(requester); err != nil {
		return core.Transaction{}, err
	}
	t := core.Transaction{
		OwnerID:     requester,
		Amount:      in.Amount,
		Type:        in.Type,
		CategoryID:  in.CategoryID,
		Date:        in.Date,
		Description: in.Description,
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, core.Invalid(err)
	}
	if err := s.checkCategory(ctx, requester, t.CategoryID); err != nil {
		return core.Transaction{}, err
	}
	created, err := s.store.CreateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, core.OperationFailed("create transaction", err)
	}
	slog.InfoContext(ctx, "Transaction created",
		"id", created.ID,
		"owner_id", requester,
		"type", created.Type,
		"amount", created.Amount.String())
	s.publish(ctx, amqp.EventCreated, created)
	return created, nil
}

// UpdateTransaction applies patch to an owned transaction. Owner and
// creation time never change.
func (s *LedgerService) UpdateTransaction(ctx context.Context, requester, id int64, patch TransactionPatch) (core.Transaction, error) {
	if err := requireUser(requester); err != nil {
		return core.Transaction{}, err
	}
	t, err := s.store.GetTransaction(ctx, requester, id)
	if err != nil {
		return core.Transaction{}, storeErr("get transaction", "transaction", err)
	}
	if patch.Amount != nil {
		t.Amount = *patch.Amount
	}
	if patch.Type != nil {
		t.Type = *patch.Type
	}
	if patch.Category.Set {
		t.CategoryID = patch.Category.ID
	}
	if patch.Date != nil {
		t.Date = *patch.Date
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, core.Invalid(err)
	}
	if patch.Category.Set {
		if err := s.checkCategory(ctx, requester, t.CategoryID); err != nil {
			return core.Transaction{}, err
		}
	}
	updated, err := s.store.UpdateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, storeErr("update transaction", "transaction", err)
	}
	s.publish(ctx, amqp.EventUpdated, updated)
	return updated, nil
}

func (s *LedgerService) DeleteTransaction(ctx context.Context, requester, id int64) error {
	if err := requireUser(requester); err != nil {
		return err
	}
	if err := s.store.DeleteTransaction(ctx, requester, id); err != nil {
		return storeErr("delete transaction", "transaction", err)
	}
	slog.InfoContext(ctx, "Transaction deleted", "id", id, "owner_id", requester)
	s.publish(ctx, amqp.EventDeleted, core.Transaction{ID: id, OwnerID: requester})
	return nil
}

// publish never fails the caller: the mutation is already committed.
func (s *LedgerService) publish(ctx context.Context, kind amqp.EventKind, t core.Transaction) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishTransactionEvent(ctx, kind, t); err != nil {
		slog.ErrorContext(ctx, "Failed to publish transaction event",
			"event", kind,
			"transaction_id", t.ID,
			"error", err)
	}
}

// Reports

// Summary returns month-to-date income and expenses and the all-time
// balance, read from a single snapshot.
func (s *LedgerService) Summary(ctx context.Context, requester int64) (core.Summary, error) {
	if err := requireUser(requester); err != nil {
		return core.Summary{}, err
	}
	month := core.MonthToDate(s.now(), s.loc)
	base := core.Predicate{OwnerID: requester}
	income := base.And(core.Cond{Field: core.FieldType, Op: core.OpEq, Value: core.Income})
	expense := base.And(core.Cond{Field: core.FieldType, Op: core.OpEq, Value: core.Expense})

	sums, err := s.store.SumAmounts(ctx, requester,
		income.And(month.Conds()...),
		expense.And(month.Conds()...),
		income,
		expense,
	)
	if err != nil {
		return core.Summary{}, core.OperationFailed("summary", err)
	}
	return core.NewSummary(core.Totals{
		MonthlyIncome:   sums[0],
		MonthlyExpenses: sums[1],
		AllIncome:       sums[2],
		AllExpenses:     sums[3],
	}), nil
}

// SpendingByCategory groups this month's categorized expenses by category
// name, largest first.
func (s *LedgerService) SpendingByCategory(ctx context.Context, requester int64) ([]core.CategorySpending, error) {
	if err := requireUser(requester); err != nil {
		return nil, err
	}
	month := core.MonthToDate(s.now(), s.loc)
	p := core.Predicate{OwnerID: requester}.
		And(core.Cond{Field: core.FieldType, Op: core.OpEq, Value: core.Expense}).
		And(month.Conds()...).
		And(core.Cond{Field: core.FieldCategory, Op: core.OpNotNull})

	out, err := s.store.SumByCategory(ctx, p)
	if err != nil {
		return nil, core.OperationFailed("spending by category", err)
	}
	return out, nil
}

// MonthlyTrend reports income and expenses per month of year, from January
// through the current month. The current year stops at today, like Summary.
func (s *LedgerService) MonthlyTrend(ctx context.Context, requester int64, year int) ([]core.MonthTotal, error) {
	if err := requireUser(requester); err != nil {
		return nil, err
	}
	if year < 1 || year > 9999 {
		return nil, core.Invalidf("year: must be between 1 and 9999")
	}
	today := s.Today()
	last := core.TrendMonths(year, today)
	if last == 0 {
		return []core.MonthTotal{}, nil
	}
	window := core.Window{From: core.NewDate(year, 1, 1), To: core.NewDate(year, last+1, 0)}
	if year == today.Year() {
		window.To = today
	}
	partial, err := s.store.SumByMonth(ctx, core.Predicate{OwnerID: requester}.And(window.Conds()...))
	if err != nil {
		return nil, core.OperationFailed("monthly trend", err)
	}
	return core.FillMonths(year, last, partial), nil
}
