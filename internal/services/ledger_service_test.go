package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fintraka/internal/amqp"
	"fintraka/internal/core"
	"fintraka/internal/storage/memory"
)

type recordedEvent struct {
	kind amqp.EventKind
	id   int64
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
	txs    []core.Transaction
	err    error
}

func (p *fakePublisher) PublishTransactionEvent(_ context.Context, kind amqp.EventKind, t core.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{kind: kind, id: t.ID})
	p.txs = append(p.txs, t)
	return p.err
}

// fixture is a ledger over the memory store with two users and the clock
// fixed at 2024-05-20 noon UTC.
type fixture struct {
	svc    *LedgerService
	store  *memory.Store
	events *fakePublisher
	alice  int64
	bob    int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	events := &fakePublisher{}
	now := time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)
	svc := NewLedgerService(store,
		WithEvents(events),
		WithClock(func() time.Time { return now }),
		WithLocation(time.UTC),
	)
	alice, err := store.CreateUser(ctx, core.User{Username: "alice"})
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bob, err := store.CreateUser(ctx, core.User{Username: "bob"})
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}
	return &fixture{svc: svc, store: store, events: events, alice: alice.ID, bob: bob.ID}
}

func (f *fixture) create(t *testing.T, owner int64, typ core.TransactionType, amount string, cat *int64, date string) core.Transaction {
	t.Helper()
	m, err := core.ParseAmount(amount)
	if err != nil {
		t.Fatalf("amount %q: %v", amount, err)
	}
	d, err := core.ParseDate(date)
	if err != nil {
		t.Fatalf("date %q: %v", date, err)
	}
	tx, err := f.svc.CreateTransaction(context.Background(), owner, TransactionInput{Amount: m, Type: typ, CategoryID: cat, Date: d})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	return tx
}

func assertKind(t *testing.T, err error, want core.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := core.KindOf(err); got != want {
		t.Fatalf("expected %s, got %s (%v)", want, got, err)
	}
}

func TestSummaryMonthToDate(t *testing.T) {
	f := newFixture(t)
	f.create(t, f.alice, core.Income, "1000.00", nil, "2024-05-01")
	f.create(t, f.alice, core.Expense, "200.50", nil, "2024-05-15")

	s, err := f.svc.Summary(context.Background(), f.alice)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	checks := []struct {
		name string
		got  string
		want string
	}{
		{"monthly_income", s.MonthlyIncome.StringFixed(2), "1000.00"},
		{"monthly_expenses", s.MonthlyExpenses.StringFixed(2), "200.50"},
		{"monthly_balance", s.MonthlyBalance.StringFixed(2), "799.50"},
		{"total_balance", s.TotalBalance.StringFixed(2), "799.50"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: expected %s, got %s", c.name, c.want, c.got)
		}
	}
}

func TestSummaryExcludesOutsideMonthAndOtherUsers(t *testing.T) {
	f := newFixture(t)
	f.create(t, f.alice, core.Income, "50.00", nil, "2024-04-30")
	f.create(t, f.alice, core.Expense, "10.00", nil, "2024-05-21") // after today
	f.create(t, f.bob, core.Income, "999.00", nil, "2024-05-10")

	s, err := f.svc.Summary(context.Background(), f.alice)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !s.MonthlyIncome.IsZero() || !s.MonthlyExpenses.IsZero() {
		t.Fatalf("expected empty month, got %s / %s", s.MonthlyIncome, s.MonthlyExpenses)
	}
	if s.TotalBalance.StringFixed(2) != "40.00" {
		t.Fatalf("expected all-time balance 40.00, got %s", s.TotalBalance)
	}
}

func TestSpendingByCategory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	food, _ := f.svc.CreateCategory(ctx, f.alice, "Food")
	transport, _ := f.svc.CreateCategory(ctx, f.alice, "Transport")

	f.create(t, f.alice, core.Expense, "50.00", &food.ID, "2024-05-02")
	f.create(t, f.alice, core.Expense, "30.00", &food.ID, "2024-05-03")
	f.create(t, f.alice, core.Expense, "20.00", &transport.ID, "2024-05-04")
	f.create(t, f.alice, core.Expense, "99.00", nil, "2024-05-04")
	f.create(t, f.alice, core.Income, "500.00", &transport.ID, "2024-05-04")
	f.create(t, f.alice, core.Expense, "70.00", &transport.ID, "2024-04-04")

	got, err := f.svc.SpendingByCategory(ctx, f.alice)
	if err != nil {
		t.Fatalf("spending: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 groups, got %+v", got)
	}
	if got[0].CategoryName != "Food" || got[0].Total.StringFixed(2) != "80.00" {
		t.Fatalf("unexpected first group %+v", got[0])
	}
	if got[1].CategoryName != "Transport" || got[1].Total.StringFixed(2) != "20.00" {
		t.Fatalf("unexpected second group %+v", got[1])
	}
}

func TestListTransactionsFilters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.create(t, f.alice, core.Income, "10.00", nil, "2024-05-01")
	f.create(t, f.alice, core.Expense, "5.00", nil, "2024-05-10")
	b := f.create(t, f.alice, core.Income, "20.00", nil, "2024-05-31")
	f.create(t, f.alice, core.Income, "30.00", nil, "2024-06-01")
	f.create(t, f.bob, core.Income, "40.00", nil, "2024-05-15")

	got, err := f.svc.ListTransactions(ctx, f.alice, core.FilterParams{Type: "INCOME", DateFrom: "2024-05-01", DateTo: "2024-05-31"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != b.ID || got[1].ID != a.ID {
		t.Fatalf("unexpected result %+v", got)
	}

	all, _ := f.svc.ListTransactions(ctx, f.alice, core.FilterParams{})
	if len(all) != 4 {
		t.Fatalf("expected 4 owned rows, got %d", len(all))
	}

	_, err = f.svc.ListTransactions(ctx, f.alice, core.FilterParams{DateFrom: "yesterday"})
	assertKind(t, err, core.KindValidationFailed)

	_, err = f.svc.ListTransactions(ctx, 0, core.FilterParams{})
	assertKind(t, err, core.KindUnauthorized)
}

func TestTransactionsAreOwnerScoped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tx := f.create(t, f.alice, core.Expense, "12.00", nil, "2024-05-01")

	_, err := f.svc.GetTransaction(ctx, f.bob, tx.ID)
	assertKind(t, err, core.KindNotFound)

	amount := core.Money{Cents: 1}
	_, err = f.svc.UpdateTransaction(ctx, f.bob, tx.ID, TransactionPatch{Amount: &amount})
	assertKind(t, err, core.KindNotFound)

	assertKind(t, f.svc.DeleteTransaction(ctx, f.bob, tx.ID), core.KindNotFound)

	still, err := f.svc.GetTransaction(ctx, f.alice, tx.ID)
	if err != nil || still.Amount.Cents != 1200 {
		t.Fatalf("transaction changed by another user: %+v %v", still, err)
	}
}

func TestCategoryReferenceMustBeVisible(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.svc.EnsureGlobalCategories(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	cats, _ := f.svc.ListCategories(ctx, f.alice)
	global := cats[0]
	bobs, _ := f.svc.CreateCategory(ctx, f.bob, "Bob only")

	tx := f.create(t, f.alice, core.Expense, "1.00", &global.ID, "2024-05-01")
	if tx.CategoryName != global.Name {
		t.Fatalf("expected category name %q, got %q", global.Name, tx.CategoryName)
	}

	_, err := f.svc.CreateTransaction(ctx, f.alice, TransactionInput{
		Amount: core.Money{Cents: 1}, Type: core.Expense, CategoryID: &bobs.ID, Date: core.NewDate(2024, 5, 1),
	})
	assertKind(t, err, core.KindValidationFailed)

	missing := int64(98765)
	_, err = f.svc.UpdateTransaction(ctx, f.alice, tx.ID, TransactionPatch{Category: OptionalID{Set: true, ID: &missing}})
	assertKind(t, err, core.KindValidationFailed)
}

func TestUpdateTransactionPatchAndPut(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	food, _ := f.svc.CreateCategory(ctx, f.alice, "Food")
	tx := f.create(t, f.alice, core.Expense, "12.00", &food.ID, "2024-05-01")

	desc := "lunch"
	patched, err := f.svc.UpdateTransaction(ctx, f.alice, tx.ID, TransactionPatch{Description: &desc})
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if patched.Description != "lunch" || patched.CategoryID == nil || patched.Amount.Cents != 1200 {
		t.Fatalf("patch must keep unspecified fields: %+v", patched)
	}
	if patched.OwnerID != f.alice || !patched.CreatedAt.Equal(tx.CreatedAt) {
		t.Fatalf("owner and created_at must not change: %+v", patched)
	}

	put, err := f.svc.UpdateTransaction(ctx, f.alice, tx.ID, TransactionInput{
		Amount: core.Money{Cents: 500}, Type: core.Income, Date: core.NewDate(2024, 5, 2),
	}.Patch())
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if put.CategoryID != nil || put.Description != "" || put.Type != core.Income {
		t.Fatalf("put must replace every field: %+v", put)
	}

	bad := core.TransactionType("TRANSFER")
	_, err = f.svc.UpdateTransaction(ctx, f.alice, tx.ID, TransactionPatch{Type: &bad})
	assertKind(t, err, core.KindValidationFailed)
}

func TestCategoryMutationScope(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.svc.EnsureGlobalCategories(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	cats, _ := f.svc.ListCategories(ctx, f.alice)
	if len(cats) != len(core.DefaultGlobalCategories) {
		t.Fatalf("expected %d globals, got %d", len(core.DefaultGlobalCategories), len(cats))
	}
	global := cats[0]

	_, err := f.svc.RenameCategory(ctx, f.alice, global.ID, "Mine now")
	assertKind(t, err, core.KindNotFound)
	assertKind(t, f.svc.DeleteCategory(ctx, f.alice, global.ID), core.KindNotFound)

	own, err := f.svc.CreateCategory(ctx, f.alice, "  Pets  ")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if own.Name != "Pets" || own.IsGlobal || own.OwnerID == nil || *own.OwnerID != f.alice {
		t.Fatalf("unexpected category %+v", own)
	}
	_, err = f.svc.GetCategory(ctx, f.bob, own.ID)
	assertKind(t, err, core.KindNotFound)
	_, err = f.svc.RenameCategory(ctx, f.bob, own.ID, "Stolen")
	assertKind(t, err, core.KindNotFound)
	if got, err := f.svc.GetOwnedCategory(ctx, f.alice, own.ID); err != nil || got.ID != own.ID {
		t.Fatalf("owner should see own category: %+v %v", got, err)
	}
	_, err = f.svc.GetOwnedCategory(ctx, f.bob, own.ID)
	assertKind(t, err, core.KindNotFound)
	_, err = f.svc.GetOwnedCategory(ctx, f.alice, global.ID)
	assertKind(t, err, core.KindNotFound)
	_, err = f.svc.GetOwnedCategory(ctx, 0, own.ID)
	assertKind(t, err, core.KindUnauthorized)

	_, err = f.svc.CreateCategory(ctx, f.alice, "")
	assertKind(t, err, core.KindValidationFailed)

	tx := f.create(t, f.alice, core.Expense, "3.00", &own.ID, "2024-05-01")
	f.create(t, f.alice, core.Expense, "4.00", nil, "2024-05-02")
	before := len(f.events.events)
	if err := f.svc.DeleteCategory(ctx, f.alice, own.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := f.svc.GetTransaction(ctx, f.alice, tx.ID)
	if err != nil || got.CategoryID != nil {
		t.Fatalf("transaction should survive with no category: %+v %v", got, err)
	}

	// only the uncategorized row is republished, so the mirror drops the name
	published := f.events.events[before:]
	if len(published) != 1 || published[0] != (recordedEvent{amqp.EventUpdated, tx.ID}) {
		t.Fatalf("expected one update for %d, got %+v", tx.ID, published)
	}
	if last := f.events.txs[len(f.events.txs)-1]; last.CategoryID != nil || last.CategoryName != "" {
		t.Fatalf("republished row still carries its category: %+v", last)
	}
}

func TestMutationsPublishEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tx := f.create(t, f.alice, core.Expense, "1.00", nil, "2024-05-01")
	desc := "x"
	if _, err := f.svc.UpdateTransaction(ctx, f.alice, tx.ID, TransactionPatch{Description: &desc}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := f.svc.DeleteTransaction(ctx, f.alice, tx.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	want := []recordedEvent{{amqp.EventCreated, tx.ID}, {amqp.EventUpdated, tx.ID}, {amqp.EventDeleted, tx.ID}}
	if len(f.events.events) != len(want) {
		t.Fatalf("expected %d events, got %+v", len(want), f.events.events)
	}
	for i, w := range want {
		if f.events.events[i] != w {
			t.Fatalf("event %d: expected %+v, got %+v", i, w, f.events.events[i])
		}
	}
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("broker down")
	tx := f.create(t, f.alice, core.Income, "1.00", nil, "2024-05-01")
	if tx.ID == 0 {
		t.Fatalf("expected transaction to be stored")
	}
}

func TestMonthlyTrend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.create(t, f.alice, core.Income, "100.00", nil, "2024-02-10")
	f.create(t, f.alice, core.Expense, "40.00", nil, "2024-02-11")
	f.create(t, f.alice, core.Expense, "5.00", nil, "2024-05-01")
	f.create(t, f.alice, core.Income, "1.00", nil, "2023-12-31")
	f.create(t, f.alice, core.Expense, "70.00", nil, "2024-05-25") // after today

	got, err := f.svc.MonthlyTrend(ctx, f.alice, 2024)
	if err != nil {
		t.Fatalf("trend: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected January through May, got %d months", len(got))
	}
	if got[1].Month != "2024-02" || got[1].Balance().StringFixed(2) != "60.00" {
		t.Fatalf("unexpected february %+v", got[1])
	}
	if got[4].Expenses.StringFixed(2) != "5.00" || !got[0].Income.IsZero() {
		t.Fatalf("unexpected january/may %+v %+v", got[0], got[4])
	}

	sum, err := f.svc.Summary(ctx, f.alice)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !got[4].Expenses.Equal(sum.MonthlyExpenses) {
		t.Fatalf("current month of trend %s disagrees with summary %s", got[4].Expenses, sum.MonthlyExpenses)
	}

	past, _ := f.svc.MonthlyTrend(ctx, f.alice, 2023)
	if len(past) != 12 || past[11].Income.StringFixed(2) != "1.00" {
		t.Fatalf("unexpected past year %+v", past)
	}
	future, _ := f.svc.MonthlyTrend(ctx, f.alice, 2025)
	if len(future) != 0 {
		t.Fatalf("expected empty future year, got %d", len(future))
	}
}
