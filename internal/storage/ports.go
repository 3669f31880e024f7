package storage

import (
	"context"

	"fintraka/internal/core"
)

// UserStore persists accounts. CreateUser reports core.ErrDuplicate when the
// username is taken.
type UserStore interface {
	CreateUser(ctx context.Context, u core.User) (core.User, error)
	GetUser(ctx context.Context, id int64) (core.User, error)
	GetUserByUsername(ctx context.Context, username string) (core.User, error)
}

// CategoryStore persists categories. It does not apply access scoping;
// callers decide visibility with core.Category.VisibleTo and OwnedBy.
type CategoryStore interface {
	// ListCategories returns global categories plus those owned by ownerID,
	// ordered by name.
	ListCategories(ctx context.Context, ownerID int64) ([]core.Category, error)
	GetCategory(ctx context.Context, id int64) (core.Category, error)
	CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
	RenameCategory(ctx context.Context, id int64, name string) (core.Category, error)
	// DeleteCategory removes the category and clears it from every
	// transaction that referenced it.
	DeleteCategory(ctx context.Context, id int64) error
	// EnsureGlobalCategories inserts the missing names as global categories
	// and returns how many were created.
	EnsureGlobalCategories(ctx context.Context, names []string) (int, error)
}

// TransactionStore persists transactions. Every read is bounded by a
// predicate, and predicates always carry an owner.
type TransactionStore interface {
	// ListTransactions returns matches ordered by date, created_at and id,
	// all descending.
	ListTransactions(ctx context.Context, p core.Predicate) ([]core.Transaction, error)
	GetTransaction(ctx context.Context, ownerID, id int64) (core.Transaction, error)
	CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	// UpdateTransaction rewrites the mutable fields of the row identified by
	// t.ID and t.OwnerID.
	UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, ownerID, id int64) error
}

// ReportStore computes rollups inside the store.
type ReportStore interface {
	// SumAmounts returns one sum per predicate, all read from the same
	// snapshot of ownerID's transactions.
	SumAmounts(ctx context.Context, ownerID int64, preds ...core.Predicate) ([]core.Money, error)
	SumByCategory(ctx context.Context, p core.Predicate) ([]core.CategorySpending, error)
	SumByMonth(ctx context.Context, p core.Predicate) ([]core.MonthTotal, error)
}

type Store interface {
	UserStore
	CategoryStore
	TransactionStore
	ReportStore
	Ping(ctx context.Context) error
	Close() error
}
