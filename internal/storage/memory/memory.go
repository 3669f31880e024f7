// Package memory is an in-process Store used by the memory backend and by
// tests. All state lives behind one mutex, so every read is a consistent
// snapshot.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"fintraka/internal/core"
	"fintraka/internal/storage"
)

type Store struct {
	mu     sync.Mutex
	now    func() time.Time
	nextID int64
	users  map[int64]core.User
	cats   map[int64]core.Category
	txs    map[int64]core.Transaction
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		now:   time.Now,
		users: map[int64]core.User{},
		cats:  map[int64]core.Category{},
		txs:   map[int64]core.Transaction{},
	}
}

// WithClock replaces the clock used to stamp created_at.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) CreateUser(_ context.Context, u core.User) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return core.User{}, fmt.Errorf("create user %q: %w", u.Username, core.ErrDuplicate)
		}
	}
	u.ID = s.id()
	u.CreatedAt = s.now().UTC()
	u.PasswordHash = append([]byte(nil), u.PasswordHash...)
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id int64) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, fmt.Errorf("get user %d: %w", id, core.ErrNotFound)
	}
	return u, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return core.User{}, fmt.Errorf("get user by username: %w", core.ErrNotFound)
}

func (s *Store) ListCategories(_ context.Context, ownerID int64) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Category
	for _, c := range s.cats {
		if c.VisibleTo(ownerID) {
			out = append(out, copyCategory(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetCategory(_ context.Context, id int64) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cats[id]
	if !ok {
		return core.Category{}, fmt.Errorf("get category %d: %w", id, core.ErrNotFound)
	}
	return copyCategory(c), nil
}

func (s *Store) CreateCategory(_ context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.IsGlobal && s.hasGlobal(c.Name) {
		return core.Category{}, fmt.Errorf("create category %q: %w", c.Name, core.ErrDuplicate)
	}
	c = copyCategory(c)
	c.ID = s.id()
	s.cats[c.ID] = c
	return copyCategory(c), nil
}

func (s *Store) RenameCategory(_ context.Context, id int64, name string) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cats[id]
	if !ok {
		return core.Category{}, fmt.Errorf("rename category %d: %w", id, core.ErrNotFound)
	}
	c.Name = name
	s.cats[id] = c
	return copyCategory(c), nil
}

func (s *Store) DeleteCategory(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cats[id]; !ok {
		return fmt.Errorf("delete category %d: %w", id, core.ErrNotFound)
	}
	delete(s.cats, id)
	for txID, t := range s.txs {
		if t.CategoryID != nil && *t.CategoryID == id {
			t.CategoryID = nil
			s.txs[txID] = t
		}
	}
	return nil
}

func (s *Store) EnsureGlobalCategories(_ context.Context, names []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	created := 0
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || s.hasGlobal(name) {
			continue
		}
		id := s.id()
		s.cats[id] = core.Category{ID: id, Name: name, IsGlobal: true}
		created++
	}
	return created, nil
}

func (s *Store) hasGlobal(name string) bool {
	for _, c := range s.cats {
		if c.IsGlobal && c.Name == name {
			return true
		}
	}
	return false
}

// project fills the read-only category name; callers hold the lock.
func (s *Store) project(t core.Transaction) core.Transaction {
	t.CategoryName = ""
	if t.CategoryID != nil {
		id := *t.CategoryID
		t.CategoryID = &id
		if c, ok := s.cats[id]; ok {
			t.CategoryName = c.Name
		}
	}
	return t
}

func (s *Store) matching(p core.Predicate) []core.Transaction {
	out := []core.Transaction{}
	for _, t := range s.txs {
		if p.Match(t) {
			out = append(out, s.project(t))
		}
	}
	return out
}

func (s *Store) ListTransactions(_ context.Context, p core.Predicate) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.matching(p)
	core.SortTransactions(out)
	return out, nil
}

func (s *Store) GetTransaction(_ context.Context, ownerID, id int64) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txs[id]
	if !ok || t.OwnerID != ownerID {
		return core.Transaction{}, fmt.Errorf("get transaction %d: %w", id, core.ErrNotFound)
	}
	return s.project(t), nil
}

func (s *Store) CreateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.CategoryID != nil {
		if _, ok := s.cats[*t.CategoryID]; !ok {
			return core.Transaction{}, fmt.Errorf("create transaction: category %d: %w", *t.CategoryID, core.ErrNotFound)
		}
	}
	t.ID = s.id()
	t.CreatedAt = s.now().UTC()
	t = s.project(t)
	s.txs[t.ID] = t
	return t, nil
}

func (s *Store) UpdateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.txs[t.ID]
	if !ok || cur.OwnerID != t.OwnerID {
		return core.Transaction{}, fmt.Errorf("update transaction %d: %w", t.ID, core.ErrNotFound)
	}
	if t.CategoryID != nil {
		if _, ok := s.cats[*t.CategoryID]; !ok {
			return core.Transaction{}, fmt.Errorf("update transaction: category %d: %w", *t.CategoryID, core.ErrNotFound)
		}
	}
	cur.Amount = t.Amount
	cur.Type = t.Type
	cur.CategoryID = t.CategoryID
	cur.Date = t.Date
	cur.Description = t.Description
	cur = s.project(cur)
	s.txs[cur.ID] = cur
	return cur, nil
}

func (s *Store) DeleteTransaction(_ context.Context, ownerID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txs[id]
	if !ok || t.OwnerID != ownerID {
		return fmt.Errorf("delete transaction %d: %w", id, core.ErrNotFound)
	}
	delete(s.txs, id)
	return nil
}

func (s *Store) SumAmounts(_ context.Context, ownerID int64, preds ...core.Predicate) ([]core.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sums := make([]core.Money, len(preds))
	for i, p := range preds {
		if p.OwnerID != ownerID {
			return nil, fmt.Errorf("sum amounts: predicate %d is scoped to another owner", i)
		}
		for _, t := range s.txs {
			if p.Match(t) {
				sums[i] = sums[i].Add(t.Amount)
			}
		}
	}
	return sums, nil
}

func (s *Store) SumByCategory(_ context.Context, p core.Predicate) ([]core.CategorySpending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.SumSpending(s.matching(p)), nil
}

func (s *Store) SumByMonth(_ context.Context, p core.Predicate) ([]core.MonthTotal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type bucket struct{ income, expenses core.Money }
	buckets := map[string]*bucket{}
	for _, t := range s.matching(p) {
		key := core.MonthKey(t.Date)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		if t.Type == core.Income {
			b.income = b.income.Add(t.Amount)
		} else {
			b.expenses = b.expenses.Add(t.Amount)
		}
	}
	out := make([]core.MonthTotal, 0, len(buckets))
	for key, b := range buckets {
		out = append(out, core.MonthTotal{Month: key, Income: b.income.Decimal(), Expenses: b.expenses.Decimal()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

func copyCategory(c core.Category) core.Category {
	if c.OwnerID != nil {
		id := *c.OwnerID
		c.OwnerID = &id
	}
	return c
}
