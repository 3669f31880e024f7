package core

import (
	"sort"
	"strconv"
	"strings"
)

// FilterParams holds the raw, optional listing parameters as received
// from a caller. Empty strings mean "no restriction".
type FilterParams struct {
	Type     string
	Category string
	DateFrom string
	DateTo   string
}

// TransactionFilter is the validated form of FilterParams.
type TransactionFilter struct {
	Type       *TransactionType
	CategoryID *int64
	DateFrom   *Date
	DateTo     *Date
}

type Field int

const (
	FieldID Field = iota
	FieldType
	FieldCategory
	FieldDate
)

type Op int

const (
	OpEq Op = iota
	OpGte
	OpLte
	OpNotNull
)

// Cond is a single restriction on a transaction field. Value holds an
// int64 for FieldID and FieldCategory, a TransactionType for FieldType and
// a Date for FieldDate; it is unused for OpNotNull.
type Cond struct {
	Field Field
	Op    Op
	Value any
}

// Predicate is an owner scope plus conditions that all must hold.
type Predicate struct {
	OwnerID int64
	Conds   []Cond
}

// NewTransactionFilter validates raw parameters. Malformed values fail
// with ValidationFailed rather than silently matching nothing; a
// well-formed category id that does not exist still just matches nothing.
func NewTransactionFilter(p FilterParams) (TransactionFilter, error) {
	var f TransactionFilter
	if v := strings.TrimSpace(p.Type); v != "" {
		t, err := ParseTransactionType(v)
		if err != nil {
			return TransactionFilter{}, Invalidf("type: %v", err)
		}
		f.Type = &t
	}
	if v := strings.TrimSpace(p.Category); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return TransactionFilter{}, Invalidf("category: must be a positive integer id")
		}
		f.CategoryID = &id
	}
	if v := strings.TrimSpace(p.DateFrom); v != "" {
		d, err := ParseDate(v)
		if err != nil {
			return TransactionFilter{}, Invalidf("date_from: %v", err)
		}
		f.DateFrom = &d
	}
	if v := strings.TrimSpace(p.DateTo); v != "" {
		d, err := ParseDate(v)
		if err != nil {
			return TransactionFilter{}, Invalidf("date_to: %v", err)
		}
		f.DateTo = &d
	}
	return f, nil
}

// Predicate composes the filter into an owner-scoped predicate.
func (f TransactionFilter) Predicate(ownerID int64) Predicate {
	p := Predicate{OwnerID: ownerID}
	if f.Type != nil {
		p = p.And(Cond{Field: FieldType, Op: OpEq, Value: *f.Type})
	}
	if f.CategoryID != nil {
		p = p.And(Cond{Field: FieldCategory, Op: OpEq, Value: *f.CategoryID})
	}
	if f.DateFrom != nil {
		p = p.And(Cond{Field: FieldDate, Op: OpGte, Value: *f.DateFrom})
	}
	if f.DateTo != nil {
		p = p.And(Cond{Field: FieldDate, Op: OpLte, Value: *f.DateTo})
	}
	return p
}

// And returns a copy of p with extra conditions; p itself is not modified.
func (p Predicate) And(conds ...Cond) Predicate {
	out := Predicate{OwnerID: p.OwnerID, Conds: make([]Cond, 0, len(p.Conds)+len(conds))}
	out.Conds = append(out.Conds, p.Conds...)
	out.Conds = append(out.Conds, conds...)
	return out
}

// ByID narrows p to a single transaction id.
func (p Predicate) ByID(id int64) Predicate {
	return p.And(Cond{Field: FieldID, Op: OpEq, Value: id})
}

// Match evaluates p against t in memory.
func (p Predicate) Match(t Transaction) bool {
	if t.OwnerID != p.OwnerID {
		return false
	}
	for _, c := range p.Conds {
		if !c.Match(t) {
			return false
		}
	}
	return true
}

func (c Cond) Match(t Transaction) bool {
	switch c.Field {
	case FieldID:
		id, ok := c.Value.(int64)
		return ok && c.Op == OpEq && t.ID == id
	case FieldType:
		typ, ok := c.Value.(TransactionType)
		return ok && c.Op == OpEq && t.Type == typ
	case FieldCategory:
		if c.Op == OpNotNull {
			return t.CategoryID != nil
		}
		id, ok := c.Value.(int64)
		return ok && c.Op == OpEq && t.CategoryID != nil && *t.CategoryID == id
	case FieldDate:
		d, ok := c.Value.(Date)
		if !ok {
			return false
		}
		switch c.Op {
		case OpEq:
			return t.Date.Equal(d.Time)
		case OpGte:
			return !t.Date.Before(d.Time)
		case OpLte:
			return !t.Date.After(d.Time)
		}
	}
	return false
}

// SortTransactions orders newest first: date, then creation time, then id.
func SortTransactions(ts []Transaction) {
	sort.SliceStable(ts, func(i, j int) bool {
		a, b := ts[i], ts[j]
		if !a.Date.Equal(b.Date.Time) {
			return a.Date.After(b.Date.Time)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}
