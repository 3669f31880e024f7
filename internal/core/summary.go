package core

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Totals are the four sums a Summary is derived from. Stores compute them
// in one read so that they describe the same set of transactions.
type Totals struct {
	MonthlyIncome   Money
	MonthlyExpenses Money
	AllIncome       Money
	AllExpenses     Money
}

type Summary struct {
	TotalBalance    decimal.Decimal
	MonthlyIncome   decimal.Decimal
	MonthlyExpenses decimal.Decimal
	MonthlyBalance  decimal.Decimal
}

// CategorySpending is one row of the spending-by-category rollup.
type CategorySpending struct {
	CategoryName string
	Total        decimal.Decimal
}

// MonthTotal is one month of the income/expense trend.
type MonthTotal struct {
	Month    string // YYYY-MM
	Income   decimal.Decimal
	Expenses decimal.Decimal
}

func (m MonthTotal) Balance() decimal.Decimal {
	return m.Income.Sub(m.Expenses)
}

// Window is a closed date interval.
type Window struct {
	From Date
	To   Date
}

// MonthToDate returns [first of month, today] for the calendar day of now
// in loc.
func MonthToDate(now time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	today := DateOf(now.In(loc))
	return Window{From: today.FirstOfMonth(), To: today}
}

// Conds expresses the window as predicate conditions on the date field.
func (w Window) Conds() []Cond {
	return []Cond{
		{Field: FieldDate, Op: OpGte, Value: w.From},
		{Field: FieldDate, Op: OpLte, Value: w.To},
	}
}

// YearWindow returns the full calendar year.
func YearWindow(year int) Window {
	return Window{From: NewDate(year, 1, 1), To: NewDate(year, 12, 31)}
}

// NewSummary derives the balances with exact decimal arithmetic.
func NewSummary(t Totals) Summary {
	mi, me := t.MonthlyIncome.Decimal(), t.MonthlyExpenses.Decimal()
	return Summary{
		TotalBalance:    t.AllIncome.Decimal().Sub(t.AllExpenses.Decimal()),
		MonthlyIncome:   mi,
		MonthlyExpenses: me,
		MonthlyBalance:  mi.Sub(me),
	}
}

// SumSpending groups categorized expense amounts by category name and
// orders the groups by total descending, ties by name.
func SumSpending(ts []Transaction) []CategorySpending {
	totals := make(map[string]int64)
	for _, t := range ts {
		if t.Type != Expense || t.CategoryID == nil {
			continue
		}
		totals[t.CategoryName] += t.Amount.Cents
	}
	out := make([]CategorySpending, 0, len(totals))
	for name, cents := range totals {
		out = append(out, CategorySpending{CategoryName: name, Total: Money{Cents: cents}.Decimal()})
	}
	SortSpending(out)
	return out
}

func SortSpending(s []CategorySpending) {
	sort.SliceStable(s, func(i, j int) bool {
		if c := s[i].Total.Cmp(s[j].Total); c != 0 {
			return c > 0
		}
		return s[i].CategoryName < s[j].CategoryName
	})
}

// MonthKey formats the YYYY-MM bucket of d.
func MonthKey(d Date) string {
	return fmt.Sprintf("%04d-%02d", d.Year(), int(d.Month()))
}

// TrendMonths returns how many months of year the trend covers when
// viewed from today: all twelve for past years, up to the current month
// for this year, none for future years.
func TrendMonths(year int, today Date) int {
	switch {
	case year < today.Year():
		return 12
	case year == today.Year():
		return int(today.Month())
	default:
		return 0
	}
}

// FillMonths returns January through month last of year, taking amounts
// from partial and zero for months it does not mention.
func FillMonths(year, last int, partial []MonthTotal) []MonthTotal {
	byMonth := make(map[string]MonthTotal, len(partial))
	for _, m := range partial {
		byMonth[m.Month] = m
	}
	out := make([]MonthTotal, 0, last)
	for month := 1; month <= last; month++ {
		key := MonthKey(NewDate(year, month, 1))
		m, ok := byMonth[key]
		if !ok {
			m = MonthTotal{Month: key, Income: decimal.Zero, Expenses: decimal.Zero}
		}
		out = append(out, m)
	}
	return out
}
