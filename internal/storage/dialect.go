package storage

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"fintraka/internal/core"
)

// timestampLayout keeps sqlite timestamps fixed-width so they sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// rebind rewrites ? placeholders to $n for postgres.
func (d Dialect) rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d Dialect) dateArg(v core.Date) any {
	if d == Postgres {
		return v.Time
	}
	return v.String()
}

func (d Dialect) timeArg(t time.Time) any {
	t = t.UTC().Truncate(time.Microsecond)
	if d == Postgres {
		return t
	}
	return t.Format(timestampLayout)
}

func (d Dialect) monthExpr(col string) string {
	if d == Postgres {
		return "to_char(" + col + ", 'YYYY-MM')"
	}
	return "substr(" + col + ", 1, 7)"
}

// isUniqueViolation recognizes unique-constraint failures from either driver.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	return false
}

// dateValue scans a DATE column stored as TEXT (sqlite) or DATE (postgres).
type dateValue struct{ core.Date }

func (v *dateValue) Scan(src any) error {
	switch s := src.(type) {
	case time.Time:
		v.Date = core.DateOf(s)
		return nil
	case string:
		return v.parse(s)
	case []byte:
		return v.parse(string(s))
	default:
		return fmt.Errorf("scan date: unsupported type %T", src)
	}
}

func (v *dateValue) parse(s string) error {
	if len(s) > 10 {
		s = s[:10]
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return fmt.Errorf("scan date %q: %w", s, err)
	}
	v.Date = d
	return nil
}

// timeValue scans a timestamp stored as TEXT (sqlite) or TIMESTAMPTZ (postgres).
type timeValue struct{ time.Time }

func (v *timeValue) Scan(src any) error {
	switch s := src.(type) {
	case time.Time:
		v.Time = s.UTC()
		return nil
	case string:
		return v.parse(s)
	case []byte:
		return v.parse(string(s))
	default:
		return fmt.Errorf("scan timestamp: unsupported type %T", src)
	}
}

func (v *timeValue) parse(s string) error {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("scan timestamp %q: %w", s, err)
	}
	v.Time = t.UTC()
	return nil
}

// nullID converts an optional foreign key into a driver argument.
func nullID(id *int64) driver.Value {
	if id == nil {
		return nil
	}
	return *id
}

// predicateSQL renders the conditions of p (not its owner) as an AND-ed
// clause over the transactions table aliased as t.
func (d Dialect) predicateSQL(p core.Predicate) (string, []any, error) {
	if len(p.Conds) == 0 {
		return "1=1", nil, nil
	}
	parts := make([]string, 0, len(p.Conds))
	args := make([]any, 0, len(p.Conds))
	for _, c := range p.Conds {
		clause, arg, err := d.condSQL(c)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, clause)
		if arg != nil {
			args = append(args, arg)
		}
	}
	return strings.Join(parts, " AND "), args, nil
}

func (d Dialect) condSQL(c core.Cond) (string, any, error) {
	var col string
	var arg any
	switch c.Field {
	case core.FieldID:
		col, arg = "t.id", c.Value
	case core.FieldType:
		typ, ok := c.Value.(core.TransactionType)
		if !ok {
			return "", nil, fmt.Errorf("type condition: unexpected value %T", c.Value)
		}
		col, arg = "t.type", string(typ)
	case core.FieldCategory:
		col, arg = "t.category_id", c.Value
	case core.FieldDate:
		date, ok := c.Value.(core.Date)
		if !ok {
			return "", nil, fmt.Errorf("date condition: unexpected value %T", c.Value)
		}
		col, arg = "t.date", d.dateArg(date)
	default:
		return "", nil, fmt.Errorf("unknown field %d", c.Field)
	}
	switch c.Op {
	case core.OpEq:
		return col + " = ?", arg, nil
	case core.OpGte:
		return col + " >= ?", arg, nil
	case core.OpLte:
		return col + " <= ?", arg, nil
	case core.OpNotNull:
		return col + " IS NOT NULL", nil, nil
	default:
		return "", nil, fmt.Errorf("unknown operator %d", c.Op)
	}
}
