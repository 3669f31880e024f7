package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"fintraka/internal/core"
)

// SQLStore implements Store over database/sql for both sqlite and postgres.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

var _ Store = (*SQLStore)(nil)

func driverName(d Dialect) string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite"
}

// SQLiteDSN enables foreign keys on every pooled connection; without them
// deleting a category would not clear transaction references.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func NewSQLiteStore(dbPath string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	return open(SQLite, SQLiteDSN(dbPath))
}

func NewPostgresStore(dsn string) (*SQLStore, error) {
	return open(Postgres, dsn)
}

func open(dialect Dialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(driverName(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dialect, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLStore{db: db, dialect: dialect, now: time.Now}, nil
}

func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.rebind(q), args...)
}

func (s *SQLStore) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.rebind(q), args...)
}

func (s *SQLStore) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.dialect.rebind(q), args...)
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	return err
}

// Users

func (s *SQLStore) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	u.CreatedAt = s.now().UTC().Truncate(time.Microsecond)
	err := s.queryRow(ctx,
		`INSERT INTO users (username, email, password_hash, created_at) VALUES (?, ?, ?, ?) RETURNING id`,
		u.Username, u.Email, u.PasswordHash, s.dialect.timeArg(u.CreatedAt),
	).Scan(&u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return core.User{}, fmt.Errorf("create user %q: %w", u.Username, core.ErrDuplicate)
		}
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

const userColumns = `id, username, email, password_hash, created_at`

func scanUser(row interface{ Scan(...any) error }) (core.User, error) {
	var (
		u  core.User
		ts timeValue
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &ts); err != nil {
		return core.User{}, err
	}
	u.CreatedAt = ts.Time
	return u, nil
}

func (s *SQLStore) GetUser(ctx context.Context, id int64) (core.User, error) {
	u, err := scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return core.User{}, fmt.Errorf("get user %d: %w", id, notFound(err))
	}
	return u, nil
}

func (s *SQLStore) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	u, err := scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username))
	if err != nil {
		return core.User{}, fmt.Errorf("get user by username: %w", notFound(err))
	}
	return u, nil
}

// Categories

const categoryColumns = `id, name, owner_id, is_global`

func scanCategory(row interface{ Scan(...any) error }) (core.Category, error) {
	var (
		c     core.Category
		owner sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.Name, &owner, &c.IsGlobal); err != nil {
		return core.Category{}, err
	}
	if owner.Valid {
		id := owner.Int64
		c.OwnerID = &id
	}
	return c, nil
}

func (s *SQLStore) ListCategories(ctx context.Context, ownerID int64) ([]core.Category, error) {
	rows, err := s.query(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE is_global = ? OR owner_id = ? ORDER BY name, id`,
		true, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	c, err := scanCategory(s.queryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id))
	if err != nil {
		return core.Category{}, fmt.Errorf("get category %d: %w", id, notFound(err))
	}
	return c, nil
}

func (s *SQLStore) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	err := s.queryRow(ctx,
		`INSERT INTO categories (name, owner_id, is_global) VALUES (?, ?, ?) RETURNING id`,
		c.Name, nullID(c.OwnerID), c.IsGlobal,
	).Scan(&c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Category{}, fmt.Errorf("create category %q: %w", c.Name, core.ErrDuplicate)
		}
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

func (s *SQLStore) RenameCategory(ctx context.Context, id int64, name string) (core.Category, error) {
	res, err := s.exec(ctx, `UPDATE categories SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return core.Category{}, fmt.Errorf("rename category %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Category{}, fmt.Errorf("rename category %d: %w", id, core.ErrNotFound)
	}
	return s.GetCategory(ctx, id)
}

func (s *SQLStore) DeleteCategory(ctx context.Context, id int64) error {
	res, err := s.exec(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete category %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete category %d: %w", id, core.ErrNotFound)
	}
	return nil
}

func (s *SQLStore) EnsureGlobalCategories(ctx context.Context, names []string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	q := s.dialect.rebind(`INSERT INTO categories (name, owner_id, is_global) VALUES (?, NULL, ?) ON CONFLICT DO NOTHING`)
	created := 0
	for _, name := range names {
		res, err := tx.ExecContext(ctx, q, name, true)
		if err != nil {
			return 0, fmt.Errorf("seed category %q: %w", name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("seed category %q: %w", name, err)
		}
		created += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seed: %w", err)
	}
	if created > 0 {
		slog.InfoContext(ctx, "Global categories created", "count", created)
	}
	return created, nil
}

// Transactions

const transactionSelect = `SELECT t.id, t.owner_id, t.amount_cents, t.type, t.category_id, COALESCE(c.name, ''),
	t.date, t.description, t.created_at
FROM transactions t LEFT JOIN categories c ON c.id = t.category_id`

func scanTransaction(row interface{ Scan(...any) error }) (core.Transaction, error) {
	var (
		t        core.Transaction
		typ      string
		category sql.NullInt64
		date     dateValue
		ts       timeValue
	)
	if err := row.Scan(&t.ID, &t.OwnerID, &t.Amount.Cents, &typ, &category, &t.CategoryName, &date, &t.Description, &ts); err != nil {
		return core.Transaction{}, err
	}
	t.Type = core.TransactionType(typ)
	if category.Valid {
		id := category.Int64
		t.CategoryID = &id
	}
	t.Date = date.Date
	t.CreatedAt = ts.Time
	return t, nil
}

func (s *SQLStore) ListTransactions(ctx context.Context, p core.Predicate) ([]core.Transaction, error) {
	where, args, err := s.dialect.predicateSQL(p)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	q := transactionSelect + ` WHERE t.owner_id = ? AND ` + where +
		` ORDER BY t.date DESC, t.created_at DESC, t.id DESC`

	rows, err := s.query(ctx, q, append([]any{p.OwnerID}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := []core.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetTransaction(ctx context.Context, ownerID, id int64) (core.Transaction, error) {
	t, err := scanTransaction(s.queryRow(ctx, transactionSelect+` WHERE t.owner_id = ? AND t.id = ?`, ownerID, id))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %d: %w", id, notFound(err))
	}
	return t, nil
}

func (s *SQLStore) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	t.CreatedAt = s.now().UTC().Truncate(time.Microsecond)
	var id int64
	err := s.queryRow(ctx,
		`INSERT INTO transactions (owner_id, amount_cents, type, category_id, date, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		t.OwnerID, t.Amount.Cents, string(t.Type), nullID(t.CategoryID),
		s.dialect.dateArg(t.Date), t.Description, s.dialect.timeArg(t.CreatedAt),
	).Scan(&id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	slog.DebugContext(ctx, "Transaction saved",
		"id", id,
		"owner_id", t.OwnerID,
		"type", t.Type,
		"amount_cents", t.Amount.Cents)

	return s.GetTransaction(ctx, t.OwnerID, id)
}

func (s *SQLStore) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	res, err := s.exec(ctx,
		`UPDATE transactions SET amount_cents = ?, type = ?, category_id = ?, date = ?, description = ?
		WHERE id = ? AND owner_id = ?`,
		t.Amount.Cents, string(t.Type), nullID(t.CategoryID), s.dialect.dateArg(t.Date), t.Description,
		t.ID, t.OwnerID,
	)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction %d: %w", t.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Transaction{}, fmt.Errorf("update transaction %d: %w", t.ID, core.ErrNotFound)
	}
	return s.GetTransaction(ctx, t.OwnerID, t.ID)
}

func (s *SQLStore) DeleteTransaction(ctx context.Context, ownerID, id int64) error {
	res, err := s.exec(ctx, `DELETE FROM transactions WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete transaction %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete transaction %d: %w", id, core.ErrNotFound)
	}
	return nil
}

// Reports

// SumAmounts renders every predicate as a conditional SUM in one SELECT, so
// all sums come from the same snapshot.
func (s *SQLStore) SumAmounts(ctx context.Context, ownerID int64, preds ...core.Predicate) ([]core.Money, error) {
	if len(preds) == 0 {
		return nil, nil
	}
	cols := make([]string, 0, len(preds))
	var args []any
	for i, p := range preds {
		if p.OwnerID != ownerID {
			return nil, fmt.Errorf("sum amounts: predicate %d is scoped to another owner", i)
		}
		where, pargs, err := s.dialect.predicateSQL(p)
		if err != nil {
			return nil, fmt.Errorf("sum amounts: %w", err)
		}
		cols = append(cols, `CAST(COALESCE(SUM(CASE WHEN `+where+` THEN t.amount_cents ELSE 0 END), 0) AS BIGINT)`)
		args = append(args, pargs...)
	}
	args = append(args, ownerID)

	q := `SELECT ` + strings.Join(cols, ", ") + ` FROM transactions t WHERE t.owner_id = ?`
	sums := make([]core.Money, len(preds))
	dest := make([]any, len(preds))
	for i := range sums {
		dest[i] = &sums[i].Cents
	}
	if err := s.queryRow(ctx, q, args...).Scan(dest...); err != nil {
		return nil, fmt.Errorf("sum amounts: %w", err)
	}
	return sums, nil
}

func (s *SQLStore) SumByCategory(ctx context.Context, p core.Predicate) ([]core.CategorySpending, error) {
	where, args, err := s.dialect.predicateSQL(p)
	if err != nil {
		return nil, fmt.Errorf("sum by category: %w", err)
	}
	q := `SELECT c.name, CAST(SUM(t.amount_cents) AS BIGINT) AS total
	FROM transactions t JOIN categories c ON c.id = t.category_id
	WHERE t.owner_id = ? AND ` + where + `
	GROUP BY c.name
	ORDER BY total DESC, c.name ASC`

	rows, err := s.query(ctx, q, append([]any{p.OwnerID}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("sum by category: %w", err)
	}
	defer rows.Close()

	out := []core.CategorySpending{}
	for rows.Next() {
		var (
			name  string
			cents int64
		)
		if err := rows.Scan(&name, &cents); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		out = append(out, core.CategorySpending{CategoryName: name, Total: core.Money{Cents: cents}.Decimal()})
	}
	return out, rows.Err()
}

func (s *SQLStore) SumByMonth(ctx context.Context, p core.Predicate) ([]core.MonthTotal, error) {
	where, args, err := s.dialect.predicateSQL(p)
	if err != nil {
		return nil, fmt.Errorf("sum by month: %w", err)
	}
	q := `SELECT ` + s.dialect.monthExpr("t.date") + ` AS month,
		CAST(COALESCE(SUM(CASE WHEN t.type = ? THEN t.amount_cents ELSE 0 END), 0) AS BIGINT),
		CAST(COALESCE(SUM(CASE WHEN t.type = ? THEN t.amount_cents ELSE 0 END), 0) AS BIGINT)
	FROM transactions t
	WHERE t.owner_id = ? AND ` + where + `
	GROUP BY 1
	ORDER BY 1`

	all := append([]any{string(core.Income), string(core.Expense), p.OwnerID}, args...)
	rows, err := s.query(ctx, q, all...)
	if err != nil {
		return nil, fmt.Errorf("sum by month: %w", err)
	}
	defer rows.Close()

	var out []core.MonthTotal
	for rows.Next() {
		var (
			month            string
			income, expenses int64
		)
		if err := rows.Scan(&month, &income, &expenses); err != nil {
			return nil, fmt.Errorf("scan month total: %w", err)
		}
		out = append(out, core.MonthTotal{
			Month:    month,
			Income:   core.Money{Cents: income}.Decimal(),
			Expenses: core.Money{Cents: expenses}.Decimal(),
		})
	}
	return out, rows.Err()
}
