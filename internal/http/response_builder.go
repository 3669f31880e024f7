// JSON responses and the wire shapes of every entity. Amounts are strings
// on transactions and numbers in reports.

package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"fintraka/internal/core"
	applog "fintraka/internal/log"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       any
}

func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{statusCode: http.StatusOK, headers: make(map[string]string)}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write encodes the body before touching w so an encoding failure still
// yields a clean 500.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(b.body); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"kind":"operation_failed","message":"internal error"}}` + "\n"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(buf.Bytes())
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func statusForKind(k core.Kind) int {
	switch k {
	case core.KindValidationFailed:
		return http.StatusBadRequest
	case core.KindUnauthorized:
		return http.StatusUnauthorized
	case core.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse maps err's kind to a status. OperationFailed carries only a
// generic message.
func ErrorResponse(err error) *JSONResponseBuilder {
	kind := core.KindOf(err)
	b := NewJSONResponse().
		Status(statusForKind(kind)).
		Body(errorBody{Error: errorDetail{Kind: kind.String(), Message: core.MessageOf(err)}})
	if kind == core.KindUnauthorized {
		b.Header("WWW-Authenticate", "Token")
	}
	return b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	NewJSONResponse().Status(status).Body(v).Write(w)
}

// writeError logs OperationFailed causes once, then writes the mapped error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if core.KindOf(err) == core.KindOperationFailed {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldError, err)
	}
	ErrorResponse(err).Write(w)
}

func writeStatusError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Kind: kind, Message: message}})
}

type userJSON struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func toUserJSON(u core.User) userJSON {
	return userJSON{ID: u.ID, Username: u.Username, Email: u.Email}
}

type categoryJSON struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	User     *int64 `json:"user"`
	IsGlobal bool   `json:"is_global"`
}

func toCategoryJSON(c core.Category) categoryJSON {
	return categoryJSON{ID: c.ID, Name: c.Name, User: c.OwnerID, IsGlobal: c.IsGlobal}
}

func toCategoriesJSON(cs []core.Category) []categoryJSON {
	out := make([]categoryJSON, 0, len(cs))
	for _, c := range cs {
		out = append(out, toCategoryJSON(c))
	}
	return out
}

type transactionJSON struct {
	ID           int64     `json:"id"`
	User         int64     `json:"user"`
	Amount       string    `json:"amount"`
	Type         string    `json:"type"`
	Category     *int64    `json:"category"`
	CategoryName *string   `json:"category_name"`
	Date         core.Date `json:"date"`
	Description  string    `json:"description"`
	CreatedAt    string    `json:"created_at"`
}

func toTransactionJSON(t core.Transaction) transactionJSON {
	out := transactionJSON{
		ID:          t.ID,
		User:        t.OwnerID,
		Amount:      t.Amount.String(),
		Type:        t.Type.String(),
		Category:    t.CategoryID,
		Date:        t.Date,
		Description: t.Description,
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if t.CategoryID != nil {
		name := t.CategoryName
		out.CategoryName = &name
	}
	return out
}

func toTransactionsJSON(ts []core.Transaction) []transactionJSON {
	out := make([]transactionJSON, 0, len(ts))
	for _, t := range ts {
		out = append(out, toTransactionJSON(t))
	}
	return out
}

type summaryJSON struct {
	TotalBalance    float64 `json:"total_balance"`
	MonthlyIncome   float64 `json:"monthly_income"`
	MonthlyExpenses float64 `json:"monthly_expenses"`
	MonthlyBalance  float64 `json:"monthly_balance"`
}

func toSummaryJSON(s core.Summary) summaryJSON {
	return summaryJSON{
		TotalBalance:    s.TotalBalance.InexactFloat64(),
		MonthlyIncome:   s.MonthlyIncome.InexactFloat64(),
		MonthlyExpenses: s.MonthlyExpenses.InexactFloat64(),
		MonthlyBalance:  s.MonthlyBalance.InexactFloat64(),
	}
}

type spendingJSON struct {
	CategoryName string  `json:"category_name"`
	Total        float64 `json:"total"`
}

func toSpendingJSON(s []core.CategorySpending) []spendingJSON {
	out := make([]spendingJSON, 0, len(s))
	for _, c := range s {
		out = append(out, spendingJSON{CategoryName: c.CategoryName, Total: c.Total.InexactFloat64()})
	}
	return out
}

type monthJSON struct {
	Month    string  `json:"month"`
	Income   float64 `json:"income"`
	Expenses float64 `json:"expenses"`
	Balance  float64 `json:"balance"`
}

func toTrendJSON(ms []core.MonthTotal) []monthJSON {
	out := make([]monthJSON, 0, len(ms))
	for _, m := range ms {
		out = append(out, monthJSON{
			Month:    m.Month,
			Income:   m.Income.InexactFloat64(),
			Expenses: m.Expenses.InexactFloat64(),
			Balance:  m.Balance().InexactFloat64(),
		})
	}
	return out
}
