// Package http serves the JSON API.
//
// This file decodes request bodies and query strings into service inputs.
// Every decoding problem is reported as a ValidationFailed error naming the
// offending field.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"fintraka/internal/core"
	"fintraka/internal/services"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads exactly one JSON object into dst, rejecting unknown
// fields and bodies over 1 MiB.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var (
			syntaxErr   *json.SyntaxError
			typeErr     *json.UnmarshalTypeError
			maxBytesErr *http.MaxBytesError
		)
		switch {
		case errors.Is(err, io.EOF):
			return core.Invalidf("request body must not be empty")
		case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
			return core.Invalidf("request body contains malformed JSON")
		case errors.As(err, &typeErr):
			if typeErr.Field != "" {
				return core.Invalidf("%s: incorrect type", typeErr.Field)
			}
			return core.Invalidf("request body must be a JSON object")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			return core.Invalidf("unknown field %s", strings.TrimPrefix(err.Error(), "json: unknown field "))
		case errors.As(err, &maxBytesErr):
			return core.Invalidf("request body must not be larger than %d bytes", maxBytesErr.Limit)
		default:
			return core.Invalidf("invalid request body: %v", err)
		}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return core.Invalidf("request body must only contain a single JSON object")
	}
	return nil
}

// pathID parses the {id} URL parameter. A malformed id names no row, so it
// is a NotFound like any other miss.
func pathID(r *http.Request, entity string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, core.NotFound(entity)
	}
	return id, nil
}

func filterParams(r *http.Request) core.FilterParams {
	q := r.URL.Query()
	return core.FilterParams{
		Type:     q.Get("type"),
		Category: q.Get("category"),
		DateFrom: q.Get("date_from"),
		DateTo:   q.Get("date_to"),
	}
}

// parseYear reads ?year=, defaulting to fallback when absent.
func parseYear(r *http.Request, fallback int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get("year"))
	if v == "" {
		return fallback, nil
	}
	y, err := strconv.Atoi(v)
	if err != nil {
		return 0, core.Invalidf("year: must be an integer")
	}
	return y, nil
}

type registerRequest struct {
	ID       json.RawMessage `json:"id"`
	Username string          `json:"username"`
	Email    string          `json:"email"`
	Password string          `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// categoryRequest accepts the full category representation; id, user and
// is_global are read-only and ignored.
type categoryRequest struct {
	ID       json.RawMessage `json:"id"`
	Name     *string         `json:"name"`
	User     json.RawMessage `json:"user"`
	IsGlobal json.RawMessage `json:"is_global"`
}

func (req categoryRequest) name() (string, error) {
	if req.Name == nil {
		return "", core.Invalidf("name: this field is required")
	}
	return *req.Name, nil
}

// transactionRequest accepts the full transaction representation. Read-only
// fields are ignored so a client can send back what it received.
type transactionRequest struct {
	ID           json.RawMessage `json:"id"`
	User         json.RawMessage `json:"user"`
	CategoryName json.RawMessage `json:"category_name"`
	CreatedAt    json.RawMessage `json:"created_at"`

	Amount      json.RawMessage `json:"amount"`
	Type        *string         `json:"type"`
	Category    json.RawMessage `json:"category"`
	Date        *string         `json:"date"`
	Description *string         `json:"description"`
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

// parseAmount accepts a JSON number or string without going through float64.
func parseAmount(raw json.RawMessage) (core.Money, error) {
	if isNull(raw) {
		return core.Money{}, core.Invalidf("amount: this field may not be null")
	}
	text := strings.TrimSpace(string(raw))
	if strings.HasPrefix(text, `"`) {
		if err := json.Unmarshal(raw, &text); err != nil {
			return core.Money{}, core.Invalidf("amount: a valid number is required")
		}
	}
	m, err := core.ParseAmount(text)
	if err != nil {
		return core.Money{}, core.Invalidf("amount: %v", err)
	}
	return m, nil
}

func parseCategoryRef(raw json.RawMessage) (*int64, error) {
	if isNull(raw) {
		return nil, nil
	}
	var id int64
	if err := json.Unmarshal(raw, &id); err != nil || id <= 0 {
		return nil, core.Invalidf("category: incorrect type, expected a category id")
	}
	return &id, nil
}

// patch converts the supplied fields only.
func (req transactionRequest) patch() (services.TransactionPatch, error) {
	var p services.TransactionPatch
	if len(req.Amount) > 0 {
		m, err := parseAmount(req.Amount)
		if err != nil {
			return p, err
		}
		p.Amount = &m
	}
	if req.Type != nil {
		t, err := core.ParseTransactionType(*req.Type)
		if err != nil {
			return p, core.Invalidf("type: %q is not a valid choice", *req.Type)
		}
		p.Type = &t
	}
	if len(req.Category) > 0 {
		id, err := parseCategoryRef(req.Category)
		if err != nil {
			return p, err
		}
		p.Category = services.OptionalID{Set: true, ID: id}
	}
	if req.Date != nil {
		d, err := core.ParseDate(*req.Date)
		if err != nil {
			return p, core.Invalidf("date: date has wrong format, use YYYY-MM-DD")
		}
		p.Date = &d
	}
	p.Description = req.Description
	return p, nil
}

// input requires amount, type and date; an omitted category or description
// means none.
func (req transactionRequest) input() (services.TransactionInput, error) {
	var missing []string
	if len(req.Amount) == 0 {
		missing = append(missing, "amount")
	}
	if req.Type == nil {
		missing = append(missing, "type")
	}
	if req.Date == nil {
		missing = append(missing, "date")
	}
	if len(missing) > 0 {
		return services.TransactionInput{}, core.Invalidf("%s: this field is required", strings.Join(missing, ", "))
	}

	p, err := req.patch()
	if err != nil {
		return services.TransactionInput{}, err
	}
	in := services.TransactionInput{
		Amount:     *p.Amount,
		Type:       *p.Type,
		CategoryID: p.Category.ID,
		Date:       *p.Date,
	}
	if p.Description != nil {
		in.Description = *p.Description
	}
	return in, nil
}

// bearerToken extracts the credential from "Token <t>" or "Bearer <t>".
func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", core.Unauthorized("authentication credentials were not provided")
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || token == "" || (!strings.EqualFold(scheme, "Token") && !strings.EqualFold(scheme, "Bearer")) {
		return "", core.Unauthorized(fmt.Sprintf("invalid authorization header, expected %q", "Token <token>"))
	}
	return token, nil
}
