package http

import (
	"bytes"
	"net/http"
	"strconv"

	"fintraka/internal/core"
	"fintraka/internal/export"
	applog "fintraka/internal/log"
)

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.ledger.Summary(r.Context(), currentUser(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryJSON(sum))
}

func (s *Server) handleSpendingByCategory(w http.ResponseWriter, r *http.Request) {
	spending, err := s.ledger.SpendingByCategory(r.Context(), currentUser(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSpendingJSON(spending))
}

func (s *Server) handleMonthlyTrend(w http.ResponseWriter, r *http.Request) {
	year, err := parseYear(r, s.ledger.Today().Year())
	if err != nil {
		writeError(w, r, err)
		return
	}
	months, err := s.ledger.MonthlyTrend(r.Context(), currentUser(r.Context()).ID, year)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTrendJSON(months))
}

// handleExport renders the filtered listing as a CSV or XLSX download. The
// file is built in memory so a failure can still answer with JSON.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, core.Invalidf("format: %v", err))
		return
	}
	user := currentUser(r.Context())
	txs, err := s.ledger.ListTransactions(r.Context(), user.ID, filterParams(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, txs); err != nil {
		writeError(w, r, core.OperationFailed("export transactions", err))
		return
	}

	applog.FromContext(r.Context()).InfoContext(r.Context(), "Transactions exported",
		applog.FieldOperation, applog.OpExport,
		"format", string(format),
		"rows", len(txs))

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+format.Filename(s.ledger.Today().Time)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
