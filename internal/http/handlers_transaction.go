package http

import (
	"net/http"
)

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.ledger.ListTransactions(r.Context(), currentUser(r.Context()).ID, filterParams(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionsJSON(txs))
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "transaction")
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.ledger.GetTransaction(r.Context(), currentUser(r.Context()).ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionJSON(t))
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.ledger.CreateTransaction(r.Context(), currentUser(r.Context()).ID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionJSON(t))
}

// handleReplaceTransaction is PUT: every writable field is replaced.
func (s *Server) handleReplaceTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "transaction")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.ledger.UpdateTransaction(r.Context(), currentUser(r.Context()).ID, id, in.Patch())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionJSON(t))
}

// handlePatchTransaction is PATCH: only supplied fields change.
func (s *Server) handlePatchTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "transaction")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	patch, err := req.patch()
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.ledger.UpdateTransaction(r.Context(), currentUser(r.Context()).ID, id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionJSON(t))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "transaction")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.ledger.DeleteTransaction(r.Context(), currentUser(r.Context()).ID, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
