package http

import (
	"net/http"
)

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cs, err := s.ledger.ListCategories(r.Context(), currentUser(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoriesJSON(cs))
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "category")
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.ledger.GetCategory(r.Context(), currentUser(r.Context()).ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryJSON(c))
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	name, err := req.name()
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.ledger.CreateCategory(r.Context(), currentUser(r.Context()).ID, name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCategoryJSON(c))
}

// handleRenameCategory serves PUT and PATCH; name is the only writable field.
func (s *Server) handleRenameCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "category")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	requester := currentUser(r.Context()).ID
	if req.Name == nil && r.Method == http.MethodPatch {
		// nothing writable supplied: answer with the current row
		c, err := s.ledger.GetOwnedCategory(r.Context(), requester, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toCategoryJSON(c))
		return
	}
	name, err := req.name()
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.ledger.RenameCategory(r.Context(), requester, id, name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryJSON(c))
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "category")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.ledger.DeleteCategory(r.Context(), currentUser(r.Context()).ID, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
