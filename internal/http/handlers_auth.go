package http

import (
	"context"
	"net/http"

	"fintraka/internal/core"
	applog "fintraka/internal/log"
	"fintraka/internal/services"
)

type userContextKey struct{}

func withUser(ctx context.Context, u core.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

// currentUser returns the authenticated user; the zero User (id 0) when the
// request did not pass requireAuth.
func currentUser(ctx context.Context) core.User {
	u, _ := ctx.Value(userContextKey{}).(core.User)
	return u
}

// requireAuth resolves the Authorization header to a user or answers 401.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		u, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := withUser(r.Context(), u)
		ctx = applog.NewContext(ctx, applog.FromContext(ctx).With(applog.FieldUserID, u.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.auth.Register(r.Context(), services.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"user":    toUserJSON(u),
		"message": "User created successfully",
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	token, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toUserJSON(currentUser(r.Context())))
}
