package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"bookstore/internal/util"
	"bookstore/pkg/domain"
	"bookstore/pkg/store"
	"bookstore/services/book/internal/app"
)

const maxBodyBytes = 1 << 20

// TokenVerifier validates a bearer token and returns the caller's identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (domain.Identity, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App           *app.App
	TokenVerifier TokenVerifier
}

// Server exposes HTTP endpoints for the book service.
type Server struct {
	app           *app.App
	tokenVerifier TokenVerifier
	mux           *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server requires app")
	}
	if cfg.TokenVerifier == nil {
		return nil, errors.New("server requires token verifier")
	}
	s := &Server{
		app:           cfg.App,
		tokenVerifier: cfg.TokenVerifier,
		mux:           http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("book", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	// books
	s.mux.HandleFunc("GET /books", s.handleListBooks)
	s.mux.Handle("POST /books", s.withRole(domain.RoleAdmin, s.handleCreateBook))
	s.mux.Handle("PUT /books/{id}", s.withRole(domain.RoleAdmin, s.handleUpdateBook))
	s.mux.Handle("DELETE /books/{id}", s.withRole(domain.RoleAdmin, s.handleDeleteBook))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type identityHandler func(http.ResponseWriter, *http.Request, domain.Identity)

// withRole authenticates the bearer token, then requires role.
func (s *Server) withRole(role string, next identityHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := util.LoggerFromContext(r.Context())
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		identity, err := s.tokenVerifier.Verify(r.Context(), token)
		if err != nil {
			logger.Info("token rejected", "err", err)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !identity.HasRole(role) {
			logger.Info("access denied", "subject", identity.Subject, "required_role", role)
			writeError(w, http.StatusForbidden, "access denied")
			return
		}
		next(w, r, identity)
	})
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.app.ListBooks(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	fields, err := decodeBookBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.app.CreateBook(r.Context(), fields); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	util.LoggerFromContext(r.Context()).Info("book created", "subject", identity.Subject)
	writeText(w, http.StatusCreated, "Book added successfully")
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	id := r.PathValue("id")
	fields, err := decodeBookBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.app.UpdateBook(r.Context(), id, fields); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	util.LoggerFromContext(r.Context()).Info("book updated", "book_id", id, "subject", identity.Subject)
	writeText(w, http.StatusOK, "Book updated successfully")
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	id := r.PathValue("id")
	if err := s.app.DeleteBook(r.Context(), id); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	util.LoggerFromContext(r.Context()).Info("book deleted", "book_id", id, "subject", identity.Subject)
	writeText(w, http.StatusOK, "Book deleted successfully")
}

// writeStoreError maps app and store failures onto HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidBook):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrBookNotFound):
		writeError(w, http.StatusNotFound, "book not found")
	default:
		util.LoggerFromContext(r.Context()).Error("store operation failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, store.ErrorDetail(err))
	}
}

// decodeBookBody reads a single JSON object. Numbers are kept as json.Number
// so integer columns round-trip without float conversion.
func decodeBookBody(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errors.New("body must be a JSON object")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON object")
	}
	return fields, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, msg)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCodeForBook(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

func errorCodeForBook(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "unauthorized":
		return "AUTH_INVALID_TOKEN"
	case message == "access denied":
		return "BOOK_FORBIDDEN"
	case message == "book not found":
		return "BOOK_NOT_FOUND"
	case message == "invalid json body":
		return "BOOK_INVALID_REQUEST"
	case strings.HasPrefix(message, "invalid book"):
		return "BOOK_INVALID_FIELDS"
	}

	switch status {
	case http.StatusBadRequest:
		return "BOOK_INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusForbidden:
		return "BOOK_FORBIDDEN"
	case http.StatusNotFound:
		return "BOOK_NOT_FOUND"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(authHeader, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
