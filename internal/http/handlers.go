package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"finsession/internal/auth"
	"finsession/internal/core"
	"finsession/internal/log"
)

type loginRequest struct {
	Token string    `json:"token"`
	User  core.User `json:"user"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	writeResult(w, http.StatusOK, s.provider.Session(r.Context()))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" || req.User.ID == "" {
		writeError(w, http.StatusBadRequest, "token and user.id are required")
		return
	}

	ctx, cancel := s.work(r)
	defer cancel()
	if err := s.auth.SetToken(ctx, req.Token); err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			writeError(w, http.StatusUnauthorized, "Token has expired")
			return
		}
		s.logger.ErrorContext(ctx, "Failed to store token", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Failed to store session")
		return
	}
	if err := s.provider.UpdateUserData(ctx, &req.User); err != nil {
		// A token without a profile is not a session.
		if clearErr := s.auth.Clear(ctx); clearErr != nil {
			s.logger.ErrorContext(ctx, "Failed to discard token after failed login", log.FieldError, clearErr)
		}
		writeFailure(w, err)
		return
	}
	writeResult(w, http.StatusOK, s.provider.Session(ctx))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.work(r)
	defer cancel()
	if err := s.provider.UpdateUserData(ctx, nil); err != nil {
		s.logger.ErrorContext(ctx, "Logout failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Logout incomplete")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.provider.Snapshot()
	etag, err := snapshotETag(snap)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to tag snapshot", log.FieldError, err)
		writeResult(w, http.StatusOK, snap)
		return
	}
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && etagMatches(match, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeResult(w, http.StatusOK, snap)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "force must be true or false")
			return
		}
		force = parsed
	}

	ctx, cancel := s.work(r)
	defer cancel()
	s.provider.RefreshData(ctx, force)
	writeResult(w, http.StatusOK, s.provider.Snapshot())
}

func (s *Server) handleRefreshCategories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.work(r)
	defer cancel()
	s.provider.RefreshCategories(ctx)
	writeResult(w, http.StatusOK, s.provider.Snapshot())
}

func (s *Server) handleClearCategoriesCache(w http.ResponseWriter, r *http.Request) {
	s.provider.ClearCategoriesCache(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToasts(w http.ResponseWriter, _ *http.Request) {
	writeResult(w, http.StatusOK, s.toasts.Drain())
}
