package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"paperpedia/api/internal/registration"
)

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body registration.RegisterInput
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}

	result, err := s.service.deps.Registry.Register(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	response := map[string]any{
		"ok":        true,
		"time_left": result.TimeLeftMinutes(),
		"message":   "Check your email to verify your account",
	}
	if !s.service.deps.MailDelivers {
		response["devVerificationToken"] = result.Token
	}
	writeJSON(w, http.StatusAccepted, response)
}

func (s *HTTPServer) handleVerify(w http.ResponseWriter, r *http.Request) {
	user, err := s.service.deps.Registry.Verify(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "user": userPayload(user)})
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	session, err := s.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	session, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = decodeBody(r, &body)
	if err := s.service.Logout(r.Context(), body.RefreshToken); err != nil {
		s.requestLogger(r).WithError(err).Warn("revoke refresh session")
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.service.CurrentUser(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": userPayload(user)})
}
