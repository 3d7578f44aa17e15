package app

import (
	"errors"
	"net/http"
	"strings"

	"cryptorafts/api/internal/authpw"
)

// decodeAuthBody decodes body and resolves the password service, writing the
// error response itself when either step fails.
func (s *HTTPServer) decodeAuthBody(w http.ResponseWriter, r *http.Request, body any) (*authpw.Service, bool) {
	authSvc := s.service.AuthPasswordService()
	if authSvc == nil {
		writeError(w, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
		return nil, false
	}
	if err := decodeBody(r, body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return nil, false
	}
	return authSvc, true
}

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
		Role        string `json:"role"`
	}
	authSvc, ok := s.decodeAuthBody(w, r, &body)
	if !ok {
		return
	}

	resp, err := authSvc.SignUp(r.Context(), authpw.SignUpRequest{
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
		Role:        body.Role,
	})
	switch {
	case errors.Is(err, authpw.ErrEmailExists):
		writeError(w, http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, "SIGNUP_FAILED", err.Error(), nil)
		return
	}
	s.service.log.Info("account created", "user", resp.UserID, "request_id", requestID(r.Context()))
	s.service.mailVerification(strings.ToLower(strings.TrimSpace(body.Email)), strings.TrimSpace(body.DisplayName), resp.VerificationToken)

	response := map[string]any{
		"userId":  resp.UserID,
		"message": "Please check your email to verify your account",
	}
	// Without outbound email the token goes back to the caller for local use.
	if !s.service.EmailConfigured() {
		response["devVerificationToken"] = resp.VerificationToken
		response["message"] = "Account created. Verify your email to continue."
	}
	writeJSON(w, http.StatusCreated, response)
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	authSvc, ok := s.decodeAuthBody(w, r, &body)
	if !ok {
		return
	}

	resp, err := authSvc.SignIn(r.Context(), authpw.SignInRequest{Email: body.Email, Password: body.Password})
	switch {
	case err != nil:
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
		return
	case resp.RequiresVerify:
		writeError(w, http.StatusForbidden, "EMAIL_NOT_VERIFIED", "Please verify your email before signing in", nil)
		return
	case resp.User.DeactivatedAt != nil:
		writeError(w, http.StatusForbidden, "ACCOUNT_DEACTIVATED", "Account is deactivated", nil)
		return
	}

	session, err := s.service.CreateSession(r.Context(), resp.User.ID)
	if err != nil {
		s.service.log.Error("create session failed", "user", resp.User.ID, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "SESSION_FAILED", "Failed to create session", nil)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleAuthVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	authSvc, ok := s.decodeAuthBody(w, r, &body)
	if !ok {
		return
	}
	if err := authSvc.VerifyEmail(r.Context(), body.Token); err != nil {
		writeError(w, http.StatusBadRequest, "VERIFICATION_FAILED", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Email verified successfully"})
}

// handleAuthResendVerification answers the same way whether or not the
// account exists.
func (s *HTTPServer) handleAuthResendVerification(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	authSvc, ok := s.decodeAuthBody(w, r, &body)
	if !ok {
		return
	}
	token, user, err := authSvc.ResendVerification(r.Context(), body.Email)
	if err != nil {
		s.service.log.Warn("resend verification failed", "error", err.Error())
	}
	if token != "" {
		s.service.mailVerification(user.Email, user.DisplayName, token)
	}
	response := map[string]any{"message": "If the account needs verification, an email has been sent"}
	if !s.service.EmailConfigured() && token != "" {
		response["devVerificationToken"] = token
	}
	writeJSON(w, http.StatusOK, response)
}

// handleAuthRequestReset answers the same way whether or not the account
// exists.
func (s *HTTPServer) handleAuthRequestReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	authSvc, ok := s.decodeAuthBody(w, r, &body)
	if !ok {
		return
	}

	token, err := authSvc.RequestPasswordReset(r.Context(), body.Email)
	if err != nil {
		s.service.log.Warn("password reset request failed", "error", err.Error())
	}
	if token != "" {
		s.service.mailPasswordReset(strings.ToLower(strings.TrimSpace(body.Email)), token)
	}

	response := map[string]any{"message": "If an account exists, a reset email has been sent"}
	if !s.service.EmailConfigured() && token != "" {
		response["devResetToken"] = token
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleAuthResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	authSvc, ok := s.decodeAuthBody(w, r, &body)
	if !ok {
		return
	}
	userID, err := authSvc.ResetPassword(r.Context(), authpw.ResetPasswordRequest{Token: body.Token, NewPassword: body.NewPassword})
	if err != nil {
		writeError(w, http.StatusBadRequest, "RESET_FAILED", err.Error(), nil)
		return
	}
	if err := s.service.RevokeUserSessions(r.Context(), userID); err != nil {
		s.service.log.Warn("revoke sessions after reset failed", "user", userID, "error", err.Error())
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password reset successfully"})
}

func (s *HTTPServer) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	anonymous := map[string]any{"authenticated": false, "userName": nil}
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusOK, anonymous)
		return
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		writeJSON(w, http.StatusOK, anonymous)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"userName":      session.UserName,
		"userId":        session.UserID,
		"role":          session.Role,
	})
}

// handleSessionRefresh rotates the refresh token; a reused token is rejected.
func (s *HTTPServer) handleSessionRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

// handleSessionLogout always succeeds. It revokes whatever it can identify.
func (s *HTTPServer) handleSessionLogout(w http.ResponseWriter, r *http.Request) {
	var session Session
	if token := bearerToken(r); token != "" {
		if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
			session = parsed
		}
	}
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = decodeBody(r, &body)
	if err := s.service.Logout(r.Context(), session, body.RefreshToken); err != nil {
		s.service.log.Warn("logout failed", "user", session.UserID, "error", err.Error())
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"accessToken":  session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"userName":     session.UserName,
		"role":         session.Role,
		"expiresAt":    session.ExpiresAt.Unix(),
	}
}
