package app

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"relay/internal/auth/password"
	"relay/internal/ids"
	"relay/internal/store"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

type verifyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func toUserResponse(u store.User) userResponse {
	resp := userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
	if !u.LastLogin.IsZero() {
		last := u.LastLogin
		resp.LastLogin = &last
	}
	return resp
}

func (a *App) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, 16<<10, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid register payload")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if len(req.Username) < 3 {
		writeError(w, http.StatusBadRequest, "bad_request", "Username must be at least 3 characters")
		return
	}
	if len(req.Password) < 6 {
		writeError(w, http.StatusBadRequest, "bad_request", "Password must be at least 6 characters")
		return
	}
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid email")
		return
	}

	hash, err := password.Hash(req.Password, password.DefaultParams())
	if err != nil {
		a.log.Error("auth.register.hash.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to register")
		return
	}

	token, err := ids.NewToken(32)
	if err != nil {
		a.log.Error("auth.register.token.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to register")
		return
	}

	now := time.Now().UTC()
	id, err := ids.NewULID(now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "failed to register")
		return
	}

	user, err := a.store.CreateUser(r.Context(), store.User{
		ID:                id,
		Username:          req.Username,
		Email:             req.Email,
		PasswordHash:      hash,
		CreatedAt:         now,
		EmailConfirmed:    false,
		VerificationToken: token,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusBadRequest, "conflict", "Username or email already exists")
			return
		}
		a.log.Error("auth.register.create.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to register")
		return
	}

	a.identities.Put(user)
	a.log.Info("auth.registered", "user_id", user.ID, "username", user.Username)

	// Verification email delivery is owned by an external collaborator
	// watching the user store; nothing to send from here.
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, 16<<10, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid login payload")
		return
	}

	user, err := a.store.UserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid email or password")
			return
		}
		a.log.Error("auth.login.lookup.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to log in")
		return
	}

	ok, err := password.Verify(user.PasswordHash, req.Password)
	if err != nil || !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid email or password")
		return
	}

	if !user.EmailConfirmed {
		writeError(w, http.StatusForbidden, "email_unverified", "Email not verified. Please check your inbox for verification email.")
		return
	}

	if _, err := a.store.UpdateLastLogin(r.Context(), user.ID); err != nil {
		a.log.Warn("auth.login.last_login.fail", "user_id", user.ID, "err", err)
	}
	user.LastLogin = time.Now().UTC()

	a.identities.Put(user)
	a.log.Info("auth.login", "user_id", user.ID, "username", user.Username)

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (a *App) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	res, err := a.store.VerifyEmailToken(r.Context(), token)
	if err != nil {
		a.log.Error("auth.verify.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to verify email")
		return
	}

	if !res.Success {
		writeJSON(w, http.StatusOK, verifyResponse{Success: false, Message: "Invalid or expired verification token"})
		return
	}

	a.log.Info("auth.verified", "user_id", res.UserID, "email", res.Email)
	writeJSON(w, http.StatusOK, verifyResponse{Success: true, Message: "Email verified successfully"})
}
