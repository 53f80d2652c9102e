package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/hireme/internal/service"
)

type registerResponse struct {
	UserID    int64 `json:"userId"`
	EmailSent bool  `json:"emailSent"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterInput
	if !decodeOrReject(w, r, &req) {
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req)
	if err != nil {
		h.writeError(w, err, "register user")
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{UserID: userID, EmailSent: true})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

// Login выполняет аутентификацию пользователя и устанавливает cookie с токеном.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeOrReject(w, r, &req) {
		return
	}

	if req.Email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, messageResponse{
			Message: "validation failed",
			Errors:  []string{"email and password are required"},
		})
		return
	}

	u, err := h.service.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, err, "login user")
		return
	}

	token, err := h.authMiddleware.IssueToken(u.ID)
	if err != nil {
		h.writeError(w, err, "issue token", zap.Int64("userID", u.ID))
		return
	}

	h.authMiddleware.SetAuthCookie(w, token)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: newUserResponse(u)})
}

// Logout удаляет cookie авторизации.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authMiddleware.ClearAuthCookie(w)
	writeMessage(w, http.StatusOK, "logged out")
}

// VerifyEmail подтверждает почту по токену из письма.
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	if err := h.service.VerifyEmail(r.Context(), r.URL.Query().Get("token")); err != nil {
		h.writeError(w, err, "verify email")
		return
	}
	writeMessage(w, http.StatusOK, "email verified, you can now log in")
}

type emailRequest struct {
	Email string `json:"email"`
}

// ResendVerification повторно отправляет письмо подтверждения почты.
// Ответ не зависит от того, зарегистрирован ли адрес.
func (h *Handler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decodeOrReject(w, r, &req) {
		return
	}

	if err := h.service.ResendVerification(r.Context(), req.Email); err != nil {
		h.writeError(w, err, "resend verification")
		return
	}
	writeMessage(w, http.StatusOK, "if the account exists and is not verified, a new verification email has been sent")
}

// ForgotPassword ставит в очередь письмо для сброса пароля.
// Ответ не зависит от того, зарегистрирован ли адрес.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decodeOrReject(w, r, &req) {
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		h.writeError(w, err, "forgot password")
		return
	}
	writeMessage(w, http.StatusOK, "if an account with that email exists, a password reset link has been sent")
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ResetPassword устанавливает новый пароль по токену сброса.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeOrReject(w, r, &req) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		h.writeError(w, err, "reset password")
		return
	}
	writeMessage(w, http.StatusOK, "password has been reset")
}

// GetProfile возвращает профиль текущего пользователя.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	u, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "get profile", zap.Int64("userID", userID))
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(u))
}

// UpdateProfile изменяет имя, телефон и город текущего пользователя.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req service.ProfileInput
	if !decodeOrReject(w, r, &req) {
		return
	}

	u, err := h.service.UpdateProfile(r.Context(), userID, req)
	if err != nil {
		h.writeError(w, err, "update profile", zap.Int64("userID", userID))
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(u))
}
