package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/hireme/internal/metrics"
	"github.com/mmeshcher/hireme/internal/model"
	"github.com/mmeshcher/hireme/internal/repository"
	"github.com/mmeshcher/hireme/internal/validation"
)

// RegisterInput — данные регистрации пользователя.
type RegisterInput struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,password"`
	Phone    string `json:"phone" validate:"required,kephone"`
	Location string `json:"location" validate:"required"`
}

// ProfileInput — изменяемые поля профиля.
type ProfileInput struct {
	Name     string `json:"name" validate:"required,max=100"`
	Phone    string `json:"phone" validate:"required,kephone"`
	Location string `json:"location" validate:"required"`
}

var (
	dummyHashOnce sync.Once
	dummyHashVal  []byte
)

// dummyHash — bcrypt-хеш той же стоимости, что и у паролей пользователей.
// Проверка по нему выравнивает время ответа для неизвестного email.
func dummyHash() []byte {
	dummyHashOnce.Do(func() {
		dummyHashVal, _ = bcrypt.GenerateFromPassword([]byte("hire-me/unknown-user"), bcrypt.DefaultCost)
	})
	return dummyHashVal
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RegisterUser регистрирует пользователя и ставит в очередь письмо для подтверждения почты.
func (s *Service) RegisterUser(ctx context.Context, in RegisterInput) (int64, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	in.Location = strings.TrimSpace(in.Location)

	if errs := validation.Struct(in); len(errs) > 0 {
		return 0, invalid(errs...)
	}
	phone, _ := validation.NormalizePhone(in.Phone)

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	raw, err := s.newToken()
	if err != nil {
		return 0, fmt.Errorf("generate token: %w", err)
	}

	u := &model.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hash),
		Phone:        phone,
		Location:     in.Location,
	}
	token := &model.AuthToken{
		Purpose:   model.TokenPurposeEmailVerification,
		TokenHash: hashToken(raw),
		ExpiresAt: s.now().Add(verificationTokenTTL),
	}

	id, err := s.repo.CreateUser(ctx, u, token, s.mail.Verification(u, raw))
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return 0, ErrConflict
		}
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет email и пароль. Заблокированный аккаунт
// отклоняется без проверки пароля; неверный пароль увеличивает счётчик
// неудачных попыток, успешный вход сбрасывает его.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.repo.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
			metrics.LoginAttemptsTotal.WithLabelValues("invalid").Inc()
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	now := s.now()
	if u.IsLocked(now) {
		metrics.LoginAttemptsTotal.WithLabelValues("locked").Inc()
		return nil, &LockedError{Until: *u.LockedUntil, Remaining: u.LockedUntil.Sub(now)}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		updated, err := s.repo.RegisterFailedLogin(ctx, u.ID, s.lockout, now)
		if err != nil {
			return nil, err
		}
		if updated.IsLocked(now) {
			metrics.LoginAttemptsTotal.WithLabelValues("locked").Inc()
			return nil, &LockedError{Until: *updated.LockedUntil, Remaining: updated.LockedUntil.Sub(now)}
		}
		metrics.LoginAttemptsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidCredentials
	}

	if !u.EmailVerified {
		metrics.LoginAttemptsTotal.WithLabelValues("unverified").Inc()
		return nil, ErrEmailNotVerified
	}

	if u.LoginAttempts > 0 || u.LockedUntil != nil {
		if err := s.repo.ResetLoginAttempts(ctx, u.ID); err != nil {
			return nil, err
		}
		u.LoginAttempts = 0
		u.LockedUntil = nil
	}

	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	return u, nil
}

// VerifyEmail использует токен подтверждения почты.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return ErrInvalidOrExpiredToken
	}

	if _, err := s.repo.ConsumeVerificationToken(ctx, hashToken(token), s.now()); err != nil {
		if errors.Is(err, repository.ErrTokenInvalid) {
			return ErrInvalidOrExpiredToken
		}
		return err
	}
	return nil
}

// ResendVerification выдаёт новый токен подтверждения, если аккаунт
// существует и почта ещё не подтверждена. Для остальных адресов ничего не делает.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	u, err := s.repo.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return err
	}
	if u.EmailVerified {
		return nil
	}

	return s.issueToken(ctx, u, model.TokenPurposeEmailVerification, verificationTokenTTL)
}

// ForgotPassword выдаёт токен сброса пароля, если аккаунт существует.
// Результат не зависит от того, зарегистрирован ли адрес.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	u, err := s.repo.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return err
	}

	return s.issueToken(ctx, u, model.TokenPurposePasswordReset, resetTokenTTL)
}

func (s *Service) issueToken(ctx context.Context, u *model.User, purpose model.TokenPurpose, ttl time.Duration) error {
	raw, err := s.newToken()
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}

	var n *model.Notification
	if purpose == model.TokenPurposePasswordReset {
		n = s.mail.PasswordReset(u, raw)
	} else {
		n = s.mail.Verification(u, raw)
	}

	return s.repo.IssueToken(ctx, &model.AuthToken{
		UserID:    u.ID,
		Purpose:   purpose,
		TokenHash: hashToken(raw),
		ExpiresAt: s.now().Add(ttl),
	}, n)
}

// ResetPassword использует токен сброса и устанавливает новый пароль.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	if !validation.IsStrongPassword(password) {
		return invalid("password must be at least 8 characters and contain a letter and a digit")
	}
	if strings.TrimSpace(token) == "" {
		return ErrInvalidOrExpiredToken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if _, err := s.repo.ConsumeResetToken(ctx, hashToken(token), string(hash), s.now()); err != nil {
		if errors.Is(err, repository.ErrTokenInvalid) {
			return ErrInvalidOrExpiredToken
		}
		return err
	}
	return nil
}

// GetProfile возвращает данные пользователя.
func (s *Service) GetProfile(ctx context.Context, userID int64) (*model.User, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

// UpdateProfile изменяет имя, телефон и город пользователя.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, in ProfileInput) (*model.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Location = strings.TrimSpace(in.Location)

	if errs := validation.Struct(in); len(errs) > 0 {
		return nil, invalid(errs...)
	}
	phone, _ := validation.NormalizePhone(in.Phone)

	u, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.Name = in.Name
	u.Phone = phone
	u.Location = in.Location

	if err := s.repo.UpdateProfile(ctx, u); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}
