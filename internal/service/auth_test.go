package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/hireme/internal/notify"
)

func validRegistration() RegisterInput {
	return RegisterInput{
		Name:     "Achieng Otieno",
		Email:    " Achieng@Example.com ",
		Password: "rental2026",
		Phone:    "0712 345 678",
		Location: "Kisumu",
	}
}

func TestRegisterUser(t *testing.T) {
	f := newFixture(t)

	id, err := f.svc.RegisterUser(context.Background(), validRegistration())
	require.NoError(t, err)

	u := f.repo.user(id)
	assert.Equal(t, "achieng@example.com", u.Email)
	assert.Equal(t, "254712345678", u.Phone)
	assert.False(t, u.EmailVerified)
	assert.NotEqual(t, "rental2026", u.PasswordHash)

	mails := f.repo.notifications(notify.KindEmailVerification)
	require.Len(t, mails, 1)
	assert.Equal(t, "achieng@example.com", mails[0].Recipient)
	assert.Contains(t, mails[0].Body, f.lastToken())
}

func TestRegisterUser_Validation(t *testing.T) {
	f := newFixture(t)

	in := validRegistration()
	in.Email = "not-an-email"
	in.Password = "short"
	in.Phone = "12345"

	_, err := f.svc.RegisterUser(context.Background(), in)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Len(t, verr.Errors, 3)
}

func TestRegisterUser_Duplicate(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RegisterUser(context.Background(), validRegistration())
	require.NoError(t, err)

	_, err = f.svc.RegisterUser(context.Background(), validRegistration())
	assert.ErrorIs(t, err, ErrConflict)
}

func TestVerifyEmail_SingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.svc.RegisterUser(ctx, validRegistration())
	require.NoError(t, err)

	require.NoError(t, f.svc.VerifyEmail(ctx, f.lastToken()))
	assert.True(t, f.repo.user(id).EmailVerified)

	assert.ErrorIs(t, f.svc.VerifyEmail(ctx, f.lastToken()), ErrInvalidOrExpiredToken)
	assert.ErrorIs(t, f.svc.VerifyEmail(ctx, ""), ErrInvalidOrExpiredToken)
}

func TestVerifyEmail_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RegisterUser(ctx, validRegistration())
	require.NoError(t, err)

	f.clock.Advance(24*time.Hour + time.Second)
	assert.ErrorIs(t, f.svc.VerifyEmail(ctx, f.lastToken()), ErrInvalidOrExpiredToken)
}

func TestVerifyEmail_ConcurrentUseSucceedsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RegisterUser(ctx, validRegistration())
	require.NoError(t, err)
	token := f.lastToken()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.svc.VerifyEmail(ctx, token)
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrInvalidOrExpiredToken) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
}

func TestResendVerification_LatestWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RegisterUser(ctx, validRegistration())
	require.NoError(t, err)
	first := f.lastToken()

	require.NoError(t, f.svc.ResendVerification(ctx, "achieng@example.com"))
	second := f.lastToken()

	assert.ErrorIs(t, f.svc.VerifyEmail(ctx, first), ErrInvalidOrExpiredToken)
	assert.NoError(t, f.svc.VerifyEmail(ctx, second))

	// Для подтверждённой почты и неизвестного адреса новые письма не отправляются.
	require.NoError(t, f.svc.ResendVerification(ctx, "achieng@example.com"))
	require.NoError(t, f.svc.ResendVerification(ctx, "nobody@example.com"))
	assert.Len(t, f.repo.notifications(notify.KindEmailVerification), 2)
}

func TestAuthenticateUser(t *testing.T) {
	f := newFixture(t)
	f.addVerifiedUser(t, "wanjiru@example.com", "secret123")

	u, err := f.svc.AuthenticateUser(context.Background(), "Wanjiru@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "wanjiru@example.com", u.Email)

	_, err = f.svc.AuthenticateUser(context.Background(), "nobody@example.com", "secret123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestDummyHash_MatchesPasswordCost(t *testing.T) {
	cost, err := bcrypt.Cost(dummyHash())
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)

	assert.ErrorIs(t, bcrypt.CompareHashAndPassword(dummyHash(), []byte("secret123")), bcrypt.ErrMismatchedHashAndPassword)
}

func TestAuthenticateUser_UnverifiedEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RegisterUser(ctx, validRegistration())
	require.NoError(t, err)

	_, err = f.svc.AuthenticateUser(ctx, "achieng@example.com", "rental2026")
	assert.ErrorIs(t, err, ErrEmailNotVerified)
}

func TestAuthenticateUser_Lockout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.addVerifiedUser(t, "kamau@example.com", "secret123")

	for i := 0; i < 2; i++ {
		_, err := f.svc.AuthenticateUser(ctx, "kamau@example.com", "wrong-pass1")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err := f.svc.AuthenticateUser(ctx, "kamau@example.com", "wrong-pass1")
	var locked *LockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, 15*time.Minute, locked.Remaining)
	assert.Equal(t, 15, locked.RemainingMinutes())

	// Во время блокировки пароль не проверяется и попытка не учитывается.
	_, err = f.svc.AuthenticateUser(ctx, "kamau@example.com", "secret123")
	assert.ErrorIs(t, err, ErrAccountLocked)
	assert.Equal(t, 3, f.repo.user(id).LoginAttempts)

	f.clock.Advance(15 * time.Minute)
	_, err = f.svc.AuthenticateUser(ctx, "kamau@example.com", "wrong-pass1")
	assert.ErrorIs(t, err, ErrAccountLocked)

	f.clock.Advance(15 * time.Minute)
	_, err = f.svc.AuthenticateUser(ctx, "kamau@example.com", "wrong-pass1")
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, time.Hour, locked.Remaining)
	assert.Equal(t, 5, f.repo.user(id).LoginAttempts)

	f.clock.Advance(time.Hour)
	_, err = f.svc.AuthenticateUser(ctx, "kamau@example.com", "secret123")
	require.NoError(t, err)

	u := f.repo.user(id)
	assert.Equal(t, 0, u.LoginAttempts)
	assert.Nil(t, u.LockedUntil)
}

func TestPasswordReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.addVerifiedUser(t, "njeri@example.com", "secret123")

	require.NoError(t, f.svc.ForgotPassword(ctx, "nobody@example.com"))
	assert.Empty(t, f.repo.notifications(notify.KindPasswordReset))

	require.NoError(t, f.svc.ForgotPassword(ctx, "njeri@example.com"))
	first := f.lastToken()
	require.NoError(t, f.svc.ForgotPassword(ctx, "njeri@example.com"))
	second := f.lastToken()
	assert.Len(t, f.repo.notifications(notify.KindPasswordReset), 2)

	assert.ErrorIs(t, f.svc.ResetPassword(ctx, second, "weak"), ErrValidation)
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, first, "newsecret9"), ErrInvalidOrExpiredToken)
	require.NoError(t, f.svc.ResetPassword(ctx, second, "newsecret9"))
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, second, "another99"), ErrInvalidOrExpiredToken)

	_, err := f.svc.AuthenticateUser(ctx, "njeri@example.com", "newsecret9")
	require.NoError(t, err)
	assert.Equal(t, 0, f.repo.user(id).LoginAttempts)
}

func TestPasswordReset_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addVerifiedUser(t, "otieno@example.com", "secret123")

	require.NoError(t, f.svc.ForgotPassword(ctx, "otieno@example.com"))
	f.clock.Advance(time.Hour)

	assert.ErrorIs(t, f.svc.ResetPassword(ctx, f.lastToken(), "newsecret9"), ErrInvalidOrExpiredToken)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.addVerifiedUser(t, "mwangi@example.com", "secret123")

	u, err := f.svc.UpdateProfile(ctx, id, ProfileInput{Name: "Mwangi K", Phone: "+254 111 222 333", Location: "Nyeri"})
	require.NoError(t, err)
	assert.Equal(t, "254111222333", u.Phone)
	assert.Equal(t, "Nyeri", f.repo.user(id).Location)

	_, err = f.svc.UpdateProfile(ctx, id, ProfileInput{Name: "", Phone: "1", Location: ""})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.GetProfile(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}
