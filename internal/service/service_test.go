package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/hireme/internal/model"
	"github.com/mmeshcher/hireme/internal/mpesa"
	"github.com/mmeshcher/hireme/internal/notify"
)

type stubProvider struct {
	mu        sync.Mutex
	pushCalls int
	lastPhone string
	lastAmt   int64

	pushErr   error
	checkout  string
	queryCode string
	queryErr  error
}

func (p *stubProvider) RequestPayment(_ context.Context, phone string, amount int64, reference, _ string) (*mpesa.STKPushResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pushCalls++
	p.lastPhone = phone
	p.lastAmt = amount
	if p.pushErr != nil {
		return nil, p.pushErr
	}

	id := p.checkout
	if id == "" {
		id = "ws_CO_" + reference
	}
	return &mpesa.STKPushResponse{
		MerchantRequestID: "m-" + reference,
		CheckoutRequestID: id,
		ResponseCode:      "0",
		CustomerMessage:   "Success. Request accepted for processing",
	}, nil
}

func (p *stubProvider) QueryPayment(_ context.Context, checkoutRequestID string) (*mpesa.QueryResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.queryErr != nil {
		return nil, p.queryErr
	}
	return &mpesa.QueryResponse{
		CheckoutRequestID: checkoutRequestID,
		ResultCode:        p.queryCode,
		ResultDesc:        "desc " + p.queryCode,
	}, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc      *Service
	repo     *memRepo
	provider *stubProvider
	clock    *testClock
	tokens   atomic.Int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repo:     newMemRepo(),
		provider: &stubProvider{},
		clock:    &testClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)},
	}
	f.svc = NewService(f.repo, f.provider, notify.NewComposer("https://hire-me.co.ke"), model.DefaultLockoutPolicy)
	f.svc.now = f.clock.Now
	f.svc.newToken = func() (string, error) {
		return fmt.Sprintf("tok-%d", f.tokens.Add(1)), nil
	}
	return f
}

// lastToken возвращает последний выданный токен.
func (f *fixture) lastToken() string {
	return fmt.Sprintf("tok-%d", f.tokens.Load())
}

func (f *fixture) addVerifiedUser(t *testing.T, email, password string) int64 {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	return f.repo.addUser(model.User{
		Name:          "Test User",
		Email:         email,
		PasswordHash:  string(hash),
		Phone:         "254712345678",
		EmailVerified: true,
	})
}

func validCheckout() CheckoutInput {
	return CheckoutInput{
		PaymentMethod:   "mpesa",
		ShippingAddress: "Kenyatta Avenue 12, Nairobi",
		ContactPhone:    "0712345678",
		ContactEmail:    "buyer@example.com",
	}
}

// placeOrder создаёт пользователя с заказом из одной позиции стоимостью priceCents.
func (f *fixture) placeOrder(t *testing.T, email string, priceCents int64) (int64, *model.Order) {
	t.Helper()

	userID := f.addVerifiedUser(t, email, "secret123")
	productID := f.repo.addProduct("Generator 10kVA", priceCents, true)
	require.NoError(t, f.svc.AddToCart(context.Background(), userID, []model.CartAddition{{ProductID: productID, Quantity: 1}}))

	o, created, err := f.svc.CreateOrder(context.Background(), userID, validCheckout(), "")
	require.NoError(t, err)
	require.True(t, created)
	return userID, o
}
