// Package service реализует бизнес-логику сервиса проката оборудования.
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/mmeshcher/hireme/internal/model"
	"github.com/mmeshcher/hireme/internal/mpesa"
	"github.com/mmeshcher/hireme/internal/notify"
	"github.com/mmeshcher/hireme/internal/repository"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, u *model.User, token *model.AuthToken, n *model.Notification) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	RegisterFailedLogin(ctx context.Context, userID int64, policy model.LockoutPolicy, now time.Time) (*model.User, error)
	ResetLoginAttempts(ctx context.Context, userID int64) error
	UpdateProfile(ctx context.Context, u *model.User) error

	IssueToken(ctx context.Context, t *model.AuthToken, n *model.Notification) error
	ConsumeVerificationToken(ctx context.Context, hash string, now time.Time) (int64, error)
	ConsumeResetToken(ctx context.Context, hash, passwordHash string, now time.Time) (int64, error)

	ListProducts(ctx context.Context, f model.ProductFilter) ([]model.Product, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	CreateProduct(ctx context.Context, p *model.Product) (int64, error)
	GetFilterOptions(ctx context.Context) (*model.FilterOptions, error)
	SearchSuggestions(ctx context.Context, q string, limit int) ([]string, error)

	AddCartItems(ctx context.Context, userID int64, items []model.CartAddition) error
	GetCart(ctx context.Context, userID int64) ([]model.CartLine, error)
	RemoveCartItem(ctx context.Context, userID, itemID int64) error

	CreateOrderFromCart(ctx context.Context, d model.OrderDraft, compose repository.NotificationComposer) (*model.Order, bool, error)
	GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	TransitionOrderStatus(ctx context.Context, id int64, from, to model.OrderStatus) error

	SetPaymentReference(ctx context.Context, orderID int64, checkoutID string) error
	GetOrderByCheckoutID(ctx context.Context, userID int64, checkoutID string) (*model.Order, error)
	ApplyPaymentResult(ctx context.Context, res model.PaymentResult, compose repository.NotificationComposer) (bool, error)

	CreateContact(ctx context.Context, m *model.ContactMessage) error
}

// PaymentProvider описывает платёжного провайдера STK push.
type PaymentProvider interface {
	RequestPayment(ctx context.Context, phone string, amount int64, reference, description string) (*mpesa.STKPushResponse, error)
	QueryPayment(ctx context.Context, checkoutRequestID string) (*mpesa.QueryResponse, error)
}

const (
	verificationTokenTTL = 24 * time.Hour
	resetTokenTTL        = time.Hour
	amountTolerance      = 0.01
	orderNumberAttempts  = 3
	suggestionsLimit     = 10
)

// Service содержит бизнес-логику сервиса проката.
type Service struct {
	repo     Repository
	payments PaymentProvider
	mail     *notify.Composer
	lockout  model.LockoutPolicy

	now         func() time.Time
	newToken    func() (string, error)
	orderNumber func(time.Time) string
}

// NewService создаёт сервис с указанным репозиторием, платёжным провайдером и
// генератором писем.
func NewService(repo Repository, payments PaymentProvider, mail *notify.Composer, lockout model.LockoutPolicy) *Service {
	return &Service{
		repo:        repo,
		payments:    payments,
		mail:        mail,
		lockout:     lockout,
		now:         time.Now,
		newToken:    generateToken,
		orderNumber: generateOrderNumber,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
