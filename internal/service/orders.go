package service

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/hireme/internal/metrics"
	"github.com/mmeshcher/hireme/internal/model"
	"github.com/mmeshcher/hireme/internal/repository"
	"github.com/mmeshcher/hireme/internal/validation"
)

// CheckoutInput — данные оформления заказа.
type CheckoutInput struct {
	PaymentMethod   string `json:"paymentMethod" validate:"required,oneof=mpesa cash_on_delivery"`
	ShippingAddress string `json:"shippingAddress" validate:"required,max=500"`
	ContactPhone    string `json:"contactPhone" validate:"required"`
	ContactEmail    string `json:"contactEmail" validate:"required,email"`
	OrderNotes      string `json:"orderNotes" validate:"max=2000"`
}

// generateOrderNumber формирует номер заказа вида ORD-<yyyymmddhhmmss>-<12 hex>.
func generateOrderNumber(now time.Time) string {
	id := uuid.New()
	return "ORD-" + now.UTC().Format("20060102150405") + "-" + hex.EncodeToString(id[:6])
}

// CreateOrder оформляет заказ из корзины пользователя. При повторе запроса с тем же
// ключом идемпотентности возвращается ранее созданный заказ, а второй результат равен false.
func (s *Service) CreateOrder(ctx context.Context, userID int64, in CheckoutInput, idempotencyKey string) (*model.Order, bool, error) {
	in.ShippingAddress = strings.TrimSpace(in.ShippingAddress)
	in.ContactPhone = strings.TrimSpace(in.ContactPhone)
	in.ContactEmail = normalizeEmail(in.ContactEmail)
	in.OrderNotes = strings.TrimSpace(in.OrderNotes)

	if errs := validation.Struct(in); len(errs) > 0 {
		return nil, false, invalid(errs...)
	}
	if len(idempotencyKey) > 255 {
		return nil, false, invalid("Idempotency-Key must be at most 255 characters")
	}

	draft := model.OrderDraft{
		UserID:          userID,
		PaymentMethod:   model.PaymentMethod(in.PaymentMethod),
		ShippingAddress: in.ShippingAddress,
		ContactPhone:    in.ContactPhone,
		ContactEmail:    in.ContactEmail,
		Notes:           in.OrderNotes,
		IdempotencyKey:  strings.TrimSpace(idempotencyKey),
	}

	var err error
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		draft.Number = s.orderNumber(s.now())

		var (
			order   *model.Order
			created bool
		)
		order, created, err = s.repo.CreateOrderFromCart(ctx, draft, s.mail.OrderConfirmation)
		switch {
		case err == nil:
			if created {
				metrics.OrdersCreatedTotal.WithLabelValues(string(order.PaymentMethod)).Inc()
			}
			return order, created, nil
		case errors.Is(err, repository.ErrOrderNumberTaken):
			continue
		case errors.Is(err, repository.ErrEmptyCart):
			return nil, false, ErrEmptyCart
		case errors.Is(err, repository.ErrUserNotFound):
			return nil, false, ErrNotFound
		default:
			return nil, false, err
		}
	}

	return nil, false, err
}

// GetOrders возвращает заказы пользователя, новые первыми.
func (s *Service) GetOrders(ctx context.Context, userID int64) ([]model.Order, error) {
	return s.repo.GetOrdersByUser(ctx, userID)
}

// GetOrder возвращает заказ пользователя с позициями. Чужой заказ не отличается от отсутствующего.
func (s *Service) GetOrder(ctx context.Context, userID, orderID int64) (*model.Order, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

// CancelOrder отменяет заказ пользователя, пока он в статусе pending.
func (s *Service) CancelOrder(ctx context.Context, userID, orderID int64) (*model.Order, error) {
	o, err := s.GetOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != model.OrderStatusPending {
		return nil, ErrOrderNotPending
	}

	if err := s.repo.TransitionOrderStatus(ctx, o.ID, model.OrderStatusPending, model.OrderStatusCancelled); err != nil {
		switch {
		case errors.Is(err, repository.ErrStatusConflict):
			return nil, ErrOrderNotPending
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrNotFound
		}
		return nil, err
	}

	o.Status = model.OrderStatusCancelled
	return o, nil
}

// UpdateOrderStatus продвигает заказ по таблице статусов выполнения.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID int64, status string) (*model.Order, error) {
	next := model.OrderStatus(strings.TrimSpace(status))
	if !next.Valid() {
		return nil, invalid("status must be one of: pending confirmed processing shipped delivered cancelled")
	}

	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := s.repo.TransitionOrderStatus(ctx, o.ID, o.Status, next); err != nil {
		switch {
		case errors.Is(err, repository.ErrInvalidTransition):
			return nil, ErrInvalidTransition
		case errors.Is(err, repository.ErrStatusConflict):
			return nil, ErrStatusConflict
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrNotFound
		}
		return nil, err
	}

	o.Status = next
	return o, nil
}
