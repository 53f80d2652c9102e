package service

import (
	"context"
	"errors"
	"strings"

	"github.com/mmeshcher/hireme/internal/metrics"
	"github.com/mmeshcher/hireme/internal/model"
	"github.com/mmeshcher/hireme/internal/mpesa"
	"github.com/mmeshcher/hireme/internal/repository"
	"github.com/mmeshcher/hireme/internal/validation"
)

// PaymentInput — запрос оплаты заказа через M-Pesa.
type PaymentInput struct {
	PhoneNumber string  `json:"phoneNumber" validate:"required"`
	Amount      float64 `json:"amount" validate:"gt=0"`
	OrderID     int64   `json:"orderId" validate:"required,gt=0"`
}

// PaymentInitiation — результат отправки STK push.
type PaymentInitiation struct {
	CheckoutRequestID string
	MerchantRequestID string
	CustomerMessage   string
}

// PaymentStatusResult — текущий статус платежа по результату опроса.
type PaymentStatusResult struct {
	Status     model.PaymentStatus
	ResultCode string
	ResultDesc string
}

func providerError(err error) error {
	var pe *mpesa.ProviderError
	switch {
	case errors.As(err, &pe):
		return &ProviderError{Message: pe.Message, Err: err}
	case errors.Is(err, mpesa.ErrNotConfigured):
		return &ProviderError{Message: "payment provider is not configured", Err: err}
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout"):
		return &ProviderError{Message: "payment provider timed out, please try again", Err: err}
	default:
		return &ProviderError{Message: "payment provider is unavailable, please try again", Err: err}
	}
}

// InitiatePayment отправляет STK push на телефон клиента для оплаты его заказа.
// При сбое провайдера заказ не меняется и запрос можно безопасно повторить.
func (s *Service) InitiatePayment(ctx context.Context, userID int64, in PaymentInput) (*PaymentInitiation, error) {
	if errs := validation.Struct(in); len(errs) > 0 {
		return nil, invalid(errs...)
	}

	o, err := s.GetOrder(ctx, userID, in.OrderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus != model.PaymentStatusPending || o.Status == model.OrderStatusCancelled {
		return nil, ErrPaymentNotPending
	}
	if !model.AmountMatches(in.Amount, o.TotalAmount, amountTolerance) {
		return nil, ErrAmountMismatch
	}

	phone, ok := validation.NormalizePhone(in.PhoneNumber)
	if !ok {
		return nil, ErrInvalidPhone
	}

	if s.payments == nil {
		metrics.STKPushTotal.WithLabelValues("error").Inc()
		return nil, providerError(mpesa.ErrNotConfigured)
	}

	resp, err := s.payments.RequestPayment(ctx, phone, model.WholeUnits(o.TotalAmount), o.Number, "Payment for order "+o.Number)
	if err != nil {
		metrics.STKPushTotal.WithLabelValues("error").Inc()
		return nil, providerError(err)
	}
	metrics.STKPushTotal.WithLabelValues("accepted").Inc()

	if err := s.repo.SetPaymentReference(ctx, o.ID, resp.CheckoutRequestID); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, ErrPaymentNotPending
		}
		return nil, err
	}

	return &PaymentInitiation{
		CheckoutRequestID: resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		CustomerMessage:   resp.CustomerMessage,
	}, nil
}

// HandleCallback применяет результат платежа из webhook-запроса провайдера.
// Второй результат равен true, если статус оплаты заказа изменился.
// ErrNotFound означает, что заказа с таким идентификатором платежа нет.
func (s *Service) HandleCallback(ctx context.Context, cb mpesa.Callback) (model.PaymentResult, bool, error) {
	res := cb.Result()
	if strings.TrimSpace(res.CheckoutRequestID) == "" {
		return res, false, invalid("CheckoutRequestID is required")
	}

	applied, err := s.repo.ApplyPaymentResult(ctx, res, s.mail.PaymentConfirmation)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return res, false, ErrNotFound
		}
		return res, false, err
	}

	if applied {
		metrics.PaymentUpdatesTotal.WithLabelValues("callback", string(res.Status)).Inc()
	}
	return res, applied, nil
}

// PollPayment запрашивает у провайдера статус платежа по заказу пользователя.
// Сохраняется только успешная оплата; для заказа в терминальном статусе
// оплаты возвращается сохранённый статус без обращения к провайдеру.
func (s *Service) PollPayment(ctx context.Context, userID int64, checkoutRequestID string) (*PaymentStatusResult, error) {
	checkoutRequestID = strings.TrimSpace(checkoutRequestID)
	if checkoutRequestID == "" {
		return nil, invalid("checkoutRequestId is required")
	}

	o, err := s.repo.GetOrderByCheckoutID(ctx, userID, checkoutRequestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if o.PaymentStatus.IsTerminal() {
		return &PaymentStatusResult{
			Status:     o.PaymentStatus,
			ResultDesc: "payment already " + string(o.PaymentStatus),
		}, nil
	}

	if s.payments == nil {
		return nil, providerError(mpesa.ErrNotConfigured)
	}

	q, err := s.payments.QueryPayment(ctx, checkoutRequestID)
	if err != nil {
		return nil, providerError(err)
	}

	res := q.Result()
	res.CheckoutRequestID = checkoutRequestID

	if res.Status == model.PaymentStatusCompleted {
		applied, err := s.repo.ApplyPaymentResult(ctx, res, s.mail.PaymentConfirmation)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		if applied {
			metrics.PaymentUpdatesTotal.WithLabelValues("poll", string(res.Status)).Inc()
		} else if cur, err := s.repo.GetOrderByCheckoutID(ctx, userID, checkoutRequestID); err == nil && cur.PaymentStatus.IsTerminal() {
			// Callback успел раньше: отдаём сохранённый статус.
			res.Status = cur.PaymentStatus
		}
	}

	return &PaymentStatusResult{
		Status:     res.Status,
		ResultCode: res.ResultCode,
		ResultDesc: res.ResultDesc,
	}, nil
}
