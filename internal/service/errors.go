package service

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrValidation — общий признак ошибок валидации входных данных.
	ErrValidation = errors.New("validation failed")
	// ErrEmptyCart возвращается при оформлении заказа из пустой корзины.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInvalidCredentials возвращается при неверном email или пароле.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrAccountLocked — общий признак блокировки входа.
	ErrAccountLocked = errors.New("account locked")
	// ErrEmailNotVerified возвращается при входе с неподтверждённой почтой.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrInvalidOrExpiredToken возвращается для использованного, истёкшего или неизвестного токена.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	// ErrAmountMismatch возвращается, если сумма платежа не совпадает с суммой заказа.
	ErrAmountMismatch = errors.New("amount does not match order total")
	// ErrInvalidPhone возвращается для номера, который нельзя привести к формату 254XXXXXXXXX.
	ErrInvalidPhone = errors.New("invalid phone number")
	// ErrPaymentNotPending возвращается при попытке оплатить заказ, который не ожидает оплаты.
	ErrPaymentNotPending = errors.New("order is not awaiting payment")
	// ErrOrderNotPending возвращается при отмене заказа не в статусе pending.
	ErrOrderNotPending = errors.New("only pending orders can be cancelled")
	// ErrInvalidTransition возвращается при недопустимом переходе статуса заказа.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStatusConflict возвращается, если статус заказа изменился параллельно.
	ErrStatusConflict = errors.New("order status changed concurrently")
	// ErrNotFound возвращается, если запись не найдена или принадлежит другому пользователю.
	ErrNotFound = errors.New("not found")
	// ErrProductUnavailable возвращается при добавлении в корзину недоступного товара.
	ErrProductUnavailable = errors.New("product not found or unavailable")
	// ErrConflict возвращается при повторной регистрации email.
	ErrConflict = errors.New("email already registered")
	// ErrPaymentProvider — общий признак ошибки платёжного провайдера.
	ErrPaymentProvider = errors.New("payment provider error")
)

// ValidationError содержит список ошибок валидации.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(msgs ...string) error {
	return &ValidationError{Errors: msgs}
}

// LockedError возвращается при попытке входа в заблокированный аккаунт.
type LockedError struct {
	Until     time.Time
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked, try again in %s", e.Remaining.Round(time.Second))
}

func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// RemainingMinutes возвращает оставшееся время блокировки в минутах с округлением вверх.
func (e *LockedError) RemainingMinutes() int {
	m := int(e.Remaining / time.Minute)
	if e.Remaining%time.Minute != 0 {
		m++
	}
	return m
}

// ProviderError описывает сбой инициации платежа у провайдера.
type ProviderError struct {
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	return "payment initiation failed: " + e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func (e *ProviderError) Is(target error) bool {
	return target == ErrPaymentProvider
}
