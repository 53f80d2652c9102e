package model

import "time"

// OrderStatus описывает этап выполнения заказа.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing},
	OrderStatusProcessing: {OrderStatusShipped},
	OrderStatusShipped:    {OrderStatusDelivered},
}

// Valid сообщает, является ли значение известным статусом заказа.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo проверяет допустимость перехода по таблице статусов заказа.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentStatus описывает состояние оплаты заказа.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// IsTerminal сообщает, что статус оплаты больше не меняется.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed || s == PaymentStatusCancelled
}

// CanTransitionTo проверяет допустимость перехода статуса оплаты.
// Переходы возможны только из pending в один из терминальных статусов.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return s == PaymentStatusPending && next.IsTerminal()
}

// PaymentMethod — способ оплаты заказа.
type PaymentMethod string

const (
	PaymentMethodMpesa          PaymentMethod = "mpesa"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

// Order описывает заказ. TotalAmount фиксируется при создании и больше не пересчитывается.
type Order struct {
	ID                int64
	Number            string
	UserID            int64
	Status            OrderStatus
	TotalAmount       int64
	PaymentMethod     PaymentMethod
	PaymentStatus     PaymentStatus
	PaymentReference  *string
	CheckoutRequestID *string
	ShippingAddress   string
	ContactPhone      string
	ContactEmail      string
	Notes             string
	Items             []OrderItem
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// OrderItem — снимок строки корзины на момент оформления заказа.
type OrderItem struct {
	ID          int64
	ProductID   int64
	ProductName string
	UnitPrice   int64
	Quantity    int
	Subtotal    int64
}

// OrderDraft содержит данные оформления заказа из корзины пользователя.
type OrderDraft struct {
	UserID          int64
	Number          string
	PaymentMethod   PaymentMethod
	ShippingAddress string
	ContactPhone    string
	ContactEmail    string
	Notes           string
	IdempotencyKey  string
}

// PaymentResult — итог платежа, полученный из callback или опроса провайдера.
type PaymentResult struct {
	CheckoutRequestID string
	Status            PaymentStatus
	Receipt           string
	ResultCode        string
	ResultDesc        string
}
