// Package model содержит доменные сущности сервиса проката оборудования.
package model

import "time"

// User представляет зарегистрированного пользователя магазина.
type User struct {
	ID            int64
	Name          string
	Email         string
	PasswordHash  string
	Phone         string
	Location      string
	EmailVerified bool
	LoginAttempts int
	LockedUntil   *time.Time
	CreatedAt     time.Time
}

// IsLocked сообщает, действует ли блокировка входа на момент now.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// LockoutPolicy описывает ступенчатые пороги блокировки после неудачных входов.
type LockoutPolicy struct {
	ShortThreshold int
	ShortDuration  time.Duration
	LongThreshold  int
	LongDuration   time.Duration
}

// DefaultLockoutPolicy: 3 попытки — 15 минут, 5 попыток — час.
var DefaultLockoutPolicy = LockoutPolicy{
	ShortThreshold: 3,
	ShortDuration:  15 * time.Minute,
	LongThreshold:  5,
	LongDuration:   time.Hour,
}

// LockDuration возвращает длительность блокировки для накопленного числа попыток.
func (p LockoutPolicy) LockDuration(attempts int) time.Duration {
	switch {
	case attempts >= p.LongThreshold:
		return p.LongDuration
	case attempts >= p.ShortThreshold:
		return p.ShortDuration
	default:
		return 0
	}
}

// TokenPurpose определяет назначение одноразового токена.
type TokenPurpose string

const (
	TokenPurposeEmailVerification TokenPurpose = "email_verification"
	TokenPurposePasswordReset     TokenPurpose = "password_reset"
)

// AuthToken описывает одноразовый токен подтверждения почты или сброса пароля.
// Хранится только хеш токена.
type AuthToken struct {
	ID        int64
	UserID    int64
	Purpose   TokenPurpose
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// Product описывает позицию каталога.
type Product struct {
	ID          int64
	Name        string
	Description string
	Price       int64
	Category    string
	Image       string
	Location    string
	Available   bool
}

// ProductFilter задаёт условия выборки каталога. Пустые поля не ограничивают выборку.
type ProductFilter struct {
	Query    string
	Category string
	Location string
	MinPrice *int64
	MaxPrice *int64
}

// FilterOptions содержит значения, доступные для фильтрации каталога.
type FilterOptions struct {
	Categories []string
	Locations  []string
	MinPrice   int64
	MaxPrice   int64
}

// CartLine — строка корзины вместе с текущими данными товара.
type CartLine struct {
	ID          int64
	ProductID   int64
	ProductName string
	Price       int64
	Quantity    int
	Image       string
}

// Subtotal возвращает стоимость строки по текущей цене.
func (l CartLine) Subtotal() int64 {
	return l.Price * int64(l.Quantity)
}

// CartAddition описывает добавление товара в корзину.
type CartAddition struct {
	ProductID int64
	Quantity  int
}

// ContactMessage — сообщение из формы обратной связи.
type ContactMessage struct {
	ID        int64
	Name      string
	Email     string
	Message   string
	CreatedAt time.Time
}

// NotificationStatus описывает состояние письма в очереди отправки.
type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "pending"
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
)

// Notification — письмо в исходящей очереди.
type Notification struct {
	ID        int64
	Kind      string
	Recipient string
	Subject   string
	Body      string
	Attempts  int
	CreatedAt time.Time
}
