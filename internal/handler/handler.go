// Package handler содержит HTTP-обработчики API сервиса проката.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/hireme/internal/middleware"
	"github.com/mmeshcher/hireme/internal/model"
	"github.com/mmeshcher/hireme/internal/mpesa"
	"github.com/mmeshcher/hireme/internal/service"
)

const maxBodyBytes = 1 << 20

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, in service.RegisterInput) (int64, error)
	AuthenticateUser(ctx context.Context, email, password string) (*model.User, error)
	VerifyEmail(ctx context.Context, token string) error
	ResendVerification(ctx context.Context, email string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
	GetProfile(ctx context.Context, userID int64) (*model.User, error)
	UpdateProfile(ctx context.Context, userID int64, in service.ProfileInput) (*model.User, error)

	ListProducts(ctx context.Context) ([]model.Product, error)
	ListProductsByCategory(ctx context.Context, category string) ([]model.Product, error)
	SearchProducts(ctx context.Context, in service.SearchInput) ([]model.Product, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	CreateProduct(ctx context.Context, in service.ProductInput) (*model.Product, error)
	FilterOptions(ctx context.Context) (*model.FilterOptions, error)
	SearchSuggestions(ctx context.Context, q string) ([]string, error)
	SubmitContact(ctx context.Context, in service.ContactInput) error

	AddToCart(ctx context.Context, userID int64, items []model.CartAddition) error
	GetCart(ctx context.Context, userID int64) ([]model.CartLine, error)
	RemoveFromCart(ctx context.Context, userID, itemID int64) error

	CreateOrder(ctx context.Context, userID int64, in service.CheckoutInput, idempotencyKey string) (*model.Order, bool, error)
	GetOrders(ctx context.Context, userID int64) ([]model.Order, error)
	GetOrder(ctx context.Context, userID, orderID int64) (*model.Order, error)
	CancelOrder(ctx context.Context, userID, orderID int64) (*model.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) (*model.Order, error)

	InitiatePayment(ctx context.Context, userID int64, in service.PaymentInput) (*service.PaymentInitiation, error)
	HandleCallback(ctx context.Context, cb mpesa.Callback) (model.PaymentResult, bool, error)
	PollPayment(ctx context.Context, userID int64, checkoutRequestID string) (*service.PaymentStatusResult, error)
}

// Options содержит необязательные параметры обработчика.
type Options struct {
	// CallbackToken — ожидаемое значение параметра token в адресе callback M-Pesa.
	CallbackToken string
	// AdminKey — ключ административных маршрутов; пустой ключ их отключает.
	AdminKey string
}

// Handler реализует HTTP-обработчики API сервиса проката.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	opts           Options
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, opts Options) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		opts:           opts,
	}
}

type messageResponse struct {
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

type lockedResponse struct {
	Message          string `json:"message"`
	RemainingMinutes int    `json:"remainingMinutes"`
	RemainingSeconds int    `json:"remainingSeconds"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Message: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// decodeOrReject декодирует тело запроса и при ошибке отвечает 400.
func decodeOrReject(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeMessage(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "authentication required")
	}
	return id, ok
}

// writeError отображает ошибку бизнес-логики в HTTP-ответ. Неизвестные ошибки
// логируются и возвращаются клиенту как 500 без подробностей.
func (h *Handler) writeError(w http.ResponseWriter, err error, op string, fields ...zap.Field) {
	var (
		verr   *service.ValidationError
		locked *service.LockedError
		perr   *service.ProviderError
	)

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "validation failed", Errors: verr.Errors})
	case errors.As(err, &locked):
		writeJSON(w, http.StatusLocked, lockedResponse{
			Message:          fmt.Sprintf("account is locked, try again in %d minutes", locked.RemainingMinutes()),
			RemainingMinutes: locked.RemainingMinutes(),
			RemainingSeconds: int(math.Ceil(locked.Remaining.Seconds())),
		})
	case errors.As(err, &perr):
		h.logger.Warn(op+": payment provider error", append(fields, zap.Error(err))...)
		writeMessage(w, http.StatusBadRequest, perr.Message)
	case errors.Is(err, service.ErrEmailNotVerified):
		writeMessage(w, http.StatusForbidden, "please verify your email before logging in")
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrProductUnavailable):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrStatusConflict):
		writeMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrInvalidOrExpiredToken),
		errors.Is(err, service.ErrAmountMismatch),
		errors.Is(err, service.ErrInvalidPhone),
		errors.Is(err, service.ErrPaymentNotPending),
		errors.Is(err, service.ErrOrderNotPending),
		errors.Is(err, service.ErrInvalidTransition):
		writeMessage(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error(op+" error", append(fields, zap.Error(err))...)
		writeMessage(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}
