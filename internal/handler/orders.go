package handler

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/hireme/internal/model"
	"github.com/mmeshcher/hireme/internal/service"
)

const idempotencyKeyHeader = "Idempotency-Key"

// CreateOrder оформляет заказ из корзины текущего пользователя.
// Повтор с тем же Idempotency-Key возвращает ранее созданный заказ со статусом 200.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req service.CheckoutInput
	if !decodeOrReject(w, r, &req) {
		return
	}

	key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
	o, created, err := h.service.CreateOrder(r.Context(), userID, req, key)
	if err != nil {
		h.writeError(w, err, "create order", zap.Int64("userID", userID))
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	writeJSON(w, status, createdOrderResponse{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		TotalAmount: model.FromCents(o.TotalAmount),
		Status:      string(o.Status),
	})
}

// GetOrders возвращает заказы текущего пользователя, начиная с последнего.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	orders, err := h.service.GetOrders(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "get orders", zap.Int64("userID", userID))
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, newOrderResponse(&orders[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetOrder возвращает заказ текущего пользователя вместе с позициями.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	orderID, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	o, err := h.service.GetOrder(r.Context(), userID, orderID)
	if err != nil {
		h.writeError(w, err, "get order", zap.Int64("userID", userID), zap.Int64("orderID", orderID))
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o))
}

// CancelOrder отменяет заказ текущего пользователя, пока он в статусе pending.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	orderID, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	o, err := h.service.CancelOrder(r.Context(), userID, orderID)
	if err != nil {
		h.writeError(w, err, "cancel order", zap.Int64("userID", userID), zap.Int64("orderID", orderID))
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o))
}

type orderStatusRequest struct {
	Status string `json:"status"`
}

// UpdateOrderStatus переводит заказ в следующий статус по таблице переходов.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	var req orderStatusRequest
	if !decodeOrReject(w, r, &req) {
		return
	}

	o, err := h.service.UpdateOrderStatus(r.Context(), orderID, req.Status)
	if err != nil {
		h.writeError(w, err, "update order status", zap.Int64("orderID", orderID), zap.String("status", req.Status))
		return
	}

	h.logger.Info("order status updated", zap.Int64("orderID", orderID), zap.String("status", string(o.Status)))
	writeJSON(w, http.StatusOK, newOrderResponse(o))
}
