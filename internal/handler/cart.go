package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/hireme/internal/model"
)

type cartItemRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type cartItemsRequest struct {
	Items []cartItemRequest `json:"items"`
}

func (h *Handler) addToCart(w http.ResponseWriter, r *http.Request, items []cartItemRequest) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	additions := make([]model.CartAddition, 0, len(items))
	for _, it := range items {
		additions = append(additions, model.CartAddition{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	if err := h.service.AddToCart(r.Context(), userID, additions); err != nil {
		h.writeError(w, err, "add to cart", zap.Int64("userID", userID))
		return
	}
	writeMessage(w, http.StatusOK, "added to cart")
}

// AddToCart добавляет товар в корзину текущего пользователя.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if !decodeOrReject(w, r, &req) {
		return
	}
	h.addToCart(w, r, []cartItemRequest{req})
}

// AddMultipleToCart добавляет несколько товаров в корзину одной операцией.
func (h *Handler) AddMultipleToCart(w http.ResponseWriter, r *http.Request) {
	var req cartItemsRequest
	if !decodeOrReject(w, r, &req) {
		return
	}
	h.addToCart(w, r, req.Items)
}

// GetCart возвращает содержимое корзины текущего пользователя.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	lines, err := h.service.GetCart(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "get cart", zap.Int64("userID", userID))
		return
	}

	resp := make([]cartLineResponse, 0, len(lines))
	for _, l := range lines {
		resp = append(resp, cartLineResponse{
			ID:        l.ID,
			ProductID: l.ProductID,
			Name:      l.ProductName,
			Price:     model.FromCents(l.Price),
			Quantity:  l.Quantity,
			Image:     l.Image,
			Subtotal:  model.FromCents(l.Subtotal()),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// RemoveFromCart удаляет строку из корзины текущего пользователя.
func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	itemID, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.RemoveFromCart(r.Context(), userID, itemID); err != nil {
		h.writeError(w, err, "remove from cart", zap.Int64("userID", userID), zap.Int64("itemID", itemID))
		return
	}
	writeMessage(w, http.StatusOK, "item removed from cart")
}
