package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/hireme/internal/model"
	"github.com/mmeshcher/hireme/internal/service"
)

// ListProducts возвращает доступные товары каталога.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context())
	if err != nil {
		h.writeError(w, err, "list products")
		return
	}
	writeJSON(w, http.StatusOK, newProductsResponse(products))
}

// ListProductsByCategory возвращает доступные товары категории.
func (h *Handler) ListProductsByCategory(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")

	products, err := h.service.ListProductsByCategory(r.Context(), category)
	if err != nil {
		h.writeError(w, err, "list products by category", zap.String("category", category))
		return
	}
	writeJSON(w, http.StatusOK, newProductsResponse(products))
}

// GetProduct возвращает товар по идентификатору.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	p, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "get product", zap.Int64("productID", id))
		return
	}
	writeJSON(w, http.StatusOK, newProductResponse(*p))
}

func priceParam(q string) (*float64, bool) {
	raw := strings.TrimSpace(q)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return nil, false
	}
	return &v, true
}

// SearchProducts ищет товары по тексту, категории, городу и диапазону цен.
func (h *Handler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	in := service.SearchInput{
		Query:    q.Get("q"),
		Category: q.Get("category"),
		Location: q.Get("location"),
	}

	var errs []string
	var ok bool
	if in.MinPrice, ok = priceParam(q.Get("minPrice")); !ok {
		errs = append(errs, "minPrice must be a non-negative number")
	}
	if in.MaxPrice, ok = priceParam(q.Get("maxPrice")); !ok {
		errs = append(errs, "maxPrice must be a non-negative number")
	}
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "validation failed", Errors: errs})
		return
	}

	products, err := h.service.SearchProducts(r.Context(), in)
	if err != nil {
		h.writeError(w, err, "search products")
		return
	}
	writeJSON(w, http.StatusOK, newProductsResponse(products))
}

type priceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type filterOptionsResponse struct {
	Categories []string   `json:"categories"`
	Locations  []string   `json:"locations"`
	PriceRange priceRange `json:"priceRange"`
}

// FilterOptions возвращает значения для фильтров каталога.
func (h *Handler) FilterOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := h.service.FilterOptions(r.Context())
	if err != nil {
		h.writeError(w, err, "filter options")
		return
	}

	writeJSON(w, http.StatusOK, filterOptionsResponse{
		Categories: nonNil(opts.Categories),
		Locations:  nonNil(opts.Locations),
		PriceRange: priceRange{Min: model.FromCents(opts.MinPrice), Max: model.FromCents(opts.MaxPrice)},
	})
}

type suggestionsResponse struct {
	Suggestions []string `json:"suggestions"`
}

// SearchSuggestions возвращает подсказки для строки поиска.
func (h *Handler) SearchSuggestions(w http.ResponseWriter, r *http.Request) {
	suggestions, err := h.service.SearchSuggestions(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeError(w, err, "search suggestions")
		return
	}
	writeJSON(w, http.StatusOK, suggestionsResponse{Suggestions: nonNil(suggestions)})
}

// CreateProduct добавляет товар в каталог.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req service.ProductInput
	if !decodeOrReject(w, r, &req) {
		return
	}

	p, err := h.service.CreateProduct(r.Context(), req)
	if err != nil {
		h.writeError(w, err, "create product")
		return
	}
	writeJSON(w, http.StatusCreated, newProductResponse(*p))
}

// SubmitContact сохраняет сообщение формы обратной связи.
func (h *Handler) SubmitContact(w http.ResponseWriter, r *http.Request) {
	var req service.ContactInput
	if !decodeOrReject(w, r, &req) {
		return
	}

	if err := h.service.SubmitContact(r.Context(), req); err != nil {
		h.writeError(w, err, "submit contact")
		return
	}
	writeMessage(w, http.StatusCreated, "thank you, we will get back to you shortly")
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
