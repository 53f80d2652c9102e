package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/mmeshcher/hireme/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса проката.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.Metrics)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.Get("/verify-email", h.VerifyEmail)
		r.Post("/resend-verification", h.ResendVerification)
		r.Post("/forgot-password", h.ForgotPassword)
		r.Post("/reset-password", h.ResetPassword)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Get("/search", h.SearchProducts)
			r.Get("/filters", h.FilterOptions)
			r.Get("/category/{category}", h.ListProductsByCategory)
			r.Get("/{id}", h.GetProduct)
		})
		r.Get("/search/suggestions", h.SearchSuggestions)
		r.Post("/contact", h.SubmitContact)

		r.Post("/mpesa/callback", h.MpesaCallback)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/profile", h.GetProfile)
			r.Put("/profile", h.UpdateProfile)

			r.Post("/cart/add", h.AddToCart)
			r.Post("/cart/add-multiple", h.AddMultipleToCart)
			r.Get("/cart", h.GetCart)
			r.Delete("/cart/{id}", h.RemoveFromCart)

			r.Post("/orders", h.CreateOrder)
			r.Get("/orders", h.GetOrders)
			r.Get("/orders/{id}", h.GetOrder)
			r.Post("/orders/{id}/cancel", h.CancelOrder)

			r.Post("/mpesa/stkpush", h.STKPush)
			r.Post("/mpesa/query", h.QueryPayment)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(custommiddleware.AdminKey(h.opts.AdminKey))

			r.Post("/products", h.CreateProduct)
			r.Patch("/orders/{id}/status", h.UpdateOrderStatus)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}
