package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

const requestTimeout = 30 * time.Second

func NewRouter(h *HTTPHandler, verifier tokenVerifier, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog(log))
	r.Use(Recover(log))
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/sign-up", h.SignUp)
		r.Post("/auth/sign-in", h.SignIn)

		r.Get("/product", h.ListProducts)
		r.Get("/product/{productId}", h.GetProduct)

		r.Post("/checkout/webhook", h.CheckoutWebhook)

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(verifier))

			r.Get("/cart/{userId}", h.GetCart)
			r.Post("/cart/{cartId}", h.AddCartItem)
			r.Put("/cart/{cartId}", h.UpdateCartItem)
			r.Delete("/delete/{cartId}/{productId}", h.DeleteCartItem)

			r.Post("/checkout", h.CreateCheckout)
			r.Get("/checkout/{sessionId}", h.GetCheckoutSession)
		})
	})

	return r
}
