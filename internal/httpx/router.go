package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/cart", handler.GetCart)
	r.Post("/cart/items", handler.AddCartItem)
	r.Delete("/cart/items/{productID}", handler.DeleteCartItem)

	r.Post("/orders", handler.CreateOrder)
	r.Get("/orders", handler.ListOrders)
	r.Get("/orders/{id}", handler.GetOrder)
	r.Post("/orders/{id}/checkout", handler.InitiateCheckout)
	r.Post("/orders/{id}/ship", handler.ShipOrder)
	r.Post("/orders/{id}/deliver", handler.ConfirmDelivery)

	r.Post("/webhooks/payment", handler.HandleWebhook)

	return r
}
