/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/shipments/*   Shipment registration, lifecycle actions
  /api/offers/*      Funding offers
  /api/wallets       Role wallets

SECURITY NOTE:
  No authentication middleware currently. Callers identify themselves by
  account address in the request body; the ledger enforces authorization.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Shipment routes
		r.Route("/shipments", func(r chi.Router) {
			r.Get("/", h.ListShipments)
			r.Post("/", h.RegisterShipment)
			r.Post("/upload", h.AttachDocument)
			r.Get("/{hash}", h.GetShipment)
			r.Post("/{hash}/enable-funding", h.EnableFunding)
			r.Post("/{hash}/fund", h.Fund)
			r.Post("/{hash}/pay", h.Pay)
			r.Post("/{hash}/mark-received", h.MarkReceived)
			r.Post("/{hash}/redeem", h.Redeem)
		})

		// Offer routes
		r.Route("/offers", func(r chi.Router) {
			r.Get("/", h.ListOffers)
			r.Post("/", h.CreateOffer)
			r.Post("/{id}/accept", h.AcceptOffer)
		})

		// Wallet routes
		r.Get("/wallets", h.ListWallets)
	})

	return r
}
