package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/yourorg/finbook/internal/auth"
)

func NewRouter(h *Handlers, hub *Hub, jwtSvc *auth.JWTService) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5174"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/api/auth/register", h.Register)
	r.Post("/api/auth/login", h.Login)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(jwtSvc))

		r.Get("/user/me", h.Me)
		r.Patch("/user/me", h.UpdateMe)
		r.Post("/user/deposit", h.Deposit)
		r.Post("/user/withdraw", h.Withdraw)

		r.Get("/investments", h.ListInvestments)
		r.Post("/investments", h.CreateInvestment)
		r.Post("/investments/buy", h.Buy)
		r.Get("/investments/{id}", h.GetInvestment)
		r.Patch("/investments/{id}", h.UpdateInvestment)
		r.Put("/investments/{id}", h.UpdateInvestment)
		r.Delete("/investments/{id}", h.DeleteInvestment)

		r.Get("/transactions", h.Transactions)
	})

	if hub != nil {
		r.Get("/ws", ServeWS(hub, h.logger))
	}

	return r
}
