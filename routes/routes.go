package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/khelarena/arena-admin/handlers"
	"github.com/khelarena/arena-admin/middleware"
)

func SetupRoutes(
	router *chi.Mux,
	jwtSecret string,
	authHandler *handlers.AuthHandler,
	tournamentHandler *handlers.TournamentHandler,
	walletHandler *handlers.WalletHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Post("/auth/login", authHandler.Login)

	router.Get("/ws/status", webSocketHandler.ServeStatusStream)

	router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Authenticate([]byte(jwtSecret)))
		r.Use(middleware.Authorize("admin"))

		r.Route("/tournaments", func(r chi.Router) {
			r.Get("/", tournamentHandler.ListHandler)
			r.Post("/", tournamentHandler.CreateHandler)
			r.Get("/{tournamentID}", tournamentHandler.GetByIDHandler)
			r.Put("/{tournamentID}", tournamentHandler.UpdateHandler)
			r.Delete("/{tournamentID}", tournamentHandler.DeleteHandler)
			r.Put("/{tournamentID}/result", tournamentHandler.AttachResultHandler)
			r.Post("/{tournamentID}/result", tournamentHandler.UploadResultHandler)
			r.Post("/{tournamentID}/participants", tournamentHandler.JoinHandler)
		})

		r.Route("/users/{userID}/wallet", func(r chi.Router) {
			r.Get("/", walletHandler.GetBalanceHandler)
			r.Post("/credits", walletHandler.CreditHandler)
			r.Get("/entries", walletHandler.ListEntriesHandler)
		})
	})
}
