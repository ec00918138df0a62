package http

import (
	"net/http"

	"github.com/birthday-notifier/internal/application/user"
	"github.com/birthday-notifier/internal/config"
	"github.com/birthday-notifier/internal/transport/http/handler"
	appmiddleware "github.com/birthday-notifier/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// 5 requests/second with a burst of 10, applied to user creation.
	createRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	userSvc := user.NewService(user.ServiceDeps{UserRepo: deps.UserRepo})

	healthH := handler.NewHealthHandler()
	userH := handler.NewUserHandler(userSvc)

	r.Get("/health-check/ping", healthH.Ping)

	r.Route("/user", func(r chi.Router) {
		r.With(createRL.Limit).Post("/", userH.Create)
		r.Get("/{id}", userH.Get)
		r.Put("/{id}", userH.Update)
		r.Delete("/{id}", userH.Delete)
	})
	r.Get("/users", userH.List)

	return r
}
