package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/FACorreiaa/taskflow-auth/internal/api/auth"
	"github.com/FACorreiaa/taskflow-auth/internal/api/upload"
	"github.com/FACorreiaa/taskflow-auth/internal/api/user"
)

// Config contains dependencies needed for the router setup
type Config struct {
	AuthHandler            *auth.AuthHandler
	UserHandler            *user.HandlerImpl
	UploadHandler          *upload.HandlerImpl
	AuthenticateMiddleware func(http.Handler) http.Handler
	// RequireAdmin runs after AuthenticateMiddleware.
	RequireAdmin   func(http.Handler) http.Handler
	AllowedOrigins []string
	// UploadsDir is served at /uploads/ when images are stored locally.
	UploadsDir string
}

// SetupRouter initializes and configures the main application router.
// Server-wide middleware (like logger, requestID, recoverer) are expected
// to be applied *before* mounting this router in main.go.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Heartbeat/Health check endpoint
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	})

	if cfg.UploadsDir != "" {
		fs := http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadsDir)))
		r.Handle("/uploads/*", fs)
	}

	r.Route("/api/v1", func(r chi.Router) {

		// --- Public Auth Routes ---
		r.Group(func(r chi.Router) {
			r.Post("/auth/register", cfg.AuthHandler.Register)
			r.Post("/auth/login", cfg.AuthHandler.Login)
			r.Post("/auth/password-reset/request", cfg.AuthHandler.RequestPasswordReset)
			r.Post("/auth/password-reset/confirm", cfg.AuthHandler.ConfirmPasswordReset)
			// Sign-up uploads the picture before the account exists.
			if cfg.UploadHandler != nil {
				r.Post("/auth/upload-image", cfg.UploadHandler.UploadImage)
			}
		})

		// --- Protected Routes ---
		r.Group(func(r chi.Router) {
			r.Use(cfg.AuthenticateMiddleware)

			r.Get("/auth/profile", cfg.AuthHandler.GetProfile)
			r.Put("/auth/profile", cfg.AuthHandler.UpdateProfile)

			if cfg.UserHandler != nil {
				r.Get("/users/{id}", cfg.UserHandler.GetUser)

				// --- Admin Routes ---
				r.Group(func(r chi.Router) {
					r.Use(cfg.RequireAdmin)
					r.Get("/users", cfg.UserHandler.ListUsers)
					r.Delete("/users/{id}", cfg.UserHandler.DeleteUser)
				})
			}
		})
	})

	return r
}
