package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/dailyledger/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(h.authMiddleware.Middleware)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup", h.Signup)
		r.Post("/login", h.Login)
		r.Get("/verify", h.Verify)
		r.Post("/logout", h.Logout)
	})

	r.Get("/api/user", h.CurrentUser)

	r.Route("/api/records", func(r chi.Router) {
		r.Post("/{sectionKey}", h.SaveRecord)
		r.Get("/{prefix}", h.ListRecords)
		r.Get("/{prefix}/dates", h.DatesWithData)
	})

	r.Post("/api/photos/{kind}", h.UploadPhoto)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
