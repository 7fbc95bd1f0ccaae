package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/markahope-aag/hazardos-sub008/internal/logging"
)

// NewRouter wires the photo receiver. dir is also served read-only under
// /files/.
func NewRouter(h *PhotoHandler, log logging.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(Logging(log))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.With(RequireDeviceID).Post("/photos", h.Upload)
	r.Handle("/files/*", http.StripPrefix("/files/", http.FileServer(http.Dir(h.dir))))

	return r
}
