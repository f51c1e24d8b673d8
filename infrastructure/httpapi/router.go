package httpapi

import (
	"chat-relay/services"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/samber/lo"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterOptions struct {
	AllowedOrigins []string
	SecureCookie   bool
	TokenDuration  time.Duration
	UploadDir      string
	UploadMaxBytes int64
}

// NewRouter wires the account API, uploads, the WebSocket endpoint and the
// operational routes. requireAuth guards the upload route.
func NewRouter(
	log *slog.Logger,
	authService services.IAuthService,
	requireAuth func(http.Handler) http.Handler,
	ws http.Handler,
	options RouterOptions,
) *chi.Mux {
	r := chi.NewRouter()

	// Metrics first to capture every request
	r.Use(Metrics)
	r.Use(SecurityHeaders)

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logger(log))
	r.Use(chimw.Recoverer)

	// Cookies cross origins only towards explicitly listed front ends, never
	// towards a wildcard
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   options.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: !lo.Contains(options.AllowedOrigins, "*"),
		MaxAge:           300,
	}))

	h := NewHandler(log, authService, options.TokenDuration, options.SecureCookie)
	uploader := NewUploader(h, options.UploadDir, options.UploadMaxBytes)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", h.Health)
	r.Handle("/ws", ws)
	r.Handle(UploadRoute+"/*", http.StripPrefix(UploadRoute+"/", http.FileServer(filesOnly{http.Dir(options.UploadDir)})))

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/upload", uploader.Upload)
		})
	})

	return r
}

// filesOnly serves stored uploads but never lists the directory.
type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}
