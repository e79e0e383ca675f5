package api

import (
	"net/http"
	"time"

	"fundamentallm-backend/internal/handlers"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// RouterDependencies holds all the dependencies required by the router setup,
// primarily handlers and configuration.
type RouterDependencies struct {
	ConversationHandler *handlers.ConversationHandlers
	HealthHandler       *handlers.HealthHandler
	AllowedOrigins      []string
	RequestTimeout      time.Duration
}

// NewRouter creates and configures the main Chi router for the application.
// The returned handler is wrapped with OpenTelemetry HTTP instrumentation.
func NewRouter(deps RouterDependencies) http.Handler {
	if deps.ConversationHandler == nil || deps.HealthHandler == nil {
		panic("handler dependency is nil in router setup")
	}
	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	r := chi.NewRouter()

	// --- Base Middleware Stack ---
	r.Use(middleware.RequestID) // Inject request ID into context
	r.Use(middleware.RealIP)    // Use X-Forwarded-For or X-Real-IP
	r.Use(RequestLogger)        // Structured access log
	r.Use(middleware.Recoverer) // Recover from panics, return 500
	r.Use(middleware.Timeout(timeout))

	// --- CORS Configuration ---
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Get("/health", deps.HealthHandler.HandleHealth)

	r.Route("/conversations", func(r chi.Router) {
		r.Post("/", deps.ConversationHandler.HandleCreateConversation)
		r.Route("/{conversationID}", func(r chi.Router) {
			r.Get("/", deps.ConversationHandler.HandleGetConversation)
			r.Post("/messages", deps.ConversationHandler.HandleSendMessage)
			r.Get("/export", deps.ConversationHandler.HandleExportConversation)
			r.Post("/import", deps.ConversationHandler.HandleImportConversation)
		})
	})

	return otelhttp.NewHandler(r, "fundamentallm-http",
		otelhttp.WithFilter(func(req *http.Request) bool { return req.URL.Path != "/health" }),
	)
}
