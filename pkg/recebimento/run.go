package recebimento

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
)

const shutdownTimeout = 5 * time.Second

// Run starts the HTTP server and blocks until ctx is canceled or the server fails.
//
// # API Endpoints
//
//	GET    /health, /api/health
//	POST   /api/auth/login
//	PUT    /api/sessions/{id}                    GET, DELETE /api/sessions/{id}
//	PUT    /api/sessions/{id}/notas              GET /api/sessions/{id}/notas
//	PUT    /api/sessions/{id}/carros             GET /api/sessions/{id}/carros
//	POST   /api/sessions/{id}/carros/{carroId}/finalizar
//	PUT    /api/carros-finalizados               GET /api/carros-finalizados
//	POST   /api/relatorios                       GET /api/relatorios
//	POST   /api/conversas/{id}/mensagens         GET /api/conversas/{id}/mensagens
//	POST   /api/conversas/{id}/lidas?role=R      GET /api/conversas/{id}/nao-lidas?role=R
//	POST   /api/migracao                         GET /api/migracao
//
// In-flight requests get shutdownTimeout to complete after ctx is canceled.
func (a *App) Run(ctx context.Context, cmd *RunCommand) error {
	addr := fmt.Sprintf(":%s", a.config.ServerPort)
	server := &http.Server{
		Addr:              addr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.log.Info().Str("addr", addr).Bool("read_only", a.IsReadOnly()).Msg("starting recebimento server")

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

// Router returns the HTTP handler with every route and middleware installed.
func (a *App) Router() http.Handler {
	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", a.handleHealth).Methods("GET")

	api.HandleFunc("/auth/login", a.handleLogin).Methods("POST")

	// Sessions
	api.HandleFunc("/sessions/{id}", a.handleSaveSession).Methods("PUT")
	api.HandleFunc("/sessions/{id}", a.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", a.handleDeleteSession).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/notas", a.handleSaveNotas).Methods("PUT")
	api.HandleFunc("/sessions/{id}/notas", a.handleGetNotas).Methods("GET")
	api.HandleFunc("/sessions/{id}/carros", a.handleSaveCarros).Methods("PUT")
	api.HandleFunc("/sessions/{id}/carros", a.handleGetCarros).Methods("GET")
	api.HandleFunc("/sessions/{id}/carros/{carroId}/finalizar", a.handleFinalizeCarro).Methods("POST")

	api.HandleFunc("/carros-finalizados", a.handleSaveCarrosFinalizados).Methods("PUT")
	api.HandleFunc("/carros-finalizados", a.handleGetCarrosFinalizados).Methods("GET")

	api.HandleFunc("/relatorios", a.handleSaveRelatorio).Methods("POST")
	api.HandleFunc("/relatorios", a.handleGetRelatorios).Methods("GET")

	// Chat
	api.HandleFunc("/conversas/{id}/mensagens", a.handleSendMessage).Methods("POST")
	api.HandleFunc("/conversas/{id}/mensagens", a.handleGetMessages).Methods("GET")
	api.HandleFunc("/conversas/{id}/lidas", a.handleMarkAsRead).Methods("POST")
	api.HandleFunc("/conversas/{id}/nao-lidas", a.handleCountUnread).Methods("GET")

	api.HandleFunc("/migracao", a.handleMigrate).Methods("POST")
	api.HandleFunc("/migracao", a.handleMigrationStatus).Methods("GET")

	router.HandleFunc("/health", a.handleHealth).Methods("GET")

	// Wrapped outside the router so CORS preflight requests reach it before route
	// method matching.
	withCORS := cors.Handler(cors.Options{
		AllowedOrigins: a.config.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", idempotencyHeader},
		MaxAge:         300,
	})
	return middleware.RequestID(middleware.Recoverer(a.logRequests(withCORS(router))))
}

// logRequests logs one line per request with its status and duration.
func (a *App) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
