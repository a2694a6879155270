package app

import (
	"context"
	"net/http"
	"time"

	"echosphere/internal/handler"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Routes is implemented by every handler group.
type Routes interface {
	RegisterRoutes(router *mux.Router)
}

// Server is the HTTP front of the API.
type Server struct {
	router  *mux.Router
	origins []string
	srv     *http.Server
}

// NewServer mounts the route groups next to /ping and, when set, /health.
// origins configure the CORS layer added by Handler.
func NewServer(origins []string, health http.Handler, routes ...Routes) *Server {
	router := mux.NewRouter()
	router.Use(requestID)

	router.HandleFunc("/ping", handler.Ping).Methods("GET")
	if health != nil {
		router.Handle("/health", health).Methods("GET")
	}

	for _, r := range routes {
		r.RegisterRoutes(router)
	}

	router.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return &Server{router: router, origins: origins}
}

// Handler is the router behind CORS and the access log.
func (s *Server) Handler() http.Handler {
	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	cors := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Requested-With", "X-Request-ID"}),
	)

	return handlers.LoggingHandler(jww.INFO.Writer(), cors(s.router))
}

// Run serves on port until ctx is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context, port string) error {
	s.srv = &http.Server{
		Handler:           s.Handler(),
		Addr:              ":" + port,
		ReadHeaderTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		jww.INFO.Printf("server starting on port %s", port)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return errors.Wrap(s.srv.Shutdown(shutdownCtx), "http server shutdown")
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}
