package ipc

import (
	"context"
	"net/http"
)

// Server wraps an HTTP server with engine-specific routing.
type Server struct {
	httpServer *http.Server
}

// NewServer creates a Server that binds to the given address.
func NewServer(h *Handler, listenAddr string) *Server {
	mux := http.NewServeMux()

	// Health endpoint.
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Task dispatch.
	mux.HandleFunc("POST /api/v1/tasks", h.SubmitTask)

	// Ledger endpoints.
	mux.HandleFunc("GET /api/v1/ledger", h.GetLedger)
	mux.HandleFunc("GET /api/v1/ledger/history", h.GetLedgerHistory)

	// Redemption quest endpoints.
	mux.HandleFunc("GET /api/v1/quest", h.GetQuest)
	mux.HandleFunc("POST /api/v1/quest/satisfy", h.SatisfyQuest)

	// Context budget endpoints.
	mux.HandleFunc("GET /api/v1/budget", h.GetBudget)
	mux.HandleFunc("POST /api/v1/budget/charge", h.ChargeBudget)

	// Session endpoint.
	mux.HandleFunc("POST /api/v1/session/archive", h.ArchiveSession)

	// Worker catalog endpoint.
	mux.HandleFunc("GET /api/v1/workers", h.ListWorkers)

	srv := &http.Server{
		Addr:    listenAddr,
		Handler: corsMiddleware(mux),
	}

	return &Server{
		httpServer: srv,
	}
}

// Start begins listening for HTTP connections. Blocks until the server stops.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for local host tool access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
