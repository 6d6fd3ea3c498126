package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tonvote/votebot/internal/storage"
)

// Server exposes liveness and a few counters for monitoring.
type Server struct {
	store *storage.Storage
	log   *slog.Logger

	server *http.Server
}

// NewServer creates a new health server
func NewServer(store *storage.Storage, log *slog.Logger) *Server {
	return &Server{
		store: store,
		log:   log,
	}
}

// Start starts the health server
func (s *Server) Start(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/", s.handleHealth)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.log.Info("starting health server", "port", port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	return s.server.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	subs, err := s.store.GetAll()
	if err != nil {
		s.log.Error("get subscriptions", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	groups := make(map[int64]struct{})
	for _, sub := range subs {
		groups[sub.GroupID] = struct{}{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{
		"subscriptions": len(subs),
		"groups":        len(groups),
	})
}
