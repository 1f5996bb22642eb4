// Package api implements the ragrev HTTP API server.
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/sprite-ai/ragrev/internal/index"
	"github.com/sprite-ai/ragrev/internal/llm"
	"github.com/sprite-ai/ragrev/internal/pipeline"
)

// Server is the ragrev HTTP API server.
type Server struct {
	addr   string
	mux    *http.ServeMux
	server *http.Server

	pipe     *pipeline.Pipeline
	store    *index.Store
	indexer  *index.Indexer
	embedder llm.Embedder
	repo     string
	repoDir  string
}

// Options wires the server's backends. Store, indexer, and embedder
// may be nil; the endpoints that need them report 503.
type Options struct {
	Addr     string
	Pipeline *pipeline.Pipeline
	Store    *index.Store
	Indexer  *index.Indexer
	Embedder llm.Embedder
	Repo     string
	RepoDir  string
}

// New creates a new API server.
func New(opts Options) *Server {
	s := &Server{
		addr:     opts.Addr,
		pipe:     opts.Pipeline,
		store:    opts.Store,
		indexer:  opts.Indexer,
		embedder: opts.Embedder,
		repo:     opts.Repo,
		repoDir:  opts.RepoDir,
	}
	s.mux = http.NewServeMux()
	s.registerRoutes()
	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/review", s.handleReview)
	s.mux.HandleFunc("POST /api/collect", s.handleCollect)
	s.mux.HandleFunc("POST /api/index", s.handleIndex)
	s.mux.HandleFunc("POST /api/search", s.handleSearch)
	s.mux.HandleFunc("GET /api/ws", s.handleWebSocket)
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	log.Printf("ragrev API server listening on %s", s.addr)
	return s.server.ListenAndServe()
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// readJSON decodes a JSON request body into v.
func readJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("empty request body")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}
