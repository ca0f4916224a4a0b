// Package server is the diagnosis backend's HTTP API: image analysis, stored
// records, the chat assistant, and the consult log.
//
// Endpoints:
//
//	GET    /                          service info
//	GET    /health                    health check
//	POST   /analyze                   diagnose an uploaded image
//	POST   /analyze-and-store         diagnose, upload the image, and store a record
//	GET    /records                   list records (?user_id=)
//	GET    /records/{id}              one record
//	DELETE /records/{id}              delete a record
//	POST   /chat                      send a chat message
//	GET    /chat/history              list conversations (?user_id=, ?session_id=)
//	DELETE /chat/history/{sessionId}  delete a conversation
//	POST   /analyze_and_chat          diagnose an image and reply in the consult log
//	POST   /chats                     text message to the consult log
//	GET    /chats/{userId}            a user's consult log
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/cors"
	"github.com/klauspost/compress/gzhttp"

	"github.com/fpang/medassist/internal/diagnosis"
	"github.com/fpang/medassist/internal/store"
)

// ServiceName is reported by / and /health.
const ServiceName = "Medical Image Analysis API"

// DefaultMaxUploadBytes is the largest accepted image.
const DefaultMaxUploadBytes int64 = 10 << 20

// ImageStore keeps uploaded images. *s3util.ImageBucket implements it.
type ImageStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	URL(ctx context.Context, key string) (string, error)
}

// Config wires the server's dependencies.
type Config struct {
	Diagnosis      *diagnosis.Service
	Store          store.Store
	Images         ImageStore // nil disables image persistence
	MaxUploadBytes int64      // zero means DefaultMaxUploadBytes
	Version        string
}

// Server serves the API.
type Server struct {
	svc       *diagnosis.Service
	store     store.Store
	images    ImageStore
	maxUpload int64
	version   string
}

// New creates a Server.
func New(cfg Config) *Server {
	s := &Server{
		svc:       cfg.Diagnosis,
		store:     cfg.Store,
		images:    cfg.Images,
		maxUpload: cfg.MaxUploadBytes,
		version:   cfg.Version,
	}
	if s.maxUpload <= 0 {
		s.maxUpload = DefaultMaxUploadBytes
	}
	if s.version == "" {
		s.version = "1.0.0"
	}
	return s
}

// Routes registers every endpoint on a new mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /analyze", s.handleAnalyze)
	mux.HandleFunc("POST /analyze-and-store", s.handleAnalyzeAndStore)

	mux.HandleFunc("GET /records", s.handleListRecords)
	mux.HandleFunc("GET /records/{id}", s.handleGetRecord)
	mux.HandleFunc("DELETE /records/{id}", s.handleDeleteRecord)

	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /chat/history", s.handleChatHistory)
	mux.HandleFunc("DELETE /chat/history/{sessionId}", s.handleDeleteChat)

	mux.HandleFunc("POST /analyze_and_chat", s.handleAnalyzeAndChat)
	mux.HandleFunc("POST /chats", s.handleCreateConsult)
	mux.HandleFunc("GET /chats/{userId}", s.handleListConsults)
	return mux
}

// Handler returns the routes wrapped in CORS, compression, and request
// logging with metrics.
func (s *Server) Handler() http.Handler {
	corsMiddleware := cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	})
	return corsMiddleware(gzhttp.GzipHandler(withRequestLog(s.Routes())))
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"message": ServiceName,
		"version": s.version,
		"endpoints": map[string]string{
			"/analyze":           "POST - Upload medical image for analysis",
			"/analyze-and-store": "POST - Analyze an image and save the result",
			"/records":           "GET - List saved analyses",
			"/chat":              "POST - Ask the medical assistant",
			"/chat/history":      "GET - List chat conversations",
			"/health":            "GET - Check API health",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": ServiceName})
}
