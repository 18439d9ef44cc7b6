// Package server exposes the paragraph recognizer behind a small HTTP API.
package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/inkstone/handwriting-pipeline/internal/recognizer"
)

// Config configures the API server.
type Config struct {
	// MaxUploadBytes bounds request bodies (default 16 MB).
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// Logger for request/error messages.
	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 16 << 20
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Server handles recognition requests.
type Server struct {
	rec    *recognizer.Recognizer
	cfg    Config
	router chi.Router
}

// New builds the server and its routes.
func New(rec *recognizer.Recognizer, cfg Config) *Server {
	cfg.defaults()
	s := &Server{rec: rec, cfg: cfg}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Post("/v1/recognize", s.handleRecognize)
	s.router = r
	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type recognizeRequest struct {
	// ImageB64 is a base64-encoded image, with or without a data-URI
	// prefix.
	ImageB64 string `json:"image_b64"`
}

type recognizeResponse struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleRecognize accepts an image either as JSON with a base64 field or
// as a multipart form with an "image" file.
func (s *Server) handleRecognize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	img, err := s.decodeUpload(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	text, err := s.rec.Recognize(r.Context(), img)
	if err != nil {
		s.cfg.Logger.Error("recognition failed", "error", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "recognition failed"})
		return
	}
	writeJSON(w, http.StatusOK, recognizeResponse{Text: text})
}

func (s *Server) decodeUpload(r *http.Request) (image.Image, error) {
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "multipart/form-data") {
		file, _, err := r.FormFile("image")
		if err != nil {
			return nil, fmt.Errorf("missing image file in form: %w", err)
		}
		defer file.Close()
		img, _, err := image.Decode(file)
		if err != nil {
			return nil, fmt.Errorf("failed to decode uploaded image: %w", err)
		}
		return img, nil
	}

	var req recognizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("malformed request body: %w", err)
	}
	if req.ImageB64 == "" {
		return nil, fmt.Errorf("image_b64 must be set")
	}

	// Accept "data:image/png;base64,..." as browsers produce it.
	payload := req.ImageB64
	if i := strings.Index(payload, ","); strings.HasPrefix(payload, "data:") && i >= 0 {
		payload = payload[i+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
