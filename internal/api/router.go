package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

// EventLogger is the part of analytics.Logger the HTTP surface drives.
type EventLogger interface {
	LogEvent(ctx context.Context, name string, properties map[string]any)
	DistinctIdentifier(ctx context.Context) string
	ProjectToken() string
	SharedContainerIdentifier() string
	DefaultProperties() map[string]any
	SetDefaultProperties(props map[string]any)
}

type Server struct {
	appName string
	env     string
	version string
	logger  EventLogger
}

func NewServer(appName string, env string, version string, logger EventLogger) *Server {
	return &Server{
		appName: appName,
		env:     env,
		version: version,
		logger:  logger,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("GET /api/v1/meta", s.meta)
	mux.HandleFunc("POST /v1/events", s.logEvent)
	mux.HandleFunc("GET /v1/distinct-id", s.distinctID)
	mux.HandleFunc("GET /v1/config", s.config)
	mux.HandleFunc("PUT /v1/config/default-properties", s.setDefaultProperties)

	return withCommonMiddleware(mux)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) meta(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     s.appName,
		"env":     s.env,
		"version": s.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

type logEventRequest struct {
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties"`
}

func (s *Server) logEvent(w http.ResponseWriter, r *http.Request) {
	var req logEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON payload"})
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name required"})
		return
	}

	s.logger.LogEvent(r.Context(), req.Name, req.Properties)
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (s *Server) distinctID(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"distinctId": s.logger.DistinctIdentifier(r.Context())})
}

func (s *Server) config(w http.ResponseWriter, _ *http.Request) {
	defaults := s.logger.DefaultProperties()
	if defaults == nil {
		defaults = map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"projectToken":              maskToken(s.logger.ProjectToken()),
		"sharedContainerIdentifier": s.logger.SharedContainerIdentifier(),
		"defaultProperties":         defaults,
	})
}

func (s *Server) setDefaultProperties(w http.ResponseWriter, r *http.Request) {
	var props map[string]any
	if err := decodeJSON(r, &props); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "expected a JSON object"})
		return
	}

	s.logger.SetDefaultProperties(props)
	w.WriteHeader(http.StatusNoContent)
}

func withCommonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	return dec.Decode(dst)
}

// maskToken keeps the last four characters so operators can tell projects apart.
func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	return strings.Repeat("*", len(token)-4) + token[len(token)-4:]
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
