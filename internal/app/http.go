package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"retro/api/internal/export"
)

type HTTPServer struct {
	service    *Service
	realtime   http.Handler
	corsOrigin string
	logger     *slog.Logger
}

// NewHTTPServer wires the REST routes; realtime, when non-nil, is mounted at /ws.
func NewHTTPServer(service *Service, realtime http.Handler, corsOrigin string, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HTTPServer{service: service, realtime: realtime, corsOrigin: corsOrigin, logger: logger}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withMiddleware)
	r.Use(s.recoverer)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	if s.realtime != nil {
		r.Handle("/ws", s.realtime)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/session/create", s.handleCreateSession)
		r.Post("/auth/verify", s.handleVerify)
		r.Route("/session/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Get("/export", s.handleExport)
		})
	})
	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "timestamp": time.Now().UnixMilli()})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body CreateSessionInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	result, err := s.service.CreateSession(r.Context(), body)
	if err != nil {
		s.fail(w, r, err, "Failed to create session")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleVerify(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	identity, err := s.service.VerifyToken(r.Context(), body.Token)
	if err != nil {
		s.fail(w, r, err, "Failed to verify token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "data": identity})
}

func (s *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	token, ok := requireBearer(w, r)
	if !ok {
		return
	}
	snap, err := s.service.GetSession(r.Context(), token, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, "Failed to get session")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	token, ok := requireBearer(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	format, err := export.ParseFormat(query.Get("format"))
	if err != nil {
		s.fail(w, r, err, "Failed to export session")
		return
	}
	archive, _ := strconv.ParseBool(query.Get("archive"))

	result, err := s.service.Export(r.Context(), token, chi.URLParam(r, "id"), format, archive)
	if err != nil {
		s.fail(w, r, err, "Failed to export session")
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	if format != export.FormatJSON {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	}
	if result.ArchiveKey != "" {
		w.Header().Set("X-Export-Archive", result.ArchiveKey)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	token, ok := requireBearer(w, r)
	if !ok {
		return
	}
	result, err := s.service.DeleteSession(r.Context(), token, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, "Failed to delete session")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// fail writes the mapped error; unexpected errors are logged and replaced
// by the generic message.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error, generic string) {
	status, code, message, details := mapError(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(generic, "request_id", requestIDFrom(r.Context()), "path", r.URL.Path, "error", err)
		message = generic
	}
	writeError(w, status, code, message, details)
}

func requireBearer(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "No token provided", nil)
		return "", false
	}
	return token, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, requestID))

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
		} else {
			next.ServeHTTP(writer, r)
		}

		s.logger.Info("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

func (s *HTTPServer) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("panic recovered", "request_id", requestIDFrom(r.Context()), "path", r.URL.Path, "panic", rec)
				writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrade take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func randomRequestID() string {
	return uuid.NewString()[:8]
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Credentials", "true")
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "X-Request-ID, X-Export-Archive, Content-Disposition")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
