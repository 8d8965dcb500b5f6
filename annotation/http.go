package annotation

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/lewtec/demarcador/internal/domain"
	log "github.com/sirupsen/logrus"
)

// i18nMiddleware adds the appropriate localizer to the request context
func i18nMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		localizer := GetLocalizerFromRequest(r)
		ctx := WithLocalizer(r.Context(), localizer)
		handler.ServeHTTP(w, r.WithContext(ctx))
	})
}

func HTTPLogger(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		initialTime := time.Now()
		wr := NewStatusCodeRecorderResponseWriter(w)
		handler.ServeHTTP(wr, r)
		log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.String(),
			"status":   wr.Status,
			"duration": time.Since(initialTime).Milliseconds(),
		}).Info("http: request")
	})
}

type StatusCodeRecorderResponseWriter struct {
	http.ResponseWriter
	Status int
}

func (r *StatusCodeRecorderResponseWriter) WriteHeader(status int) {
	r.Status = status
	r.ResponseWriter.WriteHeader(status)
}

func NewStatusCodeRecorderResponseWriter(w http.ResponseWriter) *StatusCodeRecorderResponseWriter {
	return &StatusCodeRecorderResponseWriter{ResponseWriter: w, Status: 200}
}

type errorBody struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("http: while encoding response: %s", err)
	}
}

// writeError maps the domain error taxonomy to HTTP statuses
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind, messageID := http.StatusInternalServerError, "internal", "ErrInternal"
	switch {
	case errors.Is(err, domain.ErrValidation):
		status, kind, messageID = http.StatusBadRequest, "validation", "ErrValidation"
	case errors.Is(err, domain.ErrNotFound):
		status, kind, messageID = http.StatusNotFound, "not_found", "ErrNotFound"
	case errors.Is(err, domain.ErrConflict):
		status, kind, messageID = http.StatusConflict, "conflict", "ErrConflict"
	case errors.Is(err, domain.ErrState):
		status, kind, messageID = http.StatusConflict, "state", "ErrState"
	}
	if status == http.StatusInternalServerError {
		log.Printf("error: http: %s %s: %s", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, errorBody{
		Error: Localize(r.Context(), messageID, map[string]any{"Detail": err.Error()}),
		Kind:  kind,
	})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.Validationf("malformed request body: %s", err)
	}
	return nil
}
