package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/p-n-ai/dsc-prep/internal/plan"
	"github.com/p-n-ai/dsc-prep/internal/quiz"
	"github.com/p-n-ai/dsc-prep/internal/report"
	"github.com/p-n-ai/dsc-prep/internal/syllabus"
)

const maxBodyBytes = 1 << 20

type errResp struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errResp{Error: msg})
}

// writeError maps a domain error to its HTTP status.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
	}
	writeErr(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, quiz.ErrInvalidConfiguration),
		errors.Is(err, quiz.ErrInvalidOption),
		errors.Is(err, quiz.ErrUnknownQuestion),
		errors.Is(err, plan.ErrUnknownPlan),
		errors.Is(err, report.ErrUnknownFormat),
		errors.Is(err, syllabus.ErrEmptyDistribution):
		return http.StatusBadRequest
	case errors.Is(err, plan.ErrLimitExceeded), errors.Is(err, plan.ErrFeatureLocked):
		return http.StatusPaymentRequired
	case errors.Is(err, quiz.ErrNotActive),
		errors.Is(err, quiz.ErrInvalidTransition),
		errors.Is(err, quiz.ErrGenerationInFlight),
		errors.Is(err, quiz.ErrAuthRequired),
		errors.Is(err, quiz.ErrClosed),
		errors.Is(err, report.ErrNotCompleted):
		return http.StatusConflict
	case errors.Is(err, quiz.ErrGeneration):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// clientID identifies the caller: the X-Client-ID header, or the remote
// host when the header is missing.
func clientID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(HeaderClientID)); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
