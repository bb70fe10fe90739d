package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"prepcost/internal/costing"
	applog "prepcost/internal/log"
)

// RequestIDHeader carries the request id set by the server middleware.
const RequestIDHeader = "X-Request-ID"

var (
	engine   *costing.Service
	validate = validator.New(validator.WithRequiredStructEnabled())
)

func init() {
	// Amounts go out as JSON numbers, matching the published payload schema.
	decimal.MarshalJSONWithoutQuotes = true
}

// Configure installs the shared dependencies used by the HTTP handlers.
func Configure(svc *costing.Service) {
	engine = svc
}

type errorResponse struct {
	Error      string              `json:"error"`
	Code       string              `json:"code"`
	RequestID  string              `json:"request_id,omitempty"`
	References []costing.Reference `json:"references,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		applog.Error(context.Background(), "failed to encode json response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, code costing.Kind, message string) {
	writeJSON(w, status, errorResponse{
		Error:     message,
		Code:      string(code),
		RequestID: w.Header().Get(RequestIDHeader),
	})
}

// writeCostingError maps engine error kinds onto HTTP statuses.
func writeCostingError(w http.ResponseWriter, r *http.Request, err error) {
	var e *costing.Error
	if !errors.As(err, &e) {
		applog.Error(r.Context(), "unexpected engine error", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:     "internal error",
			Code:      "internal_error",
			RequestID: w.Header().Get(RequestIDHeader),
		})
		return
	}

	status := statusFor(e.Kind)
	if status >= http.StatusInternalServerError {
		applog.Error(r.Context(), "engine unavailable", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		applog.Debug(r.Context(), "request rejected", "method", r.Method, "path", r.URL.Path, "code", e.Kind, "error", err)
	}
	writeJSON(w, status, errorResponse{
		Error:      err.Error(),
		Code:       string(e.Kind),
		RequestID:  w.Header().Get(RequestIDHeader),
		References: e.References,
	})
}

func statusFor(kind costing.Kind) int {
	switch kind {
	case costing.KindValidation, costing.KindExclusivity:
		return http.StatusBadRequest
	case costing.KindNotFound:
		return http.StatusNotFound
	case costing.KindDuplicateEdge, costing.KindReferentialDeleteBlocked, costing.KindConcurrencyConflict:
		return http.StatusConflict
	case costing.KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ready reports whether the engine is configured and writes a 503 if not.
func ready(w http.ResponseWriter, r *http.Request) bool {
	if engine == nil {
		applog.Debug(r.Context(), "request without costing engine", "path", r.URL.Path)
		writeJSONError(w, http.StatusServiceUnavailable, costing.KindUpstreamUnavailable, "service unavailable")
		return false
	}
	return true
}

// decodeRequest reads a JSON body into dst and runs struct validation.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		applog.Debug(r.Context(), "invalid request payload", "path", r.URL.Path, "error", err)
		writeJSONError(w, http.StatusBadRequest, costing.KindValidation, "invalid request payload: "+err.Error())
		return false
	}
	if err := validate.Struct(dst); err != nil {
		applog.Debug(r.Context(), "request validation failed", "path", r.URL.Path, "error", err)
		writeJSONError(w, http.StatusBadRequest, costing.KindValidation, describeValidation(err))
		return false
	}
	return true
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", fe.Namespace()))
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s characters", fe.Namespace(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// queryID parses a required positive id query parameter.
func queryID(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		writeJSONError(w, http.StatusBadRequest, costing.KindValidation, name+" is required")
		return 0, false
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || value == 0 {
		applog.Debug(r.Context(), "invalid identifier", "param", name, "value", raw)
		writeJSONError(w, http.StatusBadRequest, costing.KindValidation, name+" must be a positive integer")
		return 0, false
	}
	return uint(value), true
}

func queryBool(r *http.Request, name string) bool {
	value, err := strconv.ParseBool(strings.TrimSpace(r.URL.Query().Get(name)))
	return err == nil && value
}

func queryInt(r *http.Request, name string) int {
	value, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(name)))
	if err != nil {
		return 0
	}
	return value
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	w.WriteHeader(http.StatusMethodNotAllowed)
}
