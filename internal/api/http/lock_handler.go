// internal/api/http/lock_handler.go
package http

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"distributed-nlm/internal/domain"
	"distributed-nlm/internal/metrics"
	"distributed-nlm/internal/usecase"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// LockHandler serves the admin HTTP API over the lock service.
type LockHandler struct {
	service  *usecase.LockService
	peers    domain.PeerDirectory
	logger   *slog.Logger
	validate *validator.Validate
	tracer   trace.Tracer
}

// NewLockHandler creates a LockHandler. peers may be nil, in which case
// GET /servers reports no servers.
func NewLockHandler(service *usecase.LockService, peers domain.PeerDirectory, logger *slog.Logger) *LockHandler {
	validate := validator.New()

	_ = validate.RegisterValidation("hexbytes", func(fl validator.FieldLevel) bool {
		b, err := hex.DecodeString(fl.Field().String())
		return err == nil && len(b) > 0
	})
	_ = validate.RegisterValidation("hexstring", func(fl validator.FieldLevel) bool {
		_, err := hex.DecodeString(fl.Field().String())
		return err == nil
	})

	return &LockHandler{
		service:  service,
		peers:    peers,
		logger:   logger.With("component", "lock-handler"),
		validate: validate,
		tracer:   otel.Tracer("distributed-nlm-api"),
	}
}

// A helper struct to capture the status code
type instrumentedResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *instrumentedResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// instrument wraps a handler with a server span and the request counter.
// route is the low-cardinality path used as the metric label.
func (h *LockHandler) instrument(route func(r *http.Request) string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := route(r)

		ctx, span := h.tracer.Start(r.Context(), "HTTP "+r.Method+" "+path, trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
		))
		defer span.End()

		r = r.WithContext(ctx)

		iw := &instrumentedResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(iw, r)

		metrics.HttpRequestsTotal.WithLabelValues(path, r.Method, strconv.Itoa(iw.statusCode)).Inc()

		span.SetAttributes(attribute.Int("http.status_code", iw.statusCode))
		if iw.statusCode >= 500 {
			span.SetStatus(codes.Error, "Server Error")
		}
	})
}

// RegisterRoutes registers the lock, file and server routes on mux.
func (h *LockHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/locks/", h.instrument(func(r *http.Request) string {
		switch op := strings.TrimPrefix(r.URL.Path, "/locks/"); op {
		case "lock", "unlock", "test":
			return "/locks/" + op
		default:
			return "/locks/{other}"
		}
	}, h.handleLocks))

	mux.Handle("/files/", h.instrument(func(*http.Request) string {
		return "/files/{file_id}/locks"
	}, h.handleFiles))

	mux.Handle("/servers", h.instrument(func(*http.Request) string {
		return "/servers"
	}, h.handleServers))
}

// statusFor maps a lock service error to an HTTP status.
func statusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch domain.KindOf(err) {
	case domain.KindDenied:
		return http.StatusConflict
	case domain.KindRangeUnavailable:
		return http.StatusNotFound
	case domain.KindInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleLocks serves POST /locks/{lock,unlock,test}.
func (h *LockHandler) handleLocks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	op := strings.TrimPrefix(r.URL.Path, "/locks/")

	var call func(ctx context.Context, fileID []byte, rec domain.LockRecord) error
	switch op {
	case "lock":
		call = h.service.Lock
	case "unlock":
		call = h.service.Unlock
	case "test":
		call = h.service.Test
	default:
		http.NotFound(w, r)
		return
	}

	ctx, span := h.tracer.Start(r.Context(), "handler."+op)
	defer span.End()

	var req LockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		span.SetStatus(codes.Error, "Failed to decode request body")
		span.RecordError(err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		span.SetStatus(codes.Error, "Validation failed")
		span.RecordError(err)
		var validationErrors []string
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) {
			for _, fe := range fieldErrors {
				validationErrors = append(validationErrors,
					"Field '"+fe.Field()+"' failed on the '"+fe.Tag()+"' tag.",
				)
			}
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "Validation failed",
			"details": validationErrors,
		})
		return
	}

	fileID, rec := req.ToDomain()
	span.SetAttributes(attribute.String("nlm.file_id", req.FileID))

	err := call(ctx, fileID, rec)
	status := statusFor(err)
	resp := LockResponse{Result: usecase.ResultOf(err)}
	if err != nil {
		resp.Error = err.Error()
		if status >= 500 {
			span.SetStatus(codes.Error, "Lock service failed")
			span.RecordError(err)
		}
	}
	writeJSON(w, status, resp)
}

// handleFiles serves GET /files/{hex}/locks.
func (h *LockHandler) handleFiles(w http.ResponseWriter, r *http.Request) {
	// e.g. /files/AB12/locks -> ["files", "AB12", "locks"]
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) != 3 || pathParts[2] != "locks" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, span := h.tracer.Start(r.Context(), "handler.ListLocks")
	defer span.End()
	span.SetAttributes(attribute.String("nlm.file_id", pathParts[1]))

	fileID, err := hex.DecodeString(pathParts[1])
	if err != nil || len(fileID) == 0 {
		http.Error(w, "file id must be non-empty hex", http.StatusBadRequest)
		return
	}

	held, err := h.service.List(ctx, fileID)
	if err != nil {
		status := statusFor(err)
		if status >= 500 {
			span.SetStatus(codes.Error, "Failed to list locks")
			span.RecordError(err)
		}
		h.logger.Warn("error listing locks", "file_id", pathParts[1], "error", err)
		writeJSON(w, status, LockResponse{Result: usecase.ResultOf(err), Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, toHeldLockResponses(held))
}

// handleServers serves GET /servers.
func (h *LockHandler) handleServers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	peers := []domain.Peer{}
	if h.peers != nil {
		peers = append(peers, h.peers.Peers()...)
	}
	writeJSON(w, http.StatusOK, peers)
}
