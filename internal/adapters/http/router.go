package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/conference-proceedings/internal/config"
	"github.com/kirillkom/conference-proceedings/internal/core/domain"
	"github.com/kirillkom/conference-proceedings/internal/core/ports"
	"github.com/kirillkom/conference-proceedings/internal/observability/metrics"
)

const serviceName = "api"

// Services are the use cases exposed over HTTP.
type Services struct {
	Intake      ports.SubmissionIntake
	Reader      ports.SubmissionReader
	Lifecycle   ports.SubmissionLifecycle
	Proceedings ports.ProceedingsService
}

type Router struct {
	services Services
	metrics  *metrics.HTTPServerMetrics

	maxUploadBytes int64
	rateLimitRPS   float64
	rateLimitBurst int
	maxInFlight    int
	inFlightWait   time.Duration
}

type route struct {
	method  string
	path    string
	handler http.HandlerFunc
}

func NewRouter(cfg config.Config, services Services) *Router {
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 10 * 1024 * 1024
	}
	return &Router{
		services:       services,
		maxUploadBytes: maxUpload,
		rateLimitRPS:   cfg.APIRateLimitRPS,
		rateLimitBurst: cfg.APIRateLimitBurst,
		maxInFlight:    cfg.APIMaxInFlight,
		inFlightWait:   cfg.APIInFlightWait,
	}
}

// WithMetrics enables request metrics and mounts /metrics.
func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics) *Router {
	rt.metrics = m
	return rt
}

func (rt *Router) routes() []route {
	return []route{
		{http.MethodGet, "/healthz", rt.healthz},
		{http.MethodGet, "/openapi.yaml", serveContract},

		{http.MethodPost, "/v1/conferences/{conferenceID}/submissions", rt.submit},
		{http.MethodGet, "/v1/conferences/{conferenceID}/submissions", rt.listSubmissions},
		{http.MethodGet, "/v1/conferences/{conferenceID}/submissions.xlsx", rt.exportSubmissions},
		{http.MethodGet, "/v1/conferences/{conferenceID}/papers", rt.listPublished},
		{http.MethodPost, "/v1/conferences/{conferenceID}/proceedings", rt.compileProceedings},
		{http.MethodGet, "/v1/conferences/{conferenceID}/proceedings", rt.downloadProceedings},

		{http.MethodGet, "/v1/me/submissions", rt.listOwnSubmissions},
		{http.MethodGet, "/v1/submissions/{submissionID}", rt.getSubmission},
		{http.MethodPost, "/v1/submissions/{submissionID}/versions", rt.resubmit},
		{http.MethodGet, "/v1/submissions/{submissionID}/versions/{number}/file", rt.downloadSource},
		{http.MethodPut, "/v1/submissions/{submissionID}/versions/{number}/comment", rt.commentVersion},
		{http.MethodPost, "/v1/submissions/{submissionID}/status", rt.transition},
		{http.MethodPost, "/v1/submissions/{submissionID}/conversion", rt.retryConversion},
		{http.MethodGet, "/v1/submissions/{submissionID}/final", rt.downloadFinal},
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	for _, r := range rt.routes() {
		mux.HandleFunc(r.method+" "+r.path, withRoute(r.handler))
	}
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.maxInFlight, rt.inFlightWait)
	handler = rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "parse path", fmt.Errorf("%s must be a positive integer, got %q", name, raw))
	}
	return id, nil
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 64*1024))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode body", errors.New("invalid json"))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	noteErrorKind(r.Context(), errorKindLabel(err))
	body := map[string]string{"error": err.Error()}
	var convErr *domain.ConversionFailedError
	if errors.As(err, &convErr) && convErr.Diagnostics != "" {
		body["diagnostics"] = convErr.Diagnostics
	}
	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_error",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err.Error(),
		)
		if status == http.StatusInternalServerError {
			body = map[string]string{"error": "internal error"}
		}
	}
	writeJSON(w, status, body)
}

func contentTypeForSource(ext string) string {
	switch strings.ToLower(ext) {
	case "doc":
		return "application/msword"
	case "docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}

func attachmentHeader(filename string) string {
	value := mime.FormatMediaType("attachment", map[string]string{"filename": filename})
	if value == "" {
		return "attachment"
	}
	return value
}
