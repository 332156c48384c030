package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	appaudits "github.com/uxnareal/audit-api/internal/application/audits"
	"github.com/uxnareal/audit-api/internal/application/screenshots"
	"github.com/uxnareal/audit-api/internal/domain/ai"
	"github.com/uxnareal/audit-api/internal/domain/auditerrors"
	domain "github.com/uxnareal/audit-api/internal/domain/audits"
	"github.com/uxnareal/audit-api/internal/middleware"
)

// AnalysisService is the analysis use-case surface the router needs.
type AnalysisService interface {
	Submit(ctx context.Context, cmd appaudits.SubmitCommand) (*domain.Record, error)
	GetStatus(ctx context.Context, userID string, id domain.ID) (*domain.StatusView, error)
	List(ctx context.Context, userID, query string, page, pageSize int) (*domain.PaginatedResult, error)
	Summary(ctx context.Context, userID string, days int) (*domain.Summary, error)
	Failures(ctx context.Context, userID string, id domain.ID) ([]*auditerrors.Entry, error)
}

// ScreenshotService stores uploaded screenshots.
type ScreenshotService interface {
	Upload(ctx context.Context, userID string, role domain.Role, f screenshots.File) (*screenshots.Uploaded, error)
}

// Options wires the router.
type Options struct {
	Analyses       AnalysisService
	Screenshots    ScreenshotService
	Verifier       middleware.TokenVerifier
	Limiter        *middleware.RateLimiter
	Health         map[string]middleware.HealthChecker
	Ready          *atomic.Bool
	AllowedOrigins []string
	RequestTimeout time.Duration
	MaxUploadBytes int64
}

type Router struct {
	analyses    AnalysisService
	screenshots ScreenshotService
	maxUpload   int64
}

func NewRouter(o Options) http.Handler {
	r := &Router{analyses: o.Analyses, screenshots: o.Screenshots, maxUpload: o.MaxUploadBytes}
	if r.maxUpload <= 0 {
		r.maxUpload = screenshots.DefaultMaxBytes
	}
	timeout := o.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	origins := o.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(chimw.RealIP)
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	mux.Get("/health", middleware.HealthHandler(o.Health))
	mux.Get("/ready", middleware.ReadinessHandler(o.Ready))
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1", func(rt chi.Router) {
		rt.Use(middleware.BearerAuth(o.Verifier))
		if o.Limiter != nil {
			rt.Use(middleware.RateLimitMiddleware(o.Limiter))
		}
		rt.Use(chimw.Timeout(timeout))

		rt.Post("/screenshots", r.wrap(r.handleUpload))
		rt.Post("/analyses", r.wrap(r.handleSubmit))
		rt.Get("/analyses", r.wrap(r.handleList))
		rt.Get("/analyses/{id}", r.wrap(r.handleGet))
		rt.Get("/analyses/{id}/failures", r.wrap(r.handleFailures))
		rt.Get("/summary", r.wrap(r.handleSummary))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			writeError(w, req, err)
		}
	}
}

// badRequest is malformed input detected by the transport itself.
type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

func writeError(w http.ResponseWriter, req *http.Request, err error) {
	var (
		ve *domain.ValidationError
		br *badRequest
		mb *http.MaxBytesError
	)
	switch {
	case errors.As(err, &ve) && ve.Code == domain.CodeTooLarge:
		middleware.JSONError(w, http.StatusRequestEntityTooLarge, ve.Error())
	case errors.As(err, &mb):
		middleware.JSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
	case errors.As(err, &ve):
		middleware.JSONError(w, http.StatusBadRequest, ve.Error())
	case errors.As(err, &br):
		middleware.JSONError(w, http.StatusBadRequest, br.msg)
	case errors.Is(err, domain.ErrEmptyPayload):
		middleware.JSONError(w, http.StatusBadRequest, "empty file")
	case errors.Is(err, domain.ErrForbidden):
		middleware.JSONError(w, http.StatusForbidden, "userId does not match the authenticated user")
	case errors.Is(err, domain.ErrNotFound):
		middleware.JSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, ai.ErrQuotaExceeded):
		middleware.JSONError(w, http.StatusTooManyRequests, "ai quota exceeded")
	default:
		zap.L().Error("request failed",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.String("request_id", chimw.GetReqID(req.Context())),
			zap.Error(err),
		)
		middleware.JSONError(w, http.StatusInternalServerError, "internal error")
	}
}

// POST /v1/screenshots (multipart: file, type)
func (r *Router) handleUpload(w http.ResponseWriter, req *http.Request) error {
	user := middleware.GetUserFromContext(req.Context())
	req.Body = http.MaxBytesReader(w, req.Body, r.maxUpload+1<<20)
	if err := req.ParseMultipartForm(1 << 20); err != nil {
		var mb *http.MaxBytesError
		if errors.As(err, &mb) || req.ContentLength > r.maxUpload+1<<20 {
			return domain.NewValidationError(domain.CodeTooLarge, "file", "upload exceeds %d bytes", r.maxUpload)
		}
		return &badRequest{msg: "invalid multipart form"}
	}
	defer func() {
		if req.MultipartForm != nil {
			_ = req.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := req.FormFile("file")
	if err != nil {
		return domain.NewValidationError(domain.CodeMissingField, "file", "is required")
	}
	defer file.Close()
	if header.Size > r.maxUpload {
		return domain.NewValidationError(domain.CodeTooLarge, "file", "%s is %d bytes, limit is %d", header.Filename, header.Size, r.maxUpload)
	}

	var role domain.Role
	if raw := req.FormValue("type"); raw != "" {
		parsed, ok := domain.ParseRole(raw)
		if !ok {
			return domain.NewValidationError(domain.CodeUnknownEnum, "type", "unknown type %q", raw)
		}
		role = parsed
	}

	data, err := io.ReadAll(io.LimitReader(file, r.maxUpload+1))
	if err != nil {
		return err
	}
	up, err := r.screenshots.Upload(req.Context(), user, role, screenshots.File{
		Name:        header.Filename,
		Size:        int64(len(data)),
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		return err
	}
	middleware.WriteJSON(w, http.StatusCreated, up)
	return nil
}

type named struct {
	Name string `json:"name"`
}

type submitBody struct {
	UserID         string `json:"userId"`
	ProjectName    string `json:"projectName"`
	ProductType    named  `json:"productType"`
	Device         named  `json:"device"`
	KeyInteraction named  `json:"keyInteraction"`
	FlowType       named  `json:"flowType"`
	Screenshots    []struct {
		URL      string `json:"url"`
		Type     string `json:"type"`
		Sequence *int   `json:"sequence"`
	} `json:"screenshots"`
}

// POST /v1/analyses
func (r *Router) handleSubmit(w http.ResponseWriter, req *http.Request) error {
	var body submitBody
	dec := json.NewDecoder(io.LimitReader(req.Body, 1<<20))
	if err := dec.Decode(&body); err != nil {
		return &badRequest{msg: "invalid JSON body"}
	}

	if body.UserID != "" {
		if err := middleware.ValidateUserID(body.UserID); err != nil {
			return domain.NewValidationError(domain.CodeInvalidFormat, "userId", "%v", err)
		}
	}
	project := middleware.SanitizeString(body.ProjectName)
	if project != "" {
		var err error
		if project, err = middleware.ValidateProjectName(project); err != nil {
			code := domain.CodeMissingField
			if errors.Is(err, middleware.ErrProjectNameTooLong) {
				code = domain.CodeTooLong
			}
			return domain.NewValidationError(code, "projectName", "%v", err)
		}
	}

	cmd := appaudits.SubmitCommand{
		AuthUserID:  middleware.GetUserFromContext(req.Context()),
		UserID:      body.UserID,
		ProjectName: project,
		Context: domain.AnalysisContext{
			ProductType:     domain.ProductType(body.ProductType.Name),
			Device:          domain.Device(body.Device.Name),
			InteractionType: middleware.SanitizeString(body.KeyInteraction.Name),
			FlowType:        middleware.SanitizeString(body.FlowType.Name),
		},
	}
	for i, s := range body.Screenshots {
		if err := middleware.ValidateScreenshotURL(s.URL); err != nil {
			return domain.NewValidationError(domain.CodeMissingField, "screenshots.url", "screenshot %d: %v", i, err)
		}
		cmd.Screenshots = append(cmd.Screenshots, appaudits.ScreenshotInput{URL: s.URL, Role: s.Type, Sequence: s.Sequence})
	}

	rec, err := r.analyses.Submit(req.Context(), cmd)
	if err != nil {
		return err
	}
	middleware.WriteJSON(w, http.StatusAccepted, rec)
	return nil
}

// GET /v1/analyses?page=&page_size=&q=
func (r *Router) handleList(w http.ResponseWriter, req *http.Request) error {
	user := middleware.GetUserFromContext(req.Context())
	page := middleware.ValidatePage(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))
	q := middleware.SanitizeString(req.URL.Query().Get("q"))

	list, err := r.analyses.List(req.Context(), user, q, page, middleware.ValidateLimit(size))
	if err != nil {
		return err
	}
	middleware.WriteJSON(w, http.StatusOK, list)
	return nil
}

// GET /v1/analyses/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id, err := analysisID(req)
	if err != nil {
		return err
	}
	view, err := r.analyses.GetStatus(req.Context(), middleware.GetUserFromContext(req.Context()), id)
	if err != nil {
		return err
	}
	middleware.WriteJSON(w, http.StatusOK, view)
	return nil
}

// GET /v1/analyses/{id}/failures
func (r *Router) handleFailures(w http.ResponseWriter, req *http.Request) error {
	id, err := analysisID(req)
	if err != nil {
		return err
	}
	entries, err := r.analyses.Failures(req.Context(), middleware.GetUserFromContext(req.Context()), id)
	if err != nil {
		return err
	}
	middleware.WriteJSON(w, http.StatusOK, entries)
	return nil
}

// GET /v1/summary?days=7
func (r *Router) handleSummary(w http.ResponseWriter, req *http.Request) error {
	days, _ := strconv.Atoi(req.URL.Query().Get("days"))

	summary, err := r.analyses.Summary(req.Context(), middleware.GetUserFromContext(req.Context()), middleware.ValidateDays(days))
	if err != nil {
		return err
	}
	middleware.WriteJSON(w, http.StatusOK, summary)
	return nil
}

func analysisID(req *http.Request) (domain.ID, error) {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateAnalysisID(id); err != nil {
		return "", &badRequest{msg: err.Error()}
	}
	return domain.ID(id), nil
}
