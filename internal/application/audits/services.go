package audits

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/uxnareal/audit-api/internal/application"
	"github.com/uxnareal/audit-api/internal/domain/ai"
	"github.com/uxnareal/audit-api/internal/domain/auditerrors"
	domain "github.com/uxnareal/audit-api/internal/domain/audits"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	defaultDays     = 7
	maxDays         = 365
	failureLimit    = 50
)

// Recorder receives pipeline lifecycle events, e.g. for metrics.
type Recorder interface {
	AnalysisStarted()
	AnalysisFinished(status domain.Status)
}

type nopRecorder struct{}

func (nopRecorder) AnalysisStarted() {}
func (nopRecorder) AnalysisFinished(domain.Status) {}

// Service implements the analysis use-cases: submit, background pipeline and
// the read side. Safe for concurrent use.
type Service struct {
	Repo       domain.Repository
	FailureLog auditerrors.Repository
	Ingest     domain.Ingestor
	Composer   domain.Composer
	Analyzer   domain.Analyzer
	Clock      application.Clock
	Metrics    Recorder
	NewID      func() string

	once     sync.Once
	progress *tracker
	wg       sync.WaitGroup
}

func (s *Service) init() {
	s.once.Do(func() {
		s.progress = newTracker()
		if s.Clock == nil {
			s.Clock = application.SystemClock{}
		}
		if s.Metrics == nil {
			s.Metrics = nopRecorder{}
		}
		if s.NewID == nil {
			s.NewID = uuid.NewString
		}
	})
}

//
// ==== USE CASES ====
//

// ScreenshotInput is one screenshot reference of a submission.
type ScreenshotInput struct {
	URL  string
	Role string
	// Sequence defaults to the position in the submitted list.
	Sequence *int
}

// SubmitCommand untuk start analysis
type SubmitCommand struct {
	// AuthUserID is the verified caller; empty skips the ownership check.
	AuthUserID  string
	UserID      string
	ProjectName string
	Context     domain.AnalysisContext
	Screenshots []ScreenshotInput
}

// Submit validates the request, persists a processing record and starts the
// pipeline in the background. The pipeline outlives ctx.
func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (*domain.Record, error) {
	s.init()

	if strings.TrimSpace(cmd.UserID) == "" {
		return nil, domain.NewValidationError(domain.CodeMissingField, "userId", "is required")
	}
	if strings.TrimSpace(cmd.ProjectName) == "" {
		return nil, domain.NewValidationError(domain.CodeMissingField, "projectName", "is required")
	}
	actx, err := domain.Validate(cmd.Context)
	if err != nil {
		return nil, err
	}
	if cmd.AuthUserID != "" && cmd.AuthUserID != cmd.UserID {
		return nil, domain.ErrForbidden
	}

	now := s.Clock.Now()
	rec := &domain.Record{
		ID:          domain.ID(s.NewID()),
		UserID:      cmd.UserID,
		ProjectName: strings.TrimSpace(cmd.ProjectName),
		Context:     actx,
		Screenshots: toScreenshots(cmd.Screenshots, s.NewID),
		Status:      domain.StatusProcessing,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Repo.Create(ctx, rec); err != nil {
		return nil, &domain.PersistenceError{Op: "create", Err: err}
	}

	s.Metrics.AnalysisStarted()
	s.progress.set(rec.ID, domain.Progress{Step: domain.StepUpload, ImagesTotal: len(rec.Screenshots)})

	s.wg.Add(1)
	go s.run(context.WithoutCancel(ctx), rec)

	zap.L().Info("analysis submitted",
		zap.String("analysis_id", string(rec.ID)),
		zap.String("user_id", rec.UserID),
		zap.Int("screenshots", len(rec.Screenshots)),
	)
	return rec, nil
}

func toScreenshots(in []ScreenshotInput, newID func() string) []domain.Screenshot {
	out := make([]domain.Screenshot, len(in))
	for i, sh := range in {
		role, ok := domain.ParseRole(sh.Role)
		if !ok {
			role = domain.Role(strings.TrimSpace(sh.Role))
		}
		seq := i
		if sh.Sequence != nil {
			seq = *sh.Sequence
		}
		out[i] = domain.Screenshot{
			ID:       newID(),
			URL:      strings.TrimSpace(sh.URL),
			Sequence: seq,
			Role:     role,
		}
	}
	return out
}

// run drives one record to a terminal state. rec is only read.
func (s *Service) run(ctx context.Context, rec *domain.Record) {
	defer s.wg.Done()
	defer s.progress.forget(rec.ID)

	log := zap.L().With(zap.String("analysis_id", string(rec.ID)))
	shots := domain.SortBySequence(rec.Screenshots)
	total := len(shots)

	// ingestion
	if err := domain.ValidateScreenshots(shots); err != nil {
		s.fail(ctx, rec, auditerrors.PhaseIngest, err)
		return
	}
	s.progress.set(rec.ID, fetchProgress(0, total))
	images, err := s.Ingest.FetchAll(ctx, shots, func(done, total int) {
		s.progress.set(rec.ID, fetchProgress(done, total))
	})
	if err != nil {
		s.fail(ctx, rec, auditerrors.PhaseIngest, err)
		return
	}
	if err := s.Repo.Transition(ctx, rec.ID, domain.StatusAnalyzing, nil, s.Clock.Now()); err != nil {
		s.fail(ctx, rec, auditerrors.PhasePersist, &domain.PersistenceError{Op: "transition analyzing", Err: err})
		return
	}
	log.Info("analysis ingested", zap.Int("images", total))
	s.progress.set(rec.ID, domain.Progress{Step: domain.StepAnalyze, Percent: 60, ImagesDone: total, ImagesTotal: total})

	// analysis
	prompt, err := s.Composer.Compose(rec.Context)
	if err != nil {
		s.fail(ctx, rec, auditerrors.PhaseAnalyze, err)
		return
	}
	for i := range images {
		images[i].Caption = s.Composer.ImageCaption(images[i].Sequence, images[i].Role)
	}
	result, err := s.Analyzer.Invoke(ctx, prompt, images)
	if err != nil {
		s.fail(ctx, rec, auditerrors.PhaseAnalyze, err)
		return
	}
	s.progress.set(rec.ID, domain.Progress{Step: domain.StepGenerate, Percent: 90, ImagesDone: total, ImagesTotal: total})

	if err := result.Align(shots); err != nil {
		s.fail(ctx, rec, auditerrors.PhaseAnalyze, &domain.AnalysisError{Reason: domain.ReasonMalformedResult, Err: err})
		return
	}
	now := s.Clock.Now()
	result.Metadata = domain.Metadata{
		Timestamp:        now.UTC().Format(time.RFC3339),
		FrameworkVersion: domain.FrameworkVersion,
		AnalysisContext:  domain.NewResultContext(rec.Context),
	}
	if err := s.Repo.Transition(ctx, rec.ID, domain.StatusCompleted, result, now); err != nil {
		s.fail(ctx, rec, auditerrors.PhasePersist, &domain.PersistenceError{Op: "transition completed", Err: err})
		return
	}

	s.Metrics.AnalysisFinished(domain.StatusCompleted)
	counts := result.CountSeverities()
	log.Info("analysis completed",
		zap.Float64("overall", result.Scores.Overall.Score),
		zap.Int("violations", counts.Total),
		zap.Int("critical", counts.Critical),
	)
}

// fail marks the record failed and keeps the detailed cause as a failure entry.
func (s *Service) fail(ctx context.Context, rec *domain.Record, phase auditerrors.Phase, cause error) {
	log := zap.L().With(zap.String("analysis_id", string(rec.ID)), zap.String("phase", string(phase)))
	log.Error("analysis failed", zap.Error(cause))

	now := s.Clock.Now()
	if err := s.Repo.Transition(ctx, rec.ID, domain.StatusFailed, nil, now); err != nil {
		log.Error("mark analysis failed", zap.Error(err))
	}
	if s.FailureLog != nil {
		entry := &auditerrors.Entry{
			UserID:      rec.UserID,
			AnalysisID:  string(rec.ID),
			Phase:       phase,
			Message:     cause.Error(),
			DetailsJSON: failureDetails(cause),
			CreatedAt:   now,
		}
		if err := s.FailureLog.Save(ctx, entry); err != nil {
			log.Warn("save failure entry", zap.Error(err))
		}
	}
	s.Metrics.AnalysisFinished(domain.StatusFailed)
}

func failureDetails(err error) string {
	d := map[string]any{}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		d["code"] = ve.Code
		d["field"] = ve.Field
	}
	var fe *domain.FetchError
	if errors.As(err, &fe) {
		d["url"] = fe.URL
		d["attempts"] = fe.Attempts
	}
	for _, reason := range []domain.AnalysisReason{domain.ReasonTransport, domain.ReasonEmptyResponse, domain.ReasonMalformedResult} {
		if domain.IsAnalysis(err, reason) {
			d["reason"] = reason
			break
		}
	}
	if errors.Is(err, ai.ErrQuotaExceeded) {
		d["quota_exceeded"] = true
	}
	if len(d) == 0 {
		return ""
	}
	b, err := json.Marshal(d)
	if err != nil {
		return ""
	}
	return string(b)
}

// GetStatus returns the record of userID with its progress. Records of other
// users are reported as not found.
func (s *Service) GetStatus(ctx context.Context, userID string, id domain.ID) (*domain.StatusView, error) {
	s.init()
	rec, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	progress := domain.ProgressFromStatus(rec.Status, len(rec.Screenshots))
	if !rec.Status.Terminal() {
		if p, ok := s.progress.get(rec.ID); ok {
			progress = p
		}
	}
	return &domain.StatusView{Record: rec, Progress: progress}, nil
}

func (s *Service) owned(ctx context.Context, userID string, id domain.ID) (*domain.Record, error) {
	rec, err := s.Repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, &domain.PersistenceError{Op: "get", Err: err}
	}
	if rec == nil || rec.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return rec, nil
}

// List ambil analyses milik user, newest first
func (s *Service) List(ctx context.Context, userID, query string, page, pageSize int) (*domain.PaginatedResult, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	recs, total, err := s.Repo.Paginate(ctx, userID, strings.TrimSpace(query), page, pageSize)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "paginate", Err: err}
	}
	return domain.NewPaginatedResult(recs, page, pageSize, total), nil
}

// Summary rekap analyses N hari terakhir
func (s *Service) Summary(ctx context.Context, userID string, days int) (*domain.Summary, error) {
	s.init()
	if days < 1 {
		days = defaultDays
	}
	if days > maxDays {
		days = maxDays
	}
	since := s.Clock.Now().Add(-time.Duration(days) * 24 * time.Hour)
	recs, err := s.Repo.Since(ctx, userID, since)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "since", Err: err}
	}

	sum := &domain.Summary{
		Days: days,
		ByStatus: map[domain.Status]int{
			domain.StatusProcessing: 0,
			domain.StatusAnalyzing:  0,
			domain.StatusCompleted:  0,
			domain.StatusFailed:     0,
		},
	}
	for _, r := range recs {
		sum.Total++
		sum.ByStatus[r.Status]++
		if r.Result == nil {
			continue
		}
		c := r.Result.CountSeverities()
		sum.Violations.Critical += c.Critical
		sum.Violations.High += c.High
		sum.Violations.Medium += c.Medium
		sum.Violations.Low += c.Low
		sum.Violations.Total += c.Total
	}
	return sum, nil
}

// Failures lists why an analysis of userID failed.
func (s *Service) Failures(ctx context.Context, userID string, id domain.ID) ([]*auditerrors.Entry, error) {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return nil, err
	}
	if s.FailureLog == nil {
		return []*auditerrors.Entry{}, nil
	}
	entries, err := s.FailureLog.ListByAnalysis(ctx, userID, string(id), failureLimit)
	if err != nil {
		return nil, eris.Wrapf(err, "list failures of %s", id)
	}
	return entries, nil
}

// Wait blocks until every started pipeline has reached a terminal state.
func (s *Service) Wait() {
	s.wg.Wait()
}
