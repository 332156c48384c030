package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appaudits "github.com/uxnareal/audit-api/internal/application/audits"
	"github.com/uxnareal/audit-api/internal/application/screenshots"
	"github.com/uxnareal/audit-api/internal/domain/ai"
	"github.com/uxnareal/audit-api/internal/domain/auditerrors"
	domain "github.com/uxnareal/audit-api/internal/domain/audits"
	"github.com/uxnareal/audit-api/internal/infra/identity"
	"github.com/uxnareal/audit-api/internal/middleware"
)

const testAnalysisID = "3f1c2a9e-6a7b-4c1d-9e2f-0a1b2c3d4e5f"

type fakeAnalyses struct {
	submitted appaudits.SubmitCommand
	submitErr error
	getErr    error
	listArgs  [4]any
	days      int
}

func (f *fakeAnalyses) Submit(_ context.Context, cmd appaudits.SubmitCommand) (*domain.Record, error) {
	f.submitted = cmd
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	if cmd.AuthUserID != cmd.UserID {
		return nil, domain.ErrForbidden
	}
	return &domain.Record{ID: testAnalysisID, UserID: cmd.UserID, Status: domain.StatusProcessing}, nil
}

func (f *fakeAnalyses) GetStatus(_ context.Context, userID string, id domain.ID) (*domain.StatusView, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if userID != "user-1" {
		return nil, domain.ErrNotFound
	}
	rec := &domain.Record{ID: id, UserID: userID, Status: domain.StatusAnalyzing}
	return &domain.StatusView{Record: rec, Progress: domain.ProgressFromStatus(rec.Status, 3)}, nil
}

func (f *fakeAnalyses) List(_ context.Context, userID, query string, page, pageSize int) (*domain.PaginatedResult, error) {
	f.listArgs = [4]any{userID, query, page, pageSize}
	return domain.NewPaginatedResult([]*domain.Record{}, page, pageSize, 0), nil
}

func (f *fakeAnalyses) Summary(_ context.Context, _ string, days int) (*domain.Summary, error) {
	f.days = days
	return &domain.Summary{Days: days, ByStatus: map[domain.Status]int{}}, nil
}

func (f *fakeAnalyses) Failures(_ context.Context, _ string, id domain.ID) ([]*auditerrors.Entry, error) {
	return []*auditerrors.Entry{{ID: 1, AnalysisID: string(id), Phase: auditerrors.PhaseAnalyze, Message: "boom"}}, nil
}

type fakeUploads struct {
	calls int
	svc   *screenshots.Service
}

func (f *fakeUploads) Upload(ctx context.Context, userID string, role domain.Role, file screenshots.File) (*screenshots.Uploaded, error) {
	f.calls++
	if err := f.svc.Validate(screenshots.File{Name: file.Name, Size: file.Size, ContentType: screenshots.DetectMIME(file.ContentType, file.Data)}); err != nil {
		return nil, err
	}
	return &screenshots.Uploaded{ID: "img-1", Key: userID + "/img-1.png", URL: "https://cdn/" + userID + "/img-1.png", Role: role, MIMEType: "image/png", Size: file.Size}, nil
}

func newTestServer(t *testing.T, a *fakeAnalyses) (*httptest.Server, *fakeUploads) {
	t.Helper()
	up := &fakeUploads{svc: &screenshots.Service{}}
	limiter := middleware.NewRateLimiter(100, 100)
	t.Cleanup(limiter.Close)
	h := NewRouter(Options{
		Analyses:       a,
		Screenshots:    up,
		Verifier:       identity.NewStatic(map[string]string{"tok-1": "user-1", "tok-2": "user-2"}),
		Limiter:        limiter,
		MaxUploadBytes: 64 << 10,
		Health: map[string]middleware.HealthChecker{
			"database": middleware.CheckFunc(func(context.Context) error { return nil }),
		},
	})
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts, up
}

func do(t *testing.T, method, url, token string, body []byte, contentType string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

const submission = `{
  "userId": "user-1",
  "projectName": "Checkout",
  "productType": {"name": "Marketplace"},
  "device": {"name": "web"},
  "keyInteraction": {"name": "Criação"},
  "flowType": {"name": "Principal / sucesso"},
  "screenshots": [
    {"url": "https://cdn/screenshots/user-1/a.png", "type": "start"},
    {"url": "https://cdn/screenshots/user-1/b.png", "type": "end", "sequence": 4}
  ]
}`

func TestSubmit_Accepted(t *testing.T) {
	a := &fakeAnalyses{}
	ts, _ := newTestServer(t, a)

	resp, body := do(t, http.MethodPost, ts.URL+"/v1/analyses", "tok-1", []byte(submission), "application/json")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "processing", body["status"])
	assert.Equal(t, testAnalysisID, body["id"])

	assert.Equal(t, "user-1", a.submitted.AuthUserID)
	assert.Equal(t, domain.ProductType("Marketplace"), a.submitted.Context.ProductType)
	assert.Equal(t, "Criação", a.submitted.Context.InteractionType)
	require.Len(t, a.submitted.Screenshots, 2)
	assert.Nil(t, a.submitted.Screenshots[0].Sequence)
	require.NotNil(t, a.submitted.Screenshots[1].Sequence)
	assert.Equal(t, 4, *a.submitted.Screenshots[1].Sequence)
}

func TestSubmit_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		body   string
		err    error
		status int
	}{
		{"no token", "", submission, nil, http.StatusUnauthorized},
		{"bad token", "nope", submission, nil, http.StatusUnauthorized},
		{"other user", "tok-2", submission, nil, http.StatusForbidden},
		{"bad json", "tok-1", `{"userId":`, nil, http.StatusBadRequest},
		{"bad url", "tok-1", strings.Replace(submission, "https://cdn/screenshots/user-1/a.png", "ftp://x/a.png", 1), nil, http.StatusBadRequest},
		{"validation", "tok-1", submission, domain.NewValidationError(domain.CodeMissingField, "device", "is required"), http.StatusBadRequest},
		{"quota", "tok-1", submission, eris.Wrap(ai.ErrQuotaExceeded, "openai"), http.StatusTooManyRequests},
		{"persistence", "tok-1", submission, &domain.PersistenceError{Op: "create", Err: eris.New("db down")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _ := newTestServer(t, &fakeAnalyses{submitErr: tt.err})
			resp, body := do(t, http.MethodPost, ts.URL+"/v1/analyses", tt.token, []byte(tt.body), "application/json")
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
			if tt.status == http.StatusInternalServerError {
				assert.Equal(t, "internal error", body["error"], "internal details stay in the logs")
			}
		})
	}
}

func TestSubmit_RejectsMalformedFields(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"user id format", strings.Replace(submission, `"userId": "user-1"`, `"userId": "user 1; drop"`, 1), string(domain.CodeInvalidFormat)},
		{"project name too long", strings.Replace(submission, `"projectName": "Checkout"`, `"projectName": "`+strings.Repeat("á", 256)+`"`, 1), string(domain.CodeTooLong)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &fakeAnalyses{}
			ts, _ := newTestServer(t, a)
			resp, body := do(t, http.MethodPost, ts.URL+"/v1/analyses", "tok-1", []byte(tt.body), "application/json")
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			msg, _ := body["error"].(string)
			assert.True(t, strings.HasPrefix(msg, tt.code), msg)
			assert.Empty(t, a.submitted.AuthUserID, "never reaches the service")
		})
	}

	a := &fakeAnalyses{}
	ts, _ := newTestServer(t, a)
	body := strings.Replace(submission, `"projectName": "Checkout"`, `"projectName": "`+strings.Repeat("á", 255)+`"`, 1)
	resp, _ := do(t, http.MethodPost, ts.URL+"/v1/analyses", "tok-1", []byte(body), "application/json")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, strings.Repeat("á", 255), a.submitted.ProjectName)
}

func TestGetAnalysis(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAnalyses{})

	resp, body := do(t, http.MethodGet, ts.URL+"/v1/analyses/"+testAnalysisID, "tok-1", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "analyzing", body["status"])
	progress, ok := body["progress"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "analyze", progress["step"])

	resp, _ = do(t, http.MethodGet, ts.URL+"/v1/analyses/"+testAnalysisID, "tok-2", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, ts.URL+"/v1/analyses/not-a-uuid", "tok-1", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListSummaryFailures(t *testing.T) {
	a := &fakeAnalyses{}
	ts, _ := newTestServer(t, a)

	resp, _ := do(t, http.MethodGet, ts.URL+"/v1/analyses?page=2&page_size=500", "tok-1", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, [4]any{"user-1", "", 2, 100}, a.listArgs)

	resp, _ = do(t, http.MethodGet, ts.URL+"/v1/analyses?q=%20Check%00out%20", "tok-1", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, [4]any{"user-1", "Checkout", 1, 20}, a.listArgs)

	resp, body := do(t, http.MethodGet, ts.URL+"/v1/summary", "tok-1", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 7, a.days)
	assert.EqualValues(t, 7, body["days"])

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/analyses/"+testAnalysisID+"/failures", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	var entries []auditerrors.Entry
	require.NoError(t, json.NewDecoder(res.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, testAnalysisID, entries[0].AnalysisID)
}

func multipartBody(t *testing.T, role string, data []byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if role != "" {
		require.NoError(t, mw.WriteField("type", role))
	}
	fw, err := mw.CreateFormFile("file", "shot.png")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{1}, 128)...)

	t.Run("created", func(t *testing.T) {
		ts, up := newTestServer(t, &fakeAnalyses{})
		body, ct := multipartBody(t, "start", png)
		resp, out := do(t, http.MethodPost, ts.URL+"/v1/screenshots", "tok-1", body, ct)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, "user-1/img-1.png", out["key"])
		assert.Equal(t, "start", out["type"])
		assert.Equal(t, 1, up.calls)
	})

	t.Run("unknown type", func(t *testing.T) {
		ts, up := newTestServer(t, &fakeAnalyses{})
		body, ct := multipartBody(t, "middle", png)
		resp, _ := do(t, http.MethodPost, ts.URL+"/v1/screenshots", "tok-1", body, ct)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Zero(t, up.calls)
	})

	t.Run("too large", func(t *testing.T) {
		ts, up := newTestServer(t, &fakeAnalyses{})
		big := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, bytes.Repeat([]byte{0}, 100<<10)...)
		body, ct := multipartBody(t, "end", big)
		resp, _ := do(t, http.MethodPost, ts.URL+"/v1/screenshots", "tok-1", body, ct)
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
		assert.Zero(t, up.calls)
	})

	t.Run("missing file", func(t *testing.T) {
		ts, _ := newTestServer(t, &fakeAnalyses{})
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("type", "start"))
		require.NoError(t, mw.Close())
		resp, _ := do(t, http.MethodPost, ts.URL+"/v1/screenshots", "tok-1", buf.Bytes(), mw.FormDataContentType())
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestOpsEndpoints(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAnalyses{})

	resp, body := do(t, http.MethodGet, ts.URL+"/health", "", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])

	resp, body = do(t, http.MethodGet, ts.URL+"/metrics", "", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "analyses_total")

	resp, _ = do(t, http.MethodGet, ts.URL+"/live", "", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
