package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clinic-rota-api/internal/dto"
	"github.com/noah-isme/clinic-rota-api/internal/middleware"
	"github.com/noah-isme/clinic-rota-api/internal/models"
	appErrors "github.com/noah-isme/clinic-rota-api/pkg/errors"
)

type fakeRotaSrv struct {
	createResp  *dto.RunResponse
	createErr   error
	createdBy   *string
	captured    dto.CreateRunRequest
	statusResp  *dto.RunStatusResponse
	statusErr   error
	resultResp  *dto.RunResultResponse
	resultHit   bool
	resultErr   error
	listItems   []dto.RunStatusResponse
	listTotal   int
	listErr     error
	listStatus  string
	listPage    int
	listPerPage int
	previewResp *dto.PreviewResponse
	previewErr  error
}

func (f *fakeRotaSrv) CreateRun(_ context.Context, req dto.CreateRunRequest, createdBy *string) (*dto.RunResponse, error) {
	f.captured = req
	f.createdBy = createdBy
	return f.createResp, f.createErr
}

func (f *fakeRotaSrv) GetStatus(context.Context, string) (*dto.RunStatusResponse, error) {
	return f.statusResp, f.statusErr
}

func (f *fakeRotaSrv) GetResult(context.Context, string) (*dto.RunResultResponse, bool, error) {
	return f.resultResp, f.resultHit, f.resultErr
}

func (f *fakeRotaSrv) List(_ context.Context, status string, page, perPage int) ([]dto.RunStatusResponse, int, error) {
	f.listStatus = status
	f.listPage = page
	f.listPerPage = perPage
	return f.listItems, f.listTotal, f.listErr
}

func (f *fakeRotaSrv) Preview([]models.Person) (*dto.PreviewResponse, error) {
	return f.previewResp, f.previewErr
}

func (f *fakeRotaSrv) Defaults() *dto.DefaultsResponse {
	return &dto.DefaultsResponse{Levels: models.Levels()}
}

type fakeRosterValidator struct {
	verdict dto.ValidateRosterResponse
	field   dto.ValidateFieldResponse
}

func (f *fakeRosterValidator) ValidateRoster([]models.Person) dto.ValidateRosterResponse {
	return f.verdict
}

func (f *fakeRosterValidator) ValidateField(string, string, string) dto.ValidateFieldResponse {
	return f.field
}

func validRunPayload() []byte {
	return []byte(`{"personnel":[{"id":"a1","level":"R1","rotation_unit":"health"}],"week_label":"W1"}`)
}

func TestRotaHandlerCreateRunAccepted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeRotaSrv{createResp: &dto.RunResponse{ID: "run-1", Status: models.RotaJobStatusQueued}}
	handler := &RotaHandler{service: srv}

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/schedule/runs", bytes.NewReader(validRunPayload()))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.CreateRun(c)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "W1", srv.captured.WeekLabel)
	assert.Nil(t, srv.createdBy)
}

func TestRotaHandlerCreateRunReused(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeRotaSrv{createResp: &dto.RunResponse{ID: "run-1", Status: models.RotaJobStatusFinished, Reused: true}}
	handler := &RotaHandler{service: srv}

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/schedule/runs", bytes.NewReader(validRunPayload()))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.CreateRun(c)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRotaHandlerCreateRunRecordsCreator(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeRotaSrv{createResp: &dto.RunResponse{ID: "run-1"}}
	handler := &RotaHandler{service: srv}

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/schedule/runs", bytes.NewReader(validRunPayload()))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set(middleware.ContextUserKey, &models.JWTClaims{Email: "admin@clinic.test", Role: models.RoleAdmin})

	handler.CreateRun(c)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NotNil(t, srv.createdBy)
	assert.Equal(t, "admin@clinic.test", *srv.createdBy)
}

func TestRotaHandlerCreateRunMalformedJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := &RotaHandler{service: &fakeRotaSrv{}}

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/schedule/runs", bytes.NewReader([]byte(`{"personnel":`)))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.CreateRun(c)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRotaHandlerCreateRunRosterTooLarge(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := &RotaHandler{service: &fakeRotaSrv{}}

	people := make([]map[string]string, maxRosterSize+1)
	for i := range people {
		people[i] = map[string]string{"id": "p", "level": "R1", "rotation_unit": "health"}
	}
	payload, err := json.Marshal(map[string]interface{}{"personnel": people})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/schedule/runs", bytes.NewReader(payload))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.CreateRun(c)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRotaHandlerListRuns(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeRotaSrv{
		listItems: []dto.RunStatusResponse{{ID: "run-1"}, {ID: "run-2"}},
		listTotal: 12,
	}
	handler := &RotaHandler{service: srv}

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/schedule/runs?status=finished&page=2&perPage=5", nil)

	handler.ListRuns(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "finished", srv.listStatus)
	assert.Equal(t, 2, srv.listPage)
	assert.Equal(t, 5, srv.listPerPage)

	var envelope struct {
		Pagination *models.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Pagination)
	assert.Equal(t, 12, envelope.Pagination.TotalCount)
	assert.Equal(t, 2, envelope.Pagination.Page)
}

func TestRotaHandlerGetRunNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := &RotaHandler{service: &fakeRotaSrv{statusErr: appErrors.ErrNotFound}}

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/schedule/runs/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.GetRun(c)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRotaHandlerGetRunResultMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeRotaSrv{
		resultResp: &dto.RunResultResponse{ID: "run-1", Status: models.RotaJobStatusFinished},
		resultHit:  true,
	}
	handler := &RotaHandler{service: srv}

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/schedule/runs/run-1/result", nil)
	c.Params = gin.Params{{Key: "id", Value: "run-1"}}

	handler.GetRunResult(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, true, envelope.Meta["cache_hit"])
	assert.Contains(t, envelope.Meta, "processing_time_ms")
	assert.Equal(t, "run-1", envelope.Data["id"])
}

func TestRotaHandlerGetRunResultNotFinished(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := &RotaHandler{service: &fakeRotaSrv{resultErr: appErrors.ErrJobNotFinished}}

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/schedule/runs/run-1/result", nil)
	c.Params = gin.Params{{Key: "id", Value: "run-1"}}

	handler.GetRunResult(c)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestRotaHandlerPreviewInfeasible(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := &RotaHandler{service: &fakeRotaSrv{previewErr: appErrors.ErrInfeasibleRoster}}

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/schedule/preview", bytes.NewReader(validRunPayload()))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Preview(c)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRotaHandlerValidateRoster(t *testing.T) {
	gin.SetMode(gin.TestMode)
	validator := &fakeRosterValidator{
		verdict: dto.ValidateRosterResponse{Valid: false, Errors: []string{"invalid R2 count: must be between 4 and 8"}, Difficulty: 35},
	}
	handler := &RotaHandler{service: &fakeRotaSrv{}, validator: validator}

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/schedule/validate", bytes.NewReader(validRunPayload()))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.ValidateRoster(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, false, envelope.Data["valid"])
	assert.Equal(t, float64(35), envelope.Data["difficulty"])
}

func TestRotaHandlerValidateField(t *testing.T) {
	gin.SetMode(gin.TestMode)
	validator := &fakeRosterValidator{field: dto.ValidateFieldResponse{Valid: true}}
	handler := &RotaHandler{service: &fakeRotaSrv{}, validator: validator}

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/schedule/validate-field", bytes.NewReader([]byte(`{"level":"R1","field":"rotation_unit","value":"health"}`)))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.ValidateField(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, true, envelope.Data["valid"])
}

func TestRotaHandlerDefaults(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := &RotaHandler{service: &fakeRotaSrv{}}

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/schedule/defaults", nil)

	handler.Defaults(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Contains(t, envelope.Data, "levels")
}

type responseEnvelope struct {
	Data map[string]interface{} `json:"data"`
	Meta map[string]interface{} `json:"meta"`
}
