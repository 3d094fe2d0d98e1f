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

	"github.com/noah-isme/clinic-rota-api/internal/models"
	appErrors "github.com/noah-isme/clinic-rota-api/pkg/errors"
)

type fakeRulesManager struct {
	doc        models.RulesDocument
	replaceErr error
	replaced   *models.RulesDocument
}

func (f *fakeRulesManager) Document() models.RulesDocument {
	return f.doc
}

func (f *fakeRulesManager) Replace(doc models.RulesDocument) (models.RulesDocument, error) {
	if f.replaceErr != nil {
		return models.RulesDocument{}, f.replaceErr
	}
	f.replaced = &doc
	return doc, nil
}

type fakeInvalidator struct {
	calls int
}

func (f *fakeInvalidator) InvalidateDedup(context.Context) {
	f.calls++
}

func rulesFixture() models.RulesDocument {
	return models.RulesDocument{
		UnitConstraints: map[string]models.UnitConstraint{
			"health": {MinClinics: 0, MaxClinics: 2, AllowHealthCheck: true},
		},
		GeneralRules: models.GeneralRules{MaxClinicsPerDay: 2, MaxClinicsPerWeek: 8},
	}
}

func TestRulesHandlerGet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := &RulesHandler{rules: &fakeRulesManager{doc: rulesFixture()}}

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/rules", nil)

	handler.Get(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Contains(t, envelope.Data, "unit_constraints")
}

func TestRulesHandlerReplace(t *testing.T) {
	gin.SetMode(gin.TestMode)
	manager := &fakeRulesManager{}
	invalidator := &fakeInvalidator{}
	handler := &RulesHandler{rules: manager, runs: invalidator}

	payload, err := json.Marshal(rulesFixture())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPut, "/rules", bytes.NewReader(payload))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Replace(c)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, manager.replaced)
	assert.Equal(t, 1, invalidator.calls)
}

func TestRulesHandlerReplaceRejected(t *testing.T) {
	gin.SetMode(gin.TestMode)
	manager := &fakeRulesManager{replaceErr: appErrors.Clone(appErrors.ErrValidation, "unknown rotation unit \"cardiology\"")}
	invalidator := &fakeInvalidator{}
	handler := &RulesHandler{rules: manager, runs: invalidator}

	payload, err := json.Marshal(rulesFixture())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPut, "/rules", bytes.NewReader(payload))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Replace(c)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, invalidator.calls, "rejected replace must not invalidate dedup")
}

func TestRulesHandlerReplaceMalformed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := &RulesHandler{rules: &fakeRulesManager{}, runs: &fakeInvalidator{}}

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPut, "/rules", bytes.NewReader([]byte(`{"unit_constraints":`)))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Replace(c)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
