package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bulletin-api/internal/models"
	"github.com/noah-isme/bulletin-api/internal/service"
	appErrors "github.com/noah-isme/bulletin-api/pkg/errors"
)

type bulletinServiceMock struct {
	createErr   error
	publishRes  *service.PublishResult
	publishedBy string
	bulkRes     *service.BulkResult
	bulkErr     error
	board       *service.RankingBoard
	scope       models.RankScope
}

func (m *bulletinServiceMock) Create(ctx context.Context, req service.CreateBulletinRequest) (*models.Bulletin, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &models.Bulletin{ID: "b-1", StudentID: req.StudentID, Period: req.Period, SchoolYear: req.SchoolYear}, nil
}

func (m *bulletinServiceMock) Get(ctx context.Context, id string) (*models.BulletinView, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "bulletin not found")
}

func (m *bulletinServiceMock) List(ctx context.Context, req service.BulletinListRequest) ([]models.BulletinDetail, *models.Pagination, error) {
	return []models.BulletinDetail{}, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func (m *bulletinServiceMock) Update(ctx context.Context, id string, req service.UpdateBulletinRequest) (*models.Bulletin, error) {
	return &models.Bulletin{ID: id}, nil
}

func (m *bulletinServiceMock) Delete(ctx context.Context, id string) error {
	return nil
}

func (m *bulletinServiceMock) Publish(ctx context.Context, id, actorID string) (*service.PublishResult, error) {
	m.publishedBy = actorID
	return m.publishRes, nil
}

func (m *bulletinServiceMock) GenerateBulk(ctx context.Context, req service.GenerateBulkRequest, actorID string) (*service.BulkResult, error) {
	return m.bulkRes, m.bulkErr
}

func (m *bulletinServiceMock) RecalculateRanks(ctx context.Context, scope models.RankScope) (*service.RecalculateResult, error) {
	m.scope = scope
	return &service.RecalculateResult{Scope: scope}, nil
}

func (m *bulletinServiceMock) Ranking(ctx context.Context, scope models.RankScope) (*service.RankingBoard, error) {
	m.scope = scope
	return m.board, nil
}

type exporterMock struct{}

func (exporterMock) RequestPDF(ctx context.Context, id string) (*service.PDFRequest, error) {
	return &service.PDFRequest{BulletinID: id, Status: "queued"}, nil
}

func (exporterMock) PDFLink(ctx context.Context, id string) (*service.DownloadLink, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "pdf has not been rendered yet")
}

func (exporterMock) RankingCSV(board *service.RankingBoard) ([]byte, error) {
	return []byte("Rang;Élève\n1;Alice\n"), nil
}

func decodeEnvelope(t *testing.T, body []byte) map[string]interface{} {
	t.Helper()
	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &env))
	return env
}

func TestBulletinHandlerCreate(t *testing.T) {
	h := NewBulletinHandler(&bulletinServiceMock{}, nil)
	c, w := newGinContext(http.MethodPost, "/bulletins", []byte(`{"student_id":"s-1","period":"trimestre_1","school_year":"2025-2026"}`))

	h.Create(c)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestBulletinHandlerCreateMapsErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{appErrors.Clone(appErrors.ErrConflict, "bulletin already exists"), http.StatusConflict},
		{appErrors.ErrNoGrades, http.StatusPreconditionFailed},
		{appErrors.ErrScopeBusy, http.StatusLocked},
		{appErrors.Clone(appErrors.ErrNotFound, "student not found"), http.StatusNotFound},
	}
	for _, tc := range cases {
		h := NewBulletinHandler(&bulletinServiceMock{createErr: tc.err}, nil)
		c, w := newGinContext(http.MethodPost, "/bulletins", []byte(`{"student_id":"s-1","period":"trimestre_1","school_year":"2025-2026"}`))
		h.Create(c)
		assert.Equal(t, tc.status, w.Code, tc.err.Error())
	}
}

func TestBulletinHandlerCreateRejectsMalformedBody(t *testing.T) {
	h := NewBulletinHandler(&bulletinServiceMock{}, nil)
	c, w := newGinContext(http.MethodPost, "/bulletins", []byte(`{"student_id":`))

	h.Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBulletinHandlerPublish(t *testing.T) {
	mock := &bulletinServiceMock{publishRes: &service.PublishResult{
		Bulletin:   models.Bulletin{ID: "b-1", Published: true},
		Deliveries: []service.Delivery{{Recipient: service.RecipientStudent, Delivered: true}, {Recipient: service.RecipientParent, Error: "smtp down"}},
	}}
	h := NewBulletinHandler(mock, nil)

	c, w := newGinContext(http.MethodPost, "/bulletins/b-1/publish", nil)
	c.Params = gin.Params{{Key: "id", Value: "b-1"}}
	asUser(c, "admin-1", models.RoleAdmin)
	h.Publish(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin-1", mock.publishedBy)
	data := decodeEnvelope(t, w.Body.Bytes())["data"].(map[string]interface{})
	assert.Len(t, data["deliveries"], 2)
}

func TestBulletinHandlerPublishRequiresUser(t *testing.T) {
	h := NewBulletinHandler(&bulletinServiceMock{}, nil)
	c, w := newGinContext(http.MethodPost, "/bulletins/b-1/publish", nil)

	h.Publish(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBulletinHandlerGenerateBulk(t *testing.T) {
	mock := &bulletinServiceMock{bulkRes: &service.BulkResult{CreatedCount: 2, Errors: []string{"no grades found for Emile"}}}
	h := NewBulletinHandler(mock, nil)

	c, w := newGinContext(http.MethodPost, "/bulletins/generate-bulk", []byte(`{"class_id":"c-1","period":"trimestre_1","school_year":"2025-2026"}`))
	asUser(c, "admin-1", models.RoleAdmin)
	h.GenerateBulk(c)

	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w.Body.Bytes())
	assert.Equal(t, "2 bulletin(s) generated", env["meta"].(map[string]interface{})["message"])
}

func TestBulletinHandlerRankingFormats(t *testing.T) {
	mock := &bulletinServiceMock{board: &service.RankingBoard{TotalStudents: 1}}
	h := NewBulletinHandler(mock, exporterMock{})

	c, w := newGinContext(http.MethodGet, "/bulletins/ranking?class_id=c-1&period=trimestre_2&school_year=2025-2026", nil)
	h.Ranking(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.PeriodTerm2, mock.scope.Period)

	c, w = newGinContext(http.MethodGet, "/bulletins/ranking?class_id=c-1&period=trimestre_2&school_year=2025-2026&format=csv", nil)
	h.Ranking(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/csv"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "classement_c-1_trimestre_2_2025-2026.csv")
}

func TestBulletinHandlerPDF(t *testing.T) {
	h := NewBulletinHandler(&bulletinServiceMock{}, exporterMock{})

	c, w := newGinContext(http.MethodPost, "/bulletins/b-1/pdf", nil)
	c.Params = gin.Params{{Key: "id", Value: "b-1"}}
	h.RequestPDF(c)
	assert.Equal(t, http.StatusAccepted, w.Code)

	c, w = newGinContext(http.MethodGet, "/bulletins/b-1/pdf", nil)
	c.Params = gin.Params{{Key: "id", Value: "b-1"}}
	h.PDFLink(c)
	assert.Equal(t, http.StatusNotFound, w.Code)

	disabled := NewBulletinHandler(&bulletinServiceMock{}, nil)
	c, w = newGinContext(http.MethodPost, "/bulletins/b-1/pdf", nil)
	disabled.RequestPDF(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
