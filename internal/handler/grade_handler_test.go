package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/bulletin-api/internal/models"
	"github.com/noah-isme/bulletin-api/internal/service"
	appErrors "github.com/noah-isme/bulletin-api/pkg/errors"
)

type gradeServiceMock struct {
	actor service.GradeActor
}

func (m *gradeServiceMock) List(ctx context.Context, req service.GradeListRequest) ([]models.Grade, *models.Pagination, error) {
	return []models.Grade{}, &models.Pagination{Page: 1, PageSize: 50}, nil
}

func (m *gradeServiceMock) Create(ctx context.Context, req service.CreateGradeRequest, actor service.GradeActor) (*models.Grade, error) {
	m.actor = actor
	if actor.Role == models.RoleTeacher && req.SubjectID != "maths" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "subject is not assigned to this teacher")
	}
	return &models.Grade{ID: "g-1", SubjectID: req.SubjectID}, nil
}

func (m *gradeServiceMock) Update(ctx context.Context, id string, req service.UpdateGradeRequest, actor service.GradeActor) (*models.Grade, error) {
	return &models.Grade{ID: id}, nil
}

func (m *gradeServiceMock) Delete(ctx context.Context, id string, actor service.GradeActor) error {
	return nil
}

func TestGradeHandlerCreate(t *testing.T) {
	mock := &gradeServiceMock{}
	h := NewGradeHandler(mock)

	c, w := newGinContext(http.MethodPost, "/grades", []byte(`{"student_id":"s-1","subject_id":"maths","period":"trimestre_1","value":14.5}`))
	asUser(c, "t-1", models.RoleTeacher)
	h.Create(c)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, service.GradeActor{UserID: "t-1", Role: models.RoleTeacher}, mock.actor)

	c, w = newGinContext(http.MethodPost, "/grades", []byte(`{"student_id":"s-1","subject_id":"history","period":"trimestre_1","value":14.5}`))
	asUser(c, "t-1", models.RoleTeacher)
	h.Create(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGradeHandlerDelete(t *testing.T) {
	h := NewGradeHandler(&gradeServiceMock{})

	c, w := newGinContext(http.MethodDelete, "/grades/g-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "g-1"}}
	asUser(c, "admin", models.RoleAdmin)
	h.Delete(c)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
