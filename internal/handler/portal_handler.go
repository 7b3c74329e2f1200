package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bulletin-api/internal/models"
	"github.com/noah-isme/bulletin-api/internal/service"
	"github.com/noah-isme/bulletin-api/pkg/response"
)

type portalService interface {
	ListForStudent(ctx context.Context, userID string, req service.BulletinListRequest) ([]models.BulletinDetail, *models.Pagination, error)
	GetForStudent(ctx context.Context, userID, id string) (*models.BulletinView, error)
	ListForParent(ctx context.Context, parentID, studentID string, req service.BulletinListRequest) ([]models.BulletinDetail, *models.Pagination, error)
	GetForParent(ctx context.Context, parentID, studentID, id string) (*models.BulletinView, error)
}

// PortalHandler serves published bulletins to students and parents.
type PortalHandler struct {
	bulletins portalService
}

// NewPortalHandler constructs PortalHandler.
func NewPortalHandler(bulletins portalService) *PortalHandler {
	return &PortalHandler{bulletins: bulletins}
}

// StudentBulletins godoc
// @Summary My published bulletins
// @Tags Student
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /student/bulletins [get]
func (h *PortalHandler) StudentBulletins(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.BulletinListRequest
	if !bindQuery(c, &req) {
		return
	}
	rows, pagination, err := h.bulletins.ListForStudent(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, pagination)
}

// StudentBulletin godoc
// @Summary One of my published bulletins
// @Tags Student
// @Produce json
// @Param id path string true "Bulletin ID"
// @Success 200 {object} response.Envelope
// @Router /student/bulletins/{id} [get]
func (h *PortalHandler) StudentBulletin(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	view, err := h.bulletins.GetForStudent(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// ChildBulletins godoc
// @Summary Published bulletins of one of my children
// @Tags Parent
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /parent/children/{studentId}/bulletins [get]
func (h *PortalHandler) ChildBulletins(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.BulletinListRequest
	if !bindQuery(c, &req) {
		return
	}
	rows, pagination, err := h.bulletins.ListForParent(c.Request.Context(), claims.UserID, c.Param("studentId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, pagination)
}

// ChildBulletin godoc
// @Summary One published bulletin of one of my children
// @Tags Parent
// @Produce json
// @Param studentId path string true "Student ID"
// @Param id path string true "Bulletin ID"
// @Success 200 {object} response.Envelope
// @Router /parent/children/{studentId}/bulletins/{id} [get]
func (h *PortalHandler) ChildBulletin(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	view, err := h.bulletins.GetForParent(c.Request.Context(), claims.UserID, c.Param("studentId"), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}
