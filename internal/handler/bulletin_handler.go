package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bulletin-api/internal/models"
	"github.com/noah-isme/bulletin-api/internal/service"
	appErrors "github.com/noah-isme/bulletin-api/pkg/errors"
	"github.com/noah-isme/bulletin-api/pkg/response"
)

type bulletinService interface {
	Create(ctx context.Context, req service.CreateBulletinRequest) (*models.Bulletin, error)
	Get(ctx context.Context, id string) (*models.BulletinView, error)
	List(ctx context.Context, req service.BulletinListRequest) ([]models.BulletinDetail, *models.Pagination, error)
	Update(ctx context.Context, id string, req service.UpdateBulletinRequest) (*models.Bulletin, error)
	Delete(ctx context.Context, id string) error
	Publish(ctx context.Context, id, actorID string) (*service.PublishResult, error)
	GenerateBulk(ctx context.Context, req service.GenerateBulkRequest, actorID string) (*service.BulkResult, error)
	RecalculateRanks(ctx context.Context, scope models.RankScope) (*service.RecalculateResult, error)
	Ranking(ctx context.Context, scope models.RankScope) (*service.RankingBoard, error)
}

type bulletinExporter interface {
	RequestPDF(ctx context.Context, id string) (*service.PDFRequest, error)
	PDFLink(ctx context.Context, id string) (*service.DownloadLink, error)
	RankingCSV(board *service.RankingBoard) ([]byte, error)
}

// rankingQuery selects a ranking scope from query parameters.
type rankingQuery struct {
	ClassID    string `form:"class_id"`
	Period     string `form:"period"`
	SchoolYear string `form:"school_year"`
	Format     string `form:"format"`
}

// BulletinHandler exposes the staff bulletin endpoints.
type BulletinHandler struct {
	bulletins bulletinService
	exports   bulletinExporter
}

// NewBulletinHandler constructs BulletinHandler. exports may be nil when PDF
// rendering is disabled.
func NewBulletinHandler(bulletins bulletinService, exports bulletinExporter) *BulletinHandler {
	return &BulletinHandler{bulletins: bulletins, exports: exports}
}

// List godoc
// @Summary List bulletins
// @Tags Bulletins
// @Produce json
// @Param class_id query string false "Class"
// @Param student_id query string false "Student"
// @Param period query string false "Period"
// @Param school_year query string false "School year"
// @Param published query bool false "Published flag"
// @Param search query string false "Student name or enrollment number"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /bulletins [get]
func (h *BulletinHandler) List(c *gin.Context) {
	var req service.BulletinListRequest
	if !bindQuery(c, &req) {
		return
	}
	rows, pagination, err := h.bulletins.List(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, pagination)
}

// Create godoc
// @Summary Create a draft bulletin
// @Description Computes average, mention and a provisional rank from the student's grades.
// @Tags Bulletins
// @Accept json
// @Produce json
// @Param payload body service.CreateBulletinRequest true "Bulletin payload"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /bulletins [post]
func (h *BulletinHandler) Create(c *gin.Context) {
	var req service.CreateBulletinRequest
	if !bindJSON(c, &req) {
		return
	}
	card, err := h.bulletins.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, card)
}

// Get godoc
// @Summary Get a bulletin with its subject breakdown
// @Tags Bulletins
// @Produce json
// @Param id path string true "Bulletin ID"
// @Success 200 {object} response.Envelope
// @Router /bulletins/{id} [get]
func (h *BulletinHandler) Get(c *gin.Context) {
	view, err := h.bulletins.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Update godoc
// @Summary Edit a bulletin
// @Tags Bulletins
// @Accept json
// @Produce json
// @Param id path string true "Bulletin ID"
// @Param payload body service.UpdateBulletinRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /bulletins/{id} [put]
func (h *BulletinHandler) Update(c *gin.Context) {
	var req service.UpdateBulletinRequest
	if !bindJSON(c, &req) {
		return
	}
	card, err := h.bulletins.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, card, nil)
}

// Delete godoc
// @Summary Delete a bulletin
// @Tags Bulletins
// @Param id path string true "Bulletin ID"
// @Success 204
// @Router /bulletins/{id} [delete]
func (h *BulletinHandler) Delete(c *gin.Context) {
	if err := h.bulletins.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Publish godoc
// @Summary Publish a bulletin
// @Description Notification failures are reported in deliveries and never fail the request.
// @Tags Bulletins
// @Produce json
// @Param id path string true "Bulletin ID"
// @Success 200 {object} response.Envelope
// @Router /bulletins/{id}/publish [post]
func (h *BulletinHandler) Publish(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	res, err := h.bulletins.Publish(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// GenerateBulk godoc
// @Summary Generate the bulletins of a class
// @Tags Bulletins
// @Accept json
// @Produce json
// @Param payload body service.GenerateBulkRequest true "Class and period"
// @Success 200 {object} response.Envelope
// @Failure 423 {object} response.Envelope
// @Router /bulletins/generate-bulk [post]
func (h *BulletinHandler) GenerateBulk(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.GenerateBulkRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.bulletins.GenerateBulk(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil, map[string]interface{}{
		"message": fmt.Sprintf("%d bulletin(s) generated", res.CreatedCount),
	})
}

// RecalculateRanks godoc
// @Summary Recompute the ranks of a class for a period
// @Tags Bulletins
// @Accept json
// @Produce json
// @Param payload body models.RankScope true "Ranking scope"
// @Success 200 {object} response.Envelope
// @Router /bulletins/recalculate-ranks [post]
func (h *BulletinHandler) RecalculateRanks(c *gin.Context) {
	var scope models.RankScope
	if !bindJSON(c, &scope) {
		return
	}
	res, err := h.bulletins.RecalculateRanks(c.Request.Context(), scope)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Ranking godoc
// @Summary Class ranking board
// @Tags Bulletins
// @Produce json
// @Produce text/csv
// @Param class_id query string true "Class"
// @Param period query string true "Period"
// @Param school_year query string true "School year"
// @Param format query string false "json (default) or csv"
// @Success 200 {object} response.Envelope
// @Router /bulletins/ranking [get]
func (h *BulletinHandler) Ranking(c *gin.Context) {
	var q rankingQuery
	if !bindQuery(c, &q) {
		return
	}
	scope := models.RankScope{ClassID: q.ClassID, Period: models.Period(q.Period), SchoolYear: q.SchoolYear}
	board, err := h.bulletins.Ranking(c.Request.Context(), scope)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !strings.EqualFold(q.Format, "csv") {
		response.JSON(c, http.StatusOK, board, nil)
		return
	}
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "exports are disabled"))
		return
	}
	payload, err := h.exports.RankingCSV(board)
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("classement_%s_%s_%s.csv", scope.ClassID, scope.Period, scope.SchoolYear)
	response.Attachment(c, filename, "text/csv; charset=utf-8", payload)
}

// RequestPDF godoc
// @Summary Render a bulletin PDF in the background
// @Tags Bulletins
// @Produce json
// @Param id path string true "Bulletin ID"
// @Success 202 {object} response.Envelope
// @Router /bulletins/{id}/pdf [post]
func (h *BulletinHandler) RequestPDF(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "exports are disabled"))
		return
	}
	res, err := h.exports.RequestPDF(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, res)
}

// PDFLink godoc
// @Summary Signed download link of a rendered bulletin PDF
// @Tags Bulletins
// @Produce json
// @Param id path string true "Bulletin ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /bulletins/{id}/pdf [get]
func (h *BulletinHandler) PDFLink(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "exports are disabled"))
		return
	}
	link, err := h.exports.PDFLink(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}
