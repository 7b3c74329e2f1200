package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/bulletin-api/internal/models"
	appErrors "github.com/noah-isme/bulletin-api/pkg/errors"
	"github.com/noah-isme/bulletin-api/pkg/export"
	"github.com/noah-isme/bulletin-api/pkg/jobs"
	"github.com/noah-isme/bulletin-api/pkg/storage"
)

type bulletinDocuments interface {
	FindByID(ctx context.Context, id string) (*models.BulletinDetail, error)
	SetPDFPath(ctx context.Context, id, path string) error
}

type bulletinViewer interface {
	Get(ctx context.Context, id string) (*models.BulletinView, error)
}

type fileStorage interface {
	Save(relPath string, data []byte) (string, error)
	Open(relPath string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type bulletinRenderer interface {
	RenderBulletin(sheet export.BulletinSheet) ([]byte, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfQueue interface {
	Enqueue(job jobs.Job[string]) error
}

// ExportConfig tunes document rendering.
type ExportConfig struct {
	APIPrefix  string
	SchoolName string
	ResultTTL  time.Duration
	// CleanupInterval of zero disables the background sweep.
	CleanupInterval time.Duration
}

// PDFRequest acknowledges an accepted render request.
type PDFRequest struct {
	BulletinID string `json:"bulletin_id"`
	Status     string `json:"status"`
}

// DownloadLink is a signed, time limited URL to a rendered document.
type DownloadLink struct {
	URL       string    `json:"url"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Download is a resolved signed download.
type Download struct {
	File     *os.File
	Filename string
}

// BulletinExportService renders bulletin PDFs in the background and exports
// class rankings as CSV.
type BulletinExportService struct {
	documents bulletinDocuments
	viewer    bulletinViewer
	storage   fileStorage
	signer    *storage.SignedURLSigner
	pdf       bulletinRenderer
	csv       datasetRenderer
	queue     pdfQueue
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       ExportConfig
}

// NewBulletinExportService constructs the export service. The render queue is
// attached separately because the queue needs Render as its handler.
func NewBulletinExportService(documents bulletinDocuments, viewer bulletinViewer, files fileStorage, signer *storage.SignedURLSigner, metrics *MetricsService, logger *zap.Logger, cfg ExportConfig) *BulletinExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &BulletinExportService{
		documents: documents,
		viewer:    viewer,
		storage:   files,
		signer:    signer,
		pdf:       export.NewPDFExporter(),
		csv:       export.NewCSVExporter(';'),
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// AttachQueue sets the queue that RequestPDF dispatches to.
func (s *BulletinExportService) AttachQueue(queue pdfQueue) {
	s.queue = queue
}

// RequestPDF schedules a bulletin for rendering.
func (s *BulletinExportService) RequestPDF(ctx context.Context, id string) (*PDFRequest, error) {
	if _, err := s.findDocument(ctx, id); err != nil {
		return nil, err
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "pdf rendering is not available")
	}
	if err := s.queue.Enqueue(jobs.Job[string]{ID: id, Payload: id}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue pdf rendering")
	}
	return &PDFRequest{BulletinID: id, Status: "queued"}, nil
}

// Render is the queue handler: it lays out the bulletin, stores the file and
// records its path on the bulletin.
func (s *BulletinExportService) Render(ctx context.Context, job jobs.Job[string]) error {
	view, err := s.viewer.Get(ctx, job.Payload)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			// deleted after the request; nothing to retry
			s.logger.Warn("skipping pdf for missing bulletin", zap.String("bulletin_id", job.Payload))
			return nil
		}
		return err
	}

	payload, err := s.pdf.RenderBulletin(s.sheet(view))
	if err != nil {
		s.metrics.PDFRendered("error")
		return err
	}
	relPath, err := s.storage.Save(fmt.Sprintf("bulletins/%s/%s.pdf", view.SchoolYear, view.ID), payload)
	if err != nil {
		s.metrics.PDFRendered("error")
		return err
	}
	if err := s.documents.SetPDFPath(ctx, view.ID, relPath); err != nil {
		s.metrics.PDFRendered("error")
		return err
	}
	s.metrics.PDFRendered("ok")
	s.logger.Info("bulletin pdf rendered", zap.String("bulletin_id", view.ID), zap.String("path", relPath), zap.Int("attempt", job.Attempt))
	return nil
}

// PDFLink signs a download URL for an already rendered bulletin.
func (s *BulletinExportService) PDFLink(ctx context.Context, id string) (*DownloadLink, error) {
	doc, err := s.findDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.PDFPath == nil || *doc.PDFPath == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "pdf has not been rendered yet")
	}
	token, expiresAt, err := s.signer.Generate(doc.ID, *doc.PDFPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return &DownloadLink{URL: prefix + "/exports/" + token, Token: token, ExpiresAt: expiresAt}, nil
}

// ResolveDownload validates a signed token and opens the file it grants.
// Tokens for a superseded render are rejected.
func (s *BulletinExportService) ResolveDownload(ctx context.Context, token string) (*Download, error) {
	id, relPath, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	doc, err := s.findDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.PDFPath == nil || *doc.PDFPath != relPath {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &Download{File: file, Filename: filepath.Base(relPath)}, nil
}

// RankingCSV renders a ranking board as a semicolon separated sheet.
func (s *BulletinExportService) RankingCSV(board *RankingBoard) ([]byte, error) {
	data := export.Dataset{Headers: []string{"Rang", "Matricule", "Élève", "Moyenne", "Mention", "Effectif", "Publié"}}
	for _, entry := range board.Entries {
		published := "non"
		if entry.Published {
			published = "oui"
		}
		data.Append(
			strconv.Itoa(entry.Rank),
			entry.EnrollmentNumber,
			entry.StudentName,
			formatGrade(entry.Average),
			string(entry.Mention),
			strconv.Itoa(board.TotalStudents),
			published,
		)
	}
	payload, err := s.csv.Render(data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render ranking csv")
	}
	return payload, nil
}

// Cleanup removes rendered files older than ttl (ResultTTL when ttl <= 0).
func (s *BulletinExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

// StartCleanup sweeps expired files every CleanupInterval until ctx ends.
func (s *BulletinExportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.Cleanup(0)
				if err != nil {
					s.logger.Warn("export cleanup failed", zap.Error(err))
					continue
				}
				if len(removed) > 0 {
					s.logger.Info("export cleanup removed files", zap.Int("count", len(removed)))
				}
			}
		}
	}()
}

func (s *BulletinExportService) findDocument(ctx context.Context, id string) (*models.BulletinDetail, error) {
	doc, err := s.documents.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "bulletin not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load bulletin")
	}
	return doc, nil
}

func (s *BulletinExportService) sheet(view *models.BulletinView) export.BulletinSheet {
	sheet := export.BulletinSheet{
		SchoolName:       s.cfg.SchoolName,
		SchoolYear:       view.SchoolYear,
		PeriodLabel:      view.Period.Label(),
		StudentName:      view.StudentName,
		EnrollmentNumber: view.EnrollmentNumber,
		ClassName:        view.ClassName,
		Average:          formatGrade(view.Average),
		Mention:          string(view.Mention),
		Rank:             view.Rank,
		TotalStudents:    view.TotalStudents,
	}
	if view.Remark != nil {
		sheet.Remark = *view.Remark
	}
	for _, subject := range view.Subjects {
		sheet.Subjects = append(sheet.Subjects, export.SubjectLine{
			Subject:     subject.SubjectName,
			Code:        subject.SubjectCode,
			Coefficient: strconv.FormatFloat(subject.Coefficient, 'f', -1, 64),
			Average:     formatGrade(subject.Average),
			Count:       subject.Count,
			Min:         formatGrade(subject.Min),
			Max:         formatGrade(subject.Max),
		})
	}
	return sheet
}

func formatGrade(v float64) string {
	return round2(v).StringFixed(2)
}
