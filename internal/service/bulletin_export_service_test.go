package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/bulletin-api/internal/models"
	appErrors "github.com/noah-isme/bulletin-api/pkg/errors"
	"github.com/noah-isme/bulletin-api/pkg/jobs"
	"github.com/noah-isme/bulletin-api/pkg/storage"
)

type recordingQueue struct {
	jobs []jobs.Job[string]
}

func (q *recordingQueue) Enqueue(job jobs.Job[string]) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func newExportFixture(t *testing.T) (*BulletinExportService, *schoolFixture, *recordingQueue, string) {
	t.Helper()
	f := endToEndClass()
	bulletins := newFixtureService(f, nil)
	card, err := bulletins.Create(context.Background(), CreateBulletinRequest{StudentID: "A", Period: testPeriod, SchoolYear: testYear})
	require.NoError(t, err)

	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	svc := NewBulletinExportService(fixtureBulletins{f}, bulletins, files, storage.NewSignedURLSigner("secret", time.Hour), nil, zap.NewNop(), ExportConfig{SchoolName: "Lycée Test"})
	queue := &recordingQueue{}
	svc.AttachQueue(queue)
	return svc, f, queue, card.ID
}

func TestBulletinExportRenderAndDownload(t *testing.T) {
	svc, f, queue, id := newExportFixture(t)
	ctx := context.Background()

	_, err := svc.PDFLink(ctx, id)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	req, err := svc.RequestPDF(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "queued", req.Status)
	require.Len(t, queue.jobs, 1)

	require.NoError(t, svc.Render(ctx, queue.jobs[0]))
	require.NotNil(t, f.bulletins[id].PDFPath)

	link, err := svc.PDFLink(ctx, id)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link.URL, "/api/v1/exports/"))

	download, err := svc.ResolveDownload(ctx, link.Token)
	require.NoError(t, err)
	defer download.File.Close()
	body, err := io.ReadAll(download.File)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(body, []byte("%PDF")))
	assert.Equal(t, id+".pdf", download.Filename)
}

func TestBulletinExportRejectsBadTokens(t *testing.T) {
	svc, f, queue, id := newExportFixture(t)
	ctx := context.Background()

	_, err := svc.ResolveDownload(ctx, "not-a-token")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.RequestPDF(ctx, id)
	require.NoError(t, err)
	require.NoError(t, svc.Render(ctx, queue.jobs[0]))
	link, err := svc.PDFLink(ctx, id)
	require.NoError(t, err)

	moved := "bulletins/other.pdf"
	card := f.bulletins[id]
	card.PDFPath = &moved
	f.bulletins[id] = card
	_, err = svc.ResolveDownload(ctx, link.Token)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestBulletinExportRequestUnknown(t *testing.T) {
	svc, _, queue, _ := newExportFixture(t)

	_, err := svc.RequestPDF(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Empty(t, queue.jobs)

	assert.NoError(t, svc.Render(context.Background(), jobs.Job[string]{ID: "missing", Payload: "missing"}))
}

func TestRankingCSV(t *testing.T) {
	svc, _, _, _ := newExportFixture(t)
	board := &RankingBoard{
		TotalStudents: 3,
		Entries: []models.RankingEntry{
			{Rank: 1, EnrollmentNumber: "M-01", StudentName: "Alice", Average: 17, Mention: models.MentionExcellent, Published: true},
			{Rank: 2, EnrollmentNumber: "M-02", StudentName: "Bruno", Average: 10.5, Mention: models.MentionFairlyGood},
		},
	}

	payload, err := svc.RankingCSV(board)
	require.NoError(t, err)

	reader := csv.NewReader(bytes.NewReader(payload))
	reader.Comma = ';'
	rows, err := reader.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"1", "M-01", "Alice", "17.00", "Excellent", "3", "oui"}, rows[1])
	assert.Equal(t, "10.50", rows[2][3])
	assert.Equal(t, "non", rows[2][6])
}
