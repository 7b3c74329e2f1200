package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bulletin-api/internal/models"
	appErrors "github.com/noah-isme/bulletin-api/pkg/errors"
	"github.com/noah-isme/bulletin-api/pkg/mail"
)

type failingMailer struct {
	failTo map[string]error
	sent   []mail.Message
}

func (m *failingMailer) Send(ctx context.Context, msg mail.Message) error {
	if err, ok := m.failTo[msg.ToAddress]; ok {
		return err
	}
	m.sent = append(m.sent, msg)
	return nil
}

var _ mail.Mailer = (*failingMailer)(nil)

type memoryInbox struct {
	items     []models.Notification
	createErr error
	markErr   error
}

func (m *memoryInbox) Create(ctx context.Context, n *models.Notification) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.items = append(m.items, *n)
	return nil
}

func (m *memoryInbox) ListByUser(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	var out []models.Notification
	for _, n := range m.items {
		if n.UserID == filter.UserID && (!filter.Unread || !n.Read) {
			out = append(out, n)
		}
	}
	return out, len(out), nil
}

func (m *memoryInbox) CountUnread(ctx context.Context, userID string) (int, error) {
	rows, _, _ := m.ListByUser(ctx, models.NotificationFilter{UserID: userID, Unread: true})
	return len(rows), nil
}

func (m *memoryInbox) MarkRead(ctx context.Context, id, userID string, at time.Time) error {
	if m.markErr != nil {
		return m.markErr
	}
	for i := range m.items {
		if m.items[i].ID == id && m.items[i].UserID == userID {
			m.items[i].Read = true
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *memoryInbox) MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	var n int64
	for i := range m.items {
		if m.items[i].UserID == userID && !m.items[i].Read {
			m.items[i].Read = true
			n++
		}
	}
	return n, nil
}

func publishedCard() models.Bulletin {
	return models.Bulletin{ID: "b-1", Period: models.PeriodTerm2, Average: 14.5, Mention: models.MentionVeryGood, Rank: 1, TotalStudents: 28, Published: true}
}

func studentWithParent() models.StudentDetail {
	parentID := "parent-user"
	parentMail := "parent@example.com"
	parentName := "Mme Diallo"
	return models.StudentDetail{
		Student:       models.Student{ID: "stu-1", UserID: "stu-user", ParentID: &parentID},
		FullName:      "Awa Diallo",
		Email:         "awa@example.com",
		ParentAccount: &parentMail,
		ParentName:    &parentName,
	}
}

func TestPublicationNotifierDeliversToBoth(t *testing.T) {
	mailer := &failingMailer{}
	inbox := &memoryInbox{}
	notifier := NewPublicationNotifier(mailer, NewNotificationService(inbox, nil), nil, nil, "https://portal.test")

	deliveries := notifier.NotifyPublished(context.Background(), publishedCard(), studentWithParent(), "admin-1")

	require.Len(t, deliveries, 2)
	assert.True(t, deliveries[0].Delivered)
	assert.True(t, deliveries[1].Delivered)
	require.Len(t, mailer.sent, 2)
	assert.Equal(t, "Nouveau bulletin disponible - 2ème trimestre", mailer.sent[0].Subject)
	assert.Contains(t, mailer.sent[0].Text, "Rang : 1er sur 28 élèves")
	assert.Contains(t, mailer.sent[0].Text, "https://portal.test/mes-bulletins")
	assert.Contains(t, mailer.sent[1].Text, "/parent/enfant/stu-1/bulletins")

	require.Len(t, inbox.items, 2)
	assert.Equal(t, "Email envoyé : Bulletin disponible", inbox.items[0].Title)
	assert.Equal(t, models.NotificationBulletin, inbox.items[0].Type)
	assert.Equal(t, "parent-user", inbox.items[1].UserID)
	assert.Equal(t, models.PriorityHigh, inbox.items[1].Priority)
	require.NotNil(t, inbox.items[0].SenderID)
	assert.Equal(t, "admin-1", *inbox.items[0].SenderID)

	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(inbox.items[0].Metadata, &meta))
	assert.Equal(t, "b-1", meta["bulletin_id"])
}

func TestPublicationNotifierParentFailureIsIndependent(t *testing.T) {
	mailer := &failingMailer{failTo: map[string]error{"parent@example.com": errors.New("mailbox full")}}
	inbox := &memoryInbox{}
	notifier := NewPublicationNotifier(mailer, NewNotificationService(inbox, nil), NewMetricsService(), nil, "")

	deliveries := notifier.NotifyPublished(context.Background(), publishedCard(), studentWithParent(), "")

	require.Len(t, deliveries, 2)
	assert.True(t, deliveries[0].Delivered)
	assert.False(t, deliveries[1].Delivered)
	assert.Equal(t, "mailbox full", deliveries[1].Error)
	assert.Len(t, mailer.sent, 1)

	require.Len(t, inbox.items, 2)
	failure := inbox.items[1]
	assert.Equal(t, "Bulletin disponible (erreur email)", failure.Title)
	assert.Equal(t, models.NotificationError, failure.Type)
	assert.Equal(t, models.PriorityHigh, failure.Priority)
	assert.Nil(t, failure.SenderID)
}

func TestPublicationNotifierStudentFailureStillNotifiesParent(t *testing.T) {
	mailer := &failingMailer{failTo: map[string]error{"awa@example.com": errors.New("bounced")}}
	inbox := &memoryInbox{}
	notifier := NewPublicationNotifier(mailer, NewNotificationService(inbox, nil), nil, nil, "")

	deliveries := notifier.NotifyPublished(context.Background(), publishedCard(), studentWithParent(), "")

	assert.False(t, deliveries[0].Delivered)
	assert.True(t, deliveries[1].Delivered)
	assert.Equal(t, "Erreur envoi email", inbox.items[0].Title)
	assert.Equal(t, "stu-user", inbox.items[0].UserID)
}

func TestPublicationNotifierWithoutParent(t *testing.T) {
	student := studentWithParent()
	student.ParentID = nil
	inbox := &memoryInbox{createErr: errors.New("db down")}
	notifier := NewPublicationNotifier(&failingMailer{}, NewNotificationService(inbox, nil), nil, nil, "")

	deliveries := notifier.NotifyPublished(context.Background(), publishedCard(), student, "")

	require.Len(t, deliveries, 1)
	assert.True(t, deliveries[0].Delivered, "inbox failures do not turn a sent email into a failure")
}

func TestNotificationServiceInbox(t *testing.T) {
	inbox := &memoryInbox{}
	svc := NewNotificationService(inbox, nil)
	ctx := context.Background()

	require.NoError(t, svc.Notify(ctx, &models.Notification{ID: "n1", UserID: "u1", Title: "a"}))
	require.NoError(t, svc.Notify(ctx, &models.Notification{ID: "n2", UserID: "u1", Title: "b"}))
	assert.Equal(t, models.PriorityNormal, inbox.items[0].Priority)
	assert.Equal(t, models.NotificationInfo, inbox.items[0].Type)

	count, err := svc.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, svc.MarkRead(ctx, "n1", "u1"))
	assert.ErrorIs(t, svc.MarkRead(ctx, "n1", "u2"), appErrors.ErrNotFound)

	rows, page, err := svc.List(ctx, "u1", NotificationListRequest{Unread: true, PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 20, page.PageSize)

	n, err := svc.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNotificationServiceWrapsStoreErrors(t *testing.T) {
	svc := NewNotificationService(&memoryInbox{markErr: errors.New("boom"), createErr: errors.New("boom")}, nil)

	assert.ErrorIs(t, svc.MarkRead(context.Background(), "n", "u"), appErrors.ErrInternal)
	assert.ErrorIs(t, svc.Notify(context.Background(), &models.Notification{}), appErrors.ErrInternal)
}
