package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/bulletin-api/internal/models"
	appErrors "github.com/noah-isme/bulletin-api/pkg/errors"
	"github.com/noah-isme/bulletin-api/pkg/mail"
)

type notificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id, userID string, at time.Time) error
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error)
}

// NotificationService manages the in-app inbox.
type NotificationService struct {
	repo   notificationRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewNotificationService constructs the inbox service.
func NewNotificationService(repo notificationRepository, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// NotificationListRequest scopes an inbox listing.
type NotificationListRequest struct {
	Unread   bool `form:"unread"`
	Page     int  `form:"page"`
	PageSize int  `form:"page_size"`
}

// Notify stores a notification.
func (s *NotificationService) Notify(ctx context.Context, n *models.Notification) error {
	if n.Priority == "" {
		n.Priority = models.PriorityNormal
	}
	if n.Type == "" {
		n.Type = models.NotificationInfo
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store notification")
	}
	return nil
}

// List returns the notifications of userID, newest first.
func (s *NotificationService) List(ctx context.Context, userID string, req NotificationListRequest) ([]models.Notification, *models.Pagination, error) {
	filter := models.NotificationFilter{UserID: userID, Unread: req.Unread, Page: req.Page, PageSize: req.PageSize}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	rows, total, err := s.repo.ListByUser(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return rows, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// UnreadCount returns the number of unread notifications.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count notifications")
	}
	return count, nil
}

// MarkRead flags one notification as read. Other users' notifications are
// reported as not found.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	if err := s.repo.MarkRead(ctx, id, userID, s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update notification")
	}
	return nil
}

// MarkAllRead flags every unread notification and returns how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID, s.now())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update notifications")
	}
	return n, nil
}

// Recipients of a publication notice.
const (
	RecipientStudent = "student"
	RecipientParent  = "parent"
)

// Delivery is the outcome of one publication notice. A failed delivery is
// reported, never raised.
type Delivery struct {
	Recipient string `json:"recipient"`
	UserID    string `json:"user_id"`
	Delivered bool   `json:"delivered"`
	Error     string `json:"error,omitempty"`
}

type inboxWriter interface {
	Notify(ctx context.Context, n *models.Notification) error
}

// PublicationNotifier mails the student and linked parent when a bulletin is
// published and mirrors each attempt in their inbox.
type PublicationNotifier struct {
	mailer      mail.Mailer
	inbox       inboxWriter
	metrics     *MetricsService
	logger      *zap.Logger
	frontendURL string
}

// NewPublicationNotifier wires the notifier.
func NewPublicationNotifier(mailer mail.Mailer, inbox inboxWriter, metrics *MetricsService, logger *zap.Logger, frontendURL string) *PublicationNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublicationNotifier{mailer: mailer, inbox: inbox, metrics: metrics, logger: logger, frontendURL: frontendURL}
}

// NotifyPublished sends both notices. Each recipient is handled on its own:
// one failure neither stops nor undoes the other.
func (n *PublicationNotifier) NotifyPublished(ctx context.Context, bulletin models.Bulletin, student models.StudentDetail, actorID string) []Delivery {
	deliveries := []Delivery{n.notifyStudent(ctx, bulletin, student, actorID)}
	if student.ParentID != nil && *student.ParentID != "" {
		deliveries = append(deliveries, n.notifyParent(ctx, bulletin, student, actorID))
	}
	return deliveries
}

func (n *PublicationNotifier) notifyStudent(ctx context.Context, b models.Bulletin, student models.StudentDetail, actorID string) Delivery {
	label := b.Period.Label()
	link := "/mes-bulletins"
	msg := mail.Message{
		ToAddress: student.Email,
		ToName:    student.FullName,
		Subject:   "Nouveau bulletin disponible - " + label,
		Text: fmt.Sprintf("Bonjour %s,\n\nVotre bulletin du %s est disponible.\n%s\n\nConsultez-le sur %s%s\n",
			student.FullName, label, resultLines(b), n.frontendURL, link),
	}
	delivery := Delivery{Recipient: RecipientStudent, UserID: student.UserID}

	if err := n.mailer.Send(ctx, msg); err != nil {
		delivery.Error = err.Error()
		n.recordFailure(ctx, delivery, &models.Notification{
			UserID:     student.UserID,
			Title:      "Erreur envoi email",
			Message:    "Impossible d'envoyer l'email pour votre bulletin. Consultez directement votre espace élève.",
			Type:       models.NotificationError,
			Priority:   models.PriorityHigh,
			Metadata:   metadata(map[string]interface{}{"bulletin_id": b.ID, "erreur_email": err.Error()}),
			ActionLink: &link,
		}, actorID)
		return delivery
	}

	delivery.Delivered = true
	n.store(ctx, &models.Notification{
		UserID:     student.UserID,
		Title:      "Email envoyé : Bulletin disponible",
		Message:    fmt.Sprintf("Un email vous a été envoyé concernant votre bulletin du %s. Vérifiez votre boîte mail.", label),
		Type:       models.NotificationBulletin,
		Priority:   models.PriorityNormal,
		Metadata:   bulletinMetadata(b),
		ActionLink: &link,
	}, actorID)
	return delivery
}

func (n *PublicationNotifier) notifyParent(ctx context.Context, b models.Bulletin, student models.StudentDetail, actorID string) Delivery {
	label := b.Period.Label()
	link := fmt.Sprintf("/parent/enfant/%s/bulletins", student.ID)
	delivery := Delivery{Recipient: RecipientParent, UserID: *student.ParentID}

	var address, name string
	if student.ParentAccount != nil {
		address = *student.ParentAccount
	}
	if student.ParentName != nil {
		name = *student.ParentName
	}
	msg := mail.Message{
		ToAddress: address,
		ToName:    name,
		Subject:   fmt.Sprintf("Bulletin de %s disponible - %s", student.FullName, label),
		Text: fmt.Sprintf("Bonjour %s,\n\nLe bulletin de %s pour le %s est disponible.\n%s\n\nConsultez-le sur %s%s\n",
			name, student.FullName, label, resultLines(b), n.frontendURL, link),
	}

	if err := n.mailer.Send(ctx, msg); err != nil {
		delivery.Error = err.Error()
		n.recordFailure(ctx, delivery, &models.Notification{
			UserID:     delivery.UserID,
			Title:      "Bulletin disponible (erreur email)",
			Message:    fmt.Sprintf("Le bulletin de %s est disponible mais l'email n'a pas pu être envoyé. Consultez votre espace parent.", student.FullName),
			Type:       models.NotificationError,
			Priority:   models.PriorityHigh,
			Metadata:   metadata(map[string]interface{}{"bulletin_id": b.ID, "erreur_email": err.Error()}),
			ActionLink: &link,
		}, actorID)
		return delivery
	}

	delivery.Delivered = true
	n.store(ctx, &models.Notification{
		UserID:   delivery.UserID,
		Title:    "Bulletin de votre enfant publié",
		Message:  fmt.Sprintf("Le bulletin de %s pour le %s est maintenant disponible. Moyenne: %.2f/20 - Mention: %s", student.FullName, label, b.Average, b.Mention),
		Type:     models.NotificationBulletin,
		Priority: models.PriorityHigh,
		Metadata: metadata(map[string]interface{}{
			"bulletin_id": b.ID,
			"enfant_nom":  student.FullName,
			"periode":     b.Period,
			"moyenne":     b.Average,
			"mention":     b.Mention,
		}),
		ActionLink: &link,
	}, actorID)
	return delivery
}

func (n *PublicationNotifier) recordFailure(ctx context.Context, d Delivery, notice *models.Notification, actorID string) {
	n.metrics.NotificationFailed(d.Recipient)
	n.logger.Warn("publication email not delivered",
		zap.String("recipient", d.Recipient),
		zap.String("user_id", d.UserID),
		zap.String("error", d.Error))
	n.store(ctx, notice, actorID)
}

func (n *PublicationNotifier) store(ctx context.Context, notice *models.Notification, actorID string) {
	if actorID != "" {
		notice.SenderID = &actorID
	}
	if err := n.inbox.Notify(ctx, notice); err != nil {
		n.logger.Warn("failed to store publication notice", zap.String("user_id", notice.UserID), zap.Error(err))
	}
}

func resultLines(b models.Bulletin) string {
	return fmt.Sprintf("Moyenne générale : %.2f/20\nMention : %s\nRang : %s sur %d élèves", b.Average, b.Mention, ordinal(b.Rank), b.TotalStudents)
}

func ordinal(rank int) string {
	if rank == 1 {
		return "1er"
	}
	return fmt.Sprintf("%dème", rank)
}

func bulletinMetadata(b models.Bulletin) []byte {
	return metadata(map[string]interface{}{
		"bulletin_id": b.ID,
		"periode":     b.Period,
		"moyenne":     b.Average,
		"mention":     b.Mention,
	})
}

func metadata(values map[string]interface{}) []byte {
	raw, err := json.Marshal(values)
	if err != nil {
		return []byte("{}")
	}
	return raw
}
