package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// NotificationType categorises in-app notifications.
type NotificationType string

const (
	NotificationInfo     NotificationType = "info"
	NotificationBulletin NotificationType = "bulletin"
	NotificationGrade    NotificationType = "note"
	NotificationError    NotificationType = "erreur"
)

// NotificationPriority orders notifications in the inbox.
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "basse"
	PriorityNormal NotificationPriority = "normale"
	PriorityHigh   NotificationPriority = "haute"
)

// Notification is an in-app message addressed to one user.
type Notification struct {
	ID         string               `db:"id" json:"id"`
	UserID     string               `db:"user_id" json:"user_id"`
	SenderID   *string              `db:"sender_id" json:"sender_id,omitempty"`
	Title      string               `db:"title" json:"title"`
	Message    string               `db:"message" json:"message"`
	Type       NotificationType     `db:"type" json:"type"`
	Priority   NotificationPriority `db:"priority" json:"priority"`
	Read       bool                 `db:"read" json:"read"`
	ReadAt     *time.Time           `db:"read_at" json:"read_at,omitempty"`
	Metadata   types.JSONText       `db:"metadata" json:"metadata,omitempty"`
	ActionLink *string              `db:"action_link" json:"action_link,omitempty"`
	CreatedAt  time.Time            `db:"created_at" json:"created_at"`
}

// NotificationFilter scopes an inbox listing.
type NotificationFilter struct {
	UserID   string
	Unread   bool
	Page     int
	PageSize int
}
