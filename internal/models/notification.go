package models

import (
	"time"
)

// NotificationCategory classifies in-app notifications for the client feed.
type NotificationCategory string

const (
	NotificationNewAppointment   NotificationCategory = "new_appointment"
	NotificationAppointmentEvent NotificationCategory = "appointment_update"
	NotificationConsentEvent     NotificationCategory = "chat_history_access"
)

// Notification is one entry in a user's in-app notification feed. Rows are
// written best-effort alongside outbound email; a failed write never blocks
// the state transition that produced it.
type Notification struct {
	BaseModel
	UserID   string               `gorm:"size:36;index" json:"userId"`
	Message  string               `gorm:"type:text;not null" json:"message"`
	Category NotificationCategory `gorm:"size:30" json:"category"`
	Read     bool                 `gorm:"default:false" json:"read"`
	ReadAt   *time.Time           `json:"readAt,omitempty"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}
