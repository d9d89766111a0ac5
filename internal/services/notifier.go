package services

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"mindspace-server/internal/models"
)

// Notifier fans a message out to a user's in-app feed and, optionally, their
// email. Every path is fire-and-forget from the caller's perspective:
// failures are logged and never returned, so a committed appointment or
// consent transition cannot be rolled back or blocked by delivery problems.
type Notifier struct {
	db     *gorm.DB
	mailer *Mailer
	logger *zap.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(db *gorm.DB, mailer *Mailer, logger *zap.Logger) *Notifier {
	return &Notifier{db: db, mailer: mailer, logger: logger}
}

// Notify appends a notification to the user's in-app feed.
func (n *Notifier) Notify(userID, message string, category models.NotificationCategory) {
	notification := models.Notification{
		UserID:   userID,
		Message:  message,
		Category: category,
	}
	if err := n.db.Create(&notification).Error; err != nil {
		n.logger.Error("failed to store in-app notification",
			zap.String("userID", userID),
			zap.String("category", string(category)),
			zap.Error(err))
	}
}

// Email sends an HTML email, best-effort.
func (n *Notifier) Email(to, subject, htmlBody string) {
	if err := n.mailer.Send(to, subject, htmlBody); err != nil {
		n.logger.Error("failed to send email",
			zap.String("to", to),
			zap.String("subject", subject),
			zap.Error(err))
	}
}
