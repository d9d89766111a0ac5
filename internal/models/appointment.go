package models

import (
	"time"
)

// AppointmentStatus represents the lifecycle status of an appointment
type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusApproved  AppointmentStatus = "approved"
	StatusRejected  AppointmentStatus = "rejected"
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// statusTransitions is the allowed transition graph for AppointmentStatus.
// A status missing from the map is terminal.
var statusTransitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:   {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:  {StatusScheduled, StatusCancelled, StatusCompleted},
	StatusScheduled: {StatusCancelled, StatusCompleted},
}

// CanTransitionTo reports whether the status machine permits moving from s to next.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further status transition is possible.
func (s AppointmentStatus) IsTerminal() bool {
	return len(statusTransitions[s]) == 0
}

// IsApproved reports whether the appointment counts as approved for the
// purposes of consent gating. "scheduled" is a successor of "approved".
func (s AppointmentStatus) IsApproved() bool {
	return s == StatusApproved || s == StatusScheduled
}

// ChatHistoryAccessStatus tracks the student's consent to disclose their
// chatbot transcripts to the counsellor for a given appointment.
type ChatHistoryAccessStatus string

const (
	ConsentNone     ChatHistoryAccessStatus = "none"
	ConsentPending  ChatHistoryAccessStatus = "pending"
	ConsentApproved ChatHistoryAccessStatus = "approved"
	ConsentDenied   ChatHistoryAccessStatus = "denied"
)

// consentTransitions is the allowed transition graph for the consent
// sub-state. A denied request may be re-requested (denied -> pending starts a
// fresh cycle with a new token); approved is final. Re-issuing while a request
// is pending is only allowed once the outstanding token has expired, which is
// enforced at the store level rather than here.
var consentTransitions = map[ChatHistoryAccessStatus][]ChatHistoryAccessStatus{
	ConsentNone:    {ConsentPending},
	ConsentPending: {ConsentApproved, ConsentDenied},
	ConsentDenied:  {ConsentPending},
}

// CanTransitionTo reports whether the consent sub-state machine permits
// moving from s to next.
func (s ChatHistoryAccessStatus) CanTransitionTo(next ChatHistoryAccessStatus) bool {
	for _, allowed := range consentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Appointment represents one counselling booking between a student and a
// counsellor, including the embedded chat-history consent sub-record.
type Appointment struct {
	BaseModel
	StudentID    string            `gorm:"size:36;index" json:"studentId"`
	CounsellorID string            `gorm:"size:36;index" json:"counsellorId"`
	Datetime     time.Time         `json:"datetime"`
	Status       AppointmentStatus `gorm:"size:20;default:'pending'" json:"status"`
	Anonymous    bool              `gorm:"default:false" json:"anonymous"`

	// Set only when the counsellor rejects with a counter-offer.
	SuggestedDatetime *time.Time `json:"suggestedDatetime,omitempty"`
	// Required when and only when Status is cancelled.
	CancellationRemark string `gorm:"size:500" json:"cancellationRemark,omitempty"`
	// Set on approval when meeting-link generation succeeds.
	MeetLink string `gorm:"size:500" json:"meetLink,omitempty"`

	// Consent sub-record. Token fields are both-present while a request is
	// pending and cleared whenever the sub-state leaves pending.
	ChatHistoryAccessStatus       ChatHistoryAccessStatus `gorm:"size:20;default:'none'" json:"chatHistoryAccessStatus"`
	ChatHistoryAccessRequestedAt  *time.Time              `json:"chatHistoryAccessRequestedAt,omitempty"`
	ChatHistoryAccessRespondedAt  *time.Time              `json:"chatHistoryAccessRespondedAt,omitempty"`
	ChatHistoryAccessToken        string                  `gorm:"size:128" json:"-"`
	ChatHistoryAccessTokenExpires *time.Time              `json:"-"`

	// Relations
	Student    User `gorm:"foreignKey:StudentID" json:"-"`
	Counsellor User `gorm:"foreignKey:CounsellorID" json:"-"`
}

// HasPendingConsentToken reports whether an unexpired consent request is
// outstanding at the given instant.
func (a *Appointment) HasPendingConsentToken(now time.Time) bool {
	return a.ChatHistoryAccessStatus == ConsentPending &&
		a.ChatHistoryAccessTokenExpires != nil &&
		a.ChatHistoryAccessTokenExpires.After(now)
}

// Sanitized returns a copy safe to show to the given viewer: the student's
// identity is hidden on anonymous bookings unless the viewer is the student
// themselves or an admin.
func (a Appointment) Sanitized(viewerID string, viewerRole Role) Appointment {
	if a.Anonymous && viewerID != a.StudentID && viewerRole != RoleAdmin {
		a.Student = User{}
		a.StudentID = ""
	}
	return a
}
