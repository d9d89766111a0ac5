package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"mindspace-server/internal/apperrors"
	"mindspace-server/internal/config"
	"mindspace-server/internal/consent"
	"mindspace-server/internal/models"
	"mindspace-server/internal/utils"
)

// meetingDuration is the calendar slot booked for a counselling session.
const meetingDuration = time.Hour

// decryptionPlaceholder substitutes a transcript entry that cannot be
// decrypted; the rest of the transcript still returns.
const decryptionPlaceholder = "[Decryption Error]"

// AppointmentService implements the appointment lifecycle and the
// chat-history consent workflow on top of the appointment store. All state
// transitions are single conditional updates so concurrent callers cannot
// both win the same transition.
type AppointmentService struct {
	db       *gorm.DB
	cfg      *config.Config
	notifier *Notifier
	meetings MeetingLinkGenerator
	logger   *zap.Logger
}

// NewAppointmentService creates an AppointmentService.
func NewAppointmentService(db *gorm.DB, cfg *config.Config, notifier *Notifier, meetings MeetingLinkGenerator, logger *zap.Logger) *AppointmentService {
	return &AppointmentService{
		db:       db,
		cfg:      cfg,
		notifier: notifier,
		meetings: meetings,
		logger:   logger,
	}
}

// Create books a new pending appointment for the student with the named
// counsellor and notifies the counsellor.
func (s *AppointmentService) Create(studentID, counsellorID string, datetime time.Time, anonymous bool) (*models.Appointment, error) {
	var counsellor models.User
	if err := s.db.Where("id = ? AND role = ?", counsellorID, models.RoleCounsellor).First(&counsellor).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("counsellor")
		}
		return nil, fmt.Errorf("verify counsellor: %w", err)
	}

	var student models.User
	if err := s.db.First(&student, "id = ?", studentID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("student")
		}
		return nil, fmt.Errorf("verify student: %w", err)
	}

	if !datetime.After(time.Now()) {
		return nil, apperrors.InvalidState("appointment datetime must be in the future")
	}

	appointment := models.Appointment{
		StudentID:    studentID,
		CounsellorID: counsellorID,
		Datetime:     datetime,
		Anonymous:    anonymous,
		Status:       models.StatusPending,
	}
	if err := s.db.Create(&appointment).Error; err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	bookedBy := student.Name
	if anonymous {
		bookedBy = "an anonymous student"
	}
	s.notifier.Notify(counsellorID,
		fmt.Sprintf("New appointment scheduled by %s.", bookedBy),
		models.NotificationNewAppointment)

	return &appointment, nil
}

// ListForUser returns the caller's appointments: students and counsellors see
// their own, admins see all. Anonymous bookings hide the student from the
// counsellor's view.
func (s *AppointmentService) ListForUser(userID string, role models.Role) ([]models.Appointment, error) {
	query := s.db.Preload("Student").Preload("Counsellor").Order("datetime asc")

	var err error
	var appointments []models.Appointment
	switch role {
	case models.RoleStudent:
		err = query.Where("student_id = ?", userID).Find(&appointments).Error
	case models.RoleCounsellor:
		err = query.Where("counsellor_id = ?", userID).Find(&appointments).Error
	case models.RoleAdmin:
		err = query.Find(&appointments).Error
	default:
		return nil, apperrors.NotAuthorized("role %q cannot list appointments", role)
	}
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	for i := range appointments {
		appointments[i] = appointments[i].Sanitized(userID, role)
	}
	return appointments, nil
}

// Get returns one appointment, visible only to the involved student or
// counsellor, or an admin.
func (s *AppointmentService) Get(userID string, role models.Role, appointmentID string) (*models.Appointment, error) {
	appointment, err := s.load(appointmentID, true)
	if err != nil {
		return nil, err
	}

	if role != models.RoleAdmin && userID != appointment.StudentID && userID != appointment.CounsellorID {
		return nil, apperrors.NotAuthorized("you are not involved in this appointment")
	}

	sanitized := appointment.Sanitized(userID, role)
	return &sanitized, nil
}

// StatusUpdate carries the optional fields of a status transition.
type StatusUpdate struct {
	Status             models.AppointmentStatus
	SuggestedDatetime  *time.Time
	CancellationRemark string
}

// UpdateStatus applies one transition of the appointment status machine.
// Authorization: the owning counsellor and admins may apply any legal
// transition; the owning student may only cancel. The durable write is a
// conditional update keyed on the current status, so a concurrent transition
// loses cleanly instead of overwriting. Meeting-link and notification
// failures never roll back the committed transition.
func (s *AppointmentService) UpdateStatus(ctx context.Context, callerID string, role models.Role, appointmentID string, update StatusUpdate) (*models.Appointment, error) {
	appointment, err := s.load(appointmentID, true)
	if err != nil {
		return nil, err
	}

	if err := authorizeStatusChange(callerID, role, appointment, update.Status); err != nil {
		return nil, err
	}

	from := appointment.Status
	if !from.CanTransitionTo(update.Status) {
		return nil, apperrors.InvalidState("cannot change appointment status from %q to %q", from, update.Status)
	}

	changes := map[string]interface{}{"status": update.Status}
	var meetLink string

	switch update.Status {
	case models.StatusApproved:
		changes["suggested_datetime"] = nil
		meetLink = s.generateMeetLink(ctx, appointment)
		if meetLink != "" {
			changes["meet_link"] = meetLink
		}
	case models.StatusScheduled:
		changes["suggested_datetime"] = nil
	case models.StatusRejected:
		if update.SuggestedDatetime != nil {
			changes["suggested_datetime"] = update.SuggestedDatetime
		}
	case models.StatusCancelled:
		remark := update.CancellationRemark
		if remark == "" {
			remark = "No remark provided"
		}
		changes["cancellation_remark"] = remark
	}

	result := s.db.Model(&models.Appointment{}).
		Where("id = ? AND status = ?", appointmentID, from).
		Updates(changes)
	if result.Error != nil {
		return nil, fmt.Errorf("update appointment status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, apperrors.InvalidState("appointment status changed concurrently, please retry")
	}

	s.notifyStatusChange(appointment, update, callerID, role, meetLink)

	return s.load(appointmentID, true)
}

// authorizeStatusChange is the single authorization gate for status updates.
func authorizeStatusChange(callerID string, role models.Role, appointment *models.Appointment, target models.AppointmentStatus) error {
	switch role {
	case models.RoleAdmin:
		return nil
	case models.RoleCounsellor:
		if appointment.CounsellorID != callerID {
			return apperrors.NotAuthorized("you are not the counsellor for this appointment")
		}
		return nil
	case models.RoleStudent:
		if appointment.StudentID != callerID {
			return apperrors.NotAuthorized("you are not the student for this appointment")
		}
		if target != models.StatusCancelled {
			return apperrors.NotAuthorized("students may only cancel appointments")
		}
		return nil
	default:
		return apperrors.NotAuthorized("role %q cannot update appointments", role)
	}
}

// generateMeetLink asks the calendar collaborator for a meeting URL. Failure
// is non-fatal: the approval proceeds with no link and a degraded
// notification.
func (s *AppointmentService) generateMeetLink(ctx context.Context, appointment *models.Appointment) string {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	link, err := s.meetings.CreateMeeting(ctx, MeetingDetails{
		Summary: fmt.Sprintf("Counselling Session with %s", appointment.Counsellor.Name),
		Description: fmt.Sprintf("Online counselling session with %s and %s.",
			appointment.Counsellor.Name, appointment.Student.Name),
		Start:     appointment.Datetime,
		End:       appointment.Datetime.Add(meetingDuration),
		Attendees: []string{appointment.Student.Email, appointment.Counsellor.Email},
	})
	if err != nil {
		s.logger.Warn("meeting link generation failed, approving without link",
			zap.String("appointmentID", appointment.ID),
			zap.Error(err))
		return ""
	}
	return link
}

// notifyStatusChange sends the role-appropriate notifications for a committed
// transition. Best-effort only.
func (s *AppointmentService) notifyStatusChange(appointment *models.Appointment, update StatusUpdate, callerID string, role models.Role, meetLink string) {
	student := appointment.Student
	counsellor := appointment.Counsellor
	when := appointment.Datetime.Format("Mon, 02 Jan 2006 15:04")

	switch update.Status {
	case models.StatusApproved:
		if meetLink == "" {
			s.notifier.Notify(student.ID,
				fmt.Sprintf("Your appointment with %s has been approved, but the meeting link is currently unavailable. Please contact your counsellor.", counsellor.Name),
				models.NotificationAppointmentEvent)
			return
		}
		s.notifier.Notify(student.ID,
			fmt.Sprintf("Your appointment with %s has been approved. Join the session here: %s", counsellor.Name, meetLink),
			models.NotificationAppointmentEvent)
		s.notifier.Email(student.Email,
			fmt.Sprintf("Your Appointment with %s is Approved!", counsellor.Name),
			approvalEmailBody(student.Name, counsellor.Name, when, meetLink))
		s.notifier.Email(counsellor.Email,
			fmt.Sprintf("Appointment with %s Approved - Meeting Link", student.Name),
			approvalEmailBody(counsellor.Name, student.Name, when, meetLink))

	case models.StatusRejected:
		message := fmt.Sprintf("Your appointment with %s has been rejected.", counsellor.Name)
		if update.SuggestedDatetime != nil {
			message = fmt.Sprintf("Your appointment with %s has been rejected. A new time of %s has been suggested.",
				counsellor.Name, update.SuggestedDatetime.Format("Mon, 02 Jan 2006 15:04"))
		}
		s.notifier.Notify(student.ID, message, models.NotificationAppointmentEvent)

	case models.StatusCancelled:
		remark := update.CancellationRemark
		if remark == "" {
			remark = "No remark provided"
		}
		if role == models.RoleStudent && callerID == student.ID {
			s.notifier.Notify(counsellor.ID,
				fmt.Sprintf("Your appointment on %s has been cancelled by the student. Reason: %s.", when, remark),
				models.NotificationAppointmentEvent)
			return
		}
		s.notifier.Notify(student.ID,
			fmt.Sprintf("Your appointment with %s on %s has been cancelled. Reason: %s.", counsellor.Name, when, remark),
			models.NotificationAppointmentEvent)

	default:
		s.notifier.Notify(student.ID,
			fmt.Sprintf("Your appointment with %s is now %s.", counsellor.Name, update.Status),
			models.NotificationAppointmentEvent)
	}
}

// Delete removes a cancelled appointment. Only the owning student may delete,
// and only once the appointment is cancelled.
func (s *AppointmentService) Delete(callerID string, role models.Role, appointmentID string) error {
	if role != models.RoleStudent {
		return apperrors.NotAuthorized("only students can delete appointments")
	}

	appointment, err := s.load(appointmentID, false)
	if err != nil {
		return err
	}
	if appointment.StudentID != callerID {
		return apperrors.NotAuthorized("you are not the student for this appointment")
	}
	if appointment.Status != models.StatusCancelled {
		return apperrors.InvalidState("only cancelled appointments can be deleted")
	}

	if err := s.db.Delete(&models.Appointment{}, "id = ?", appointmentID).Error; err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	return nil
}

// RequestChatHistoryAccess starts (or reports) a consent cycle: the owning
// counsellor asks the student for permission to read their chatbot
// transcripts. Issuing while an unexpired request is pending is a no-op that
// reports "already pending" without rotating the token. The token is only
// embedded in the student's email links and is never returned to the
// counsellor.
func (s *AppointmentService) RequestChatHistoryAccess(callerID string, role models.Role, appointmentID string) (string, error) {
	if role != models.RoleCounsellor {
		return "", apperrors.NotAuthorized("only counsellors can request chat history access")
	}

	appointment, err := s.load(appointmentID, true)
	if err != nil {
		return "", err
	}
	if appointment.CounsellorID != callerID {
		return "", apperrors.NotAuthorized("you are not the counsellor for this appointment")
	}

	now := time.Now()
	alreadyPending, err := consent.IssueCheck(appointment, now)
	if err != nil {
		return "", err
	}
	if alreadyPending {
		return "Chat history access request is already pending. Please wait for the student's response.", nil
	}

	token, err := consent.NewToken()
	if err != nil {
		return "", err
	}
	expires := now.Add(time.Duration(s.cfg.ConsentTokenExpiryHours) * time.Hour)

	// Conditional write: never rotate a live token, never touch an approved
	// grant. Either guard failing concurrently turns this call into the
	// corresponding no-op.
	result := s.db.Model(&models.Appointment{}).
		Where("id = ? AND chat_history_access_status <> ?", appointmentID, models.ConsentApproved).
		Where("chat_history_access_status <> ? OR chat_history_access_token_expires IS NULL OR chat_history_access_token_expires <= ?",
			models.ConsentPending, now).
		Updates(map[string]interface{}{
			"chat_history_access_status":        models.ConsentPending,
			"chat_history_access_requested_at":  now,
			"chat_history_access_responded_at":  nil,
			"chat_history_access_token":         token,
			"chat_history_access_token_expires": expires,
		})
	if result.Error != nil {
		return "", fmt.Errorf("issue consent token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		refreshed, err := s.load(appointmentID, false)
		if err != nil {
			return "", err
		}
		if refreshed.ChatHistoryAccessStatus == models.ConsentApproved {
			return "", apperrors.InvalidState("chat history access is already approved")
		}
		return "Chat history access request is already pending. Please wait for the student's response.", nil
	}

	respondURL := fmt.Sprintf("%s/api/v1/appointments/%s/chat-history-access/respond", s.cfg.AppURL, appointmentID)
	approveLink := fmt.Sprintf("%s?token=%s&action=approve", respondURL, token)
	denyLink := fmt.Sprintf("%s?token=%s&action=deny", respondURL, token)

	s.notifier.Email(appointment.Student.Email,
		fmt.Sprintf("Action Required: Counsellor %s Requests Chat History Access", appointment.Counsellor.Name),
		consentRequestEmailBody(appointment.Student.Name, appointment.Counsellor.Name, approveLink, denyLink, s.cfg.ConsentTokenExpiryHours))
	s.notifier.Notify(appointment.StudentID,
		fmt.Sprintf("Your counsellor %s has requested access to your chatbot history. Check your email or your appointments page to respond.", appointment.Counsellor.Name),
		models.NotificationConsentEvent)

	return "Chat history access request sent to student.", nil
}

// RespondChatHistoryAccess resolves a pending consent request via the
// unauthenticated email-link channel. The token is the sole credential: it
// must match in constant time and be unexpired. The state change is a single
// conditional update keyed on the pending status and the token, so of two
// concurrent responders exactly one wins; the other gets InvalidTokenError.
func (s *AppointmentService) RespondChatHistoryAccess(appointmentID, token, action string) error {
	approve, err := parseConsentAction(action)
	if err != nil {
		return err
	}

	appointment, err := s.load(appointmentID, true)
	if err != nil {
		return err
	}

	if err := consent.Validate(appointment, token, time.Now()); err != nil {
		return err
	}

	if err := s.consumeConsent(appointmentID, token, approve); err != nil {
		return err
	}

	s.notifyConsentDecision(appointment, approve)
	return nil
}

// RespondChatHistoryAccessInApp resolves a pending consent request from an
// authenticated student session; the session substitutes for the token. It
// races the email-link channel on the same conditional update, so first
// responder wins and the loser fails with InvalidStateError.
func (s *AppointmentService) RespondChatHistoryAccessInApp(callerID string, role models.Role, appointmentID, action string) error {
	if role != models.RoleStudent {
		return apperrors.NotAuthorized("only students can respond to chat history access requests")
	}

	approve, err := parseConsentAction(action)
	if err != nil {
		return err
	}

	appointment, err := s.load(appointmentID, true)
	if err != nil {
		return err
	}
	if appointment.StudentID != callerID {
		return apperrors.NotAuthorized("you are not the student for this appointment")
	}
	if appointment.ChatHistoryAccessStatus != models.ConsentPending {
		return apperrors.InvalidState("no pending chat history access request for this appointment")
	}

	if err := s.consumeConsent(appointmentID, "", approve); err != nil {
		return err
	}

	s.notifyConsentDecision(appointment, approve)
	return nil
}

// consumeConsent is the shared single-use transition for both response
// channels: pending -> approved/denied, clearing the token fields
// unconditionally. When token is non-empty the update additionally requires
// it to match and be unexpired, which pins the email-link channel to the
// exact outstanding request. Zero rows affected means another responder
// already resolved the request.
func (s *AppointmentService) consumeConsent(appointmentID, token string, approve bool) error {
	newStatus := models.ConsentDenied
	if approve {
		newStatus = models.ConsentApproved
	}

	query := s.db.Model(&models.Appointment{}).
		Where("id = ? AND chat_history_access_status = ?", appointmentID, models.ConsentPending)
	if token != "" {
		query = query.Where("chat_history_access_token = ? AND chat_history_access_token_expires > ?",
			token, time.Now())
	}

	result := query.Updates(map[string]interface{}{
		"chat_history_access_status":        newStatus,
		"chat_history_access_responded_at":  time.Now(),
		"chat_history_access_token":         "",
		"chat_history_access_token_expires": nil,
	})
	if result.Error != nil {
		return fmt.Errorf("consume consent token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		if token != "" {
			return apperrors.InvalidToken()
		}
		return apperrors.InvalidState("chat history access request is no longer pending")
	}
	return nil
}

// notifyConsentDecision tells the counsellor how the student responded. The
// denial message carries no reason; the student owes none.
func (s *AppointmentService) notifyConsentDecision(appointment *models.Appointment, approved bool) {
	student := appointment.Student
	counsellor := appointment.Counsellor
	when := appointment.Datetime.Format("Mon, 02 Jan 2006 15:04")

	if approved {
		s.notifier.Notify(counsellor.ID,
			fmt.Sprintf("%s has approved your chat history access request.", student.Name),
			models.NotificationConsentEvent)
		s.notifier.Email(counsellor.Email,
			fmt.Sprintf("Chat History Access Approved by %s", student.Name),
			consentApprovedEmailBody(counsellor.Name, student.Name, when))
		return
	}

	s.notifier.Notify(counsellor.ID,
		fmt.Sprintf("%s has declined your chat history access request.", student.Name),
		models.NotificationConsentEvent)
	s.notifier.Email(counsellor.Email,
		"Chat History Access Request - Denied",
		consentDeniedEmailBody(counsellor.Name, student.Name))
}

// ChatHistory returns the student's decrypted chatbot transcript for a
// counsellor holding an approved consent grant on an approved appointment
// between exactly this counsellor and student. Entries that fail to decrypt
// degrade to placeholders; the rest of the transcript still returns.
func (s *AppointmentService) ChatHistory(callerID string, role models.Role, studentID, appointmentID string) ([]models.TranscriptEntry, error) {
	if role != models.RoleCounsellor {
		return nil, apperrors.NotAuthorized("only counsellors can view chat history")
	}

	var appointment models.Appointment
	err := s.db.Where("id = ? AND counsellor_id = ? AND student_id = ? AND status IN ?",
		appointmentID, callerID, studentID,
		[]models.AppointmentStatus{models.StatusApproved, models.StatusScheduled}).
		First(&appointment).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("approved appointment for this counsellor and student")
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	switch appointment.ChatHistoryAccessStatus {
	case models.ConsentApproved:
		// fall through to the transcript
	case models.ConsentPending:
		return nil, apperrors.NotAuthorized("chat history access request is pending student approval")
	case models.ConsentDenied:
		return nil, apperrors.NotAuthorized("chat history access has been denied by the student")
	default:
		return nil, apperrors.NotAuthorized("chat history access is not approved for this appointment")
	}

	var logs []models.ChatbotLog
	if err := s.db.Where("user_id = ?", studentID).Order("timestamp asc").Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("load chatbot logs: %w", err)
	}

	key := []byte(s.cfg.EncryptionKey)
	history := make([]models.TranscriptEntry, 0, len(logs))
	for _, log := range logs {
		entry := models.TranscriptEntry{Timestamp: log.Timestamp}

		query, err := utils.Decrypt(log.EncryptedQuery, log.IV, key)
		if err != nil {
			s.logger.Error("failed to decrypt chat log entry",
				zap.String("logID", log.ID), zap.Error(err))
			entry.Query = decryptionPlaceholder
			entry.Response = decryptionPlaceholder
			history = append(history, entry)
			continue
		}
		response, err := utils.Decrypt(log.EncryptedResponse, log.IV, key)
		if err != nil {
			s.logger.Error("failed to decrypt chat log entry",
				zap.String("logID", log.ID), zap.Error(err))
			entry.Query = decryptionPlaceholder
			entry.Response = decryptionPlaceholder
			history = append(history, entry)
			continue
		}

		entry.Query = query
		entry.Response = response
		history = append(history, entry)
	}

	return history, nil
}

// load fetches an appointment, optionally with both parties preloaded.
func (s *AppointmentService) load(appointmentID string, withUsers bool) (*models.Appointment, error) {
	query := s.db
	if withUsers {
		query = query.Preload("Student").Preload("Counsellor")
	}

	var appointment models.Appointment
	if err := query.First(&appointment, "id = ?", appointmentID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("appointment")
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return &appointment, nil
}

func parseConsentAction(action string) (approve bool, err error) {
	switch action {
	case "approve":
		return true, nil
	case "deny":
		return false, nil
	default:
		return false, apperrors.InvalidState("invalid action, must be 'approve' or 'deny'")
	}
}
