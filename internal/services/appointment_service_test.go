package services

import (
	"context"
	"encoding/hex"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"mindspace-server/internal/apperrors"
	"mindspace-server/internal/config"
	"mindspace-server/internal/models"
	"mindspace-server/internal/utils"
)

// setupTestDB opens the integration test database, skipping the test when it
// is unreachable.
func setupTestDB(t *testing.T) *gorm.DB {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		dsn = "root:@tcp(localhost:3306)/mindspace_test?charset=utf8mb4&parseTime=True&loc=Local"
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Skip("Test database not available, skipping integration tests")
		return nil
	}

	require.NoError(t, models.Migrate(db))
	return db
}

func cleanupTestData(db *gorm.DB, userIDs ...string) {
	db.Exec("DELETE FROM appointments WHERE student_id IN ? OR counsellor_id IN ?", userIDs, userIDs)
	db.Exec("DELETE FROM chatbot_logs WHERE user_id IN ?", userIDs)
	db.Exec("DELETE FROM notifications WHERE user_id IN ?", userIDs)
	db.Exec("DELETE FROM users WHERE id IN ?", userIDs)
}

// stubMeetings is a MeetingLinkGenerator with a canned outcome.
type stubMeetings struct {
	link string
	err  error
}

func (s stubMeetings) CreateMeeting(ctx context.Context, details MeetingDetails) (string, error) {
	return s.link, s.err
}

func testConfig() *config.Config {
	return &config.Config{
		EncryptionKey:           "0123456789abcdef0123456789abcdef",
		ConsentTokenExpiryHours: 24,
		AppURL:                  "http://localhost:3001",
		FrontendURL:             "http://localhost:5173",
	}
}

func newTestService(t *testing.T, db *gorm.DB, meetings MeetingLinkGenerator) *AppointmentService {
	logger := zap.NewNop()
	cfg := testConfig()
	notifier := NewNotifier(db, NewMailer(config.SMTPConfig{}, logger), logger)
	return NewAppointmentService(db, cfg, notifier, meetings, logger)
}

func createUser(t *testing.T, db *gorm.DB, name string, role models.Role) *models.User {
	user := &models.User{
		Name:  name,
		Email: name + "-" + time.Now().Format("150405.000000000") + "@test.local",
		Role:  role,
	}
	require.NoError(t, user.SetPassword("password123"))
	require.NoError(t, db.Create(user).Error)
	return user
}

func bookAppointment(t *testing.T, svc *AppointmentService, student, counsellor *models.User) *models.Appointment {
	appt, err := svc.Create(student.ID, counsellor.ID, time.Now().Add(48*time.Hour), false)
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, appt.Status)
	return appt
}

func approveAppointment(t *testing.T, svc *AppointmentService, counsellor *models.User, appointmentID string) *models.Appointment {
	appt, err := svc.UpdateStatus(context.Background(), counsellor.ID, models.RoleCounsellor,
		appointmentID, StatusUpdate{Status: models.StatusApproved})
	require.NoError(t, err)
	require.Equal(t, models.StatusApproved, appt.Status)
	return appt
}

func reloadAppointment(t *testing.T, db *gorm.DB, id string) *models.Appointment {
	var appt models.Appointment
	require.NoError(t, db.First(&appt, "id = ?", id).Error)
	return &appt
}

func TestUpdateStatusTransitions(t *testing.T) {
	db := setupTestDB(t)
	if db == nil {
		return
	}

	svc := newTestService(t, db, stubMeetings{link: "https://meet.test/abc"})
	student := createUser(t, db, "student", models.RoleStudent)
	counsellor := createUser(t, db, "counsellor", models.RoleCounsellor)
	defer cleanupTestData(db, student.ID, counsellor.ID)

	appt := bookAppointment(t, svc, student, counsellor)
	ctx := context.Background()

	// pending -> completed is not reachable
	_, err := svc.UpdateStatus(ctx, counsellor.ID, models.RoleCounsellor, appt.ID,
		StatusUpdate{Status: models.StatusCompleted})
	assert.True(t, apperrors.IsInvalidState(err))

	// non-owning counsellor cannot transition
	other := createUser(t, db, "other-counsellor", models.RoleCounsellor)
	defer cleanupTestData(db, other.ID)
	_, err = svc.UpdateStatus(ctx, other.ID, models.RoleCounsellor, appt.ID,
		StatusUpdate{Status: models.StatusApproved})
	assert.True(t, apperrors.IsAuthorization(err))
	assert.Equal(t, models.StatusPending, reloadAppointment(t, db, appt.ID).Status)

	// student cannot approve their own booking
	_, err = svc.UpdateStatus(ctx, student.ID, models.RoleStudent, appt.ID,
		StatusUpdate{Status: models.StatusApproved})
	assert.True(t, apperrors.IsAuthorization(err))

	// owning counsellor approves, meet link lands on the row
	approved := approveAppointment(t, svc, counsellor, appt.ID)
	assert.Equal(t, "https://meet.test/abc", approved.MeetLink)

	// approved -> approved is illegal; approved -> cancelled sets the remark
	_, err = svc.UpdateStatus(ctx, counsellor.ID, models.RoleCounsellor, appt.ID,
		StatusUpdate{Status: models.StatusApproved})
	assert.True(t, apperrors.IsInvalidState(err))

	cancelled, err := svc.UpdateStatus(ctx, student.ID, models.RoleStudent, appt.ID,
		StatusUpdate{Status: models.StatusCancelled})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.Equal(t, "No remark provided", cancelled.CancellationRemark)

	// cancelled is absorbing
	_, err = svc.UpdateStatus(ctx, counsellor.ID, models.RoleCounsellor, appt.ID,
		StatusUpdate{Status: models.StatusApproved})
	assert.True(t, apperrors.IsInvalidState(err))
}

func TestApproveSurvivesMeetLinkFailure(t *testing.T) {
	db := setupTestDB(t)
	if db == nil {
		return
	}

	svc := newTestService(t, db, stubMeetings{err: errors.New("calendar down")})
	student := createUser(t, db, "student", models.RoleStudent)
	counsellor := createUser(t, db, "counsellor", models.RoleCounsellor)
	defer cleanupTestData(db, student.ID, counsellor.ID)

	appt := bookAppointment(t, svc, student, counsellor)

	approved, err := svc.UpdateStatus(context.Background(), counsellor.ID, models.RoleCounsellor,
		appt.ID, StatusUpdate{Status: models.StatusApproved})
	require.NoError(t, err, "meet link failure must not abort the approval")
	assert.Equal(t, models.StatusApproved, approved.Status)
	assert.Empty(t, approved.MeetLink)

	// The student got the degraded notification
	var notifications []models.Notification
	require.NoError(t, db.Where("user_id = ?", student.ID).Find(&notifications).Error)
	require.NotEmpty(t, notifications)
	assert.Contains(t, notifications[len(notifications)-1].Message, "meeting link is currently unavailable")
}

func TestRejectWithSuggestedDatetime(t *testing.T) {
	db := setupTestDB(t)
	if db == nil {
		return
	}

	svc := newTestService(t, db, stubMeetings{link: "https://meet.test/abc"})
	student := createUser(t, db, "student", models.RoleStudent)
	counsellor := createUser(t, db, "counsellor", models.RoleCounsellor)
	defer cleanupTestData(db, student.ID, counsellor.ID)

	appt := bookAppointment(t, svc, student, counsellor)
	suggested := time.Now().Add(96 * time.Hour).Truncate(time.Second)

	rejected, err := svc.UpdateStatus(context.Background(), counsellor.ID, models.RoleCounsellor,
		appt.ID, StatusUpdate{Status: models.StatusRejected, SuggestedDatetime: &suggested})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.Status)
	require.NotNil(t, rejected.SuggestedDatetime)
	assert.WithinDuration(t, suggested, *rejected.SuggestedDatetime, time.Second)
	assert.Empty(t, rejected.CancellationRemark)
}

func TestConsentRequestLifecycle(t *testing.T) {
	db := setupTestDB(t)
	if db == nil {
		return
	}

	svc := newTestService(t, db, stubMeetings{link: "https://meet.test/abc"})
	student := createUser(t, db, "student", models.RoleStudent)
	counsellor := createUser(t, db, "counsellor", models.RoleCounsellor)
	defer cleanupTestData(db, student.ID, counsellor.ID)

	appt := bookAppointment(t, svc, student, counsellor)

	// Not approved yet
	_, err := svc.RequestChatHistoryAccess(counsellor.ID, models.RoleCounsellor, appt.ID)
	assert.True(t, apperrors.IsInvalidState(err))

	approveAppointment(t, svc, counsellor, appt.ID)

	// Students cannot request
	_, err = svc.RequestChatHistoryAccess(student.ID, models.RoleStudent, appt.ID)
	assert.True(t, apperrors.IsAuthorization(err))

	// First request issues a token
	_, err = svc.RequestChatHistoryAccess(counsellor.ID, models.RoleCounsellor, appt.ID)
	require.NoError(t, err)

	stored := reloadAppointment(t, db, appt.ID)
	assert.Equal(t, models.ConsentPending, stored.ChatHistoryAccessStatus)
	require.NotEmpty(t, stored.ChatHistoryAccessToken)
	require.NotNil(t, stored.ChatHistoryAccessTokenExpires)
	firstToken := stored.ChatHistoryAccessToken

	// Re-request while pending is a no-op: same token, no rotation
	msg, err := svc.RequestChatHistoryAccess(counsellor.ID, models.RoleCounsellor, appt.ID)
	require.NoError(t, err)
	assert.Contains(t, msg, "already pending")
	assert.Equal(t, firstToken, reloadAppointment(t, db, appt.ID).ChatHistoryAccessToken)

	// Approve via link, token is consumed
	require.NoError(t, svc.RespondChatHistoryAccess(appt.ID, firstToken, "approve"))
	stored = reloadAppointment(t, db, appt.ID)
	assert.Equal(t, models.ConsentApproved, stored.ChatHistoryAccessStatus)
	assert.Empty(t, stored.ChatHistoryAccessToken)
	assert.Nil(t, stored.ChatHistoryAccessTokenExpires)
	require.NotNil(t, stored.ChatHistoryAccessRespondedAt)

	// Single-use: the consumed token fails generically
	err = svc.RespondChatHistoryAccess(appt.ID, firstToken, "approve")
	assert.True(t, apperrors.IsInvalidToken(err))

	// Approved grant blocks a fresh request
	_, err = svc.RequestChatHistoryAccess(counsellor.ID, models.RoleCounsellor, appt.ID)
	assert.True(t, apperrors.IsInvalidState(err))
}

func TestConsentDenyInAppBeatsStaleLink(t *testing.T) {
	db := setupTestDB(t)
	if db == nil {
		return
	}

	svc := newTestService(t, db, stubMeetings{link: "https://meet.test/abc"})
	student := createUser(t, db, "student", models.RoleStudent)
	counsellor := createUser(t, db, "counsellor", models.RoleCounsellor)
	defer cleanupTestData(db, student.ID, counsellor.ID)

	appt := bookAppointment(t, svc, student, counsellor)
	approveAppointment(t, svc, counsellor, appt.ID)

	_, err := svc.RequestChatHistoryAccess(counsellor.ID, models.RoleCounsellor, appt.ID)
	require.NoError(t, err)
	token := reloadAppointment(t, db, appt.ID).ChatHistoryAccessToken

	// Only the owning student may respond in-app
	other := createUser(t, db, "other-student", models.RoleStudent)
	defer cleanupTestData(db, other.ID)
	err = svc.RespondChatHistoryAccessInApp(other.ID, models.RoleStudent, appt.ID, "deny")
	assert.True(t, apperrors.IsAuthorization(err))

	// Student denies in-app
	require.NoError(t, svc.RespondChatHistoryAccessInApp(student.ID, models.RoleStudent, appt.ID, "deny"))
	stored := reloadAppointment(t, db, appt.ID)
	assert.Equal(t, models.ConsentDenied, stored.ChatHistoryAccessStatus)
	assert.Empty(t, stored.ChatHistoryAccessToken)

	// The email link with the old token now fails, even for approve
	err = svc.RespondChatHistoryAccess(appt.ID, token, "approve")
	assert.True(t, apperrors.IsInvalidToken(err))
	assert.Equal(t, models.ConsentDenied, reloadAppointment(t, db, appt.ID).ChatHistoryAccessStatus)

	// A second in-app response also fails: no longer pending
	err = svc.RespondChatHistoryAccessInApp(student.ID, models.RoleStudent, appt.ID, "approve")
	assert.True(t, apperrors.IsInvalidState(err))

	// Denied is re-requestable: a fresh cycle starts with a new token
	_, err = svc.RequestChatHistoryAccess(counsellor.ID, models.RoleCounsellor, appt.ID)
	require.NoError(t, err)
	stored = reloadAppointment(t, db, appt.ID)
	assert.Equal(t, models.ConsentPending, stored.ChatHistoryAccessStatus)
	assert.NotEqual(t, token, stored.ChatHistoryAccessToken)
}

func TestConsentTokenExpiry(t *testing.T) {
	db := setupTestDB(t)
	if db == nil {
		return
	}

	svc := newTestService(t, db, stubMeetings{link: "https://meet.test/abc"})
	student := createUser(t, db, "student", models.RoleStudent)
	counsellor := createUser(t, db, "counsellor", models.RoleCounsellor)
	defer cleanupTestData(db, student.ID, counsellor.ID)

	appt := bookAppointment(t, svc, student, counsellor)
	approveAppointment(t, svc, counsellor, appt.ID)

	_, err := svc.RequestChatHistoryAccess(counsellor.ID, models.RoleCounsellor, appt.ID)
	require.NoError(t, err)
	token := reloadAppointment(t, db, appt.ID).ChatHistoryAccessToken

	// Force the token past its expiry
	expired := time.Now().Add(-time.Minute)
	require.NoError(t, db.Model(&models.Appointment{}).Where("id = ?", appt.ID).
		Update("chat_history_access_token_expires", expired).Error)

	// The correct token no longer validates
	err = svc.RespondChatHistoryAccess(appt.ID, token, "approve")
	assert.True(t, apperrors.IsInvalidToken(err))
	assert.Equal(t, models.ConsentPending, reloadAppointment(t, db, appt.ID).ChatHistoryAccessStatus)

	// Expiry unblocks re-issue with a fresh token
	_, err = svc.RequestChatHistoryAccess(counsellor.ID, models.RoleCounsellor, appt.ID)
	require.NoError(t, err)
	rotated := reloadAppointment(t, db, appt.ID)
	assert.NotEqual(t, token, rotated.ChatHistoryAccessToken)
	assert.True(t, rotated.ChatHistoryAccessTokenExpires.After(time.Now()))
}

func TestConcurrentConsentResponses(t *testing.T) {
	db := setupTestDB(t)
	if db == nil {
		return
	}

	svc := newTestService(t, db, stubMeetings{link: "https://meet.test/abc"})
	student := createUser(t, db, "student", models.RoleStudent)
	counsellor := createUser(t, db, "counsellor", models.RoleCounsellor)
	defer cleanupTestData(db, student.ID, counsellor.ID)

	appt := bookAppointment(t, svc, student, counsellor)
	approveAppointment(t, svc, counsellor, appt.ID)
	_, err := svc.RequestChatHistoryAccess(counsellor.ID, models.RoleCounsellor, appt.ID)
	require.NoError(t, err)
	token := reloadAppointment(t, db, appt.ID).ChatHistoryAccessToken

	// Link approve and in-app deny race on the same pending request
	var wg sync.WaitGroup
	var linkErr, inAppErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		linkErr = svc.RespondChatHistoryAccess(appt.ID, token, "approve")
	}()
	go func() {
		defer wg.Done()
		inAppErr = svc.RespondChatHistoryAccessInApp(student.ID, models.RoleStudent, appt.ID, "deny")
	}()
	wg.Wait()

	stored := reloadAppointment(t, db, appt.ID)
	if linkErr == nil && inAppErr != nil {
		assert.Equal(t, models.ConsentApproved, stored.ChatHistoryAccessStatus)
	} else if linkErr != nil && inAppErr == nil {
		assert.Equal(t, models.ConsentDenied, stored.ChatHistoryAccessStatus)
	} else {
		t.Fatalf("exactly one responder must win: linkErr=%v inAppErr=%v", linkErr, inAppErr)
	}
	assert.Empty(t, stored.ChatHistoryAccessToken)
}

func TestChatHistoryGatingAndDecryption(t *testing.T) {
	db := setupTestDB(t)
	if db == nil {
		return
	}

	svc := newTestService(t, db, stubMeetings{link: "https://meet.test/abc"})
	student := createUser(t, db, "student", models.RoleStudent)
	counsellor := createUser(t, db, "counsellor", models.RoleCounsellor)
	defer cleanupTestData(db, student.ID, counsellor.ID)

	appt := bookAppointment(t, svc, student, counsellor)

	// No approved appointment between the pair yet
	_, err := svc.ChatHistory(counsellor.ID, models.RoleCounsellor, student.ID, appt.ID)
	assert.True(t, apperrors.IsNotFound(err))

	approveAppointment(t, svc, counsellor, appt.ID)

	// Approved appointment but no consent yet
	_, err = svc.ChatHistory(counsellor.ID, models.RoleCounsellor, student.ID, appt.ID)
	assert.True(t, apperrors.IsAuthorization(err))

	// Pending consent is still not enough
	_, err = svc.RequestChatHistoryAccess(counsellor.ID, models.RoleCounsellor, appt.ID)
	require.NoError(t, err)
	_, err = svc.ChatHistory(counsellor.ID, models.RoleCounsellor, student.ID, appt.ID)
	assert.True(t, apperrors.IsAuthorization(err))

	// Student approves; seed two readable entries and one corrupt one
	token := reloadAppointment(t, db, appt.ID).ChatHistoryAccessToken
	require.NoError(t, svc.RespondChatHistoryAccess(appt.ID, token, "approve"))

	key := []byte(testConfig().EncryptionKey)
	base := time.Now().Add(-3 * time.Hour).Truncate(time.Second)
	seedChatLog(t, db, student.ID, key, "first question", "first answer", base)
	require.NoError(t, db.Create(&models.ChatbotLog{
		UserID:            student.ID,
		EncryptedQuery:    "deadbeef",
		EncryptedResponse: "deadbeef",
		IV:                "not-a-valid-iv",
		Timestamp:         base.Add(time.Hour),
	}).Error)
	seedChatLog(t, db, student.ID, key, "second question", "second answer", base.Add(2*time.Hour))

	history, err := svc.ChatHistory(counsellor.ID, models.RoleCounsellor, student.ID, appt.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)

	// Ordered by timestamp, with the corrupt row degraded to placeholders
	assert.Equal(t, "first question", history[0].Query)
	assert.Equal(t, "first answer", history[0].Response)
	assert.Equal(t, "[Decryption Error]", history[1].Query)
	assert.Equal(t, "[Decryption Error]", history[1].Response)
	assert.Equal(t, "second question", history[2].Query)
	assert.Equal(t, "second answer", history[2].Response)

	// A different counsellor has no approved appointment with this student
	other := createUser(t, db, "other-counsellor", models.RoleCounsellor)
	defer cleanupTestData(db, other.ID)
	_, err = svc.ChatHistory(other.ID, models.RoleCounsellor, student.ID, appt.ID)
	assert.True(t, apperrors.IsNotFound(err))

	// Students cannot use the counsellor read path at all
	_, err = svc.ChatHistory(student.ID, models.RoleStudent, student.ID, appt.ID)
	assert.True(t, apperrors.IsAuthorization(err))
}

func seedChatLog(t *testing.T, db *gorm.DB, userID string, key []byte, query, response string, ts time.Time) {
	iv, err := utils.GenerateIV()
	require.NoError(t, err)
	encQuery, err := utils.EncryptWithIV(query, key, iv)
	require.NoError(t, err)
	encResponse, err := utils.EncryptWithIV(response, key, iv)
	require.NoError(t, err)

	require.NoError(t, db.Create(&models.ChatbotLog{
		UserID:            userID,
		EncryptedQuery:    encQuery,
		EncryptedResponse: encResponse,
		IV:                hex.EncodeToString(iv),
		Timestamp:         ts,
	}).Error)
}

func TestDeleteAppointment(t *testing.T) {
	db := setupTestDB(t)
	if db == nil {
		return
	}

	svc := newTestService(t, db, stubMeetings{link: "https://meet.test/abc"})
	student := createUser(t, db, "student", models.RoleStudent)
	counsellor := createUser(t, db, "counsellor", models.RoleCounsellor)
	defer cleanupTestData(db, student.ID, counsellor.ID)

	appt := bookAppointment(t, svc, student, counsellor)

	// Not cancelled yet
	err := svc.Delete(student.ID, models.RoleStudent, appt.ID)
	assert.True(t, apperrors.IsInvalidState(err))

	// Counsellors cannot delete
	err = svc.Delete(counsellor.ID, models.RoleCounsellor, appt.ID)
	assert.True(t, apperrors.IsAuthorization(err))

	_, err = svc.UpdateStatus(context.Background(), student.ID, models.RoleStudent, appt.ID,
		StatusUpdate{Status: models.StatusCancelled, CancellationRemark: "schedule conflict"})
	require.NoError(t, err)
	assert.Equal(t, "schedule conflict", reloadAppointment(t, db, appt.ID).CancellationRemark)

	// Another student cannot delete it either
	other := createUser(t, db, "other-student", models.RoleStudent)
	defer cleanupTestData(db, other.ID)
	err = svc.Delete(other.ID, models.RoleStudent, appt.ID)
	assert.True(t, apperrors.IsAuthorization(err))

	require.NoError(t, svc.Delete(student.ID, models.RoleStudent, appt.ID))

	var count int64
	require.NoError(t, db.Model(&models.Appointment{}).Where("id = ?", appt.ID).Count(&count).Error)
	assert.Zero(t, count)
}
