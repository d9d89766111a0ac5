package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mindspace-server/internal/apperrors"
	"mindspace-server/internal/middleware"
	"mindspace-server/internal/models"
	"mindspace-server/internal/services"
	"mindspace-server/internal/utils"
)

// AppointmentHandler handles appointment and chat-history consent requests.
type AppointmentHandler struct {
	Service *services.AppointmentService
}

// NewAppointmentHandler creates a new AppointmentHandler.
func NewAppointmentHandler(service *services.AppointmentService) *AppointmentHandler {
	return &AppointmentHandler{Service: service}
}

// CreateAppointmentRequest represents the request body for booking an appointment.
type CreateAppointmentRequest struct {
	CounsellorID string    `json:"counsellorId" binding:"required,uuid"`
	Datetime     time.Time `json:"datetime" binding:"required"`
	Anonymous    bool      `json:"anonymous"`
}

// CreateAppointment books a new pending appointment for the authenticated student.
func (h *AppointmentHandler) CreateAppointment(c *gin.Context) {
	var req CreateAppointmentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	studentID, _, ok := middleware.Principal(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	appointment, err := h.Service.Create(studentID, req.CounsellorID, req.Datetime, req.Anonymous)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.Created(c, "Appointment created successfully", appointment)
}

// GetAppointments lists the caller's appointments (all of them for admins).
func (h *AppointmentHandler) GetAppointments(c *gin.Context) {
	userID, role, ok := middleware.Principal(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	appointments, err := h.Service.ListForUser(userID, role)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.Success(c, "Appointments fetched successfully", appointments)
}

// GetAppointmentByID fetches one appointment for an involved party or admin.
func (h *AppointmentHandler) GetAppointmentByID(c *gin.Context) {
	userID, role, ok := middleware.Principal(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	appointment, err := h.Service.Get(userID, role, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.Success(c, "Appointment fetched successfully", appointment)
}

// UpdateAppointmentStatusRequest represents the request body for a status transition.
type UpdateAppointmentStatusRequest struct {
	Status             models.AppointmentStatus `json:"status" binding:"required,oneof=pending approved rejected scheduled completed cancelled"`
	SuggestedDatetime  *time.Time               `json:"suggestedDatetime"`
	CancellationRemark string                   `json:"cancellationRemark"`
}

// UpdateAppointmentStatus applies a status transition. Counsellors and admins
// drive approvals and rejections; students may cancel their own bookings.
func (h *AppointmentHandler) UpdateAppointmentStatus(c *gin.Context) {
	var req UpdateAppointmentStatusRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	userID, role, ok := middleware.Principal(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	appointment, err := h.Service.UpdateStatus(c.Request.Context(), userID, role, c.Param("id"), services.StatusUpdate{
		Status:             req.Status,
		SuggestedDatetime:  req.SuggestedDatetime,
		CancellationRemark: req.CancellationRemark,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.Success(c, "Appointment status updated successfully", appointment)
}

// DeleteAppointment removes a cancelled appointment owned by the caller.
func (h *AppointmentHandler) DeleteAppointment(c *gin.Context) {
	userID, role, ok := middleware.Principal(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	if err := h.Service.Delete(userID, role, c.Param("id")); err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.Success(c, "Appointment deleted successfully", nil)
}

// RequestChatHistoryAccess starts a consent cycle on behalf of the owning
// counsellor. The response never contains the token.
func (h *AppointmentHandler) RequestChatHistoryAccess(c *gin.Context) {
	userID, role, ok := middleware.Principal(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	message, err := h.Service.RequestChatHistoryAccess(userID, role, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.Success(c, message, nil)
}

// RespondChatHistoryAccess resolves a consent request via the email link.
// This route is deliberately unauthenticated so the links work from any
// device; the token is the sole credential. The response is a small
// human-readable page rather than JSON.
func (h *AppointmentHandler) RespondChatHistoryAccess(c *gin.Context) {
	token := c.Query("token")
	action := c.Query("action")

	err := h.Service.RespondChatHistoryAccess(c.Param("id"), token, action)
	if err != nil {
		status := http.StatusBadRequest
		if apperrors.IsNotFound(err) {
			status = http.StatusNotFound
		}
		c.Data(status, "text/html; charset=utf-8", []byte(consentResultPage("Request Failed", err.Error())))
		return
	}

	if action == "approve" {
		c.Data(http.StatusOK, "text/html; charset=utf-8",
			[]byte(consentResultPage("Access Approved", "Chat history access has been <strong>approved</strong>. You can close this window.")))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8",
		[]byte(consentResultPage("Access Denied", "Chat history access has been <strong>denied</strong>. Your counsellor will be notified. You can close this window.")))
}

// ConsentResponseRequest represents the in-app response body.
type ConsentResponseRequest struct {
	Action string `json:"action" binding:"required,oneof=approve deny"`
}

// RespondChatHistoryAccessInApp resolves a consent request from the
// authenticated student's session.
func (h *AppointmentHandler) RespondChatHistoryAccessInApp(c *gin.Context) {
	var req ConsentResponseRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	userID, role, ok := middleware.Principal(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	if err := h.Service.RespondChatHistoryAccessInApp(userID, role, c.Param("id"), req.Action); err != nil {
		utils.RespondError(c, err)
		return
	}

	if req.Action == "approve" {
		utils.Success(c, "Chat history access approved successfully.", nil)
		return
	}
	utils.Success(c, "Chat history access denied successfully.", nil)
}

// GetCounsellorChatHistory returns the decrypted transcript once the student
// has approved disclosure.
func (h *AppointmentHandler) GetCounsellorChatHistory(c *gin.Context) {
	userID, role, ok := middleware.Principal(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	history, err := h.Service.ChatHistory(userID, role, c.Param("studentId"), c.Param("appointmentId"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	if len(history) == 0 {
		utils.Success(c, "No chatbot history found for this student.", []models.TranscriptEntry{})
		return
	}
	utils.Success(c, "Chat history fetched and decrypted successfully", history)
}

func consentResultPage(title, body string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body>
    <p>%s</p>
</body>
</html>`, title, body)
}
