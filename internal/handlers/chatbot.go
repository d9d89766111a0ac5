package handlers

import (
	"github.com/gin-gonic/gin"

	"mindspace-server/internal/middleware"
	"mindspace-server/internal/services"
	"mindspace-server/internal/utils"
)

// ChatbotHandler handles wellness-assistant conversations.
type ChatbotHandler struct {
	Service *services.ChatService
}

// NewChatbotHandler creates a new ChatbotHandler.
func NewChatbotHandler(service *services.ChatService) *ChatbotHandler {
	return &ChatbotHandler{Service: service}
}

// ChatbotQueryRequest represents one message to the assistant.
type ChatbotQueryRequest struct {
	Query string `json:"query" binding:"required"`
}

// ChatbotQueryResponse carries the assistant's reply.
type ChatbotQueryResponse struct {
	Response string `json:"response"`
}

// Query forwards the student's message to the assistant and stores the
// exchange encrypted.
func (h *ChatbotHandler) Query(c *gin.Context) {
	var req ChatbotQueryRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	reply, err := h.Service.Ask(c.Request.Context(), userID, req.Query)
	if err != nil {
		utils.InternalServerError(c, "Error communicating with the chatbot: "+err.Error())
		return
	}

	utils.Success(c, "Chatbot response generated", ChatbotQueryResponse{Response: reply})
}
