package handlers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"mindspace-server/internal/models"
	"mindspace-server/internal/utils"
)

// UserHandler handles user directory requests.
type UserHandler struct {
	DB *gorm.DB
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{DB: db}
}

// GetCounsellors lists counsellors available for booking.
func (h *UserHandler) GetCounsellors(c *gin.Context) {
	var counsellors []models.User
	if err := h.DB.Where("role = ?", models.RoleCounsellor).Order("name asc").Find(&counsellors).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch counsellors: "+err.Error())
		return
	}

	sanitized := make([]models.UserSanitized, 0, len(counsellors))
	for i := range counsellors {
		sanitized = append(sanitized, counsellors[i].Sanitize())
	}

	utils.Success(c, "Counsellors fetched successfully", sanitized)
}

// GetUserByID fetches a single user's public profile.
func (h *UserHandler) GetUserByID(c *gin.Context) {
	var user models.User
	if err := h.DB.First(&user, "id = ?", c.Param("id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.NotFound(c, "User not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return
	}

	utils.Success(c, "User fetched successfully", user.Sanitize())
}
