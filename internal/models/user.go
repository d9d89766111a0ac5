package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Role enum
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleCounsellor Role = "counsellor"
	RoleStudent    Role = "student"
)

// User represents a user in the system
type User struct {
	BaseModel
	Email          string `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password       string `gorm:"size:255;not null" json:"-"` // Never send password in JSON
	Name           string `gorm:"size:150" json:"name"`
	Role           Role   `gorm:"size:20;default:'student'" json:"role"`
	Specialization string `gorm:"size:150" json:"specialization,omitempty"`
	Bio            string `gorm:"type:text" json:"bio,omitempty"`
	Contact        string `gorm:"size:50" json:"contact,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`

	// Relations (not always preloaded)
	RefreshTokens          []RefreshToken `gorm:"foreignKey:UserID" json:"-"`
	StudentAppointments    []Appointment  `gorm:"foreignKey:StudentID" json:"-"`
	CounsellorAppointments []Appointment  `gorm:"foreignKey:CounsellorID" json:"-"`
	ChatbotLogs            []ChatbotLog   `gorm:"foreignKey:UserID" json:"-"`
	Notifications          []Notification `gorm:"foreignKey:UserID" json:"-"`
}

// UserSanitized represents the user data that is safe to send in API responses.
type UserSanitized struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	Role           Role      `json:"role"`
	Specialization string    `json:"specialization,omitempty"`
	Bio            string    `json:"bio,omitempty"`
	Contact        string    `json:"contact,omitempty"`
	ProfilePicture string    `json:"profilePicture,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// SetPassword hashes a password and sets it on the user
func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	return nil
}

// CheckPassword compares a password with the user's hashed password
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
	return err == nil
}

// Sanitize creates a UserSanitized struct from a User model, excluding sensitive data.
func (u *User) Sanitize() UserSanitized {
	return UserSanitized{
		ID:             u.ID,
		Email:          u.Email,
		Name:           u.Name,
		Role:           u.Role,
		Specialization: u.Specialization,
		Bio:            u.Bio,
		Contact:        u.Contact,
		ProfilePicture: u.ProfilePicture,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}
