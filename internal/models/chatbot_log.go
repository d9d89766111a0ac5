package models

import (
	"time"
)

// ChatbotLog stores one encrypted wellness-assistant exchange for a user.
// Query and response are AES-256-CBC encrypted hex strings sharing one IV;
// plaintext never touches the table.
type ChatbotLog struct {
	BaseModel
	UserID            string    `gorm:"size:36;index" json:"userId"`
	EncryptedQuery    string    `gorm:"type:text;not null" json:"-"`
	EncryptedResponse string    `gorm:"type:text;not null" json:"-"`
	IV                string    `gorm:"size:64;not null" json:"-"`
	Timestamp         time.Time `gorm:"index" json:"timestamp"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

// TranscriptEntry is one decrypted exchange as returned to an authorized
// counsellor.
type TranscriptEntry struct {
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}
