package services

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"mindspace-server/internal/apperrors"
	"mindspace-server/internal/config"
	"mindspace-server/internal/models"
	"mindspace-server/internal/utils"
)

// ChatService runs wellness-assistant conversations and persists each
// exchange encrypted. The stored rows are the encrypted log store the
// consent workflow later discloses to counsellors.
type ChatService struct {
	db        *gorm.DB
	assistant *Assistant
	key       []byte
	logger    *zap.Logger
}

// NewChatService creates a ChatService.
func NewChatService(db *gorm.DB, assistant *Assistant, cfg *config.Config, logger *zap.Logger) *ChatService {
	return &ChatService{
		db:        db,
		assistant: assistant,
		key:       []byte(cfg.EncryptionKey),
		logger:    logger,
	}
}

// Ask forwards the student's message to the assistant, stores the exchange
// encrypted under one fresh IV, and returns the assistant's reply.
func (s *ChatService) Ask(ctx context.Context, userID, query string) (string, error) {
	reply, err := s.assistant.Reply(ctx, query)
	if err != nil {
		return "", apperrors.Upstream("wellness assistant", err)
	}

	iv, err := utils.GenerateIV()
	if err != nil {
		return "", err
	}
	encryptedQuery, err := utils.EncryptWithIV(query, s.key, iv)
	if err != nil {
		return "", fmt.Errorf("encrypt query: %w", err)
	}
	encryptedResponse, err := utils.EncryptWithIV(reply, s.key, iv)
	if err != nil {
		return "", fmt.Errorf("encrypt response: %w", err)
	}

	log := models.ChatbotLog{
		UserID:            userID,
		EncryptedQuery:    encryptedQuery,
		EncryptedResponse: encryptedResponse,
		IV:                hex.EncodeToString(iv),
		Timestamp:         time.Now(),
	}
	if err := s.db.Create(&log).Error; err != nil {
		return "", fmt.Errorf("store chatbot log: %w", err)
	}

	return reply, nil
}
