package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all configuration for our application
type Config struct {
	Port                      string
	Origin                    string
	Environment               string
	JWTSecret                 string
	JWTRefreshSecret          string
	Database                  DatabaseConfig
	SMTP                      SMTPConfig
	Google                    GoogleCalendarConfig
	Assistant                 AssistantConfig
	JWTExpirationMinutes      int
	JWTRefreshExpirationHours int
	ConsentTokenExpiryHours   int
	EncryptionKey             string
	AppURL                    string
	FrontendURL               string
}

// DatabaseConfig holds database connection details
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Name     string
	DSN      string
}

// SMTPConfig holds outbound email configuration. An empty Host disables
// email delivery; notifications still land in the in-app feed.
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromName  string
	FromEmail string
}

// GoogleCalendarConfig holds the OAuth credentials used to create
// calendar events with Meet links on appointment approval.
type GoogleCalendarConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	RefreshToken string
	TimeZone     string
}

// AssistantConfig holds the wellness assistant (LLM) settings.
type AssistantConfig struct {
	APIKey string
	Model  string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "3306"),
		Username: getEnv("DB_USERNAME", "root"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "mindspace"),
	}

	// Build DSN (Data Source Name) for MySQL connection
	dbConfig.DSN = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		dbConfig.Username, dbConfig.Password, dbConfig.Host, dbConfig.Port, dbConfig.Name)

	smtpPort, err := strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	smtpConfig := SMTPConfig{
		Host:      getEnv("SMTP_HOST", ""),
		Port:      smtpPort,
		Username:  getEnv("SMTP_USER", ""),
		Password:  getEnv("SMTP_PASSWORD", ""),
		FromName:  getEnv("FROM_NAME", "MindSpace Team"),
		FromEmail: getEnv("FROM_EMAIL", "no-reply@mindspace.local"),
	}

	googleConfig := GoogleCalendarConfig{
		ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		RedirectURI:  getEnv("GOOGLE_REDIRECT_URI", ""),
		RefreshToken: getEnv("GOOGLE_REFRESH_TOKEN", ""),
		TimeZone:     getEnv("GOOGLE_CALENDAR_TIMEZONE", "Asia/Kolkata"),
	}

	assistantConfig := AssistantConfig{
		APIKey: getEnv("OPENAI_API_KEY", ""),
		Model:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),
	}

	jwtExpMinutes, err := strconv.Atoi(getEnv("JWT_EXPIRATION_MINUTES", "15"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRATION_MINUTES: %w", err)
	}

	jwtRefreshExpHours, err := strconv.Atoi(getEnv("JWT_REFRESH_EXPIRATION_HOURS", "168")) // 7 days
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_REFRESH_EXPIRATION_HOURS: %w", err)
	}

	consentTokenExpiryHours, err := strconv.Atoi(getEnv("CONSENT_TOKEN_EXPIRY_HOURS", "24"))
	if err != nil {
		return nil, fmt.Errorf("invalid CONSENT_TOKEN_EXPIRY_HOURS: %w", err)
	}

	// AES-256 needs a 32-byte key
	encryptionKey := getEnv("ENCRYPTION_KEY", "")
	if len(encryptionKey) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 characters (got %d)", len(encryptionKey))
	}

	return &Config{
		Port:                      getEnv("PORT", "3001"),
		Origin:                    getEnv("ORIGIN", "http://localhost:5173"),
		Environment:               getEnv("APP_ENV", "development"),
		JWTSecret:                 getEnv("JWT_SECRET", "default_jwt_secret"),
		JWTRefreshSecret:          getEnv("JWT_REFRESH_SECRET", "default_refresh_secret"),
		Database:                  dbConfig,
		SMTP:                      smtpConfig,
		Google:                    googleConfig,
		Assistant:                 assistantConfig,
		JWTExpirationMinutes:      jwtExpMinutes,
		JWTRefreshExpirationHours: jwtRefreshExpHours,
		ConsentTokenExpiryHours:   consentTokenExpiryHours,
		EncryptionKey:             encryptionKey,
		AppURL:                    getEnv("APP_URL", "http://localhost:3001"),
		FrontendURL:               getEnv("FRONTEND_URL", "http://localhost:5173"),
	}, nil
}

// Helper function to get environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
