package config

import (
	"os"
)

type Config struct {
	// Server
	Port string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Auth (single user)
	AdminUsername    string
	AdminPassword    string
	AdminDisplayName string
	AdminRole        string
	JWTSecret        string

	// Credential encryption (32-byte hex for AES-256-GCM)
	CredEncryptionKey string
}

func Load() *Config {
	return &Config{
		Port:              getEnv("PORT", "8098"),
		DBHost:            getEnv("DB_HOST", "localhost"),
		DBPort:            getEnv("DB_PORT", "5432"),
		DBUser:            getEnv("DB_USER", "postgres"),
		DBPassword:        getEnv("DB_PASSWORD", ""),
		DBName:            getEnv("DB_NAME", "passage_db"),
		DBSSLMode:         getEnv("DB_SSLMODE", "disable"),
		AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:     getEnv("ADMIN_PASSWORD", ""),
		AdminDisplayName:  getEnv("ADMIN_DISPLAY_NAME", "Admin"),
		AdminRole:         getEnv("ADMIN_ROLE", "admin"),
		JWTSecret:         getEnv("JWT_SECRET", ""),
		CredEncryptionKey: getEnv("CRED_ENCRYPTION_KEY", ""),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
