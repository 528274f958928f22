package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override values from the config files.
const (
	EnvAdminKey             = "ADMIN_KEY"
	EnvDatabaseURL          = "DATABASE_URL"
	EnvDiscordAppID         = "DISCORD_APP_ID"
	EnvDiscordBotToken      = "DISCORD_BOT_TOKEN"
	EnvDiscordPublicKey     = "DISCORD_PUBLIC_KEY"
	EnvName                 = "ENV_NAME"
	EnvNotificationsDefault = "NOTIFICATIONS_ENABLED_DEFAULT"
	EnvVerifySignatures     = "VERIFY_SIGNATURES"
	EnvRedisURL             = "REDIS_URL"
)

// LoadDotEnv loads variables from a .env file in the working directory if one exists.
// Variables that are already set are left untouched.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env file: %w", err)
	}

	return nil
}

// applyEnvOverrides overlays environment variables on top of the loaded config.
func applyEnvOverrides(cfg *Config, lookupEnv func(string) (string, bool)) error {
	if v, ok := lookupEnv(EnvAdminKey); ok {
		cfg.Bot.API.AdminKey = v
	}

	if v, ok := lookupEnv(EnvDatabaseURL); ok && v != "" {
		cfg.Common.PostgreSQL.DSN = v
	}

	if v, ok := lookupEnv(EnvDiscordAppID); ok && v != "" {
		id, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s must be a numeric id: %w", ErrInvalidConfig, EnvDiscordAppID, err)
		}

		cfg.Bot.Discord.AppID = id
	}

	if v, ok := lookupEnv(EnvDiscordBotToken); ok {
		cfg.Bot.Discord.Token = v
	}

	if v, ok := lookupEnv(EnvDiscordPublicKey); ok {
		cfg.Bot.Discord.PublicKey = strings.TrimSpace(v)
	}

	if v, ok := lookupEnv(EnvName); ok && v != "" {
		cfg.Common.EnvName = v
	}

	if v, ok := lookupEnv(EnvNotificationsDefault); ok {
		cfg.Worker.Notifications.EnabledDefault = parseBool(v)
	}

	if v, ok := lookupEnv(EnvVerifySignatures); ok {
		cfg.Bot.Discord.VerifySignatures = parseBool(v)
	}

	if v, ok := lookupEnv(EnvRedisURL); ok && v != "" {
		cfg.Common.Redis.URL = v
	}

	return nil
}

// parseBool treats only a case-insensitive "true" as true.
func parseBool(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "true")
}
