/**
 * @description
 * This package handles the configuration management for the camp-portal. It uses the
 * Viper library to read configuration from environment variables and an optional .env
 * file.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultServerPort           = "8080"
	defaultCampAPITimeout       = 30
	defaultParticipantQueue     = "camp_portal.participant_counts"
	defaultRedisLockPrefix      = "camp_portal:submission_lock"
	defaultSubmissionLockSecs   = 15
	defaultOutboxFlushSchedule  = "@every 5s"
	defaultAllowedOriginsString = "http://localhost:5173"
)

// Config holds all the configuration variables for the camp-portal.
type Config struct {
	ServerPort            string `mapstructure:"SERVER_PORT"`
	CampAPIBaseURL        string `mapstructure:"CAMP_API_BASE_URL"`
	CampAPITimeoutSeconds int    `mapstructure:"CAMP_API_TIMEOUT_SECONDS"`
	ServiceAPIToken       string `mapstructure:"SERVICE_API_TOKEN"`
	JWKSURL               string `mapstructure:"JWKS_URL"`
	JWTIssuer             string `mapstructure:"JWT_ISSUER"`
	JWTAudience           string `mapstructure:"JWT_AUDIENCE"`
	AllowedOrigins        string `mapstructure:"ALLOWED_ORIGINS"`
	DatabaseURL           string `mapstructure:"DATABASE_URL"`
	RabbitMQURL           string `mapstructure:"RABBITMQ_URL"`
	ParticipantCountQueue string `mapstructure:"PARTICIPANT_COUNT_QUEUE"`
	RedisURL              string `mapstructure:"REDIS_URL"`
	RedisLockPrefix       string `mapstructure:"REDIS_LOCK_PREFIX"`
	SubmissionLockSeconds int    `mapstructure:"SUBMISSION_LOCK_SECONDS"`
	OutboxFlushSchedule   string `mapstructure:"OUTBOX_FLUSH_SCHEDULE"`
}

// LoadConfig reads configuration from environment variables and an optional .env file
// in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", defaultServerPort)
	viper.SetDefault("CAMP_API_TIMEOUT_SECONDS", defaultCampAPITimeout)
	viper.SetDefault("ALLOWED_ORIGINS", defaultAllowedOriginsString)
	viper.SetDefault("PARTICIPANT_COUNT_QUEUE", defaultParticipantQueue)
	viper.SetDefault("REDIS_LOCK_PREFIX", defaultRedisLockPrefix)
	viper.SetDefault("SUBMISSION_LOCK_SECONDS", defaultSubmissionLockSecs)
	viper.SetDefault("OUTBOX_FLUSH_SCHEDULE", defaultOutboxFlushSchedule)

	// Bind explicitly so the keys appear in Unmarshal even without a config file.
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("CAMP_API_BASE_URL", "CAMP_API_BASE_URL", "VITE_API_URL")
	_ = viper.BindEnv("CAMP_API_TIMEOUT_SECONDS")
	_ = viper.BindEnv("SERVICE_API_TOKEN")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("JWT_ISSUER")
	_ = viper.BindEnv("JWT_AUDIENCE")
	_ = viper.BindEnv("ALLOWED_ORIGINS")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("PARTICIPANT_COUNT_QUEUE")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "CAMP_PORTAL_REDIS_URL")
	_ = viper.BindEnv("REDIS_LOCK_PREFIX")
	_ = viper.BindEnv("SUBMISSION_LOCK_SECONDS")
	_ = viper.BindEnv("OUTBOX_FLUSH_SCHEDULE")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.CampAPIBaseURL = strings.TrimRight(strings.TrimSpace(config.CampAPIBaseURL), "/")
	config.ServiceAPIToken = strings.TrimSpace(config.ServiceAPIToken)
	config.JWKSURL = strings.TrimSpace(config.JWKSURL)
	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.RedisURL = strings.TrimSpace(config.RedisURL)

	config.RedisLockPrefix = strings.TrimSpace(config.RedisLockPrefix)
	if config.RedisLockPrefix == "" {
		config.RedisLockPrefix = defaultRedisLockPrefix
	}
	config.ParticipantCountQueue = strings.TrimSpace(config.ParticipantCountQueue)
	if config.ParticipantCountQueue == "" {
		config.ParticipantCountQueue = defaultParticipantQueue
	}
	config.OutboxFlushSchedule = strings.TrimSpace(config.OutboxFlushSchedule)
	if config.OutboxFlushSchedule == "" {
		config.OutboxFlushSchedule = defaultOutboxFlushSchedule
	}

	if config.CampAPITimeoutSeconds < 0 {
		log.Printf("level=warn component=config msg=\"negative camp api timeout; disabling timeout\" value=%d", config.CampAPITimeoutSeconds)
		config.CampAPITimeoutSeconds = 0
	}
	if config.SubmissionLockSeconds <= 0 {
		config.SubmissionLockSeconds = defaultSubmissionLockSecs
	}

	return
}

// CampAPITimeout returns the backend call timeout; zero means unbounded.
func (c Config) CampAPITimeout() time.Duration {
	return time.Duration(c.CampAPITimeoutSeconds) * time.Second
}

// SubmissionLockTTL returns how long an in-flight registration holds its lock.
func (c Config) SubmissionLockTTL() time.Duration {
	return time.Duration(c.SubmissionLockSeconds) * time.Second
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c Config) Origins() []string {
	var origins []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
