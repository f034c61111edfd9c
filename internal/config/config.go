/**
 * @description
 * This package handles configuration for the member device-security service.
 * It uses Viper to read settings from environment variables and an optional
 * .env file, then clamps out-of-range values with a warning.
 *
 * @dependencies
 * - github.com/spf13/viper: configuration loading.
 * - github.com/rs/zerolog/log: warnings emitted before the service logger exists.
 */
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Supported general store drivers.
const (
	StoreDriverSQLite   = "sqlite"
	StoreDriverRedis    = "redis"
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds all the configuration variables for the service.
type Config struct {
	ServerPort              string   `mapstructure:"SERVER_PORT"`
	BindAddress             string   `mapstructure:"BIND_ADDRESS"`
	LogLevel                string   `mapstructure:"LOG_LEVEL"`
	CORSOrigins             []string `mapstructure:"-"`
	APIBaseURL              string   `mapstructure:"API_BASE_URL"`
	APITimeoutSeconds       int      `mapstructure:"API_TIMEOUT_SECONDS"`
	StoreDriver             string   `mapstructure:"STORE_DRIVER"`
	SQLitePath              string   `mapstructure:"SQLITE_PATH"`
	RedisURL                string   `mapstructure:"REDIS_URL"`
	RedisKeyPrefix          string   `mapstructure:"REDIS_KEY_PREFIX"`
	DatabaseURL             string   `mapstructure:"DATABASE_URL"`
	DeviceNamespace         string   `mapstructure:"DEVICE_NAMESPACE"`
	SecureStoreKey          string   `mapstructure:"SECURE_STORE_KEY"`
	StorageTimeoutMs        int      `mapstructure:"STORAGE_TIMEOUT_MS"`
	DefaultPIN              string   `mapstructure:"DEFAULT_PIN"`
	LoginMaxAttempts        int      `mapstructure:"LOGIN_MAX_ATTEMPTS"`
	LoginLockoutMinutes     int      `mapstructure:"LOGIN_LOCKOUT_MINUTES"`
	FirstTimePinMaxAttempts int      `mapstructure:"FIRST_TIME_PIN_MAX_ATTEMPTS"`
	FirstTimePinLockoutMin  int      `mapstructure:"FIRST_TIME_PIN_LOCKOUT_MINUTES"`
	OTCPINCacheTTLSeconds   int      `mapstructure:"OTCPIN_CACHE_TTL_SECONDS"`
	CredentialMaxAgeDays    int      `mapstructure:"CREDENTIAL_MAX_AGE_DAYS"`
	BiometricMaxRetries     int      `mapstructure:"BIOMETRIC_MAX_RETRIES"`
	BiometricAutoRetries    int      `mapstructure:"BIOMETRIC_AUTO_RETRIES"`
	RabbitMQURL             string   `mapstructure:"RABBITMQ_URL"`
	SecurityEventsExchange  string   `mapstructure:"SECURITY_EVENTS_EXCHANGE"`
	HousekeepingSchedule    string   `mapstructure:"HOUSEKEEPING_SCHEDULE"`
}

// LoadConfig reads configuration from environment variables and an optional
// .env file in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8790")
	viper.SetDefault("BIND_ADDRESS", "127.0.0.1")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("CORS_ORIGINS", "http://localhost:8081")
	viper.SetDefault("API_TIMEOUT_SECONDS", 30)
	viper.SetDefault("STORE_DRIVER", StoreDriverSQLite)
	viper.SetDefault("SQLITE_PATH", "member-device.db")
	viper.SetDefault("REDIS_KEY_PREFIX", "member:device")
	viper.SetDefault("DEVICE_NAMESPACE", "default")
	viper.SetDefault("STORAGE_TIMEOUT_MS", 3000)
	viper.SetDefault("DEFAULT_PIN", "1234")
	viper.SetDefault("LOGIN_MAX_ATTEMPTS", 3)
	viper.SetDefault("LOGIN_LOCKOUT_MINUTES", 30)
	viper.SetDefault("FIRST_TIME_PIN_MAX_ATTEMPTS", 3)
	viper.SetDefault("FIRST_TIME_PIN_LOCKOUT_MINUTES", 5)
	viper.SetDefault("OTCPIN_CACHE_TTL_SECONDS", 300)
	viper.SetDefault("CREDENTIAL_MAX_AGE_DAYS", 30)
	viper.SetDefault("BIOMETRIC_MAX_RETRIES", 3)
	viper.SetDefault("BIOMETRIC_AUTO_RETRIES", 2)
	viper.SetDefault("SECURITY_EVENTS_EXCHANGE", "member_security_events")
	viper.SetDefault("HOUSEKEEPING_SCHEDULE", "@every 15m")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("BIND_ADDRESS")
	_ = viper.BindEnv("LOG_LEVEL")
	_ = viper.BindEnv("CORS_ORIGINS")
	_ = viper.BindEnv("API_BASE_URL", "API_BASE_URL", "MEMBER_API_BASE_URL")
	_ = viper.BindEnv("API_TIMEOUT_SECONDS")
	_ = viper.BindEnv("STORE_DRIVER")
	_ = viper.BindEnv("SQLITE_PATH")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_KEY_PREFIX")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("DEVICE_NAMESPACE")
	_ = viper.BindEnv("SECURE_STORE_KEY")
	_ = viper.BindEnv("STORAGE_TIMEOUT_MS")
	_ = viper.BindEnv("DEFAULT_PIN")
	_ = viper.BindEnv("LOGIN_MAX_ATTEMPTS")
	_ = viper.BindEnv("LOGIN_LOCKOUT_MINUTES")
	_ = viper.BindEnv("FIRST_TIME_PIN_MAX_ATTEMPTS")
	_ = viper.BindEnv("FIRST_TIME_PIN_LOCKOUT_MINUTES")
	_ = viper.BindEnv("OTCPIN_CACHE_TTL_SECONDS")
	_ = viper.BindEnv("CREDENTIAL_MAX_AGE_DAYS")
	_ = viper.BindEnv("BIOMETRIC_MAX_RETRIES")
	_ = viper.BindEnv("BIOMETRIC_AUTO_RETRIES")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("SECURITY_EVENTS_EXCHANGE")
	_ = viper.BindEnv("HOUSEKEEPING_SCHEDULE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn().Str("component", "config").Err(err).Msg("failed to read config file; using environment values")
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.CORSOrigins = splitList(viper.GetString("CORS_ORIGINS"))
	config.APIBaseURL = strings.TrimSpace(config.APIBaseURL)
	config.StoreDriver = strings.ToLower(strings.TrimSpace(config.StoreDriver))
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisKeyPrefix = strings.TrimSpace(config.RedisKeyPrefix)
	if config.RedisKeyPrefix == "" {
		config.RedisKeyPrefix = "member:device"
	}

	switch config.StoreDriver {
	case StoreDriverSQLite, StoreDriverRedis, StoreDriverPostgres, StoreDriverMemory:
	default:
		log.Warn().Str("component", "config").Str("value", config.StoreDriver).Msg("unknown STORE_DRIVER; using sqlite")
		config.StoreDriver = StoreDriverSQLite
	}
	if config.StoreDriver == StoreDriverRedis && config.RedisURL == "" {
		return config, fmt.Errorf("REDIS_URL is required when STORE_DRIVER=redis")
	}
	if config.StoreDriver == StoreDriverPostgres && strings.TrimSpace(config.DatabaseURL) == "" {
		return config, fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
	}

	if key := strings.TrimSpace(config.SecureStoreKey); key != "" {
		decoded, decodeErr := base64.StdEncoding.DecodeString(key)
		if decodeErr != nil || len(decoded) < 32 {
			log.Warn().Str("component", "config").Msg("SECURE_STORE_KEY must be base64 of at least 32 bytes; secure storage disabled")
			config.SecureStoreKey = ""
		}
	}

	if len(config.DefaultPIN) != 4 || strings.Trim(config.DefaultPIN, "0123456789") != "" {
		log.Warn().Str("component", "config").Msg("invalid DEFAULT_PIN; using 1234")
		config.DefaultPIN = "1234"
	}

	config.StorageTimeoutMs = clampMin("STORAGE_TIMEOUT_MS", config.StorageTimeoutMs, 0, 3000)
	config.APITimeoutSeconds = clampMin("API_TIMEOUT_SECONDS", config.APITimeoutSeconds, 1, 30)
	config.LoginMaxAttempts = clampMin("LOGIN_MAX_ATTEMPTS", config.LoginMaxAttempts, 1, 3)
	config.LoginLockoutMinutes = clampMin("LOGIN_LOCKOUT_MINUTES", config.LoginLockoutMinutes, 1, 30)
	config.FirstTimePinMaxAttempts = clampMin("FIRST_TIME_PIN_MAX_ATTEMPTS", config.FirstTimePinMaxAttempts, 1, 3)
	config.FirstTimePinLockoutMin = clampMin("FIRST_TIME_PIN_LOCKOUT_MINUTES", config.FirstTimePinLockoutMin, 1, 5)
	config.OTCPINCacheTTLSeconds = clampMin("OTCPIN_CACHE_TTL_SECONDS", config.OTCPINCacheTTLSeconds, 1, 300)
	config.CredentialMaxAgeDays = clampMin("CREDENTIAL_MAX_AGE_DAYS", config.CredentialMaxAgeDays, 1, 30)
	config.BiometricMaxRetries = clampMin("BIOMETRIC_MAX_RETRIES", config.BiometricMaxRetries, 1, 3)
	config.BiometricAutoRetries = clampMin("BIOMETRIC_AUTO_RETRIES", config.BiometricAutoRetries, 0, 2)

	if strings.TrimSpace(config.HousekeepingSchedule) == "" {
		config.HousekeepingSchedule = "@every 15m"
	}

	return config, nil
}

func clampMin(name string, value, minimum, fallback int) int {
	if value < minimum {
		log.Warn().Str("component", "config").Str("setting", name).Int("value", value).Int("fallback", fallback).Msg("value out of range; using fallback")
		return fallback
	}
	return value
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Addr is the listen address of the local bridge.
func (c Config) Addr() string {
	return c.BindAddress + ":" + c.ServerPort
}

func (c Config) APITimeout() time.Duration {
	return time.Duration(c.APITimeoutSeconds) * time.Second
}

func (c Config) StorageTimeout() time.Duration {
	return time.Duration(c.StorageTimeoutMs) * time.Millisecond
}

func (c Config) LoginLockout() time.Duration {
	return time.Duration(c.LoginLockoutMinutes) * time.Minute
}

func (c Config) FirstTimePinLockout() time.Duration {
	return time.Duration(c.FirstTimePinLockoutMin) * time.Minute
}

func (c Config) OTCPINCacheTTL() time.Duration {
	return time.Duration(c.OTCPINCacheTTLSeconds) * time.Second
}

func (c Config) CredentialMaxAge() time.Duration {
	return time.Duration(c.CredentialMaxAgeDays) * 24 * time.Hour
}

// SecureStoreMasterKey decodes SECURE_STORE_KEY; nil when unset.
func (c Config) SecureStoreMasterKey() []byte {
	if c.SecureStoreKey == "" {
		return nil
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(c.SecureStoreKey))
	if err != nil {
		return nil
	}
	return key
}
