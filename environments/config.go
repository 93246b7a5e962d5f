package environments

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	WhatsApp      WhatsAppConfig
	Scheduler     SchedulerConfig
	Executor      ExecutorConfig
	PlatformRetry RetryConfig
	StorageRetry  RetryConfig
	Breaker       BreakerConfig
	Platforms     PlatformsConfig
	Auth          AuthConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// WhatsAppConfig covers both the outbound Cloud API client (approval
// requests, confirmations) and the inbound webhook handshake.
type WhatsAppConfig struct {
	APIBaseURL    string
	PhoneNumberID string
	AccessToken   string
	VerifyToken   string
	ReviewerPhone string
	Timeout       time.Duration
}

type SchedulerConfig struct {
	Interval  time.Duration
	BatchSize int
}

type ExecutorConfig struct {
	Workers            int
	QueueSize          int
	MaxScheduleRetries int
	RescheduleDelay    time.Duration
	PublishTimeout     time.Duration
}

type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

type BreakerConfig struct {
	Threshold    int
	ResetTimeout time.Duration
}

// PlatformsConfig holds the credential references the adapters need.
// Real credential storage is owned by a separate service; these are
// the per-deployment fallbacks.
type PlatformsConfig struct {
	GraphAPIBaseURL    string
	TikTokAPIBaseURL   string
	FacebookPageID     string
	FacebookToken      string
	InstagramAccountID string
	InstagramToken     string
	TikTokToken        string
}

type AuthConfig struct {
	PostsAPIKey     string
	SchedulerAPIKey string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: GetEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     GetEnv("DB_HOST", "localhost"),
			Port:     GetEnv("DB_PORT", "3306"),
			User:     GetEnv("DB_USER", "arteai"),
			Password: GetEnv("DB_PASSWORD", "arteai123"),
			DBName:   GetEnv("DB_NAME", "publish_engine"),
		},
		Redis: RedisConfig{
			Host:     GetEnv("REDIS_HOST", "localhost"),
			Port:     GetEnv("REDIS_PORT", "6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetEnvAsInt("REDIS_DB", 0),
		},
		WhatsApp: WhatsAppConfig{
			APIBaseURL:    GetEnv("WHATSAPP_API_URL", "https://graph.facebook.com/v18.0"),
			PhoneNumberID: GetEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
			AccessToken:   GetEnv("WHATSAPP_ACCESS_TOKEN", ""),
			VerifyToken:   GetEnv("WHATSAPP_VERIFY_TOKEN", ""),
			ReviewerPhone: GetEnv("WHATSAPP_REVIEWER_PHONE", ""),
			Timeout:       GetEnvAsDuration("WHATSAPP_TIMEOUT", 30*time.Second),
		},
		Scheduler: SchedulerConfig{
			Interval:  GetEnvAsDuration("SCHEDULER_INTERVAL", time.Minute),
			BatchSize: GetEnvAsInt("SCHEDULER_BATCH_SIZE", 50),
		},
		Executor: ExecutorConfig{
			Workers:            GetEnvAsInt("EXECUTOR_WORKERS", 5),
			QueueSize:          GetEnvAsInt("EXECUTOR_QUEUE_SIZE", 100),
			MaxScheduleRetries: GetEnvAsInt("EXECUTOR_MAX_SCHEDULE_RETRIES", 3),
			RescheduleDelay:    GetEnvAsDuration("EXECUTOR_RESCHEDULE_DELAY", 5*time.Minute),
			PublishTimeout:     GetEnvAsDuration("EXECUTOR_PUBLISH_TIMEOUT", 30*time.Second),
		},
		PlatformRetry: RetryConfig{
			MaxAttempts:  GetEnvAsInt("PLATFORM_RETRY_MAX_ATTEMPTS", 3),
			InitialDelay: GetEnvAsDuration("PLATFORM_RETRY_INITIAL_DELAY", time.Second),
			MaxDelay:     GetEnvAsDuration("PLATFORM_RETRY_MAX_DELAY", 5*time.Second),
			Multiplier:   GetEnvAsFloat("PLATFORM_RETRY_MULTIPLIER", 2),
		},
		StorageRetry: RetryConfig{
			MaxAttempts:  GetEnvAsInt("STORAGE_RETRY_MAX_ATTEMPTS", 5),
			InitialDelay: GetEnvAsDuration("STORAGE_RETRY_INITIAL_DELAY", 200*time.Millisecond),
			MaxDelay:     GetEnvAsDuration("STORAGE_RETRY_MAX_DELAY", 2*time.Second),
			Multiplier:   GetEnvAsFloat("STORAGE_RETRY_MULTIPLIER", 2),
		},
		Breaker: BreakerConfig{
			Threshold:    GetEnvAsInt("BREAKER_THRESHOLD", 5),
			ResetTimeout: GetEnvAsDuration("BREAKER_RESET_TIMEOUT", 30*time.Second),
		},
		Platforms: PlatformsConfig{
			GraphAPIBaseURL:    GetEnv("GRAPH_API_URL", "https://graph.facebook.com/v18.0"),
			TikTokAPIBaseURL:   GetEnv("TIKTOK_API_URL", "https://open.tiktokapis.com/v2"),
			FacebookPageID:     GetEnv("FACEBOOK_PAGE_ID", ""),
			FacebookToken:      GetEnv("FACEBOOK_ACCESS_TOKEN", ""),
			InstagramAccountID: GetEnv("INSTAGRAM_ACCOUNT_ID", ""),
			InstagramToken:     GetEnv("INSTAGRAM_ACCESS_TOKEN", ""),
			TikTokToken:        GetEnv("TIKTOK_ACCESS_TOKEN", ""),
		},
		Auth: AuthConfig{
			PostsAPIKey:     GetEnv("POSTS_API_KEY", ""),
			SchedulerAPIKey: GetEnv("SCHEDULER_API_KEY", ""),
		},
	}
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func GetEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
