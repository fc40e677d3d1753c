package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	Worker    WorkerConfig    `json:"worker"`
	Auth      AuthConfig      `json:"auth"`
	Storage   StorageConfig   `json:"storage"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Log       LogConfig       `json:"log"`
}

type ServerConfig struct {
	Host           string        `json:"host"`
	Port           string        `json:"port"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	IdleTimeout    time.Duration `json:"idle_timeout"`
	Environment    string        `json:"environment"`
	TimeZone       string        `json:"time_zone"`
	AllowedOrigins []string      `json:"allowed_origins"`
	SiteURL        string        `json:"site_url"`
}

type DatabaseConfig struct {
	Driver          string        `json:"driver"`
	Host            string        `json:"host"`
	Port            string        `json:"port"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	Name            string        `json:"name"`
	SSLMode         string        `json:"ssl_mode"`
	SQLitePath      string        `json:"sqlite_path"`
	AutoMigrate     bool          `json:"auto_migrate"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
}

type RedisConfig struct {
	Enabled      bool          `json:"enabled"`
	Host         string        `json:"host"`
	Port         string        `json:"port"`
	Password     string        `json:"password"`
	DB           int           `json:"db"`
	PoolSize     int           `json:"pool_size"`
	MinIdleConns int           `json:"min_idle_conns"`
	MaxRetries   int           `json:"max_retries"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

type WorkerConfig struct {
	Concurrency  int           `json:"concurrency"`
	PollInterval time.Duration `json:"poll_interval"`
	MaxTries     int           `json:"max_tries"`
	Queues       []string      `json:"queues"`
}

type AuthConfig struct {
	// Provider is "supabase" or "firebase".
	Provider        string `json:"provider"`
	SupabaseURL     string `json:"supabase_url"`
	SupabaseAnonKey string `json:"supabase_anon_key"`
	JWTSecret       string `json:"jwt_secret"`
	// AllowDevSecret lets a non-production server fall back to DevJWTSecret.
	AllowDevSecret          bool   `json:"allow_dev_secret"`
	FirebaseCredentialsPath string `json:"firebase_credentials_path"`
}

// DevJWTSecret is the well-known local development signing secret.
const DevJWTSecret = "your-secret-key"

type StorageConfig struct {
	// Backend is "supabase", "gcs" or "local".
	Backend      string `json:"backend"`
	Bucket       string `json:"bucket"`
	LocalDir     string `json:"local_dir"`
	MaxFileSize  int64  `json:"max_file_size"`
	CacheControl string `json:"cache_control"`
	// ServiceKey authorizes Supabase Storage calls; the anon key is used when empty.
	ServiceKey      string `json:"-"`
	CredentialsPath string `json:"credentials_path"`
}

type RateLimitConfig struct {
	Enabled         bool          `json:"enabled"`
	RequestsPerMin  int           `json:"requests_per_minute"`
	BurstSize       int           `json:"burst_size"`
	CleanupInterval time.Duration `json:"cleanup_interval"`
}

type LogConfig struct {
	Level   string `json:"level"`
	Service string `json:"service"`
}

func LoadConfig() (*Config, error) {
	siteURL := getEnv("SITE_URL", "http://localhost:3000")
	config := &Config{
		Server: ServerConfig{
			Host:           getEnv("HOST", "localhost"),
			Port:           getEnv("PORT", "8080"),
			ReadTimeout:    getEnvAsDuration("READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   getEnvAsDuration("WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:    getEnvAsDuration("IDLE_TIMEOUT", 60*time.Second),
			Environment:    getEnv("ENVIRONMENT", "development"),
			TimeZone:       getEnv("TIME_ZONE", "Asia/Seoul"),
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{siteURL}),
			SiteURL:        siteURL,
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "postgres"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "task_calendar"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			SQLitePath:      getEnv("DB_SQLITE_PATH", "task_calendar.db"),
			AutoMigrate:     getEnvAsBool("DB_AUTO_MIGRATE", true),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Enabled:      getEnvAsBool("REDIS_ENABLED", true),
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
			MaxRetries:   getEnvAsInt("REDIS_MAX_RETRIES", 3),
			DialTimeout:  getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvAsDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvAsDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Worker: WorkerConfig{
			Concurrency:  getEnvAsInt("WORKER_CONCURRENCY", 2),
			PollInterval: getEnvAsDuration("WORKER_POLL_INTERVAL", 5*time.Second),
			MaxTries:     getEnvAsInt("WORKER_MAX_TRIES", 5),
			Queues:       []string{"blob_cleanup"},
		},
		Auth: AuthConfig{
			Provider:                getEnv("AUTH_PROVIDER", "supabase"),
			SupabaseURL:             getEnv("SUPABASE_URL", ""),
			SupabaseAnonKey:         getEnv("SUPABASE_ANON_KEY", ""),
			JWTSecret:               getEnv("SUPABASE_JWT_SECRET", ""),
			AllowDevSecret:          getEnvAsBool("AUTH_ALLOW_DEV_SECRET", false),
			FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
		},
		Storage: StorageConfig{
			Backend:      getEnv("STORAGE_BACKEND", "local"),
			Bucket:       getEnv("STORAGE_BUCKET", "task-attachments"),
			LocalDir:     getEnv("STORAGE_LOCAL_DIR", "./data/attachments"),
			MaxFileSize:  int64(getEnvAsInt("STORAGE_MAX_FILE_SIZE", 10*1024*1024)),
			CacheControl: getEnv("STORAGE_CACHE_CONTROL", "3600"),
			ServiceKey:   getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
			CredentialsPath: getEnv("STORAGE_CREDENTIALS_PATH",
				getEnv("FIREBASE_CREDENTIALS_PATH", "")),
		},
		RateLimit: RateLimitConfig{
			Enabled:         getEnvAsBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMin:  getEnvAsInt("RATE_LIMIT_RPM", 120),
			BurstSize:       getEnvAsInt("RATE_LIMIT_BURST", 20),
			CleanupInterval: getEnvAsDuration("RATE_LIMIT_CLEANUP", 10*time.Minute),
		},
		Log: LogConfig{
			Level:   getEnv("LOG_LEVEL", "info"),
			Service: getEnv("SERVICE_NAME", "task-calendar"),
		},
	}

	if config.Database.Driver == "postgres" && config.Database.Password == "" && config.IsProduction() {
		return nil, fmt.Errorf("database password is required in production")
	}

	if config.Auth.Provider == "supabase" && (config.Auth.JWTSecret == "" || config.Auth.JWTSecret == DevJWTSecret) {
		switch {
		case config.IsProduction():
			return nil, fmt.Errorf("SUPABASE_JWT_SECRET must be set in production")
		case !config.Auth.AllowDevSecret:
			return nil, fmt.Errorf("SUPABASE_JWT_SECRET is required; set AUTH_ALLOW_DEV_SECRET=true to use the development secret")
		}
		config.Auth.JWTSecret = DevJWTSecret
	}

	if config.IsProduction() && config.AllowsAnyOrigin() {
		return nil, fmt.Errorf("CORS_ALLOWED_ORIGINS must list concrete origins in production")
	}

	if config.Auth.Provider == "firebase" && config.Auth.FirebaseCredentialsPath == "" {
		return nil, fmt.Errorf("FIREBASE_CREDENTIALS_PATH is required for the firebase auth provider")
	}

	if _, err := time.LoadLocation(config.Server.TimeZone); err != nil {
		return nil, fmt.Errorf("invalid TIME_ZONE %q: %w", config.Server.TimeZone, err)
	}

	return config, nil
}

// AllowsAnyOrigin reports whether CORS is configured with the "*" wildcard.
func (c *Config) AllowsAnyOrigin() bool {
	for _, origin := range c.Server.AllowedOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

func (c *Config) GetDatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLitePath
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Location is the zone used to decide what "today" is.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Server.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
