package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Config is the single configuration object injected into clients, repositories and the
// scheduler bridge. Nothing in the module reads the environment after loading it.
type Config struct {
	Postgres  PostgreSQLConfig `json:"postgres"`
	Mongo     MongoConfig      `json:"mongo"`
	Redis     RedisConfig      `json:"redis"`
	Scheduler SchedulerConfig  `json:"scheduler"`
	Tasks     TaskCollections  `json:"tasks"`
	Retry     RetryConfig      `json:"retry"`
	TimeZone  string           `json:"timeZone"`
	Debug     bool             `json:"debug"`
}

// PostgreSQLConfig holds PostgreSQL-specific configuration
type PostgreSQLConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Username        string        `json:"username"`
	Password        string        `json:"password"`
	Database        string        `json:"database"`
	DSN             string        `json:"dsn"`
	SSLMode         string        `json:"sslMode"`
	Schema          string        `json:"schema"`
	MaxOpenConns    int           `json:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime"`
}

// MongoConfig holds MongoDB-specific configuration
type MongoConfig struct {
	Host        string        `json:"host"`
	Port        int           `json:"port"`
	Username    string        `json:"username"`
	Password    string        `json:"password"`
	Database    string        `json:"database"`
	URI         string        `json:"uri"`
	MaxPoolSize int           `json:"maxPoolSize"`
	Timeout     time.Duration `json:"timeout"`
}

// RedisConfig holds the broker connection. More than one address selects cluster mode.
type RedisConfig struct {
	Addresses []string `json:"addresses"`
	Password  string   `json:"password"`
	DB        int      `json:"db"`
	PoolSize  int      `json:"poolSize"`
}

// SchedulerConfig configures the job enqueue bridge.
type SchedulerConfig struct {
	Channel        string        `json:"channel"`
	PublishTimeout time.Duration `json:"publishTimeout"`
}

// TaskCollections names the document collections used by task management. The job and
// record collections are written by the external scheduler.
type TaskCollections struct {
	Tasks   string `json:"tasks"`
	Groups  string `json:"groups"`
	Jobs    string `json:"jobs"`
	Records string `json:"records"`
}

// RetryConfig bounds connection retries.
type RetryConfig struct {
	MaxAttempts int           `json:"maxAttempts"`
	BaseDelay   time.Duration `json:"baseDelay"`
}

// Location resolves TimeZone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LoadFromEnv loads configuration from the environment.
// Precedence: explicit environment variables, then the first .env file found, then defaults.
func LoadFromEnv() (*Config, error) {
	envPaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	loaded := false
	for _, envPath := range envPaths {
		// godotenv.Load never overrides variables that are already set.
		if err := godotenv.Load(envPath); err == nil {
			loaded = true
			break
		}
	}
	if !loaded {
		fmt.Println("INFO: .env file not found, using environment variables and defaults.")
	}

	config := build(os.LookupEnv)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// LoadFromMap loads configuration from an in-memory map.
// Tests use it to exercise configuration logic without touching process environment.
func LoadFromMap(envMap map[string]string) (*Config, error) {
	config := build(func(key string) (string, bool) {
		value, ok := envMap[key]
		return value, ok
	})
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// LoadDotEnvFile reads a specific dotenv file into a map suitable for LoadFromMap.
func LoadDotEnvFile(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return values, nil
}

func build(lookup func(string) (string, bool)) *Config {
	get := func(key, defaultValue string) string {
		if value, ok := lookup(key); ok && value != "" {
			return value
		}
		return defaultValue
	}
	getInt := func(key string, defaultValue int) int {
		if value, ok := lookup(key); ok {
			if intValue, err := strconv.Atoi(value); err == nil {
				return intValue
			}
		}
		return defaultValue
	}
	getBool := func(key string, defaultValue bool) bool {
		if value, ok := lookup(key); ok {
			if boolValue, err := strconv.ParseBool(value); err == nil {
				return boolValue
			}
		}
		return defaultValue
	}
	// Durations accept Go syntax ("3s") or a bare number of seconds.
	getDuration := func(key string, defaultValue time.Duration) time.Duration {
		value, ok := lookup(key)
		if !ok {
			return defaultValue
		}
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
		return defaultValue
	}
	getList := func(key, defaultValue string) []string {
		var out []string
		for _, part := range strings.Split(get(key, defaultValue), ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}

	return &Config{
		Postgres: PostgreSQLConfig{
			Host:            get("POSTGRES_HOST", "localhost"),
			Port:            getInt("POSTGRES_PORT", 5432),
			Username:        get("POSTGRES_USER", "postgres"),
			Password:        get("POSTGRES_PASSWORD", ""),
			Database:        get("POSTGRES_DATABASE", "kinit"),
			DSN:             get("POSTGRES_DSN", ""),
			SSLMode:         get("POSTGRES_SSL_MODE", "disable"),
			Schema:          get("POSTGRES_SCHEMA", ""),
			MaxOpenConns:    getInt("POSTGRES_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("POSTGRES_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDuration("POSTGRES_CONN_MAX_LIFETIME", 300*time.Second),
		},
		Mongo: MongoConfig{
			Host:        get("MONGO_HOST", "localhost"),
			Port:        getInt("MONGO_PORT", 27017),
			Username:    get("MONGO_USERNAME", ""),
			Password:    get("MONGO_PASSWORD", ""),
			Database:    get("MONGO_DATABASE", "kinit"),
			URI:         get("MONGO_URI", ""),
			MaxPoolSize: getInt("MONGO_MAX_POOL_SIZE", 100),
			Timeout:     getDuration("MONGO_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			Addresses: getList("REDIS_ADDRESSES", "localhost:6379"),
			Password:  get("REDIS_PASSWORD", ""),
			DB:        getInt("REDIS_DB", 0),
			PoolSize:  getInt("REDIS_POOL_SIZE", 10),
		},
		Scheduler: SchedulerConfig{
			Channel:        get("SCHEDULER_CHANNEL", "kinit_queue"),
			PublishTimeout: getDuration("SCHEDULER_PUBLISH_TIMEOUT", 3*time.Second),
		},
		Tasks: TaskCollections{
			Tasks:   get("TASK_COLLECTION", "system_task"),
			Groups:  get("TASK_GROUP_COLLECTION", "system_task_group"),
			Jobs:    get("TASK_JOB_COLLECTION", "scheduler_task_jobs"),
			Records: get("TASK_RECORD_COLLECTION", "scheduler_task_record"),
		},
		Retry: RetryConfig{
			MaxAttempts: getInt("DB_RETRY_ATTEMPTS", 3),
			BaseDelay:   getDuration("DB_RETRY_BASE_DELAY", 200*time.Millisecond),
		},
		TimeZone: get("TIME_ZONE", "UTC"),
		Debug:    getBool("DEBUG", false),
	}
}

// Validate validates the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var problems []string

	if c.Postgres.DSN == "" {
		if c.Postgres.Host == "" {
			problems = append(problems, "POSTGRES_HOST is required when POSTGRES_DSN is not set")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			problems = append(problems, "POSTGRES_PORT must be between 1 and 65535")
		}
		if c.Postgres.Database == "" {
			problems = append(problems, "POSTGRES_DATABASE is required")
		}
	}
	if c.Postgres.MaxIdleConns > c.Postgres.MaxOpenConns {
		problems = append(problems, "POSTGRES_MAX_IDLE_CONNS cannot exceed POSTGRES_MAX_OPEN_CONNS")
	}

	if c.Mongo.URI == "" && c.Mongo.Host == "" {
		problems = append(problems, "MONGO_HOST is required when MONGO_URI is not set")
	}
	if c.Mongo.Database == "" {
		problems = append(problems, "MONGO_DATABASE is required")
	}
	if c.Mongo.Timeout <= 0 {
		problems = append(problems, "MONGO_TIMEOUT must be positive")
	}

	if len(c.Redis.Addresses) == 0 {
		problems = append(problems, "REDIS_ADDRESSES is required")
	}

	if strings.TrimSpace(c.Scheduler.Channel) == "" {
		problems = append(problems, "SCHEDULER_CHANNEL is required")
	}
	if c.Scheduler.PublishTimeout <= 0 {
		problems = append(problems, "SCHEDULER_PUBLISH_TIMEOUT must be positive")
	}

	if c.Tasks.Tasks == "" || c.Tasks.Groups == "" || c.Tasks.Jobs == "" || c.Tasks.Records == "" {
		problems = append(problems, "task collection names cannot be empty")
	}

	if c.Retry.MaxAttempts < 1 {
		problems = append(problems, "DB_RETRY_ATTEMPTS must be at least 1")
	}

	if c.TimeZone != "" {
		if _, err := time.LoadLocation(c.TimeZone); err != nil {
			problems = append(problems, fmt.Sprintf("TIME_ZONE %q is not a known location", c.TimeZone))
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
