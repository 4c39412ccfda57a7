package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port          int    `yaml:"port"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDb"`

	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
	Env       string `yaml:"env"`

	Topic         string `yaml:"topic"`
	DLQTopic      string `yaml:"dlqTopic"`
	ConsumerGroup string `yaml:"consumerGroup"`

	MaxRetries        int `yaml:"maxRetries"`
	RetryDelaySeconds int `yaml:"retryDelaySeconds"`

	PredictionTTLSeconds int `yaml:"predictionTtlSeconds"`
	ResultTTLSeconds     int `yaml:"resultTtlSeconds"`

	DBUser     string `yaml:"dbUser"`
	DBPassword string `yaml:"dbPassword"`
	DBName     string `yaml:"dbName"`
	DBHost     string `yaml:"dbHost"`
	DBPort     int    `yaml:"dbPort"`

	TracingEnabled     bool    `yaml:"tracingEnabled"`
	TracingEndpoint    string  `yaml:"tracingEndpoint"`
	TracingInsecure    bool    `yaml:"tracingInsecure"`
	TracingSampleRatio float64 `yaml:"tracingSampleRatio"`
}

// LoadConfigOptional behaves like LoadConfig but tolerates an empty or
// missing file, building the configuration from environment variables and
// defaults alone.
func LoadConfigOptional(filePath string) (*Config, error) {
	filePath = strings.TrimSpace(filePath)
	if filePath != "" {
		if _, err := os.Stat(filePath); err == nil {
			return LoadConfig(filePath)
		}
	}
	c := &Config{}
	c.applyEnv()
	c.applyDefaults()
	return c, nil
}

func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	c.applyEnv()
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("API_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RedisDB = n
		}
	}
	if v := os.Getenv("TOPIC"); v != "" {
		c.Topic = v
	}
	if v := os.Getenv("DLQ_TOPIC"); v != "" {
		c.DLQTopic = v
	}
	if v := os.Getenv("CONSUMER_GROUP"); v != "" {
		c.ConsumerGroup = v
	}
	if v := os.Getenv("MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxRetries = n
		}
	}
	if v := os.Getenv("RETRY_DELAY_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RetryDelaySeconds = n
		}
	}
	if v := os.Getenv("PREDICTION_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PredictionTTLSeconds = n
		}
	}
	if v := os.Getenv("RESULT_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ResultTTLSeconds = n
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		c.DBUser = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.DBPassword = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.DBName = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		c.DBHost = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DBPort = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("ENV"); v != "" {
		c.Env = v
	}
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8003
	}
	if c.RedisAddr == "" {
		c.RedisAddr = "localhost:6379"
	}
	if c.Topic == "" {
		c.Topic = "moderation"
	}
	if c.DLQTopic == "" {
		c.DLQTopic = "moderation_dlq"
	}
	if c.ConsumerGroup == "" {
		c.ConsumerGroup = "moderation-worker"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelaySeconds <= 0 {
		c.RetryDelaySeconds = 5
	}
	if c.PredictionTTLSeconds <= 0 {
		c.PredictionTTLSeconds = 300
	}
	if c.ResultTTLSeconds <= 0 {
		c.ResultTTLSeconds = 600
	}
	if c.DBUser == "" {
		c.DBUser = "postgres"
	}
	if c.DBPassword == "" {
		c.DBPassword = "postgres"
	}
	if c.DBName == "" {
		c.DBName = "moderation"
	}
	if c.DBHost == "" {
		c.DBHost = "localhost"
	}
	if c.DBPort == 0 {
		c.DBPort = 5432
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.Env == "" {
		c.Env = "dev"
	}
}

// PostgresDSN assembles the ledger connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func (c *Config) Validate() error {
	var errs []string
	if c.Topic == "" {
		errs = append(errs, "topic is required")
	}
	if c.DLQTopic == "" {
		errs = append(errs, "dlqTopic is required")
	}
	if c.Topic != "" && c.Topic == c.DLQTopic {
		errs = append(errs, "topic and dlqTopic must differ")
	}
	if c.ConsumerGroup == "" {
		errs = append(errs, "consumerGroup is required")
	}
	if c.MaxRetries < 1 {
		errs = append(errs, "maxRetries must be >= 1")
	}
	if c.RetryDelaySeconds < 0 {
		errs = append(errs, "retryDelaySeconds must be >= 0")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
