package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App          AppConfig               `mapstructure:"app"`
	Server       ServerConfig            `mapstructure:"server"`
	Database     DatabaseConfig          `mapstructure:"database"`
	Jobs         JobsConfig              `mapstructure:"jobs"`
	Workers      map[string]WorkerConfig `mapstructure:"workers"`
	AI           AIConfig                `mapstructure:"ai"`
	Jira         JiraConfig              `mapstructure:"jira"`
	Risk         RiskConfig              `mapstructure:"risk"`
	Security     SecurityConfig          `mapstructure:"security"`
	Integrations IntegrationConfig       `mapstructure:"integrations"`
	Logging      LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// IsProduction reports whether the process runs with a production posture.
func (a AppConfig) IsProduction() bool {
	return a.Environment == "production" || a.Environment == "prod"
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JobsConfig drives the background job poller.
type JobsConfig struct {
	PollInterval    int `mapstructure:"poll_interval"` // milliseconds
	Concurrency     int `mapstructure:"concurrency"`
	MaxAttempts     int `mapstructure:"max_attempts"`
	ShutdownTimeout int `mapstructure:"shutdown_timeout"` // milliseconds
}

// WorkerConfig holds per job-type settings.
type WorkerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Timeout int  `mapstructure:"timeout"` // milliseconds
}

// AIConfig configures the external AI judge and the limiter in front of it.
type AIConfig struct {
	Provider    string `mapstructure:"provider"`
	Model       string `mapstructure:"model"`
	APIKey      string `mapstructure:"api_key"`
	Timeout     int    `mapstructure:"timeout"`      // milliseconds
	MinInterval int    `mapstructure:"min_interval"` // milliseconds
	MaxRetries  int    `mapstructure:"max_retries"`
	BaseDelay   int    `mapstructure:"base_delay"` // milliseconds
	CacheTTL    int    `mapstructure:"cache_ttl"`  // milliseconds
}

type JiraConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	Email    string `mapstructure:"email"`
	APIToken string `mapstructure:"api_token"`
	BoardID  int    `mapstructure:"board_id"`
	Timeout  int    `mapstructure:"timeout"` // milliseconds
}

type RiskConfig struct {
	SweepInterval int `mapstructure:"sweep_interval"` // milliseconds, 0 disables the sweep
}

// SecurityConfig carries key material for credential storage.
type SecurityConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
}

// IntegrationConfig holds settings for AWS delivery channels.
type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
		SES    struct {
			Enabled   bool   `mapstructure:"enabled"`
			FromEmail string `mapstructure:"from_email"`
		} `mapstructure:"ses"`
		SNS struct {
			Enabled      bool   `mapstructure:"enabled"`
			RiskTopicARN string `mapstructure:"risk_topic_arn"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
