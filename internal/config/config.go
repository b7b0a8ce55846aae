package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue"    validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm"      validate:"required"`
}

// ServerConfig contains process-level settings for the worker.
type ServerConfig struct {
	// HealthPort is where the liveness/readiness HTTP listener binds.
	HealthPort int `mapstructure:"health_port" validate:"required,gt=0,lt=65536"`

	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`

	// MigrateOnStart runs the embedded goose migrations before consuming.
	MigrateOnStart bool `mapstructure:"migrate_on_start"`
}

// QueueConfig contains the message-transport settings. Prefetch stays at 1 so
// exactly one grading batch is in flight per consumer instance.
type QueueConfig struct {
	URL        string `mapstructure:"url"         validate:"required"`
	Exchange   string `mapstructure:"exchange"    validate:"required"`
	Queue      string `mapstructure:"queue"       validate:"required"`
	RoutingKey string `mapstructure:"routing_key" validate:"required"`
	Prefetch   int    `mapstructure:"prefetch"    validate:"gte=1"`
}

// LLMConfig contains all model-provider integration settings.
type LLMConfig struct {
	// Provider selects the grading model backend: GOOGLE or AMZN.
	Provider string `mapstructure:"provider" validate:"required,oneof=GOOGLE AMZN"`

	// ModelID is the provider-specific model identifier; it also tags grader
	// task items so each model grades an answer at most once.
	ModelID string `mapstructure:"model_id" validate:"required"`

	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required_if=Provider GOOGLE"`
	AWSRegion    string `mapstructure:"aws_region"     validate:"required_if=Provider AMZN"`

	// MaxRetries is the number of extra model attempts after the first.
	MaxRetries int `mapstructure:"max_retries" validate:"gte=0,lte=10"`

	// RequestTimeoutSeconds bounds a single model invocation.
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds" validate:"gt=0"`
}
