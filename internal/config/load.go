package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional config
// file. Environment variables use the GRADER_ prefix with underscores for
// nesting (e.g. GRADER_DATABASE_URL, GRADER_LLM_PROVIDER) and take precedence
// over values from the config file.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("GRADER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The config file is optional; environment-only deployments are the norm.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers defaults for every key so viper binds the matching
// environment variables during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.health_port", 8085)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.url", "")
	v.SetDefault("database.migrate_on_start", false)

	v.SetDefault("queue.url", "")
	v.SetDefault("queue.exchange", "")
	v.SetDefault("queue.queue", "")
	v.SetDefault("queue.routing_key", "")
	v.SetDefault("queue.prefetch", 1)

	v.SetDefault("llm.provider", "GOOGLE")
	v.SetDefault("llm.model_id", "")
	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.aws_region", "")
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.request_timeout_seconds", 60)
}
