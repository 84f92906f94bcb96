package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/formvault/formvault/internal/flagx"
	"github.com/formvault/formvault/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "60s" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its fields are copied into the
// runtime Config struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddr                string         `json:"endpoint_addr"`
	DatabaseDSN                 string         `json:"database_dsn"`
	SecretKey                   string         `json:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`
	RateLimitWindow             timex.Duration `json:"rate_limit_window"`
	SubmitRateLimit             int            `json:"submit_rate_limit"`
	AuthRateLimit               int            `json:"auth_rate_limit"`
	LockoutThreshold            int            `json:"lockout_threshold"`
	LockoutDuration             timex.Duration `json:"lockout_duration"`
	WebhookTimeout              timex.Duration `json:"webhook_timeout"`
	WebhookMaxRetries           int            `json:"webhook_max_retries"`
	WebhookConcurrency          int            `json:"webhook_concurrency"`
	S3RootUser                  string         `json:"s3_root_user"`
	S3RootPassword              string         `json:"s3_root_password"`
	S3Bucket                    string         `json:"s3_bucket"`
	S3Region                    string         `json:"s3_region"`
	S3BaseEndpoint              string         `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The lookup order for the JSON file path is the -c or -config
// command-line flag; if neither is set, no JSON file is loaded. If the
// file cannot be read or contains invalid JSON, the function panics. The
// caller is expected to merge these values with defaults and command-line
// flags as part of the full configuration process.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	config.EndpointAddr = c.EndpointAddr
	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.AccessTokenValidityDuration = time.Duration(c.AccessTokenValidityDuration.Duration)
	config.RateLimitWindow = time.Duration(c.RateLimitWindow.Duration)
	config.SubmitRateLimit = c.SubmitRateLimit
	config.AuthRateLimit = c.AuthRateLimit
	config.LockoutThreshold = c.LockoutThreshold
	config.LockoutDuration = time.Duration(c.LockoutDuration.Duration)
	config.WebhookTimeout = time.Duration(c.WebhookTimeout.Duration)
	config.WebhookMaxRetries = c.WebhookMaxRetries
	config.WebhookConcurrency = c.WebhookConcurrency
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
}
