// Package config loads service configuration from the environment via viper.
// Both binaries share one schema; each validates only the fields it uses.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full configuration surface for forgeyard services.
type Config struct {
	// Port is the HTTP listen port of the API service.
	Port int `mapstructure:"port"`

	// MongoURI is the connection string for the document store.
	MongoURI string `mapstructure:"mongodb_uri"`

	// RabbitMQHost is the AMQP broker host (host or host:port).
	RabbitMQHost string `mapstructure:"rabbitmq_host"`

	// RabbitMQUser and RabbitMQPassword authenticate against the broker.
	RabbitMQUser     string `mapstructure:"rabbitmq_user"`
	RabbitMQPassword string `mapstructure:"rabbitmq_password"`

	// DockerSocketPath is the Docker daemon socket owned by the runner.
	DockerSocketPath string `mapstructure:"docker_socket_path"`

	// SubmissionConcurrency caps concurrently executing submissions.
	SubmissionConcurrency int `mapstructure:"submission_concurrency"`

	// DefaultContainerTimeoutSec bounds a submission container's runtime when
	// the project does not set its own timeout.
	DefaultContainerTimeoutSec int `mapstructure:"default_container_timeout_sec"`

	// ScratchDir is the root for per-execution extraction directories.
	ScratchDir string `mapstructure:"scratch_dir"`

	// RunnerReplyTimeoutSec bounds how long the API service waits for a
	// runner reply before completing the request as timed out.
	RunnerReplyTimeoutSec int `mapstructure:"runner_reply_timeout_sec"`

	// LogsDir enables rotating file logs when non-empty.
	LogsDir string `mapstructure:"logs_dir"`

	// Debug raises the log level to debug.
	Debug bool `mapstructure:"debug"`
}

// DefaultContainerTimeout returns the default timeout as a duration.
func (c Config) DefaultContainerTimeout() time.Duration {
	return time.Duration(c.DefaultContainerTimeoutSec) * time.Second
}

// RunnerReplyTimeout returns the publisher-side reply deadline.
func (c Config) RunnerReplyTimeout() time.Duration {
	return time.Duration(c.RunnerReplyTimeoutSec) * time.Second
}

// AMQPURL assembles the broker URL from host and credentials.
func (c Config) AMQPURL() string {
	host := c.RabbitMQHost
	if !strings.Contains(host, ":") {
		host += ":5672"
	}
	user := c.RabbitMQUser
	if user == "" {
		user = "guest"
	}
	pass := c.RabbitMQPassword
	if pass == "" {
		pass = "guest"
	}
	return fmt.Sprintf("amqp://%s:%s@%s/", user, pass, host)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	// Spec'd environment names are flat upper-snake without a prefix, so each
	// key binds explicitly instead of going through SetEnvPrefix.
	for _, key := range []string{
		"port",
		"mongodb_uri",
		"rabbitmq_host",
		"rabbitmq_user",
		"rabbitmq_password",
		"docker_socket_path",
		"submission_concurrency",
		"default_container_timeout_sec",
		"scratch_dir",
		"runner_reply_timeout_sec",
		"logs_dir",
		"debug",
	} {
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			panic(fmt.Sprintf("config: BindEnv(%q) failed: %v", key, err))
		}
	}

	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 3000)
	v.SetDefault("mongodb_uri", "mongodb://localhost:27017/forgeyard")
	v.SetDefault("rabbitmq_host", "localhost")
	v.SetDefault("docker_socket_path", "/var/run/docker.sock")
	v.SetDefault("submission_concurrency", 4)
	v.SetDefault("default_container_timeout_sec", 60)
	v.SetDefault("scratch_dir", "/tmp/forgeyard")
	v.SetDefault("runner_reply_timeout_sec", 300)
}

// Load reads configuration from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := newViper().Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.SubmissionConcurrency < 1 {
		return fmt.Errorf("SUBMISSION_CONCURRENCY must be at least 1, got %d", c.SubmissionConcurrency)
	}
	if c.DefaultContainerTimeoutSec < 1 {
		return fmt.Errorf("DEFAULT_CONTAINER_TIMEOUT_SEC must be at least 1, got %d", c.DefaultContainerTimeoutSec)
	}
	if c.MongoURI == "" {
		return fmt.Errorf("MONGODB_URI must be set")
	}
	if c.RabbitMQHost == "" {
		return fmt.Errorf("RABBITMQ_HOST must be set")
	}
	return nil
}
