// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. NLM_ROOT_PATH.
const EnvPrefix = "NLM"

// Config holds all configuration for nlmd.
// The mapstructure tags are used by Viper to unmarshal the data.
type Config struct {
	NodeID              string        `mapstructure:"node_id"`
	CoordinationBackend string        `mapstructure:"coordination_backend" validate:"oneof=etcd memory"`
	EtcdEndpoints       []string      `mapstructure:"etcd_endpoints" validate:"required_if=CoordinationBackend etcd,dive,required"`
	EtcdTimeout         time.Duration `mapstructure:"etcd_timeout" validate:"gt=0"`
	EtcdUsername        string        `mapstructure:"etcd_username"`
	EtcdPassword        string        `mapstructure:"etcd_password"`
	RootPath            string        `mapstructure:"root_path" validate:"required,startswith=/"`
	RecordCodec         string        `mapstructure:"record_codec" validate:"oneof=json proto"`
	MutexSessionTTL     time.Duration `mapstructure:"mutex_session_ttl" validate:"gte=1s"`
	ReleaseTimeout      time.Duration `mapstructure:"release_timeout" validate:"gt=0"`
	HttpListenAddr      string        `mapstructure:"http_listen_addr" validate:"required"`
	GrpcListenAddr      string        `mapstructure:"grpc_listen_addr" validate:"required"`
	AdvertiseAddr       string        `mapstructure:"advertise_addr"`
	LeaderElectionTTL   time.Duration `mapstructure:"leader_election_ttl" validate:"gte=1s"`
	CensusSchedule      string        `mapstructure:"census_schedule" validate:"required,cron"`
	LogLevel            string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	TracingExporter     string        `mapstructure:"tracing_exporter" validate:"oneof=stdout none"`
}

// SlogLevel returns LogLevel as a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Advertised is the gRPC address other processes should dial.
func (c *Config) Advertised() string {
	if c.AdvertiseAddr != "" {
		return c.AdvertiseAddr
	}
	return c.GrpcListenAddr
}

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	return load(viper.New(), "./configs", ".")
}

func load(v *viper.Viper, paths ...string) (*Config, error) {
	// Set default values
	v.SetDefault("node_id", "")
	v.SetDefault("coordination_backend", "etcd")
	v.SetDefault("etcd_endpoints", []string{"localhost:2379"})
	v.SetDefault("etcd_timeout", "5s")
	v.SetDefault("etcd_username", "")
	v.SetDefault("etcd_password", "")
	v.SetDefault("root_path", "/nlm")
	v.SetDefault("record_codec", "json")
	v.SetDefault("mutex_session_ttl", "10s")
	v.SetDefault("release_timeout", "5s")
	v.SetDefault("http_listen_addr", ":8080")
	v.SetDefault("grpc_listen_addr", ":9090")
	v.SetDefault("advertise_addr", "")
	v.SetDefault("leader_election_ttl", "10s")
	v.SetDefault("census_schedule", "0 * * * * *")
	v.SetDefault("log_level", "info")
	v.SetDefault("tracing_exporter", "none")

	// Set config file details
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	// Read environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file; defaults and env vars apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	validate := validator.New()
	_ = validate.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		_, err := parser.Parse(fl.Field().String())
		return err == nil
	})

	if err := validate.Struct(cfg); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) {
			msgs := make([]string, 0, len(fieldErrors))
			for _, fe := range fieldErrors {
				msgs = append(msgs, fmt.Sprintf("field '%s' failed on the '%s' tag", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
