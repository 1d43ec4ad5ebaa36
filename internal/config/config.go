package config

import (
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/lmaisenbacher/logger2/internal/types"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Devices   DevicesConfig   `mapstructure:"devices"`
}

type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig describes the InfluxDB 2.x target. The token is never
// placed in the config file itself, only the name of the environment
// variable holding it.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	Org      string `mapstructure:"org"`
	Bucket   string `mapstructure:"bucket"`
	TokenEnv string `mapstructure:"token_env"`
}

type SchedulerConfig struct {
	UpdateInterval time.Duration `mapstructure:"update_interval"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	FaultThreshold int           `mapstructure:"fault_threshold"`
}

type DevicesConfig struct {
	ConfigPath string `mapstructure:"config_path"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("database.token_env", "INFLUXDB_TOKEN")
	v.SetDefault("scheduler.update_interval", "10s")
	v.SetDefault("scheduler.default_timeout", "1s")
	v.SetDefault("scheduler.fault_threshold", 3)

	v.SetEnvPrefix("LOGGER2")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, types.Errf(types.ErrConfiguration, "reading config %q", path).WithCause(err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, types.Errf(types.ErrConfiguration, "unmarshaling config %q", path).WithCause(err)
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return types.Errf(types.ErrConfiguration, "database.url is required")
	}
	if c.Database.Org == "" || c.Database.Bucket == "" {
		return types.Errf(types.ErrConfiguration, "database.org and database.bucket are required")
	}
	if c.Devices.ConfigPath == "" {
		return types.Errf(types.ErrConfiguration, "devices.config_path is required")
	}
	if c.Scheduler.UpdateInterval <= 0 {
		return types.Errf(types.ErrConfiguration, "scheduler.update_interval must be positive")
	}
	if c.Scheduler.DefaultTimeout <= 0 {
		return types.Errf(types.ErrConfiguration, "scheduler.default_timeout must be positive")
	}
	return nil
}

// Token resolves the database token from the configured environment
// variable. Empty is allowed: unauthenticated development instances.
func (d *DatabaseConfig) Token() string {
	envVar := d.TokenEnv
	if envVar == "" {
		envVar = "INFLUXDB_TOKEN"
	}
	return os.Getenv(envVar)
}
